// Package lockfile verifies that a module's dependency set is fully pinned.
//
// The lock file is go.sum, read together with the go.mod it pins. A build is
// reproducible from the lock alone when every required module has a hash in
// go.sum, every version is an exact canonical semantic version, and nothing
// is redirected to a local directory.
package lockfile

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"sort"
	"strings"

	"golang.org/x/mod/modfile"
	"golang.org/x/mod/module"
	"golang.org/x/mod/semver"
	"golang.org/x/mod/sumdb/dirhash"
)

var (
	// ErrLockMissing is returned when go.mod or go.sum does not exist.
	ErrLockMissing = errors.New("lock file missing")
	// ErrLockMalformed is returned when go.mod or go.sum cannot be parsed.
	ErrLockMalformed = errors.New("lock file malformed")
	// ErrUnpinned is returned when a requirement is not satisfied by the lock.
	ErrUnpinned = errors.New("dependency not pinned")
	// ErrBuildMismatch is returned when a binary was built from other versions than the lock pins.
	ErrBuildMismatch = errors.New("build does not match lock file")
)

// hashPrefix is the only go.sum hash algorithm in use.
const hashPrefix = "h1:"

// Pin is one go.sum line.
type Pin struct {
	Path    string
	Version string
	// GoMod marks a pin of the module's go.mod file only.
	GoMod bool
	Hash  string
}

func (p Pin) key() pinKey {
	return pinKey{path: p.Path, version: p.Version, goMod: p.GoMod}
}

// String renders the pin in go.sum syntax.
func (p Pin) String() string {
	v := p.Version
	if p.GoMod {
		v += "/go.mod"
	}
	return p.Path + " " + v + " " + p.Hash
}

type pinKey struct {
	path    string
	version string
	goMod   bool
}

// Lock is a parsed go.mod and go.sum pair.
type Lock struct {
	Module   string
	Requires []*modfile.Require
	Replaces []*modfile.Replace
	Pins     []Pin

	index map[pinKey]string
}

// Load reads and parses the manifest at modPath and the lock at sumPath.
func Load(modPath, sumPath string) (*Lock, error) {
	modData, err := readRequired(modPath)
	if err != nil {
		return nil, err
	}
	sumData, err := readRequired(sumPath)
	if err != nil {
		return nil, err
	}
	return Parse(modPath, modData, sumPath, sumData)
}

func readRequired(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrLockMissing, path)
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

// Parse parses manifest and lock contents. The names are used in errors only.
func Parse(modName string, modData []byte, sumName string, sumData []byte) (*Lock, error) {
	f, err := modfile.Parse(modName, modData, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLockMalformed, err)
	}
	if f.Module == nil {
		return nil, fmt.Errorf("%w: %s: no module directive", ErrLockMalformed, modName)
	}

	pins, err := parseSum(sumName, sumData)
	if err != nil {
		return nil, err
	}

	lock := &Lock{
		Module:   f.Module.Mod.Path,
		Requires: f.Require,
		Replaces: f.Replace,
		Pins:     pins,
		index:    make(map[pinKey]string, len(pins)),
	}
	for _, p := range pins {
		if prev, ok := lock.index[p.key()]; ok && prev != p.Hash {
			return nil, fmt.Errorf("%w: %s: conflicting hashes for %s %s", ErrLockMalformed, sumName, p.Path, p.Version)
		}
		lock.index[p.key()] = p.Hash
	}
	return lock, nil
}

func parseSum(name string, data []byte) ([]Pin, error) {
	var pins []Pin
	scanner := bufio.NewScanner(bytes.NewReader(data))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) != 3 {
			return nil, fmt.Errorf("%w: %s:%d: want \"<module> <version> <hash>\"", ErrLockMalformed, name, lineNo)
		}

		pin := Pin{Path: fields[0], Version: fields[1], Hash: fields[2]}
		if v, ok := strings.CutSuffix(pin.Version, "/go.mod"); ok {
			pin.Version = v
			pin.GoMod = true
		}
		if err := module.Check(pin.Path, pin.Version); err != nil {
			return nil, fmt.Errorf("%w: %s:%d: %v", ErrLockMalformed, name, lineNo, err)
		}
		if err := checkHash(pin.Hash); err != nil {
			return nil, fmt.Errorf("%w: %s:%d: %v", ErrLockMalformed, name, lineNo, err)
		}
		pins = append(pins, pin)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrLockMalformed, name, err)
	}
	return pins, nil
}

func checkHash(h string) error {
	encoded, ok := strings.CutPrefix(h, hashPrefix)
	if !ok {
		return fmt.Errorf("unsupported hash %q", h)
	}
	sum, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("invalid hash encoding: %v", err)
	}
	if len(sum) != 32 {
		return fmt.Errorf("invalid hash length %d", len(sum))
	}
	return nil
}

// resolve applies replace directives to a requirement.
func (l *Lock) resolve(mod module.Version) module.Version {
	var match module.Version
	found := false
	for _, r := range l.Replaces {
		if r.Old.Path != mod.Path {
			continue
		}
		// A versioned replacement wins over a wildcard one.
		if r.Old.Version == mod.Version {
			return r.New
		}
		if r.Old.Version == "" {
			match, found = r.New, true
		}
	}
	if found {
		return match
	}
	return mod
}

// Verify checks that every requirement is exactly pinned.
func (l *Lock) Verify() error {
	var problems []string

	for _, r := range l.Replaces {
		if r.New.Version == "" || modfile.IsDirectoryPath(r.New.Path) {
			problems = append(problems, fmt.Sprintf("%s is replaced by local directory %s", r.Old.Path, r.New.Path))
		}
	}

	for _, req := range l.Requires {
		v := req.Mod.Version
		if !semver.IsValid(v) || module.CanonicalVersion(v) != v {
			problems = append(problems, fmt.Sprintf("%s %s is not an exact version", req.Mod.Path, v))
			continue
		}

		mod := l.resolve(req.Mod)
		if mod.Version == "" {
			continue // reported with the replace directives
		}
		if _, ok := l.index[pinKey{path: mod.Path, version: mod.Version, goMod: true}]; !ok {
			problems = append(problems, fmt.Sprintf("%s %s/go.mod has no go.sum entry", mod.Path, mod.Version))
		}
		if !req.Indirect {
			if _, ok := l.index[pinKey{path: mod.Path, version: mod.Version}]; !ok {
				problems = append(problems, fmt.Sprintf("%s %s has no go.sum entry", mod.Path, mod.Version))
			}
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w:\n  %s", ErrUnpinned, strings.Join(problems, "\n  "))
	}
	return nil
}

// Canonical returns the de-duplicated pins sorted by path, version and kind.
func (l *Lock) Canonical() []Pin {
	seen := make(map[pinKey]bool, len(l.Pins))
	out := make([]Pin, 0, len(l.Pins))
	for _, p := range l.Pins {
		if seen[p.key()] {
			continue
		}
		seen[p.key()] = true
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		if c := semver.Compare(a.Version, b.Version); c != 0 {
			return c < 0
		}
		return !a.GoMod && b.GoMod
	})
	return out
}

// Digest returns an h1: hash identifying the pinned dependency set. Line
// order and duplicate lines in go.sum do not affect it.
func (l *Lock) Digest() (string, error) {
	var buf strings.Builder
	for _, p := range l.Canonical() {
		buf.WriteString(p.String())
		buf.WriteByte('\n')
	}
	content := buf.String()

	return dirhash.Hash1([]string{"go.sum"}, func(string) (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(content)), nil
	})
}

// CheckBuild compares the module hashes recorded in a binary against the lock.
// Dependencies without a recorded sum (local replacements, the main module)
// are skipped.
func (l *Lock) CheckBuild(info *debug.BuildInfo) error {
	if info == nil {
		return fmt.Errorf("%w: no build information available", ErrBuildMismatch)
	}

	var problems []string
	for _, dep := range info.Deps {
		d := dep
		if d.Replace != nil {
			d = d.Replace
		}
		if d.Sum == "" {
			continue
		}
		want, ok := l.index[pinKey{path: d.Path, version: d.Version}]
		switch {
		case !ok:
			problems = append(problems, fmt.Sprintf("%s %s is not in go.sum", d.Path, d.Version))
		case want != d.Sum:
			problems = append(problems, fmt.Sprintf("%s %s built with %s, go.sum pins %s", d.Path, d.Version, d.Sum, want))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w:\n  %s", ErrBuildMismatch, strings.Join(problems, "\n  "))
	}
	return nil
}
