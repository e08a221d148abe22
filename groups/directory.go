// Package groups maps human readable group names to WhatsApp chat JIDs.
package groups

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// ErrMalformed is returned when a groups file exists but cannot be used.
var ErrMalformed = errors.New("malformed groups config")

// schema requires a flat object of non-empty string values.
const schema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": {"type": "string", "minLength": 1}
}`

var schemaLoader = gojsonschema.NewStringLoader(schema)

// Directory is a concurrency-safe group name to JID lookup table.
type Directory struct {
	path string

	mu     sync.RWMutex
	groups map[string]string
}

// NewDirectory returns a directory holding a copy of groups.
func NewDirectory(groups map[string]string) *Directory {
	d := &Directory{groups: make(map[string]string, len(groups))}
	for name, jid := range groups {
		d.groups[name] = jid
	}
	return d
}

// Load reads the groups file at path. A missing file yields an empty
// directory; a present but unreadable or invalid file is an error.
func Load(path string) (*Directory, error) {
	groups, err := readFile(path)
	if err != nil {
		return nil, err
	}
	d := NewDirectory(groups)
	d.path = path
	return d, nil
}

// Path returns the file the directory was loaded from.
func (d *Directory) Path() string {
	return d.path
}

// Lookup returns the JID registered for name.
func (d *Directory) Lookup(name string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	jid, ok := d.groups[name]
	return jid, ok
}

// Names returns the registered group names in sorted order.
func (d *Directory) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.groups))
	for name := range d.groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns a copy of the current mapping.
func (d *Directory) Snapshot() map[string]string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]string, len(d.groups))
	for name, jid := range d.groups {
		out[name] = jid
	}
	return out
}

// Len returns the number of registered groups.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.groups)
}

// Reload re-reads the backing file and swaps the mapping. On error the
// previous mapping is kept.
func (d *Directory) Reload() error {
	if d.path == "" {
		return nil
	}
	groups, err := readFile(d.path)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.groups = groups
	d.mu.Unlock()
	return nil
}

func readFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("failed to read groups config %s: %w", path, err)
	}
	return Parse(data, formatFor(path))
}

// Format is the encoding of a groups file.
type Format int

const (
	FormatJSON Format = iota
	FormatYAML
)

func formatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Parse decodes and validates a groups document.
func Parse(data []byte, format Format) (map[string]string, error) {
	var doc interface{}
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	default:
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	}

	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("%w: %s", ErrMalformed, strings.Join(msgs, "; "))
	}

	obj, _ := doc.(map[string]interface{})
	groups := make(map[string]string, len(obj))
	for name, v := range obj {
		groups[name] = v.(string)
	}
	return groups, nil
}
