// Package ipc writes message files into nanoclaw's IPC directory.
//
// nanoclaw polls <DATA_DIR>/ipc/main/messages and delivers every JSON file it
// finds there. Files are staged under a hidden name and hard-linked into
// place, so a reader never sees a partially written message and two writers
// never claim the same name. On volumes without hard link support the file is
// created exclusively under its final name instead.
package ipc

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
	"time"
)

// MessageType is the only IPC message kind the sidecar produces.
const MessageType = "message"

// maxNameAttempts bounds the suffix search when several messages share a millisecond.
const maxNameAttempts = 1000

// ErrMessagesDirMissing is returned when nanoclaw's messages directory does not exist.
var ErrMessagesDirMissing = errors.New("IPC messages directory does not exist")

// Message is the payload nanoclaw expects.
type Message struct {
	Type    string `json:"type"`
	ChatJID string `json:"chatJid"`
	Text    string `json:"text"`
}

// NewMessage builds a text message for chatJID.
func NewMessage(chatJID, text string) Message {
	return Message{Type: MessageType, ChatJID: chatJID, Text: text}
}

// Writer creates message files in a single directory.
type Writer struct {
	dir  string
	now  func() time.Time
	link func(oldname, newname string) error
}

// NewWriter returns a writer for dir. The directory is not created: it is
// owned by nanoclaw and its absence is reported per write.
func NewWriter(dir string) *Writer {
	return &Writer{dir: dir, now: time.Now, link: os.Link}
}

// MessagesDir returns <dataDir>/ipc/main/messages.
func MessagesDir(dataDir string) string {
	return filepath.Join(dataDir, "ipc", "main", "messages")
}

// Dir returns the target directory.
func (w *Writer) Dir() string {
	return w.dir
}

// Ready reports whether the messages directory currently exists.
func (w *Writer) Ready() error {
	info, err := os.Stat(w.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrMessagesDirMissing
		}
		return fmt.Errorf("failed to stat %s: %w", w.dir, err)
	}
	if !info.IsDir() {
		return ErrMessagesDirMissing
	}
	return nil
}

// Write stores msg as webhook-<unix-ms>.json and returns the file's path.
// When that name is taken a -<n> suffix is appended.
func (w *Writer) Write(msg Message) (string, error) {
	if err := w.Ready(); err != nil {
		return "", err
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("failed to encode IPC message: %w", err)
	}

	tmp, err := os.CreateTemp(w.dir, ".webhook-*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to stage IPC message: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write IPC message: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to write IPC message: %w", err)
	}
	// nanoclaw may run as a different user on the shared volume.
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return "", fmt.Errorf("failed to set IPC message permissions: %w", err)
	}

	stamp := strconv.FormatInt(w.now().UnixMilli(), 10)
	direct := false
	for attempt := 0; attempt < maxNameAttempts; attempt++ {
		name := "webhook-" + stamp
		if attempt > 0 {
			name += "-" + strconv.Itoa(attempt)
		}
		target := filepath.Join(w.dir, name+".json")

		var err error
		if direct {
			err = writeExclusive(target, payload)
		} else {
			err = w.link(tmpPath, target)
			if linkUnsupported(err) {
				direct = true
				err = writeExclusive(target, payload)
			}
		}
		if err == nil {
			return target, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("failed to publish IPC message: %w", err)
		}
	}

	return "", fmt.Errorf("failed to publish IPC message: no free file name for timestamp %s", stamp)
}

// linkUnsupported reports whether err means the filesystem cannot hard link.
func linkUnsupported(err error) bool {
	return errors.Is(err, syscall.ENOTSUP) ||
		errors.Is(err, syscall.EOPNOTSUPP) ||
		errors.Is(err, syscall.EPERM) ||
		errors.Is(err, errors.ErrUnsupported)
}

// writeExclusive creates path, failing with os.ErrExist if it is taken.
func writeExclusive(path string, payload []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(payload); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return err
	}
	return nil
}
