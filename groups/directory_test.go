package groups

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"nanoclaw-sidecar/util/goroutine"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_JSON(t *testing.T) {
	path := writeFile(t, t.TempDir(), "groups.json", `{"dev": "123456789@g.us", "alerts": "987654321@g.us"}`)

	d, err := Load(path)
	require.NoError(t, err)

	jid, ok := d.Lookup("dev")
	assert.True(t, ok)
	assert.Equal(t, "123456789@g.us", jid)
	assert.Equal(t, []string{"alerts", "dev"}, d.Names())
	assert.Equal(t, 2, d.Len())
	assert.Equal(t, path, d.Path())
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "groups.yaml", "dev: \"123456789@g.us\"\nops: \"555@g.us\"\n")

	d, err := Load(path)
	require.NoError(t, err)

	jid, ok := d.Lookup("ops")
	assert.True(t, ok)
	assert.Equal(t, "555@g.us", jid)
}

func TestLoad_MissingFileIsEmpty(t *testing.T) {
	d, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)

	assert.Zero(t, d.Len())
	_, ok := d.Lookup("dev")
	assert.False(t, ok)
}

func TestLoad_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"invalid json", "groups.json", `{"dev": `},
		{"array document", "groups.json", `["dev"]`},
		{"non-string value", "groups.json", `{"dev": 42}`},
		{"empty jid", "groups.json", `{"dev": ""}`},
		{"nested object", "groups.json", `{"dev": {"jid": "1@g.us"}}`},
		{"invalid yaml", "groups.yml", "dev: [unclosed"},
		{"yaml scalar", "groups.yaml", "just a string"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), tt.file, tt.content)
			_, err := Load(path)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestDirectory_SnapshotIsCopy(t *testing.T) {
	d := NewDirectory(map[string]string{"dev": "1@g.us"})
	snap := d.Snapshot()
	snap["dev"] = "changed"

	jid, _ := d.Lookup("dev")
	assert.Equal(t, "1@g.us", jid)
}

func TestDirectory_ReloadKeepsPreviousOnError(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "groups.json", `{"dev": "1@g.us"}`)

	d, err := Load(path)
	require.NoError(t, err)

	writeFile(t, dir, "groups.json", `{"dev": `)
	assert.Error(t, d.Reload())

	jid, ok := d.Lookup("dev")
	assert.True(t, ok)
	assert.Equal(t, "1@g.us", jid)

	writeFile(t, dir, "groups.json", `{"ops": "2@g.us"}`)
	require.NoError(t, d.Reload())
	_, ok = d.Lookup("dev")
	assert.False(t, ok)
	jid, ok = d.Lookup("ops")
	assert.True(t, ok)
	assert.Equal(t, "2@g.us", jid)
}

func TestDirectory_ReloadWithoutFile(t *testing.T) {
	d := NewDirectory(map[string]string{"dev": "1@g.us"})
	assert.NoError(t, d.Reload())
	assert.Equal(t, 1, d.Len())
}

func TestDirectory_Watch(t *testing.T) {
	goroutine.AssertNoLeaks(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "groups.json", `{"dev": "1@g.us"}`)

	d, err := Load(path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done, err := d.Watch(ctx, zap.NewNop().Sugar())
	require.NoError(t, err)

	writeFile(t, dir, "groups.json", `{"dev": "1@g.us", "alerts": "2@g.us"}`)

	assert.Eventually(t, func() bool {
		_, ok := d.Lookup("alerts")
		return ok
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop after context cancellation")
	}
}

func TestDirectory_WatchRequiresFile(t *testing.T) {
	d := NewDirectory(nil)
	_, err := d.Watch(context.Background(), zap.NewNop().Sugar())
	assert.Error(t, err)
}
