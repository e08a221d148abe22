package tests

import (
	"os"
	"regexp"
	"strconv"
	"testing"

	"nanoclaw-sidecar/config"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// Config structure to parse config.yaml
type Config struct {
	Server struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
		App  string `yaml:"app"`
	} `yaml:"server"`
}

func readConfigYAML(t *testing.T) Config {
	t.Helper()
	configData, err := os.ReadFile("../config.yaml")
	require.NoError(t, err, "Failed to read config.yaml")

	var cfg Config
	require.NoError(t, yaml.Unmarshal(configData, &cfg), "Failed to parse config.yaml")
	return cfg
}

// TestPortConsistency ensures the image, the sample config and the built-in
// defaults all agree on 0.0.0.0:5000.
func TestPortConsistency(t *testing.T) {
	cfg := readConfigYAML(t)
	assert.Equal(t, 5000, cfg.Server.Port, "config.yaml server.port")
	assert.Equal(t, "0.0.0.0", cfg.Server.Host, "config.yaml server.host")
	assert.Equal(t, config.DefaultApplication, cfg.Server.App, "config.yaml server.app")

	t.Run("built-in defaults", func(t *testing.T) {
		viper.Reset()
		t.Cleanup(viper.Reset)
		chdir(t, t.TempDir())
		t.Setenv("PORT", "")
		t.Setenv("SIDECAR_SERVER_PORT", "")
		t.Setenv("SIDECAR_SERVER_HOST", "")

		defaults, err := config.LoadConfig("")
		require.NoError(t, err)
		assert.Equal(t, cfg.Server.Port, defaults.Server.Port)
		assert.Equal(t, "0.0.0.0:5000", defaults.ListenAddr())
	})

	t.Run("Dockerfile EXPOSE", func(t *testing.T) {
		content, err := os.ReadFile("../Dockerfile")
		require.NoError(t, err, "Failed to read Dockerfile")

		exposePattern := regexp.MustCompile(`(?m)^EXPOSE\s+(\d+)`)
		matches := exposePattern.FindAllStringSubmatch(string(content), -1)
		require.Len(t, matches, 1, "Dockerfile must expose exactly one port")

		port, err := strconv.Atoi(matches[0][1])
		require.NoError(t, err)
		assert.Equal(t, cfg.Server.Port, port, "Dockerfile EXPOSE mismatch")
	})

	t.Run("Dockerfile entrypoint serves", func(t *testing.T) {
		content, err := os.ReadFile("../Dockerfile")
		require.NoError(t, err)
		assert.Regexp(t, `ENTRYPOINT \["/app/nanoclaw-sidecar"\]`, string(content))
		assert.Regexp(t, `CMD \["serve"\]`, string(content))
	})
}

// TestLockFilesCopiedBeforeSources ensures dependency resolution in the
// image only sees go.mod and go.sum.
func TestLockFilesCopiedBeforeSources(t *testing.T) {
	content, err := os.ReadFile("../Dockerfile")
	require.NoError(t, err)
	text := string(content)

	lockCopy := regexp.MustCompile(`(?m)^COPY go\.mod go\.sum \./`).FindStringIndex(text)
	download := regexp.MustCompile(`(?m)^RUN go mod download`).FindStringIndex(text)
	sourceCopy := regexp.MustCompile(`(?m)^COPY \. \.`).FindStringIndex(text)
	require.NotNil(t, lockCopy, "go.mod/go.sum copy missing")
	require.NotNil(t, download, "go mod download missing")
	require.NotNil(t, sourceCopy, "source copy missing")

	assert.Less(t, lockCopy[0], download[0])
	assert.Less(t, download[0], sourceCopy[0])
	assert.Contains(t, text, "go mod verify")
	assert.Contains(t, text, "deps verify")
	assert.Contains(t, text, "-mod=readonly")
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent of testing.T.Chdir, Go 1.24+).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatal(err)
		}
	})
}
