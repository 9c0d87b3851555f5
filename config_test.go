package hoare_test

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/hoare"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestReadConfig(t *testing.T) {
	t.Run("Empty", func(t *testing.T) {
		config, err := hoare.ReadConfig(strings.NewReader(""))
		require.NoError(t, err)
		assert.Equal(t, hoare.NewConfig(), config)
		assert.Equal(t, hoare.Duration(10*time.Second), config.Timeout)
		assert.Equal(t, runtime.NumCPU(), config.Workers)
		assert.Equal(t, hoare.ModeFirstFailure, config.Mode)
	})

	t.Run("Override", func(t *testing.T) {
		config, err := hoare.ReadConfig(strings.NewReader(`
timeout: 250ms
workers: 3
mode: collect-all
color: false
`))
		require.NoError(t, err)
		assert.Equal(t, hoare.Duration(250*time.Millisecond), config.Timeout)
		assert.Equal(t, 3, config.Workers)
		assert.Equal(t, hoare.ModeCollectAll, config.Mode)
		assert.False(t, config.Color)
		assert.False(t, config.Progress)
	})

	t.Run("ErrDuration", func(t *testing.T) {
		_, err := hoare.ReadConfig(strings.NewReader("timeout: soon\n"))
		assert.ErrorContains(t, err, `invalid duration "soon"`)
	})

	t.Run("ErrMode", func(t *testing.T) {
		_, err := hoare.ReadConfig(strings.NewReader("mode: all\n"))
		assert.EqualError(t, err, `invalid mode: "all"`)
	})

	t.Run("ErrWorkers", func(t *testing.T) {
		_, err := hoare.ReadConfig(strings.NewReader("workers: -1\n"))
		assert.EqualError(t, err, "invalid workers: -1")
	})

	t.Run("ErrTimeout", func(t *testing.T) {
		_, err := hoare.ReadConfig(strings.NewReader("timeout: -1s\n"))
		assert.EqualError(t, err, "invalid timeout: -1s")
	})
}

func TestReadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hoare.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mode: collect-all\n"), 0o644))

	config, err := hoare.ReadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, hoare.ModeCollectAll, config.Mode)

	_, err = hoare.ReadConfigFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, os.IsNotExist(err))
}

func TestDuration_MarshalYAML(t *testing.T) {
	config := hoare.NewConfig()
	config.Timeout = hoare.Duration(90 * time.Second)

	buf, err := yaml.Marshal(config)
	require.NoError(t, err)
	assert.Contains(t, string(buf), "timeout: 1m30s")

	other, err := hoare.ReadConfig(strings.NewReader(string(buf)))
	require.NoError(t, err)
	assert.Equal(t, config, other)
}
