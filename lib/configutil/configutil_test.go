package configutil

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Ttl      int    `json:"ttl"`
}

type validatedConfig struct {
	Name string `json:"name"`
}

func (c *validatedConfig) Validate() error {
	if c.Name == "" {
		return errors.New("name is required")
	}
	return nil
}

func TestReadConfigMergesLocal(t *testing.T) {
	dir := t.TempDir()
	err := os.WriteFile(filepath.Join(dir, "rsi.json5"), []byte(`{
		// comments are allowed
		username: "alice",
		password: "hunter2",
		ttl: 300,
	}`), 0600)
	require.NoError(t, err)
	err = os.WriteFile(filepath.Join(dir, "rsi.local.json5"), []byte(`{password: "local"}`), 0600)
	require.NoError(t, err)

	cfg, err := ReadConfig[testConfig](filepath.Join(dir, "rsi.json5"))
	require.NoError(t, err)
	require.Equal(t, testConfig{Username: "alice", Password: "local", Ttl: 300}, cfg)
}

func TestReadConfigMissing(t *testing.T) {
	_, err := ReadConfig[testConfig](filepath.Join(t.TempDir(), "nope.json5"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestReadConfigValidates(t *testing.T) {
	dir := t.TempDir()
	err := os.WriteFile(filepath.Join(dir, "v.json5"), []byte(`{}`), 0600)
	require.NoError(t, err)

	_, err = ReadConfig[validatedConfig](filepath.Join(dir, "v.json5"))
	require.ErrorContains(t, err, "name is required")
}
