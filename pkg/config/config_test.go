package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	c := New("localhost:5555/epi_model")
	assert.Equal(t, "latest", c.DefaultTag)
	assert.Equal(t, ModeAuto, c.Storage.Mode)
	assert.EqualValues(t, 52428800, c.Storage.ThresholdBytes)
	assert.Equal(t, "auto", c.CacheLinkMode)
	assert.False(t, c.HasBlobProvider())
	require.NoError(t, c.Validate())
}

func TestValidate(t *testing.T) {
	c := New("localhost:5555/p")

	c.Storage.Mode = "sometimes"
	assert.Error(t, c.Validate())
	c.Storage.Mode = ModeAuto

	c.Storage.Provider = "ftp"
	assert.Error(t, c.Validate())

	c.Storage.Provider = ProviderAzure
	assert.Error(t, c.Validate(), "provider without container")
	c.Storage.Container = "bundles"
	assert.NoError(t, c.Validate())

	c.CacheLinkMode = "symlink"
	assert.Error(t, c.Validate())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	pth := filepath.Join(t.TempDir(), ".modelops-bundle", "config.yaml")

	c := New("registry.example.com/models/epi")
	c.Storage.Provider = ProviderS3
	c.Storage.Container = "ml-artifacts"
	c.Storage.Prefix = "bundles"
	c.Storage.ForceBlobPatterns = []string{"data/**"}
	require.NoError(t, c.Save(pth))

	loaded, err := Load(pth)
	require.NoError(t, err)
	assert.Equal(t, c, loaded)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	pth := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(pth, []byte("registry_ref: r/p\nregistry: oops\n"), 0o644))
	_, err := Load(pth)
	assert.Error(t, err)
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "config.yaml"))
	assert.Error(t, err)
}
