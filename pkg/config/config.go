// Package config loads and persists the per-project bundle configuration
// stored at .modelops-bundle/config.yaml.
package config

import (
	"fmt"
	"os"

	units "github.com/docker/go-units"
	"gopkg.in/yaml.v2"

	"github.com/InstituteforDiseaseModeling/modelops-bundle/internal/atomicfile"
)

const (
	// DefaultTag is used when no tag is given
	DefaultTag = "latest"

	// DefaultThresholdBytes routes files at or above 50 MiB to blob
	// storage in auto mode
	DefaultThresholdBytes = 50 * units.MiB
)

// Storage modes
const (
	ModeAuto      = "auto"
	ModeOCIInline = "oci-inline"
	ModeBlobOnly  = "blob-only"
)

// Blob providers ("" disables external blob storage)
const (
	ProviderNone  = ""
	ProviderAzure = "azure"
	ProviderS3    = "s3"
	ProviderGCS   = "gcs"
	ProviderFS    = "fs"
)

// StorageConfig drives the storage policy and blob provider selection
type StorageConfig struct {
	Mode              string   `yaml:"mode,omitempty"`
	ThresholdBytes    int64    `yaml:"threshold_bytes,omitempty"`
	Provider          string   `yaml:"provider,omitempty"`
	Container         string   `yaml:"container,omitempty"`
	Prefix            string   `yaml:"prefix,omitempty"`
	ForceOCIPatterns  []string `yaml:"force_oci_patterns,omitempty"`
	ForceBlobPatterns []string `yaml:"force_blob_patterns,omitempty"`
}

// Config is the bundle configuration
type Config struct {
	RegistryRef   string        `yaml:"registry_ref"`
	DefaultTag    string        `yaml:"default_tag,omitempty"`
	Storage       StorageConfig `yaml:"storage,omitempty"`
	CacheDir      string        `yaml:"cache_dir,omitempty"`
	CacheLinkMode string        `yaml:"cache_link_mode,omitempty"`
}

// New returns a Config with defaults applied
func New(registryRef string) *Config {
	c := &Config{RegistryRef: registryRef}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.DefaultTag == "" {
		c.DefaultTag = DefaultTag
	}
	if c.Storage.Mode == "" {
		c.Storage.Mode = ModeAuto
	}
	if c.Storage.ThresholdBytes == 0 {
		c.Storage.ThresholdBytes = DefaultThresholdBytes
	}
	if c.CacheLinkMode == "" {
		c.CacheLinkMode = "auto"
	}
}

// Validate checks enumerated fields and provider requirements
func (c *Config) Validate() error {
	if c.RegistryRef == "" {
		return fmt.Errorf("registry_ref is required")
	}
	switch c.Storage.Mode {
	case ModeAuto, ModeOCIInline, ModeBlobOnly:
	default:
		return fmt.Errorf("invalid storage.mode %q", c.Storage.Mode)
	}
	switch c.Storage.Provider {
	case ProviderNone, ProviderAzure, ProviderS3, ProviderGCS, ProviderFS:
	default:
		return fmt.Errorf("invalid storage.provider %q", c.Storage.Provider)
	}
	if c.Storage.Provider != ProviderNone && c.Storage.Container == "" {
		return fmt.Errorf("storage.provider %q requires storage.container", c.Storage.Provider)
	}
	if c.Storage.ThresholdBytes < 0 {
		return fmt.Errorf("storage.threshold_bytes must be non-negative")
	}
	switch c.CacheLinkMode {
	case "", "auto", "reflink", "hardlink", "copy":
	default:
		return fmt.Errorf("invalid cache_link_mode %q", c.CacheLinkMode)
	}
	return nil
}

// HasBlobProvider reports whether external blob storage is configured
func (c *Config) HasBlobProvider() bool {
	return c.Storage.Provider != ProviderNone
}

// Load reads and validates a config file
func Load(pth string) (*Config, error) {
	raw, err := os.ReadFile(pth)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.UnmarshalStrict(raw, &c); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", pth, err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", pth, err)
	}
	return &c, nil
}

// Save writes the config atomically (temp file, fsync, rename)
func (c *Config) Save(pth string) error {
	if err := c.Validate(); err != nil {
		return err
	}
	raw, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return atomicfile.Write(pth, raw, 0o644)
}
