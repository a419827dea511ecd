// Package core implements the bundle engine: the three-way diff between
// working tree, last-sync baseline and remote manifest, and the two-phase
// plan/apply push and pull protocols over an OCI registry with hybrid
// blob storage.
package core

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/cafs"
	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/config"
	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/dlogger"
	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/model"
	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/policy"
	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/registry"
	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/storage"
	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/workspace"
)

const (
	// DefaultConcurrentTransfers caps parallel uploads and downloads per
	// operation
	DefaultConcurrentTransfers = 8

	toolName    = "modelops-bundle"
	toolVersion = "0.1.0"
)

// Bundle ties a project working tree to its registry and blob storage
type Bundle struct {
	project  *workspace.Project
	cfg      *config.Config
	registry registry.Adapter
	blobs    storage.Store // nil when no blob provider is configured
	cache    *cafs.Store
	pol      *policy.Policy

	concurrentTransfers int
	linkMode            cafs.LinkMode
	l                   *zap.Logger
	tool                model.ToolInfo
}

// Option configures a Bundle
type Option func(*Bundle)

// Project sets the project working tree
func Project(p *workspace.Project) Option {
	return func(b *Bundle) {
		b.project = p
	}
}

// Config sets the bundle configuration
func Config(cfg *config.Config) Option {
	return func(b *Bundle) {
		b.cfg = cfg
	}
}

// Registry sets the registry adapter
func Registry(r registry.Adapter) Option {
	return func(b *Bundle) {
		b.registry = r
	}
}

// BlobStore sets the external blob store backing the configured provider
func BlobStore(s storage.Store) Option {
	return func(b *Bundle) {
		b.blobs = s
	}
}

// Cache sets the local content-addressable store
func Cache(c *cafs.Store) Option {
	return func(b *Bundle) {
		b.cache = c
	}
}

// ConcurrentTransfers bounds parallel network transfers
func ConcurrentTransfers(n int) Option {
	return func(b *Bundle) {
		if n > 0 {
			b.concurrentTransfers = n
		}
	}
}

// Logger sets the bundle logger
func Logger(l *zap.Logger) Option {
	return func(b *Bundle) {
		b.l = l
	}
}

// New creates a Bundle
func New(opts ...Option) (*Bundle, error) {
	b := &Bundle{
		concurrentTransfers: DefaultConcurrentTransfers,
		l:                   dlogger.MustGetLogger(dlogger.LogLevelInfo),
		tool:                model.ToolInfo{Name: toolName, Version: toolVersion},
	}
	for _, apply := range opts {
		apply(b)
	}
	if b.project == nil {
		return nil, fmt.Errorf("bundle requires a project")
	}
	if b.registry == nil {
		return nil, fmt.Errorf("bundle requires a registry adapter")
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("bundle requires a configuration")
	}
	if b.cache == nil {
		var err error
		b.cache, err = cafs.New(cafs.Root(b.cfg.CacheDir), cafs.Logger(b.l))
		if err != nil {
			return nil, err
		}
	}
	mode, err := cafs.ParseLinkMode(b.cfg.CacheLinkMode)
	if err != nil {
		return nil, err
	}
	b.linkMode = mode
	b.pol = policy.FromConfig(b.cfg)
	return b, nil
}

// tagOrDefault falls back to the configured default tag
func (b *Bundle) tagOrDefault(tag string) string {
	if tag == "" {
		return b.cfg.DefaultTag
	}
	return tag
}
