package modelopsbundle

import (
	"context"

	"go.uber.org/zap"

	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/config"
	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/core"
	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/core/status"
	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/dlogger"
	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/model"
	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/registry"
	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/storage"
	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/storage/gcs"
	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/storage/localfs"
	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/storage/sthree"
	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/workspace"
)

// Runtime is the assembled engine for one project
type Runtime struct {
	project *workspace.Project
	cfg     *config.Config
	bundle  *core.Bundle
	l       *zap.Logger
}

// Option configures a Runtime
type Option func(*runtimeOpts)

type runtimeOpts struct {
	registry registry.Adapter
	blobs    storage.Store
	logger   *zap.Logger
}

// Registry injects the registry adapter for the project's registry_ref
func Registry(r registry.Adapter) Option {
	return func(o *runtimeOpts) {
		o.registry = r
	}
}

// BlobStore overrides the blob store the configuration would select
func BlobStore(s storage.Store) Option {
	return func(o *runtimeOpts) {
		o.blobs = s
	}
}

// Logger sets the runtime logger
func Logger(l *zap.Logger) Option {
	return func(o *runtimeOpts) {
		o.logger = l
	}
}

// New opens the project at root and assembles the engine from its
// configuration
func New(ctx context.Context, root string, opts ...Option) (*Runtime, error) {
	var o runtimeOpts
	for _, apply := range opts {
		apply(&o)
	}
	if o.logger == nil {
		o.logger = dlogger.MustGetLogger(dlogger.LogLevelInfo)
	}
	if o.registry == nil {
		return nil, status.ErrConfig.WrapMessage("a registry adapter is required")
	}

	project, err := workspace.Open(root, workspace.Logger(o.logger))
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(project.ConfigPath())
	if err != nil {
		return nil, err
	}

	blobs := o.blobs
	if blobs == nil {
		blobs, err = makeBlobStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
	}

	bopts := []core.Option{
		core.Project(project),
		core.Config(cfg),
		core.Registry(o.registry),
		core.Logger(o.logger),
	}
	if blobs != nil {
		bopts = append(bopts, core.BlobStore(blobs))
	}
	bundle, err := core.New(bopts...)
	if err != nil {
		return nil, err
	}

	return &Runtime{
		project: project,
		cfg:     cfg,
		bundle:  bundle,
		l:       o.logger,
	}, nil
}

// makeBlobStore selects the blob provider named by the configuration
func makeBlobStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Provider {
	case config.ProviderNone:
		return nil, nil
	case config.ProviderFS:
		return localfs.New(cfg.Storage.Container, localfs.Prefix(cfg.Storage.Prefix)), nil
	case config.ProviderGCS:
		return gcs.New(ctx, cfg.Storage.Container, cfg.Storage.Prefix)
	case config.ProviderS3:
		return sthree.New(
			sthree.Bucket(cfg.Storage.Container),
			sthree.Prefix(cfg.Storage.Prefix),
		), nil
	case config.ProviderAzure:
		return nil, status.ErrConfig.WrapMessage(
			"the azure provider is not available in this build")
	default:
		return nil, status.ErrConfig.WrapMessage(
			"unknown storage provider " + cfg.Storage.Provider)
	}
}

// Project is the underlying working tree
func (r *Runtime) Project() *workspace.Project {
	return r.project
}

// Config is the loaded bundle configuration
func (r *Runtime) Config() *config.Config {
	return r.cfg
}

// Push plans and applies a push of the tracked set to the tag
func (r *Runtime) Push(ctx context.Context, tag string, force bool) (string, error) {
	d, err := r.bundle.Push(ctx, tag, force)
	if err != nil {
		return "", err
	}
	return d.String(), nil
}

// Pull plans and applies a pull of the given ref into the working tree
func (r *Runtime) Pull(ctx context.Context, ref string, opts core.PullOptions) (*core.PullPlan, error) {
	return r.bundle.Pull(ctx, model.BundleRef(ref), opts)
}

// Status reports the project's sync state against the tag
func (r *Runtime) Status(ctx context.Context, tag string) (core.StatusReport, error) {
	return r.bundle.Status(ctx, tag)
}

// Export materializes a ref into an arbitrary directory without touching
// project metadata
func (r *Runtime) Export(ctx context.Context, ref, dest string, opts core.ExportOptions) (core.ExportResult, error) {
	return r.bundle.Export(ctx, model.BundleRef(ref), dest, opts)
}
