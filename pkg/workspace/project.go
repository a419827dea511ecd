// Package workspace manages the project working tree and its metadata:
// the .modelops-bundle directory, the tracked-file set, the sync state
// and the scanning and hashing of tracked content.
package workspace

import (
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/dlogger"
	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/ignore"
	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/model"
	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/workspace/status"
)

const (
	// MetadataDir is the project marker directory
	MetadataDir = ".modelops-bundle"

	// ConfigFile holds the bundle configuration
	ConfigFile = "config.yaml"

	// TrackedFile holds one tracked POSIX path per line, sorted
	TrackedFile = "tracked"

	// StateFile holds the sync state
	StateFile = "state.json"

	// IgnoreFile holds user ignore rules at the project root
	IgnoreFile = ".modelopsignore"

	lockFile = "lock"
)

// Project is a working tree rooted at a directory containing the
// metadata dir. The metadata directory is mutated by at most one command
// at a time, enforced by an advisory project lock.
type Project struct {
	root    string
	matcher *ignore.Matcher
	l       *zap.Logger
}

// Option configures a Project
type Option func(*Project)

// Logger sets the project logger
func Logger(l *zap.Logger) Option {
	return func(p *Project) {
		p.l = l
	}
}

// Matcher overrides the ignore matcher (tests)
func Matcher(m *ignore.Matcher) Option {
	return func(p *Project) {
		p.matcher = m
	}
}

// Init creates the metadata directory for a new project
func Init(root string, opts ...Option) (*Project, error) {
	metaDir := filepath.Join(root, MetadataDir)
	if _, err := os.Stat(metaDir); err == nil {
		return nil, status.ErrAlreadyInitialized.WrapMessage(root)
	}
	if err := os.MkdirAll(metaDir, 0o755); err != nil {
		return nil, err
	}
	return Open(root, opts...)
}

// Open attaches to an existing project
func Open(root string, opts ...Option) (*Project, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if fi, err := os.Stat(filepath.Join(absRoot, MetadataDir)); err != nil || !fi.IsDir() {
		return nil, status.ErrNotAProject.WrapMessage(absRoot)
	}
	p := &Project{
		root: absRoot,
		l:    dlogger.MustGetLogger(dlogger.LogLevelInfo),
	}
	for _, apply := range opts {
		apply(p)
	}
	if p.matcher == nil {
		p.matcher = ignore.New(ignore.Rules(p.userRules()...))
	}
	return p, nil
}

// Root is the absolute project root
func (p *Project) Root() string {
	return p.root
}

// Ignore is the project's ignore matcher (defaults plus .modelopsignore)
func (p *Project) Ignore() *ignore.Matcher {
	return p.matcher
}

// ConfigPath locates config.yaml
func (p *Project) ConfigPath() string {
	return filepath.Join(p.root, MetadataDir, ConfigFile)
}

func (p *Project) trackedPath() string {
	return filepath.Join(p.root, MetadataDir, TrackedFile)
}

func (p *Project) statePath() string {
	return filepath.Join(p.root, MetadataDir, StateFile)
}

// NativePath converts a project-relative POSIX path to an absolute
// native path for disk I/O
func (p *Project) NativePath(pth string) string {
	return filepath.Join(p.root, model.FromPOSIX(pth))
}

// Lock takes the project-level advisory lock, failing fast when another
// process holds it. The returned function releases the lock.
func (p *Project) Lock() (func(), error) {
	lk := flock.New(filepath.Join(p.root, MetadataDir, lockFile))
	ok, err := lk.TryLock()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, status.ErrProjectBusy.WrapMessage(p.root)
	}
	return func() {
		_ = lk.Unlock()
	}, nil
}

func (p *Project) userRules() []ignore.Rule {
	raw, err := os.ReadFile(filepath.Join(p.root, IgnoreFile))
	if err != nil {
		return nil
	}
	return ignore.ParseRules(string(raw))
}
