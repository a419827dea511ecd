// Package localfs implements the "fs" blob provider: a directory tree
// holding content-addressed blobs, useful for air-gapped setups and tests.
package localfs

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/model"
	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/storage"
	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/storage/status"
	digest "github.com/opencontainers/go-digest"
	"github.com/spf13/afero"
)

const providerName = "fs"

// Option configures the store
type Option func(*localFS)

// Prefix sets a key prefix within the container directory
func Prefix(prefix string) Option {
	return func(l *localFS) {
		l.prefix = prefix
	}
}

// WithFs overrides the backing filesystem (mem-backed in tests)
func WithFs(fs afero.Fs) Option {
	return func(l *localFS) {
		l.fs = fs
	}
}

// New creates a filesystem-backed blob store rooted at container, which
// is a directory path.
func New(container string, opts ...Option) storage.Store {
	l := &localFS{container: container}
	for _, apply := range opts {
		apply(l)
	}
	if l.fs == nil {
		l.fs = afero.NewBasePathFs(afero.NewOsFs(), container)
	}
	return l
}

type localFS struct {
	fs        afero.Fs
	container string
	prefix    string
}

func (l *localFS) String() string {
	return providerName + "://" + l.container
}

func (l *localFS) BuildURI(d digest.Digest) (string, error) {
	return model.BuildBlobURI(providerName, l.container, l.prefix, d)
}

func (l *localFS) key(d digest.Digest) (string, error) {
	if err := model.ValidateDigest(d); err != nil {
		return "", err
	}
	return filepath.FromSlash(model.BlobKey(l.prefix, d)), nil
}

func (l *localFS) ExistsByDigest(ctx context.Context, d digest.Digest) (bool, error) {
	key, err := l.key(d)
	if err != nil {
		return false, err
	}
	fi, err := l.fs.Stat(key)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return !fi.IsDir(), nil
}

func (l *localFS) PutByDigest(ctx context.Context, d digest.Digest, rdr io.Reader) (model.BlobRef, error) {
	uri, err := l.BuildURI(d)
	if err != nil {
		return model.BlobRef{}, err
	}
	ref := model.BlobRef{URI: uri}

	// idempotent by content addressing
	if ok, err := l.ExistsByDigest(ctx, d); err != nil {
		return model.BlobRef{}, err
	} else if ok {
		return ref, nil
	}

	key, err := l.key(d)
	if err != nil {
		return model.BlobRef{}, err
	}
	if err = l.fs.MkdirAll(filepath.Dir(key), 0o700); err != nil {
		return model.BlobRef{}, err
	}

	// stage then rename so a racing reader never sees a partial blob
	stage := key + ".stage"
	target, err := l.fs.OpenFile(stage, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return model.BlobRef{}, err
	}
	if _, err = io.Copy(target, rdr); err != nil {
		_ = target.Close()
		_ = l.fs.Remove(stage)
		return model.BlobRef{}, err
	}
	if err = target.Close(); err != nil {
		_ = l.fs.Remove(stage)
		return model.BlobRef{}, err
	}
	if err = l.fs.Rename(stage, key); err != nil {
		_ = l.fs.Remove(stage)
		return model.BlobRef{}, err
	}
	return ref, nil
}

func (l *localFS) GetByDigest(ctx context.Context, d digest.Digest) (io.ReadCloser, error) {
	key, err := l.key(d)
	if err != nil {
		return nil, err
	}
	f, err := l.fs.Open(key)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, status.ErrNotFound.WrapMessage(d.String())
		}
		return nil, err
	}
	return f, nil
}
