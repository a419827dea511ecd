package core

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	digest "github.com/opencontainers/go-digest"
	"go.uber.org/zap"

	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/core/status"
	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/model"
	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/registry"
)

// ExportOptions tune an export
type ExportOptions struct {
	// Mirror deletes files under the destination that are not part of
	// the bundle
	Mirror bool

	// DryRun computes the result without touching the destination
	DryRun bool
	_      struct{}
}

// ExportResult summarizes an export
type ExportResult struct {
	ResolvedDigest  digest.Digest
	Materialized    int
	Deleted         int
	BytesDownloaded int64
	_               struct{}
}

// Export materializes a bundle ref into an arbitrary destination
// directory, overwriting existing files. It never touches the project's
// tracked set or sync state. With Mirror set, extra files under the
// destination are deleted afterwards.
func (b *Bundle) Export(ctx context.Context, ref model.BundleRef, dest string, opts ExportOptions) (ExportResult, error) {
	if ref == "" {
		ref = model.BundleRef(b.cfg.DefaultTag)
	}

	var resolved digest.Digest
	if ref.IsDigest() {
		d, err := ref.Digest()
		if err != nil {
			return ExportResult{}, status.ErrInvalidInput.Wrap(err)
		}
		resolved = d
	} else {
		err := registry.WithRetry(ctx, b.l, func() error {
			d, _, rerr := b.registry.ResolveTag(ctx, ref.Tag())
			if rerr != nil {
				return rerr
			}
			resolved = d
			return nil
		})
		if err != nil {
			return ExportResult{}, err
		}
	}

	index, err := registry.FetchIndex(ctx, b.registry, resolved)
	if err != nil {
		return ExportResult{}, err
	}

	result := ExportResult{ResolvedDigest: resolved}
	entries := make([]model.FileEntry, 0, len(index.Files))
	for _, pth := range sortedFilePaths(index.Files) {
		e := index.Files[pth]
		entries = append(entries, e)
		result.BytesDownloaded += e.Size
	}
	result.Materialized = len(entries)

	extras := []string{}
	if opts.Mirror {
		if extras, err = scanExtras(dest, index.Files); err != nil {
			return ExportResult{}, err
		}
		result.Deleted = len(extras)
	}

	if opts.DryRun {
		return result, nil
	}

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return ExportResult{}, err
	}
	for _, e := range entries {
		fetch := b.ociFetcher(e)
		if e.Storage == model.StorageBlob {
			if b.blobs == nil {
				return ExportResult{}, status.ErrConfig.WrapMessage(
					"bundle contains blob-stored files but no blob provider is configured")
			}
			fetch = b.blobFetcher(e)
		}
		if _, err := b.cache.EnsurePresent(ctx, e.Digest, fetch); err != nil {
			return ExportResult{}, err
		}
		target := filepath.Join(dest, model.FromPOSIX(e.Path))
		if err := b.cache.Materialize(e.Digest, target, b.linkMode); err != nil {
			return ExportResult{}, err
		}
	}

	for _, rel := range extras {
		target := filepath.Join(dest, model.FromPOSIX(rel))
		if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
			b.l.Warn("could not delete extra file", zap.String("path", rel), zap.Error(err))
			result.Deleted--
		}
	}

	b.l.Info("exported bundle",
		zap.Stringer("digest", resolved),
		zap.String("dest", dest),
		zap.Int("files", result.Materialized),
	)
	return result, nil
}

// scanExtras lists files under dest that the bundle does not contain
func scanExtras(dest string, expected map[string]model.FileEntry) ([]string, error) {
	var extras []string
	err := filepath.Walk(dest, func(pth string, fi os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if fi.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dest, pth)
		if err != nil {
			return err
		}
		posix := model.ToPOSIX(rel)
		if _, ok := expected[posix]; !ok {
			extras = append(extras, posix)
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	sort.Strings(extras)
	return extras, nil
}

func sortedFilePaths(files map[string]model.FileEntry) []string {
	out := make([]string, 0, len(files))
	for pth := range files {
		out = append(out, pth)
	}
	sort.Strings(out)
	return out
}
