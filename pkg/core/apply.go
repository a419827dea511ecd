package core

import (
	"bytes"
	"context"
	"io"
	"os"
	"sync"

	digest "github.com/opencontainers/go-digest"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/core/status"
	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/errors"
	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/model"
	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/registry"
	registrystatus "github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/registry/status"
)

// Push plans and applies a push under the project lock
func (b *Bundle) Push(ctx context.Context, tag string, force bool) (digest.Digest, error) {
	release, err := b.project.Lock()
	if err != nil {
		return "", err
	}
	defer release()

	plan, err := b.PlanPush(ctx, tag, force)
	if err != nil {
		return "", err
	}
	return b.ApplyPush(ctx, plan, force)
}

// ApplyPush executes a push plan: content first, then the manifest, then
// the sync state. A crash before the manifest write leaves the tag
// unmoved and the sync state untouched; a crash after it leaves the tag
// moved with the sync state still at the previous baseline. Content
// uploads are idempotent, so a retry only transfers what is still missing.
func (b *Bundle) ApplyPush(ctx context.Context, plan *PushPlan, force bool) (digest.Digest, error) {
	if plan == nil {
		return "", status.ErrEmptyPlan
	}
	if plan.NoOp {
		b.l.Info("nothing to push, remote already matches", zap.String("tag", plan.Tag))
		return plan.BaseDigest, nil
	}

	if err := b.uploadBlobFiles(ctx, plan.UploadsBlob); err != nil {
		return "", err
	}
	if err := b.uploadOCIFiles(ctx, plan.UploadsOCI); err != nil {
		return "", err
	}

	// the config blob: the canonical index bytes
	configBytes, err := plan.Index.CanonicalBytes()
	if err != nil {
		return "", err
	}
	configDigest := digest.FromBytes(configBytes)
	err = registry.WithRetry(ctx, b.l, func() error {
		return b.registry.PutBlob(ctx, configDigest, int64(len(configBytes)), bytes.NewReader(configBytes))
	})
	if err != nil {
		return "", err
	}

	// compare-and-set on the tag: re-resolve right before the write and
	// fail when somebody else moved it since the plan
	if !force {
		current, err := b.registry.GetTag(ctx, plan.Tag)
		if err != nil && !errors.Is(err, registrystatus.ErrNotFound) {
			return "", err
		}
		if current != plan.BaseDigest {
			return "", status.ErrTagMoved.WrapMessage(
				"tag " + plan.Tag + " moved to " + shortDigest(current) + " during push")
		}
	}

	var manifestDigest digest.Digest
	err = registry.WithRetry(ctx, b.l, func() error {
		d, perr := b.registry.PutManifest(ctx, plan.ManifestBytes, plan.Tag)
		if perr != nil {
			return perr
		}
		manifestDigest = d
		return nil
	})
	if err != nil {
		return "", err
	}

	// persistent state moves only after every content write succeeded
	state, err := b.project.LoadState()
	if err != nil {
		return "", err
	}
	state.UpdateAfterPush(manifestDigest, plan.Index.FileDigests())
	if err := b.project.SaveState(state); err != nil {
		return "", err
	}

	b.l.Info("pushed bundle",
		zap.String("tag", plan.Tag),
		zap.Stringer("digest", manifestDigest),
		zap.Int("files", len(plan.Index.Files)),
	)
	return manifestDigest, nil
}

// Pull plans and applies a pull under the project lock
func (b *Bundle) Pull(ctx context.Context, ref model.BundleRef, opts PullOptions) (*PullPlan, error) {
	release, err := b.project.Lock()
	if err != nil {
		return nil, err
	}
	defer release()

	plan, err := b.PlanPull(ctx, ref, opts)
	if err != nil {
		return plan, err
	}
	return plan, b.ApplyPull(ctx, plan)
}

// ApplyPull executes a pull plan with mirror semantics: fetch through
// the cache, materialize, apply deletions, then move the tracked set and
// sync state to the remote file set.
//
// Every fetch goes by digest, so a tag moving between plan and apply
// cannot change what is pulled.
func (b *Bundle) ApplyPull(ctx context.Context, plan *PullPlan) error {
	if plan == nil {
		return status.ErrEmptyPlan
	}

	if err := b.fetchAll(ctx, plan.Fetches); err != nil {
		return err
	}

	// deletions happen after every fetch has landed
	for _, pth := range plan.Deletes {
		if err := os.Remove(b.project.NativePath(pth)); err != nil && !os.IsNotExist(err) {
			return err
		}
		b.l.Debug("deleted local file", zap.String("path", pth))
	}

	// the tracked set becomes exactly the remote file set
	tracked, err := b.project.LoadTracked()
	if err != nil {
		return err
	}
	remotePaths := make([]string, 0, len(plan.Index.Files))
	for pth := range plan.Index.Files {
		remotePaths = append(remotePaths, pth)
	}
	tracked.Replace(remotePaths)
	if err := b.project.SaveTracked(tracked); err != nil {
		return err
	}

	state, err := b.project.LoadState()
	if err != nil {
		return err
	}
	state.UpdateAfterPull(plan.ResolvedDigest, plan.Index.FileDigests())
	if err := b.project.SaveState(state); err != nil {
		return err
	}

	b.l.Info("pulled bundle",
		zap.Stringer("digest", plan.ResolvedDigest),
		zap.Int("fetched", len(plan.Fetches)),
		zap.Int("deleted", len(plan.Deletes)),
	)
	return nil
}

// fetchAll downloads entries through the cache with bounded parallelism
// and materializes them into the working tree
func (b *Bundle) fetchAll(ctx context.Context, entries []model.FileEntry) error {
	if len(entries) == 0 {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errC := make(chan error, len(entries))
	concurrencyControl := make(chan struct{}, b.concurrentTransfers)

	for _, e := range entries {
		wg.Add(1)
		go func(e model.FileEntry) {
			defer wg.Done()
			concurrencyControl <- struct{}{}
			defer func() {
				<-concurrencyControl
			}()

			if ctx.Err() != nil {
				return
			}
			if err := b.fetchOne(ctx, e); err != nil {
				errC <- err
				cancel()
			}
		}(e)
	}
	wg.Wait()
	close(errC)

	var err error
	for e := range errC {
		err = multierr.Append(err, e)
	}
	return err
}

// fetchOne ensures one entry is cached and materialized at its path
func (b *Bundle) fetchOne(ctx context.Context, e model.FileEntry) error {
	fetch := b.ociFetcher(e)
	if e.Storage == model.StorageBlob {
		if b.blobs == nil {
			return status.ErrConfig.WrapMessage(
				"bundle contains blob-stored files but no blob provider is configured")
		}
		fetch = b.blobFetcher(e)
	}

	if _, err := b.cache.EnsurePresent(ctx, e.Digest, fetch); err != nil {
		return err
	}
	return b.cache.Materialize(e.Digest, b.project.NativePath(e.Path), b.linkMode)
}

func (b *Bundle) ociFetcher(e model.FileEntry) func(context.Context, string) error {
	return func(ctx context.Context, tmpPath string) error {
		return registry.WithRetry(ctx, b.l, func() error {
			rdr, err := b.registry.GetBlob(ctx, e.Digest)
			if err != nil {
				return err
			}
			defer rdr.Close()
			return writeStream(tmpPath, rdr)
		})
	}
}

func (b *Bundle) blobFetcher(e model.FileEntry) func(context.Context, string) error {
	return func(ctx context.Context, tmpPath string) error {
		rdr, err := b.blobs.GetByDigest(ctx, e.Digest)
		if err != nil {
			return err
		}
		defer rdr.Close()
		return writeStream(tmpPath, rdr)
	}
}

// uploadBlobFiles pushes blob-stored files to the external store with
// bounded parallelism; puts are idempotent by digest
func (b *Bundle) uploadBlobFiles(ctx context.Context, entries []model.FileEntry) error {
	return b.uploadAll(ctx, entries, func(ctx context.Context, e model.FileEntry) error {
		f, err := os.Open(b.project.NativePath(e.Path))
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = b.blobs.PutByDigest(ctx, e.Digest, f)
		return err
	})
}

// uploadOCIFiles pushes layer blobs to the registry
func (b *Bundle) uploadOCIFiles(ctx context.Context, entries []model.FileEntry) error {
	return b.uploadAll(ctx, entries, func(ctx context.Context, e model.FileEntry) error {
		return registry.WithRetry(ctx, b.l, func() error {
			f, err := os.Open(b.project.NativePath(e.Path))
			if err != nil {
				return err
			}
			defer f.Close()
			return b.registry.PutBlob(ctx, e.Digest, e.Size, f)
		})
	})
}

func (b *Bundle) uploadAll(ctx context.Context, entries []model.FileEntry, up func(context.Context, model.FileEntry) error) error {
	if len(entries) == 0 {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errC := make(chan error, len(entries))
	concurrencyControl := make(chan struct{}, b.concurrentTransfers)

	for _, e := range entries {
		wg.Add(1)
		go func(e model.FileEntry) {
			defer wg.Done()
			concurrencyControl <- struct{}{}
			defer func() {
				<-concurrencyControl
			}()

			if ctx.Err() != nil {
				return
			}
			if err := up(ctx, e); err != nil {
				errC <- err
				cancel()
				return
			}
			b.l.Debug("uploaded", zap.String("path", e.Path), zap.Stringer("digest", e.Digest))
		}(e)
	}
	wg.Wait()
	close(errC)

	var err error
	for e := range errC {
		err = multierr.Append(err, e)
	}
	return err
}

func writeStream(pth string, rdr io.Reader) error {
	f, err := os.OpenFile(pth, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if _, err = io.Copy(f, rdr); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

