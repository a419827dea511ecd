package core

import (
	"context"
	"fmt"
	"os"
	"time"

	digest "github.com/opencontainers/go-digest"
	"go.uber.org/zap"

	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/core/status"
	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/errors"
	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/model"
	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/registry"
	registrystatus "github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/registry/status"
)

// PushPlan is the immutable decision record of a push: resolved digests,
// upload lists and the new manifest, computed before anything is written.
type PushPlan struct {
	Tag string

	// BaseDigest is the tag's digest at plan time, zero when the tag did
	// not exist. Apply re-checks it before moving the tag.
	BaseDigest digest.Digest

	Index         *model.BundleIndex
	ManifestBytes []byte

	UploadsOCI  []model.FileEntry
	UploadsBlob []model.FileEntry
	Unchanged   []string
	Deletes     []string

	TotalUploadBytes int64

	// NoOp is set when the remote already equals the local tracked set
	NoOp bool
	_    struct{}
}

// PullOptions tune pull semantics
type PullOptions struct {
	// Overwrite allows the pull to replace modified local files, resolve
	// conflicts in the remote's favor and delete remotely-removed files
	Overwrite bool

	// Mirror additionally deletes local tracked additions so the working
	// tree exactly matches the remote
	Mirror bool
	_      struct{}
}

// PullPlan is the immutable decision record of a pull
type PullPlan struct {
	Ref            model.BundleRef
	ResolvedDigest digest.Digest
	Index          *model.BundleIndex

	Fetches []model.FileEntry
	Deletes []string

	// safety diagnostics: any non-empty list fails the plan unless
	// overwrite is set
	Conflicts           []string
	LocalModifications  []string
	RemoteDeletions     []string
	UntrackedCollisions []string

	TotalDownloadBytes int64
	Options            PullOptions
	_                  struct{}
}

// PlanPush computes a push plan for the tag. The plan fails with
// ErrTagMoved when the tag has moved since the last sync and force is not
// set, and with a configuration error when the policy routes a file to
// blob storage without a provider. Nothing is uploaded here.
func (b *Bundle) PlanPush(ctx context.Context, tag string, force bool) (*PushPlan, error) {
	tag = b.tagOrDefault(tag)

	tracked, err := b.project.LoadTracked()
	if err != nil {
		return nil, err
	}
	snap, err := b.project.TakeSnapshot(ctx, tracked)
	if err != nil {
		return nil, err
	}
	state, err := b.project.LoadState()
	if err != nil {
		return nil, err
	}

	// resolve the tag's current position; an absent tag is a first push
	var previous digest.Digest
	var remoteFiles map[string]model.FileEntry
	err = registry.WithRetry(ctx, b.l, func() error {
		d, _, rerr := b.registry.ResolveTag(ctx, tag)
		if rerr != nil {
			return rerr
		}
		previous = d
		return nil
	})
	switch {
	case err == nil:
		index, ferr := registry.FetchIndex(ctx, b.registry, previous)
		if ferr != nil {
			return nil, ferr
		}
		remoteFiles = index.Files
	case errors.Is(err, registrystatus.ErrNotFound):
		remoteFiles = map[string]model.FileEntry{}
	default:
		return nil, err
	}

	// the tag must still be where this project last saw it, whether that
	// was a push or a pull
	if previous != state.LastPushDigest && previous != state.LastPullDigest && !force {
		return nil, status.ErrTagMoved.WrapMessage(
			"tag " + tag + " is at " + shortDigest(previous) + ", last sync was " + shortDigest(state.LastPushDigest))
	}

	diff := ComputeDiff(snap, remoteFiles, state.LastSyncedFiles)

	plan := &PushPlan{Tag: tag, BaseDigest: previous}

	// mirror semantics: the new remote is exactly the local tracked set
	var entries []model.FileEntry
	for _, c := range diff.Changes {
		switch {
		case c.State == model.FileDeletedLocal:
			plan.Deletes = append(plan.Deletes, c.Path)
			continue
		case c.Local == nil:
			continue
		}

		entry, err := b.classifyEntry(c.Local)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)

		if c.State == model.FileUnchanged {
			plan.Unchanged = append(plan.Unchanged, c.Path)
			continue
		}
		if c.Remote != nil && c.Remote.Digest == entry.Digest {
			continue
		}
		if entry.Storage == model.StorageBlob {
			// skip blobs the store already holds (content addressing)
			exists, eerr := b.blobs.ExistsByDigest(ctx, entry.Digest)
			if eerr != nil {
				return nil, eerr
			}
			if exists {
				continue
			}
			plan.UploadsBlob = append(plan.UploadsBlob, entry)
		} else {
			plan.UploadsOCI = append(plan.UploadsOCI, entry)
		}
		plan.TotalUploadBytes += entry.Size
	}

	index, err := model.NewBundleIndex(b.tool, time.Now(), entries)
	if err != nil {
		return nil, err
	}
	plan.Index = index

	plan.ManifestBytes, err = registry.BuildManifest(index, time.Now())
	if err != nil {
		return nil, err
	}

	if previous != "" && len(plan.UploadsOCI) == 0 && len(plan.UploadsBlob) == 0 &&
		len(plan.Deletes) == 0 && sameFileSet(index.FileDigests(), remoteFileDigests(remoteFiles)) {
		plan.NoOp = true
	}

	b.l.Debug("push plan",
		zap.String("tag", tag),
		zap.Int("uploads_oci", len(plan.UploadsOCI)),
		zap.Int("uploads_blob", len(plan.UploadsBlob)),
		zap.Int("unchanged", len(plan.Unchanged)),
		zap.Int("deletes", len(plan.Deletes)),
		zap.Bool("noop", plan.NoOp),
	)
	return plan, nil
}

// classifyEntry routes a snapshot entry through the storage policy and,
// for blob storage, derives the content-addressed URI. A blob verdict
// with no provider configured fails here, at plan time.
func (b *Bundle) classifyEntry(e *model.SnapshotEntry) (model.FileEntry, error) {
	st, err := b.pol.Classify(e.Path, e.Size)
	if err != nil {
		return model.FileEntry{}, err
	}
	if b.pol.Oversized(e.Size) {
		b.l.Warn("file exceeds blob threshold but no provider is configured, storing as OCI layer",
			zap.String("path", e.Path),
			zap.Int64("size", e.Size),
		)
	}
	entry := model.FileEntry{
		Path:    e.Path,
		Digest:  e.Digest,
		Size:    e.Size,
		Storage: st,
	}
	if st == model.StorageBlob {
		if b.blobs == nil {
			return model.FileEntry{}, status.ErrConfig.WrapMessage(
				"blob provider configured but no blob store attached")
		}
		uri, err := b.blobs.BuildURI(e.Digest)
		if err != nil {
			return model.FileEntry{}, err
		}
		entry.BlobRef = &model.BlobRef{URI: uri}
	}
	return entry, nil
}

// PlanPull computes a pull plan for the ref. Unless Overwrite is set the
// plan fails with ErrSafetyGuard when applying it would destroy local
// state; the returned plan still carries the diagnostics.
func (b *Bundle) PlanPull(ctx context.Context, ref model.BundleRef, opts PullOptions) (*PullPlan, error) {
	if ref == "" {
		ref = model.BundleRef(b.cfg.DefaultTag)
	}

	var resolved digest.Digest
	if ref.IsDigest() {
		d, err := ref.Digest()
		if err != nil {
			return nil, status.ErrInvalidInput.Wrap(err)
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
			return nil, err
		}
	}

	index, err := registry.FetchIndex(ctx, b.registry, resolved)
	if err != nil {
		return nil, err
	}

	tracked, err := b.project.LoadTracked()
	if err != nil {
		return nil, err
	}
	snap, err := b.project.TakeSnapshot(ctx, tracked)
	if err != nil {
		return nil, err
	}
	state, err := b.project.LoadState()
	if err != nil {
		return nil, err
	}

	diff := ComputeDiff(snap, index.Files, state.LastSyncedFiles)

	plan := &PullPlan{
		Ref:            ref,
		ResolvedDigest: resolved,
		Index:          index,
		Options:        opts,
	}

	for _, c := range diff.Changes {
		switch c.State {
		case model.FileAddedRemote, model.FileModifiedRemote:
			plan.addFetch(index.Files[c.Path])
			if c.State == model.FileModifiedRemote {
				// remote moved while local stayed at the baseline
				continue
			}
			// a remote addition landing on an existing untracked local
			// file is destructive
			if c.Local == nil && !tracked.Contains(c.Path) {
				if b.collidesWithUntracked(c.Path) {
					plan.UntrackedCollisions = append(plan.UntrackedCollisions, c.Path)
				}
			}

		case model.FileDeletedLocal:
			// restore: the file is absent locally and unchanged remotely
			plan.addFetch(index.Files[c.Path])

		case model.FileModifiedLocal:
			plan.LocalModifications = append(plan.LocalModifications, c.Path)
			if opts.Overwrite {
				plan.addFetch(index.Files[c.Path])
			}

		case model.FileConflict:
			plan.Conflicts = append(plan.Conflicts, c.Path)
			if opts.Overwrite {
				if remote, ok := index.Files[c.Path]; ok {
					plan.addFetch(remote)
				} else if c.Local != nil {
					// remote deleted, local modified: overwrite deletes
					plan.Deletes = append(plan.Deletes, c.Path)
				}
			}

		case model.FileDeletedRemote:
			plan.RemoteDeletions = append(plan.RemoteDeletions, c.Path)
			if opts.Overwrite {
				plan.Deletes = append(plan.Deletes, c.Path)
			}

		case model.FileAddedLocal:
			// preserved unless mirroring
			if opts.Mirror {
				plan.Deletes = append(plan.Deletes, c.Path)
			}
		}
	}

	if !opts.Overwrite && plan.destructive() {
		return plan, status.ErrSafetyGuard.WrapMessage(plan.safetySummary())
	}

	b.l.Debug("pull plan",
		zap.Stringer("resolved", resolved),
		zap.Int("fetches", len(plan.Fetches)),
		zap.Int("deletes", len(plan.Deletes)),
	)
	return plan, nil
}

func (p *PullPlan) addFetch(e model.FileEntry) {
	p.Fetches = append(p.Fetches, e)
	p.TotalDownloadBytes += e.Size
}

func (p *PullPlan) destructive() bool {
	return len(p.Conflicts) > 0 ||
		len(p.LocalModifications) > 0 ||
		len(p.RemoteDeletions) > 0 ||
		len(p.UntrackedCollisions) > 0
}

func (p *PullPlan) safetySummary() string {
	return fmt.Sprintf("conflicts: %d, locally modified: %d, remote deletions: %d, untracked collisions: %d",
		len(p.Conflicts), len(p.LocalModifications), len(p.RemoteDeletions), len(p.UntrackedCollisions))
}

// collidesWithUntracked reports whether a remote path lands on an
// existing, un-ignored local file outside the tracked set
func (b *Bundle) collidesWithUntracked(pth string) bool {
	if b.project.Ignore().IsIgnored(pth) {
		return false
	}
	_, err := os.Stat(b.project.NativePath(pth))
	return err == nil
}

func sameFileSet(a, bb map[string]digest.Digest) bool {
	if len(a) != len(bb) {
		return false
	}
	for pth, d := range a {
		if bb[pth] != d {
			return false
		}
	}
	return true
}

func remoteFileDigests(files map[string]model.FileEntry) map[string]digest.Digest {
	out := make(map[string]digest.Digest, len(files))
	for pth, e := range files {
		out[pth] = e.Digest
	}
	return out
}

func shortDigest(d digest.Digest) string {
	if d == "" {
		return "(none)"
	}
	s := d.String()
	if len(s) > 19 {
		return s[:19]
	}
	return s
}
