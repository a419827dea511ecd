package core

import (
	"context"

	"go.uber.org/zap"

	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/errors"
	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/model"
	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/registry"
	registrystatus "github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/registry/status"
)

// StatusReport is the observable sync state of the project plus the
// classified diff that produced it
type StatusReport struct {
	State model.BundleState
	Diff  Diff
	_     struct{}
}

// Status computes where the project stands against the remote tag. A
// registry that cannot be reached yields BundleUnknown rather than an
// error: status is a read-only convenience.
func (b *Bundle) Status(ctx context.Context, tag string) (StatusReport, error) {
	tag = b.tagOrDefault(tag)

	tracked, err := b.project.LoadTracked()
	if err != nil {
		return StatusReport{}, err
	}
	snap, err := b.project.TakeSnapshot(ctx, tracked)
	if err != nil {
		return StatusReport{}, err
	}
	state, err := b.project.LoadState()
	if err != nil {
		return StatusReport{}, err
	}

	remoteFiles := map[string]model.FileEntry{}
	err = registry.WithRetry(ctx, b.l, func() error {
		d, _, rerr := b.registry.ResolveTag(ctx, tag)
		if rerr != nil {
			return rerr
		}
		index, rerr := registry.FetchIndex(ctx, b.registry, d)
		if rerr != nil {
			return rerr
		}
		remoteFiles = index.Files
		return nil
	})
	switch {
	case err == nil, errors.Is(err, registrystatus.ErrNotFound):
		// an absent tag reads as an empty remote
	case errors.Is(err, registrystatus.ErrNetwork):
		b.l.Warn("registry unreachable, sync state unknown", zap.Error(err))
		return StatusReport{State: model.BundleUnknown}, nil
	default:
		return StatusReport{}, err
	}

	diff := ComputeDiff(snap, remoteFiles, state.LastSyncedFiles)
	bundleState := deriveState(diff)
	if bundleState == model.BundleLocalChanges && state.LastPushDigest != "" {
		// a push baseline exists, so local movement is work staged on top
		// of it
		bundleState = model.BundleAhead
	}
	return StatusReport{State: bundleState, Diff: diff}, nil
}

// deriveState folds the classified diff into the bundle-level state
// machine
func deriveState(diff Diff) model.BundleState {
	var localMoved, remoteMoved, conflicted bool
	for _, c := range diff.Changes {
		switch c.State {
		case model.FileAddedLocal, model.FileModifiedLocal, model.FileDeletedLocal:
			localMoved = true
		case model.FileAddedRemote, model.FileModifiedRemote, model.FileDeletedRemote:
			remoteMoved = true
		case model.FileConflict:
			conflicted = true
		}
	}

	switch {
	case conflicted, localMoved && remoteMoved:
		return model.BundleDiverged
	case localMoved:
		return model.BundleLocalChanges
	case remoteMoved:
		return model.BundleBehind
	default:
		return model.BundleClean
	}
}
