package core

import (
	"sort"

	digest "github.com/opencontainers/go-digest"

	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/model"
	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/workspace"
)

// Change is the classification of one path after the three-way diff
type Change struct {
	Path       string
	State      model.FileState
	Local      *model.SnapshotEntry
	Remote     *model.FileEntry
	LastSynced digest.Digest // zero when the path was never synced
	_          struct{}
}

// Diff is the classified change set over local ∪ remote ∪ baseline
type Diff struct {
	Changes []Change
	_       struct{}
}

// ByState buckets change paths per state
func (d Diff) ByState() map[model.FileState][]string {
	out := map[model.FileState][]string{}
	for _, c := range d.Changes {
		out[c.State] = append(out[c.State], c.Path)
	}
	return out
}

// ComputeDiff classifies every path in the union of the local snapshot,
// the remote index and the last-sync baseline. Equality is digest
// equality throughout.
func ComputeDiff(local *workspace.Snapshot, remote map[string]model.FileEntry, lastSynced map[string]digest.Digest) Diff {
	missing := make(map[string]struct{}, len(local.Missing))
	for _, pth := range local.Missing {
		missing[pth] = struct{}{}
	}

	paths := map[string]struct{}{}
	for pth := range local.Files {
		paths[pth] = struct{}{}
	}
	for pth := range remote {
		paths[pth] = struct{}{}
	}
	for pth := range lastSynced {
		paths[pth] = struct{}{}
	}
	for pth := range missing {
		paths[pth] = struct{}{}
	}

	var changes []Change
	for pth := range paths {
		var change Change
		change.Path = pth
		change.LastSynced = lastSynced[pth]

		if e, ok := local.Files[pth]; ok {
			entry := e
			change.Local = &entry
		}
		if e, ok := remote[pth]; ok {
			entry := e
			change.Remote = &entry
		}

		if _, gone := missing[pth]; gone {
			change.Local = nil
			change.State = classifyMissingLocal(change.Remote, change.LastSynced)
			if change.State == skipState {
				continue
			}
		} else {
			change.State = classify(change.Local, change.Remote, change.LastSynced)
			if change.State == skipState {
				continue
			}
		}
		changes = append(changes, change)
	}

	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })
	return Diff{Changes: changes}
}

// skipState marks paths dropped from the result (tracked, never synced,
// already gone from disk)
const skipState = model.FileState(^uint(0))

// classifyMissingLocal handles tracked paths absent from disk
func classifyMissingLocal(remote *model.FileEntry, lastSynced digest.Digest) model.FileState {
	if lastSynced == "" {
		// added then deleted before ever syncing: nothing to report
		return skipState
	}
	if remote != nil && remote.Digest != lastSynced {
		// remote moved, local deleted
		return model.FileConflict
	}
	if remote == nil {
		// deleted on both sides
		return model.FileUnchanged
	}
	return model.FileDeletedLocal
}

func classify(local *model.SnapshotEntry, remote *model.FileEntry, lastSynced digest.Digest) model.FileState {
	switch {
	case local != nil && remote != nil:
		if local.Digest == remote.Digest {
			// includes the added-both-same case with no baseline
			return model.FileUnchanged
		}
		if lastSynced == "" {
			// no baseline to arbitrate: conservative conflict
			return model.FileConflict
		}
		switch {
		case local.Digest == lastSynced:
			return model.FileModifiedRemote
		case remote.Digest == lastSynced:
			return model.FileModifiedLocal
		default:
			return model.FileConflict
		}

	case local != nil:
		if lastSynced == "" {
			return model.FileAddedLocal
		}
		if local.Digest == lastSynced {
			return model.FileDeletedRemote
		}
		// modified locally, deleted remotely
		return model.FileConflict

	case remote != nil:
		if lastSynced == "" {
			return model.FileAddedRemote
		}
		if remote.Digest == lastSynced {
			return model.FileDeletedLocal
		}
		return model.FileConflict

	default:
		// only the baseline remembers it: deleted on both sides
		return model.FileUnchanged
	}
}
