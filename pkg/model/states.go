package model

// FileState classifies a path after the three-way diff of local snapshot,
// remote index and last-sync baseline.
type FileState uint

const (
	// FileUnchanged means local and remote hold the same content
	FileUnchanged FileState = iota
	// FileAddedLocal means the path exists only locally and was never synced
	FileAddedLocal
	// FileAddedRemote means the path exists only remotely
	FileAddedRemote
	// FileModifiedLocal means local changed against the baseline, remote did not
	FileModifiedLocal
	// FileModifiedRemote means remote changed against the baseline, local did not
	FileModifiedRemote
	// FileDeletedLocal means the path was synced, then removed locally
	FileDeletedLocal
	// FileDeletedRemote means the path was synced, then removed remotely
	FileDeletedRemote
	// FileConflict means local and remote diverged from the baseline
	FileConflict
	// FileUntracked means the path exists locally but is not tracked
	FileUntracked
)

func (s FileState) String() string {
	switch s {
	case FileUnchanged:
		return "unchanged"
	case FileAddedLocal:
		return "added_local"
	case FileAddedRemote:
		return "added_remote"
	case FileModifiedLocal:
		return "modified_local"
	case FileModifiedRemote:
		return "modified_remote"
	case FileDeletedLocal:
		return "deleted_local"
	case FileDeletedRemote:
		return "deleted_remote"
	case FileConflict:
		return "conflict"
	case FileUntracked:
		return "untracked"
	default:
		return "unknown"
	}
}

// BundleState is the observable sync state of a project against its remote
type BundleState uint

const (
	// BundleUnknown means the registry could not be reached
	BundleUnknown BundleState = iota
	// BundleClean means local, remote and baseline all agree
	BundleClean
	// BundleLocalChanges means only the working tree moved since last sync
	BundleLocalChanges
	// BundleBehind means only the remote moved since last sync
	BundleBehind
	// BundleAhead means local changes are staged for push and remote is still at the baseline
	BundleAhead
	// BundleDiverged means both sides moved since last sync
	BundleDiverged
)

func (s BundleState) String() string {
	switch s {
	case BundleClean:
		return "clean"
	case BundleLocalChanges:
		return "local_changes"
	case BundleBehind:
		return "behind"
	case BundleAhead:
		return "ahead"
	case BundleDiverged:
		return "diverged"
	default:
		return "unknown"
	}
}
