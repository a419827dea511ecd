package workspace

import (
	"fmt"
	"os"
	"time"

	jsoniter "github.com/json-iterator/go"
	digest "github.com/opencontainers/go-digest"

	"github.com/InstituteforDiseaseModeling/modelops-bundle/internal/atomicfile"
	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/model"
)

var stateJSON = jsoniter.Config{
	SortMapKeys:   true,
	IndentionStep: 2,
}.Froze()

// SyncState records the last successful push and pull. It is the baseline
// of the three-way diff and is only ever written atomically, after all
// content operations of a push or pull have succeeded.
type SyncState struct {
	LastPushDigest  digest.Digest            `json:"last_push_digest,omitempty"`
	LastPullDigest  digest.Digest            `json:"last_pull_digest,omitempty"`
	LastSyncedFiles map[string]digest.Digest `json:"last_synced_files"`
	Timestamp       time.Time                `json:"timestamp"`
	_               struct{}
}

// NewSyncState returns an empty state
func NewSyncState() *SyncState {
	return &SyncState{LastSyncedFiles: map[string]digest.Digest{}}
}

// LoadState reads the persisted sync state, empty when absent
func (p *Project) LoadState() (*SyncState, error) {
	raw, err := os.ReadFile(p.statePath())
	if err != nil {
		if os.IsNotExist(err) {
			return NewSyncState(), nil
		}
		return nil, err
	}
	var st SyncState
	if err := stateJSON.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("parsing sync state: %w", err)
	}
	if st.LastSyncedFiles == nil {
		st.LastSyncedFiles = map[string]digest.Digest{}
	}
	if err := st.validate(); err != nil {
		return nil, err
	}
	return &st, nil
}

// SaveState persists the state atomically
func (p *Project) SaveState(st *SyncState) error {
	if err := st.validate(); err != nil {
		return err
	}
	raw, err := stateJSON.Marshal(st)
	if err != nil {
		return err
	}
	return atomicfile.Write(p.statePath(), raw, 0o644)
}

func (st *SyncState) validate() error {
	if st.LastPushDigest != "" {
		if err := model.ValidateDigest(st.LastPushDigest); err != nil {
			return err
		}
	}
	if st.LastPullDigest != "" {
		if err := model.ValidateDigest(st.LastPullDigest); err != nil {
			return err
		}
	}
	for pth, d := range st.LastSyncedFiles {
		if err := model.ValidatePath(pth); err != nil {
			return err
		}
		if err := model.ValidateDigest(d); err != nil {
			return err
		}
	}
	return nil
}

// UpdateAfterPush replaces the baseline with the pushed file set
func (st *SyncState) UpdateAfterPush(manifestDigest digest.Digest, files map[string]digest.Digest) {
	st.LastPushDigest = manifestDigest
	st.Timestamp = time.Now().UTC()
	st.LastSyncedFiles = make(map[string]digest.Digest, len(files))
	for pth, d := range files {
		st.LastSyncedFiles[pth] = d
	}
}

// UpdateAfterPull replaces the baseline with the pulled file set
func (st *SyncState) UpdateAfterPull(manifestDigest digest.Digest, files map[string]digest.Digest) {
	st.LastPullDigest = manifestDigest
	st.Timestamp = time.Now().UTC()
	st.LastSyncedFiles = make(map[string]digest.Digest, len(files))
	for pth, d := range files {
		st.LastSyncedFiles[pth] = d
	}
}
