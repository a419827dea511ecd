package workspace

import (
	"context"
	stderr "errors"
	"os"
	"runtime"
	"sort"
	"sync"

	digest "github.com/opencontainers/go-digest"
	"go.uber.org/zap"

	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/fingerprint"
	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/model"
	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/workspace/status"
)

// Snapshot holds the hashed state of the tracked files that exist on
// disk, plus the tracked paths that are missing.
type Snapshot struct {
	Files   map[string]model.SnapshotEntry
	Missing []string
	_       struct{}
}

// Digests flattens the snapshot to the path-to-digest map the diff
// engine consumes
func (s *Snapshot) Digests() map[string]digest.Digest {
	out := make(map[string]digest.Digest, len(s.Files))
	for pth, e := range s.Files {
		out[pth] = e.Digest
	}
	return out
}

type snapshotResult struct {
	entry   model.SnapshotEntry
	missing string
	err     error
}

// TakeSnapshot hashes every tracked file present on disk, in parallel
// bounded by the logical CPU count. Tracked paths absent from disk are
// reported as missing; any other read failure fails the snapshot.
func (p *Project) TakeSnapshot(ctx context.Context, ts *TrackedSet) (*Snapshot, error) {
	paths := ts.List()

	hasher := fingerprint.New(fingerprint.Root(p.root))
	results := make(chan snapshotResult, len(paths))
	concurrencyControl := make(chan struct{}, runtime.NumCPU())

	var wg sync.WaitGroup
	for _, pth := range paths {
		wg.Add(1)
		go func(pth string) {
			defer wg.Done()
			concurrencyControl <- struct{}{}
			defer func() {
				<-concurrencyControl
			}()

			if ctx.Err() != nil {
				results <- snapshotResult{err: ctx.Err()}
				return
			}

			d, size, err := hasher.Process(p.NativePath(pth))
			if err != nil {
				if stderr.Is(err, os.ErrNotExist) {
					results <- snapshotResult{missing: pth}
					return
				}
				results <- snapshotResult{err: status.ErrUnreadable.Wrap(err)}
				return
			}
			results <- snapshotResult{entry: model.SnapshotEntry{Path: pth, Digest: d, Size: size}}
		}(pth)
	}
	wg.Wait()
	close(results)

	snap := &Snapshot{Files: make(map[string]model.SnapshotEntry, len(paths))}
	for r := range results {
		switch {
		case r.err != nil:
			return nil, r.err
		case r.missing != "":
			snap.Missing = append(snap.Missing, r.missing)
		default:
			snap.Files[r.entry.Path] = r.entry
		}
	}
	sort.Strings(snap.Missing)

	p.l.Debug("tracked snapshot",
		zap.Int("hashed", len(snap.Files)),
		zap.Int("missing", len(snap.Missing)),
	)
	return snap, nil
}
