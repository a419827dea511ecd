package workspace

import (
	"os"
	"sort"
	"strings"

	"github.com/InstituteforDiseaseModeling/modelops-bundle/internal/atomicfile"
	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/model"
	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/workspace/status"
)

// TrackedSet is the ordered, de-duplicated set of project-relative paths
// the user has declared as belonging to the bundle. Persisted as a sorted
// text list, one POSIX path per line.
type TrackedSet struct {
	paths map[string]struct{}
	_     struct{}
}

// NewTrackedSet builds a set from paths (normalized to POSIX, validated)
func NewTrackedSet(paths ...string) (*TrackedSet, error) {
	ts := &TrackedSet{paths: make(map[string]struct{}, len(paths))}
	for _, pth := range paths {
		posix := model.ToPOSIX(pth)
		if err := model.ValidatePath(posix); err != nil {
			return nil, err
		}
		ts.paths[posix] = struct{}{}
	}
	return ts, nil
}

// LoadTracked reads the persisted tracked list, empty when absent
func (p *Project) LoadTracked() (*TrackedSet, error) {
	raw, err := os.ReadFile(p.trackedPath())
	if err != nil {
		if os.IsNotExist(err) {
			return &TrackedSet{paths: map[string]struct{}{}}, nil
		}
		return nil, err
	}
	ts := &TrackedSet{paths: map[string]struct{}{}}
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if err := model.ValidatePath(line); err != nil {
			return nil, err
		}
		ts.paths[line] = struct{}{}
	}
	return ts, nil
}

// SaveTracked persists the set atomically
func (p *Project) SaveTracked(ts *TrackedSet) error {
	var sb strings.Builder
	for _, pth := range ts.List() {
		sb.WriteString(pth)
		sb.WriteByte('\n')
	}
	return atomicfile.Write(p.trackedPath(), []byte(sb.String()), 0o644)
}

// Add declares paths as tracked. Paths matching the ignore rules are
// rejected unless force is set.
func (p *Project) Add(ts *TrackedSet, force bool, paths ...string) error {
	for _, pth := range paths {
		posix := model.ToPOSIX(pth)
		if err := model.ValidatePath(posix); err != nil {
			return err
		}
		if !force && p.matcher.IsIgnored(posix) {
			return status.ErrIgnored.WrapMessage(posix)
		}
		ts.paths[posix] = struct{}{}
	}
	return nil
}

// Remove drops paths from tracking. Idempotent.
func (ts *TrackedSet) Remove(paths ...string) {
	for _, pth := range paths {
		delete(ts.paths, model.ToPOSIX(pth))
	}
}

// Contains reports membership
func (ts *TrackedSet) Contains(pth string) bool {
	_, ok := ts.paths[pth]
	return ok
}

// Len is the number of tracked paths
func (ts *TrackedSet) Len() int {
	return len(ts.paths)
}

// List returns the tracked paths in lexicographic order
func (ts *TrackedSet) List() []string {
	out := make([]string, 0, len(ts.paths))
	for pth := range ts.paths {
		out = append(out, pth)
	}
	sort.Strings(out)
	return out
}

// Replace makes the set equal the given paths (pull mirror semantics)
func (ts *TrackedSet) Replace(paths []string) {
	ts.paths = make(map[string]struct{}, len(paths))
	for _, pth := range paths {
		ts.paths[model.ToPOSIX(pth)] = struct{}{}
	}
}
