package workspace

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	digest "github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/dlogger"
	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/errors"
	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/workspace/status"
)

func testProject(t *testing.T) *Project {
	t.Helper()
	root := t.TempDir()
	p, err := Init(root, Logger(dlogger.MustGetLogger(dlogger.LogLevelNone)))
	require.NoError(t, err)
	return p
}

func writeProjectFile(t *testing.T, p *Project, pth, content string) {
	t.Helper()
	native := p.NativePath(pth)
	require.NoError(t, os.MkdirAll(filepath.Dir(native), 0o755))
	require.NoError(t, os.WriteFile(native, []byte(content), 0o644))
}

func TestInitOpen(t *testing.T) {
	root := t.TempDir()
	_, err := Open(root)
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrNotAProject))

	p, err := Init(root)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(p.Root(), MetadataDir, ConfigFile), p.ConfigPath())

	_, err = Init(root)
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrAlreadyInitialized))

	_, err = Open(root)
	require.NoError(t, err)
}

func TestProjectLock(t *testing.T) {
	p := testProject(t)

	release, err := p.Lock()
	require.NoError(t, err)

	// flock locks belong to the open file, not the process: a second
	// flock handle in the same process still conflicts
	_, err = p.Lock()
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrProjectBusy))

	release()
	release2, err := p.Lock()
	require.NoError(t, err)
	release2()
}

func TestInventory(t *testing.T) {
	p := testProject(t)
	writeProjectFile(t, p, "src/model.py", "print()")
	writeProjectFile(t, p, "data/x.csv", "a,b\n1,2\n")
	writeProjectFile(t, p, "junk.pyc", "bytecode")
	writeProjectFile(t, p, ".git/config", "noise")

	entries, err := p.Inventory()
	require.NoError(t, err)

	var paths []string
	for _, e := range entries {
		paths = append(paths, e.Path)
	}
	// metadata dir, VCS dir and python bytecode are excluded; order is sorted
	assert.Equal(t, []string{"data/x.csv", "src/model.py"}, paths)
	assert.EqualValues(t, 8, entries[0].Size)
}

func TestTrackedRoundTrip(t *testing.T) {
	p := testProject(t)

	ts, err := p.LoadTracked()
	require.NoError(t, err)
	assert.Zero(t, ts.Len())

	require.NoError(t, p.Add(ts, false, "src/model.py", "data/x.csv", "src/model.py"))
	assert.Equal(t, []string{"data/x.csv", "src/model.py"}, ts.List())

	require.NoError(t, p.SaveTracked(ts))

	raw, err := os.ReadFile(filepath.Join(p.Root(), MetadataDir, TrackedFile))
	require.NoError(t, err)
	assert.Equal(t, "data/x.csv\nsrc/model.py\n", string(raw))

	loaded, err := p.LoadTracked()
	require.NoError(t, err)
	assert.Equal(t, ts.List(), loaded.List())

	loaded.Remove("data/x.csv", "not/tracked.txt")
	assert.Equal(t, []string{"src/model.py"}, loaded.List())
}

func TestAddIgnoredNeedsForce(t *testing.T) {
	p := testProject(t)
	ts, err := p.LoadTracked()
	require.NoError(t, err)

	err = p.Add(ts, false, "cache.pyc")
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrIgnored))
	assert.False(t, ts.Contains("cache.pyc"))

	require.NoError(t, p.Add(ts, true, "cache.pyc"))
	assert.True(t, ts.Contains("cache.pyc"))
}

func TestSnapshot(t *testing.T) {
	p := testProject(t)
	writeProjectFile(t, p, "src/model.py", "print('hi')")
	writeProjectFile(t, p, "data/x.csv", "a,b\n")

	ts, err := NewTrackedSet("src/model.py", "data/x.csv", "gone/file.bin")
	require.NoError(t, err)

	snap, err := p.TakeSnapshot(context.Background(), ts)
	require.NoError(t, err)

	assert.Equal(t, []string{"gone/file.bin"}, snap.Missing)
	require.Len(t, snap.Files, 2)
	assert.Equal(t, digest.FromString("print('hi')"), snap.Files["src/model.py"].Digest)
	assert.EqualValues(t, 11, snap.Files["src/model.py"].Size)
	assert.Equal(t, snap.Files["data/x.csv"].Digest, snap.Digests()["data/x.csv"])
}

func TestSyncStateRoundTrip(t *testing.T) {
	p := testProject(t)

	st, err := p.LoadState()
	require.NoError(t, err)
	assert.Empty(t, st.LastSyncedFiles)

	manifest := digest.FromString("manifest")
	st.UpdateAfterPush(manifest, map[string]digest.Digest{
		"src/model.py": digest.FromString("content"),
	})
	require.NoError(t, p.SaveState(st))

	loaded, err := p.LoadState()
	require.NoError(t, err)
	assert.Equal(t, manifest, loaded.LastPushDigest)
	assert.Equal(t, digest.FromString("content"), loaded.LastSyncedFiles["src/model.py"])
	assert.Empty(t, loaded.LastPullDigest)
}

func TestSyncStateRejectsCorruption(t *testing.T) {
	p := testProject(t)
	require.NoError(t, os.WriteFile(p.statePath(),
		[]byte(`{"last_push_digest": "sha256:nope", "last_synced_files": {}}`), 0o644))
	_, err := p.LoadState()
	assert.Error(t, err)
}
