package core

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	units "github.com/docker/go-units"
	digest "github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/cafs"
	cafsstatus "github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/cafs/status"
	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/config"
	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/core/status"
	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/dlogger"
	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/errors"
	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/model"
	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/registry/mocks"
	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/storage/localfs"
	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/workspace"
)

type harness struct {
	bundle   *Bundle
	project  *workspace.Project
	registry *mocks.Registry
	cfg      *config.Config
}

type harnessOpt func(*config.Config, *testing.T)

func withBlobProvider(blobDir string) harnessOpt {
	return func(c *config.Config, t *testing.T) {
		c.Storage.Provider = config.ProviderFS
		c.Storage.Container = blobDir
	}
}

func withThreshold(n int64) harnessOpt {
	return func(c *config.Config, t *testing.T) {
		c.Storage.ThresholdBytes = n
	}
}

func newHarness(t *testing.T, reg *mocks.Registry, opts ...harnessOpt) *harness {
	t.Helper()

	p, err := workspace.Init(t.TempDir(), workspace.Logger(dlogger.MustGetLogger(dlogger.LogLevelNone)))
	require.NoError(t, err)

	cfg := config.New("localhost:5555/p")
	cfg.CacheDir = t.TempDir()
	// copy mode keeps pulled files writable (hardlinks share the cache
	// object's read-only inode)
	cfg.CacheLinkMode = "copy"
	for _, apply := range opts {
		apply(cfg, t)
	}

	cache, err := cafs.New(cafs.Root(cfg.CacheDir), cafs.Logger(dlogger.MustGetLogger(dlogger.LogLevelNone)))
	require.NoError(t, err)

	bopts := []Option{
		Project(p),
		Config(cfg),
		Registry(reg),
		Cache(cache),
		Logger(dlogger.MustGetLogger(dlogger.LogLevelNone)),
	}
	if cfg.HasBlobProvider() {
		bopts = append(bopts, BlobStore(localfs.New(cfg.Storage.Container)))
	}

	b, err := New(bopts...)
	require.NoError(t, err)
	return &harness{bundle: b, project: p, registry: reg, cfg: cfg}
}

func (h *harness) write(t *testing.T, pth, content string) {
	t.Helper()
	native := h.project.NativePath(pth)
	require.NoError(t, os.MkdirAll(filepath.Dir(native), 0o755))
	require.NoError(t, os.WriteFile(native, []byte(content), 0o644))
}

func (h *harness) track(t *testing.T, paths ...string) {
	t.Helper()
	ts, err := h.project.LoadTracked()
	require.NoError(t, err)
	require.NoError(t, h.project.Add(ts, false, paths...))
	require.NoError(t, h.project.SaveTracked(ts))
}

func (h *harness) read(t *testing.T, pth string) string {
	t.Helper()
	raw, err := os.ReadFile(h.project.NativePath(pth))
	require.NoError(t, err)
	return string(raw)
}

// Scenario A: first push of a small project, everything inline
func TestPushSmallProject(t *testing.T) {
	h := newHarness(t, mocks.New())
	h.write(t, "src/model.py", "print('model')")
	h.write(t, "data/x.csv", "a,b\n1,2\n")
	h.track(t, "src/model.py", "data/x.csv")

	pushed, err := h.bundle.Push(context.Background(), "", false)
	require.NoError(t, err)

	resolved, _, err := h.registry.ResolveTag(context.Background(), "latest")
	require.NoError(t, err)
	assert.Equal(t, pushed, resolved)

	m, err := h.registry.GetManifest(context.Background(), pushed)
	require.NoError(t, err)
	require.Len(t, m.Layers, 2)
	assert.Equal(t, model.BundleIndexMediaType, m.Config.MediaType)

	// the index round-trips with both entries inline
	index := fetchIndex(t, h, pushed)
	require.Len(t, index.Files, 2)
	for _, e := range index.Files {
		assert.Equal(t, model.StorageOCI, e.Storage)
		assert.Nil(t, e.BlobRef)
	}

	// sync state reflects the pushed set
	state, err := h.project.LoadState()
	require.NoError(t, err)
	assert.Equal(t, pushed, state.LastPushDigest)
	assert.Equal(t, digest.FromString("print('model')"), state.LastSyncedFiles["src/model.py"])
	assert.Equal(t, digest.FromString("a,b\n1,2\n"), state.LastSyncedFiles["data/x.csv"])
}

// Scenario B: a file over the threshold goes to the blob store and stays
// out of the layer list
func TestPushHybridStorage(t *testing.T) {
	blobDir := t.TempDir()
	h := newHarness(t, mocks.New(), withBlobProvider(blobDir), withThreshold(1*units.KiB))

	h.write(t, "src/model.py", "print('model')")
	h.write(t, "data/x.csv", "a,b\n")
	big := make([]byte, 4*units.KiB)
	for i := range big {
		big[i] = byte(i)
	}
	h.write(t, "data/weights.bin", string(big))
	h.track(t, "src/model.py", "data/x.csv", "data/weights.bin")

	pushed, err := h.bundle.Push(context.Background(), "", false)
	require.NoError(t, err)

	m, err := h.registry.GetManifest(context.Background(), pushed)
	require.NoError(t, err)
	assert.Len(t, m.Layers, 2, "the blob file must not become a layer")

	index := fetchIndex(t, h, pushed)
	require.Len(t, index.Files, 3)
	weights := index.Files["data/weights.bin"]
	assert.Equal(t, model.StorageBlob, weights.Storage)
	require.NotNil(t, weights.BlobRef)
	s0, s1, hex := model.DigestShards(weights.Digest)
	assert.Equal(t, "fs://"+blobDir+"/"+s0+"/"+s1+"/"+hex, weights.BlobRef.URI)

	// the blob actually landed in the store, sharded by digest
	_, err = os.Stat(filepath.Join(blobDir, s0, s1, hex))
	require.NoError(t, err)
}

// Scenario C: the tag moved between this client's last sync and its next
// push; the plan is rejected before anything is uploaded
func TestPushTagRace(t *testing.T) {
	reg := mocks.New()

	a := newHarness(t, reg)
	a.write(t, "src/model.py", "version 1")
	a.track(t, "src/model.py")
	_, err := a.bundle.Push(context.Background(), "", false)
	require.NoError(t, err)

	// client B pulls the bundle and establishes a baseline
	b := newHarness(t, reg)
	_, err = b.bundle.Pull(context.Background(), "", PullOptions{})
	require.NoError(t, err)

	// A pushes again, moving the tag past B's baseline
	a.write(t, "src/model.py", "version 2")
	_, err = a.bundle.Push(context.Background(), "", false)
	require.NoError(t, err)

	// B's push now fails the plan with TagMoved and uploads nothing
	b.write(t, "src/other.py", "new file")
	b.track(t, "src/other.py")
	before := b.registry.BlobPuts
	_, err = b.bundle.Push(context.Background(), "", false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrTagMoved))
	assert.Equal(t, status.ExitTagMoved, status.ExitCode(err))
	assert.Equal(t, before, b.registry.BlobPuts)

	// force overrides
	_, err = b.bundle.Push(context.Background(), "", true)
	require.NoError(t, err)
}

// Scenario D: conflicting edits trip the safety guard; no local file is
// touched
func TestPullSafetyGuard(t *testing.T) {
	reg := mocks.New()

	a := newHarness(t, reg)
	a.write(t, "src/model.py", "original")
	a.track(t, "src/model.py")
	_, err := a.bundle.Push(context.Background(), "", false)
	require.NoError(t, err)

	b := newHarness(t, reg)
	_, err = b.bundle.Pull(context.Background(), "", PullOptions{})
	require.NoError(t, err)

	// both sides edit the same file
	a.write(t, "src/model.py", "remote edit")
	_, err = a.bundle.Push(context.Background(), "", false)
	require.NoError(t, err)
	b.write(t, "src/model.py", "local edit")

	plan, err := b.bundle.Pull(context.Background(), "", PullOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrSafetyGuard))
	assert.Equal(t, status.ExitSafetyGuard, status.ExitCode(err))
	require.NotNil(t, plan)
	assert.Equal(t, []string{"src/model.py"}, plan.Conflicts)
	assert.Equal(t, "local edit", b.read(t, "src/model.py"))

	// overwrite lets the remote win
	_, err = b.bundle.Pull(context.Background(), "", PullOptions{Overwrite: true})
	require.NoError(t, err)
	assert.Equal(t, "remote edit", b.read(t, "src/model.py"))
}

// Scenario F: registry-side corruption is detected at fetch time, the
// cache stays clean and the error maps to the digest-mismatch exit code
func TestPullDigestMismatch(t *testing.T) {
	reg := mocks.New()

	a := newHarness(t, reg)
	a.write(t, "src/model.py", "true content")
	a.track(t, "src/model.py")
	_, err := a.bundle.Push(context.Background(), "", false)
	require.NoError(t, err)

	reg.CorruptBlob(digest.FromString("true content"), []byte("tampered"))

	b := newHarness(t, reg)
	_, err = b.bundle.Pull(context.Background(), "", PullOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, cafsstatus.ErrDigestMismatch))
	assert.Equal(t, status.ExitDigestMismatch, status.ExitCode(err))

	// nothing was materialized
	_, err = os.Stat(b.project.NativePath("src/model.py"))
	assert.True(t, os.IsNotExist(err))
}

// Property 8: an empty bundle pushes fine
func TestPushEmptyBundle(t *testing.T) {
	h := newHarness(t, mocks.New())

	pushed, err := h.bundle.Push(context.Background(), "", false)
	require.NoError(t, err)

	index := fetchIndex(t, h, pushed)
	assert.Empty(t, index.Files)

	state, err := h.project.LoadState()
	require.NoError(t, err)
	assert.Equal(t, pushed, state.LastPushDigest)
}

// Properties 6 and 7: push then pull reproduces the exact file set
func TestPushPullRoundTrip(t *testing.T) {
	reg := mocks.New()

	a := newHarness(t, reg)
	files := map[string]string{
		"src/model.py":  "print('model')",
		"lib/model.py":  "a different model with the same basename",
		"data/x.csv":    "a,b\n1,2\n",
		"deep/n/e/s.td": "nested",
	}
	var paths []string
	for pth, content := range files {
		a.write(t, pth, content)
		paths = append(paths, pth)
	}
	a.track(t, paths...)

	pushed, err := a.bundle.Push(context.Background(), "", false)
	require.NoError(t, err)

	// fresh pull into an empty workspace by immutable digest
	b := newHarness(t, reg)
	plan, err := b.bundle.Pull(context.Background(), model.BundleRef(pushed.String()), PullOptions{})
	require.NoError(t, err)
	assert.Equal(t, pushed, plan.ResolvedDigest)

	for pth, content := range files {
		assert.Equal(t, content, b.read(t, pth), pth)
	}

	// tracked set mirrors the remote
	ts, err := b.project.LoadTracked()
	require.NoError(t, err)
	assert.Equal(t, len(files), ts.Len())

	state, err := b.project.LoadState()
	require.NoError(t, err)
	assert.Equal(t, pushed, state.LastPullDigest)

	// modify, push, pull from a clean third client: same set again
	a.write(t, "src/model.py", "print('model v2')")
	_, err = a.bundle.Push(context.Background(), "", false)
	require.NoError(t, err)

	_, err = b.bundle.Pull(context.Background(), "", PullOptions{})
	require.NoError(t, err)
	assert.Equal(t, "print('model v2')", b.read(t, "src/model.py"))
}

// Property: a push with no changes is a no-op that returns the existing
// digest without touching the registry
func TestPushNoOp(t *testing.T) {
	h := newHarness(t, mocks.New())
	h.write(t, "src/model.py", "stable")
	h.track(t, "src/model.py")

	first, err := h.bundle.Push(context.Background(), "", false)
	require.NoError(t, err)
	puts := h.registry.BlobPuts

	second, err := h.bundle.Push(context.Background(), "", false)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, puts, h.registry.BlobPuts)
}

// Property 11: a rename reuses the existing content blob
func TestPushRenameReusesBlob(t *testing.T) {
	h := newHarness(t, mocks.New())
	h.write(t, "old/name.bin", "stable content")
	h.track(t, "old/name.bin")

	_, err := h.bundle.Push(context.Background(), "", false)
	require.NoError(t, err)
	puts := h.registry.BlobPuts

	require.NoError(t, os.MkdirAll(filepath.Dir(h.project.NativePath("new/name.bin")), 0o755))
	require.NoError(t, os.Rename(h.project.NativePath("old/name.bin"), h.project.NativePath("new/name.bin")))
	ts, err := h.project.LoadTracked()
	require.NoError(t, err)
	ts.Remove("old/name.bin")
	require.NoError(t, h.project.Add(ts, false, "new/name.bin"))
	require.NoError(t, h.project.SaveTracked(ts))

	pushed, err := h.bundle.Push(context.Background(), "", false)
	require.NoError(t, err)

	// the content blob is already in the registry: only the new config
	// blob gets written
	assert.Equal(t, puts+1, h.registry.BlobPuts)

	index := fetchIndex(t, h, pushed)
	require.Len(t, index.Files, 1)
	assert.Equal(t, digest.FromString("stable content"), index.Files["new/name.bin"].Digest)
}

// Additions-only pulls pass the guard (property 10); local additions are
// preserved unless mirroring
func TestPullAdditionsOnly(t *testing.T) {
	reg := mocks.New()

	a := newHarness(t, reg)
	a.write(t, "src/model.py", "v1")
	a.track(t, "src/model.py")
	_, err := a.bundle.Push(context.Background(), "", false)
	require.NoError(t, err)

	b := newHarness(t, reg)
	_, err = b.bundle.Pull(context.Background(), "", PullOptions{})
	require.NoError(t, err)

	// remote gains a file; local gains an unrelated file
	a.write(t, "data/new.csv", "x\n")
	a.track(t, "data/new.csv")
	_, err = a.bundle.Push(context.Background(), "", false)
	require.NoError(t, err)
	b.write(t, "scratch/local-only.txt", "mine")
	ts, err := b.project.LoadTracked()
	require.NoError(t, err)
	require.NoError(t, b.project.Add(ts, false, "scratch/local-only.txt"))
	require.NoError(t, b.project.SaveTracked(ts))

	_, err = b.bundle.Pull(context.Background(), "", PullOptions{})
	require.NoError(t, err)
	assert.Equal(t, "x\n", b.read(t, "data/new.csv"))
	assert.Equal(t, "mine", b.read(t, "scratch/local-only.txt"))
}

// Bundle sync state machine: status against the mock registry
func TestStatus(t *testing.T) {
	reg := mocks.New()
	h := newHarness(t, reg)
	h.write(t, "src/model.py", "v1")
	h.track(t, "src/model.py")

	_, err := h.bundle.Push(context.Background(), "", false)
	require.NoError(t, err)

	report, err := h.bundle.Status(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, model.BundleClean, report.State)

	h.write(t, "src/model.py", "v2")
	report, err = h.bundle.Status(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, model.BundleAhead, report.State)

	// registry outage reads as unknown
	reg.FailNetwork = true
	report, err = h.bundle.Status(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, model.BundleUnknown, report.State)
	reg.FailNetwork = false
}

func TestExport(t *testing.T) {
	reg := mocks.New()
	h := newHarness(t, reg)
	h.write(t, "src/model.py", "exported")
	h.write(t, "data/x.csv", "a\n")
	h.track(t, "src/model.py", "data/x.csv")
	pushed, err := h.bundle.Push(context.Background(), "", false)
	require.NoError(t, err)

	dest := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dest, "stray.txt"), []byte("extra"), 0o644))

	// dry run reports without touching anything
	res, err := h.bundle.Export(context.Background(), "", dest, ExportOptions{Mirror: true, DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Materialized)
	assert.Equal(t, 1, res.Deleted)
	_, err = os.Stat(filepath.Join(dest, "stray.txt"))
	require.NoError(t, err)

	// the real thing mirrors
	res, err = h.bundle.Export(context.Background(), model.BundleRef(pushed.String()), dest, ExportOptions{Mirror: true})
	require.NoError(t, err)
	assert.Equal(t, pushed, res.ResolvedDigest)

	raw, err := os.ReadFile(filepath.Join(dest, "src", "model.py"))
	require.NoError(t, err)
	assert.Equal(t, "exported", string(raw))
	_, err = os.Stat(filepath.Join(dest, "stray.txt"))
	assert.True(t, os.IsNotExist(err))

	// project metadata untouched
	state, err := h.project.LoadState()
	require.NoError(t, err)
	assert.Equal(t, pushed, state.LastPushDigest)
}

func fetchIndex(t *testing.T, h *harness, d digest.Digest) *model.BundleIndex {
	t.Helper()
	m, err := h.registry.GetManifest(context.Background(), d)
	require.NoError(t, err)
	rdr, err := h.registry.GetBlob(context.Background(), m.Config.Digest)
	require.NoError(t, err)
	defer rdr.Close()
	raw := make([]byte, m.Config.Size)
	_, err = rdr.Read(raw)
	require.NoError(t, err)
	index, err := model.ParseBundleIndex(raw)
	require.NoError(t, err)
	return index
}
