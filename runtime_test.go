package modelopsbundle

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/config"
	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/core"
	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/dlogger"
	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/registry/mocks"
	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/workspace"
)

func initProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	p, err := workspace.Init(root)
	require.NoError(t, err)

	cfg := config.New("localhost:5555/p")
	cfg.CacheDir = t.TempDir()
	cfg.CacheLinkMode = "copy"
	require.NoError(t, cfg.Save(p.ConfigPath()))
	return root
}

func TestRuntimeRequiresRegistry(t *testing.T) {
	root := initProject(t)
	_, err := New(context.Background(), root)
	assert.Error(t, err)
}

func TestRuntimePushPullCycle(t *testing.T) {
	reg := mocks.New()
	quiet := Logger(dlogger.MustGetLogger(dlogger.LogLevelNone))

	root := initProject(t)
	rt, err := New(context.Background(), root, Registry(reg), quiet)
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(filepath.Join(root, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "model.py"), []byte("runtime"), 0o644))
	ts, err := rt.Project().LoadTracked()
	require.NoError(t, err)
	require.NoError(t, rt.Project().Add(ts, false, "src/model.py"))
	require.NoError(t, rt.Project().SaveTracked(ts))

	pushed, err := rt.Push(context.Background(), "", false)
	require.NoError(t, err)
	assert.Contains(t, pushed, "sha256:")

	other := initProject(t)
	rt2, err := New(context.Background(), other, Registry(reg), quiet)
	require.NoError(t, err)

	plan, err := rt2.Pull(context.Background(), "", core.PullOptions{})
	require.NoError(t, err)
	assert.Equal(t, pushed, plan.ResolvedDigest.String())

	raw, err := os.ReadFile(filepath.Join(other, "src", "model.py"))
	require.NoError(t, err)
	assert.Equal(t, "runtime", string(raw))

	report, err := rt2.Status(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "clean", report.State.String())
}
