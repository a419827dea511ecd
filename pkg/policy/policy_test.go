package policy

import (
	"testing"

	units "github.com/docker/go-units"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/config"
	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/errors"
	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/model"
)

func blobConfig() *config.Config {
	c := config.New("localhost:5555/p")
	c.Storage.Provider = config.ProviderAzure
	c.Storage.Container = "bundles"
	return c
}

func TestAutoThreshold(t *testing.T) {
	p := FromConfig(blobConfig())

	// exactly at threshold goes to blob, one byte under stays in OCI
	st, err := p.Classify("data/weights.bin", 50*units.MiB)
	require.NoError(t, err)
	assert.Equal(t, model.StorageBlob, st)

	st, err = p.Classify("data/weights.bin", 50*units.MiB-1)
	require.NoError(t, err)
	assert.Equal(t, model.StorageOCI, st)
}

func TestAutoWithoutProvider(t *testing.T) {
	p := FromConfig(config.New("localhost:5555/p"))

	st, err := p.Classify("data/huge.bin", 200*units.MiB)
	require.NoError(t, err)
	assert.Equal(t, model.StorageOCI, st)
	assert.True(t, p.Oversized(200*units.MiB))
	assert.False(t, p.Oversized(1*units.KiB))
}

func TestForcePatterns(t *testing.T) {
	c := blobConfig()
	c.Storage.ForceOCIPatterns = []string{"**/*.py"}
	c.Storage.ForceBlobPatterns = []string{"data/**"}
	p := FromConfig(c)

	// force-OCI wins even over size
	st, err := p.Classify("src/model.py", 100*units.MiB)
	require.NoError(t, err)
	assert.Equal(t, model.StorageOCI, st)

	// force-BLOB wins under the threshold
	st, err = p.Classify("data/tiny.csv", 12)
	require.NoError(t, err)
	assert.Equal(t, model.StorageBlob, st)

	// force-OCI is checked before force-BLOB
	st, err = p.Classify("data/prep.py", 12)
	require.NoError(t, err)
	assert.Equal(t, model.StorageOCI, st)
}

func TestModes(t *testing.T) {
	c := blobConfig()
	c.Storage.Mode = config.ModeOCIInline
	st, err := FromConfig(c).Classify("data/big.bin", 500*units.MiB)
	require.NoError(t, err)
	assert.Equal(t, model.StorageOCI, st)

	c.Storage.Mode = config.ModeBlobOnly
	st, err = FromConfig(c).Classify("tiny.txt", 1)
	require.NoError(t, err)
	assert.Equal(t, model.StorageBlob, st)
}

func TestBlobWithoutProviderIsConfigError(t *testing.T) {
	c := config.New("localhost:5555/p")
	c.Storage.Mode = config.ModeBlobOnly
	_, err := FromConfig(c).Classify("tiny.txt", 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProviderRequired))

	c = config.New("localhost:5555/p")
	c.Storage.ForceBlobPatterns = []string{"*.bin"}
	_, err = FromConfig(c).Classify("x.bin", 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProviderRequired))
}
