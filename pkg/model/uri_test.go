package model

import (
	"testing"

	digest "github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildBlobURI(t *testing.T) {
	d := digest.Digest("sha256:" + testHex)

	uri, err := BuildBlobURI("azure", "ml-artifacts", "models", d)
	require.NoError(t, err)
	assert.Equal(t, "azure://ml-artifacts/models/9f/86/"+testHex, uri)

	uri, err = BuildBlobURI("s3", "bundles", "", d)
	require.NoError(t, err)
	assert.Equal(t, "s3://bundles/9f/86/"+testHex, uri)

	// content addressing: same digest, same URI
	again, err := BuildBlobURI("s3", "bundles", "", d)
	require.NoError(t, err)
	assert.Equal(t, uri, again)

	_, err = BuildBlobURI("", "bundles", "", d)
	assert.Error(t, err)
	_, err = BuildBlobURI("s3", "bundles", "", digest.Digest("sha256:short"))
	assert.Error(t, err)
}

func TestValidateBlobURI(t *testing.T) {
	assert.NoError(t, ValidateBlobURI("gcs://bucket/ab/cd/abcd"))
	assert.Error(t, ValidateBlobURI(""))
	assert.Error(t, ValidateBlobURI("bucket/ab/cd/abcd"))
	assert.Error(t, ValidateBlobURI("azure://bucket/ab?sig=secret"))
	assert.Error(t, ValidateBlobURI("azure://bucket/ab#frag"))
}
