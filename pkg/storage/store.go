// Package storage defines the interface the core uses to talk to external
// blob storage. Stores are content-addressed: keys are derived from the
// blob digest by the sharded URI scheme, never chosen by a backend.
//
// Implementations are assumed concurrency-safe and idempotent under
// PutByDigest: re-uploading an existing digest is a success.
package storage

import (
	"context"
	"io"

	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/model"
	digest "github.com/opencontainers/go-digest"
)

// Store implementations move whole blobs between the local filesystem and
// a provider (GCS, S3, a local directory, ...).
//
// Digest verification is the caller's responsibility: pulls verify at cache
// promotion time, pushes hash before uploading.
type Store interface {
	String() string

	// PutByDigest uploads content under the digest-derived key.
	// Idempotent: succeeds without rewriting if the blob already exists.
	PutByDigest(ctx context.Context, d digest.Digest, rdr io.Reader) (model.BlobRef, error)

	// GetByDigest streams a blob's content
	GetByDigest(ctx context.Context, d digest.Digest) (io.ReadCloser, error)

	// ExistsByDigest reports whether a blob is present
	ExistsByDigest(ctx context.Context, d digest.Digest) (bool, error)

	// BuildURI derives the canonical content-addressed URI for a digest.
	// Pure: no I/O.
	BuildURI(d digest.Digest) (string, error)
}
