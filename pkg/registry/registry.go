// Package registry defines the interface the core uses to talk to an OCI
// registry, and the construction and validation of bundle manifests.
//
// The digest identifying a bundle version is always the registry's own:
// ResolveTag implementations surface the content-digest metadata of the
// response (or hash the exact response bytes when the registry omits it)
// and never re-serialize a manifest for identity purposes.
package registry

import (
	"context"
	"io"

	digest "github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// Manifest is a fetched OCI manifest together with its exact raw bytes
type Manifest struct {
	Raw    []byte
	Config ocispec.Descriptor
	Layers []ocispec.Descriptor
	_      struct{}
}

// Adapter is the registry surface the core depends on. Implementations
// wrap a concrete OCI client; the in-memory one under mocks/ backs tests.
type Adapter interface {
	// ResolveTag returns the tag's current digest, as declared by the
	// registry, together with the raw manifest bytes
	ResolveTag(ctx context.Context, tag string) (digest.Digest, []byte, error)

	// GetManifest fetches a manifest by digest
	GetManifest(ctx context.Context, d digest.Digest) (Manifest, error)

	// GetBlob streams a blob by digest
	GetBlob(ctx context.Context, d digest.Digest) (io.ReadCloser, error)

	// PutBlob uploads a blob. Idempotent: succeeds immediately when the
	// digest is already present.
	PutBlob(ctx context.Context, d digest.Digest, size int64, rdr io.Reader) error

	// PutManifest writes manifest bytes and, when tag is non-empty,
	// moves the tag to it. Returns the manifest digest.
	PutManifest(ctx context.Context, raw []byte, tag string) (digest.Digest, error)

	// GetTag returns the digest a tag currently points at
	GetTag(ctx context.Context, tag string) (digest.Digest, error)

	// ListTags enumerates the repository's tags
	ListTags(ctx context.Context) ([]string, error)
}
