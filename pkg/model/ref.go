package model

import (
	"strings"

	digest "github.com/opencontainers/go-digest"
)

// BundleRef names a bundle version: either a mutable tag or an immutable
// "sha256:..." digest. Resolution turns every ref into a digest; all
// content operations run on digests.
type BundleRef string

// IsDigest reports whether the ref is an immutable digest reference
func (r BundleRef) IsDigest() bool {
	return strings.HasPrefix(string(r), "sha256:")
}

// Digest returns the validated digest for a digest-form ref
func (r BundleRef) Digest() (digest.Digest, error) {
	return ParseDigest(string(r))
}

// Tag returns the tag name for a tag-form ref
func (r BundleRef) Tag() string {
	return string(r)
}

func (r BundleRef) String() string {
	return string(r)
}
