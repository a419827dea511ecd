package model

import (
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	digest "github.com/opencontainers/go-digest"
)

const (
	// CurrentIndexVersion is the BundleIndex schema version
	CurrentIndexVersion = "1.0"

	// BundleIndexMediaType identifies the canonical index bytes when stored
	// as the OCI manifest config blob. It is the discriminator for bundles
	// produced by this tool.
	BundleIndexMediaType = "application/vnd.modelops.bundle.index.v1+json"

	// BundleArtifactType classifies outbound manifests. Advisory only:
	// inbound manifests are identified by config media type, never by
	// artifactType, whose registry support is inconsistent.
	BundleArtifactType = "application/vnd.modelops.bundle.v1"

	// FileLayerMediaType is the media type of per-file layer blobs
	FileLayerMediaType = "application/vnd.modelops.bundle.file.v1"
)

// canonicalJSON produces byte-identical output for the same logical value:
// map keys sorted, two-space indention, struct fields declared in
// lexicographic order.
var canonicalJSON = jsoniter.Config{
	SortMapKeys:   true,
	IndentionStep: 2,
}.Froze()

// ToolInfo identifies the producing tool in an index
type ToolInfo struct {
	Name    string `json:"name" yaml:"name"`
	Version string `json:"version" yaml:"version"`
	_       struct{}
}

// BundleIndex is the authoritative content manifest of a bundle version,
// stored as the OCI config blob. Instances are immutable once built.
type BundleIndex struct {
	Created string               `json:"created" yaml:"created"`
	Files   map[string]FileEntry `json:"files" yaml:"files"`
	Tool    ToolInfo             `json:"tool" yaml:"tool"`
	Version string               `json:"version" yaml:"version"`
	_       struct{}
}

// NewBundleIndex builds an index over the given entries, stamped with the
// creation time in UTC
func NewBundleIndex(tool ToolInfo, created time.Time, entries []FileEntry) (*BundleIndex, error) {
	files := make(map[string]FileEntry, len(entries))
	for _, e := range entries {
		if _, dupe := files[e.Path]; dupe {
			return nil, fmt.Errorf("duplicate index entry %q", e.Path)
		}
		files[e.Path] = e
	}
	index := &BundleIndex{
		Created: created.UTC().Format(time.RFC3339),
		Files:   files,
		Tool:    tool,
		Version: CurrentIndexVersion,
	}
	if err := index.Validate(); err != nil {
		return nil, err
	}
	return index, nil
}

// Validate checks the index invariants: well-formed unique paths matching
// their map keys, well-formed digests, blobRef present iff blob storage
func (b *BundleIndex) Validate() error {
	if b.Version == "" {
		return fmt.Errorf("index version missing")
	}
	for pth, e := range b.Files {
		if pth != e.Path {
			return fmt.Errorf("index entry key %q does not match path %q", pth, e.Path)
		}
		if err := e.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// CanonicalBytes serializes the index deterministically. Serializing the
// same logical index always yields byte-identical output, so the digest of
// these bytes is a stable identifier.
func (b *BundleIndex) CanonicalBytes() ([]byte, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return canonicalJSON.Marshal(b)
}

// Digest returns the digest of the canonical index bytes. This is the
// digest the OCI manifest's config descriptor references.
func (b *BundleIndex) Digest() (digest.Digest, int64, error) {
	raw, err := b.CanonicalBytes()
	if err != nil {
		return "", 0, err
	}
	return digest.FromBytes(raw), int64(len(raw)), nil
}

// ParseBundleIndex decodes and validates index bytes. Unknown fields are
// tolerated for forward compatibility; required fields are verified.
func ParseBundleIndex(raw []byte) (*BundleIndex, error) {
	var index BundleIndex
	if err := canonicalJSON.Unmarshal(raw, &index); err != nil {
		return nil, fmt.Errorf("parsing bundle index: %w", err)
	}
	if err := index.Validate(); err != nil {
		return nil, err
	}
	return &index, nil
}

// FileDigests flattens the index to a path-to-digest map, the shape the
// diff engine consumes
func (b *BundleIndex) FileDigests() map[string]digest.Digest {
	out := make(map[string]digest.Digest, len(b.Files))
	for pth, e := range b.Files {
		out[pth] = e.Digest
	}
	return out
}
