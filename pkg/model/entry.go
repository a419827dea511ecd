package model

import (
	"fmt"
	"time"

	digest "github.com/opencontainers/go-digest"
)

// StorageType locates a file's content: an OCI layer in the registry or
// an object in external blob storage.
type StorageType string

const (
	// StorageOCI stores the file as a registry layer blob
	StorageOCI StorageType = "oci"

	// StorageBlob stores the file in external blob storage
	StorageBlob StorageType = "blob"
)

// BlobRef points at a blob in external storage by canonical URI
type BlobRef struct {
	URI string `json:"uri" yaml:"uri"`
	_   struct{}
}

// FileEntry is the record a BundleIndex holds for a single file.
//
// Field names are serialized in lexicographic order so the canonical index
// bytes stay stable.
type FileEntry struct {
	BlobRef *BlobRef      `json:"blobRef,omitempty" yaml:"blobRef,omitempty"`
	Digest  digest.Digest `json:"digest" yaml:"digest"`
	Path    string        `json:"path" yaml:"path"`
	Size    int64         `json:"size" yaml:"size"`
	Storage StorageType   `json:"storage" yaml:"storage"`
	_       struct{}
}

// Validate checks the entry's invariants
func (e *FileEntry) Validate() error {
	if err := ValidatePath(e.Path); err != nil {
		return err
	}
	if err := ValidateDigest(e.Digest); err != nil {
		return fmt.Errorf("entry %q: %w", e.Path, err)
	}
	if e.Size < 0 {
		return fmt.Errorf("entry %q: negative size %d", e.Path, e.Size)
	}
	switch e.Storage {
	case StorageOCI:
		if e.BlobRef != nil {
			return fmt.Errorf("entry %q: blobRef set on oci storage", e.Path)
		}
	case StorageBlob:
		if e.BlobRef == nil || e.BlobRef.URI == "" {
			return fmt.Errorf("entry %q: blob storage requires blobRef", e.Path)
		}
	default:
		return fmt.Errorf("entry %q: unknown storage %q", e.Path, e.Storage)
	}
	return nil
}

// WorkingEntry describes a file found by a workspace scan, before hashing
type WorkingEntry struct {
	Path  string
	Size  int64
	Mtime time.Time
	_     struct{}
}

// SnapshotEntry describes a tracked file after hashing
type SnapshotEntry struct {
	Path   string
	Digest digest.Digest
	Size   int64
	_      struct{}
}
