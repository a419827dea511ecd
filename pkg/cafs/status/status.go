// Package status exports errors produced by the cafs package.
package status

import (
	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/errors"
)

var (
	// ErrDigestMismatch indicates fetched content did not hash to its
	// declared digest. Integrity event: never retried silently, and the
	// cache is left unpolluted.
	ErrDigestMismatch = errors.New("fetched content does not match expected digest")

	// ErrObjectNotFound indicates a cache object is absent
	ErrObjectNotFound = errors.New("object not present in cache")

	// ErrInvalidDigest indicates a digest failed strict validation before
	// any cache path was derived from it
	ErrInvalidDigest = errors.New("invalid digest for cache addressing")

	// ErrUnsupportedLinkMode indicates the requested materialization mode
	// cannot be honored on this filesystem
	ErrUnsupportedLinkMode = errors.New("link mode not supported on this filesystem")

	// ErrCacheSymlink indicates a symlink was found inside the cache tree
	ErrCacheSymlink = errors.New("symlink in cache directory")

	// ErrCanceled indicates the surrounding operation was canceled while
	// waiting on cache work
	ErrCanceled = errors.New("cache operation canceled")
)
