// Package model defines the data model shared across the bundle tool:
// validated digests and project-relative paths, bundle file entries, the
// BundleIndex content manifest with its canonical serialization, bundle
// references (tag or digest) and the per-file lifecycle states produced
// by diffing.
package model
