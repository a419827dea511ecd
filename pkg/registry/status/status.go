// Package status exports errors produced by registry adapters.
package status

import (
	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/errors"
)

var (
	// ErrNotFound indicates a tag, manifest or blob is absent
	ErrNotFound = errors.New("not found in registry")

	// ErrNetwork indicates a transient transport failure; callers may
	// retry with backoff
	ErrNetwork = errors.New("registry network error")

	// ErrMissingIndex indicates the manifest's config is not a bundle
	// index: the artifact was not produced by this tool or uses an
	// incompatible version
	ErrMissingIndex = errors.New("artifact is missing the required bundle index")

	// ErrUnsupportedArtifact indicates the reference points at a manifest
	// index or list rather than a single artifact
	ErrUnsupportedArtifact = errors.New("reference points to a manifest index, not a single artifact")
)
