// Package policy classifies bundle files between OCI-layer storage and
// external blob storage.
package policy

import (
	"fmt"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/config"
	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/errors"
	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/model"
)

// ErrProviderRequired indicates the policy routed a file to blob storage
// but no blob provider is configured. Reported at plan time, never at
// apply time.
var ErrProviderRequired = errors.New("file requires external blob storage but no provider is configured")

// Policy decides where each file's content lives
type Policy struct {
	mode        string
	threshold   int64
	forceOCI    []string
	forceBlob   []string
	hasProvider bool
}

// FromConfig builds a Policy from the storage configuration
func FromConfig(cfg *config.Config) *Policy {
	return &Policy{
		mode:        cfg.Storage.Mode,
		threshold:   cfg.Storage.ThresholdBytes,
		forceOCI:    cfg.Storage.ForceOCIPatterns,
		forceBlob:   cfg.Storage.ForceBlobPatterns,
		hasProvider: cfg.HasBlobProvider(),
	}
}

// Classify routes one file. Decision order: force-OCI patterns, then
// force-BLOB patterns, then the global mode, then the size threshold.
//
// A blob verdict without a configured provider is a configuration error,
// except in auto mode where an oversized file falls back to OCI (the
// caller may warn).
func (p *Policy) Classify(pth string, size int64) (model.StorageType, error) {
	if matchAny(p.forceOCI, pth) {
		return model.StorageOCI, nil
	}
	if matchAny(p.forceBlob, pth) {
		return p.blobOrErr(pth)
	}

	switch p.mode {
	case config.ModeOCIInline:
		return model.StorageOCI, nil
	case config.ModeBlobOnly:
		return p.blobOrErr(pth)
	case config.ModeAuto, "":
		if size >= p.threshold && p.hasProvider {
			return model.StorageBlob, nil
		}
		return model.StorageOCI, nil
	default:
		return "", fmt.Errorf("invalid storage mode %q", p.mode)
	}
}

// Oversized reports whether a file exceeds the blob threshold while no
// provider is configured to take it. Advisory: auto mode still stores the
// file as an OCI layer.
func (p *Policy) Oversized(size int64) bool {
	return p.mode == config.ModeAuto && size >= p.threshold && !p.hasProvider
}

func (p *Policy) blobOrErr(pth string) (model.StorageType, error) {
	if !p.hasProvider {
		return "", ErrProviderRequired.WrapMessage(pth)
	}
	return model.StorageBlob, nil
}

func matchAny(patterns []string, pth string) bool {
	for _, pattern := range patterns {
		if ok, _ := doublestar.Match(pattern, pth); ok {
			return true
		}
	}
	return false
}
