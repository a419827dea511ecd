// Package status exports errors produced by the storage package and its
// provider backends.
package status

import (
	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/errors"
)

var (
	// ErrNotFound indicates the requested blob is absent from the store
	ErrNotFound = errors.New("blob not found")

	// ErrNotSupported indicates the backend cannot perform the operation
	ErrNotSupported = errors.New("operation not supported by this blob store")

	// ErrProvider indicates the provider rejected or failed the request
	ErrProvider = errors.New("blob provider error")
)
