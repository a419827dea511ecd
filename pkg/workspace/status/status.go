// Package status exports errors produced by the workspace package.
package status

import (
	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/errors"
)

var (
	// ErrProjectBusy indicates another process holds the project lock
	ErrProjectBusy = errors.New("another bundle command is running in this project")

	// ErrNotAProject indicates the metadata directory is missing
	ErrNotAProject = errors.New("not a modelops-bundle project (missing .modelops-bundle)")

	// ErrAlreadyInitialized indicates init was run on an existing project
	ErrAlreadyInitialized = errors.New("project already initialized")

	// ErrIgnored indicates a path matching the ignore rules was added
	// without force
	ErrIgnored = errors.New("path matches ignore rules (use force to track it anyway)")

	// ErrUnreadable indicates a tracked file exists but cannot be read
	ErrUnreadable = errors.New("tracked file is unreadable")
)
