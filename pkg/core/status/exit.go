package status

import (
	cafsstatus "github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/cafs/status"
	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/errors"
	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/policy"
	registrystatus "github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/registry/status"
	workspacestatus "github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/workspace/status"
)

// Exit codes surfaced to the CLI collaborator
const (
	ExitOK             = 0
	ExitUsage          = 2
	ExitConfig         = 3
	ExitNetwork        = 4
	ExitSafetyGuard    = 5
	ExitTagMoved       = 6
	ExitDigestMismatch = 7
	ExitCanceled       = 8
	ExitFailure        = 1
)

// ExitCode maps an error to the documented exit code
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case IsCanceled(err), errors.Is(err, cafsstatus.ErrCanceled):
		return ExitCanceled
	case errors.Is(err, cafsstatus.ErrDigestMismatch):
		return ExitDigestMismatch
	case errors.Is(err, ErrTagMoved):
		return ExitTagMoved
	case errors.Is(err, ErrSafetyGuard):
		return ExitSafetyGuard
	case errors.Is(err, registrystatus.ErrNetwork),
		errors.Is(err, registrystatus.ErrNotFound):
		return ExitNetwork
	case errors.Is(err, ErrConfig),
		errors.Is(err, policy.ErrProviderRequired),
		errors.Is(err, registrystatus.ErrMissingIndex),
		errors.Is(err, registrystatus.ErrUnsupportedArtifact):
		return ExitConfig
	case errors.Is(err, ErrInvalidInput),
		errors.Is(err, workspacestatus.ErrIgnored):
		return ExitUsage
	default:
		return ExitFailure
	}
}
