//go:build !linux

package cafs

import (
	"errors"
)

func tryReflink(_, _ string) error {
	return errors.New("reflink not supported on this platform")
}
