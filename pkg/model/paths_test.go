package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidatePath(t *testing.T) {
	for _, good := range []string{
		"model.py",
		"src/model.py",
		"data/weights/epoch-3.bin",
		".hidden/file",
	} {
		assert.NoError(t, ValidatePath(good), good)
	}

	for _, bad := range []string{
		"",
		"/etc/passwd",
		"../outside",
		"src/../../outside",
		"src/./model.py",
		"src//model.py",
		"src\\model.py",
		"trailing/",
		"nul\x00byte",
	} {
		assert.Error(t, ValidatePath(bad), bad)
	}
}
