package model

import (
	"fmt"
	"regexp"

	digest "github.com/opencontainers/go-digest"
)

// rxSHA256 is the only digest form accepted anywhere in the tool. Cache
// paths and blob keys are derived from digests, so the check runs before
// any path is constructed.
var rxSHA256 = regexp.MustCompile(`^sha256:[0-9a-f]{64}$`)

// ValidateDigest enforces the canonical "sha256:" + 64 lowercase hex form
func ValidateDigest(d digest.Digest) error {
	if !rxSHA256.MatchString(string(d)) {
		return fmt.Errorf("invalid sha256 digest: %q", d)
	}
	return nil
}

// ParseDigest parses and validates a digest string
func ParseDigest(s string) (digest.Digest, error) {
	d := digest.Digest(s)
	if err := ValidateDigest(d); err != nil {
		return "", err
	}
	return d, nil
}

// DigestShards returns the two leading shard components and the full hex
// of a validated digest, e.g. ("ab", "cd", "abcd...").
func DigestShards(d digest.Digest) (string, string, string) {
	hex := d.Encoded()
	return hex[0:2], hex[2:4], hex
}
