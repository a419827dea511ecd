package model

import (
	"fmt"
	"strings"

	digest "github.com/opencontainers/go-digest"
)

// BuildBlobURI derives the content-addressed URI of a blob:
//
//	<provider>://<container>/[<prefix>/]<d0d1>/<d2d3>/<full-hex>
//
// Re-uploading the same digest always yields the same URI.
func BuildBlobURI(provider, container, prefix string, d digest.Digest) (string, error) {
	if provider == "" || container == "" {
		return "", fmt.Errorf("blob URI requires provider and container")
	}
	if err := ValidateDigest(d); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s://%s/%s", provider, container, BlobKey(prefix, d)), nil
}

// BlobKey derives the sharded storage key of a blob within a container:
// [<prefix>/]<d0d1>/<d2d3>/<full-hex>
func BlobKey(prefix string, d digest.Digest) string {
	s0, s1, hex := DigestShards(d)
	key := fmt.Sprintf("%s/%s/%s", s0, s1, hex)
	if prefix != "" {
		key = strings.Trim(prefix, "/") + "/" + key
	}
	return key
}

// ValidateBlobURI rejects URIs with query strings or fragments so signed
// tokens can never leak into a persisted index
func ValidateBlobURI(uri string) error {
	if uri == "" {
		return fmt.Errorf("empty blob URI")
	}
	if strings.ContainsAny(uri, "?#") {
		return fmt.Errorf("blob URI must not carry query or fragment: %q", uri)
	}
	if !strings.Contains(uri, "://") {
		return fmt.Errorf("blob URI missing scheme: %q", uri)
	}
	return nil
}
