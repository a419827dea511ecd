// Package mocks provides an in-memory registry adapter for tests. It
// mirrors real registry semantics where the core depends on them:
// digests come from the stored bytes exactly as written, blob puts are
// idempotent, and tags move independently of content.
package mocks

import (
	"bytes"
	"context"
	"io"
	"sort"
	"sync"

	digest "github.com/opencontainers/go-digest"

	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/registry"
	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/registry/status"
)

// Registry is an in-memory registry.Adapter
type Registry struct {
	mu        sync.Mutex
	blobs     map[digest.Digest][]byte
	manifests map[digest.Digest][]byte
	tags      map[string]digest.Digest

	// BlobPuts counts PutBlob calls that actually wrote content,
	// observing idempotency in tests
	BlobPuts int

	// FailNetwork makes every operation fail with a transient network
	// error while set
	FailNetwork bool
}

var _ registry.Adapter = &Registry{}

// New creates an empty in-memory registry
func New() *Registry {
	return &Registry{
		blobs:     map[digest.Digest][]byte{},
		manifests: map[digest.Digest][]byte{},
		tags:      map[string]digest.Digest{},
	}
}

func (r *Registry) ResolveTag(ctx context.Context, tag string) (digest.Digest, []byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailNetwork {
		return "", nil, status.ErrNetwork.WrapMessage("mock outage")
	}
	d, ok := r.tags[tag]
	if !ok {
		return "", nil, status.ErrNotFound.WrapMessage("tag " + tag)
	}
	raw := r.manifests[d]
	return d, append([]byte(nil), raw...), nil
}

func (r *Registry) GetManifest(ctx context.Context, d digest.Digest) (registry.Manifest, error) {
	r.mu.Lock()
	raw, ok := r.manifests[d]
	outage := r.FailNetwork
	r.mu.Unlock()
	if outage {
		return registry.Manifest{}, status.ErrNetwork.WrapMessage("mock outage")
	}
	if !ok {
		return registry.Manifest{}, status.ErrNotFound.WrapMessage("manifest " + d.String())
	}
	return registry.ParseManifest(append([]byte(nil), raw...))
}

func (r *Registry) GetBlob(ctx context.Context, d digest.Digest) (io.ReadCloser, error) {
	r.mu.Lock()
	raw, ok := r.blobs[d]
	outage := r.FailNetwork
	r.mu.Unlock()
	if outage {
		return nil, status.ErrNetwork.WrapMessage("mock outage")
	}
	if !ok {
		return nil, status.ErrNotFound.WrapMessage("blob " + d.String())
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (r *Registry) PutBlob(ctx context.Context, d digest.Digest, size int64, rdr io.Reader) error {
	r.mu.Lock()
	outage := r.FailNetwork
	_, exists := r.blobs[d]
	r.mu.Unlock()
	if outage {
		return status.ErrNetwork.WrapMessage("mock outage")
	}
	if exists {
		// drain so callers can treat the reader as consumed
		_, _ = io.Copy(io.Discard, rdr)
		return nil
	}
	raw, err := io.ReadAll(rdr)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.blobs[d] = raw
	r.BlobPuts++
	r.mu.Unlock()
	return nil
}

func (r *Registry) PutManifest(ctx context.Context, raw []byte, tag string) (digest.Digest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailNetwork {
		return "", status.ErrNetwork.WrapMessage("mock outage")
	}
	// the registry's digest is over the exact bytes as received
	d := digest.FromBytes(raw)
	r.manifests[d] = append([]byte(nil), raw...)
	if tag != "" {
		r.tags[tag] = d
	}
	return d, nil
}

func (r *Registry) GetTag(ctx context.Context, tag string) (digest.Digest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailNetwork {
		return "", status.ErrNetwork.WrapMessage("mock outage")
	}
	d, ok := r.tags[tag]
	if !ok {
		return "", status.ErrNotFound.WrapMessage("tag " + tag)
	}
	return d, nil
}

func (r *Registry) ListTags(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailNetwork {
		return nil, status.ErrNetwork.WrapMessage("mock outage")
	}
	out := make([]string, 0, len(r.tags))
	for tag := range r.tags {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out, nil
}

// HasBlob reports blob presence (test assertions)
func (r *Registry) HasBlob(d digest.Digest) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.blobs[d]
	return ok
}

// CorruptBlob replaces a blob's bytes while keeping its digest key,
// simulating registry-side corruption
func (r *Registry) CorruptBlob(d digest.Digest, content []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blobs[d] = append([]byte(nil), content...)
}

// MoveTag repoints a tag, simulating a concurrent push by another client
func (r *Registry) MoveTag(tag string, d digest.Digest) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tags[tag] = d
}
