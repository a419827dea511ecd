// Package fingerprint computes the canonical content digest of files:
// a streaming SHA-256 over the file bytes, rendered as "sha256:<hex>".
package fingerprint

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	units "github.com/docker/go-units"
	digest "github.com/opencontainers/go-digest"
)

// DefaultChunkSize bounds the read buffer so hashing large files keeps a
// constant memory footprint
const DefaultChunkSize = 1 * units.MiB

// Option configures a Maker
type Option func(*Maker)

// ChunkSize sets the streaming read buffer size
func ChunkSize(sz int) Option {
	return func(m *Maker) {
		if sz > 0 {
			m.chunkSize = sz
		}
	}
}

// Root confines symlink resolution: hashing a symlink whose target
// escapes the root fails instead of following it
func Root(root string) Option {
	return func(m *Maker) {
		m.root = root
	}
}

// New creates a Maker
func New(opts ...Option) *Maker {
	m := &Maker{
		chunkSize: DefaultChunkSize,
	}
	for _, apply := range opts {
		apply(m)
	}
	return m
}

// Maker hashes file contents
type Maker struct {
	chunkSize int
	root      string
}

// Process hashes the file at path, streaming in bounded chunks, and
// returns the canonical digest together with the number of bytes hashed.
// I/O failures (including the file disappearing mid-hash) surface as
// wrapped errors the caller may retry.
func (m *Maker) Process(path string) (digest.Digest, int64, error) {
	if err := m.checkSymlink(path); err != nil {
		return "", 0, err
	}
	f, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("opening %q for hashing: %w", path, err)
	}
	defer f.Close()

	return m.ProcessReader(f)
}

// ProcessReader hashes a stream to completion
func (m *Maker) ProcessReader(r io.Reader) (digest.Digest, int64, error) {
	digester := digest.SHA256.Digester()
	written, err := io.CopyBuffer(digester.Hash(), r, make([]byte, m.chunkSize))
	if err != nil {
		return "", 0, fmt.Errorf("hashing stream: %w", err)
	}
	return digester.Digest(), written, nil
}

func (m *Maker) checkSymlink(path string) error {
	if m.root == "" {
		return nil
	}
	fi, err := os.Lstat(path)
	if err != nil {
		return fmt.Errorf("stat %q: %w", path, err)
	}
	if fi.Mode()&os.ModeSymlink == 0 {
		return nil
	}
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return fmt.Errorf("resolving symlink %q: %w", path, err)
	}
	rootAbs, err := filepath.Abs(m.root)
	if err != nil {
		return err
	}
	targetAbs, err := filepath.Abs(resolved)
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(rootAbs, targetAbs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("symlink %q escapes project root", path)
	}
	return nil
}
