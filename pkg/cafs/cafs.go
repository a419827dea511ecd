package cafs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/cafs/status"
	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/dlogger"
	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/fingerprint"
	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/model"
	"github.com/gofrs/flock"
	digest "github.com/opencontainers/go-digest"
	"go.uber.org/zap"
)

const (
	// tempPrefix marks in-flight downloads inside a shard directory.
	// Leftovers from a crashed process are swept on the next EnsurePresent
	// for that digest.
	tempPrefix = ".cas-"

	// lockSuffix names the per-digest advisory lock file
	lockSuffix = ".lock"

	// lockRetryDelay paces lock acquisition attempts
	lockRetryDelay = 50 * time.Millisecond
)

// FetchFunc downloads content into tmpPath. It is the only code in an
// EnsurePresent call that talks to the network.
type FetchFunc func(ctx context.Context, tmpPath string) error

// Option configures a Store
type Option func(*Store)

// Root sets the cache root directory
func Root(root string) Option {
	return func(s *Store) {
		s.root = root
	}
}

// Logger sets a logger for this store
func Logger(l *zap.Logger) Option {
	return func(s *Store) {
		s.l = l
	}
}

// LockTimeout bounds how long EnsurePresent waits on a concurrent
// producer of the same digest before giving up
func LockTimeout(d time.Duration) Option {
	return func(s *Store) {
		s.lockTimeout = d
	}
}

// Store is a disk-backed content-addressable store. It may be shared
// across projects and processes; all mutations are mediated by per-digest
// advisory locks.
type Store struct {
	root        string
	lockTimeout time.Duration
	hasher      *fingerprint.Maker
	l           *zap.Logger
}

// New creates a Store rooted at the given cache directory
func New(opts ...Option) (*Store, error) {
	s := &Store{
		lockTimeout: 5 * time.Minute,
		hasher:      fingerprint.New(),
		l:           dlogger.MustGetLogger(dlogger.LogLevelInfo),
	}
	for _, apply := range opts {
		apply(s)
	}
	if s.root == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			return nil, fmt.Errorf("resolving user cache dir: %w", err)
		}
		s.root = filepath.Join(base, "modelops-bundle")
	}
	if err := os.MkdirAll(s.objectDir(), 0o700); err != nil {
		return nil, fmt.Errorf("creating cache root: %w", err)
	}
	return s, nil
}

func (s *Store) objectDir() string {
	return filepath.Join(s.root, "objects", "sha256")
}

// PathFor returns the final cache path for a digest. The digest is
// validated strictly before any path is constructed.
func (s *Store) PathFor(d digest.Digest) (string, error) {
	if err := model.ValidateDigest(d); err != nil {
		return "", status.ErrInvalidDigest.Wrap(err)
	}
	s0, s1, hex := model.DigestShards(d)
	return filepath.Join(s.objectDir(), s0, s1, hex), nil
}

// Has reports whether the object is present. Existence only: content
// verification happens at promotion time.
func (s *Store) Has(d digest.Digest) (bool, error) {
	pth, err := s.PathFor(d)
	if err != nil {
		return false, err
	}
	fi, err := os.Lstat(pth)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if fi.Mode()&os.ModeSymlink != 0 {
		return false, status.ErrCacheSymlink.WrapMessage(pth)
	}
	return fi.Mode().IsRegular(), nil
}

// EnsurePresent guarantees the object is in the cache, fetching it with
// the supplied callback if needed, and returns the cache path.
//
// Exactly one concurrent fetch runs per digest; the others observe the
// promoted object after lock acquisition. On success the object at the
// returned path hashes to d. On any failure the temp file is unlinked
// before the lock is released and nothing is promoted.
func (s *Store) EnsurePresent(ctx context.Context, d digest.Digest, fetch FetchFunc) (string, error) {
	finalPath, err := s.PathFor(d)
	if err != nil {
		return "", err
	}

	// fast path
	if ok, err := s.Has(d); err != nil {
		return "", err
	} else if ok {
		return finalPath, nil
	}

	if err = os.MkdirAll(filepath.Dir(finalPath), 0o700); err != nil {
		return "", err
	}

	release, err := s.acquireLock(ctx, finalPath+lockSuffix)
	if err != nil {
		return "", err
	}
	defer release()

	// re-check: another producer may have promoted while we waited
	if ok, err := s.Has(d); err != nil {
		return "", err
	} else if ok {
		return finalPath, nil
	}

	s.sweepShard(filepath.Dir(finalPath))

	tmp, err := os.CreateTemp(filepath.Dir(finalPath), tempPrefix)
	if err != nil {
		return "", err
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()
	defer os.Remove(tmpPath)

	if err = fetch(ctx, tmpPath); err != nil {
		if ctx.Err() != nil {
			return "", status.ErrCanceled.Wrap(err)
		}
		return "", err
	}

	actual, _, err := s.hasher.Process(tmpPath)
	if err != nil {
		return "", err
	}
	if actual != d {
		s.l.Warn("cache fetch failed digest verification",
			zap.Stringer("expected", d),
			zap.Stringer("actual", actual),
		)
		return "", status.ErrDigestMismatch.WrapMessage(
			fmt.Sprintf("expected %s, content hashed to %s", d, actual))
	}

	if err = s.promote(tmpPath, finalPath); err != nil {
		return "", err
	}

	s.l.Debug("cache object promoted", zap.Stringer("digest", d))
	return finalPath, nil
}

// promote makes a verified temp file visible: fsync, read-only chmod,
// atomic rename, parent directory fsync.
func (s *Store) promote(tmpPath, finalPath string) error {
	if err := fsyncFile(tmpPath); err != nil {
		return err
	}
	if err := os.Chmod(tmpPath, 0o444); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return err
	}
	fsyncDir(filepath.Dir(finalPath))
	return nil
}

func (s *Store) acquireLock(ctx context.Context, lockPath string) (func(), error) {
	lk := flock.New(lockPath)
	lockCtx := ctx
	if s.lockTimeout > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, s.lockTimeout)
		defer cancel()
	}
	ok, err := lk.TryLockContext(lockCtx, lockRetryDelay)
	if err != nil {
		if ctx.Err() != nil {
			return nil, status.ErrCanceled.Wrap(ctx.Err())
		}
		return nil, fmt.Errorf("acquiring cache lock %q: %w", lockPath, err)
	}
	if !ok {
		return nil, fmt.Errorf("acquiring cache lock %q: not acquired", lockPath)
	}
	return func() {
		_ = lk.Unlock()
	}, nil
}

// sweepShard removes crash leftovers from a shard directory. Only runs
// under the digest lock.
func (s *Store) sweepShard(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), tempPrefix) {
			_ = os.Remove(filepath.Join(dir, e.Name()))
		}
	}
}

// Sweep removes cache objects whose modification time (set when they were
// promoted) is older than the retention window, plus every temp file in
// the object tree. Reading or materializing an object does not refresh
// its age. Best effort.
func (s *Store) Sweep(retention time.Duration) (removed int) {
	cutoff := time.Now().Add(-retention)
	_ = filepath.Walk(s.objectDir(), func(pth string, fi os.FileInfo, err error) error {
		if err != nil || fi.IsDir() {
			return nil
		}
		name := filepath.Base(pth)
		if strings.HasSuffix(name, lockSuffix) {
			return nil
		}
		if strings.HasPrefix(name, tempPrefix) || fi.ModTime().Before(cutoff) {
			if os.Remove(pth) == nil {
				removed++
			}
		}
		return nil
	})
	return removed
}

func fsyncFile(pth string) error {
	f, err := os.OpenFile(pth, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}

// fsyncDir makes a rename durable. Best effort: not every platform or
// filesystem supports directory fsync.
func fsyncDir(dir string) {
	f, err := os.Open(dir)
	if err != nil {
		return
	}
	defer f.Close()
	_ = f.Sync()
}
