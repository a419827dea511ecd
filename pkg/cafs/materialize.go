package cafs

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/cafs/status"
	digest "github.com/opencontainers/go-digest"
	"go.uber.org/zap"
)

// LinkMode selects how cache objects are materialized into a working tree
type LinkMode string

const (
	// LinkAuto tries reflink, then hardlink, then copy
	LinkAuto LinkMode = "auto"
	// LinkReflink requires a copy-on-write clone
	LinkReflink LinkMode = "reflink"
	// LinkHardlink requires a hard link to the cache object
	LinkHardlink LinkMode = "hardlink"
	// LinkCopy always copies bytes
	LinkCopy LinkMode = "copy"
)

// ParseLinkMode validates a configured link mode string
func ParseLinkMode(s string) (LinkMode, error) {
	switch LinkMode(s) {
	case LinkAuto, LinkReflink, LinkHardlink, LinkCopy:
		return LinkMode(s), nil
	case "":
		return LinkAuto, nil
	default:
		return "", fmt.Errorf("invalid link mode %q", s)
	}
}

// Materialize places the cached object at destPath using the requested
// mode. Every strategy stages through "<dest>.partial" and renames into
// place, so the destination either fully exists or does not exist at all.
// Temp files are removed on every exit path.
func (s *Store) Materialize(d digest.Digest, destPath string, mode LinkMode) error {
	src, err := s.PathFor(d)
	if err != nil {
		return err
	}
	if ok, err := s.Has(d); err != nil {
		return err
	} else if !ok {
		return status.ErrObjectNotFound.WrapMessage(d.String())
	}
	if err = os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return err
	}

	tmp := destPath + ".partial"
	defer os.Remove(tmp)

	switch mode {
	case LinkReflink:
		if err := tryReflink(src, tmp); err != nil {
			return status.ErrUnsupportedLinkMode.Wrap(err)
		}
		return s.finishMaterialize(tmp, destPath, d, "reflink")

	case LinkHardlink:
		if err := os.Link(src, tmp); err != nil {
			return status.ErrUnsupportedLinkMode.Wrap(err)
		}
		return s.finishMaterialize(tmp, destPath, d, "hardlink")

	case LinkCopy:
		if err := copyFile(src, tmp); err != nil {
			return err
		}
		return s.finishMaterialize(tmp, destPath, d, "copy")

	case LinkAuto, "":
		if err := tryReflink(src, tmp); err == nil {
			return s.finishMaterialize(tmp, destPath, d, "reflink")
		}
		_ = os.Remove(tmp)
		if err := os.Link(src, tmp); err == nil {
			return s.finishMaterialize(tmp, destPath, d, "hardlink")
		}
		_ = os.Remove(tmp)
		if err := copyFile(src, tmp); err != nil {
			return err
		}
		return s.finishMaterialize(tmp, destPath, d, "copy")

	default:
		return fmt.Errorf("invalid link mode %q", mode)
	}
}

func (s *Store) finishMaterialize(tmp, destPath string, d digest.Digest, strategy string) error {
	// hardlinks share the cache object's inode: syncing is a no-op there
	// and chmod would flip the cache object writable, so only copies get
	// their permissions reset
	if strategy == "copy" {
		if err := os.Chmod(tmp, 0o644); err != nil {
			return err
		}
		if err := fsyncFile(tmp); err != nil {
			return err
		}
	}
	if err := os.Rename(tmp, destPath); err != nil {
		return err
	}
	fsyncDir(filepath.Dir(destPath))
	s.l.Debug("materialized cache object",
		zap.Stringer("digest", d),
		zap.String("dest", destPath),
		zap.String("strategy", strategy),
	)
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err = io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
