package cafs

import (
	"os"

	"golang.org/x/sys/unix"
)

// tryReflink clones src into dst via FICLONE. Only filesystems with
// copy-on-write support (btrfs, xfs with reflink) honor it.
func tryReflink(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if err = unix.IoctlFileClone(int(out.Fd()), int(in.Fd())); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	return out.Close()
}
