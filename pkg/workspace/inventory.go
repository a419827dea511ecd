package workspace

import (
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/model"
)

// Inventory walks the working tree and returns one WorkingEntry per file
// passing the ignore rules, sorted lexicographically by path. Files are
// not opened. Entries disappearing mid-scan are skipped with a warning.
func (p *Project) Inventory() ([]model.WorkingEntry, error) {
	var entries []model.WorkingEntry

	err := filepath.Walk(p.root, func(pth string, fi os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				p.l.Warn("entry disappeared during scan", zap.String("path", pth))
				return nil
			}
			return err
		}
		if pth == p.root {
			return nil
		}
		rel, err := filepath.Rel(p.root, pth)
		if err != nil {
			return err
		}
		posix := model.ToPOSIX(rel)

		if fi.IsDir() {
			if !p.matcher.ShouldTraverse(posix) {
				return filepath.SkipDir
			}
			return nil
		}

		if fi.Mode()&os.ModeSymlink != 0 {
			// in-tree symlinks count as regular files; anything pointing
			// outside the root is skipped
			resolved, err := filepath.EvalSymlinks(pth)
			if err != nil || !within(p.root, resolved) {
				p.l.Warn("skipping symlink leaving the project root", zap.String("path", posix))
				return nil
			}
			st, err := os.Stat(pth)
			if err != nil {
				p.l.Warn("entry disappeared during scan", zap.String("path", posix))
				return nil
			}
			fi = st
		} else if !fi.Mode().IsRegular() {
			return nil
		}

		if p.matcher.IsIgnored(posix) {
			return nil
		}
		entries = append(entries, model.WorkingEntry{
			Path:  posix,
			Size:  fi.Size(),
			Mtime: fi.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

func within(root, pth string) bool {
	rel, err := filepath.Rel(root, pth)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !filepath.IsAbs(rel) && !hasDotDotPrefix(rel))
}

func hasDotDotPrefix(rel string) bool {
	if rel == ".." {
		return true
	}
	return len(rel) > 2 && rel[:3] == ".."+string(filepath.Separator)
}
