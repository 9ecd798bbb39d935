// Package fileutil holds the small filesystem helpers shared by the local
// state files (ledger, session) and the download staging area.
package fileutil

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// PartialSuffix is appended to a staged download until it is complete.
const PartialSuffix = ".part"

// WriteFileAtomic writes data to a temp file in the destination directory,
// syncs it, and renames it over path. Readers see either the old or the new
// content, never a truncated file.
func WriteFileAtomic(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		// No-op after a successful rename.
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}
	return nil
}

// FillFunc streams content into w and reports how many bytes it wrote.
type FillFunc func(w io.Writer) (int64, error)

// WriteStaged creates path+PartialSuffix, lets fill stream into it, and
// renames it to path only when fill succeeds. On any failure the partial
// file is removed, so path never names an incomplete download.
func WriteStaged(path string, fill FillFunc) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("create staging directory: %w", err)
	}

	partial := path + PartialSuffix
	f, err := os.Create(partial)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", filepath.Base(partial), err)
	}

	n, err := fill(f)
	if err != nil {
		f.Close()
		_ = os.Remove(partial)
		return n, err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(partial)
		return n, fmt.Errorf("close %s: %w", filepath.Base(partial), err)
	}
	if err := os.Rename(partial, path); err != nil {
		_ = os.Remove(partial)
		return n, fmt.Errorf("finalize %s: %w", filepath.Base(path), err)
	}
	return n, nil
}
