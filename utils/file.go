package utils

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"
)

// RemoveFileNoError will remove the file at the given path if it exists. Any
// errors will be suppressed.
func RemoveFileNoError(path string) {
	utils.UncheckedErrorFunc(func() error {
		if _, err := os.Stat(path); err == nil {
			return os.Remove(path)
		}
		return nil
	})
}

// WriteFileAtomic writes data to a temporary file next to path and renames it over path, so a
// reader never observes a partially written file.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.Wrapf(err, "cannot create temporary file in %q", dir)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			RemoveFileNoError(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return multierr.Combine(errors.Wrapf(err, "cannot write %q", tmpName), tmp.Close())
	}
	if err := tmp.Sync(); err != nil {
		return multierr.Combine(errors.Wrapf(err, "cannot sync %q", tmpName), tmp.Close())
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
