package utils

import (
	"os"
	"path/filepath"
	"testing"

	"go.viam.com/test"
)

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "params.yml")

	test.That(t, WriteFileAtomic(path, []byte("K: 1\n"), 0o644), test.ShouldBeNil)
	test.That(t, WriteFileAtomic(path, []byte("K: 2\n"), 0o644), test.ShouldBeNil)
	data, err := os.ReadFile(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(data), test.ShouldEqual, "K: 2\n")

	entries, err := os.ReadDir(dir)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(entries), test.ShouldEqual, 1)

	err = WriteFileAtomic(filepath.Join(dir, "missing", "params.yml"), []byte("x"), 0o644)
	test.That(t, err, test.ShouldNotBeNil)

	RemoveFileNoError(path)
	RemoveFileNoError(path)
	_, err = os.Stat(path)
	test.That(t, os.IsNotExist(err), test.ShouldBeTrue)
}
