package installer

import (
	"io/fs"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/charlievieth/fastwalk"
)

// CopyDir copies the regular files of srcDir into dstDir, preserving the
// relative layout.
func CopyDir(srcDir, dstDir string) error {
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return err
	}

	conf := fastwalk.Config{Follow: false}
	return fastwalk.Walk(&conf, srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dstDir, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		src, err := os.Open(path)
		if err != nil {
			return err
		}
		defer src.Close()
		return writeFile(target, src)
	})
}

// DirSize returns the total size in bytes of the regular files under dir.
func DirSize(dir string) (int64, error) {
	var total atomic.Int64

	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			if info, err := d.Info(); err == nil {
				total.Add(info.Size())
			}
		}
		return nil
	})
	return total.Load(), err
}
