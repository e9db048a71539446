package installer

import (
	"archive/tar"
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/klauspost/compress/gzip"
	"github.com/rfdeck/appos/internal/logging"
	"github.com/rfdeck/appos/internal/shared/errs"
	"go.uber.org/zap"
)

// Installer materializes app packages into install directories. Supported
// package formats, sniffed by content rather than extension: zip archives,
// gzip tarballs, and bare script files. A bare script is installed as
// index.js with a default manifest written beside it.
type Installer struct {
	log *logging.Logger
}

// New creates an installer.
func New(log *logging.Logger) *Installer {
	if log == nil {
		log = logging.NewNop()
	}
	return &Installer{log: log.Component("installer")}
}

// Extract populates destDir with an entry-point source file and a manifest
// from the package at packagePath. On any failure destDir is removed so a
// failed install leaves no partial state.
func (i *Installer) Extract(packagePath, destDir string) error {
	if packagePath == "" || destDir == "" {
		return errs.ErrInvalidArgument
	}

	if _, err := os.Stat(packagePath); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("package %s: %w", packagePath, errs.ErrNotFound)
		}
		return fmt.Errorf("failed to stat package %s: %w", packagePath, err)
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("failed to create install dir: %w", err)
	}

	mtype, err := mimetype.DetectFile(packagePath)
	if err != nil {
		os.RemoveAll(destDir)
		return fmt.Errorf("failed to detect package type: %w", err)
	}

	switch {
	case mtype.Is("application/zip"):
		err = i.extractZip(packagePath, destDir)
	case mtype.Is("application/gzip"):
		err = i.extractTarGz(packagePath, destDir)
	default:
		err = i.installBareScript(packagePath, destDir)
	}
	if err != nil {
		os.RemoveAll(destDir)
		return err
	}

	i.log.Info("package extracted",
		zap.String("package", packagePath),
		zap.String("dest", destDir),
		zap.String("type", mtype.String()))
	return nil
}

func (i *Installer) extractZip(packagePath, destDir string) error {
	r, err := zip.OpenReader(packagePath)
	if err != nil {
		return fmt.Errorf("failed to open zip: %w", err)
	}
	defer r.Close()

	for _, f := range r.File {
		target, err := safeJoin(destDir, f.Name)
		if err != nil {
			return err
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		src, err := f.Open()
		if err != nil {
			return fmt.Errorf("failed to open zip entry %s: %w", f.Name, err)
		}
		if err := writeFile(target, src); err != nil {
			src.Close()
			return err
		}
		src.Close()
	}
	return nil
}

func (i *Installer) extractTarGz(packagePath, destDir string) error {
	f, err := os.Open(packagePath)
	if err != nil {
		return fmt.Errorf("failed to open package: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("failed to open gzip stream: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read tar entry: %w", err)
		}

		target, err := safeJoin(destDir, hdr.Name)
		if err != nil {
			return err
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			if err := writeFile(target, tr); err != nil {
				return err
			}
		}
	}
}

// installBareScript copies a single script file to index.js and writes a
// default manifest if the package carried none.
func (i *Installer) installBareScript(packagePath, destDir string) error {
	src, err := os.Open(packagePath)
	if err != nil {
		return fmt.Errorf("failed to open package: %w", err)
	}
	defer src.Close()

	if err := writeFile(filepath.Join(destDir, "index.js"), src); err != nil {
		return err
	}
	return writeDefaultManifest(destDir)
}

// safeJoin joins an archive entry path under destDir, rejecting traversal.
func safeJoin(destDir, name string) (string, error) {
	target := filepath.Join(destDir, filepath.Clean("/"+name))
	if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
		return "", fmt.Errorf("archive entry escapes install dir: %s", name)
	}
	return target, nil
}

func writeFile(path string, src io.Reader) error {
	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
