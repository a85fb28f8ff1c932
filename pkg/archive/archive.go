// Package archive turns a deploy source path into the single artifact that is
// uploaded. Regular files are used as they are. Directories are zipped into a
// freshly created private temporary directory.
package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/jvreagan/static-pages-deploy/pkg/logging"
	"github.com/jvreagan/static-pages-deploy/pkg/types"
)

// TempDirPattern is the os.MkdirTemp pattern used for archive directories.
const TempDirPattern = "static-pages-deploy-"

// Zipper prepares and releases artifacts.
// The zero value is ready to use and writes under os.TempDir().
type Zipper struct {
	// Parent directory for temporary archive directories - optional
	TempRoot string
}

// Prepare returns the artifact to upload for sourcePath.
//
// The caller must have checked that sourcePath exists. For a regular file the
// returned artifact points at sourcePath itself and nothing is created. For a
// directory, a new temporary directory is created and the archive is written
// into it as "<uuid>.zip". The returned artifact is non-nil even when an error
// occurs after the temporary directory was created, so the caller can always
// hand it to Release.
func (z *Zipper) Prepare(sourcePath string) (*types.Artifact, error) {
	info, err := os.Stat(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", sourcePath, err)
	}

	if !info.IsDir() {
		return &types.Artifact{Path: sourcePath, IsArchive: false}, nil
	}

	tmpDir, err := os.MkdirTemp(z.TempRoot, TempDirPattern)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}

	artifact := &types.Artifact{
		Path:      filepath.Join(tmpDir, uuid.NewString()+".zip"),
		IsArchive: true,
		Dir:       tmpDir,
	}

	logging.Debug("Zipping directory", "source", sourcePath, "archive", artifact.Path)

	zipFile, err := os.OpenFile(artifact.Path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return artifact, fmt.Errorf("failed to create archive file: %w", err)
	}

	if err := zipDirectory(sourcePath, tmpDir, zipFile); err != nil {
		zipFile.Close()
		return artifact, fmt.Errorf("failed to zip directory: %w", err)
	}
	if err := zipFile.Close(); err != nil {
		return artifact, fmt.Errorf("failed to write archive: %w", err)
	}

	return artifact, nil
}

// Release removes a generated archive and its temporary directory.
// It is a no-op for nil artifacts and for artifacts that are not archives, so
// it never deletes user input. Missing files are not an error.
func (z *Zipper) Release(a *types.Artifact) error {
	if a == nil || !a.IsArchive {
		return nil
	}

	var errs []error
	if a.Path != "" {
		if err := os.Remove(a.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("failed to remove archive %s: %w", a.Path, err))
		}
	}
	if a.Dir != "" {
		if err := os.RemoveAll(a.Dir); err != nil {
			errs = append(errs, fmt.Errorf("failed to remove temp directory %s: %w", a.Dir, err))
		}
	}
	return errors.Join(errs...)
}

// zipDirectory writes every entry below sourceDir into w as a zip archive.
// Entry names are slash separated and relative to sourceDir. Directories get
// their own entries so empty directories survive extraction. skipDir, when
// non-empty, is left out together with everything below it; it is the
// archive's own temporary directory, which may sit inside sourceDir.
func zipDirectory(sourceDir, skipDir string, w io.Writer) error {
	var skip fs.FileInfo
	if skipDir != "" {
		info, err := os.Stat(skipDir)
		if err != nil {
			return err
		}
		skip = info
	}

	zipWriter := zip.NewWriter(w)

	err := filepath.WalkDir(sourceDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(sourceDir, path)
		if err != nil {
			return err
		}
		if relPath == "." {
			return nil
		}
		name := filepath.ToSlash(relPath)

		// Symlinks are followed; anything that is not a file or directory
		// after resolution (sockets, devices) is skipped.
		info, err := os.Stat(path)
		if err != nil {
			return err
		}

		switch {
		case info.IsDir():
			if skip != nil && os.SameFile(info, skip) {
				logging.Debug("Skipping archive temp directory", "path", path)
				return filepath.SkipDir
			}
			if d.Type()&fs.ModeSymlink != 0 {
				logging.Debug("Skipping symlinked directory", "path", path)
				return nil
			}
			header, err := zip.FileInfoHeader(info)
			if err != nil {
				return err
			}
			header.Name = name + "/"
			header.Method = zip.Store
			_, err = zipWriter.CreateHeader(header)
			return err

		case info.Mode().IsRegular():
			return addFile(zipWriter, path, name, info)

		default:
			logging.Debug("Skipping irregular file", "path", path, "mode", info.Mode().String())
			return nil
		}
	})
	if err != nil {
		zipWriter.Close()
		return err
	}

	return zipWriter.Close()
}

// addFile copies one regular file into the archive under name.
func addFile(zipWriter *zip.Writer, path, name string, info fs.FileInfo) error {
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = name
	header.Method = zip.Deflate

	writer, err := zipWriter.CreateHeader(header)
	if err != nil {
		return err
	}

	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = io.Copy(writer, file)
	return err
}
