// Package archive packages directory assets into zip files with
// deterministic contents, so repeated packaging of the same source produces
// byte-identical archives and the on-disk cache stays valid.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	iofs "io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/input-output-hk/catalyst-forge-libs/fs"
)

// ZipDirectory archives the contents of sourceDir into a zip file at
// outputPath. Entries are written in sorted path order with fixed
// timestamps, so the output depends only on file contents and modes. The
// debug callback, if non-nil, receives detail messages.
func ZipDirectory(fsys fs.Filesystem, sourceDir, outputPath string, debug func(string)) (err error) {
	paths, err := collectFiles(fsys, sourceDir, debug)
	if err != nil {
		return err
	}

	out, err := fsys.Create(outputPath)
	if err != nil {
		return fmt.Errorf("archive: create %q: %w", outputPath, err)
	}
	defer func() {
		if closeErr := out.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("archive: close %q: %w", outputPath, closeErr)
		}
		if err != nil {
			// Never leave a half-written archive behind: a partial file would
			// be mistaken for a valid cached package on the next run.
			_ = fsys.Remove(outputPath)
		}
	}()

	zw := zip.NewWriter(out)
	for _, rel := range paths {
		if err := addFile(fsys, zw, sourceDir, rel); err != nil {
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("archive: finalize %q: %w", outputPath, err)
	}
	return nil
}

// collectFiles walks the source directory and returns the relative paths of
// all regular files, sorted.
func collectFiles(fsys fs.Filesystem, sourceDir string, debug func(string)) ([]string, error) {
	var paths []string
	err := fsys.Walk(sourceDir, func(path string, info iofs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if !info.Mode().IsRegular() {
			if debug != nil {
				debug(fmt.Sprintf("skipping non-regular file %s", path))
			}
			return nil
		}
		rel, err := filepath.Rel(sourceDir, path)
		if err != nil {
			return err
		}
		paths = append(paths, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("archive: walk %q: %w", sourceDir, err)
	}
	sort.Strings(paths)
	return paths, nil
}

func addFile(fsys fs.Filesystem, zw *zip.Writer, sourceDir, rel string) error {
	full := filepath.Join(sourceDir, rel)

	info, err := fsys.Stat(full)
	if err != nil {
		return fmt.Errorf("archive: stat %q: %w", full, err)
	}

	// The zero Modified time pins every entry to the zip epoch, which keeps
	// archives reproducible across runs.
	header := &zip.FileHeader{
		Name:   filepath.ToSlash(rel),
		Method: zip.Deflate,
	}
	header.SetMode(info.Mode())

	w, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("archive: add %q: %w", rel, err)
	}

	f, err := fsys.Open(full)
	if err != nil {
		return fmt.Errorf("archive: open %q: %w", full, err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("archive: write %q: %w", rel, err)
	}
	return nil
}

// IsArchivePath reports whether a packaged path looks like a zip archive,
// used for content-type selection.
func IsArchivePath(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".zip")
}
