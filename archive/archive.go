// Package archive extracts uploaded project archives into a workspace
// root. Extraction is all-or-nothing: every entry path is validated before
// a single byte is written, and content is staged outside the root until
// the whole archive has extracted cleanly, so a zip-slip entry or an I/O
// failure can never leave a partially-applied upload behind.
package archive

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"forge/apperr"
)

const (
	// MaxEntries bounds the number of files in one archive.
	MaxEntries = 10000
	// MaxUncompressed bounds the total uncompressed size of one archive.
	MaxUncompressed = 200 << 20
)

type Installer struct{}

func NewInstaller() *Installer { return &Installer{} }

// Install extracts zipBytes into root. Corrupt input is INVALID_ARCHIVE;
// an entry escaping the root is PATH_ESCAPE; in both cases nothing is
// written to the root.
func (i *Installer) Install(root string, zipBytes []byte) error {
	zr, err := zip.NewReader(bytes.NewReader(zipBytes), int64(len(zipBytes)))
	if err != nil {
		return apperr.Wrap(apperr.CodeInvalidArchive, "not a valid zip archive", err)
	}
	if len(zr.File) > MaxEntries {
		return apperr.Newf(apperr.CodeInvalidArchive, "archive has more than %d entries", MaxEntries)
	}

	// Validate every entry before any extraction happens.
	var total uint64
	for _, f := range zr.File {
		if err := validateEntry(f); err != nil {
			return err
		}
		total += f.UncompressedSize64
		if total > MaxUncompressed {
			return apperr.Newf(apperr.CodeInvalidArchive,
				"archive exceeds %d uncompressed bytes", int64(MaxUncompressed))
		}
	}

	// Stage next to the root so the final move stays on one filesystem.
	stage, err := os.MkdirTemp(filepath.Dir(root), ".extract-")
	if err != nil {
		return apperr.Wrap(apperr.CodeIO, "create staging directory", err)
	}
	defer os.RemoveAll(stage)

	for _, f := range zr.File {
		if err := extractEntry(stage, f); err != nil {
			return err
		}
	}

	return promote(stage, root)
}

// validateEntry rejects paths that would land outside the extraction root
// and entry types that could be abused to create one (symlinks, devices).
func validateEntry(f *zip.File) error {
	name := f.Name
	if strings.ContainsRune(name, 0) {
		return apperr.Newf(apperr.CodeInvalidArchive, "entry name contains NUL")
	}
	// Zip names use forward slashes regardless of platform.
	if strings.HasPrefix(name, "/") || strings.Contains(name, `\`) {
		return apperr.Newf(apperr.CodePathEscape, "entry %q has an absolute or non-portable path", name)
	}
	clean := filepath.Clean(filepath.FromSlash(name))
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return apperr.Newf(apperr.CodePathEscape, "entry %q escapes extraction root", name)
	}
	mode := f.Mode()
	if mode&os.ModeSymlink != 0 {
		return apperr.Newf(apperr.CodeInvalidArchive, "entry %q is a symlink", name)
	}
	if !mode.IsRegular() && !mode.IsDir() {
		return apperr.Newf(apperr.CodeInvalidArchive, "entry %q has unsupported type", name)
	}
	return nil
}

func extractEntry(stage string, f *zip.File) error {
	dest := filepath.Join(stage, filepath.FromSlash(f.Name))

	if f.Mode().IsDir() {
		if err := os.MkdirAll(dest, 0o755); err != nil {
			return apperr.Wrap(apperr.CodeIO, "create directory", err)
		}
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return apperr.Wrap(apperr.CodeIO, "create parent directory", err)
	}

	rc, err := f.Open()
	if err != nil {
		return apperr.Wrap(apperr.CodeInvalidArchive, "open archive entry", err)
	}
	defer rc.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return apperr.Wrap(apperr.CodeIO, "create file", err)
	}
	defer out.Close()

	// LimitReader guards against an entry lying about its size.
	if _, err := io.Copy(out, io.LimitReader(rc, MaxUncompressed+1)); err != nil {
		return apperr.Wrap(apperr.CodeIO, "extract file", err)
	}
	return nil
}

// promote moves the staged tree's top-level entries into the root,
// replacing same-named entries from an earlier upload. Every entry has
// already been validated and extracted; a rename failing mid-loop can still
// leave the root with a mix of old and new top-level entries, bounded to
// the names the archive carries.
func promote(stage, root string) error {
	entries, err := os.ReadDir(stage)
	if err != nil {
		return apperr.Wrap(apperr.CodeIO, "read staging directory", err)
	}
	for _, e := range entries {
		dest := filepath.Join(root, e.Name())
		if err := os.RemoveAll(dest); err != nil {
			return apperr.Wrap(apperr.CodeIO, "replace existing entry", err)
		}
		if err := os.Rename(filepath.Join(stage, e.Name()), dest); err != nil {
			return apperr.Wrap(apperr.CodeIO, "move extracted entry", err)
		}
	}
	return nil
}
