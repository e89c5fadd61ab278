package ops

import (
	"archive/tar"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var ErrTargetNotEmpty = errors.New("restore target already holds task data")

// Summary describes one archive written by Backup.
type Summary struct {
	Archive string
	Files   []string
	// Digest covers file names and contents, see Digest.
	Digest string
}

// transient reports whether a data-dir file is runtime state that never
// goes into an archive: lock files and half-written saves.
func transient(name string) bool {
	base := filepath.Base(name)
	return strings.HasSuffix(base, ".lock") || strings.Contains(base, ".tmp-")
}

// Backup writes the regular files of dataDir to a gzip'd tar at
// archivePath. The archive appears only once it is complete.
func Backup(dataDir, archivePath string) (Summary, error) {
	if strings.TrimSpace(dataDir) == "" || strings.TrimSpace(archivePath) == "" {
		return Summary{}, fmt.Errorf("data dir and archive path are required")
	}
	dataDir = filepath.Clean(strings.TrimSpace(dataDir))
	archivePath = filepath.Clean(strings.TrimSpace(archivePath))
	info, err := os.Stat(dataDir)
	if err != nil {
		return Summary{}, err
	}
	if !info.IsDir() {
		return Summary{}, fmt.Errorf("data dir is not a directory: %s", dataDir)
	}

	files, err := dataFiles(dataDir)
	if err != nil {
		return Summary{}, err
	}

	if err := os.MkdirAll(filepath.Dir(archivePath), 0o755); err != nil {
		return Summary{}, err
	}
	part := archivePath + ".part"
	if err := writeArchive(dataDir, files, part); err != nil {
		_ = os.Remove(part)
		return Summary{}, err
	}
	if err := os.Rename(part, archivePath); err != nil {
		_ = os.Remove(part)
		return Summary{}, err
	}

	digest, err := digestFiles(dataDir, files)
	if err != nil {
		return Summary{}, err
	}
	return Summary{Archive: archivePath, Files: files, Digest: digest}, nil
}

func writeArchive(dataDir string, files []string, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)

	for _, rel := range files {
		if err := addFile(tw, filepath.Join(dataDir, filepath.FromSlash(rel)), rel); err != nil {
			return fmt.Errorf("archive %s: %w", rel, err)
		}
	}
	if err := tw.Close(); err != nil {
		return err
	}
	if err := gz.Close(); err != nil {
		return err
	}
	return f.Sync()
}

func addFile(tw *tar.Writer, path, name string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return err
	}
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = name
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err = io.Copy(tw, src)
	return err
}

// Restore unpacks archivePath into targetDir and returns the restored file
// names. Existing non-transient files in targetDir make it fail with
// ErrTargetNotEmpty unless overwrite is set.
func Restore(archivePath, targetDir string, overwrite bool) ([]string, error) {
	if strings.TrimSpace(archivePath) == "" || strings.TrimSpace(targetDir) == "" {
		return nil, fmt.Errorf("archive path and target dir are required")
	}
	archivePath = filepath.Clean(strings.TrimSpace(archivePath))
	targetDir = filepath.Clean(strings.TrimSpace(targetDir))
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return nil, err
	}
	if !overwrite {
		existing, err := dataFiles(targetDir)
		if err != nil {
			return nil, err
		}
		if len(existing) > 0 {
			return nil, fmt.Errorf("%w: %s", ErrTargetNotEmpty, targetDir)
		}
	}

	f, err := os.Open(archivePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", archivePath, err)
	}
	defer gz.Close()

	var restored []string
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return restored, err
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		rel, err := entryPath(hdr.Name)
		if err != nil {
			return restored, err
		}
		if transient(rel) {
			continue
		}
		if err := extractFile(tr, filepath.Join(targetDir, rel), fs.FileMode(hdr.Mode).Perm()); err != nil {
			return restored, fmt.Errorf("restore %s: %w", rel, err)
		}
		restored = append(restored, filepath.ToSlash(rel))
	}
	return restored, nil
}

// extractFile writes through a temp file so a store being read never sees
// a partial file.
func extractFile(r io.Reader, outPath string, mode fs.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(outPath), filepath.Base(outPath)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if mode == 0 {
		mode = 0o644
	}
	if err := tmp.Chmod(mode); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, outPath)
}

func entryPath(name string) (string, error) {
	name = filepath.Clean(filepath.FromSlash(strings.TrimSpace(name)))
	switch {
	case name == "." || name == "":
		return "", fmt.Errorf("invalid archive entry path")
	case filepath.IsAbs(name):
		return "", fmt.Errorf("invalid absolute archive entry path: %s", name)
	case name == ".." || strings.HasPrefix(name, ".."+string(filepath.Separator)):
		return "", fmt.Errorf("invalid archive entry path traversal: %s", name)
	}
	return name, nil
}

// dataFiles lists the archivable regular files under dir, slash-separated
// and sorted.
func dataFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() || transient(path) {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// Digest hashes the archivable files of dir. Two directories with the same
// digest restore to the same task data.
func Digest(dir string) (string, error) {
	files, err := dataFiles(filepath.Clean(dir))
	if err != nil {
		return "", err
	}
	return digestFiles(dir, files)
}

func digestFiles(dir string, files []string) (string, error) {
	h := sha256.New()
	for _, rel := range files {
		_, _ = io.WriteString(h, rel+"\n")
		b, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(rel)))
		if err != nil {
			return "", err
		}
		_, _ = h.Write(b)
		_, _ = io.WriteString(h, "\n")
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
