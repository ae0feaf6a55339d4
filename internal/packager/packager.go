package packager

import (
	"archive/tar"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"bluegreen-deployment/internal/logger"
	"bluegreen-deployment/internal/models"

	"github.com/google/uuid"
)

// Marker files the content pipeline must have produced. Anything else in
// the source tree is opaque payload.
var requiredMarkers = []string{"index.html", "manifest.json"}

// Packager bundles a built source directory into a versioned, checksummed
// tar.gz artifact.
type Packager struct {
	// OutDir is where archives are written; defaults to os.TempDir().
	OutDir string
}

func New() *Packager {
	return &Packager{OutDir: os.TempDir()}
}

// Package bundles sourcePath into an artifact. The checksum is computed
// over every regular file's path and contents in sorted-path order, so two
// packagings of identical content always produce identical checksums.
func (p *Packager) Package(sourcePath string) (*models.Artifact, error) {
	log := logger.WithModule("packager")

	if err := p.checkMarkers(sourcePath); err != nil {
		return nil, &models.PackagingError{SourcePath: sourcePath, Err: err}
	}

	files, err := listFiles(sourcePath)
	if err != nil {
		return nil, &models.PackagingError{SourcePath: sourcePath, Err: err}
	}

	checksum, err := checksumFiles(sourcePath, files)
	if err != nil {
		return nil, &models.PackagingError{SourcePath: sourcePath, Err: err}
	}

	id := uuid.New().String()
	archive := filepath.Join(p.OutDir, fmt.Sprintf("artifact-%s.tar.gz", checksum[:12]))
	if err := writeArchive(sourcePath, files, archive); err != nil {
		return nil, &models.PackagingError{SourcePath: sourcePath, Err: err}
	}

	artifact := &models.Artifact{
		ID:         id,
		SourcePath: sourcePath,
		Version:    readVersion(sourcePath, checksum),
		Checksum:   checksum,
		Archive:    archive,
		CreatedAt:  time.Now().UTC(),
	}

	log.WithField("checksum", checksum[:12]).
		WithField("files", len(files)).
		WithField("version", artifact.Version).
		Info("Packaged artifact")
	return artifact, nil
}

func (p *Packager) checkMarkers(sourcePath string) error {
	info, err := os.Stat(sourcePath)
	if err != nil {
		return fmt.Errorf("source path: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("source path %s is not a directory", sourcePath)
	}
	for _, marker := range requiredMarkers {
		if _, err := os.Stat(filepath.Join(sourcePath, marker)); err != nil {
			return fmt.Errorf("missing required file %s", marker)
		}
	}
	return nil
}

// listFiles returns all regular files under root as sorted slash-separated
// relative paths.
func listFiles(root string) ([]string, error) {
	var files []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
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

func checksumFiles(root string, files []string) (string, error) {
	h := sha256.New()
	for _, rel := range files {
		// Path participates in the hash so that renames change the checksum
		io.WriteString(h, rel)
		h.Write([]byte{0})
		f, err := os.Open(filepath.Join(root, filepath.FromSlash(rel)))
		if err != nil {
			return "", err
		}
		if _, err := io.Copy(h, f); err != nil {
			f.Close()
			return "", err
		}
		f.Close()
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func writeArchive(root string, files []string, dest string) error {
	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	tw := tar.NewWriter(gz)

	for _, rel := range files {
		full := filepath.Join(root, filepath.FromSlash(rel))
		info, err := os.Stat(full)
		if err != nil {
			return err
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = rel
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		f, err := os.Open(full)
		if err != nil {
			return err
		}
		if _, err := io.Copy(tw, f); err != nil {
			f.Close()
			return err
		}
		f.Close()
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("finalize tar: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("finalize gzip: %w", err)
	}
	return nil
}

// readVersion pulls a version string out of manifest.json when the content
// pipeline supplied one, otherwise derives one from the checksum.
func readVersion(root, checksum string) string {
	data, err := os.ReadFile(filepath.Join(root, "manifest.json"))
	if err == nil {
		var m struct {
			Version string `json:"version"`
		}
		if json.Unmarshal(data, &m) == nil && strings.TrimSpace(m.Version) != "" {
			return m.Version
		}
	}
	return "sha-" + checksum[:12]
}
