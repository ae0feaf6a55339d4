package packager

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"bluegreen-deployment/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSite(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		full := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
	return dir
}

func validSite(t *testing.T) map[string]string {
	t.Helper()
	return map[string]string{
		"index.html":     "<html><body>hello</body></html>",
		"manifest.json":  `{"version": "1.4.2"}`,
		"css/style.css":  "body { margin: 0 }",
		"posts/one.html": "<html>post one</html>",
	}
}

func newTestPackager(t *testing.T) *Packager {
	p := New()
	p.OutDir = t.TempDir()
	return p
}

func TestPackageDeterministicChecksum(t *testing.T) {
	p := newTestPackager(t)

	// identical content in two different directories
	a, err := p.Package(writeSite(t, validSite(t)))
	require.NoError(t, err)
	b, err := p.Package(writeSite(t, validSite(t)))
	require.NoError(t, err)

	assert.Equal(t, a.Checksum, b.Checksum,
		"identical content must produce identical checksums")
	assert.NotEqual(t, a.ID, b.ID, "artifact IDs are unique per packaging")
}

func TestPackageChecksumChangesWithContent(t *testing.T) {
	p := newTestPackager(t)

	base, err := p.Package(writeSite(t, validSite(t)))
	require.NoError(t, err)

	changed := validSite(t)
	changed["index.html"] = "<html><body>changed</body></html>"
	other, err := p.Package(writeSite(t, changed))
	require.NoError(t, err)

	assert.NotEqual(t, base.Checksum, other.Checksum)
}

func TestPackageChecksumChangesWithRename(t *testing.T) {
	p := newTestPackager(t)

	base, err := p.Package(writeSite(t, validSite(t)))
	require.NoError(t, err)

	renamed := validSite(t)
	renamed["posts/uno.html"] = renamed["posts/one.html"]
	delete(renamed, "posts/one.html")
	other, err := p.Package(writeSite(t, renamed))
	require.NoError(t, err)

	assert.NotEqual(t, base.Checksum, other.Checksum,
		"a renamed file is different content")
}

func TestPackageMissingMarkers(t *testing.T) {
	p := newTestPackager(t)

	tests := []struct {
		name    string
		missing string
	}{
		{"no index document", "index.html"},
		{"no metadata document", "manifest.json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			site := validSite(t)
			delete(site, tt.missing)

			_, err := p.Package(writeSite(t, site))
			require.Error(t, err)

			var perr *models.PackagingError
			require.True(t, errors.As(err, &perr), "want PackagingError, got %T", err)
			assert.Contains(t, perr.Error(), tt.missing)
		})
	}
}

func TestPackageMissingSourcePath(t *testing.T) {
	p := newTestPackager(t)

	_, err := p.Package(filepath.Join(t.TempDir(), "does-not-exist"))
	var perr *models.PackagingError
	require.True(t, errors.As(err, &perr))
}

func TestPackageVersionFromManifest(t *testing.T) {
	p := newTestPackager(t)

	a, err := p.Package(writeSite(t, validSite(t)))
	require.NoError(t, err)
	assert.Equal(t, "1.4.2", a.Version)
}

func TestPackageVersionFallback(t *testing.T) {
	p := newTestPackager(t)

	site := validSite(t)
	site["manifest.json"] = `{}`
	a, err := p.Package(writeSite(t, site))
	require.NoError(t, err)
	assert.Equal(t, "sha-"+a.Checksum[:12], a.Version)
}

func TestPackageWritesArchive(t *testing.T) {
	p := newTestPackager(t)

	a, err := p.Package(writeSite(t, validSite(t)))
	require.NoError(t, err)

	info, err := os.Stat(a.Archive)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}
