// Package thumbs stores diagram thumbnails as files keyed by diagram id.
//
// Thumbnails arrive as base64 data URLs and are written to
// {dataDir}/thumbnails/{safeId}.png. Ids are sanitized to a fixed charset
// before touching the filesystem, which rules out path traversal. Files with
// no matching diagram are collected by the orphan reaper (reaper.go) once
// they age past the grace period.
package thumbs

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Accepted raster image MIME types. SVG is deliberately excluded: it can
// carry script payloads.
var allowedMIMETypes = map[string]struct{}{
	"image/png":  {},
	"image/jpeg": {},
	"image/webp": {},
	"image/gif":  {},
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// SanitizeID maps a diagram id to a safe filename stem: every character
// outside [A-Za-z0-9_-] becomes an underscore.
func SanitizeID(id string) string {
	return unsafeChars.ReplaceAllString(id, "_")
}

// Store is a file-backed thumbnail store.
type Store struct {
	dir string
}

// New creates the thumbnail directory under dataDir if needed.
func New(dataDir string) (*Store, error) {
	dir := filepath.Join(dataDir, "thumbnails")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create thumbnail directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the thumbnail directory path.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, SanitizeID(id)+".png")
}

// Save decodes a data URL and writes it for the given diagram id. Only
// raster image types are accepted.
func (s *Store) Save(id, dataURL string) error {
	payload, err := decodeDataURL(dataURL)
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.path(id), payload, 0o640); err != nil {
		return fmt.Errorf("failed to write thumbnail: %w", err)
	}
	return nil
}

// Load returns the stored thumbnail as a PNG data URL, or "" when absent.
func (s *Store) Load(id string) (string, error) {
	data, err := os.ReadFile(s.path(id))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read thumbnail: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(data), nil
}

// Exists reports whether a thumbnail is stored for id.
func (s *Store) Exists(id string) bool {
	_, err := os.Stat(s.path(id))
	return err == nil
}

// Delete removes the thumbnail for id. Missing files are not an error.
func (s *Store) Delete(id string) error {
	err := os.Remove(s.path(id))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete thumbnail: %w", err)
	}
	return nil
}

// List returns the sanitized ids of every stored thumbnail.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list thumbnails: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasSuffix(name, ".png") {
			ids = append(ids, strings.TrimSuffix(name, ".png"))
		}
	}
	return ids, nil
}

// decodeDataURL validates and decodes a base64 image data URL.
func decodeDataURL(dataURL string) ([]byte, error) {
	const scheme = "data:"
	if !strings.HasPrefix(dataURL, scheme) {
		return nil, fmt.Errorf("not a data URL")
	}
	rest := dataURL[len(scheme):]
	semi := strings.IndexByte(rest, ';')
	comma := strings.IndexByte(rest, ',')
	if semi < 0 || comma < 0 || semi > comma {
		return nil, fmt.Errorf("malformed data URL")
	}
	mime := rest[:semi]
	if _, ok := allowedMIMETypes[mime]; !ok {
		return nil, fmt.Errorf("unsupported image type %q", mime)
	}
	if rest[semi+1:comma] != "base64" {
		return nil, fmt.Errorf("data URL must be base64-encoded")
	}
	payload, err := base64.StdEncoding.DecodeString(rest[comma+1:])
	if err != nil {
		return nil, fmt.Errorf("invalid base64 payload: %w", err)
	}
	return payload, nil
}
