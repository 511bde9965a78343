// Package media implements the media-hosting collaborator: it accepts raw
// upload bytes and returns a permanent URL. The store is deliberately dumb --
// a failed upload aborts the send that triggered it, so no message ever
// references media that was not fully written.
package media

import (
	"context"
	"fmt"
	"path"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/nfrund/pulse/internal/domain"
)

// maxUploadBytes caps a single media upload (images and video alike).
const maxUploadBytes = 25 << 20 // 25 MiB

var extensions = map[domain.MediaKind]string{
	domain.MediaImage: ".img",
	domain.MediaVideo: ".mp4",
}

// Store writes uploads to a filesystem root and serves them under /media.
// The afero abstraction keeps tests on an in-memory filesystem.
type Store struct {
	fs   afero.Fs
	root string
}

// NewStore creates a media store rooted at dir.
func NewStore(fs afero.Fs, dir string) *Store {
	return &Store{fs: fs, root: dir}
}

// Upload writes the payload under a fresh name and returns its permanent URL.
func (s *Store) Upload(ctx context.Context, data []byte, kind domain.MediaKind) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty %s upload", kind)
	}
	if len(data) > maxUploadBytes {
		return "", fmt.Errorf("%s upload exceeds %d bytes", kind, maxUploadBytes)
	}
	ext, ok := extensions[kind]
	if !ok {
		return "", fmt.Errorf("unsupported media kind %q", kind)
	}

	name := uuid.NewString() + ext
	target := filepath.Join(s.root, name)

	if err := s.fs.MkdirAll(s.root, 0o755); err != nil {
		return "", fmt.Errorf("failed to prepare media directory: %w", err)
	}
	if err := afero.WriteFile(s.fs, target, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to store %s: %w", kind, err)
	}

	return path.Join("/media", name), nil
}

// Open returns the stored bytes for a previously uploaded file name. The
// HTTP layer uses this to serve /media requests.
func (s *Store) Open(name string) ([]byte, error) {
	// Reject traversal; uploaded names are flat uuids.
	if filepath.Base(name) != name {
		return nil, fmt.Errorf("invalid media name %q", name)
	}
	return afero.ReadFile(s.fs, filepath.Join(s.root, name))
}
