package backend

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

var ErrInvalidObjectPath = errors.New("invalid object path")

// FileStorage keeps bucket objects under a root directory that the gateway
// serves publicly at publicBase.
type FileStorage struct {
	root       string
	publicBase string
}

func NewFileStorage(root, publicBase string) *FileStorage {
	return &FileStorage{root: root, publicBase: strings.TrimRight(publicBase, "/")}
}

func (s *FileStorage) objectPath(bucket, objectPath string) (string, error) {
	if bucket == "" || strings.ContainsAny(bucket, `/\`) || bucket == "." || bucket == ".." {
		return "", ErrInvalidObjectPath
	}
	clean := path.Clean("/" + bucket + "/" + objectPath)
	if !strings.HasPrefix(clean, "/"+bucket+"/") {
		return "", ErrInvalidObjectPath
	}
	return filepath.Join(s.root, filepath.FromSlash(clean)), nil
}

// Upload stores data at bucket/objectPath, replacing any existing object.
func (s *FileStorage) Upload(ctx context.Context, bucket, objectPath string, data []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := s.objectPath(bucket, objectPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return fmt.Errorf("storage: write %s/%s: %w", bucket, objectPath, err)
	}
	return nil
}

// PublicURL returns the URL an object is served at. Absolute URLs are
// returned unchanged so already-resolved references pass through.
func (s *FileStorage) PublicURL(bucket, objectPath string) string {
	if strings.HasPrefix(objectPath, "http://") || strings.HasPrefix(objectPath, "https://") {
		return objectPath
	}
	segments := strings.Split(strings.Trim(objectPath, "/"), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return s.publicBase + "/" + url.PathEscape(bucket) + "/" + strings.Join(segments, "/")
}

// Remove deletes an object. Missing objects are not an error.
func (s *FileStorage) Remove(ctx context.Context, bucket, objectPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := s.objectPath(bucket, objectPath)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("storage: remove %s/%s: %w", bucket, objectPath, err)
	}
	return nil
}
