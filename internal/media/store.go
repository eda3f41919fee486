package media

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"rentonmap/internal/config"
)

// Store is an image host addressed by object key.
type Store interface {
	Driver() string
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
	Delete(ctx context.Context, key string) error
	// KeyFromURL returns the object key behind a URL this store produced.
	KeyFromURL(url string) (string, bool)
}

// NewStore builds the store selected by MEDIA_DRIVER.
func NewStore(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.MediaDriver {
	case config.MediaDriverS3:
		return NewS3Store(ctx, cfg.MediaS3Bucket, cfg.MediaS3Region, cfg.MediaPublicBaseURL)
	case config.MediaDriverLocal, "":
		base := cfg.MediaPublicBaseURL
		if base == "" {
			base = "/media"
		}
		return NewLocalStore(cfg.MediaLocalDir, base), nil
	default:
		return nil, fmt.Errorf("unknown media driver %q", cfg.MediaDriver)
	}
}

// LocalStore keeps images on disk; the server exposes Dir under BaseURL.
type LocalStore struct {
	Dir     string
	BaseURL string
}

func NewLocalStore(dir, baseURL string) *LocalStore {
	return &LocalStore{Dir: dir, BaseURL: strings.TrimRight(baseURL, "/")}
}

func (s *LocalStore) Driver() string { return config.MediaDriverLocal }

func (s *LocalStore) Put(_ context.Context, key, _ string, data []byte) (string, error) {
	abs, err := s.path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", fmt.Errorf("create media dir: %w", err)
	}
	if err := os.WriteFile(abs, data, 0o644); err != nil {
		return "", fmt.Errorf("write media file: %w", err)
	}
	return s.BaseURL + "/" + key, nil
}

func (s *LocalStore) Delete(_ context.Context, key string) error {
	abs, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove media file: %w", err)
	}
	return nil
}

func (s *LocalStore) KeyFromURL(url string) (string, bool) {
	key, ok := strings.CutPrefix(url, s.BaseURL+"/")
	if !ok || key == "" {
		return "", false
	}
	if _, err := s.path(key); err != nil {
		return "", false
	}
	return key, true
}

func (s *LocalStore) path(key string) (string, error) {
	clean := path.Clean("/" + key)
	if clean == "/" || clean != "/"+key {
		return "", fmt.Errorf("invalid media key %q", key)
	}
	return filepath.Join(s.Dir, filepath.FromSlash(key)), nil
}
