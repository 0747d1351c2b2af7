// Package blob stores opaque content (authored and generated lessons) in a
// filesystem directory or an S3-compatible bucket.
package blob

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

// Driver names a storage backend.
type Driver string

const (
	DriverFS Driver = "fs"
	DriverS3 Driver = "s3"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("blob not found")

// Store is a flat key/value content store. Keys are slash-separated
// relative paths such as "lessons/frac-unit.json".
type Store interface {
	Driver() Driver
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// Config selects and configures a backend.
type Config struct {
	Driver string   `mapstructure:"driver"`
	Root   string   `mapstructure:"root"`
	S3     S3Config `mapstructure:"s3"`
}

// Open constructs the Store named by cfg.Driver.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch Driver(strings.ToLower(cfg.Driver)) {
	case DriverFS, "":
		return NewFS(cfg.Root)
	case DriverS3:
		return NewS3(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unsupported blob driver %q", cfg.Driver)
	}
}

// cleanKey rejects keys that would escape the store root.
func cleanKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("empty blob key")
	}
	if strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("blob key %q is absolute", key)
	}
	clean := path.Clean(key)
	if clean == ".." || strings.HasPrefix(clean, "../") || strings.Contains(key, "..") {
		return "", fmt.Errorf("blob key %q escapes root", key)
	}
	return clean, nil
}

// LessonKey is where the lesson for atomID lives.
func LessonKey(atomID string) string {
	return "lessons/" + atomID + ".json"
}
