// Package objectstore keeps uploaded statement files.
package objectstore

import (
	"context"
	"errors"
	"path"
	"strings"

	"github.com/google/uuid"
)

// ErrNotFound is returned by Get for a key that does not exist.
var ErrNotFound = errors.New("object not found")

// Store puts, reads and deletes file bytes by key.
type Store interface {
	// Put stores data under a fresh key derived from hint and returns the key.
	Put(ctx context.Context, data []byte, hint string) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete removes key and reports whether it existed.
	Delete(ctx context.Context, key string) (bool, error)
}

// NewKey derives a unique key from a logical hint such as "<user>/<file>":
// the directory is kept and the file name gets a random 8-hex prefix.
// Hints without a directory go under "uploads/".
func NewKey(hint string) string {
	hint = strings.TrimLeft(path.Clean("/"+strings.ReplaceAll(hint, "\\", "/")), "/")
	dir, file := path.Split(hint)
	if dir == "" {
		dir = "uploads/"
	}
	if file == "" || file == "." {
		file = "file"
	}
	return dir + keyPrefix() + "_" + file
}

// keyPrefix is the first 8 hex digits of a random UUID.
func keyPrefix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
