// Package storage defines the remote blob store used for payloads, the ledger,
// and the blacklist. Implementations live in sub-packages (memory, local, gcs,
// dropbox) so the finder stays independent of any vendor SDK.
package storage

import (
	"context"
	"errors"
	"path"
	"strings"
)

// ErrNotFound is returned by Get when no object exists at the path.
var ErrNotFound = errors.New("object not found")

// Store is a key-value blob store addressed by slash-separated paths.
type Store interface {
	// Get downloads the object at path or returns an error wrapping ErrNotFound.
	Get(ctx context.Context, path string) ([]byte, error)
	// Put uploads data to path, overwriting any existing object.
	Put(ctx context.Context, path string, data []byte) error
	// List returns the paths of all objects under prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Join builds an object path from segments, skipping empty ones. The result
// never has leading or trailing slashes.
func Join(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(strings.TrimSpace(p), "/")
		if p != "" {
			kept = append(kept, p)
		}
	}
	if len(kept) == 0 {
		return ""
	}
	return strings.TrimPrefix(path.Join(kept...), "/")
}

// ContentType guesses a MIME type from the object extension.
func ContentType(objectPath string) string {
	switch strings.ToLower(path.Ext(objectPath)) {
	case ".pdf":
		return "application/pdf"
	case ".csv":
		return "text/csv; charset=utf-8"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
