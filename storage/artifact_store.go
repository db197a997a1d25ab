// Package storage uploads run artifacts to object storage.
package storage

import (
	"context"
	"fmt"
	"mime"
	"path"
	"path/filepath"
	"strings"

	"community-orchestrator/config"
)

// ArtifactStore uploads a local file and returns its URI.
type ArtifactStore interface {
	Put(ctx context.Context, key, localPath string) (string, error)
}

// NewArtifactStore builds the backend selected by cfg. It returns nil when
// no backend is configured.
func NewArtifactStore(ctx context.Context, cfg config.ObjectStoreConfig) (ArtifactStore, error) {
	switch cfg.Backend {
	case "":
		return nil, nil
	case "minio":
		return NewMinIOStore(ctx, cfg)
	case "s3":
		return NewS3Store(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown object store backend %q", cfg.Backend)
	}
}

// ObjectKey joins prefix and the slash-separated parts into an object key.
func ObjectKey(prefix string, parts ...string) string {
	elems := make([]string, 0, len(parts)+1)
	if p := strings.Trim(prefix, "/"); p != "" {
		elems = append(elems, p)
	}
	for _, part := range parts {
		elems = append(elems, strings.ReplaceAll(part, " ", "_"))
	}
	return path.Join(elems...)
}

func contentType(localPath string) string {
	switch strings.ToLower(filepath.Ext(localPath)) {
	case ".csv":
		return "text/csv"
	case ".md":
		return "text/markdown"
	case ".log":
		return "text/plain"
	}
	if t := mime.TypeByExtension(filepath.Ext(localPath)); t != "" {
		return t
	}
	return "application/octet-stream"
}
