// Package fileserve implements the read-only workspace file GET: path
// sanitization identical to the apply path, an index.html fallback, and
// the Cache-Control table from the component design.
package fileserve

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"dreamcore/orchestrator/internal/applypath"
)

// Resolve validates and locates the file to serve for the given workspace
// and requested path, applying the index.html fallback to the first
// non-hidden *.html file in the workspace root when index.html is
// requested but missing.
func Resolve(workspaceRoot, requestedPath string) (fullPath string, err error) {
	if err := applypath.ValidatePath(requestedPath); err != nil {
		return "", err
	}
	full := filepath.Join(workspaceRoot, filepath.FromSlash(requestedPath))

	if _, statErr := os.Stat(full); statErr == nil {
		return full, nil
	}

	if filepath.Base(requestedPath) == "index.html" {
		entries, readErr := os.ReadDir(workspaceRoot)
		if readErr != nil {
			return "", fmt.Errorf("reading workspace root: %w", readErr)
		}
		for _, e := range entries {
			name := e.Name()
			if e.IsDir() || strings.HasPrefix(name, ".") {
				continue
			}
			if strings.HasSuffix(strings.ToLower(name), ".html") {
				return filepath.Join(workspaceRoot, name), nil
			}
		}
	}
	return "", os.ErrNotExist
}

// CacheControl returns the Cache-Control header value for a served file,
// determined by its content type.
func CacheControl(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	ctype := mime.TypeByExtension(ext)

	switch {
	case strings.HasPrefix(ctype, "text/html"), ext == ".html":
		return "no-store"
	case strings.HasPrefix(ctype, "image/"),
		strings.HasPrefix(ctype, "audio/"),
		strings.HasPrefix(ctype, "font/"),
		ext == ".css", ext == ".js", ext == ".woff", ext == ".woff2":
		return "public, max-age=3600"
	default:
		return "no-cache"
	}
}

// ContentType returns the best-guess content type for a served file.
func ContentType(path string) string {
	ext := filepath.Ext(path)
	if ctype := mime.TypeByExtension(ext); ctype != "" {
		return ctype
	}
	return "application/octet-stream"
}
