// Package applypath implements the direct file-apply path: a manifest of
// file creates/updates/deletes applied straight to a project's workspace,
// bypassing the agent entirely.
package applypath

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Action is one of the three manifest entry kinds.
type Action string

const (
	Create Action = "create"
	Update Action = "update"
	Delete Action = "delete"
)

// Entry is one manifest item.
type Entry struct {
	Path    string `json:"path"`
	Action  Action `json:"action"`
	Content string `json:"content"`
}

// ErrUnsafePath is returned for any path containing ".." or starting with
// "/", checked before any filesystem operation runs.
var ErrUnsafePath = errors.New("unsafe path")

// ValidatePath rejects path traversal and absolute paths.
func ValidatePath(p string) error {
	if strings.Contains(p, "..") || strings.HasPrefix(p, "/") {
		return ErrUnsafePath
	}
	return nil
}

// ErrorKind classifies a filesystem failure encountered while applying a
// manifest.
type ErrorKind string

const (
	PermissionError ErrorKind = "PERMISSION_ERROR"
	QuotaExceeded   ErrorKind = "QUOTA_EXCEEDED"
	OSError         ErrorKind = "OS_ERROR"
	InternalError   ErrorKind = "INTERNAL"
)

// ClassifyError maps a filesystem error to its ErrorKind.
func ClassifyError(err error) ErrorKind {
	if err == nil {
		return ""
	}
	msg := strings.ToLower(err.Error())
	switch {
	case os.IsPermission(err):
		return PermissionError
	case strings.Contains(msg, "disk quota"), strings.Contains(msg, "no space"):
		return QuotaExceeded
	case os.IsNotExist(err):
		return OSError
	default:
		return InternalError
	}
}

// Apply applies every entry under workspaceRoot in order, stopping at the
// first error. It returns the list of paths it successfully changed.
func Apply(workspaceRoot string, entries []Entry) (changed []string, err error) {
	for _, e := range entries {
		if err := ValidatePath(e.Path); err != nil {
			return changed, fmt.Errorf("%s: %w", e.Path, err)
		}
		full := filepath.Join(workspaceRoot, filepath.FromSlash(e.Path))

		switch e.Action {
		case Delete:
			if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
				return changed, err
			}
		case Create, Update:
			if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
				return changed, err
			}
			if err := os.WriteFile(full, []byte(e.Content), 0o644); err != nil {
				return changed, err
			}
		default:
			return changed, fmt.Errorf("unknown action %q for %s", e.Action, e.Path)
		}
		changed = append(changed, e.Path)
	}
	return changed, nil
}
