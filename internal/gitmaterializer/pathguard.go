package gitmaterializer

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ResolveWithinRepo joins repoDir and requestedPath, resolves both
// symlink-aware, and asserts the result remains a descendant of repoDir.
// This defends against both ".." traversal and symlinks planted inside a
// cloned repository (SPEC_FULL §4.B Path-escape defense).
func ResolveWithinRepo(repoDir, requestedPath string) (string, error) {
	realRepoDir, err := filepath.EvalSymlinks(repoDir)
	if err != nil {
		return "", fmt.Errorf("gitmaterializer: failed to resolve repository root: %w", err)
	}

	joined := filepath.Join(realRepoDir, requestedPath)

	// EvalSymlinks requires the target to exist; resolve the deepest
	// existing ancestor first so a symlink anywhere along the path is still
	// caught even if the final path component itself does not yet exist.
	resolved, err := resolveExistingPrefix(joined)
	if err != nil {
		return "", fmt.Errorf("gitmaterializer: failed to resolve requested path: %w", err)
	}

	rel, err := filepath.Rel(realRepoDir, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s resolves outside %s", ErrPathEscapesRepo, requestedPath, repoDir)
	}

	return resolved, nil
}

// resolveExistingPrefix walks up from path until it finds a component that
// exists, resolves symlinks on that prefix, and reattaches the remaining
// (not-yet-existing) suffix untouched.
func resolveExistingPrefix(path string) (string, error) {
	suffix := ""
	cur := path
	for {
		real, err := filepath.EvalSymlinks(cur)
		if err == nil {
			return filepath.Join(real, suffix), nil
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return "", err
		}
		suffix = filepath.Join(filepath.Base(cur), suffix)
		cur = parent
	}
}
