// Package sandbox translates relative paths into absolute paths rooted at
// a team- or project-scoped workspace directory, refusing anything that
// escapes the root or touches a sensitive name. Grounded directly on
// original_source's agent/tools/fs_tools.py (_resolve_in_workspace,
// _is_sensitive_resolved_path).
package sandbox

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/aistaff-ai/agentcore/internal/apierr"
)

var sensitiveDirSegments = map[string]bool{
	".aistaff":     true,
	".jetlinks-ai": true,
}

var sensitiveEnvSamples = map[string]bool{
	".env.example":  true,
	".env.sample":   true,
	".env.template": true,
}

// Resolve joins rel onto root and rejects the result if it escapes root
// (after resolving "..") or names a sensitive path.
func Resolve(root, rel string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", apierr.Wrap(apierr.KindValidation, "invalid workspace root", err)
	}
	absRoot = filepath.Clean(absRoot)

	joined := filepath.Join(absRoot, rel)
	resolved, err := resolveSymlinks(joined)
	if err != nil {
		return "", apierr.Wrap(apierr.KindPathEscape, "path escapes workspace root", err)
	}

	if resolved != absRoot && !strings.HasPrefix(resolved, absRoot+string(os.PathSeparator)) {
		return "", apierr.New(apierr.KindPathEscape, "path escapes workspace root: "+rel)
	}

	if isSensitive(absRoot, resolved) {
		return "", apierr.New(apierr.KindSensitivePath, "access denied for sensitive path: "+rel)
	}

	return resolved, nil
}

// RelativeTo is the inverse of Resolve, used by the round-trip testable
// property: resolve(root, relative_to(root, abs)) == abs.
func RelativeTo(root, abs string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	return filepath.Rel(filepath.Clean(absRoot), filepath.Clean(abs))
}

// resolveSymlinks resolves "." / ".." purely lexically for components that
// do not yet exist (so fs_write can target a brand new file), but follows
// real symlinks for components that do exist, so a symlink pointing outside
// the workspace is caught (spec §8: "fs_read on a symlink that points
// outside the workspace root fails with PathEscape").
func resolveSymlinks(path string) (string, error) {
	if real, err := filepath.EvalSymlinks(path); err == nil {
		return filepath.Clean(real), nil
	}
	// Path (or a component of it) does not exist yet; resolve the deepest
	// existing ancestor through EvalSymlinks and rejoin the remainder.
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	for {
		if real, err := filepath.EvalSymlinks(dir); err == nil {
			return filepath.Clean(filepath.Join(real, base)), nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return filepath.Clean(path), nil
		}
		base = filepath.Join(filepath.Base(dir), base)
		dir = parent
	}
}

func isSensitive(root, resolved string) bool {
	rel, err := filepath.Rel(root, resolved)
	if err != nil {
		return true
	}
	if rel != "." {
		for _, part := range strings.Split(rel, string(os.PathSeparator)) {
			if sensitiveDirSegments[strings.ToLower(part)] {
				return true
			}
		}
	}

	name := strings.ToLower(filepath.Base(resolved))
	if sensitiveEnvSamples[name] {
		return false
	}
	if name == ".env" || strings.HasPrefix(name, ".env.") {
		return true
	}
	return false
}
