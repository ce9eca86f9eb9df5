package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hpungsan/scout/internal/config"
	"github.com/hpungsan/scout/internal/errors"
)

// ValidatePath checks a spreadsheet destination before it is written:
// 1. No directory traversal (..)
// 2. .xlsx extension (see ValidatePathExt for other files)
// 3. File directly in exportsDir or an allowed_paths entry (no subdirectories)
// 4. Neither the parent directory nor the file is a symlink
//
// Requiring the file to sit directly in an allowed directory means no
// intermediate component can be swapped for a symlink between this check
// and the O_NOFOLLOW open of the final component.
func ValidatePath(path, exportsDir string, cfg *config.Config) error {
	return ValidatePathExt(path, ".xlsx", exportsDir, cfg)
}

// ValidatePathExt is ValidatePath for files with extension ext.
func ValidatePathExt(path, ext, exportsDir string, cfg *config.Config) error {
	if path == "" {
		return errors.NewInvalidRequest("path is required")
	}
	if containsTraversal(path) {
		return errors.NewInvalidRequest("path must not contain directory traversal (..)")
	}

	cleaned := filepath.Clean(path)
	if !strings.EqualFold(filepath.Ext(cleaned), ext) {
		return errors.NewInvalidRequest(fmt.Sprintf("path must have %s extension", ext))
	}

	absPath, err := filepath.Abs(cleaned)
	if err != nil {
		return errors.NewInvalidRequest(fmt.Sprintf("invalid path: %v", err))
	}

	if cfg == nil || !cfg.AllowUnsafePaths {
		allowedDirs, err := allowedDirs(exportsDir, cfg)
		if err != nil {
			return err
		}
		parentDir := filepath.Dir(absPath)
		if !isDirectlyInAllowedDir(parentDir, allowedDirs) {
			return errors.NewInvalidRequest(
				fmt.Sprintf("file must be directly in an allowed directory (no subdirectories); allowed: %v",
					allowedDirs))
		}
		if info, err := os.Lstat(parentDir); err == nil && info.Mode()&os.ModeSymlink != 0 {
			return errors.NewInvalidRequest("parent directory must not be a symlink")
		}
	}

	// Symlink files are rejected even with allow_unsafe_paths.
	if info, err := os.Lstat(absPath); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return errors.NewInvalidRequest("path must not be a symlink")
	}
	return nil
}

// allowedDirs returns exportsDir plus absolute allowed_paths entries,
// cleaned and with symlinked entries resolved.
func allowedDirs(exportsDir string, cfg *config.Config) ([]string, error) {
	dirs := []string{exportsDir}
	if cfg != nil {
		for _, p := range cfg.AllowedPaths {
			if filepath.IsAbs(p) {
				dirs = append(dirs, filepath.Clean(p))
			}
		}
	}

	result := make([]string, 0, len(dirs))
	for _, d := range dirs {
		if d == "" {
			continue
		}
		abs, err := filepath.Abs(filepath.Clean(d))
		if err != nil {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid allowed path: %v", err))
		}
		if info, err := os.Lstat(abs); err == nil && info.Mode()&os.ModeSymlink != 0 {
			resolved, err := filepath.EvalSymlinks(abs)
			if err != nil {
				return nil, errors.NewInvalidRequest(fmt.Sprintf("cannot resolve symlink in allowed path: %v", err))
			}
			abs = resolved
		}
		result = append(result, abs)
	}
	return result, nil
}

func isDirectlyInAllowedDir(parentDir string, allowed []string) bool {
	parentDir = filepath.Clean(parentDir)
	for _, dir := range allowed {
		if parentDir == filepath.Clean(dir) {
			return true
		}
	}
	return false
}

// containsTraversal checks if path contains ".." directory traversal.
func containsTraversal(path string) bool {
	for _, part := range strings.Split(path, string(filepath.Separator)) {
		if part == ".." {
			return true
		}
	}
	if filepath.Separator != '/' {
		for _, part := range strings.Split(path, "/") {
			if part == ".." {
				return true
			}
		}
	}
	return false
}

// SanitizeForFilename makes s safe to embed in a filename: path separators
// and ".." become dashes and control characters are dropped.
func SanitizeForFilename(s string) string {
	s = strings.ReplaceAll(s, "/", "-")
	s = strings.ReplaceAll(s, "\\", "-")
	s = strings.ReplaceAll(s, "..", "-")

	var b strings.Builder
	for _, r := range s {
		if r >= 32 && r != 127 {
			b.WriteRune(r)
		}
	}
	s = strings.TrimSpace(b.String())

	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "-")
	}
	s = strings.Trim(s, "-")
	if s == "" {
		s = "unnamed"
	}
	return s
}
