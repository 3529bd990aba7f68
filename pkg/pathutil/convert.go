// Package pathutil provides utilities for converting remapped paths between
// absolute and relative forms.
//
// Architecture Pattern:
// pathmap resolves and rewrites absolute paths internally for consistency and
// to avoid ambiguity. However, user-facing output often wants relative paths
// for readability and portability. This package provides the conversion layer
// between internal (absolute) and external (relative) representations.
package pathutil

import (
	"path/filepath"
	"strings"
)

// ToRelative converts an absolute path to relative based on a root directory.
// Falls back to the original path if conversion fails or path is already relative.
//
// Examples:
//   - ToRelative("/home/user/project/src/main.go", "/home/user/project") → "src/main.go"
//   - ToRelative("/other/location/file.go", "/home/user/project") → "/other/location/file.go" (outside root)
//   - ToRelative("src/main.go", "/home/user/project") → "src/main.go" (already relative)
func ToRelative(absPath, rootDir string) string {
	// Handle empty inputs
	if absPath == "" || rootDir == "" {
		return absPath
	}

	// If path is already relative, return as-is
	if !filepath.IsAbs(absPath) {
		return absPath
	}

	// Clean both paths to normalize separators and remove redundant elements
	absPath = filepath.Clean(absPath)
	rootDir = filepath.Clean(rootDir)

	// Try to make relative
	relPath, err := filepath.Rel(rootDir, absPath)
	if err != nil {
		// Conversion failed (e.g., different drives on Windows) - return absolute
		return absPath
	}

	// If the relative path starts with ".." it means the file is outside the root
	// In this case, return the absolute path as it's clearer
	if strings.HasPrefix(relPath, "..") {
		return absPath
	}

	return relPath
}

// ToRelativeAll converts a slice of resolved paths to relative form against
// rootDir. Creates a new slice without modifying the original.
//
// This function is designed for use at output boundaries where resolved paths
// are displayed to users:
//   - CLI resolve output
//   - JSON serialization
func ToRelativeAll(paths []string, rootDir string) []string {
	if len(paths) == 0 {
		return paths
	}

	converted := make([]string, len(paths))
	for i, p := range paths {
		converted[i] = ToRelative(p, rootDir)
	}
	return converted
}
