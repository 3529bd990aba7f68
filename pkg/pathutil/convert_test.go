package pathutil

import (
	"path/filepath"
	"runtime"
	"testing"
)

func TestToRelative(t *testing.T) {
	tests := []struct {
		name     string
		absPath  string
		rootDir  string
		expected string
	}{
		{
			name:     "simple relative path",
			absPath:  "/home/user/project/src/main.go",
			rootDir:  "/home/user/project",
			expected: "src/main.go",
		},
		{
			name:     "nested relative path",
			absPath:  "/home/user/project/internal/core/search.go",
			rootDir:  "/home/user/project",
			expected: "internal/core/search.go",
		},
		{
			name:     "root level file",
			absPath:  "/home/user/project/README.md",
			rootDir:  "/home/user/project",
			expected: "README.md",
		},
		{
			name:     "same directory",
			absPath:  "/home/user/project",
			rootDir:  "/home/user/project",
			expected: ".",
		},
		{
			name:     "already relative path",
			absPath:  "src/main.go",
			rootDir:  "/home/user/project",
			expected: "src/main.go", // Should return as-is if already relative
		},
		{
			name:     "path outside root - fallback to absolute",
			absPath:  "/other/location/file.go",
			rootDir:  "/home/user/project",
			expected: "/other/location/file.go", // Should return absolute if outside root
		},
		{
			name:     "empty root directory",
			absPath:  "/home/user/project/file.go",
			rootDir:  "",
			expected: "/home/user/project/file.go", // Fallback to absolute
		},
		{
			name:     "empty absolute path",
			absPath:  "",
			rootDir:  "/home/user/project",
			expected: "", // Empty stays empty
		},
		{
			name:     "redundant path elements cleaned",
			absPath:  "/home/user/project/./src/../src/main.go",
			rootDir:  "/home/user/project",
			expected: "src/main.go",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ToRelative(tt.absPath, tt.rootDir)

			// Normalize separators for cross-platform testing
			if runtime.GOOS == "windows" {
				result = filepath.ToSlash(result)
			}
			if result != tt.expected {
				t.Errorf("ToRelative() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestToRelativeAll(t *testing.T) {
	paths := []string{
		"/home/user/project/src/a.go",
		"/other/b.go",
		"",
	}

	got := ToRelativeAll(paths, "/home/user/project")

	want := []string{"src/a.go", "/other/b.go", ""}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ToRelativeAll()[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	// The input slice is untouched.
	if paths[0] != "/home/user/project/src/a.go" {
		t.Error("ToRelativeAll modified its input")
	}
}

func TestToRelativeAllEmpty(t *testing.T) {
	if got := ToRelativeAll(nil, "/root"); got != nil {
		t.Errorf("ToRelativeAll(nil) = %v, want nil", got)
	}
}
