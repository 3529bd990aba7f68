// Package remap rewrites absolute paths produced inside a build sandbox
// back to the paths that exist on the developer's machine. Rules come from
// a JSON mapping document of sandbox-prefix to real-prefix entries; lookups
// use a longest-prefix trie rebuilt wholesale on each reload.
package remap

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/cespare/xxhash/v2"

	"github.com/standardbeagle/pathmap/internal/debug"
	"github.com/standardbeagle/pathmap/internal/errors"
	"github.com/standardbeagle/pathmap/internal/trie"
)

// MappingFileName is the mapping document's filename inside the storage
// directory.
const MappingFileName = "completion_prefix_map.json"

// Remapper resolves sandbox paths against the currently loaded prefix
// mapping. Reloads replace the trie snapshot atomically, so any number of
// concurrent Resolve calls observe either the fully-old or fully-new rules.
type Remapper struct {
	mu         sync.Mutex // serializes Reload and storage dir changes
	storageDir string
	exclude    []string
	lastHash   uint64

	current atomic.Pointer[trie.Trie]
}

// NewRemapper creates a remapper reading its mapping document from
// storageDir. Paths matching any of the exclude glob patterns are never
// rewritten. The storage directory may be empty and set later via
// SetStorageDir.
func NewRemapper(storageDir string, exclude []string) *Remapper {
	return &Remapper{
		storageDir: storageDir,
		exclude:    exclude,
	}
}

// StorageDir returns the configured storage directory.
func (r *Remapper) StorageDir() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.storageDir
}

// MappingPath returns the full path of the mapping document, or "" when no
// storage directory is configured.
func (r *Remapper) MappingPath() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mappingPathLocked()
}

func (r *Remapper) mappingPathLocked() string {
	if r.storageDir == "" {
		return ""
	}
	return filepath.Join(r.storageDir, MappingFileName)
}

// SetStorageDir changes the storage directory and re-triggers a load.
func (r *Remapper) SetStorageDir(dir string) error {
	r.mu.Lock()
	r.storageDir = dir
	r.lastHash = 0
	r.mu.Unlock()
	return r.Reload()
}

// RuleCount returns the number of prefixes in the current snapshot.
func (r *Remapper) RuleCount() int {
	if t := r.current.Load(); t != nil {
		return t.Len()
	}
	return 0
}

// Reload reads the mapping document and publishes a freshly built trie.
//
// A missing document is a normal state (first run before any mapping has
// been written): the current trie is left untouched and no error is
// returned. A malformed document returns a MappingError and likewise keeps
// the prior trie. Unchanged content (by xxhash) skips the rebuild.
func (r *Remapper) Reload() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	path := r.mappingPathLocked()
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			debug.LogRemap("mapping document %s absent, keeping current rules\n", path)
			return nil
		}
		return errors.NewMappingError(errors.ErrorTypeMappingMalformed, "read", err).WithPath(path)
	}

	hash := xxhash.Sum64(data)
	if hash == r.lastHash && r.current.Load() != nil {
		debug.LogRemap("mapping document %s unchanged, skipping rebuild\n", path)
		return nil
	}

	var rules map[string]string
	if err := json.Unmarshal(data, &rules); err != nil {
		return errors.NewMappingError(errors.ErrorTypeMappingMalformed, "parse", err).WithPath(path)
	}

	t := trie.New()
	for sandboxPrefix, realPrefix := range rules {
		t.Insert(sandboxPrefix, realPrefix)
	}

	r.current.Store(t)
	r.lastHash = hash
	debug.LogRemap("loaded %d prefix rules from %s\n", t.Len(), path)
	return nil
}

// Resolve rewrites absolutePath according to the current mapping. The path
// is canonicalized (symlinks resolved) before lookup; if a rule matches and
// the rewritten candidate exists on disk, the candidate is returned.
// In every other case the path is returned exactly as received.
func (r *Remapper) Resolve(absolutePath string) string {
	t := r.current.Load()
	if t == nil || t.Len() == 0 {
		return absolutePath
	}

	if r.isExcluded(absolutePath) {
		return absolutePath
	}

	// Rules are defined against real paths, not symlinked aliases. Paths
	// that only exist inside the sandbox cannot be canonicalized here;
	// look those up as received.
	canonical, err := filepath.EvalSymlinks(absolutePath)
	if err != nil {
		debug.LogRemap("canonicalization failed for %s: %v\n", absolutePath, err)
		canonical = absolutePath
	}

	matched, replacement, ok := t.LongestMatch(canonical)
	if !ok {
		return absolutePath
	}

	candidate := strings.Replace(canonical, matched, replacement, 1)
	if _, err := os.Stat(candidate); err != nil {
		debug.LogRemap("remapped target %s does not exist, keeping %s\n", candidate, absolutePath)
		return absolutePath
	}
	return candidate
}

func (r *Remapper) isExcluded(path string) bool {
	for _, pattern := range r.exclude {
		if matched, err := doublestar.Match(pattern, path); err == nil && matched {
			return true
		}
	}
	return false
}
