// Package config loads the pathmap settings file. Settings live in a KDL
// document named .pathmap.kdl; every setting has a working default so the
// file itself is optional.
package config

import (
	"os"
	"path/filepath"
)

// ConfigFileName is the default settings filename.
const ConfigFileName = ".pathmap.kdl"

// Config holds the pathmap settings.
type Config struct {
	// StorageDir is the directory holding the prefix mapping document.
	StorageDir string

	Reload Reload

	// Exclude lists glob patterns for paths that must never be rewritten.
	Exclude []string
}

// Reload controls how mapping-file changes are handled.
type Reload struct {
	// Policy is one of restart, ignore, prompt. Default prompt.
	Policy string
	// DebounceMs is the quiet period after the last change notification.
	DebounceMs int
}

// Default returns the built-in settings: mapping document under the user
// cache directory, prompt policy, 2s debounce.
func Default() *Config {
	storageDir := ""
	if cacheDir, err := os.UserCacheDir(); err == nil {
		storageDir = filepath.Join(cacheDir, "pathmap")
	}
	return &Config{
		StorageDir: storageDir,
		Reload: Reload{
			Policy:     "prompt",
			DebounceMs: 2000,
		},
		Exclude: []string{},
	}
}

// Load reads the settings file at path. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg, err := LoadKDL(path)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = Default()
	}
	if err := NewValidator().ValidateAndSetDefaults(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
