// Package errors defines the typed errors surfaced by the remapping engine.
// Nothing here is fatal to a host: every failure degrades to "behave as if
// no remapping or reload occurred".
package errors

import (
	"fmt"
	"time"
)

// ErrorType classifies remapping errors.
type ErrorType string

const (
	// ErrorTypeMappingMalformed indicates the mapping document exists but
	// is not valid JSON of the expected shape. The prior trie is retained.
	ErrorTypeMappingMalformed ErrorType = "mapping_malformed"

	// ErrorTypePathResolution indicates canonicalization of a path failed,
	// e.g. a broken symlink. Resolution falls back to the original path.
	ErrorTypePathResolution ErrorType = "path_resolution"

	// ErrorTypeWatch indicates the filesystem watch could not be
	// established or maintained. The controller degrades to no reactivity.
	ErrorTypeWatch ErrorType = "watch"

	// ErrorTypeConfig indicates an invalid settings file.
	ErrorTypeConfig ErrorType = "config"
)

// MappingError is an error raised while loading or applying the prefix
// mapping. The absence of the mapping file is deliberately not an error.
type MappingError struct {
	Type       ErrorType
	Path       string
	Operation  string
	Underlying error
	Timestamp  time.Time
}

// NewMappingError creates a mapping error for the given operation.
func NewMappingError(typ ErrorType, op string, err error) *MappingError {
	return &MappingError{
		Type:       typ,
		Operation:  op,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// WithPath attaches the file or lookup path the error concerns.
func (e *MappingError) WithPath(path string) *MappingError {
	e.Path = path
	return e
}

// Error implements the error interface.
func (e *MappingError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s %s failed for %s: %v", e.Type, e.Operation, e.Path, e.Underlying)
	}
	return fmt.Sprintf("%s %s failed: %v", e.Type, e.Operation, e.Underlying)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *MappingError) Unwrap() error {
	return e.Underlying
}

// IsMalformed reports whether err is a malformed-mapping error.
func IsMalformed(err error) bool {
	me, ok := err.(*MappingError)
	return ok && me.Type == ErrorTypeMappingMalformed
}
