package store

import (
	"errors"
	"fmt"
)

// Store errors.
var (
	// ErrNoSnapshot is returned by a Persister that holds no snapshot yet.
	ErrNoSnapshot = errors.New("no snapshot stored")
	// ErrUnsupportedVersion is returned for snapshots written by a newer binary.
	ErrUnsupportedVersion = errors.New("unsupported snapshot version")
	// ErrCorruptSnapshot is returned when a stored snapshot cannot be decoded.
	ErrCorruptSnapshot = errors.New("corrupt snapshot")
)

// StorageError reports a failed snapshot write. The in-memory state has
// already been updated when it is returned.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s failed: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsStorageError reports whether err carries a StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
