package tsm

import (
	"fmt"

	"github.com/juju/errors"
)

const (
	// ErrCorrupt matches any backing file that exists but cannot be decoded.
	ErrCorrupt = errors.ConstError("template store corrupt")
	// ErrUnsupportedVersion matches a backing file written with a format
	// version this build does not read. It also matches ErrCorrupt.
	ErrUnsupportedVersion = errors.ConstError("unsupported template store format version")
	// ErrWrite matches a failed persist. The in-memory state is kept.
	ErrWrite = errors.ConstError("template store write failed")
)

type CorruptError struct {
	Path string
	Err  error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("template store %q corrupt: %v", e.Path, e.Err)
}

func (e *CorruptError) Unwrap() error { return e.Err }

func (e *CorruptError) Is(target error) bool { return target == ErrCorrupt }

// WriteError reports that the backing file no longer reflects memory.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("template store %q not saved: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

func (e *WriteError) Is(target error) bool { return target == ErrWrite }
