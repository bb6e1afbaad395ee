// Package awerr defines the error taxonomy shared across the engine: a
// small set of sentinel kinds that callers can test with errors.Is. Wrap
// attaches a kind and a message to the underlying cause; the result
// unwraps to both.
package awerr

import "errors"

var (
	// ErrMalformedInput covers unknown verbs, missing arguments, and
	// reserved names rejected before any work begins.
	ErrMalformedInput = errors.New("malformed input")

	// ErrMissingReference covers a HEAD or anchor file that does not
	// exist when the caller required one.
	ErrMissingReference = errors.New("missing reference")

	// ErrObjectNotFound covers a referenced hash with no backing file.
	ErrObjectNotFound = errors.New("object not found")

	// ErrCorruptObject covers bad magic, CRC mismatch, signature
	// mismatch, or a delta script that overruns its bounds.
	ErrCorruptObject = errors.New("corrupt object")

	// ErrMergeConflict covers a three-way merge that cannot resolve a
	// file automatically.
	ErrMergeConflict = errors.New("merge conflict")

	// ErrIO covers filesystem failures (permission, disk full, readlink,
	// symlink) for the current step.
	ErrIO = errors.New("i/o error")
)

// Wrap annotates err with msg and associates it with kind so that
// errors.Is(result, kind) holds. err may be nil: many call sites have no
// underlying cause beyond the sentinel itself (a reserved name, an empty
// branch), and still need Wrap to produce a non-nil error.
func Wrap(kind error, msg string, err error) error {
	return &taggedError{msg: msg, cause: err, kind: kind}
}

type taggedError struct {
	msg   string
	cause error
	kind  error
}

func (e *taggedError) Error() string {
	if e.cause == nil {
		return e.msg
	}
	return e.msg + ": " + e.cause.Error()
}

func (e *taggedError) Unwrap() []error {
	return []error{e.kind, e.cause}
}
