package syncerr

import (
	"errors"
	"fmt"
)

// Kind classifies a sync failure.
type Kind int

const (
	// KindUnknown is reported for errors that were
	// never classified.
	KindUnknown Kind = iota
	// KindConfiguration covers invalid or mutually
	// exclusive options. Aborts the run.
	KindConfiguration
	// KindAccountResolution means the owner is
	// neither a user nor an organisation. Aborts the
	// run.
	KindAccountResolution
	// KindLocalRead means a selected hub file could
	// not be read. Fatal to one repository.
	KindLocalRead
	// KindTransientRemote covers consistency lag and
	// rate limiting that outlived its retry budget.
	KindTransientRemote
	// KindRemoteMutation covers any other branch,
	// commit or pull request failure.
	KindRemoteMutation
	// KindPRConflict is a pull request failure on a
	// branch that already existed before this run.
	KindPRConflict
)

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindAccountResolution:
		return "account-resolution"
	case KindLocalRead:
		return "local-read"
	case KindTransientRemote:
		return "transient-remote"
	case KindRemoteMutation:
		return "remote-mutation"
	case KindPRConflict:
		return "pr-conflict"
	default:
		return "unknown"
	}
}

// Fatal reports whether an error of this kind stops
// the whole run instead of a single repository.
func (k Kind) Fatal() bool {
	return k == KindConfiguration ||
		k == KindAccountResolution
}

// Error is a classified sync failure.
type Error struct {
	Kind Kind
	// Op names the step that failed.
	Op  string
	Err error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}

	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New wraps err with kind and op.
func New(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a classified error from a format
// string. %w verbs are honoured.
func Errorf(
	kind Kind,
	op string,
	format string,
	args ...any,
) error {
	return &Error{
		Kind: kind,
		Op:   op,
		Err:  fmt.Errorf(format, args...),
	}
}

// KindOf returns the kind of the outermost *Error in
// err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}

	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
