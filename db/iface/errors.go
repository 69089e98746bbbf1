package iface

import "github.com/pkg/errors"

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("entity not found")

// ErrConflict is returned when a write collides with an existing unique
// key or an already-terminal state, e.g. a duplicate (owner, permlink)
// or resolving a challenge twice.
var ErrConflict = errors.New("conflicting write")

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict reports whether err wraps ErrConflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// Temporary is implemented by transient errors that callers may retry
// with backoff.
type Temporary interface {
	Temporary() bool
}

// IsTransient reports whether err is marked retryable.
func IsTransient(err error) bool {
	var t Temporary
	return errors.As(err, &t) && t.Temporary()
}
