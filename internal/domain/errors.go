package domain

import "errors"

// Domain errors are wrapped with the offending resource by the layers above,
// so callers match them with errors.Is.
var (
	// ErrInvalidInput indicates malformed input such as a bad channel name.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound indicates a channel or queue entry does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a channel with the same name exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrConflict indicates an ambiguous request, e.g. rebinding a channel to another id.
	ErrConflict = errors.New("conflict")

	// ErrNotBound indicates the channel has no remote channel id yet.
	ErrNotBound = errors.New("channel not bound")

	// ErrNotApproved indicates a queue entry is not in the pending state.
	ErrNotApproved = errors.New("entry not approved")

	// ErrCorrupt indicates a persisted file could not be decoded.
	ErrCorrupt = errors.New("corrupt file")
)
