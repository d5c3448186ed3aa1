package coach

import "errors"

var (
	// ErrMissingUser is returned when an operation has no user ID.
	ErrMissingUser = errors.New("user id is required")
	// ErrEmptyMessage is returned for a blank chat message.
	ErrEmptyMessage = errors.New("message is required")
	// ErrGeneratorUnavailable is returned internally when no reply generator is configured.
	ErrGeneratorUnavailable = errors.New("reply generator not configured")
	// ErrEmptyReply is returned when the generator answers with nothing.
	ErrEmptyReply = errors.New("generator returned an empty reply")
)
