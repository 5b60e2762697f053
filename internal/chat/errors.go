package chat

import "errors"

var (
	// ErrValidation marks missing or malformed input; never retried.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound covers both a missing/soft-deleted conversation and a
	// requester who is not a participant. The two cases are intentionally
	// indistinguishable so callers cannot probe for existence.
	ErrNotFound = errors.New("conversation not found")

	ErrMessageNotFound = errors.New("message not found")

	// ErrCacheUpdate is returned by Append when the message itself was written
	// durably but the conversation's last-message/unread cache update failed.
	// Callers should treat the append as a partial success, not roll it back.
	ErrCacheUpdate = errors.New("conversation cache update failed")
)
