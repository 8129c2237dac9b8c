package entities

import "errors"

// Domain errors
var (
	// Retrieval errors. ErrRetrievalUnavailable is an expected state, not
	// a failure: it tells the caller to use the context-window fallback.
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")

	// Transcript errors
	ErrInvalidSpeaker  = errors.New("invalid speaker")
	ErrEmptyUtterance  = errors.New("utterance text is empty")
	ErrMeetingNotFound = errors.New("meeting not found")

	// Summary errors
	ErrEmptySummary = errors.New("summary text is empty")

	// Generic errors
	ErrInvalidRequest = errors.New("invalid request")
)
