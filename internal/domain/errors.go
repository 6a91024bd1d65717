package domain

import "errors"

// Domain errors. NotFound and Validation errors surface to callers;
// Upstream errors are converted into degraded results by the answer and
// quiz paths.
var (
	// ErrNotFound indicates an unknown document, session or question.
	ErrNotFound = errors.New("not found")

	// ErrUnknownSession indicates the quiz session does not exist or ended.
	ErrUnknownSession = wrapNotFound("unknown session")

	// ErrUnknownQuestion indicates the question was never issued or was already graded.
	ErrUnknownQuestion = wrapNotFound("unknown question")

	// ErrEmptyInput indicates a blank document or question.
	ErrEmptyInput = errors.New("empty input")

	// ErrValidation indicates a malformed request value such as an answer letter.
	ErrValidation = errors.New("validation failed")

	// ErrUpstream indicates the embedding or generative model is unavailable or timed out.
	ErrUpstream = errors.New("upstream service error")

	// ErrUnreadableFile indicates text could not be extracted from an upload.
	ErrUnreadableFile = errors.New("unreadable file")

	// ErrUnsupportedType indicates an unknown file type or adapter type.
	ErrUnsupportedType = errors.New("unsupported type")
)

type notFoundError struct{ msg string }

func wrapNotFound(msg string) error { return &notFoundError{msg: msg} }

func (e *notFoundError) Error() string { return e.msg }

func (e *notFoundError) Unwrap() error { return ErrNotFound }
