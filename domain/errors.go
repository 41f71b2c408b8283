package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNoDocument      = errors.New("no document uploaded")
	ErrNotPDF          = errors.New("document is not a PDF")
	ErrEmptyQuestion   = errors.New("question is empty")
	ErrSessionBusy     = errors.New("session is busy with another message")
	ErrSessionNotFound = errors.New("session not found")
	ErrNoAnswer        = errors.New("no answer to read")
	ErrVoiceDisabled   = errors.New("voice is disabled")

	ErrConversationReset = errors.New("conversation was reset while answering")
	ErrEmptyAnswer       = errors.New("model returned an empty answer")
)

// UploadError reports a failed document upload. The session is left as it
// was before the upload.
type UploadError struct {
	Err error
}

func (e *UploadError) Error() string { return fmt.Sprintf("upload document: %v", e.Err) }

func (e *UploadError) Unwrap() error { return e.Err }

// StreamError reports a generation stream that failed before completing.
// No model turn is committed and the user turn is rolled back.
type StreamError struct {
	Fragments int
	Err       error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("stream answer after %d fragments: %v", e.Fragments, e.Err)
}

func (e *StreamError) Unwrap() error { return e.Err }

// ErrorCode is the stable machine-readable name of err for clients.
func ErrorCode(err error) string {
	var (
		uploadErr *UploadError
		streamErr *StreamError
	)
	switch {
	case errors.As(err, &uploadErr):
		return "upload_failure"
	case errors.As(err, &streamErr):
		return "stream_failure"
	case errors.Is(err, ErrNoDocument):
		return "no_document"
	case errors.Is(err, ErrNotPDF):
		return "not_pdf"
	case errors.Is(err, ErrEmptyQuestion):
		return "empty_question"
	case errors.Is(err, ErrSessionBusy):
		return "session_busy"
	case errors.Is(err, ErrSessionNotFound):
		return "session_not_found"
	case errors.Is(err, ErrNoAnswer):
		return "no_answer"
	case errors.Is(err, ErrVoiceDisabled):
		return "voice_disabled"
	case errors.Is(err, ErrConversationReset):
		return "conversation_reset"
	default:
		return "internal"
	}
}
