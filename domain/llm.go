package domain

import (
	"context"
	"io"
	"iter"
)

// Llm abstracts the generative provider. It is stateless between calls:
// every StreamGenerate receives the whole transcript.
type Llm interface {
	// UploadDocument stores a PDF provider-side and returns its handle.
	UploadDocument(ctx context.Context, r io.Reader, displayName string) (DocumentReference, error)

	// StreamGenerate yields text fragments in order. A non-nil error ends
	// the stream.
	StreamGenerate(ctx context.Context, history []ConversationTurn, temperature float32) iter.Seq2[string, error]
}

// Transcriber turns recorded speech into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// Synthesizer turns text into MP3 audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}
