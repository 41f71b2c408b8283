package llm

import (
	"context"
	"fmt"
	"io"
	"iter"
	"strings"
	"sync/atomic"

	"github.com/satriahrh/cocoa-fruit/pdfchat/domain"
)

// MockLLM is a scripted provider for local runs and tests. It "thinks" for
// one fragment, opens the answer with a default marker and echoes the last
// question word by word.
type MockLLM struct {
	uploads atomic.Int64
}

func NewMockLLM() *MockLLM {
	return &MockLLM{}
}

func (m *MockLLM) UploadDocument(ctx context.Context, r io.Reader, displayName string) (domain.DocumentReference, error) {
	if _, err := io.Copy(io.Discard, r); err != nil {
		return domain.DocumentReference{}, err
	}
	n := m.uploads.Add(1)
	return domain.DocumentReference{
		URI:      fmt.Sprintf("mock://files/%d", n),
		MIMEType: domain.PDFMimeType,
		Name:     displayName,
	}, nil
}

// Uploads reports how many documents were uploaded.
func (m *MockLLM) Uploads() int64 { return m.uploads.Load() }

func (m *MockLLM) StreamGenerate(ctx context.Context, history []domain.ConversationTurn, temperature float32) iter.Seq2[string, error] {
	question := ""
	if len(history) > 0 {
		question = history[len(history)-1].Text()
	}
	fragments := []string{
		fmt.Sprintf("Reading %d turns of context. ", len(history)),
		"Okay, here is what I found: ",
	}
	for _, w := range strings.Fields(question) {
		fragments = append(fragments, w+" ")
	}

	return func(yield func(string, error) bool) {
		for _, f := range fragments {
			if err := ctx.Err(); err != nil {
				yield("", err)
				return
			}
			if !yield(f, nil) {
				return
			}
		}
	}
}
