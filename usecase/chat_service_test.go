package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"iter"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satriahrh/cocoa-fruit/pdfchat/adapters/documents"
	"github.com/satriahrh/cocoa-fruit/pdfchat/adapters/hasher"
	"github.com/satriahrh/cocoa-fruit/pdfchat/adapters/message_broker"
	"github.com/satriahrh/cocoa-fruit/pdfchat/domain"
)

var samplePDF = []byte("%PDF-1.7\n1 0 obj\n<<>>\nendobj\n")

type scriptedLlm struct {
	fragments   []string
	failAfter   int // fail after this many fragments when streamErr is set
	streamErr   error
	uploadErr   error
	uploads     int
	lastHistory []domain.ConversationTurn
	lastTemp    float32
	block       chan struct{}
}

func (l *scriptedLlm) UploadDocument(ctx context.Context, r io.Reader, displayName string) (domain.DocumentReference, error) {
	if l.uploadErr != nil {
		return domain.DocumentReference{}, l.uploadErr
	}
	l.uploads++
	return domain.DocumentReference{URI: "files/" + displayName, MIMEType: domain.PDFMimeType}, nil
}

func (l *scriptedLlm) StreamGenerate(ctx context.Context, history []domain.ConversationTurn, temperature float32) iter.Seq2[string, error] {
	l.lastHistory = history
	l.lastTemp = temperature
	return func(yield func(string, error) bool) {
		if l.block != nil {
			<-l.block
		}
		for i, f := range l.fragments {
			if l.streamErr != nil && i == l.failAfter {
				yield("", l.streamErr)
				return
			}
			if !yield(f, nil) {
				return
			}
		}
	}
}

func newSessionWithDocument(t *testing.T, svc *ChatService) *domain.Session {
	t.Helper()
	sess := domain.NewSession("s1")
	_, err := svc.UploadDocument(context.Background(), sess, "report.pdf", samplePDF)
	require.NoError(t, err)
	return sess
}

func TestAskCommitsExchange(t *testing.T) {
	llm := &scriptedLlm{fragments: []string{"Let me think. ", "Okay, here is the answer: ", "42."}}
	svc := NewChatService(llm)
	sess := newSessionWithDocument(t, svc)

	var texts []string
	answer, err := svc.Ask(context.Background(), sess, "  What is the answer?  ", func(s domain.Snapshot) error {
		texts = append(texts, s.Text())
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"Let me think. ",
		"Let me think. Okay, here is the answer: ",
		"Let me think. Okay, here is the answer: 42.",
	}, texts)
	assert.Equal(t, domain.PhaseFinal, answer.Phase)
	assert.Equal(t, "Okay, here is the answer: 42.", answer.Final)
	assert.Equal(t, DefaultTemperature, llm.lastTemp)

	require.Len(t, llm.lastHistory, 1)
	assert.True(t, llm.lastHistory[0].HasDocument())
	assert.Equal(t, "What is the answer?", llm.lastHistory[0].Text())

	history := sess.History()
	require.Len(t, history, 2)
	assert.Equal(t, domain.ModelRole, history[1].Role)
	assert.Equal(t, "Let me think. Okay, here is the answer: 42.", history[1].Text())
}

func TestAskSendsWholeTranscript(t *testing.T) {
	llm := &scriptedLlm{fragments: []string{"ok"}}
	svc := NewChatService(llm, WithTemperature(0.7))
	sess := newSessionWithDocument(t, svc)

	_, err := svc.Ask(context.Background(), sess, "first", nil)
	require.NoError(t, err)
	_, err = svc.Ask(context.Background(), sess, "second", nil)
	require.NoError(t, err)

	require.Len(t, llm.lastHistory, 3)
	assert.True(t, llm.lastHistory[0].HasDocument())
	assert.False(t, llm.lastHistory[2].HasDocument())
	assert.Equal(t, float32(0.7), llm.lastTemp)
}

func TestAskStreamFailureLeavesHistoryUnchanged(t *testing.T) {
	boom := errors.New("quota exceeded")
	llm := &scriptedLlm{fragments: []string{"ok"}}
	svc := NewChatService(llm)
	sess := newSessionWithDocument(t, svc)

	_, err := svc.Ask(context.Background(), sess, "first", nil)
	require.NoError(t, err)
	before := sess.History()

	llm.fragments = []string{"partial ", "never"}
	llm.failAfter = 1
	llm.streamErr = boom

	_, err = svc.Ask(context.Background(), sess, "second", nil)

	var streamErr *domain.StreamError
	require.ErrorAs(t, err, &streamErr)
	assert.Equal(t, 1, streamErr.Fragments)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, before, sess.History())
	assert.NoError(t, sess.Begin(), "session must not stay busy")
}

func TestAskCallbackErrorRollsBack(t *testing.T) {
	llm := &scriptedLlm{fragments: []string{"a", "b"}}
	svc := NewChatService(llm)
	sess := newSessionWithDocument(t, svc)
	gone := errors.New("client went away")

	_, err := svc.Ask(context.Background(), sess, "q", func(domain.Snapshot) error { return gone })

	assert.ErrorIs(t, err, gone)
	assert.Equal(t, 0, sess.Len())
}

func TestAskValidation(t *testing.T) {
	svc := NewChatService(&scriptedLlm{})

	_, err := svc.Ask(context.Background(), domain.NewSession("s"), "q", nil)
	assert.ErrorIs(t, err, domain.ErrNoDocument)

	sess := newSessionWithDocument(t, svc)
	_, err = svc.Ask(context.Background(), sess, "   ", nil)
	assert.ErrorIs(t, err, domain.ErrEmptyQuestion)
}

func TestAskRejectsConcurrentSubmission(t *testing.T) {
	llm := &scriptedLlm{fragments: []string{"a"}, block: make(chan struct{})}
	svc := NewChatService(llm)
	sess := newSessionWithDocument(t, svc)

	done := make(chan error, 1)
	go func() {
		_, err := svc.Ask(context.Background(), sess, "first", nil)
		done <- err
	}()

	require.Eventually(t, func() bool {
		return sess.Len() == 1
	}, time.Second, 5*time.Millisecond)

	_, err := svc.Ask(context.Background(), sess, "second", nil)
	assert.ErrorIs(t, err, domain.ErrSessionBusy)

	close(llm.block)
	require.NoError(t, <-done)
	assert.Equal(t, 2, sess.Len())
}

func TestAskCustomMarker(t *testing.T) {
	llm := &scriptedLlm{fragments: []string{"Okay, here ", "ANSWER: 1"}}
	svc := NewChatService(llm, WithMarker(domain.ContainsAny("ANSWER:")))
	sess := newSessionWithDocument(t, svc)

	answer, err := svc.Ask(context.Background(), sess, "q", nil)
	require.NoError(t, err)
	assert.Equal(t, "Okay, here ", answer.Thinking)
	assert.Equal(t, "ANSWER: 1", answer.Final)
}

func TestUploadDocumentRejectsNonPDF(t *testing.T) {
	llm := &scriptedLlm{}
	svc := NewChatService(llm)
	sess := domain.NewSession("s")

	_, err := svc.UploadDocument(context.Background(), sess, "a.txt", []byte("hello"))
	assert.ErrorIs(t, err, domain.ErrNotPDF)
	assert.Equal(t, 0, llm.uploads)
}

func TestUploadFailureLeavesSessionUntouched(t *testing.T) {
	llm := &scriptedLlm{fragments: []string{"ok"}}
	svc := NewChatService(llm)
	sess := newSessionWithDocument(t, svc)
	_, err := svc.Ask(context.Background(), sess, "q", nil)
	require.NoError(t, err)
	docBefore, _ := sess.Document()
	historyBefore := sess.History()

	llm.uploadErr = errors.New("permission denied")
	_, err = svc.UploadDocument(context.Background(), sess, "other.pdf", samplePDF)

	var uploadErr *domain.UploadError
	require.ErrorAs(t, err, &uploadErr)
	docAfter, _ := sess.Document()
	assert.Equal(t, docBefore, docAfter)
	assert.Equal(t, historyBefore, sess.History())
}

func TestUploadDocumentResetsConversation(t *testing.T) {
	llm := &scriptedLlm{fragments: []string{"ok"}}
	svc := NewChatService(llm)
	sess := newSessionWithDocument(t, svc)
	_, err := svc.Ask(context.Background(), sess, "q", nil)
	require.NoError(t, err)

	doc, err := svc.UploadDocument(context.Background(), sess, "second.pdf", samplePDF)
	require.NoError(t, err)

	assert.Equal(t, 0, sess.Len())
	active, ok := sess.Document()
	require.True(t, ok)
	assert.Equal(t, doc, active)
}

func TestUploadDocumentReusesCachedUpload(t *testing.T) {
	llm := &scriptedLlm{}
	svc := NewChatService(llm, WithDocumentCache(hasher.New(), documents.NewCache(time.Hour)))

	first, err := svc.UploadDocument(context.Background(), domain.NewSession("a"), "a.pdf", samplePDF)
	require.NoError(t, err)
	second, err := svc.UploadDocument(context.Background(), domain.NewSession("b"), "b.pdf", samplePDF)
	require.NoError(t, err)

	assert.Equal(t, 1, llm.uploads)
	assert.Equal(t, first, second)

	_, err = svc.UploadDocument(context.Background(), domain.NewSession("c"), "c.pdf", append(append([]byte(nil), samplePDF...), 'x'))
	require.NoError(t, err)
	assert.Equal(t, 2, llm.uploads)
}

func TestResetKeepsDocument(t *testing.T) {
	llm := &scriptedLlm{fragments: []string{"ok"}}
	svc := NewChatService(llm)
	sess := newSessionWithDocument(t, svc)
	_, err := svc.Ask(context.Background(), sess, "q", nil)
	require.NoError(t, err)

	svc.Reset(context.Background(), sess)

	assert.Empty(t, svc.Transcript(sess))
	_, ok := sess.Document()
	assert.True(t, ok)
}

func TestSessionEventsArePublished(t *testing.T) {
	ctx := context.Background()
	broker := message_broker.NewChannelMessageBroker()
	events, err := broker.Subscribe(ctx, domain.SessionEventsTopic, "s1")
	require.NoError(t, err)

	svc := NewChatService(&scriptedLlm{fragments: []string{"Here's the answer"}}, WithBroker(broker))
	sess := newSessionWithDocument(t, svc)
	_, err = svc.Ask(ctx, sess, "q", nil)
	require.NoError(t, err)
	svc.Reset(ctx, sess)

	var types []domain.SessionEventType
	for i := 0; i < 3; i++ {
		msg := <-events
		var ev domain.SessionEvent
		require.NoError(t, json.Unmarshal(msg.Payload, &ev))
		assert.Equal(t, "s1", ev.SessionID)
		types = append(types, ev.Type)
	}
	assert.Equal(t, []domain.SessionEventType{
		domain.EventDocumentUploaded,
		domain.EventTurnCommitted,
		domain.EventSessionReset,
	}, types)
}

func TestResetDuringAskDiscardsAnswer(t *testing.T) {
	llm := &scriptedLlm{fragments: []string{"Okay, here it is"}, block: make(chan struct{})}
	svc := NewChatService(llm)
	sess := newSessionWithDocument(t, svc)

	done := make(chan error, 1)
	go func() {
		_, err := svc.Ask(context.Background(), sess, "first", nil)
		done <- err
	}()
	require.Eventually(t, func() bool {
		return sess.Len() == 1
	}, time.Second, 5*time.Millisecond)

	svc.Reset(context.Background(), sess)
	close(llm.block)

	assert.ErrorIs(t, <-done, domain.ErrConversationReset)
	assert.Empty(t, sess.History())

	llm.block = nil
	_, err := svc.Ask(context.Background(), sess, "again", nil)
	require.NoError(t, err)
	require.Len(t, llm.lastHistory, 1)
	assert.True(t, llm.lastHistory[0].HasDocument())
}

func TestUploadDuringAskDiscardsAnswer(t *testing.T) {
	llm := &scriptedLlm{fragments: []string{"old answer"}, block: make(chan struct{})}
	svc := NewChatService(llm)
	sess := newSessionWithDocument(t, svc)

	done := make(chan error, 1)
	go func() {
		_, err := svc.Ask(context.Background(), sess, "about the old one", nil)
		done <- err
	}()
	require.Eventually(t, func() bool {
		return sess.Len() == 1
	}, time.Second, 5*time.Millisecond)

	doc, err := svc.UploadDocument(context.Background(), sess, "new.pdf", samplePDF)
	require.NoError(t, err)
	close(llm.block)

	assert.ErrorIs(t, <-done, domain.ErrConversationReset)
	assert.Equal(t, 0, sess.Len())
	active, _ := sess.Document()
	assert.Equal(t, doc, active)
}

func TestAskEmptyStreamIsNotCommitted(t *testing.T) {
	svc := NewChatService(&scriptedLlm{})
	sess := newSessionWithDocument(t, svc)

	_, err := svc.Ask(context.Background(), sess, "q", nil)

	var streamErr *domain.StreamError
	require.ErrorAs(t, err, &streamErr)
	assert.ErrorIs(t, err, domain.ErrEmptyAnswer)
	assert.Equal(t, 0, streamErr.Fragments)
	assert.Equal(t, 0, sess.Len())
	assert.NoError(t, sess.Begin(), "session must not stay busy")
}
