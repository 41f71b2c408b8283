package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/cocoa-fruit/pdfchat/domain"
	"github.com/satriahrh/cocoa-fruit/pdfchat/utils/log"
)

const DefaultTemperature float32 = 0.3

var pdfMagic = []byte("%PDF-")

type ChatService struct {
	llm         domain.Llm
	hasher      domain.Hasher
	documents   domain.DocumentCache
	broker      domain.MessageBroker
	marker      domain.MarkerFunc
	temperature float32
}

type Option func(*ChatService)

func WithMarker(marker domain.MarkerFunc) Option {
	return func(s *ChatService) { s.marker = marker }
}

func WithTemperature(t float32) Option {
	return func(s *ChatService) { s.temperature = t }
}

// WithDocumentCache lets identical uploads reuse the provider file.
func WithDocumentCache(hasher domain.Hasher, cache domain.DocumentCache) Option {
	return func(s *ChatService) {
		s.hasher = hasher
		s.documents = cache
	}
}

func WithBroker(broker domain.MessageBroker) Option {
	return func(s *ChatService) { s.broker = broker }
}

func NewChatService(llm domain.Llm, opts ...Option) *ChatService {
	s := &ChatService{
		llm:         llm,
		marker:      domain.DefaultMarker(),
		temperature: DefaultTemperature,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UploadDocument stores the PDF provider-side and starts a fresh
// conversation about it. On failure the session is not touched.
func (s *ChatService) UploadDocument(ctx context.Context, sess *domain.Session, name string, data []byte) (domain.DocumentReference, error) {
	ctx = log.ContextWithSessionID(ctx, sess.ID)

	if !bytes.HasPrefix(data, pdfMagic) {
		return domain.DocumentReference{}, domain.ErrNotPDF
	}

	var hash string
	if s.hasher != nil && s.documents != nil {
		hash = s.hasher.Hash(data)
		if doc, ok := s.documents.Get(hash); ok {
			log.WithCtx(ctx).Info("Reusing uploaded document", zap.String("uri", doc.URI), zap.String("hash", hash))
			s.startConversation(ctx, sess, doc)
			return doc, nil
		}
	}

	doc, err := s.llm.UploadDocument(ctx, bytes.NewReader(data), name)
	if err != nil {
		log.WithCtx(ctx).Error("Document upload failed", zap.Error(err))
		return domain.DocumentReference{}, &domain.UploadError{Err: err}
	}
	if hash != "" {
		s.documents.Put(hash, doc)
	}

	s.startConversation(ctx, sess, doc)
	return doc, nil
}

func (s *ChatService) startConversation(ctx context.Context, sess *domain.Session, doc domain.DocumentReference) {
	sess.Reset(&doc)
	s.publish(ctx, domain.SessionEvent{
		SessionID:   sess.ID,
		Type:        domain.EventDocumentUploaded,
		DocumentURI: doc.URI,
	})
}

// Ask sends the question with the whole transcript and streams the answer
// through onSnapshot. The exchange is committed only when the stream ends
// cleanly; otherwise history is restored to what it was before the call.
func (s *ChatService) Ask(ctx context.Context, sess *domain.Session, question string, onSnapshot func(domain.Snapshot) error) (domain.Snapshot, error) {
	ctx = log.ContextWithSessionID(ctx, sess.ID)

	question = strings.TrimSpace(question)
	if question == "" {
		return domain.Snapshot{}, domain.ErrEmptyQuestion
	}
	if _, ok := sess.Document(); !ok {
		return domain.Snapshot{}, domain.ErrNoDocument
	}
	if err := sess.Begin(); err != nil {
		return domain.Snapshot{}, err
	}
	defer sess.End()

	_, checkpoint := sess.StartExchange(question)

	start := time.Now()
	var (
		last      domain.Snapshot
		fragments int
	)
	for snap, err := range domain.Segment(s.llm.StreamGenerate(ctx, sess.History(), s.temperature), s.marker) {
		if err != nil {
			sess.Rollback(checkpoint)
			log.WithCtx(ctx).Error("Answer stream failed", zap.Int("fragments", fragments), zap.Error(err))
			return domain.Snapshot{}, &domain.StreamError{Fragments: fragments, Err: err}
		}
		fragments++
		last = snap
		if onSnapshot == nil {
			continue
		}
		if err := onSnapshot(snap); err != nil {
			sess.Rollback(checkpoint)
			log.WithCtx(ctx).Warn("Answer delivery aborted", zap.Int("fragments", fragments), zap.Error(err))
			return domain.Snapshot{}, &domain.StreamError{Fragments: fragments, Err: err}
		}
	}

	if fragments == 0 {
		sess.Rollback(checkpoint)
		log.WithCtx(ctx).Warn("Answer stream was empty")
		return domain.Snapshot{}, &domain.StreamError{Err: domain.ErrEmptyAnswer}
	}

	answer := last.Text()
	if !sess.CommitModelTurn(checkpoint, answer) {
		log.WithCtx(ctx).Info("Answer discarded, conversation was reset", zap.Int("fragments", fragments))
		return domain.Snapshot{}, domain.ErrConversationReset
	}

	log.WithCtx(ctx).Info("Answer committed",
		zap.Int("fragments", fragments),
		zap.Stringer("phase", last.Phase),
		zap.Int("answer_len", len(answer)),
		zap.Duration("took", time.Since(start)))

	s.publish(ctx, domain.SessionEvent{
		SessionID: sess.ID,
		Type:      domain.EventTurnCommitted,
		Text:      answer,
	})
	return last, nil
}

// Reset clears the conversation but keeps the active document.
func (s *ChatService) Reset(ctx context.Context, sess *domain.Session) {
	ctx = log.ContextWithSessionID(ctx, sess.ID)
	sess.Reset(nil)
	log.WithCtx(ctx).Info("Conversation cleared")
	s.publish(ctx, domain.SessionEvent{SessionID: sess.ID, Type: domain.EventSessionReset})
}

// Disposed announces that a session is gone to anyone still listening.
func (s *ChatService) Disposed(ctx context.Context, sessionID string) {
	s.publish(ctx, domain.SessionEvent{SessionID: sessionID, Type: domain.EventSessionDisposed})
}

func (s *ChatService) Transcript(sess *domain.Session) []domain.TurnView {
	return sess.Transcript()
}

func (s *ChatService) publish(ctx context.Context, event domain.SessionEvent) {
	if s.broker == nil {
		return
	}
	event.Timestamp = time.Now().UTC()
	payload, err := json.Marshal(event)
	if err != nil {
		log.WithCtx(ctx).Error("Failed to marshal session event", zap.Error(err))
		return
	}
	if err := s.broker.Publish(ctx, domain.SessionEventsTopic, event.SessionID, payload); err != nil {
		// Events are best effort; the request itself succeeded.
		log.WithCtx(ctx).Warn("Failed to publish session event", zap.String("type", string(event.Type)), zap.Error(err))
	}
}
