package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/satriahrh/cocoa-fruit/pdfchat/domain"
	"github.com/satriahrh/cocoa-fruit/pdfchat/utils/log"
)

// MemoryStore keeps sessions in process memory. A session idle for longer
// than the TTL is evicted and disposed; every Get renews it.
type MemoryStore struct {
	sessions *cache.Cache
	ttl      time.Duration
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	c := cache.New(ttl, ttl/2+time.Second)
	c.OnEvicted(func(id string, v interface{}) {
		if sess, ok := v.(*domain.Session); ok {
			sess.Dispose()
		}
		log.WithCtx(log.ContextWithSessionID(context.Background(), id)).Debug("Session evicted")
	})
	return &MemoryStore{sessions: c, ttl: ttl}
}

func (s *MemoryStore) Create() (*domain.Session, error) {
	sess := domain.NewSession(uuid.NewString())
	if err := s.sessions.Add(sess.ID, sess, cache.DefaultExpiration); err != nil {
		return nil, err
	}
	log.WithCtx(context.Background()).Info("Session created", zap.String("session_id", sess.ID))
	return sess, nil
}

func (s *MemoryStore) Get(id string) (*domain.Session, error) {
	v, ok := s.sessions.Get(id)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	s.sessions.Set(id, v, cache.DefaultExpiration)
	return v.(*domain.Session), nil
}

func (s *MemoryStore) Dispose(id string) error {
	if _, ok := s.sessions.Get(id); !ok {
		return domain.ErrSessionNotFound
	}
	// Delete runs OnEvicted, which disposes the session.
	s.sessions.Delete(id)
	return nil
}

func (s *MemoryStore) Count() int {
	return s.sessions.ItemCount()
}
