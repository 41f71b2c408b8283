package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/satriahrh/cocoa-fruit/pdfchat/domain"
	"github.com/satriahrh/cocoa-fruit/pdfchat/usecase"
	"github.com/satriahrh/cocoa-fruit/pdfchat/utils/log"
)

// Frame types
const (
	TypeAsk      = "ask"
	TypeReset    = "reset"
	TypeSnapshot = "snapshot"
	TypeAnswer   = "answer"
	TypeError    = "error"
	TypeEvent    = "event"
)

type Server struct {
	upgrader      websocket.Upgrader
	svc           *usecase.ChatService
	messageBroker domain.MessageBroker
	hub           *Hub

	// serializes hub membership changes with broker (un)subscription
	watchMu sync.Mutex
}

func NewServer(svc *usecase.ChatService, messageBroker domain.MessageBroker) *Server {
	return &Server{
		upgrader:      websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		svc:           svc,
		messageBroker: messageBroker,
		hub:           NewHub(),
	}
}

func (s *Server) GetHub() *Hub {
	return s.hub
}

func (s *Server) join(client *Client) {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()

	if s.hub.Register(client) {
		s.watchSession(client.sessionID)
	}
}

func (s *Server) leave(client *Client) {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()

	if s.hub.Unregister(client) && s.messageBroker != nil {
		s.messageBroker.Unsubscribe(domain.SessionEventsTopic, client.sessionID)
	}
}

// watchSession forwards session events from the broker to every client of
// the session until the subscription is closed
func (s *Server) watchSession(sessionID string) {
	if s.messageBroker == nil {
		return
	}
	ctx := log.ContextWithSessionID(context.Background(), sessionID)

	messageChan, err := s.messageBroker.Subscribe(ctx, domain.SessionEventsTopic, sessionID)
	if err != nil {
		log.WithCtx(ctx).Error("Failed to subscribe to session events", zap.Error(err))
		return
	}

	go func() {
		for msg := range messageChan {
			var event domain.SessionEvent
			if err := json.Unmarshal(msg.Payload, &event); err != nil {
				log.WithCtx(ctx).Error("Failed to unmarshal session event", zap.Error(err))
				continue
			}

			s.hub.SendToSession(sessionID, Message{
				Type:      TypeEvent,
				Timestamp: event.Timestamp,
				Data: map[string]interface{}{
					"event":        string(event.Type),
					"document_uri": event.DocumentURI,
					"text":         event.Text,
				},
			})
		}
		log.WithCtx(ctx).Debug("Session event listener stopped")
	}()
}

// handle runs one client frame. Asks stream back on the same client;
// the session rejects a second ask while one is in flight.
func (s *Server) handle(client *Client, sess *domain.Session, msg Message) {
	ctx := client.Context()

	switch msg.Type {
	case TypeAsk:
		text, _ := msg.Data["text"].(string)
		answer, err := s.svc.Ask(ctx, sess, text, func(snap domain.Snapshot) error {
			return client.SendJSON(Message{Type: TypeSnapshot, Data: snapshotData(snap)})
		})
		if err != nil {
			client.SendError(ErrorResponse{Code: domain.ErrorCode(err), Message: err.Error()})
			return
		}
		client.SendJSON(Message{Type: TypeAnswer, Data: snapshotData(answer)})

	case TypeReset:
		s.svc.Reset(ctx, sess)

	default:
		client.SendError(ErrorResponse{Code: "unknown_type", Message: "Unknown message type: " + msg.Type})
	}
}

func snapshotData(snap domain.Snapshot) map[string]interface{} {
	return map[string]interface{}{
		"phase":    snap.Phase.String(),
		"thinking": snap.Thinking,
		"final":    snap.Final,
		"text":     snap.Text(),
	}
}
