package domain

import (
	"strings"
	"sync"
	"time"
)

const PDFMimeType = "application/pdf"

type Role string

const (
	UserRole  Role = "user"
	ModelRole Role = "model"
)

// DocumentReference is the provider-side handle of an uploaded document.
type DocumentReference struct {
	URI      string `json:"uri"`
	MIMEType string `json:"mime_type"`
	Name     string `json:"name,omitempty"`
}

// Part is either a text part or a document part, never both.
type Part struct {
	Text     string             `json:"text,omitempty"`
	Document *DocumentReference `json:"document,omitempty"`
}

func TextPart(text string) Part { return Part{Text: text} }

func DocumentPart(doc DocumentReference) Part {
	return Part{Document: &doc}
}

type ConversationTurn struct {
	Role  Role   `json:"role"`
	Parts []Part `json:"parts"`
}

// Text joins the text parts of the turn with a single space.
func (t ConversationTurn) Text() string {
	texts := make([]string, 0, len(t.Parts))
	for _, p := range t.Parts {
		if p.Document == nil {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, " ")
}

func (t ConversationTurn) HasDocument() bool {
	for _, p := range t.Parts {
		if p.Document != nil {
			return true
		}
	}
	return false
}

// TurnView is the display form of a turn.
type TurnView struct {
	Role        Role   `json:"role"`
	Text        string `json:"text"`
	HasDocument bool   `json:"has_document"`
}

func (v TurnView) Display() string {
	if v.HasDocument && v.Role == UserRole {
		return "[Document uploaded] " + v.Text
	}
	return v.Text
}

// Session is one user's conversation: ordered history plus the active
// document. It lives until Dispose or until its registry evicts it.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu       sync.Mutex
	history  []ConversationTurn
	document *DocumentReference
	busy     bool

	// bumped by Reset and Dispose so a running exchange can tell that the
	// conversation it started in is gone
	generation uint64
}

// Checkpoint identifies the history an exchange started from.
type Checkpoint struct {
	Len        int
	Generation uint64
}

func NewSession(id string) *Session {
	return &Session{ID: id, CreatedAt: time.Now()}
}

// Reset clears the history. A non-nil doc replaces the active document,
// a nil doc keeps it.
func (s *Session) Reset(doc *DocumentReference) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = nil
	s.generation++
	if doc != nil {
		d := *doc
		s.document = &d
	}
}

// AppendUserTurn attaches the active document to the first user turn only.
func (s *Session) AppendUserTurn(text string) ConversationTurn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendUserTurn(text)
}

// StartExchange appends the user turn and returns the checkpoint taken
// right before it.
func (s *Session) StartExchange(text string) (ConversationTurn, Checkpoint) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := Checkpoint{Len: len(s.history), Generation: s.generation}
	return s.appendUserTurn(text), cp
}

// CommitModelTurn appends the answer unless the conversation was reset or
// disposed since cp.
func (s *Session) CommitModelTurn(cp Checkpoint, text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.generation != cp.Generation {
		return false
	}
	s.history = append(s.history, ConversationTurn{Role: ModelRole, Parts: []Part{TextPart(text)}})
	return true
}

// Rollback restores the history of cp. A conversation reset since cp is
// left alone.
func (s *Session) Rollback(cp Checkpoint) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.generation == cp.Generation && cp.Len < len(s.history) {
		s.history = s.history[:cp.Len]
	}
}

func (s *Session) appendUserTurn(text string) ConversationTurn {
	turn := ConversationTurn{Role: UserRole}
	if len(s.history) == 0 && s.document != nil {
		turn.Parts = append(turn.Parts, DocumentPart(*s.document))
	}
	turn.Parts = append(turn.Parts, TextPart(text))
	s.history = append(s.history, turn)
	return turn
}

func (s *Session) AppendModelTurn(text string) ConversationTurn {
	s.mu.Lock()
	defer s.mu.Unlock()

	turn := ConversationTurn{Role: ModelRole, Parts: []Part{TextPart(text)}}
	s.history = append(s.history, turn)
	return turn
}

// History returns a copy that is safe to hand to the Llm.
func (s *Session) History() []ConversationTurn {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]ConversationTurn, len(s.history))
	for i, t := range s.history {
		out[i] = ConversationTurn{Role: t.Role, Parts: append([]Part(nil), t.Parts...)}
	}
	return out
}

func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}

// Truncate drops every turn past n.
func (s *Session) Truncate(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n < 0 {
		n = 0
	}
	if n < len(s.history) {
		s.history = s.history[:n]
	}
}

func (s *Session) Document() (DocumentReference, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.document == nil {
		return DocumentReference{}, false
	}
	return *s.document, true
}

func (s *Session) LastModelTurn() (ConversationTurn, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.history) - 1; i >= 0; i-- {
		if s.history[i].Role == ModelRole {
			return s.history[i], true
		}
	}
	return ConversationTurn{}, false
}

func (s *Session) Transcript() []TurnView {
	history := s.History()
	views := make([]TurnView, len(history))
	for i, t := range history {
		views[i] = TurnView{Role: t.Role, Text: t.Text(), HasDocument: t.HasDocument()}
	}
	return views
}

// Begin marks a submission in flight. Only one submission per session may
// run at a time.
func (s *Session) Begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.busy {
		return ErrSessionBusy
	}
	s.busy = true
	return nil
}

func (s *Session) End() {
	s.mu.Lock()
	s.busy = false
	s.mu.Unlock()
}

// Dispose drops history and document.
func (s *Session) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = nil
	s.document = nil
	s.generation++
}
