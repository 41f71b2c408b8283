package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/cocoa-fruit/pdfchat/domain"
	"github.com/satriahrh/cocoa-fruit/pdfchat/usecase"
	"github.com/satriahrh/cocoa-fruit/pdfchat/utils/log"
)

const (
	DefaultTokenTTL      = 2 * time.Hour
	DefaultMaxUploadSize = 20 * 1024 * 1024 // 20MB, the Gemini inline limit
	DefaultMaxConcurrent = 10

	// Voice questions are short recordings.
	MaxAudioSize = 10 * 1024 * 1024
)

type Options struct {
	JWTSecret     string
	APIKey        string
	TokenTTL      time.Duration
	MaxUploadSize int64
	MaxConcurrent int
}

type ChatHandler struct {
	chat          *usecase.ChatService
	voice         *usecase.VoiceService
	sessions      domain.SessionStore
	jwtSecret     []byte
	apiKey        string
	tokenTTL      time.Duration
	maxUploadSize int64
	maxConcurrent int
}

type CreateSessionResponse struct {
	SessionID string    `json:"session_id"`
	Token     string    `json:"token"`
	Type      string    `json:"type"`
	ExpiresAt time.Time `json:"expires_at"`
}

type TurnResponse struct {
	Role        domain.Role `json:"role"`
	Text        string      `json:"text"`
	HasDocument bool        `json:"has_document"`
	Display     string      `json:"display"`
}

type SessionResponse struct {
	SessionID string                    `json:"session_id"`
	Document  *domain.DocumentReference `json:"document"`
	Turns     []TurnResponse            `json:"turns"`
}

type UploadResponse struct {
	Success  bool                     `json:"success"`
	Message  string                   `json:"message"`
	Document domain.DocumentReference `json:"document"`
}

type AskRequest struct {
	Text string `json:"text"`
}

type AnswerResponse struct {
	Question string       `json:"question"`
	Answer   string       `json:"answer"`
	Thinking string       `json:"thinking"`
	Final    string       `json:"final"`
	Phase    domain.Phase `json:"phase"`
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewChatHandler wires the HTTP surface. voice may be nil when voice is
// disabled.
func NewChatHandler(chat *usecase.ChatService, voice *usecase.VoiceService, sessions domain.SessionStore, opts Options) *ChatHandler {
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = DefaultTokenTTL
	}
	if opts.MaxUploadSize <= 0 {
		opts.MaxUploadSize = DefaultMaxUploadSize
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	return &ChatHandler{
		chat:          chat,
		voice:         voice,
		sessions:      sessions,
		jwtSecret:     []byte(opts.JWTSecret),
		apiKey:        opts.APIKey,
		tokenTTL:      opts.TokenTTL,
		maxUploadSize: opts.MaxUploadSize,
		maxConcurrent: opts.MaxConcurrent,
	}
}

// Register mounts the REST routes under /api/v1.
func (h *ChatHandler) Register(e *echo.Echo) {
	api := e.Group("/api/v1")

	api.GET("/health", h.HealthCheck)
	api.POST("/sessions", h.CreateSession)

	session := api.Group("/session")
	session.Use(h.SessionMiddleware)
	session.Use(ConcurrencyLimit(h.maxConcurrent))

	session.GET("", h.GetSession)
	session.DELETE("", h.DeleteSession)
	session.POST("/token", h.RefreshToken)
	session.POST("/document", h.UploadDocument)
	session.POST("/reset", h.ResetConversation)
	session.POST("/messages", h.PostMessage)
	session.POST("/voice", h.PostVoice)
	session.GET("/answer/audio", h.GetAnswerAudio)
}

// HealthCheck reports liveness.
func (h *ChatHandler) HealthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"service":   "pdfchat",
	})
}

// CreateSession starts an empty session and returns its bearer token.
func (h *ChatHandler) CreateSession(c echo.Context) error {
	if h.apiKey != "" && c.Request().Header.Get("X-API-Key") != h.apiKey {
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid API key")
	}

	sess, err := h.sessions.Create()
	if err != nil {
		return toHTTPError(err)
	}

	return h.issueToken(c, http.StatusCreated, sess)
}

// RefreshToken issues a fresh token for a session that is still alive.
// The session TTL slides with use; the token does not.
func (h *ChatHandler) RefreshToken(c echo.Context) error {
	return h.issueToken(c, http.StatusOK, sessionFrom(c))
}

func (h *ChatHandler) issueToken(c echo.Context, status int, sess *domain.Session) error {
	token, expiresAt, err := h.signToken(sess.ID, time.Now())
	if err != nil {
		log.WithCtx(c.Request().Context()).Error("Error signing JWT", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to generate token")
	}

	return c.JSON(status, CreateSessionResponse{
		SessionID: sess.ID,
		Token:     token,
		Type:      "Bearer",
		ExpiresAt: expiresAt.UTC(),
	})
}

func (h *ChatHandler) GetSession(c echo.Context) error {
	sess := sessionFrom(c)

	resp := SessionResponse{SessionID: sess.ID, Turns: []TurnResponse{}}
	if doc, ok := sess.Document(); ok {
		resp.Document = &doc
	}
	for _, v := range h.chat.Transcript(sess) {
		resp.Turns = append(resp.Turns, TurnResponse{
			Role:        v.Role,
			Text:        v.Text,
			HasDocument: v.HasDocument,
			Display:     v.Display(),
		})
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *ChatHandler) DeleteSession(c echo.Context) error {
	sess := sessionFrom(c)
	if err := h.sessions.Dispose(sess.ID); err != nil {
		return toHTTPError(err)
	}
	h.chat.Disposed(c.Request().Context(), sess.ID)
	return c.NoContent(http.StatusNoContent)
}

// UploadDocument accepts a multipart "file" field holding a PDF.
func (h *ChatHandler) UploadDocument(c echo.Context) error {
	sess := sessionFrom(c)

	header, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Missing file field")
	}
	if header.Size > h.maxUploadSize {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, fmt.Sprintf("File exceeds %d bytes", h.maxUploadSize))
	}

	file, err := header.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Unreadable file")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxUploadSize+1))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Unreadable file")
	}
	if int64(len(data)) > h.maxUploadSize {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, fmt.Sprintf("File exceeds %d bytes", h.maxUploadSize))
	}

	doc, err := h.chat.UploadDocument(c.Request().Context(), sess, header.Filename, data)
	if err != nil {
		return toHTTPError(err)
	}

	return c.JSON(http.StatusOK, UploadResponse{
		Success:  true,
		Message:  "PDF uploaded successfully!",
		Document: doc,
	})
}

func (h *ChatHandler) ResetConversation(c echo.Context) error {
	sess := sessionFrom(c)
	h.chat.Reset(c.Request().Context(), sess)
	return h.GetSession(c)
}

// PostMessage answers a question. With "Accept: text/event-stream" every
// snapshot is pushed as a server-sent event.
func (h *ChatHandler) PostMessage(c echo.Context) error {
	sess := sessionFrom(c)

	var req AskRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	if strings.Contains(c.Request().Header.Get(echo.HeaderAccept), "text/event-stream") {
		return h.streamAnswer(c, sess, req.Text)
	}

	answer, err := h.chat.Ask(c.Request().Context(), sess, req.Text, nil)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, answerResponse(req.Text, answer))
}

func (h *ChatHandler) streamAnswer(c echo.Context, sess *domain.Session, question string) error {
	w := c.Response()
	started := false
	start := func() {
		if started {
			return
		}
		started = true
		w.Header().Set(echo.HeaderContentType, "text/event-stream")
		w.Header().Set(echo.HeaderCacheControl, "no-cache")
		w.Header().Set(echo.HeaderConnection, "keep-alive")
		w.WriteHeader(http.StatusOK)
	}

	answer, err := h.chat.Ask(c.Request().Context(), sess, question, func(snap domain.Snapshot) error {
		start()
		return writeEvent(w, "snapshot", snap)
	})
	if err != nil {
		if !started {
			// Nothing streamed yet, so a plain HTTP error is still possible.
			return toHTTPError(err)
		}
		return writeEvent(w, "error", ErrorResponse{Code: domain.ErrorCode(err), Message: err.Error()})
	}

	start()
	return writeEvent(w, "answer", answerResponse(question, answer))
}

func writeEvent(w *echo.Response, event string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return err
	}
	w.Flush()
	return nil
}

// PostVoice answers a recorded question sent as the raw request body.
func (h *ChatHandler) PostVoice(c echo.Context) error {
	sess := sessionFrom(c)

	audio, err := io.ReadAll(io.LimitReader(c.Request().Body, MaxAudioSize))
	if err != nil || len(audio) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "Missing audio body")
	}

	question, answer, err := h.voice.AskByVoice(c.Request().Context(), sess, audio, nil)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, answerResponse(question, answer))
}

// GetAnswerAudio reads the last answer aloud as MP3.
func (h *ChatHandler) GetAnswerAudio(c echo.Context) error {
	audio, err := h.voice.ReadAloud(c.Request().Context(), sessionFrom(c))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Blob(http.StatusOK, "audio/mpeg", audio)
}

func answerResponse(question string, answer domain.Snapshot) AnswerResponse {
	return AnswerResponse{
		Question: strings.TrimSpace(question),
		Answer:   answer.Text(),
		Thinking: answer.Thinking,
		Final:    answer.Final,
		Phase:    answer.Phase,
	}
}

func sessionFrom(c echo.Context) *domain.Session {
	return c.Get(SessionContextKey).(*domain.Session)
}

func toHTTPError(err error) error {
	var (
		uploadErr *domain.UploadError
		streamErr *domain.StreamError
	)
	switch {
	case errors.As(err, &uploadErr), errors.As(err, &streamErr):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error()).SetInternal(err)
	case errors.Is(err, domain.ErrNotPDF):
		return echo.NewHTTPError(http.StatusUnsupportedMediaType, "Please upload a PDF")
	case errors.Is(err, domain.ErrEmptyQuestion):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNoDocument):
		return echo.NewHTTPError(http.StatusConflict, "Please upload a PDF to start chatting")
	case errors.Is(err, domain.ErrSessionBusy), errors.Is(err, domain.ErrConversationReset):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrNoAnswer):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrVoiceDisabled):
		return echo.NewHTTPError(http.StatusNotImplemented, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "Internal error").SetInternal(err)
	}
}
