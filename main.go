package main

import (
	"context"
	"errors"
	"fmt"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/satriahrh/cocoa-fruit/pdfchat/adapters/documents"
	"github.com/satriahrh/cocoa-fruit/pdfchat/adapters/hasher"
	"github.com/satriahrh/cocoa-fruit/pdfchat/adapters/http"
	"github.com/satriahrh/cocoa-fruit/pdfchat/adapters/llm"
	"github.com/satriahrh/cocoa-fruit/pdfchat/adapters/message_broker"
	"github.com/satriahrh/cocoa-fruit/pdfchat/adapters/session"
	"github.com/satriahrh/cocoa-fruit/pdfchat/adapters/speech"
	"github.com/satriahrh/cocoa-fruit/pdfchat/adapters/tts"
	"github.com/satriahrh/cocoa-fruit/pdfchat/adapters/websocket"
	"github.com/satriahrh/cocoa-fruit/pdfchat/config"
	"github.com/satriahrh/cocoa-fruit/pdfchat/domain"
	"github.com/satriahrh/cocoa-fruit/pdfchat/usecase"
	"github.com/satriahrh/cocoa-fruit/pdfchat/utils/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log.Setup(cfg.Debug, cfg.LogFile)
	defer log.Sync()
	logger := log.With(zap.String("component", "main"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var provider domain.Llm
	if cfg.UseMockLLM {
		logger.Info("Using mock LLM")
		provider = llm.NewMockLLM()
	} else {
		gemini, err := llm.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			logger.Fatal("Failed to create Gemini client", zap.Error(err))
		}
		provider = gemini
	}

	broker := message_broker.NewChannelMessageBroker()
	defer broker.Close()

	sessions := session.NewMemoryStore(cfg.SessionTTL)
	chat := usecase.NewChatService(provider,
		usecase.WithMarker(domain.ContainsAny(cfg.ThinkingMarkers...)),
		usecase.WithTemperature(cfg.Temperature),
		usecase.WithDocumentCache(hasher.New(), documents.NewCache(cfg.DocumentCacheTTL)),
		usecase.WithBroker(broker),
	)

	var voice *usecase.VoiceService
	if cfg.VoiceEnabled {
		googleSpeech, err := speech.NewGoogleSpeech(ctx, cfg.VoiceLanguage)
		if err != nil {
			logger.Fatal("Failed to create speech client", zap.Error(err))
		}
		defer googleSpeech.Close()
		googleTTS, err := tts.NewGoogleTTS(ctx, cfg.VoiceLanguage)
		if err != nil {
			logger.Fatal("Failed to create TTS client", zap.Error(err))
		}
		defer googleTTS.Close()
		voice = usecase.NewVoiceService(chat, googleSpeech, googleTTS)
	}

	uploadLimit, _ := cfg.UploadLimit()
	handler := http.NewChatHandler(chat, voice, sessions, http.Options{
		JWTSecret:     cfg.JWTSecret,
		APIKey:        cfg.APIKey,
		TokenTTL:      cfg.SessionTTL,
		MaxUploadSize: uploadLimit,
		MaxConcurrent: cfg.MaxConcurrent,
	})
	wsServer := websocket.NewServer(chat, broker)

	e := echo.New()
	e.HideBanner = true

	e.Use(http.RequestID())
	e.Use(http.RequestLogger())
	e.Use(middleware.Recover())
	e.Use(middleware.Secure())
	e.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(rate.Limit(cfg.RateLimit))))

	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{echo.GET, echo.POST, echo.DELETE, echo.OPTIONS},
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderContentType,
			echo.HeaderAccept,
			echo.HeaderAuthorization,
			"X-API-Key",
		},
		MaxAge: 86400,
	}))

	// Multipart framing needs headroom above the file limit.
	e.Use(middleware.BodyLimit(fmt.Sprintf("%dK", uploadLimit/1024+1024)))

	handler.Register(e)
	e.GET("/ws", wsServer.Handler(http.SessionContextKey), handler.SessionMiddleware)

	go func() {
		logger.Info("Starting server", zap.String("port", cfg.Port), zap.String("model", cfg.GeminiModel), zap.Bool("voice", cfg.VoiceEnabled))
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			logger.Fatal("Server stopped", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
	}
}
