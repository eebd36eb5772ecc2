package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/arsaha28/ccp/internal/config"
	"github.com/arsaha28/ccp/internal/httpserver"
	"github.com/arsaha28/ccp/internal/intent"
	"github.com/arsaha28/ccp/internal/metrics"
	"github.com/arsaha28/ccp/internal/realtime"
	"github.com/arsaha28/ccp/internal/telephony"
	"github.com/arsaha28/ccp/internal/transcript"
	"github.com/arsaha28/ccp/internal/tts"
)

func main() {
	cfg := config.Load()
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	handler, err := build(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in background
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("voice agent backend listening", "addr", server.Addr,
			"health", "/api/health", "dialogflow", "/api/dialogflow", "conversation", "/api/conversation/ws")
		serverErrors <- server.ListenAndServe()
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	case sig := <-sigChan:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown failed", "error", err)
		_ = server.Close()
	}
}

func newLogger(cfg config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(cfg.LogLevel))); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// build wires configuration into the HTTP handler.
func build(ctx context.Context, cfg config.Config, logger *slog.Logger) (http.Handler, error) {
	m := metrics.New()

	catalog, err := intent.ParseCatalog(cfg.DialogflowAgents, cfg.DialogflowDefaultAgent, cfg.DialogflowProjectID)
	if err != nil {
		return nil, err
	}

	var resolver intent.Resolver
	resolverName := "fallback"
	if len(catalog.Agents) > 0 {
		df, err := intent.NewDialogflowClient(ctx, catalog)
		if err != nil {
			logger.Warn("dialogflow unavailable, using keyword fallback", "error", err)
		} else {
			resolver = df
			resolverName = "dialogflow"
		}
	}
	resolver = m.Resolver(resolverName, intent.WithFallback(resolver))

	synth, voices := newSynthesizer(ctx, cfg, logger)
	if synth != nil {
		synth = m.Synthesizer(cfg.TTSProvider, synth)
	}

	rtCfg := realtime.Config{
		Resolver:           resolver,
		Synthesizer:        synth,
		VoiceName:          cfg.TTSVoiceName,
		LanguageCode:       cfg.LanguageCode,
		DefaultAgent:       catalog.DefaultAgent,
		ResolveTimeout:     cfg.ResolverTimeout,
		MaxEventsPerSecond: cfg.WSMaxEventsPerSecond,
		OnConnect:          m.ConversationStarted,
		OnTurn:             m.ObserveTurn,
		OnCaptureError:     m.ObserveCaptureError,
		Logger:             logger,
	}
	if cfg.AssemblyAIKey != "" {
		rtCfg.NewPCMCapturer = func() realtime.PCMCapturer {
			return transcript.NewCapturer(cfg.AssemblyAIKey, logger)
		}
	}
	conversation, err := realtime.NewHandler(rtCfg)
	if err != nil {
		return nil, err
	}

	phone, err := telephony.NewHandlers(telephony.Config{
		Resolver:       resolver,
		AgentID:        catalog.DefaultAgent,
		LanguageCode:   cfg.LanguageCode,
		ResolveTimeout: cfg.ResolverTimeout,
		AuthToken:      cfg.TwilioAuthToken,
		PublicBaseURL:  cfg.PublicBaseURL,
		OnTurn:         m.ObserveTurn,
		Logger:         logger,
	})
	if err != nil {
		return nil, err
	}

	srv := httpserver.New(httpserver.Deps{
		Resolver:     resolver,
		Catalog:      catalog,
		LanguageCode: cfg.LanguageCode,
		Synthesizer:  synth,
		Voices:       voices,
		Conversation: conversation,
		Metrics:      m.Handler(),
		Extra:        []httpserver.Registrar{phone},
		FrontendURL:  cfg.FrontendURL,
		Production:   cfg.IsProduction(),
		Logger:       logger,
	})
	return srv.Router, nil
}

func newSynthesizer(ctx context.Context, cfg config.Config, logger *slog.Logger) (tts.Synthesizer, tts.VoiceLister) {
	switch cfg.TTSProvider {
	case config.TTSGoogle:
		g, err := tts.NewGoogleClient(ctx, cfg.TTSVoiceName)
		if err != nil {
			logger.Warn("google tts unavailable", "error", err)
			return nil, nil
		}
		return g, g
	case config.TTSElevenLabs:
		return tts.NewElevenLabsClient(cfg.ElevenLabsKey, cfg.ElevenLabsVoiceID, logger), nil
	case config.TTSDeepgram:
		return tts.NewDeepgramClient(cfg.DeepgramKey, cfg.DeepgramModel, logger), nil
	}
	return nil, nil
}
