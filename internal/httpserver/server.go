// Package httpserver exposes the REST proxy, the conversation websocket,
// the phone webhooks, and metrics on one Echo router.
package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/arsaha28/ccp/internal/intent"
	"github.com/arsaha28/ccp/internal/tts"
)

const serviceName = "Voice Agent Backend"

// Registrar mounts additional routes, such as the phone webhooks.
type Registrar interface {
	Register(e *echo.Echo)
}

// Deps are the collaborators behind the routes. Nil optional fields
// disable the routes that need them.
type Deps struct {
	// Resolver answers detect-intent. Nil, or one returning
	// intent.ErrNotConfigured, falls back to the keyword matcher.
	Resolver     intent.Resolver
	Catalog      intent.Catalog
	LanguageCode string

	Synthesizer tts.Synthesizer
	Voices      tts.VoiceLister

	Conversation http.Handler
	Metrics      http.Handler
	Extra        []Registrar

	FrontendURL string
	Production  bool
	Logger      *slog.Logger
}

// Server bundles the router and its dependencies.
type Server struct {
	Router http.Handler

	deps Deps
	log  *slog.Logger
}

// New constructs the HTTP server with routes.
func New(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if deps.LanguageCode == "" {
		deps.LanguageCode = intent.DefaultLanguageCode
	}
	s := &Server{deps: deps, log: logger.With("component", "http")}

	e := newEcho(deps.FrontendURL, deps.Production, s.log)
	api := e.Group("/api")
	api.GET("/health", s.health)

	df := api.Group("/dialogflow")
	df.POST("/detect-intent", s.detectIntent)
	df.POST("/detect-intent-audio", s.detectIntentAudio)
	df.GET("/agents", s.agents)

	api.POST("/tts", s.synthesize)
	api.GET("/tts/voices", s.voices)

	if deps.Conversation != nil {
		api.GET("/conversation/ws", echo.WrapHandler(deps.Conversation))
	}
	if deps.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(deps.Metrics))
	}
	for _, r := range deps.Extra {
		r.Register(e)
	}

	s.Router = e
	return s
}
