// Package telephony answers phone calls through Twilio voice webhooks,
// resolving each caller utterance like a typed turn.
package telephony

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/twilio/twilio-go/twiml"

	"github.com/arsaha28/ccp/internal/conversation"
	"github.com/arsaha28/ccp/internal/intent"
	"github.com/arsaha28/ccp/internal/session"
)

const (
	gatherPath     = "/twilio/gather"
	goodbyeIntent  = "goodbye"
	noInputMessage = "I didn't hear anything. Thank you for calling Retail Bank Branch Support. Goodbye!"
)

// Config wires the phone channel.
type Config struct {
	Resolver       intent.Resolver
	AgentID        string
	LanguageCode   string
	ResolveTimeout time.Duration
	AuthToken      string
	PublicBaseURL  string
	OnTurn         func(conversation.Turn, error)
	Logger         *slog.Logger
}

// Handlers keeps one resolver session per CallSid until the call ends.
type Handlers struct {
	cfg Config
	log *slog.Logger

	mu    sync.Mutex
	calls map[string]*session.Manager
}

func NewHandlers(cfg Config) (*Handlers, error) {
	if cfg.Resolver == nil {
		return nil, errors.New("telephony: resolver must not be nil")
	}
	if cfg.LanguageCode == "" {
		cfg.LanguageCode = intent.DefaultLanguageCode
	}
	if cfg.ResolveTimeout <= 0 {
		cfg.ResolveTimeout = 15 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{cfg: cfg, log: logger.With("component", "telephony"), calls: make(map[string]*session.Manager)}, nil
}

func (h *Handlers) Register(e *echo.Echo) {
	g := e.Group("/twilio", VerifySignature(h.cfg.AuthToken, h.cfg.PublicBaseURL))
	g.POST("/voice", h.voice)
	g.POST("/gather", h.gather)
	g.POST("/status", h.status)
}

func (h *Handlers) voice(c echo.Context) error {
	params := paramsFrom(c)
	callSid := params["CallSid"]
	h.log.Info("incoming call", "call_sid", callSid, "from", params["From"])
	h.session(callSid)

	return h.respond(c,
		&twiml.VoiceSay{Message: conversation.GreetingText, Language: h.cfg.LanguageCode},
		h.gatherVerb(),
		&twiml.VoiceSay{Message: noInputMessage, Language: h.cfg.LanguageCode},
		&twiml.VoiceHangup{},
	)
}

func (h *Handlers) gather(c echo.Context) error {
	params := paramsFrom(c)
	callSid := params["CallSid"]
	speech := strings.TrimSpace(params["SpeechResult"])
	if speech == "" {
		return h.respond(c,
			&twiml.VoiceSay{Message: conversation.RephraseText, Language: h.cfg.LanguageCode},
			h.gatherVerb(),
			&twiml.VoiceSay{Message: noInputMessage, Language: h.cfg.LanguageCode},
			&twiml.VoiceHangup{},
		)
	}

	turn, err := h.resolve(c.Request().Context(), callSid, speech)
	if h.cfg.OnTurn != nil {
		h.cfg.OnTurn(turn, err)
	}
	reply := &twiml.VoiceSay{Message: replyText(turn), Language: h.cfg.LanguageCode}
	if turn.Intent == goodbyeIntent {
		h.drop(callSid)
		return h.respond(c, reply, &twiml.VoiceHangup{})
	}
	return h.respond(c,
		reply,
		h.gatherVerb(),
		&twiml.VoiceSay{Message: noInputMessage, Language: h.cfg.LanguageCode},
		&twiml.VoiceHangup{},
	)
}

func (h *Handlers) status(c echo.Context) error {
	params := paramsFrom(c)
	switch params["CallStatus"] {
	case "completed", "busy", "failed", "no-answer", "canceled":
		h.drop(params["CallSid"])
		h.log.Info("call ended", "call_sid", params["CallSid"], "status", params["CallStatus"], "duration", params["CallDuration"])
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handlers) resolve(ctx context.Context, callSid, text string) (conversation.Turn, error) {
	turn := conversation.Turn{Input: text, Source: conversation.SourceVoice, At: time.Now()}
	sess := h.session(callSid)
	ctx, cancel := context.WithTimeout(ctx, h.cfg.ResolveTimeout)
	defer cancel()
	res, err := h.cfg.Resolver.DetectIntent(ctx, intent.Query{
		SessionID:    sess.ID(),
		Text:         text,
		LanguageCode: h.cfg.LanguageCode,
		AgentID:      sess.Agent(),
	})
	if err != nil {
		h.log.Warn("intent resolution failed", "call_sid", callSid, "error", err)
		turn.Failed = true
		turn.Intent = conversation.ErrorIntent
		turn.Fulfillment = conversation.ApologyText
		return turn, err
	}
	turn.Intent = res.Intent.DisplayName
	turn.Confidence = res.Intent.Confidence
	turn.Fulfillment = res.FulfillmentText
	return turn, nil
}

func replyText(t conversation.Turn) string {
	if t.Fulfillment == "" {
		return conversation.RephraseText
	}
	return t.Fulfillment
}

func (h *Handlers) gatherVerb() *twiml.VoiceGather {
	return &twiml.VoiceGather{
		Action:        gatherPath,
		Method:        http.MethodPost,
		Input:         "speech",
		SpeechTimeout: "auto",
		Language:      h.cfg.LanguageCode,
	}
}

func (h *Handlers) session(callSid string) *session.Manager {
	h.mu.Lock()
	defer h.mu.Unlock()
	m, ok := h.calls[callSid]
	if !ok {
		m = session.NewManager(h.cfg.AgentID)
		h.calls[callSid] = m
	}
	return m
}

func (h *Handlers) drop(callSid string) {
	h.mu.Lock()
	delete(h.calls, callSid)
	h.mu.Unlock()
}

func (h *Handlers) activeCalls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.calls)
}

func (h *Handlers) respond(c echo.Context, verbs ...twiml.Element) error {
	resp, err := twiml.Voice(verbs)
	if err != nil {
		return c.String(http.StatusInternalServerError, "failed to build TwiML")
	}
	return c.Blob(http.StatusOK, "application/xml", []byte(resp))
}
