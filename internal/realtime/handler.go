// Package realtime serves the browser conversation over a websocket: one
// turn controller per connection, driven by client events.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/arsaha28/ccp/internal/conversation"
	"github.com/arsaha28/ccp/internal/intent"
	"github.com/arsaha28/ccp/internal/session"
	"github.com/arsaha28/ccp/internal/tts"
)

const (
	defaultPlaybackTimeout    = 2 * time.Minute
	defaultMaxEventsPerSecond = 10
	outboundBuffer            = 64
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  65536,
	WriteBufferSize: 65536,
	// origins are enforced by the CORS layer in front of the handler
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Config wires a Handler.
type Config struct {
	Resolver     intent.Resolver
	Synthesizer  tts.Synthesizer
	VoiceName    string
	LanguageCode string
	DefaultAgent string

	// NewPCMCapturer, when set, transcribes binary audio frames on the
	// server instead of relying on browser recognition.
	NewPCMCapturer func() PCMCapturer

	ResolveTimeout     time.Duration
	PlaybackTimeout    time.Duration
	MaxEventsPerSecond float64

	// OnConnect, OnTurn and OnCaptureError observe every connection.
	// OnConnect returns a func called on disconnect.
	OnConnect      func() func()
	OnTurn         func(conversation.Turn, error)
	OnCaptureError func(error)

	Logger *slog.Logger
}

type Handler struct {
	cfg Config
	log *slog.Logger
}

func NewHandler(cfg Config) (*Handler, error) {
	if cfg.Resolver == nil {
		return nil, errors.New("realtime: resolver must not be nil")
	}
	if cfg.PlaybackTimeout <= 0 {
		cfg.PlaybackTimeout = defaultPlaybackTimeout
	}
	if cfg.MaxEventsPerSecond <= 0 {
		cfg.MaxEventsPerSecond = defaultMaxEventsPerSecond
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{cfg: cfg, log: logger.With("component", "realtime")}, nil
}

// ServeHTTP upgrades the request and runs the conversation until the
// client disconnects. The optional agentId query parameter selects the
// agent variant.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", "error", err)
		return
	}
	defer func() { _ = ws.Close() }()
	if h.cfg.OnConnect != nil {
		defer h.cfg.OnConnect()()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := &connection{
		h:       h,
		ws:      ws,
		out:     make(chan serverEvent, outboundBuffer),
		done:    ctx.Done(),
		limiter: rate.NewLimiter(rate.Limit(h.cfg.MaxEventsPerSecond), max(1, int(h.cfg.MaxEventsPerSecond))),
		log:     h.log.With("remote", r.RemoteAddr),
	}
	go c.writeLoop(cancel)

	agentID := r.URL.Query().Get("agentId")
	if agentID == "" {
		agentID = h.cfg.DefaultAgent
	}
	if err := c.setup(agentID); err != nil {
		c.log.Error("conversation setup failed", "error", err)
		return
	}
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		_ = c.ctrl.Run(ctx)
	}()
	defer func() {
		cancel()
		<-stopped
	}()

	if err := c.ctrl.NewConversation(ctx); err != nil {
		return
	}
	c.sendSession(true)
	c.log.Info("conversation connected", "session_id", c.ctrl.Session().ID(), "agent_id", agentID)
	c.readLoop(ctx)
	c.log.Info("conversation disconnected")
}

type connection struct {
	h       *Handler
	ws      *websocket.Conn
	out     chan serverEvent
	done    <-chan struct{}
	limiter *rate.Limiter
	log     *slog.Logger

	ctrl    *conversation.Controller
	speaker *socketSpeaker
	browser *browserCapturer
	pcm     PCMCapturer
}

func (c *connection) setup(agentID string) error {
	cfg := c.h.cfg
	c.speaker = newSocketSpeaker(cfg.Synthesizer, c.send, cfg.PlaybackTimeout, c.log)
	c.speaker.voiceName = cfg.VoiceName
	c.speaker.languageCode = cfg.LanguageCode

	var capturer conversation.Capturer
	if cfg.NewPCMCapturer != nil {
		c.pcm = cfg.NewPCMCapturer()
		capturer = c.pcm
	} else {
		c.browser = &browserCapturer{}
		capturer = c.browser
	}

	ctrl, err := conversation.New(conversation.Config{
		Resolver:       cfg.Resolver,
		Session:        session.NewManager(agentID),
		Capturer:       capturer,
		Speaker:        c.speaker,
		LanguageCode:   cfg.LanguageCode,
		ResolveTimeout: cfg.ResolveTimeout,
		Greeting:       conversation.GreetingText,
		Logger:         c.log,
		Hooks: conversation.Hooks{
			OnState: func(s conversation.State) {
				c.send(serverEvent{Type: evState, State: s.String()})
			},
			OnMessage: func(m conversation.Message) {
				c.send(serverEvent{Type: evMessage, Message: &m})
			},
			OnPartial: func(text string) {
				c.send(serverEvent{Type: evPartial, Text: text})
			},
			OnError: func(err error) {
				if cfg.OnCaptureError != nil {
					cfg.OnCaptureError(err)
				}
				c.send(serverEvent{Type: evError, Error: userMessage(err)})
			},
			OnTurn: cfg.OnTurn,
		},
	})
	if err != nil {
		return err
	}
	c.ctrl = ctrl
	return nil
}

func (c *connection) readLoop(ctx context.Context) {
	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug("ws read ended", "error", err)
			}
			return
		}
		if mt == websocket.BinaryMessage {
			if c.pcm != nil {
				_ = c.pcm.SendPCM16KLE(data)
			}
			continue
		}
		if !c.limiter.Allow() {
			c.send(serverEvent{Type: evError, Error: "Too many requests, please slow down."})
			continue
		}
		var ev clientEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			c.send(serverEvent{Type: evError, Error: "Invalid message"})
			continue
		}
		if err := c.dispatch(ctx, ev); err != nil {
			var cerr *conversation.CaptureError
			if errors.As(err, &cerr) {
				// already reported through the error hook
				continue
			}
			if errors.Is(err, conversation.ErrStopped) || errors.Is(err, context.Canceled) {
				return
			}
			c.send(serverEvent{Type: evError, Error: userMessage(err)})
		}
	}
}

func (c *connection) dispatch(ctx context.Context, ev clientEvent) error {
	switch ev.Type {
	case evStartCapture:
		return c.ctrl.StartCapture(ctx)
	case evStopCapture:
		return c.ctrl.StopCapture(ctx)
	case evTranscript:
		if c.browser != nil {
			c.browser.transcript(ev.Text, ev.Final)
		}
	case evCaptureError:
		if c.browser != nil {
			c.browser.fail(ev.Error)
		}
	case evCaptureEnd:
		if c.browser != nil {
			c.browser.end()
		}
	case evText:
		return c.ctrl.Submit(ctx, ev.Text, conversation.SourceText)
	case evQuickAction:
		return c.ctrl.SubmitQuickAction(ctx, ev.ID)
	case evNewConversation:
		if err := c.ctrl.NewConversation(ctx); err != nil {
			return err
		}
		c.sendSession(false)
	case evSelectAgent:
		if err := c.ctrl.SelectAgent(ctx, ev.AgentID); err != nil {
			return err
		}
		if err := c.ctrl.NewConversation(ctx); err != nil {
			return err
		}
		c.sendSession(false)
	case evPlaybackEnded:
		c.speaker.playbackEnded(ev.UtteranceID)
	default:
		return errUnknownEvent
	}
	return nil
}

var errUnknownEvent = errors.New("realtime: unknown event type")

func (c *connection) sendSession(withQuickActions bool) {
	ev := serverEvent{
		Type:      evSession,
		SessionID: c.ctrl.Session().ID(),
		AgentID:   c.ctrl.Session().Agent(),
	}
	if withQuickActions {
		ev.QuickActions = conversation.QuickActions()
	}
	c.send(ev)
}

// send queues an event for the writer; it gives up once the connection
// is closing.
func (c *connection) send(ev serverEvent) {
	select {
	case c.out <- ev:
	case <-c.done:
	}
}

func (c *connection) writeLoop(cancel context.CancelFunc) {
	for {
		select {
		case <-c.done:
			return
		case ev := <-c.out:
			_ = c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.ws.WriteJSON(ev); err != nil {
				c.log.Debug("ws write failed", "error", err)
				cancel()
				return
			}
		}
	}
}

// userMessage maps controller errors to text safe to show in the widget.
func userMessage(err error) string {
	var cerr *conversation.CaptureError
	switch {
	case errors.As(err, &cerr):
		return "Speech recognition error: " + cerr.Err.Error()
	case errors.Is(err, conversation.ErrEmptyInput):
		return "Text is required"
	case errors.Is(err, conversation.ErrAlreadyListening):
		return "Already listening"
	case errors.Is(err, conversation.ErrCaptureUnavailable):
		return "Speech recognition not supported"
	case errors.Is(err, conversation.ErrUnknownQuickAction):
		return "Unknown quick action"
	case errors.Is(err, errUnknownEvent):
		return "Unknown event type"
	default:
		return "Something went wrong, please try again."
	}
}
