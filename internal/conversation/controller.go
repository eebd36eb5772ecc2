// Package conversation sequences spoken and typed turns: capture, intent
// resolution, then speech, with at most one audible reply at a time.
package conversation

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/arsaha28/ccp/internal/intent"
	"github.com/arsaha28/ccp/internal/session"
)

const (
	defaultResolveTimeout = 15 * time.Second
	defaultCancelGrace    = 5 * time.Second
)

// Config wires a Controller to its collaborators.
type Config struct {
	Resolver intent.Resolver
	Session  *session.Manager
	// Capturer and Speaker are optional; nil means the capability is
	// unavailable.
	Capturer Capturer
	Speaker  Speaker

	LanguageCode string
	// ResolveTimeout bounds each resolution; expiry takes the failure path.
	ResolveTimeout time.Duration
	// CancelGrace bounds how long a new turn waits for cancelled speech to stop.
	CancelGrace time.Duration
	// Greeting, when set, opens every conversation started with NewConversation.
	Greeting string

	Hooks  Hooks
	Logger *slog.Logger
}

type utterance struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Controller owns one conversation. All of its state is touched only by
// the goroutine running Run; public methods and capability callbacks are
// delivered to it as events.
type Controller struct {
	cfg    Config
	log    *slog.Logger
	events chan func()
	done   chan struct{}

	runCtx     context.Context
	listening  bool
	captureGen int
	partial    string
	pending    int
	speech     *utterance
	state      State
	messages   []Message
	turns      []Turn
}

// New validates cfg and returns an idle Controller. Call Run to start it.
func New(cfg Config) (*Controller, error) {
	if cfg.Resolver == nil {
		return nil, errors.New("conversation: resolver must not be nil")
	}
	if cfg.Session == nil {
		cfg.Session = session.NewManager("")
	}
	if cfg.LanguageCode == "" {
		cfg.LanguageCode = intent.DefaultLanguageCode
	}
	if cfg.ResolveTimeout <= 0 {
		cfg.ResolveTimeout = defaultResolveTimeout
	}
	if cfg.CancelGrace <= 0 {
		cfg.CancelGrace = defaultCancelGrace
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		cfg:    cfg,
		log:    logger.With("component", "conversation"),
		events: make(chan func(), 64),
		done:   make(chan struct{}),
	}, nil
}

// Session returns the session manager the controller resolves against.
func (c *Controller) Session() *session.Manager { return c.cfg.Session }

// Run processes events until ctx is cancelled. It must be called once.
func (c *Controller) Run(ctx context.Context) error {
	c.runCtx = ctx
	defer close(c.done)
	defer c.shutdown()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-c.events:
			fn()
		}
	}
}

// StartCapture cancels any reply being spoken and begins listening.
func (c *Controller) StartCapture(ctx context.Context) error {
	return c.do(ctx, func() error {
		if c.cfg.Capturer == nil {
			return ErrCaptureUnavailable
		}
		if c.listening {
			return ErrAlreadyListening
		}
		c.cancelSpeech()
		c.setPartial("")
		events, err := c.cfg.Capturer.Start(c.runCtx)
		if err != nil {
			cerr := &CaptureError{Err: err}
			c.reportCaptureError(cerr)
			return cerr
		}
		c.listening = true
		c.captureGen++
		go c.pumpCapture(c.captureGen, events)
		c.syncState()
		return nil
	})
}

// StopCapture asks the capturer to stop. A final transcript it already
// produced is still resolved.
func (c *Controller) StopCapture(ctx context.Context) error {
	return c.do(ctx, func() error {
		if !c.listening {
			return nil
		}
		return c.cfg.Capturer.Stop()
	})
}

// Submit starts a turn from typed text or a quick action. Blank input is
// rejected with ErrEmptyInput and changes nothing.
func (c *Controller) Submit(ctx context.Context, text string, source Source) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyInput
	}
	return c.do(ctx, func() error {
		c.submit(text, source)
		return nil
	})
}

// SubmitQuickAction submits the query behind a quick action id.
func (c *Controller) SubmitQuickAction(ctx context.Context, id string) error {
	qa, ok := LookupQuickAction(id)
	if !ok {
		return ErrUnknownQuickAction
	}
	return c.Submit(ctx, qa.Query, SourceQuickAction)
}

// NewConversation stops speech and capture, starts a new session, and
// clears the transcript. Resolutions already in flight still land.
func (c *Controller) NewConversation(ctx context.Context) error {
	return c.do(ctx, func() error {
		c.cancelSpeech()
		if c.listening {
			c.listening = false
			c.captureGen++
			if err := c.cfg.Capturer.Stop(); err != nil {
				c.log.Warn("stop capture failed", "error", err)
			}
		}
		c.cfg.Session.Reset()
		c.messages = nil
		c.turns = nil
		c.setPartial("")
		if c.cfg.Greeting != "" {
			c.appendMessage(Message{Sender: SenderAgent, Text: c.cfg.Greeting, Intent: WelcomeIntent})
		}
		c.syncState()
		return nil
	})
}

// SelectAgent targets another agent variant, which starts a new session.
func (c *Controller) SelectAgent(ctx context.Context, agentID string) error {
	return c.do(ctx, func() error {
		c.cfg.Session.SetAgent(agentID)
		return nil
	})
}

// Messages returns a copy of the transcript.
func (c *Controller) Messages(ctx context.Context) ([]Message, error) {
	var out []Message
	err := c.do(ctx, func() error {
		out = append([]Message(nil), c.messages...)
		return nil
	})
	return out, err
}

// Turns returns a copy of the completed turns.
func (c *Controller) Turns(ctx context.Context) ([]Turn, error) {
	var out []Turn
	err := c.do(ctx, func() error {
		out = append([]Turn(nil), c.turns...)
		return nil
	})
	return out, err
}

// State returns the current state.
func (c *Controller) State(ctx context.Context) (State, error) {
	var s State
	err := c.do(ctx, func() error {
		s = c.state
		return nil
	})
	return s, err
}

// Partial returns the in-progress transcript while listening.
func (c *Controller) Partial(ctx context.Context) (string, error) {
	var p string
	err := c.do(ctx, func() error {
		p = c.partial
		return nil
	})
	return p, err
}

func (c *Controller) do(ctx context.Context, fn func() error) error {
	reply := make(chan error, 1)
	select {
	case c.events <- func() { reply <- fn() }:
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post delivers an event from a capability goroutine.
func (c *Controller) post(fn func()) {
	select {
	case c.events <- fn:
	case <-c.done:
	}
}

func (c *Controller) submit(text string, source Source) {
	c.cancelSpeech()
	turn := Turn{Input: text, Source: source, At: time.Now()}
	c.appendMessage(Message{Sender: SenderUser, Text: text, Timestamp: turn.At})
	q := intent.Query{
		SessionID:    c.cfg.Session.ID(),
		Text:         text,
		LanguageCode: c.cfg.LanguageCode,
		AgentID:      c.cfg.Session.Agent(),
	}
	c.pending++
	c.syncState()
	go c.resolve(c.runCtx, turn, q)
}

// resolve has no cancellation tied to later turns: a result that arrives
// after the user moved on is still recorded and spoken.
func (c *Controller) resolve(ctx context.Context, turn Turn, q intent.Query) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ResolveTimeout)
	defer cancel()
	res, err := c.cfg.Resolver.DetectIntent(ctx, q)
	c.post(func() { c.onResolved(turn, q.SessionID, res, err) })
}

func (c *Controller) onResolved(turn Turn, sessionID string, res intent.Result, err error) {
	c.pending--
	msg := Message{Sender: SenderAgent}
	if err != nil {
		c.log.Warn("intent resolution failed", "session_id", sessionID, "source", turn.Source, "error", err)
		turn.Failed = true
		turn.Intent = ErrorIntent
		turn.Fulfillment = ApologyText
		msg.Text = ApologyText
		msg.Intent = ErrorIntent
	} else {
		turn.Intent = res.Intent.DisplayName
		turn.Confidence = res.Intent.Confidence
		turn.Fulfillment = res.FulfillmentText
		msg.Text = res.FulfillmentText
		if msg.Text == "" {
			msg.Text = RephraseText
		}
		msg.Intent = res.Intent.DisplayName
		msg.Confidence = res.Intent.Confidence
	}
	c.appendMessage(msg)
	c.turns = append(c.turns, turn)
	if c.cfg.Hooks.OnTurn != nil {
		c.cfg.Hooks.OnTurn(turn, err)
	}
	c.speak(msg.Text)
	c.syncState()
}

func (c *Controller) speak(text string) {
	if c.cfg.Speaker == nil || text == "" {
		return
	}
	c.cancelSpeech()
	ctx, cancel := context.WithCancel(c.runCtx)
	u := &utterance{cancel: cancel, done: make(chan struct{})}
	c.speech = u
	go func() {
		err := c.cfg.Speaker.Speak(ctx, text)
		close(u.done)
		c.post(func() { c.onSpeechEnd(u, err) })
	}()
}

func (c *Controller) onSpeechEnd(u *utterance, err error) {
	u.cancel()
	if err != nil && !errors.Is(err, context.Canceled) {
		c.log.Warn("speech synthesis failed", "error", err)
	}
	if c.speech == u {
		c.speech = nil
		c.syncState()
	}
}

// cancelSpeech stops the active utterance and waits for the speaker to
// release the output before anything else may speak.
func (c *Controller) cancelSpeech() {
	u := c.speech
	if u == nil {
		return
	}
	c.speech = nil
	u.cancel()
	select {
	case <-u.done:
	case <-time.After(c.cfg.CancelGrace):
		c.log.Warn("speaker did not stop after cancel", "grace", c.cfg.CancelGrace)
	}
}

func (c *Controller) pumpCapture(gen int, events <-chan CaptureEvent) {
	for ev := range events {
		c.post(func() { c.onCapture(gen, ev) })
	}
	c.post(func() { c.onCaptureEnd(gen) })
}

func (c *Controller) onCapture(gen int, ev CaptureEvent) {
	if gen != c.captureGen || !c.listening {
		return
	}
	switch ev.Kind {
	case CapturePartial:
		c.setPartial(ev.Text)
	case CaptureFinal:
		c.listening = false
		c.setPartial("")
		if text := strings.TrimSpace(ev.Text); text != "" {
			c.submit(text, SourceVoice)
			return
		}
		c.syncState()
	case CaptureFailed:
		c.listening = false
		c.setPartial("")
		err := ev.Err
		if err == nil {
			err = errors.New("unknown capture error")
		}
		c.reportCaptureError(&CaptureError{Err: err})
		c.syncState()
	}
}

func (c *Controller) onCaptureEnd(gen int) {
	if gen != c.captureGen || !c.listening {
		return
	}
	c.listening = false
	c.setPartial("")
	c.syncState()
}

func (c *Controller) reportCaptureError(err error) {
	c.log.Info("speech capture failed", "error", err)
	if c.cfg.Hooks.OnError != nil {
		c.cfg.Hooks.OnError(err)
	}
}

func (c *Controller) setPartial(text string) {
	if c.partial == text {
		return
	}
	c.partial = text
	if c.cfg.Hooks.OnPartial != nil {
		c.cfg.Hooks.OnPartial(text)
	}
}

func (c *Controller) appendMessage(m Message) {
	m.ID = uuid.NewString()
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	c.messages = append(c.messages, m)
	if c.cfg.Hooks.OnMessage != nil {
		c.cfg.Hooks.OnMessage(m)
	}
}

// derive orders overlapping activity: listening wins over a pending
// resolution, which wins over a reply still being spoken.
func (c *Controller) derive() State {
	switch {
	case c.listening:
		return Listening
	case c.pending > 0:
		return Resolving
	case c.speech != nil:
		return Speaking
	default:
		return Idle
	}
}

func (c *Controller) syncState() {
	s := c.derive()
	if s == c.state {
		return
	}
	c.state = s
	if c.cfg.Hooks.OnState != nil {
		c.cfg.Hooks.OnState(s)
	}
}

func (c *Controller) shutdown() {
	if c.speech != nil {
		u := c.speech
		c.speech = nil
		u.cancel()
	}
	if c.listening {
		c.listening = false
		_ = c.cfg.Capturer.Stop()
	}
}
