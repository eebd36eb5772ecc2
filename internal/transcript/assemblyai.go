// Package transcript provides server-side speech capture backed by
// AssemblyAI streaming transcription.
package transcript

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/gorilla/websocket"

	"github.com/arsaha28/ccp/internal/conversation"
)

const (
	defaultStreamingURL = "wss://streaming.assemblyai.com/v3/ws"
	sampleRate          = 16000

	// silence required before an utterance counts as complete
	defaultSilenceThreshold = 700 * time.Millisecond
	// added when the last word suggests the speaker will continue
	defaultContinuationExtension = 1200 * time.Millisecond
	// absorbs late transcript updates after the silence threshold
	defaultStabilizationGrace = 250 * time.Millisecond
	terminateTimeout          = 2 * time.Second
)

var (
	ErrMissingAPIKey    = errors.New("assemblyai: api key missing")
	ErrAlreadyCapturing = errors.New("assemblyai: capture already active")
	ErrNotCapturing     = errors.New("assemblyai: not capturing")
)

type turnMessage struct {
	Type       string `json:"type"`
	Transcript string `json:"transcript"`
	EndOfTurn  bool   `json:"end_of_turn"`
}

type beginMessage struct {
	ID        string `json:"id"`
	ExpiresAt int64  `json:"expires_at"`
}

type terminationMessage struct {
	AudioDurationSeconds   float64 `json:"audio_duration_seconds"`
	SessionDurationSeconds float64 `json:"session_duration_seconds"`
}

type errorMessage struct {
	Error string `json:"error"`
}

// Capturer streams 16 kHz PCM to AssemblyAI and reports one utterance per
// Start. An utterance ends after a period of silence, on Stop, or when
// the upstream session terminates.
type Capturer struct {
	APIKey string
	URL    string
	Dialer *websocket.Dialer

	SilenceThreshold      time.Duration
	ContinuationExtension time.Duration
	StabilizationGrace    time.Duration

	log *slog.Logger

	mu     sync.Mutex
	active *stream
}

func NewCapturer(apiKey string, logger *slog.Logger) *Capturer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Capturer{
		APIKey:                apiKey,
		URL:                   defaultStreamingURL,
		Dialer:                &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		SilenceThreshold:      defaultSilenceThreshold,
		ContinuationExtension: defaultContinuationExtension,
		StabilizationGrace:    defaultStabilizationGrace,
		log:                   logger.With("component", "assemblyai"),
	}
}

// Start dials a new streaming session.
func (c *Capturer) Start(ctx context.Context) (<-chan conversation.CaptureEvent, error) {
	if c.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != nil {
		return nil, ErrAlreadyCapturing
	}

	params := url.Values{}
	params.Set("sample_rate", fmt.Sprint(sampleRate))
	params.Set("format_turns", "false")
	params.Set("encoding", "pcm_s16le")
	wsURL := c.URL + "?" + params.Encode()

	headers := http.Header{"Authorization": {c.APIKey}}
	conn, resp, err := c.Dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("assemblyai: connect failed with status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("assemblyai: connect: %w", err)
	}

	s := &stream{
		conn:                  conn,
		log:                   c.log,
		events:                make(chan conversation.CaptureEvent, 32),
		audio:                 make(chan []byte, 1000),
		stopCh:                make(chan struct{}),
		silenceThreshold:      c.SilenceThreshold,
		continuationExtension: c.ContinuationExtension,
		stabilizationGrace:    c.StabilizationGrace,
		lastUpdate:            time.Now(),
		lastVoice:             time.Now(),
	}
	s.onEnd = func() {
		c.mu.Lock()
		if c.active == s {
			c.active = nil
		}
		c.mu.Unlock()
	}
	c.active = s

	go s.readLoop()
	go s.writeLoop()
	go func() {
		select {
		case <-ctx.Done():
			s.end()
		case <-s.stopCh:
		}
	}()
	return s.events, nil
}

// Stop asks the upstream session to terminate. Whatever was heard so far
// is delivered as the final transcript.
func (c *Capturer) Stop() error {
	c.mu.Lock()
	s := c.active
	c.mu.Unlock()
	if s == nil {
		return nil
	}
	s.terminate()
	return nil
}

// SendPCM16KLE forwards 16-bit little-endian mono PCM at 16 kHz to the
// active session. Frames are dropped when the send buffer is full.
func (c *Capturer) SendPCM16KLE(pcm []byte) error {
	c.mu.Lock()
	s := c.active
	c.mu.Unlock()
	if s == nil {
		return ErrNotCapturing
	}
	s.detectVoiceActivity(pcm)
	select {
	case <-s.stopCh:
		return ErrNotCapturing
	case s.audio <- pcm:
	default:
		s.log.Debug("audio buffer full, dropping frame")
	}
	return nil
}

type stream struct {
	conn  *websocket.Conn
	log   *slog.Logger
	onEnd func()

	events chan conversation.CaptureEvent
	audio  chan []byte
	stopCh chan struct{}

	silenceThreshold      time.Duration
	continuationExtension time.Duration
	stabilizationGrace    time.Duration

	writeMu sync.Mutex

	emitMu   sync.Mutex
	closed   bool
	finished bool // final or failure already emitted

	accMu       sync.Mutex
	latest      string
	lastUpdate  time.Time
	lastVoice   time.Time
	timer       *time.Timer
	terminating bool

	endOnce sync.Once
}

func (s *stream) readLoop() {
	defer s.end()
	for {
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			s.accMu.Lock()
			terminating := s.terminating
			s.accMu.Unlock()
			select {
			case <-s.stopCh:
			default:
				if terminating || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					s.flushFinal()
				} else {
					s.emitTerminal(conversation.CaptureEvent{Kind: conversation.CaptureFailed, Err: fmt.Errorf("assemblyai: read: %w", err)})
				}
			}
			return
		}
		if done := s.processMessage(msg); done {
			return
		}
	}
}

// processMessage reports whether the session is over.
func (s *stream) processMessage(message []byte) bool {
	var base struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(message, &base); err != nil {
		s.log.Warn("unmarshal message failed", "error", err)
		return false
	}
	switch base.Type {
	case "Begin":
		var msg beginMessage
		_ = json.Unmarshal(message, &msg)
		s.log.Debug("session began", "id", msg.ID, "expires_at", time.Unix(msg.ExpiresAt, 0).Format(time.RFC3339))
	case "Turn":
		var msg turnMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			s.log.Warn("unmarshal turn failed", "error", err)
			return false
		}
		if msg.Transcript == "" {
			return false
		}
		s.emit(conversation.CaptureEvent{Kind: conversation.CapturePartial, Text: msg.Transcript})
		s.accMu.Lock()
		s.latest = msg.Transcript
		s.lastUpdate = time.Now()
		s.resetTimerLocked(s.silenceThreshold)
		s.accMu.Unlock()
	case "Termination":
		var msg terminationMessage
		_ = json.Unmarshal(message, &msg)
		s.log.Debug("session terminated", "audio_seconds", msg.AudioDurationSeconds, "session_seconds", msg.SessionDurationSeconds)
		s.flushFinal()
		return true
	case "Error":
		var msg errorMessage
		_ = json.Unmarshal(message, &msg)
		s.emitTerminal(conversation.CaptureEvent{Kind: conversation.CaptureFailed, Err: fmt.Errorf("assemblyai: %s", msg.Error)})
		return true
	default:
		s.log.Debug("unknown message type", "type", base.Type)
	}
	return false
}

func (s *stream) resetTimerLocked(d time.Duration) {
	if d < 10*time.Millisecond {
		d = 10 * time.Millisecond
	}
	if s.timer == nil {
		s.timer = time.AfterFunc(d, s.finalizeOnSilence)
		return
	}
	s.timer.Stop()
	s.timer.Reset(d)
}

func (s *stream) thresholdLocked() time.Duration {
	if isContinuationLikely(s.latest) {
		return s.silenceThreshold + s.continuationExtension
	}
	return s.silenceThreshold
}

// finalizeOnSilence runs after a quiet period. Both transcript updates
// and voice energy must have been idle for the threshold, and no update
// may arrive during the stabilization grace.
func (s *stream) finalizeOnSilence() {
	select {
	case <-s.stopCh:
		return
	default:
	}

	s.accMu.Lock()
	now := time.Now()
	threshold := s.thresholdLocked()
	sinceText := now.Sub(s.lastUpdate)
	sinceVoice := now.Sub(s.lastVoice)
	if sinceText < threshold || sinceVoice < threshold {
		wait := threshold
		if rem := threshold - sinceText; sinceText < threshold && rem < wait {
			wait = rem
		}
		if rem := threshold - sinceVoice; sinceVoice < threshold && rem < wait {
			wait = rem
		}
		s.resetTimerLocked(wait)
		s.accMu.Unlock()
		return
	}
	updatedAt := s.lastUpdate
	s.accMu.Unlock()

	time.Sleep(s.stabilizationGrace)

	s.accMu.Lock()
	if s.lastUpdate.After(updatedAt) {
		wait := s.thresholdLocked() - time.Since(s.lastUpdate)
		s.resetTimerLocked(wait)
		s.accMu.Unlock()
		return
	}
	s.accMu.Unlock()

	s.flushFinal()
	s.terminate()
}

// flushFinal emits the latest transcript as the final one.
func (s *stream) flushFinal() {
	s.accMu.Lock()
	text := strings.TrimSpace(s.latest)
	s.accMu.Unlock()
	s.emitTerminal(conversation.CaptureEvent{Kind: conversation.CaptureFinal, Text: text})
}

// terminate sends the Terminate message and ends the stream if the
// server does not close it in time.
func (s *stream) terminate() {
	s.accMu.Lock()
	if s.terminating {
		s.accMu.Unlock()
		return
	}
	s.terminating = true
	s.accMu.Unlock()

	s.writeMu.Lock()
	err := s.conn.WriteJSON(map[string]string{"type": "Terminate"})
	s.writeMu.Unlock()
	if err != nil {
		s.flushFinal()
		s.end()
		return
	}
	time.AfterFunc(terminateTimeout, func() {
		s.flushFinal()
		s.end()
	})
}

func (s *stream) emit(ev conversation.CaptureEvent) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	if s.closed || s.finished {
		return
	}
	select {
	case s.events <- ev:
	default:
		s.log.Debug("capture event dropped", "kind", ev.Kind)
	}
}

// emitTerminal releases the capturer, so a new utterance can start while
// this session winds down, then delivers the final transcript or failure.
func (s *stream) emitTerminal(ev conversation.CaptureEvent) {
	s.emitMu.Lock()
	if s.closed || s.finished {
		s.emitMu.Unlock()
		return
	}
	s.finished = true
	s.emitMu.Unlock()
	if s.onEnd != nil {
		s.onEnd()
	}

	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.events <- ev:
	case <-time.After(200 * time.Millisecond):
		s.log.Warn("timed out delivering terminal capture event", "kind", ev.Kind)
	}
}

func (s *stream) end() {
	s.endOnce.Do(func() {
		close(s.stopCh)
		s.accMu.Lock()
		if s.timer != nil {
			s.timer.Stop()
		}
		s.accMu.Unlock()
		_ = s.conn.Close()
		s.emitMu.Lock()
		s.closed = true
		close(s.events)
		s.emitMu.Unlock()
		if s.onEnd != nil {
			s.onEnd()
		}
	})
}

func (s *stream) writeLoop() {
	for {
		select {
		case <-s.stopCh:
			return
		case pcm := <-s.audio:
			s.writeMu.Lock()
			err := s.conn.WriteMessage(websocket.BinaryMessage, pcm)
			s.writeMu.Unlock()
			if err != nil {
				s.log.Debug("send audio failed", "error", err)
				return
			}
		}
	}
}

// detectVoiceActivity records voice energy in 16-bit LE mono PCM so that
// silence finalization waits while the caller is still talking.
func (s *stream) detectVoiceActivity(pcm []byte) {
	const minSamples = 160 // 10ms at 16kHz
	if len(pcm) < minSamples*2 {
		return
	}
	step := 2
	if len(pcm) > 3200 {
		step = 4
	}
	var sumSquares float64
	count := 0
	for i := 0; i+1 < len(pcm); i += 2 * step {
		v := int16(binary.LittleEndian.Uint16(pcm[i : i+2]))
		sumSquares += float64(v) * float64(v)
		count++
	}
	if count == 0 {
		return
	}
	const voiceRMS = 250.0
	if math.Sqrt(sumSquares/float64(count)) >= voiceRMS {
		s.accMu.Lock()
		s.lastVoice = time.Now()
		s.accMu.Unlock()
	}
}

func isContinuationLikely(text string) bool {
	_, ok := continuationWords[lastWord(text)]
	return ok
}

func lastWord(text string) string {
	fields := strings.FieldsFunc(strings.TrimSpace(text), func(r rune) bool { return !unicode.IsLetter(r) })
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(fields[len(fields)-1])
}

var continuationWords = map[string]struct{}{
	// coordinating conjunctions
	"and": {}, "or": {}, "but": {}, "nor": {}, "yet": {}, "so": {},
	// subordinating conjunctions
	"if": {}, "when": {}, "while": {}, "though": {}, "although": {},
	"because": {}, "since": {}, "unless": {}, "until": {}, "whereas": {},
	// fillers
	"also": {}, "plus": {}, "um": {}, "uh": {}, "like": {},
	// prepositions
	"about": {}, "with": {}, "to": {}, "of": {}, "for": {}, "on": {}, "in": {}, "at": {},
}
