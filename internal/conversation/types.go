package conversation

import (
	"context"
	"errors"
	"time"
)

// State is the turn-taking state of a conversation.
type State int

const (
	Idle State = iota
	Listening
	Resolving
	Speaking
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Listening:
		return "listening"
	case Resolving:
		return "resolving"
	case Speaking:
		return "speaking"
	default:
		return "unknown"
	}
}

// Sender identifies who produced a message.
type Sender string

const (
	SenderUser  Sender = "user"
	SenderAgent Sender = "agent"
)

// Source identifies how a turn was initiated.
type Source string

const (
	SourceVoice       Source = "voice"
	SourceText        Source = "text"
	SourceQuickAction Source = "quick_action"
)

const (
	// ApologyText replaces the agent reply whenever resolution fails.
	ApologyText = "I apologize, but I'm having trouble processing your request right now. Please try again or contact our branch directly at 1-800-BANK-HELP."
	// RephraseText is shown when the resolver answers with no fulfillment text.
	RephraseText = "I'm sorry, I didn't understand that. Could you please rephrase?"
	// GreetingText opens a new conversation.
	GreetingText = "Hello! Welcome to Retail Bank Branch Support. I'm your virtual assistant. How can I help you today?"

	ErrorIntent   = "Error"
	WelcomeIntent = "Welcome"
)

// Message is one displayed chat entry. Messages are never modified after
// they are recorded.
type Message struct {
	ID         string    `json:"id"`
	Sender     Sender    `json:"sender"`
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"timestamp"`
	Intent     string    `json:"intent,omitempty"`
	Confidence float64   `json:"confidence,omitempty"`
}

// Turn is one user input and the reply it produced.
type Turn struct {
	Input       string    `json:"input"`
	Source      Source    `json:"source"`
	At          time.Time `json:"at"`
	Intent      string    `json:"intent"`
	Confidence  float64   `json:"confidence"`
	Fulfillment string    `json:"fulfillmentText"`
	Failed      bool      `json:"failed"`
}

// CaptureKind distinguishes capture events.
type CaptureKind int

const (
	CapturePartial CaptureKind = iota
	CaptureFinal
	CaptureFailed
)

// CaptureEvent is emitted by a Capturer while listening.
type CaptureEvent struct {
	Kind CaptureKind
	Text string
	Err  error
}

// Capturer is a speech-to-text source.
type Capturer interface {
	// Start begins listening. The returned channel carries partial
	// transcripts followed by at most one final transcript or failure, and
	// is closed when capture ends.
	Start(ctx context.Context) (<-chan CaptureEvent, error)
	// Stop ends listening. A final transcript already produced is still
	// delivered. Stop must not wait for the event channel to be drained.
	Stop() error
}

// Speaker is a text-to-speech sink with a single audible output.
type Speaker interface {
	// Speak plays text and returns when playback ends, fails, or ctx is
	// cancelled. It must return promptly after cancellation.
	Speak(ctx context.Context, text string) error
}

// Hooks observe the controller. They run on the controller's loop
// goroutine and must not call back into the Controller synchronously.
type Hooks struct {
	OnState   func(State)
	OnMessage func(Message)
	OnPartial func(text string)
	// OnError reports user-facing transient errors (capture failures).
	OnError func(error)
	// OnTurn fires when a reply is recorded. err is the resolver failure,
	// for operators only.
	OnTurn func(turn Turn, err error)
}

var (
	ErrEmptyInput         = errors.New("conversation: empty input")
	ErrAlreadyListening   = errors.New("conversation: already listening")
	ErrCaptureUnavailable = errors.New("conversation: speech capture unavailable")
	ErrStopped            = errors.New("conversation: controller stopped")
	ErrUnknownQuickAction = errors.New("conversation: unknown quick action")
)

// CaptureError wraps a speech capture failure such as a denied
// microphone permission or no detected speech.
type CaptureError struct {
	Err error
}

func (e *CaptureError) Error() string { return "capture: " + e.Err.Error() }
func (e *CaptureError) Unwrap() error { return e.Err }
