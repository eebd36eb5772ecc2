package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/arsaha28/ccp/internal/conversation"
)

// PCMCapturer is a server-side capturer fed with 16 kHz PCM frames from
// the socket's binary messages.
type PCMCapturer interface {
	conversation.Capturer
	SendPCM16KLE(pcm []byte) error
}

// defaultStopGrace bounds how long a stopped browser capture waits for the
// recognizer's last result.
const defaultStopGrace = 3 * time.Second

// browserCapturer relays recognition results produced by the browser's
// own speech engine. The browser reports its final result after it has
// been told to stop, so Stop only starts a deadline; the capture ends on
// the final result, a failure, capture_end, or the deadline.
type browserCapturer struct {
	stopGrace time.Duration

	mu    sync.Mutex
	ch    chan conversation.CaptureEvent
	timer *time.Timer
}

func (b *browserCapturer) Start(context.Context) (<-chan conversation.CaptureEvent, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closeLocked()
	b.ch = make(chan conversation.CaptureEvent, 32)
	return b.ch, nil
}

func (b *browserCapturer) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ch == nil || b.timer != nil {
		return nil
	}
	grace := b.stopGrace
	if grace <= 0 {
		grace = defaultStopGrace
	}
	ch := b.ch
	b.timer = time.AfterFunc(grace, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.ch == ch {
			b.closeLocked()
		}
	})
	return nil
}

// end closes the capture when the browser reports its recognizer ended.
func (b *browserCapturer) end() {
	b.mu.Lock()
	b.closeLocked()
	b.mu.Unlock()
}

// deliver forwards a browser result. A final result or failure ends the
// capture.
func (b *browserCapturer) deliver(ev conversation.CaptureEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ch == nil {
		return
	}
	select {
	case b.ch <- ev:
	default:
	}
	if ev.Kind != conversation.CapturePartial {
		b.closeLocked()
	}
}

func (b *browserCapturer) transcript(text string, final bool) {
	kind := conversation.CapturePartial
	if final {
		kind = conversation.CaptureFinal
	}
	b.deliver(conversation.CaptureEvent{Kind: kind, Text: text})
}

func (b *browserCapturer) fail(msg string) {
	if msg == "" {
		msg = "unknown"
	}
	b.deliver(conversation.CaptureEvent{Kind: conversation.CaptureFailed, Err: errors.New(msg)})
}

func (b *browserCapturer) closeLocked() {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	if b.ch != nil {
		close(b.ch)
		b.ch = nil
	}
}
