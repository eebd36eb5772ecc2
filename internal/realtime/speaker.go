package realtime

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arsaha28/ccp/internal/tts"
)

var errPlaybackTimeout = errors.New("realtime: playback not acknowledged")

// socketSpeaker plays replies on the browser. Audio is synthesized
// server-side when a Synthesizer is configured; otherwise, or when
// synthesis fails, the browser speaks the text itself. Speak returns once
// the browser reports playback_ended for the utterance.
type socketSpeaker struct {
	synth        tts.Synthesizer
	voiceName    string
	languageCode string
	timeout      time.Duration
	send         func(serverEvent)
	log          *slog.Logger

	mu      sync.Mutex
	waiting map[string]chan struct{}
}

func newSocketSpeaker(synth tts.Synthesizer, send func(serverEvent), timeout time.Duration, log *slog.Logger) *socketSpeaker {
	return &socketSpeaker{
		synth:   synth,
		timeout: timeout,
		send:    send,
		log:     log,
		waiting: make(map[string]chan struct{}),
	}
}

func (s *socketSpeaker) Speak(ctx context.Context, text string) error {
	ev := serverEvent{Type: evSpeak, UtteranceID: uuid.NewString(), Text: text}
	if s.synth != nil {
		audio, err := s.synth.Synthesize(ctx, tts.Request{Text: text, VoiceName: s.voiceName, LanguageCode: s.languageCode})
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			s.log.Warn("synthesis failed, falling back to browser speech", "error", err)
		default:
			ev.AudioContent = audio.Content
			ev.ContentType = audio.ContentType
		}
	}

	ended := make(chan struct{})
	s.mu.Lock()
	s.waiting[ev.UtteranceID] = ended
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.waiting, ev.UtteranceID)
		s.mu.Unlock()
	}()

	s.send(ev)
	timer := time.NewTimer(s.timeout)
	defer timer.Stop()
	select {
	case <-ended:
		return nil
	case <-ctx.Done():
		s.send(serverEvent{Type: evCancelSpeech, UtteranceID: ev.UtteranceID})
		return ctx.Err()
	case <-timer.C:
		s.send(serverEvent{Type: evCancelSpeech, UtteranceID: ev.UtteranceID})
		return errPlaybackTimeout
	}
}

// playbackEnded acknowledges an utterance; unknown ids are ignored.
func (s *socketSpeaker) playbackEnded(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.waiting[id]; ok {
		close(ch)
		delete(s.waiting, id)
	}
}
