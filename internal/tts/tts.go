// Package tts turns agent replies into audio for playback.
package tts

import (
	"context"
	"errors"
	"fmt"
)

const (
	DefaultVoiceName    = "en-US-Neural2-F"
	DefaultLanguageCode = "en-US"

	ContentTypeMP3 = "audio/mpeg"
	ContentTypeWAV = "audio/wav"
)

var (
	ErrEmptyText     = errors.New("tts: text is required")
	ErrMissingAPIKey = errors.New("tts: api key missing")
)

// Request is one synthesis call. Empty fields take provider defaults.
type Request struct {
	Text         string `json:"text"`
	VoiceName    string `json:"voiceName,omitempty"`
	LanguageCode string `json:"languageCode,omitempty"`
}

// Audio is an encoded clip ready for playback.
type Audio struct {
	Content     []byte
	ContentType string
}

type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) (Audio, error)
}

// Voice describes a selectable voice.
type Voice struct {
	Name                   string   `json:"name"`
	LanguageCodes          []string `json:"languageCodes"`
	SSMLGender             string   `json:"ssmlGender"`
	NaturalSampleRateHertz int      `json:"naturalSampleRateHertz"`
}

// VoiceLister is implemented by providers that can enumerate voices.
type VoiceLister interface {
	Voices(ctx context.Context, languageCode string) ([]Voice, error)
}

// StatusError is a non-2xx answer from a provider.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status=%d body=%s", e.Provider, e.StatusCode, e.Body)
}
