package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

const elevenLabsModel = "eleven_flash_v2_5"

// ElevenLabsClient synthesizes over the ElevenLabs HTTP streaming endpoint.
type ElevenLabsClient struct {
	APIKey     string
	VoiceID    string
	BaseURL    string
	HTTPClient *http.Client

	log *slog.Logger
}

func NewElevenLabsClient(apiKey, voiceID string, logger *slog.Logger) *ElevenLabsClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &ElevenLabsClient{
		APIKey:     apiKey,
		VoiceID:    voiceID,
		BaseURL:    "https://api.elevenlabs.io",
		HTTPClient: &http.Client{},
		log:        logger.With("component", "elevenlabs"),
	}
}

// Synthesize reads the whole MP3 stream. req.VoiceName overrides the
// configured voice id.
func (e *ElevenLabsClient) Synthesize(ctx context.Context, req Request) (Audio, error) {
	if strings.TrimSpace(req.Text) == "" {
		return Audio{}, ErrEmptyText
	}
	voice := firstNonEmpty(req.VoiceName, e.VoiceID)
	if e.APIKey == "" || voice == "" {
		return Audio{}, fmt.Errorf("elevenlabs: %w", ErrMissingAPIKey)
	}

	u, err := url.Parse(strings.TrimRight(e.BaseURL, "/") + "/v1/text-to-speech/" + url.PathEscape(voice) + "/stream")
	if err != nil {
		return Audio{}, err
	}
	q := u.Query()
	q.Set("model_id", elevenLabsModel)
	q.Set("output_format", "mp3_44100_128")
	// 0..4, lower trades quality for latency
	q.Set("optimize_streaming_latency", "2")
	u.RawQuery = q.Encode()

	body := map[string]any{
		"model_id": elevenLabsModel,
		"text":     req.Text,
		"voice_settings": map[string]any{
			"stability":         0.4,
			"similarity_boost":  0.7,
			"style":             0.0,
			"use_speaker_boost": true,
		},
	}
	buf, _ := json.Marshal(body)
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(buf))
	if err != nil {
		return Audio{}, err
	}
	hreq.Header.Set("xi-api-key", e.APIKey)
	hreq.Header.Set("Content-Type", "application/json")
	hreq.Header.Set("Accept", ContentTypeMP3)

	resp, err := e.HTTPClient.Do(hreq)
	if err != nil {
		return Audio{}, fmt.Errorf("elevenlabs http stream error: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return Audio{}, &StatusError{Provider: "elevenlabs", StatusCode: resp.StatusCode, Body: string(b)}
	}

	var out bytes.Buffer
	chunk := make([]byte, 4096)
	logged := false
	for {
		n, rerr := resp.Body.Read(chunk)
		if n > 0 {
			if !logged {
				e.logger().Debug("receiving audio stream", "first_chunk_bytes", n)
				logged = true
			}
			out.Write(chunk[:n])
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return Audio{}, fmt.Errorf("elevenlabs http read error: %w", rerr)
		}
	}
	return Audio{Content: out.Bytes(), ContentType: ContentTypeMP3}, nil
}

func (e *ElevenLabsClient) logger() *slog.Logger {
	if e.log == nil {
		return slog.Default()
	}
	return e.log
}
