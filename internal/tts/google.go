package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// GoogleClient calls the Cloud Text-to-Speech v1 REST API.
type GoogleClient struct {
	HTTPClient   *http.Client
	TokenSource  oauth2.TokenSource
	BaseURL      string
	VoiceName    string
	LanguageCode string
}

func NewGoogleClient(ctx context.Context, voiceName string) (*GoogleClient, error) {
	ts, err := google.DefaultTokenSource(ctx, cloudPlatformScope)
	if err != nil {
		return nil, fmt.Errorf("google tts: create token source: %w", err)
	}
	if voiceName == "" {
		voiceName = DefaultVoiceName
	}
	return &GoogleClient{
		HTTPClient:   &http.Client{Timeout: 20 * time.Second},
		TokenSource:  ts,
		BaseURL:      "https://texttospeech.googleapis.com/v1",
		VoiceName:    voiceName,
		LanguageCode: DefaultLanguageCode,
	}, nil
}

type gSynthesizeRequest struct {
	Input struct {
		Text string `json:"text"`
	} `json:"input"`
	Voice struct {
		LanguageCode string `json:"languageCode"`
		Name         string `json:"name"`
		SSMLGender   string `json:"ssmlGender"`
	} `json:"voice"`
	AudioConfig struct {
		AudioEncoding string  `json:"audioEncoding"`
		SpeakingRate  float64 `json:"speakingRate"`
		Pitch         float64 `json:"pitch"`
		VolumeGainDb  float64 `json:"volumeGainDb"`
	} `json:"audioConfig"`
}

type gSynthesizeResponse struct {
	AudioContent string `json:"audioContent"`
}

type gVoicesResponse struct {
	Voices []Voice `json:"voices"`
}

// Synthesize returns MP3 audio for req.Text.
func (g *GoogleClient) Synthesize(ctx context.Context, req Request) (Audio, error) {
	if strings.TrimSpace(req.Text) == "" {
		return Audio{}, ErrEmptyText
	}
	var body gSynthesizeRequest
	body.Input.Text = req.Text
	body.Voice.LanguageCode = firstNonEmpty(req.LanguageCode, g.LanguageCode, DefaultLanguageCode)
	body.Voice.Name = firstNonEmpty(req.VoiceName, g.VoiceName, DefaultVoiceName)
	body.Voice.SSMLGender = "FEMALE"
	body.AudioConfig.AudioEncoding = "MP3"
	body.AudioConfig.SpeakingRate = 1.0

	buf, _ := json.Marshal(body)
	var out gSynthesizeResponse
	if err := g.call(ctx, http.MethodPost, g.BaseURL+"/text:synthesize", bytes.NewReader(buf), &out); err != nil {
		return Audio{}, err
	}
	audio, err := base64.StdEncoding.DecodeString(out.AudioContent)
	if err != nil {
		return Audio{}, fmt.Errorf("google tts: decode audio: %w", err)
	}
	return Audio{Content: audio, ContentType: ContentTypeMP3}, nil
}

// Voices lists the Neural2 and Studio voices for languageCode.
func (g *GoogleClient) Voices(ctx context.Context, languageCode string) ([]Voice, error) {
	u := g.BaseURL + "/voices"
	if languageCode != "" {
		u += "?languageCode=" + url.QueryEscape(languageCode)
	}
	var out gVoicesResponse
	if err := g.call(ctx, http.MethodGet, u, nil, &out); err != nil {
		return nil, err
	}
	voices := make([]Voice, 0, len(out.Voices))
	for _, v := range out.Voices {
		if strings.Contains(v.Name, "Neural2") || strings.Contains(v.Name, "Studio") {
			voices = append(voices, v)
		}
	}
	return voices, nil
}

func (g *GoogleClient) call(ctx context.Context, method, endpoint string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	token, err := g.TokenSource.Token()
	if err != nil {
		return fmt.Errorf("google tts: get token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := g.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("google tts: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return &StatusError{Provider: "google tts", StatusCode: resp.StatusCode, Body: string(b)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("google tts: decode response: %w", err)
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
