package httpserver

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/arsaha28/ccp/internal/intent"
	"github.com/arsaha28/ccp/internal/tts"
)

const (
	msgTextRequired    = "Text is required"
	msgAudioNotSupport = "Audio input not implemented. Please use text input with Web Speech API."
)

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Service   string `json:"service"`
}

type ttsResponse struct {
	AudioContent string `json:"audioContent"`
	ContentType  string `json:"contentType"`
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Service:   serviceName,
	})
}

func (s *Server) detectIntent(c echo.Context) error {
	var q intent.Query
	if err := c.Bind(&q); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	q.Text = strings.TrimSpace(q.Text)
	if q.Text == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: msgTextRequired})
	}
	if q.SessionID == "" {
		q.SessionID = uuid.NewString()
	}
	if q.LanguageCode == "" {
		q.LanguageCode = s.deps.LanguageCode
	}

	ctx := c.Request().Context()
	if s.deps.Resolver != nil {
		res, err := s.deps.Resolver.DetectIntent(ctx, q)
		if err == nil {
			return c.JSON(http.StatusOK, res)
		}
		if !errors.Is(err, intent.ErrNotConfigured) {
			s.log.Error("detect intent failed", "session", q.SessionID, "error", err)
			return err
		}
	}
	res, _ := intent.Fallback{}.DetectIntent(ctx, q)
	return c.JSON(http.StatusOK, res)
}

func (s *Server) detectIntentAudio(c echo.Context) error {
	return c.JSON(http.StatusNotImplemented, errorResponse{Error: msgAudioNotSupport})
}

func (s *Server) agents(c echo.Context) error {
	cat := s.deps.Catalog
	if cat.Agents == nil {
		cat.Agents = []intent.Agent{}
	}
	return c.JSON(http.StatusOK, cat)
}

func (s *Server) synthesize(c echo.Context) error {
	var req tts.Request
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if strings.TrimSpace(req.Text) == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: msgTextRequired})
	}
	if s.deps.Synthesizer == nil {
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "Failed to synthesize speech", Details: "speech synthesis is not configured"})
	}
	if req.LanguageCode == "" {
		req.LanguageCode = s.deps.LanguageCode
	}
	audio, err := s.deps.Synthesizer.Synthesize(c.Request().Context(), req)
	if err != nil {
		s.log.Error("tts failed", "error", err)
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "Failed to synthesize speech", Details: err.Error()})
	}
	return c.JSON(http.StatusOK, ttsResponse{
		AudioContent: base64.StdEncoding.EncodeToString(audio.Content),
		ContentType:  audio.ContentType,
	})
}

func (s *Server) voices(c echo.Context) error {
	if s.deps.Voices == nil {
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "Failed to list voices", Details: "voice listing is not configured"})
	}
	voices, err := s.deps.Voices.Voices(c.Request().Context(), "en")
	if err != nil {
		s.log.Error("list voices failed", "error", err)
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "Failed to list voices", Details: err.Error()})
	}
	if voices == nil {
		voices = []tts.Voice{}
	}
	return c.JSON(http.StatusOK, map[string][]tts.Voice{"voices": voices})
}
