package httpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arsaha28/ccp/internal/intent"
	"github.com/arsaha28/ccp/internal/tts"
)

type fakeSynth struct {
	got tts.Request
	err error
}

func (f *fakeSynth) Synthesize(_ context.Context, req tts.Request) (tts.Audio, error) {
	f.got = req
	if f.err != nil {
		return tts.Audio{}, f.err
	}
	return tts.Audio{Content: []byte("mp3"), ContentType: tts.ContentTypeMP3}, nil
}

type fakeVoices struct {
	voices []tts.Voice
	err    error
}

func (f fakeVoices) Voices(context.Context, string) ([]tts.Voice, error) { return f.voices, f.err }

type routeRecorder struct{ registered bool }

func (r *routeRecorder) Register(e *echo.Echo) {
	r.registered = true
	e.GET("/extra", func(c echo.Context) error { return c.String(http.StatusOK, "extra") })
}

func do(t *testing.T, srv *Server, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	r := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		r.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	w := httptest.NewRecorder()
	srv.Router.ServeHTTP(w, r)
	var out map[string]any
	if strings.HasPrefix(w.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

func TestServer_Health(t *testing.T) {
	w, body := do(t, New(Deps{}), http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, serviceName, body["service"])
	assert.NotEmpty(t, body["timestamp"])
}

func TestDetectIntent_FallbackWhenUnconfigured(t *testing.T) {
	notConfigured := intent.ResolverFunc(func(context.Context, intent.Query) (intent.Result, error) {
		return intent.Result{}, intent.ErrNotConfigured
	})
	for name, r := range map[string]intent.Resolver{"nil": nil, "not configured": notConfigured} {
		t.Run(name, func(t *testing.T) {
			w, body := do(t, New(Deps{Resolver: r}), http.MethodPost, "/api/dialogflow/detect-intent", `{"text":"what is my balance"}`)
			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, "what is my balance", body["queryText"])
			in := body["intent"].(map[string]any)
			assert.Equal(t, "account.balance", in["displayName"])
		})
	}
}

func TestDetectIntent_UsesResolver(t *testing.T) {
	var got intent.Query
	r := intent.ResolverFunc(func(_ context.Context, q intent.Query) (intent.Result, error) {
		got = q
		return intent.Result{QueryText: q.Text, FulfillmentText: "ok", Intent: intent.Intent{DisplayName: "x", Confidence: 0.5}}, nil
	})
	w, body := do(t, New(Deps{Resolver: r, LanguageCode: "en-GB"}), http.MethodPost, "/api/dialogflow/detect-intent",
		`{"text":"  hi  ","agentId":"cards"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["fulfillmentText"])
	assert.Equal(t, "hi", got.Text)
	assert.Equal(t, "cards", got.AgentID)
	assert.Equal(t, "en-GB", got.LanguageCode)
	assert.NotEmpty(t, got.SessionID)
}

func TestDetectIntent_MissingText(t *testing.T) {
	w, body := do(t, New(Deps{}), http.MethodPost, "/api/dialogflow/detect-intent", `{"sessionId":"s"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Text is required", body["error"])
}

func TestDetectIntent_UpstreamError(t *testing.T) {
	r := intent.ResolverFunc(func(context.Context, intent.Query) (intent.Result, error) {
		return intent.Result{}, &intent.StatusError{StatusCode: http.StatusBadGateway, Message: "dialogflow unavailable"}
	})
	w, body := do(t, New(Deps{Resolver: r, Production: true}), http.MethodPost, "/api/dialogflow/detect-intent", `{"text":"hi"}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "dialogflow unavailable", body["error"])
	assert.NotContains(t, body, "stack")
}

func TestErrorHandler_StackOutsideProduction(t *testing.T) {
	r := intent.ResolverFunc(func(context.Context, intent.Query) (intent.Result, error) {
		return intent.Result{}, errors.New("boom")
	})
	w, body := do(t, New(Deps{Resolver: r}), http.MethodPost, "/api/dialogflow/detect-intent", `{"text":"hi"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "boom", body["error"])
	assert.Contains(t, body, "stack")
}

func TestDetectIntentAudio_NotImplemented(t *testing.T) {
	w, body := do(t, New(Deps{}), http.MethodPost, "/api/dialogflow/detect-intent-audio", "")
	assert.Equal(t, http.StatusNotImplemented, w.Code)
	assert.Contains(t, body["error"], "not implemented")
}

func TestAgents(t *testing.T) {
	cat, err := intent.ParseCatalog(`[{"key":"retail","id":"bank-retail","name":"Retail"}]`, "", "")
	require.NoError(t, err)
	w, body := do(t, New(Deps{Catalog: cat}), http.MethodGet, "/api/dialogflow/agents", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "retail", body["defaultAgent"])
	assert.Len(t, body["agents"], 1)

	_, empty := do(t, New(Deps{}), http.MethodGet, "/api/dialogflow/agents", "")
	assert.Equal(t, []any{}, empty["agents"])
}

func TestTTS(t *testing.T) {
	synth := &fakeSynth{}
	srv := New(Deps{Synthesizer: synth})

	w, body := do(t, srv, http.MethodPost, "/api/tts", `{"text":"Hello","voiceName":"en-US-Studio-O"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("mp3")), body["audioContent"])
	assert.Equal(t, tts.ContentTypeMP3, body["contentType"])
	assert.Equal(t, "en-US-Studio-O", synth.got.VoiceName)
	assert.Equal(t, intent.DefaultLanguageCode, synth.got.LanguageCode)

	w, body = do(t, srv, http.MethodPost, "/api/tts", `{"text":" "}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Text is required", body["error"])

	synth.err = errors.New("quota exceeded")
	w, body = do(t, srv, http.MethodPost, "/api/tts", `{"text":"Hello"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Failed to synthesize speech", body["error"])
	assert.Equal(t, "quota exceeded", body["details"])
}

func TestTTSVoices(t *testing.T) {
	lister := fakeVoices{voices: []tts.Voice{{Name: "en-US-Neural2-F", LanguageCodes: []string{"en-US"}, SSMLGender: "FEMALE", NaturalSampleRateHertz: 24000}}}
	w, body := do(t, New(Deps{Voices: lister}), http.MethodGet, "/api/tts/voices", "")
	require.Equal(t, http.StatusOK, w.Code)
	voices := body["voices"].([]any)
	require.Len(t, voices, 1)
	assert.Equal(t, "en-US-Neural2-F", voices[0].(map[string]any)["name"])

	w, body = do(t, New(Deps{Voices: fakeVoices{err: errors.New("denied")}}), http.MethodGet, "/api/tts/voices", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Failed to list voices", body["error"])
}

func TestNotFound(t *testing.T) {
	w, body := do(t, New(Deps{}), http.MethodGet, "/api/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Not found", body["error"])
}

func TestOptionalRoutes(t *testing.T) {
	extra := &routeRecorder{}
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("# metrics")) })
	srv := New(Deps{Metrics: metrics, Extra: []Registrar{extra}})
	assert.True(t, extra.registered)

	w, _ := do(t, srv, http.MethodGet, "/metrics", "")
	assert.Equal(t, "# metrics", w.Body.String())
	w, _ = do(t, srv, http.MethodGet, "/extra", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = do(t, New(Deps{}), http.MethodGet, "/api/conversation/ws", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCORS(t *testing.T) {
	srv := New(Deps{FrontendURL: "http://localhost:3000"})
	r := httptest.NewRequest(http.MethodOptions, "/api/health", nil)
	r.Header.Set(echo.HeaderOrigin, "http://localhost:3000")
	r.Header.Set(echo.HeaderAccessControlRequestMethod, http.MethodGet)
	w := httptest.NewRecorder()
	srv.Router.ServeHTTP(w, r)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get(echo.HeaderAccessControlAllowOrigin))
	assert.Equal(t, "true", w.Header().Get(echo.HeaderAccessControlAllowCredentials))
}
