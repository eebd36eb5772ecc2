package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var keys = []string{
	"PORT", "FRONTEND_URL", "APP_ENV", "LOG_LEVEL", "DIALOGFLOW_PROJECT_ID", "DIALOGFLOW_AGENTS",
	"DIALOGFLOW_DEFAULT_AGENT", "LANGUAGE_CODE", "RESOLVER_TIMEOUT", "TTS_PROVIDER", "TTS_VOICE_NAME",
	"ELEVENLABS_API_KEY", "ELEVENLABS_VOICE_ID", "DEEPGRAM_API_KEY", "DEEPGRAM_MODEL",
	"ASSEMBLYAI_API_KEY", "TWILIO_AUTH_TOKEN", "PUBLIC_BASE_URL", "WS_MAX_EVENTS_PER_SECOND",
}

func clearEnv(t *testing.T) {
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg := Load()
	assert.Equal(t, "3001", cfg.Port)
	assert.Equal(t, "http://localhost:3000", cfg.FrontendURL)
	assert.Equal(t, "en-US", cfg.LanguageCode)
	assert.Equal(t, 15*time.Second, cfg.ResolverTimeout)
	assert.Equal(t, TTSNone, cfg.TTSProvider)
	assert.Equal(t, "en-US-Neural2-F", cfg.TTSVoiceName)
	assert.Equal(t, 10.0, cfg.WSMaxEventsPerSecond)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_Env(t *testing.T) {
	clearEnv(t)
	t.Setenv("DIALOGFLOW_PROJECT_ID", "bank-retail")
	t.Setenv("APP_ENV", "production")
	t.Setenv("RESOLVER_TIMEOUT", "8")
	t.Setenv("WS_MAX_EVENTS_PER_SECOND", "2.5")
	cfg := Load()
	assert.Equal(t, TTSGoogle, cfg.TTSProvider)
	assert.Equal(t, 8*time.Second, cfg.ResolverTimeout)
	assert.Equal(t, 2.5, cfg.WSMaxEventsPerSecond)
	assert.True(t, cfg.IsProduction())
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("TTS_PROVIDER", "polly")
	t.Setenv("RESOLVER_TIMEOUT", "soon")
	t.Setenv("WS_MAX_EVENTS_PER_SECOND", "-1")
	cfg := Load()
	assert.Equal(t, TTSNone, cfg.TTSProvider)
	assert.Equal(t, 15*time.Second, cfg.ResolverTimeout)
	assert.Equal(t, 10.0, cfg.WSMaxEventsPerSecond)

	t.Setenv("RESOLVER_TIMEOUT", "2500ms")
	assert.Equal(t, 2500*time.Millisecond, Load().ResolverTimeout)
}
