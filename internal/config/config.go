package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// TTS providers.
const (
	TTSGoogle     = "google"
	TTSElevenLabs = "elevenlabs"
	TTSDeepgram   = "deepgram"
	TTSNone       = "none"
)

// Config holds application configuration.
type Config struct {
	Port        string
	FrontendURL string
	Environment string
	LogLevel    string

	DialogflowProjectID    string
	DialogflowAgents       string // JSON array of {key,id,name,description}
	DialogflowDefaultAgent string
	LanguageCode           string
	ResolverTimeout        time.Duration

	TTSProvider       string
	TTSVoiceName      string
	ElevenLabsKey     string
	ElevenLabsVoiceID string
	DeepgramKey       string
	DeepgramModel     string

	AssemblyAIKey string

	TwilioAuthToken string
	PublicBaseURL   string

	WSMaxEventsPerSecond float64
}

// IsProduction reports whether diagnostic detail must be withheld from
// clients.
func (c Config) IsProduction() bool { return c.Environment == "production" }

// Load reads .env (if any) and the environment, applying defaults.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "error", err)
	}

	cfg := Config{
		Port:        getEnv("PORT", "3001"),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:3000"),
		Environment: getEnv("APP_ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		DialogflowProjectID:    os.Getenv("DIALOGFLOW_PROJECT_ID"),
		DialogflowAgents:       os.Getenv("DIALOGFLOW_AGENTS"),
		DialogflowDefaultAgent: os.Getenv("DIALOGFLOW_DEFAULT_AGENT"),
		LanguageCode:           getEnv("LANGUAGE_CODE", "en-US"),
		ResolverTimeout:        getDuration("RESOLVER_TIMEOUT", 15*time.Second),

		TTSVoiceName:      getEnv("TTS_VOICE_NAME", "en-US-Neural2-F"),
		ElevenLabsKey:     os.Getenv("ELEVENLABS_API_KEY"),
		ElevenLabsVoiceID: os.Getenv("ELEVENLABS_VOICE_ID"),
		DeepgramKey:       os.Getenv("DEEPGRAM_API_KEY"),
		DeepgramModel:     getEnv("DEEPGRAM_MODEL", "aura-2-thalia-en"),

		AssemblyAIKey: os.Getenv("ASSEMBLYAI_API_KEY"),

		TwilioAuthToken: os.Getenv("TWILIO_AUTH_TOKEN"),
		PublicBaseURL:   os.Getenv("PUBLIC_BASE_URL"),

		WSMaxEventsPerSecond: getFloat("WS_MAX_EVENTS_PER_SECOND", 10),
	}

	defaultTTS := TTSNone
	if cfg.DialogflowProjectID != "" {
		defaultTTS = TTSGoogle
	}
	cfg.TTSProvider = strings.ToLower(getEnv("TTS_PROVIDER", defaultTTS))

	if cfg.DialogflowProjectID == "" && cfg.DialogflowAgents == "" {
		slog.Warn("DIALOGFLOW_PROJECT_ID not set - using keyword fallback responses")
	}
	switch cfg.TTSProvider {
	case TTSElevenLabs:
		if cfg.ElevenLabsKey == "" || cfg.ElevenLabsVoiceID == "" {
			slog.Warn("ELEVENLABS_API_KEY or ELEVENLABS_VOICE_ID not set - server speech synthesis will fail")
		}
	case TTSDeepgram:
		if cfg.DeepgramKey == "" {
			slog.Warn("DEEPGRAM_API_KEY not set - server speech synthesis will fail")
		}
	case TTSGoogle, TTSNone:
	default:
		slog.Warn("unknown TTS_PROVIDER, disabling server speech synthesis", "provider", cfg.TTSProvider)
		cfg.TTSProvider = TTSNone
	}
	if cfg.AssemblyAIKey == "" {
		slog.Info("ASSEMBLYAI_API_KEY not set - speech capture relies on the browser")
	}
	if cfg.TwilioAuthToken == "" {
		slog.Warn("TWILIO_AUTH_TOKEN not set - phone webhooks are not signature-verified")
	}
	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	slog.Warn("invalid duration, using default", "key", key, "value", raw, "default", defaultValue)
	return defaultValue
}

func getFloat(key string, defaultValue float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f <= 0 {
		slog.Warn("invalid number, using default", "key", key, "value", raw, "default", defaultValue)
		return defaultValue
	}
	return f
}
