package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	LogLevel      string
	PublicBaseURL string
	DatabaseURL   string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	TwilioAccountSID    string
	TwilioAuthToken     string
	TwilioFromNumber    string
	TwilioWebhookSecret string

	// OfficeNumber is where "press 2" transfers land.
	OfficeNumber string
	PracticeName string

	Timezone        string
	CallWindowStart string
	CallWindowEnd   string

	// TTSVoice is the Twilio <Say> voice, e.g. "alice" or "Polly.Joanna".
	TTSVoice        string
	TTSInitialPause int
	// AMDMode controls answering machine detection: "none", "enable" or
	// "detect_message_end".
	AMDMode string

	UploadDir   string
	MaxFileSize int64

	AdminJWTSecret     string
	CORSAllowedOrigins []string

	WebhookRateLimit float64
	WebhookBurst     int

	// ShutdownGrace bounds how long in-flight requests get to finish on
	// SIGTERM before the server is torn down.
	ShutdownGrace time.Duration
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		PublicBaseURL: strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		TwilioAccountSID:    getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:     getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioFromNumber:    getEnv("TWILIO_FROM_NUMBER", ""),
		TwilioWebhookSecret: getEnv("TWILIO_WEBHOOK_SECRET", ""),

		OfficeNumber: getEnv("OFFICE_NUMBER", ""),
		PracticeName: getEnv("PRACTICE_NAME", "our office"),

		Timezone:        getEnv("TIMEZONE", "America/New_York"),
		CallWindowStart: getEnv("CALL_WINDOW_START", "10:00"),
		CallWindowEnd:   getEnv("CALL_WINDOW_END", "15:00"),

		TTSVoice:        getEnv("TTS_VOICE", "alice"),
		TTSInitialPause: getEnvAsInt("TTS_INITIAL_PAUSE", 0),
		AMDMode:         strings.ToLower(strings.TrimSpace(getEnv("AMD_MODE", "none"))),

		UploadDir:   getEnv("UPLOAD_DIR", "uploads"),
		MaxFileSize: getEnvAsInt64("MAX_FILE_SIZE", 10*1024*1024),

		AdminJWTSecret:     getEnv("ADMIN_JWT_SECRET", ""),
		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "")),

		WebhookRateLimit: getEnvAsFloat("WEBHOOK_RATE_LIMIT", 10),
		WebhookBurst:     getEnvAsInt("WEBHOOK_BURST", 30),

		ShutdownGrace: getEnvAsDuration("SHUTDOWN_GRACE", 30*time.Second),
	}
}

// TelephonyConfigured reports whether every credential needed to place a
// call is present. Missing credentials are fatal for call placement and
// surfaced before any call attempt.
func (c *Config) TelephonyConfigured() bool {
	return c.TwilioAccountSID != "" &&
		c.TwilioAuthToken != "" &&
		c.TwilioFromNumber != "" &&
		c.OfficeNumber != "" &&
		c.PublicBaseURL != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsInt64(key string, fallback int64) int64 {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}

func splitList(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
