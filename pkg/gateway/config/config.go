package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dayfusion/liveness-gateway/pkg/verify"
)

type AuthMode string

const (
	AuthModeRequired AuthMode = "required"
	AuthModeOptional AuthMode = "optional"
	AuthModeDisabled AuthMode = "disabled"
)

type Config struct {
	Addr string

	AuthMode AuthMode
	APIKeys  map[string]struct{}

	// CORS
	CORSAllowedOrigins map[string]struct{} // empty => disabled

	// Verification pipeline.
	VoiceSteps      []verify.VoiceStep
	RequireRemote   bool
	PollInterval    time.Duration
	PollMaxAttempts int

	// AWS backends.
	AWSRegion string
	S3Bucket  string
	S3Prefix  string

	// Optional backend analysis service.
	AnalyzerBaseURL string
	AnalyzerAPIKey  string

	// Session history archive (sqlite). Empty disables archiving.
	HistoryPath string

	// Live WebSocket mode (/v1/verify/live).
	LiveMaxMessageBytes  int64
	LiveMaxDocumentBytes int64
	LiveHandshakeTimeout time.Duration
	LiveWSWriteTimeout   time.Duration
	LiveWSPingInterval   time.Duration
	LiveMaxSessions      int

	// History listing.
	HistoryListLimit int

	// Operational defaults
	ReadHeaderTimeout   time.Duration
	ReadTimeout         time.Duration
	ShutdownGracePeriod time.Duration
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                 envOr("VERIFY_ADDR", ":8080"),
		AuthMode:             AuthMode(envOr("VERIFY_AUTH_MODE", string(AuthModeRequired))),
		APIKeys:              make(map[string]struct{}),
		CORSAllowedOrigins:   make(map[string]struct{}),
		RequireRemote:        envBoolOr("VERIFY_REQUIRE_REMOTE", false),
		PollInterval:         envDurationOr("VERIFY_POLL_INTERVAL", time.Second),
		PollMaxAttempts:      envIntOr("VERIFY_POLL_MAX_ATTEMPTS", 60),
		AWSRegion:            envOr("VERIFY_AWS_REGION", ""),
		S3Bucket:             envOr("VERIFY_S3_BUCKET", ""),
		S3Prefix:             envOr("VERIFY_S3_PREFIX", "sessions"),
		AnalyzerBaseURL:      envOr("VERIFY_ANALYZER_BASE_URL", ""),
		AnalyzerAPIKey:       envOr("VERIFY_ANALYZER_API_KEY", ""),
		HistoryPath:          envOr("VERIFY_HISTORY_PATH", "verify-history.db"),
		LiveMaxMessageBytes:  envInt64Or("VERIFY_LIVE_MAX_MESSAGE_BYTES", 8<<20),   // frames arrive base64-encoded
		LiveMaxDocumentBytes: envInt64Or("VERIFY_LIVE_MAX_DOCUMENT_BYTES", 10<<20), // decoded bytes
		LiveHandshakeTimeout: envDurationOr("VERIFY_LIVE_HANDSHAKE_TIMEOUT", 5*time.Second),
		LiveWSWriteTimeout:   envDurationOr("VERIFY_LIVE_WS_WRITE_TIMEOUT", 5*time.Second),
		LiveWSPingInterval:   envDurationOr("VERIFY_LIVE_WS_PING_INTERVAL", 20*time.Second),
		LiveMaxSessions:      envIntOr("VERIFY_LIVE_MAX_SESSIONS", 32),
		HistoryListLimit:     envIntOr("VERIFY_HISTORY_LIST_LIMIT", 50),
		ReadHeaderTimeout:    envDurationOr("VERIFY_READ_HEADER_TIMEOUT", 10*time.Second),
		ReadTimeout:          envDurationOr("VERIFY_READ_TIMEOUT", 30*time.Second),
		ShutdownGracePeriod:  envDurationOr("VERIFY_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
	}

	switch cfg.AuthMode {
	case AuthModeRequired, AuthModeOptional, AuthModeDisabled:
	default:
		return Config{}, fmt.Errorf("VERIFY_AUTH_MODE must be one of required|optional|disabled")
	}

	for _, key := range splitCSV(os.Getenv("VERIFY_API_KEYS")) {
		cfg.APIKeys[key] = struct{}{}
	}

	for _, origin := range splitCSV(os.Getenv("VERIFY_CORS_ORIGINS")) {
		cfg.CORSAllowedOrigins[origin] = struct{}{}
	}

	if raw := strings.TrimSpace(os.Getenv("VERIFY_VOICE_STEPS")); raw != "" {
		steps, err := verify.ParseSteps(raw)
		if err != nil {
			return Config{}, fmt.Errorf("VERIFY_VOICE_STEPS: %w", err)
		}
		cfg.VoiceSteps = steps
	} else {
		cfg.VoiceSteps = verify.DefaultSteps()
	}

	if cfg.PollInterval <= 0 {
		return Config{}, fmt.Errorf("VERIFY_POLL_INTERVAL must be > 0")
	}
	if cfg.PollMaxAttempts <= 0 {
		return Config{}, fmt.Errorf("VERIFY_POLL_MAX_ATTEMPTS must be > 0")
	}
	if strings.TrimSpace(cfg.AWSRegion) == "" {
		return Config{}, fmt.Errorf("VERIFY_AWS_REGION must be set")
	}
	if strings.TrimSpace(cfg.S3Bucket) == "" {
		return Config{}, fmt.Errorf("VERIFY_S3_BUCKET must be set")
	}
	if cfg.LiveMaxMessageBytes <= 0 {
		return Config{}, fmt.Errorf("VERIFY_LIVE_MAX_MESSAGE_BYTES must be > 0")
	}
	if cfg.LiveMaxDocumentBytes <= 0 {
		return Config{}, fmt.Errorf("VERIFY_LIVE_MAX_DOCUMENT_BYTES must be > 0")
	}
	if cfg.LiveHandshakeTimeout <= 0 {
		return Config{}, fmt.Errorf("VERIFY_LIVE_HANDSHAKE_TIMEOUT must be > 0")
	}
	if cfg.LiveWSWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("VERIFY_LIVE_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.LiveWSPingInterval <= 0 {
		return Config{}, fmt.Errorf("VERIFY_LIVE_WS_PING_INTERVAL must be > 0")
	}
	if cfg.LiveMaxSessions <= 0 {
		return Config{}, fmt.Errorf("VERIFY_LIVE_MAX_SESSIONS must be > 0")
	}
	if cfg.HistoryListLimit <= 0 {
		return Config{}, fmt.Errorf("VERIFY_HISTORY_LIST_LIMIT must be > 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("VERIFY_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ReadTimeout <= 0 {
		return Config{}, fmt.Errorf("VERIFY_READ_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("VERIFY_SHUTDOWN_GRACE_PERIOD must be > 0")
	}

	if cfg.AuthMode == AuthModeRequired && len(cfg.APIKeys) == 0 {
		return Config{}, fmt.Errorf("VERIFY_API_KEYS must be set when VERIFY_AUTH_MODE=required")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envBoolOr(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	switch strings.ToLower(raw) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return def
	}
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
