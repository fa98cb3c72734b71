package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/dayfusion/liveness-gateway/pkg/gateway/config"
	"github.com/dayfusion/liveness-gateway/pkg/gateway/lifecycle"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

type ReadyHandler struct {
	Config    config.Config
	Lifecycle *lifecycle.Lifecycle
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK            bool     `json:"ok"`
		AuthMode      string   `json:"auth_mode"`
		RemoteEnabled bool     `json:"remote_enabled"`
		Draining      bool     `json:"draining,omitempty"`
		Issues        []string `json:"issues,omitempty"`
	}

	if h.Lifecycle.IsDraining() {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(readyResp{
			OK:       false,
			AuthMode: string(h.Config.AuthMode),
			Draining: true,
			Issues:   []string{"gateway is draining"},
		})
		return
	}

	issues := make([]string, 0, 4)

	switch h.Config.AuthMode {
	case config.AuthModeRequired, config.AuthModeOptional, config.AuthModeDisabled:
	default:
		issues = append(issues, "invalid auth_mode")
	}
	if h.Config.AuthMode == config.AuthModeRequired && len(h.Config.APIKeys) == 0 {
		issues = append(issues, "auth_mode=required but no api keys configured")
	}

	if h.Config.AWSRegion == "" {
		issues = append(issues, "aws region not configured")
	}
	if h.Config.S3Bucket == "" {
		issues = append(issues, "artifact bucket not configured")
	}
	if h.Config.PollInterval <= 0 {
		issues = append(issues, "poll interval must be > 0")
	}
	if h.Config.PollMaxAttempts <= 0 {
		issues = append(issues, "poll max attempts must be > 0")
	}
	if h.Config.LiveMaxMessageBytes <= 0 || h.Config.LiveMaxDocumentBytes <= 0 {
		issues = append(issues, "live message budgets must be > 0")
	}
	if h.Config.LiveHandshakeTimeout <= 0 || h.Config.LiveWSWriteTimeout <= 0 || h.Config.LiveWSPingInterval <= 0 {
		issues = append(issues, "live timeouts must be > 0")
	}
	if h.Config.LiveMaxSessions <= 0 {
		issues = append(issues, "live max sessions must be > 0")
	}
	if h.Config.ReadHeaderTimeout <= 0 || h.Config.ReadTimeout <= 0 {
		issues = append(issues, "timeouts must be > 0")
	}

	ok := len(issues) == 0
	status := http.StatusOK
	if !ok {
		status = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(readyResp{
		OK:            ok,
		AuthMode:      string(h.Config.AuthMode),
		RemoteEnabled: h.Config.RequireRemote,
		Issues:        issues,
	})
}
