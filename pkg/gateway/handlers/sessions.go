package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/dayfusion/liveness-gateway/pkg/gateway/config"
	"github.com/dayfusion/liveness-gateway/pkg/gateway/mw"
	"github.com/dayfusion/liveness-gateway/pkg/verify"
)

// SessionStore is the read side of the session history archive.
type SessionStore interface {
	Get(ctx context.Context, sessionID string) (*verify.SessionSummary, error)
	List(ctx context.Context, limit int) ([]*verify.SessionSummary, error)
}

// SessionsHandler serves GET /v1/verify/sessions.
type SessionsHandler struct {
	Config config.Config
	Store  SessionStore
	Logger *slog.Logger
}

func (h SessionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	if h.Store == nil {
		writeError(w, reqID, verify.NewNotFoundError("session history is disabled"))
		return
	}

	limit := h.Config.HistoryListLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, reqID, verify.NewInvalidRequestError("limit must be a positive integer"))
			return
		}
		if limit <= 0 || parsed < limit {
			limit = parsed
		}
	}

	summaries, err := h.Store.List(r.Context(), limit)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Error("history list failed", "request_id", reqID, "error", err)
		}
		writeError(w, reqID, err)
		return
	}

	type listResp struct {
		Sessions []*verify.SessionSummary `json:"sessions"`
	}
	if summaries == nil {
		summaries = []*verify.SessionSummary{}
	}
	writeJSON(w, http.StatusOK, listResp{Sessions: summaries})
}

// SessionHandler serves GET /v1/verify/sessions/{id}.
type SessionHandler struct {
	Store  SessionStore
	Logger *slog.Logger
}

func (h SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	if h.Store == nil {
		writeError(w, reqID, verify.NewNotFoundError("session history is disabled"))
		return
	}

	sessionID := strings.TrimSpace(r.PathValue("id"))
	if sessionID == "" {
		writeError(w, reqID, verify.NewInvalidRequestError("session id is required"))
		return
	}

	summary, err := h.Store.Get(r.Context(), sessionID)
	if err != nil {
		writeError(w, reqID, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
