package docanalyzer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dayfusion/liveness-gateway/pkg/verify"
)

func TestClientAnalyze_Success(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/analyze" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer key" {
			t.Fatalf("auth header=%q", got)
		}
		var req verify.AnalyzeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.SessionID != "sess-1" || req.DocumentKey != "sess-1/document.jpg" {
			t.Fatalf("request=%+v", req)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"REVIEW_REQUIRED","identity_score":0.62,"observation":"blurry document"}`))
	}))
	defer ts.Close()

	c := New(ts.URL, "key")
	got, err := c.Analyze(context.Background(), verify.AnalyzeRequest{
		SessionID:   "sess-1",
		DocumentKey: "sess-1/document.jpg",
		SelfieKey:   "sess-1/capture-00-front.jpg",
		LocalScore:  94.2,
	})
	if err != nil {
		t.Fatalf("Analyze() error: %v", err)
	}
	if got.Status != verify.BackendReviewRequired {
		t.Fatalf("status=%q", got.Status)
	}
	if got.IdentityScore == nil || *got.IdentityScore != 0.62 {
		t.Fatalf("identity score=%v", got.IdentityScore)
	}
	if got.Observation != "blurry document" {
		t.Fatalf("observation=%q", got.Observation)
	}
}

func TestClientAnalyze_ErrorStatus(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	defer ts.Close()

	c := New(ts.URL, "")
	if _, err := c.Analyze(context.Background(), verify.AnalyzeRequest{SessionID: "sess-1"}); err == nil {
		t.Fatal("expected an error")
	}
}

func TestClientAnalyze_NotConfigured(t *testing.T) {
	t.Parallel()

	c := New("", "")
	if _, err := c.Analyze(context.Background(), verify.AnalyzeRequest{}); err == nil {
		t.Fatal("expected an error")
	}
}
