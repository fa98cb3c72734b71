package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/dayfusion/liveness-gateway/pkg/gateway/apierror"
	"github.com/dayfusion/liveness-gateway/pkg/verify"
)

func writeError(w http.ResponseWriter, reqID string, err error) {
	verifyErr, status := apierror.FromError(err, reqID)
	writeErrorJSON(w, reqID, verifyErr, status)
}

func writeErrorJSON(w http.ResponseWriter, reqID string, verifyErr *verify.Error, status int) {
	if verifyErr != nil && verifyErr.RequestID == "" {
		verifyErr.RequestID = reqID
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apierror.Envelope{Error: verifyErr})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
