package handlers

import (
	"net/http"

	"github.com/dayfusion/liveness-gateway/pkg/gateway/mw"
	"github.com/dayfusion/liveness-gateway/pkg/verify"
)

type NotFoundHandler struct{}

func (h NotFoundHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	writeErrorJSON(w, reqID, &verify.Error{
		Type:      verify.ErrNotFound,
		Message:   "not found",
		RequestID: reqID,
	}, http.StatusNotFound)
}
