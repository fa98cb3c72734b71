package apierror

import (
	"context"
	"errors"
	"net/http"

	"github.com/dayfusion/liveness-gateway/pkg/verify"
)

type Envelope struct {
	Error *verify.Error `json:"error"`
}

func FromError(err error, requestID string) (*verify.Error, int) {
	if err == nil {
		return nil, http.StatusOK
	}

	// Context timeouts/cancellation.
	if errors.Is(err, context.DeadlineExceeded) {
		return &verify.Error{
			Type:      verify.ErrAPI,
			Message:   "request timeout",
			RequestID: requestID,
		}, http.StatusGatewayTimeout
	}
	if errors.Is(err, context.Canceled) {
		return &verify.Error{
			Type:      verify.ErrAPI,
			Message:   "request cancelled",
			Code:      "cancelled",
			RequestID: requestID,
		}, http.StatusRequestTimeout
	}

	// Already canonical.
	var verr *verify.Error
	if errors.As(err, &verr) && verr != nil {
		out := *verr
		out.RequestID = requestID
		return &out, statusFromType(verr.Type)
	}

	// Unknown errors: treat as internal API error (do not leak details by default).
	return &verify.Error{
		Type:      verify.ErrAPI,
		Message:   "internal error",
		RequestID: requestID,
	}, http.StatusInternalServerError
}

func statusFromType(t verify.ErrorType) int {
	switch t {
	case verify.ErrInvalidRequest:
		return http.StatusBadRequest
	case verify.ErrAuthentication:
		return http.StatusUnauthorized
	case verify.ErrNotFound:
		return http.StatusNotFound
	case verify.ErrSetup:
		return http.StatusUnprocessableEntity
	case verify.ErrCancelled:
		return http.StatusConflict
	case verify.ErrProvider:
		return http.StatusBadGateway
	case verify.ErrAPI:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
