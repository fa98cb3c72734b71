// Package protocol defines the JSON message shapes exchanged over the
// live verification WebSocket.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dayfusion/liveness-gateway/pkg/verify"
)

const ProtocolVersion1 = "1"

type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_request", Message: message, Param: param}
}

func unsupported(message, param string) *DecodeError {
	return &DecodeError{Code: "unsupported", Message: message, Param: param}
}

type HelloClient struct {
	Name     string `json:"name,omitempty"`
	Version  string `json:"version,omitempty"`
	Platform string `json:"platform,omitempty"`
}

type HelloAuth struct {
	GatewayAPIKey string `json:"gateway_api_key,omitempty"`
}

// ClientHello opens a verification session. An optional identity document
// image may be attached for face matching against the reference capture.
type ClientHello struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	Client          HelloClient `json:"client,omitempty"`
	Auth            *HelloAuth  `json:"auth,omitempty"`
	DocumentB64     string      `json:"document_b64,omitempty"`
}

func (h ClientHello) RedactedForLog() map[string]any {
	return map[string]any{
		"type":             h.Type,
		"protocol_version": h.ProtocolVersion,
		"client":           h.Client,
		"has_gateway_key":  h.Auth != nil && strings.TrimSpace(h.Auth.GatewayAPIKey) != "",
		"has_document":     strings.TrimSpace(h.DocumentB64) != "",
	}
}

// ClientFrame delivers one captured still frame in response to a prompt.
type ClientFrame struct {
	Type    string `json:"type"`
	DataB64 string `json:"data_b64"`
}

// ClientChunk delivers one encoded video chunk of the session recording.
type ClientChunk struct {
	Type     string `json:"type"`
	DataB64  string `json:"data_b64"`
	MimeType string `json:"mime_type,omitempty"`
}

// ClientCancel aborts the running session.
type ClientCancel struct {
	Type string `json:"type"`
}

func DecodeClientMessage(data []byte) (any, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, badRequest("invalid json frame", "")
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return nil, badRequest("missing type", "type")
	}

	switch typ {
	case "hello":
		var msg ClientHello
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid hello frame", "")
		}
		if err := ValidateHello(msg); err != nil {
			return nil, err
		}
		return msg, nil
	case "frame":
		var msg ClientFrame
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid frame", "")
		}
		if strings.TrimSpace(msg.DataB64) == "" {
			return nil, badRequest("frame.data_b64 is required", "data_b64")
		}
		return msg, nil
	case "chunk":
		var msg ClientChunk
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid chunk", "")
		}
		if strings.TrimSpace(msg.DataB64) == "" {
			return nil, badRequest("chunk.data_b64 is required", "data_b64")
		}
		return msg, nil
	case "cancel":
		var msg ClientCancel
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid cancel", "")
		}
		return msg, nil
	default:
		return nil, badRequest("unsupported message type", "type")
	}
}

func ValidateHello(msg ClientHello) error {
	version := strings.TrimSpace(msg.ProtocolVersion)
	if version == "" {
		return badRequest("hello.protocol_version is required", "protocol_version")
	}
	if version != ProtocolVersion1 {
		return unsupported("unsupported protocol version", "protocol_version")
	}
	return nil
}

// ServerReady acknowledges the hello and announces the step plan.
type ServerReady struct {
	Type            string             `json:"type"`
	ProtocolVersion string             `json:"protocol_version"`
	SessionID       string             `json:"session_id"`
	Steps           []verify.VoiceStep `json:"steps"`
}

// ServerState reports a session state transition.
type ServerState struct {
	Type     string       `json:"type"`
	Phase    verify.Phase `json:"phase"`
	Progress int          `json:"progress"`
	Aborted  bool         `json:"aborted,omitempty"`
}

// ServerPrompt instructs the client to voice one step and then submit a
// frame.
type ServerPrompt struct {
	Type     string `json:"type"`
	Index    int    `json:"index"`
	Text     string `json:"text"`
	Position string `json:"position"`
	DelayMS  int    `json:"delay_ms"`
}

// ServerCapture confirms a retained capture.
type ServerCapture struct {
	Type       string  `json:"type"`
	Position   string  `json:"position"`
	Confidence float64 `json:"confidence"`
}

// ServerResult carries the terminal session summary.
type ServerResult struct {
	Type    string                 `json:"type"`
	Summary *verify.SessionSummary `json:"summary"`
}

type ServerError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Close   bool   `json:"close,omitempty"`
}
