package handlers

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/dayfusion/liveness-gateway/pkg/gateway/config"
	"github.com/dayfusion/liveness-gateway/pkg/gateway/lifecycle"
	"github.com/dayfusion/liveness-gateway/pkg/gateway/live/protocol"
	"github.com/dayfusion/liveness-gateway/pkg/gateway/live/sessions"
	"github.com/dayfusion/liveness-gateway/pkg/gateway/metrics"
	"github.com/dayfusion/liveness-gateway/pkg/gateway/mw"
	"github.com/dayfusion/liveness-gateway/pkg/verify"
	"github.com/dayfusion/liveness-gateway/pkg/verify/capture"
	"github.com/dayfusion/liveness-gateway/pkg/verify/session"
)

const defaultChunkMimeType = "video/webm"

// HistoryStore is the write side of the session history archive.
type HistoryStore interface {
	Save(ctx context.Context, summary *verify.SessionSummary) error
}

// LiveHandler handles /v1/verify/live websocket sessions. Each connection
// runs exactly one verification session to completion.
type LiveHandler struct {
	Config       config.Config
	Logger       *slog.Logger
	Lifecycle    *lifecycle.Lifecycle
	LiveSessions *sessions.Tracker
	Metrics      *metrics.Metrics

	Scorer   verify.FrameScorer
	Uploader verify.Uploader
	Liveness verify.LivenessAPI
	Analyzer verify.DocumentAnalyzer
	Matcher  verify.FaceMatcher
	History  HistoryStore
}

func (h LiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	if r.Method != http.MethodGet {
		writeErrorJSON(w, reqID, &verify.Error{Type: verify.ErrInvalidRequest, Message: "method not allowed", Code: "method_not_allowed", RequestID: reqID}, http.StatusMethodNotAllowed)
		return
	}
	if h.Lifecycle.IsDraining() {
		writeErrorJSON(w, reqID, &verify.Error{Type: verify.ErrAPI, Message: "gateway is draining", Code: "draining", RequestID: reqID}, http.StatusServiceUnavailable)
		return
	}
	if !h.originAllowed(r) {
		writeErrorJSON(w, reqID, &verify.Error{Type: verify.ErrAuthentication, Message: "origin is not allowed", Param: "Origin", RequestID: reqID}, http.StatusForbidden)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	rawConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer rawConn.Close()

	if h.Config.LiveMaxMessageBytes > 0 {
		rawConn.SetReadLimit(h.Config.LiveMaxMessageBytes)
	}

	conn := &wsConn{conn: rawConn, writeTimeout: h.Config.LiveWSWriteTimeout}

	handshakeTimeout := h.Config.LiveHandshakeTimeout
	if handshakeTimeout <= 0 {
		handshakeTimeout = 5 * time.Second
	}
	_ = rawConn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	messageType, firstFrame, err := rawConn.ReadMessage()
	if err != nil {
		h.writeWSError(conn, "bad_request", "failed to read hello", true)
		return
	}
	if messageType != websocket.TextMessage {
		h.writeWSError(conn, "bad_request", "first message must be hello", true)
		return
	}

	decoded, err := protocol.DecodeClientMessage(firstFrame)
	if err != nil {
		var decodeErr *protocol.DecodeError
		if errors.As(err, &decodeErr) {
			h.writeWSError(conn, decodeErr.Code, decodeErr.Message, true)
		} else {
			h.writeWSError(conn, "bad_request", "invalid hello message", true)
		}
		return
	}
	hello, ok := decoded.(protocol.ClientHello)
	if !ok {
		h.writeWSError(conn, "bad_request", "first message must be hello", true)
		return
	}

	if authErr := h.authenticate(r, hello); authErr != nil {
		h.writeWSError(conn, "unauthorized", authErr.Error(), true)
		return
	}

	document, docErr := h.decodeDocument(hello)
	if docErr != nil {
		h.writeWSError(conn, docErr.Code, docErr.Message, true)
		return
	}

	sessionID := uuid.NewString()
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("live session starting",
		"session_id", sessionID,
		"request_id", reqID,
		"hello", hello.RedactedForLog())

	steps := h.Config.VoiceSteps
	if len(steps) == 0 {
		steps = verify.DefaultSteps()
	}

	src := newLiveSource()
	engine := session.New(sessionID, session.Config{
		Steps:           steps,
		RequireRemote:   h.Config.RequireRemote,
		PollInterval:    h.Config.PollInterval,
		PollMaxAttempts: h.Config.PollMaxAttempts,
		Document:        document,
	}, session.Collaborators{
		Camera:    staticCamera{src: src},
		Recorder:  &capture.ChunkRecorder{Logger: logger},
		Scorer:    h.Scorer,
		Uploader:  h.Uploader,
		Announcer: wsAnnouncer{conn: conn},
		Liveness:  h.Liveness,
		Analyzer:  h.Analyzer,
		Matcher:   h.Matcher,
	}, logger)

	engine.OnState = func(state verify.SessionState) {
		_ = conn.WriteJSON(protocol.ServerState{
			Type:     "state",
			Phase:    state.Phase,
			Progress: state.Progress,
			Aborted:  state.Aborted,
		})
	}
	engine.OnCapture = func(rec verify.CaptureRecord) {
		h.Metrics.RecordCapture()
		_ = conn.WriteJSON(protocol.ServerCapture{
			Type:       "capture",
			Position:   rec.Position,
			Confidence: rec.Confidence,
		})
	}
	engine.OnPollAttempt = func(int) {
		h.Metrics.RecordPollAttempt()
	}

	unregister := func() {}
	if h.LiveSessions != nil {
		var regErr error
		unregister, regErr = h.LiveSessions.Register(sessionID, sessions.Handle{
			Cancel: engine.Cancel,
			Warn: func(code, message string) error {
				return conn.WriteJSON(protocol.ServerError{Type: "error", Code: code, Message: message})
			},
		})
		if regErr != nil {
			h.writeWSError(conn, "capacity", "too many active verification sessions", true)
			return
		}
	}
	defer unregister()

	if err := conn.WriteJSON(protocol.ServerReady{
		Type:            "ready",
		ProtocolVersion: protocol.ProtocolVersion1,
		SessionID:       sessionID,
		Steps:           steps,
	}); err != nil {
		return
	}
	_ = rawConn.SetReadDeadline(time.Time{})

	readerDone := make(chan struct{})
	go h.readLoop(rawConn, src, engine, logger, sessionID, readerDone)

	pingDone := make(chan struct{})
	defer close(pingDone)
	go h.pingLoop(conn, pingDone)

	startAt := time.Now()
	h.Metrics.RecordSessionStart()
	summary, runErr := engine.Run(r.Context())
	h.Metrics.RecordSessionEnd(h.terminalStatus(engine, summary), time.Since(startAt))

	if runErr != nil {
		code := "internal"
		var verifyErr *verify.Error
		if errors.As(runErr, &verifyErr) {
			code = string(verifyErr.Type)
		}
		h.Metrics.RecordError(code)
		logger.Warn("live session ended with error",
			"session_id", sessionID, "request_id", reqID, "error", runErr)
		h.writeWSError(conn, code, runErr.Error(), true)
		return
	}

	h.saveHistory(summary, logger)
	_ = conn.WriteJSON(protocol.ServerResult{Type: "result", Summary: summary})
	conn.CloseNormal("session complete")

	// Give the reader a moment to observe the close frame.
	select {
	case <-readerDone:
	case <-time.After(2 * time.Second):
	}
}

// readLoop pumps client messages into the media source until the
// connection drops. Disconnect cancels the session.
func (h LiveHandler) readLoop(rawConn *websocket.Conn, src *liveSource, engine *session.Engine, logger *slog.Logger, sessionID string, done chan<- struct{}) {
	defer close(done)
	defer src.closeInput()

	for {
		_, data, err := rawConn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("live read ended", "session_id", sessionID, "error", err)
			}
			if !engine.State().Phase.Terminal() {
				engine.Cancel()
			}
			return
		}

		decoded, err := protocol.DecodeClientMessage(data)
		if err != nil {
			logger.Debug("discarding malformed client message", "session_id", sessionID, "error", err)
			continue
		}

		switch msg := decoded.(type) {
		case protocol.ClientFrame:
			frame, err := base64.StdEncoding.DecodeString(msg.DataB64)
			if err != nil {
				logger.Debug("discarding undecodable frame", "session_id", sessionID, "error", err)
				continue
			}
			src.pushFrame(frame)
		case protocol.ClientChunk:
			chunk, err := base64.StdEncoding.DecodeString(msg.DataB64)
			if err != nil {
				logger.Debug("discarding undecodable chunk", "session_id", sessionID, "error", err)
				continue
			}
			src.pushChunk(chunk, msg.MimeType)
		case protocol.ClientCancel:
			engine.Cancel()
		case protocol.ClientHello:
			logger.Debug("ignoring duplicate hello", "session_id", sessionID)
		}
	}
}

func (h LiveHandler) pingLoop(conn *wsConn, done <-chan struct{}) {
	interval := h.Config.LiveWSPingInterval
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.Ping(); err != nil {
				return
			}
		}
	}
}

func (h LiveHandler) terminalStatus(engine *session.Engine, summary *verify.SessionSummary) string {
	if summary != nil {
		return string(summary.Status)
	}
	return string(engine.State().Phase)
}

func (h LiveHandler) saveHistory(summary *verify.SessionSummary, logger *slog.Logger) {
	if h.History == nil || summary == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.History.Save(ctx, summary); err != nil {
		logger.Error("failed to archive session summary",
			"session_id", summary.SessionID, "error", err)
	}
}

func (h LiveHandler) originAllowed(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	if len(h.Config.CORSAllowedOrigins) == 0 {
		return false
	}
	_, ok := h.Config.CORSAllowedOrigins[origin]
	return ok
}

func (h LiveHandler) authenticate(r *http.Request, hello protocol.ClientHello) error {
	apiKey := ""
	if hello.Auth != nil {
		apiKey = strings.TrimSpace(hello.Auth.GatewayAPIKey)
	}
	if apiKey == "" {
		apiKey = strings.TrimSpace(r.URL.Query().Get("gateway_api_key"))
	}

	switch h.Config.AuthMode {
	case config.AuthModeRequired:
		if apiKey == "" {
			return errors.New("missing gateway api key")
		}
		if _, ok := h.Config.APIKeys[apiKey]; !ok {
			return errors.New("invalid gateway api key")
		}
		return nil
	case config.AuthModeOptional:
		if apiKey != "" {
			if _, ok := h.Config.APIKeys[apiKey]; !ok {
				return errors.New("invalid gateway api key")
			}
		}
		return nil
	case config.AuthModeDisabled:
		return nil
	default:
		return errors.New("invalid auth mode")
	}
}

func (h LiveHandler) decodeDocument(hello protocol.ClientHello) ([]byte, *protocol.DecodeError) {
	raw := strings.TrimSpace(hello.DocumentB64)
	if raw == "" {
		return nil, nil
	}
	document, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, &protocol.DecodeError{Code: "bad_request", Message: "document_b64 is not valid base64", Param: "document_b64"}
	}
	if h.Config.LiveMaxDocumentBytes > 0 && int64(len(document)) > h.Config.LiveMaxDocumentBytes {
		return nil, &protocol.DecodeError{Code: "bad_request", Message: "document exceeds the size limit", Param: "document_b64"}
	}
	return document, nil
}

func (h LiveHandler) writeWSError(conn *wsConn, code, message string, close bool) {
	_ = conn.WriteJSON(protocol.ServerError{Type: "error", Code: code, Message: message, Close: close})
	if close {
		conn.ClosePolicy(message)
	}
}

// wsConn serializes writes to the underlying connection. The engine
// callback path and the ping loop write concurrently.
type wsConn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	mu           sync.Mutex
}

func (c *wsConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return c.conn.WriteJSON(v)
}

func (c *wsConn) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(2*time.Second))
}

func (c *wsConn) CloseNormal(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason), time.Now().Add(2*time.Second))
}

func (c *wsConn) ClosePolicy(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), time.Now().Add(2*time.Second))
}

// wsAnnouncer forwards voice prompts to the client. Fire-and-forget.
type wsAnnouncer struct {
	conn *wsConn
}

func (a wsAnnouncer) Announce(step verify.VoiceStep, index int) {
	_ = a.conn.WriteJSON(protocol.ServerPrompt{
		Type:     "prompt",
		Index:    index,
		Text:     step.Text,
		Position: step.Position,
		DelayMS:  step.DelayMS,
	})
}

// staticCamera hands out the one media source backing this connection.
type staticCamera struct {
	src *liveSource
}

func (c staticCamera) Acquire(ctx context.Context) (verify.MediaSource, error) {
	return c.src, nil
}

// liveSource adapts the websocket message stream to verify.MediaSource.
// Frames arrive one per prompt; chunks stream continuously while the
// client records.
type liveSource struct {
	frames chan []byte
	chunks chan []byte
	input  chan struct{}

	mu        sync.Mutex
	mime      string
	closeOnce sync.Once
}

func newLiveSource() *liveSource {
	return &liveSource{
		frames: make(chan []byte, 4),
		// Chunks buffer deep enough that a slow recorder drain does not
		// stall the read loop.
		chunks: make(chan []byte, 64),
		input:  make(chan struct{}),
	}
}

func (s *liveSource) pushFrame(frame []byte) {
	select {
	case s.frames <- frame:
	default:
		// Unconsumed frame backlog; keep only the freshest frames.
		select {
		case <-s.frames:
		default:
		}
		select {
		case s.frames <- frame:
		default:
		}
	}
}

func (s *liveSource) pushChunk(chunk []byte, mimeType string) {
	if mimeType = strings.TrimSpace(mimeType); mimeType != "" {
		s.mu.Lock()
		if s.mime == "" {
			s.mime = mimeType
		}
		s.mu.Unlock()
	}
	select {
	case s.chunks <- chunk:
	default:
		// Recorder is not keeping up; drop this chunk rather than block
		// the read loop.
	}
}

func (s *liveSource) closeInput() {
	s.closeOnce.Do(func() { close(s.input) })
}

func (s *liveSource) CaptureFrame(ctx context.Context) ([]byte, error) {
	select {
	case frame := <-s.frames:
		return frame, nil
	case <-s.input:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *liveSource) NextChunk(ctx context.Context) ([]byte, error) {
	select {
	case chunk := <-s.chunks:
		return chunk, nil
	case <-s.input:
		// Drain anything buffered before reporting end of stream.
		select {
		case chunk := <-s.chunks:
			return chunk, nil
		default:
			return nil, io.EOF
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *liveSource) MimeType() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mime == "" {
		return defaultChunkMimeType
	}
	return s.mime
}

func (s *liveSource) Release() {}
