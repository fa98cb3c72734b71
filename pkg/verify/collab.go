package verify

import "context"

// MediaSource is a running media stream. In production it bridges the
// browser widget over the live WebSocket; tests supply fakes.
type MediaSource interface {
	// CaptureFrame captures one still frame (encoded image bytes).
	CaptureFrame(ctx context.Context) ([]byte, error)
	// NextChunk blocks until the next encoded video chunk is available.
	NextChunk(ctx context.Context) ([]byte, error)
	// MimeType reports the container type of the video chunks.
	MimeType() string
	// Release tears the stream down. The recorder must be stopped and
	// awaited before Release is called, or trailing chunks are lost.
	Release()
}

// Camera acquires a media stream for a session.
type Camera interface {
	Acquire(ctx context.Context) (MediaSource, error)
}

// FrameScorer scores the face confidence of a captured frame, 0..100.
type FrameScorer interface {
	ScoreFaceConfidence(ctx context.Context, frame []byte) (float64, error)
}

// UploadResult describes one stored object.
type UploadResult struct {
	Key      string `json:"key"`
	URL      string `json:"url,omitempty"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
}

// Uploader stores captured artifacts (frames, document, session video).
type Uploader interface {
	Upload(ctx context.Context, sessionID, label string, data []byte, mimeType string) (UploadResult, error)
}

// Announcer delivers a voice prompt for a step. Fire-and-forget: it must
// not block step advancement.
type Announcer interface {
	Announce(step VoiceStep, index int)
}

// RawLivenessResult is the provider-shaped result of a status query,
// before normalization.
type RawLivenessResult struct {
	Status     string
	Decision   string
	Confidence float64
	Reason     string
}

// LivenessAPI is the remote liveness verification service.
type LivenessAPI interface {
	// CreateSession creates a remote verification session.
	CreateSession(ctx context.Context) (string, error)
	// GetResult queries the current session result. The poller owns
	// normalization and retry; implementations report raw state.
	GetResult(ctx context.Context, remoteSessionID string) (RawLivenessResult, error)
}

// AnalyzeRequest carries the inputs for the backend document analysis.
type AnalyzeRequest struct {
	SessionID   string  `json:"session_id"`
	DocumentKey string  `json:"document_key"`
	SelfieKey   string  `json:"selfie_key"`
	LocalScore  float64 `json:"local_score"`
}

// DocumentAnalyzer is the optional backend document/identity analysis.
type DocumentAnalyzer interface {
	Analyze(ctx context.Context, req AnalyzeRequest) (*BackendAnalysis, error)
}

// FaceMatch is the outcome of comparing a reference face to a document.
type FaceMatch struct {
	Similarity float64
	Matched    bool
	Reason     string
}

// FaceMatcher compares a reference selfie against a document image.
type FaceMatcher interface {
	CompareFaces(ctx context.Context, source, target []byte) (FaceMatch, error)
}
