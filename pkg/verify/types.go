package verify

import "time"

// Decision is the remote liveness verdict.
type Decision string

const (
	DecisionLive    Decision = "LIVE"
	DecisionFake    Decision = "FAKE"
	DecisionSpoof   Decision = "SPOOF"
	DecisionUnknown Decision = "UNKNOWN"
)

// ParseDecision maps a raw provider decision string to a Decision,
// defaulting to UNKNOWN for anything unrecognized.
func ParseDecision(raw string) Decision {
	switch Decision(raw) {
	case DecisionLive, DecisionFake, DecisionSpoof:
		return Decision(raw)
	default:
		return DecisionUnknown
	}
}

// PollStatus classifies a normalized poll result.
type PollStatus string

const (
	PollSuccess    PollStatus = "success"
	PollIncomplete PollStatus = "incomplete"
	PollFailed     PollStatus = "failed"
)

// Remote session lifecycle statuses as reported by the liveness provider.
const (
	RemoteStatusCreated    = "CREATED"
	RemoteStatusInProgress = "IN_PROGRESS"
	RemoteStatusSucceeded  = "SUCCEEDED"
	RemoteStatusFailed     = "FAILED"
	RemoteStatusExpired    = "EXPIRED"
)

// Canonical pose positions for the guided sequence.
const (
	PositionFront      = "front"
	PositionLeft       = "left"
	PositionRight      = "right"
	PositionBlinkSmile = "blink_smile"
	PositionDocument   = "document"
	PositionUpload     = "upload"
)

// VoiceStep is one instruction in the guided capture sequence.
type VoiceStep struct {
	Text     string `json:"text"`
	DelayMS  int    `json:"delay_ms"`
	Position string `json:"position"`
}

// CaptureRecord is one captured, scored and uploaded frame. Records are
// appended in step order and never mutated after creation.
type CaptureRecord struct {
	Position   string  `json:"position"`
	Confidence float64 `json:"confidence"`
	StorageKey string  `json:"storage_key"`
	PreviewRef string  `json:"preview_ref,omitempty"`
}

// LocalAnalysis is the aggregate over CaptureRecords, computed once after
// sequencing ends.
type LocalAnalysis struct {
	Score             float64 `json:"score"`
	CapturesCount     int     `json:"captures_count"`
	AverageConfidence float64 `json:"average_confidence"`
}

// RemotePollResult is the normalized verdict produced by the poller. A nil
// *RemotePollResult means no conclusive verdict was obtained (timeout or
// exhaustion), which is distinct from an explicit UNKNOWN decision.
type RemotePollResult struct {
	Decision   Decision   `json:"decision"`
	Confidence float64    `json:"confidence"`
	Status     PollStatus `json:"status"`
	Reason     string     `json:"reason,omitempty"`
	// ProviderStatus is the raw session status reported by the remote
	// service (CREATED, IN_PROGRESS, SUCCEEDED, ...).
	ProviderStatus string `json:"provider_status,omitempty"`
}

// MergeSource identifies which signals produced a MergedResult.
type MergeSource string

const (
	SourceRemote   MergeSource = "aws"
	SourceFallback MergeSource = "fallback"
	SourceCombined MergeSource = "aws+local"
)

// MergedResult is the output of the merge engine and the single source of
// truth for liveness approval.
type MergedResult struct {
	IsLive     bool              `json:"is_live"`
	FinalScore float64           `json:"final_score"`
	Reason     string            `json:"reason"`
	Source     MergeSource       `json:"source"`
	Remote     *RemotePollResult `json:"remote,omitempty"`
	Local      *LocalAnalysis    `json:"local,omitempty"`
}

// Backend analysis statuses.
const (
	BackendApproved       = "APPROVED"
	BackendRejected       = "REJECTED"
	BackendReviewRequired = "REVIEW_REQUIRED"
)

// BackendAnalysis is the optional document/identity evaluation returned by
// the backend collaborator.
type BackendAnalysis struct {
	Status        string   `json:"status,omitempty"`
	IdentityScore *float64 `json:"identity_score,omitempty"`
	DocumentScore *float64 `json:"document_score,omitempty"`
	Observation   string   `json:"observation,omitempty"`
	Message       string   `json:"message,omitempty"`
}

// Status is the terminal outcome of a verification session.
type Status string

const (
	StatusApproved Status = "Approved"
	StatusRejected Status = "Rejected"
	StatusReview   Status = "Review"
)

// VideoArtifact describes the uploaded session recording.
type VideoArtifact struct {
	StorageKey string `json:"storage_key"`
	URL        string `json:"url,omitempty"`
	MimeType   string `json:"mime_type"`
	Size       int64  `json:"size"`
	DurationMS int64  `json:"duration_ms"`
}

// SessionSummary is the terminal artifact emitted once per completed
// session. Immutable once emitted.
type SessionSummary struct {
	SessionID      string            `json:"session_id"`
	CreatedAt      time.Time         `json:"created_at"`
	IsLive         bool              `json:"is_live"`
	LivenessScore  float64           `json:"liveness_score"`
	FaceMatchScore *float64          `json:"face_match_score,omitempty"`
	Status         Status            `json:"status"`
	Captures       []CaptureRecord   `json:"captures"`
	Video          *VideoArtifact    `json:"video,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// Phase is a session lifecycle state.
type Phase string

const (
	PhaseIdle           Phase = "idle"
	PhasePreparing      Phase = "preparing"
	PhaseCapturing      Phase = "capturing"
	PhaseFinalizing     Phase = "finalizing"
	PhaseAwaitingRemote Phase = "awaiting_remote"
	PhaseAnalyzing      Phase = "analyzing"
	PhaseDeciding       Phase = "deciding"
	PhaseCompleted      Phase = "completed"
	PhaseCancelled      Phase = "cancelled"
	PhaseFailed         Phase = "failed"
)

// Terminal reports whether the phase is a terminal state.
func (p Phase) Terminal() bool {
	switch p {
	case PhaseCompleted, PhaseCancelled, PhaseFailed:
		return true
	default:
		return false
	}
}

// SessionState is a read-only snapshot of the session controller state.
type SessionState struct {
	Phase    Phase `json:"phase"`
	Progress int   `json:"progress"`
	Aborted  bool  `json:"aborted"`
}
