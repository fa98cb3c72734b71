// Package session runs the verification session lifecycle: camera setup,
// guided capture, recording, remote polling, analysis and the final
// decision.
package session

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dayfusion/liveness-gateway/pkg/verify"
	"github.com/dayfusion/liveness-gateway/pkg/verify/capture"
	"github.com/dayfusion/liveness-gateway/pkg/verify/liveness"
	"github.com/dayfusion/liveness-gateway/pkg/verify/merge"
)

// Progress checkpoints per phase. Capturing interpolates between its
// bounds as steps complete.
const (
	progressCapturingStart = 10
	progressCapturingEnd   = 70
	progressFinalizing     = 75
	progressAwaitingRemote = 80
	progressAnalyzing      = 90
	progressDeciding       = 95
	progressDone           = 100
)

// Config carries per-session settings.
type Config struct {
	Steps []verify.VoiceStep
	// RequireRemote makes a failed remote session creation fatal instead
	// of degrading to the local-only fallback path.
	RequireRemote   bool
	PollInterval    time.Duration
	PollMaxAttempts int
	// Document is an optional identity document image supplied at session
	// start, compared against the reference capture.
	Document []byte
}

// Collaborators are the external services a session drives. Camera,
// Scorer and Uploader are required; the rest degrade gracefully when nil.
type Collaborators struct {
	Camera    verify.Camera
	Recorder  capture.Recorder
	Scorer    verify.FrameScorer
	Uploader  verify.Uploader
	Announcer verify.Announcer
	Liveness  verify.LivenessAPI
	Analyzer  verify.DocumentAnalyzer
	Matcher   verify.FaceMatcher
}

// Engine executes one verification session from start to terminal state.
// An Engine is single-use.
type Engine struct {
	id     string
	cfg    Config
	col    Collaborators
	logger *slog.Logger

	// OnState observes every state transition.
	OnState func(verify.SessionState)
	// OnCapture observes each retained capture.
	OnCapture func(verify.CaptureRecord)
	// OnPollAttempt observes remote poll attempts.
	OnPollAttempt func(attempt int)

	mu      sync.Mutex
	state   verify.SessionState
	cancel  context.CancelFunc
	aborted atomic.Bool
	started atomic.Bool
}

// New creates an engine for one session.
func New(id string, cfg Config, col Collaborators, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.Steps) == 0 {
		cfg.Steps = verify.DefaultSteps()
	}
	return &Engine{
		id:     id,
		cfg:    cfg,
		col:    col,
		logger: logger.With("session_id", id),
		state:  verify.SessionState{Phase: verify.PhaseIdle},
	}
}

// State returns a snapshot of the current session state.
func (e *Engine) State() verify.SessionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Cancel requests cooperative cancellation. The running phase finishes its
// current operation and the session settles in the cancelled state; blocked
// waits (step delays, remote polling) are interrupted.
func (e *Engine) Cancel() {
	if e.aborted.Swap(true) {
		return
	}
	e.mu.Lock()
	e.state.Aborted = true
	cancel := e.cancel
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	e.logger.Info("session cancellation requested")
}

func (e *Engine) setPhase(phase verify.Phase, progress int) {
	e.mu.Lock()
	e.state.Phase = phase
	if progress > e.state.Progress {
		e.state.Progress = progress
	}
	snapshot := e.state
	e.mu.Unlock()

	e.logger.Info("session phase", "phase", phase, "progress", snapshot.Progress)
	if e.OnState != nil {
		e.OnState(snapshot)
	}
}

func (e *Engine) setProgress(progress int) {
	e.mu.Lock()
	if progress <= e.state.Progress {
		e.mu.Unlock()
		return
	}
	e.state.Progress = progress
	snapshot := e.state
	e.mu.Unlock()

	if e.OnState != nil {
		e.OnState(snapshot)
	}
}

func (e *Engine) fail(err error) (*verify.SessionSummary, error) {
	e.setPhase(verify.PhaseFailed, 0)
	return nil, err
}

func (e *Engine) cancelled() (*verify.SessionSummary, error) {
	e.setPhase(verify.PhaseCancelled, 0)
	return nil, verify.NewCancelledError()
}

// Run executes the session to a terminal state. It returns a summary only
// for completed sessions; cancelled sessions return a cancelled error and
// no summary.
func (e *Engine) Run(ctx context.Context) (*verify.SessionSummary, error) {
	if e.started.Swap(true) {
		return nil, verify.NewInvalidRequestError("session already started")
	}
	if e.col.Camera == nil || e.col.Scorer == nil || e.col.Uploader == nil {
		return e.fail(verify.NewSetupError("camera, scorer and uploader are required"))
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	e.mu.Lock()
	e.cancel = cancel
	e.mu.Unlock()

	startedAt := time.Now().UTC()

	// Preparing: acquire media and open the remote session.
	e.setPhase(verify.PhasePreparing, 0)

	src, err := e.col.Camera.Acquire(ctx)
	if err != nil {
		if e.aborted.Load() {
			return e.cancelled()
		}
		e.logger.Error("media acquisition failed", "error", err)
		return e.fail(verify.NewSetupError("unable to acquire a media stream"))
	}
	defer src.Release()

	remoteID := ""
	if e.col.Liveness != nil {
		remoteID, err = e.col.Liveness.CreateSession(ctx)
		if err != nil {
			if e.cfg.RequireRemote {
				e.logger.Error("remote session creation failed", "error", err)
				return e.fail(verify.NewProviderError("unable to create the remote liveness session"))
			}
			e.logger.Warn("remote session creation failed, continuing on local analysis", "error", err)
			remoteID = ""
		}
	}
	if e.aborted.Load() {
		return e.cancelled()
	}

	// Capturing: record continuously while the guided sequence runs.
	e.setPhase(verify.PhaseCapturing, progressCapturingStart)

	var rec capture.RecorderHandle
	if e.col.Recorder != nil {
		rec, err = e.col.Recorder.Start(src)
		if err != nil {
			// The session survives without a recording artifact.
			e.logger.Warn("session recording unavailable", "error", err)
			rec = nil
		}
	}

	seq := &capture.Sequencer{
		Steps:     e.cfg.Steps,
		Scorer:    e.col.Scorer,
		Uploader:  e.col.Uploader,
		Announcer: e.col.Announcer,
		Logger:    e.logger,
		OnCapture: e.OnCapture,
		OnProgress: func(pct int) {
			span := progressCapturingEnd - progressCapturingStart
			e.setProgress(progressCapturingStart + pct*span/100)
		},
	}
	seqRes, err := seq.Run(ctx, e.id, src, e.aborted.Load)
	if err != nil {
		e.stopRecording(rec)
		return e.fail(err)
	}

	// Finalizing: the recorder is stopped and awaited before the source
	// is released, so no trailing chunks are lost.
	e.setPhase(verify.PhaseFinalizing, progressFinalizing)

	video := e.finishRecording(ctx, rec)
	if e.aborted.Load() {
		return e.cancelled()
	}

	local := localAnalysis(seqRes.Captures)

	// Awaiting remote: poll for the provider verdict.
	e.setPhase(verify.PhaseAwaitingRemote, progressAwaitingRemote)

	var remote *verify.RemotePollResult
	if remoteID != "" {
		poller := &liveness.Poller{
			Client:      e.col.Liveness,
			Interval:    e.cfg.PollInterval,
			MaxAttempts: e.cfg.PollMaxAttempts,
			Logger:      e.logger,
			OnAttempt:   e.OnPollAttempt,
		}
		remote = poller.Poll(ctx, remoteID)
	}
	if e.aborted.Load() {
		// A verdict that races with cancellation is discarded.
		return e.cancelled()
	}

	// Analyzing: optional document face match and backend analysis.
	e.setPhase(verify.PhaseAnalyzing, progressAnalyzing)

	faceMatch := e.matchDocument(ctx, seqRes.ReferenceFrame)
	documentKey := e.uploadDocument(ctx)
	backend := e.analyzeDocument(ctx, documentKey, seqRes.ReferenceKey, local.Score)
	if e.aborted.Load() {
		return e.cancelled()
	}

	// Deciding: merge the signals and derive the terminal status.
	e.setPhase(verify.PhaseDeciding, progressDeciding)

	merged := merge.Merge(local, remote)
	status, notes := FinalStatus(merged, backend, faceMatch, len(e.cfg.Document) > 0)

	summary := &verify.SessionSummary{
		SessionID:      e.id,
		CreatedAt:      startedAt,
		IsLive:         merged.IsLive,
		LivenessScore:  merged.FinalScore,
		FaceMatchScore: faceMatch,
		Status:         status,
		Captures:       seqRes.Captures,
		Video:          video,
		Metadata: map[string]string{
			"merge_source": string(merged.Source),
			"merge_reason": merged.Reason,
		},
	}
	for _, note := range notes {
		e.logger.Info("decision note", "note", note)
	}

	e.setPhase(verify.PhaseCompleted, progressDone)
	e.logger.Info("session completed",
		"status", status,
		"is_live", merged.IsLive,
		"score", merged.FinalScore,
		"source", merged.Source,
	)
	return summary, nil
}

// stopRecording discards an in-flight recording on the failure path.
func (e *Engine) stopRecording(rec capture.RecorderHandle) {
	if rec == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := rec.Stop(ctx); err != nil {
		e.logger.Warn("recording stop failed", "error", err)
	}
}

// finishRecording stops the recorder, uploads the buffered video, and
// returns the stored artifact. Failures degrade to a session without a
// video artifact.
func (e *Engine) finishRecording(ctx context.Context, rec capture.RecorderHandle) *verify.VideoArtifact {
	if rec == nil {
		return nil
	}
	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	recording, err := rec.Stop(stopCtx)
	if err != nil {
		e.logger.Warn("recording stop failed", "error", err)
		return nil
	}
	if len(recording.Data) == 0 {
		return nil
	}
	uploaded, err := e.col.Uploader.Upload(ctx, e.id, "session-video", recording.Data, recording.MimeType)
	if err != nil {
		e.logger.Warn("video upload failed", "error", err)
		return nil
	}
	return &verify.VideoArtifact{
		StorageKey: uploaded.Key,
		URL:        uploaded.URL,
		MimeType:   recording.MimeType,
		Size:       int64(len(recording.Data)),
		DurationMS: recording.DurationMS,
	}
}

// matchDocument compares the reference capture against the supplied
// document image. Failures are logged and leave the match unset.
func (e *Engine) matchDocument(ctx context.Context, reference []byte) *float64 {
	if e.col.Matcher == nil || len(e.cfg.Document) == 0 || len(reference) == 0 {
		return nil
	}
	match, err := e.col.Matcher.CompareFaces(ctx, reference, e.cfg.Document)
	if err != nil {
		e.logger.Warn("document face match failed", "error", err)
		return nil
	}
	e.logger.Info("document face match", "similarity", match.Similarity, "matched", match.Matched)
	similarity := match.Similarity
	return &similarity
}

// uploadDocument stores the supplied document image, if any, so the
// backend analysis can reference it.
func (e *Engine) uploadDocument(ctx context.Context) string {
	if len(e.cfg.Document) == 0 {
		return ""
	}
	uploaded, err := e.col.Uploader.Upload(ctx, e.id, "document", e.cfg.Document, "image/jpeg")
	if err != nil {
		e.logger.Warn("document upload failed", "error", err)
		return ""
	}
	return uploaded.Key
}

// analyzeDocument invokes the optional backend analysis. Failures are
// logged and leave the analysis unset.
func (e *Engine) analyzeDocument(ctx context.Context, documentKey, selfieKey string, localScore float64) *verify.BackendAnalysis {
	if e.col.Analyzer == nil {
		return nil
	}
	backend, err := e.col.Analyzer.Analyze(ctx, verify.AnalyzeRequest{
		SessionID:   e.id,
		DocumentKey: documentKey,
		SelfieKey:   selfieKey,
		LocalScore:  localScore,
	})
	if err != nil {
		e.logger.Warn("backend analysis failed", "error", err)
		return nil
	}
	return backend
}

// localAnalysis aggregates the retained captures into the local score.
func localAnalysis(captures []verify.CaptureRecord) verify.LocalAnalysis {
	out := verify.LocalAnalysis{CapturesCount: len(captures)}
	if len(captures) == 0 {
		return out
	}
	var sum float64
	for _, c := range captures {
		sum += c.Confidence
	}
	out.AverageConfidence = sum / float64(len(captures))
	out.Score = out.AverageConfidence
	return out
}
