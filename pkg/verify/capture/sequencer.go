// Package capture drives the voice-guided frame sequence and the
// concurrent session recording.
package capture

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dayfusion/liveness-gateway/pkg/verify"
)

// SequenceResult is the outcome of one guided capture run.
type SequenceResult struct {
	Captures []verify.CaptureRecord
	// ReferenceFrame is the raw bytes of the front-pose frame, falling
	// back to the first successfully captured frame.
	ReferenceFrame []byte
	// ReferenceKey is the storage key of the reference frame.
	ReferenceKey string
}

// Sequencer iterates the ordered pose instructions, capturing one frame
// per step. Capture, scoring and upload failures skip the step; they are
// never fatal to the run.
type Sequencer struct {
	Steps     []verify.VoiceStep
	Scorer    verify.FrameScorer
	Uploader  verify.Uploader
	Announcer verify.Announcer
	Logger    *slog.Logger

	// OnProgress observes a monotonically non-decreasing percentage
	// mapped linearly across the step count.
	OnProgress func(pct int)
	// OnCapture observes each appended record.
	OnCapture func(rec verify.CaptureRecord)

	// Sleep awaits a step delay; nil uses a timer. Tests inject a stub.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Run executes the sequence against a running media source. The aborted
// flag is checked around every suspension point; once it reports true the
// sequencer stops advancing, keeping the records collected so far.
func (s *Sequencer) Run(ctx context.Context, sessionID string, src verify.MediaSource, aborted func() bool) (SequenceResult, error) {
	var out SequenceResult

	if len(s.Steps) == 0 {
		return out, verify.NewInvalidRequestError("capture sequence is empty")
	}
	if s.Scorer == nil || s.Uploader == nil {
		return out, verify.NewInvalidRequestError("scorer and uploader are required")
	}
	if aborted == nil {
		aborted = func() bool { return false }
	}

	sleep := s.Sleep
	if sleep == nil {
		sleep = sleepTimer
	}

	haveFrontRef := false
	maxProgress := 0
	report := func(pct int) {
		if s.OnProgress == nil {
			return
		}
		// Never regress on out-of-order completions.
		if pct > maxProgress {
			maxProgress = pct
		}
		s.OnProgress(maxProgress)
	}

	for i, step := range s.Steps {
		if aborted() {
			return out, nil
		}

		if s.Announcer != nil {
			s.Announcer.Announce(step, i)
		}

		if step.DelayMS > 0 {
			if err := sleep(ctx, time.Duration(step.DelayMS)*time.Millisecond); err != nil {
				return out, nil
			}
		}
		if aborted() {
			return out, nil
		}

		frame, err := src.CaptureFrame(ctx)
		if err != nil {
			s.logStepSkip(step, i, "capture failed", err)
			report(stepPct(i+1, len(s.Steps)))
			continue
		}
		if aborted() {
			return out, nil
		}

		confidence, err := s.Scorer.ScoreFaceConfidence(ctx, frame)
		if err != nil {
			s.logStepSkip(step, i, "scoring failed", err)
			report(stepPct(i+1, len(s.Steps)))
			continue
		}
		if confidence <= 0 {
			// No face evidence in the frame; discard.
			s.logStepSkip(step, i, "zero confidence", nil)
			report(stepPct(i+1, len(s.Steps)))
			continue
		}

		label := fmt.Sprintf("capture-%02d-%s", i, step.Position)
		uploaded, err := s.Uploader.Upload(ctx, sessionID, label, frame, "image/jpeg")
		if err != nil {
			s.logStepSkip(step, i, "upload failed", err)
			report(stepPct(i+1, len(s.Steps)))
			continue
		}

		rec := verify.CaptureRecord{
			Position:   step.Position,
			Confidence: confidence,
			StorageKey: uploaded.Key,
			PreviewRef: uploaded.URL,
		}
		out.Captures = append(out.Captures, rec)
		if s.OnCapture != nil {
			s.OnCapture(rec)
		}

		// Prefer the first front pose as the reference frame; otherwise
		// keep the first successful capture.
		if out.ReferenceFrame == nil || (step.Position == verify.PositionFront && !haveFrontRef) {
			out.ReferenceFrame = frame
			out.ReferenceKey = uploaded.Key
			haveFrontRef = step.Position == verify.PositionFront
		}

		report(stepPct(i+1, len(s.Steps)))

		if aborted() {
			return out, nil
		}
	}

	return out, nil
}

func stepPct(done, total int) int {
	return done * 100 / total
}

func (s *Sequencer) logStepSkip(step verify.VoiceStep, index int, reason string, err error) {
	if s.Logger == nil {
		return
	}
	s.Logger.Warn("capture step skipped",
		"step", index,
		"position", step.Position,
		"reason", reason,
		"error", err,
	)
}

func sleepTimer(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
