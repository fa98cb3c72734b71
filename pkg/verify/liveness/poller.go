package liveness

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/dayfusion/liveness-gateway/pkg/verify"
)

const (
	// DefaultInterval is the gap between status requests.
	DefaultInterval = 1000 * time.Millisecond
	// DefaultMaxAttempts bounds the poll budget (~60s at the default
	// interval). The budget counts attempts, not wall clock.
	DefaultMaxAttempts = 60
)

// Poller states.
const (
	stateIdle int32 = iota
	statePolling
	stateResolved
	stateTimedOut
	stateCancelled
)

var (
	errTransport    = errors.New("liveness poll transport error")
	errInconclusive = errors.New("liveness session inconclusive")
)

// Poller retrieves the remote liveness verdict for one session. A Poller
// is single-use: a second concurrent Poll for the same session returns nil
// immediately instead of issuing a duplicate request loop.
type Poller struct {
	Client      verify.LivenessAPI
	Interval    time.Duration
	MaxAttempts int
	Logger      *slog.Logger

	// OnAttempt, when set, observes each issued status request.
	OnAttempt func(attempt int)

	state atomic.Int32
}

// Poll issues status requests at a fixed interval until a conclusive
// verdict, attempt exhaustion, or context cancellation. It resolves
// deterministically and never returns an error: nil means no conclusive
// verdict was obtained, and callers must treat that as a valid outcome.
func (p *Poller) Poll(ctx context.Context, remoteSessionID string) *verify.RemotePollResult {
	if p == nil || p.Client == nil {
		return nil
	}
	if !p.state.CompareAndSwap(stateIdle, statePolling) {
		return nil
	}

	interval := p.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	var (
		out          *verify.RemotePollResult
		attempt      int
		transportErr error
	)

	backoff := retry.WithMaxRetries(uint64(maxAttempts-1), retry.NewConstant(interval))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if p.OnAttempt != nil {
			p.OnAttempt(attempt)
		}

		raw, err := p.Client.GetResult(ctx, remoteSessionID)
		if err != nil {
			transportErr = err
			if p.Logger != nil {
				p.Logger.Warn("liveness status request failed",
					"remote_session_id", remoteSessionID,
					"attempt", attempt,
					"error", err,
				)
			}
			return retry.RetryableError(errTransport)
		}
		transportErr = nil

		result, conclusive := Normalize(raw)
		if !conclusive {
			return retry.RetryableError(errInconclusive)
		}
		out = result
		return nil
	})

	switch {
	case err == nil:
		p.state.Store(stateResolved)
		return out
	case ctx.Err() != nil:
		p.state.Store(stateCancelled)
		return nil
	case errors.Is(err, errTransport):
		// Transport exhaustion resolves conservatively as a failed
		// attempt rather than being silently ignored.
		if p.Logger != nil {
			p.Logger.Error("liveness polling exhausted on transport errors",
				"remote_session_id", remoteSessionID,
				"attempts", attempt,
				"error", transportErr,
			)
		}
		p.state.Store(stateResolved)
		return &verify.RemotePollResult{
			Decision:   verify.DecisionFake,
			Confidence: 0,
			Status:     verify.PollFailed,
			Reason:     "transport error",
		}
	default:
		// Budget exhausted without a conclusive verdict. Explicitly not
		// fraud; the merge engine routes this through the fallback path.
		p.state.Store(stateTimedOut)
		return nil
	}
}
