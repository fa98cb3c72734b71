// Package liveness polls the remote verification service until a
// conclusive verdict, budget exhaustion, or cancellation.
package liveness

import (
	"github.com/dayfusion/liveness-gateway/pkg/verify"
)

// Normalize maps a raw provider response to the canonical poll result.
// The second return is false while the session is still inconclusive:
// no status yet, CREATED, IN_PROGRESS, or an UNKNOWN decision with zero
// confidence.
func Normalize(raw verify.RawLivenessResult) (*verify.RemotePollResult, bool) {
	switch raw.Status {
	case "", verify.RemoteStatusCreated, verify.RemoteStatusInProgress:
		return nil, false
	}

	decision := verify.ParseDecision(raw.Decision)
	if decision == verify.DecisionUnknown && raw.Confidence == 0 {
		return nil, false
	}

	out := &verify.RemotePollResult{
		Decision:       decision,
		Confidence:     raw.Confidence,
		Reason:         raw.Reason,
		ProviderStatus: raw.Status,
	}

	switch {
	case raw.Status == verify.RemoteStatusSucceeded && decision != verify.DecisionUnknown && raw.Confidence > 0:
		out.Status = verify.PollSuccess
	case raw.Status == verify.RemoteStatusSucceeded:
		// Session finished but the evidence is weak.
		out.Status = verify.PollIncomplete
	default:
		out.Status = verify.PollFailed
	}
	return out, true
}
