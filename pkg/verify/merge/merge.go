// Package merge combines the locally computed frame aggregate with the
// remote liveness verdict into a single trust result. Local signals cannot
// detect presentation attacks, so the absence of a remote verdict never
// auto-approves and is additionally penalized.
package merge

import (
	"math"

	"github.com/dayfusion/liveness-gateway/pkg/verify"
)

const (
	// liveConfidenceThreshold is the minimum remote confidence for a LIVE
	// decision to count as confirmed.
	liveConfidenceThreshold = 0.7

	// fallbackPenalty is the flat deduction applied when no remote verdict
	// confirmed the session. Fixed on purpose: a tunable penalty would let
	// deployment config weaken the conservative path.
	fallbackPenalty = 30

	// confirmedScoreFloor is the minimum final score once the remote
	// service confirmed LIVE.
	confirmedScoreFloor = 80

	// failureScoreCap caps the final score when the remote service
	// explicitly failed the session.
	failureScoreCap = 30
)

// Merge is a pure function combining the local aggregate and the remote
// poll result. Precedence is strict and applied in order; remote being nil
// means no conclusive verdict was obtained.
func Merge(local verify.LocalAnalysis, remote *verify.RemotePollResult) verify.MergedResult {
	l := local

	if remote == nil {
		return fallbackResult(&l, nil, "no remote verdict")
	}

	out := verify.MergedResult{Remote: remote, Local: &l}

	switch remote.Decision {
	case verify.DecisionFake, verify.DecisionSpoof:
		// Terminal: nothing downstream can reverse an explicit fraud verdict.
		out.IsLive = false
		out.FinalScore = 0
		out.Reason = "remote fraud verdict"
		out.Source = verify.SourceRemote
		return out
	case verify.DecisionLive:
		if remote.Confidence >= liveConfidenceThreshold {
			out.IsLive = true
			out.FinalScore = math.Max(l.Score, confirmedScoreFloor)
			out.Reason = "remote confirmed live"
			out.Source = verify.SourceCombined
			return out
		}
	}

	if incomplete(remote) {
		return fallbackResult(&l, remote, "remote analysis incomplete")
	}

	if remote.Status == verify.PollFailed && remote.Decision != verify.DecisionUnknown {
		out.IsLive = false
		out.FinalScore = math.Min(l.Score, failureScoreCap)
		out.Reason = "remote analysis failed"
		out.Source = verify.SourceRemote
		return out
	}

	return fallbackResult(&l, remote, "inconclusive remote result")
}

func incomplete(remote *verify.RemotePollResult) bool {
	if remote.Decision == verify.DecisionUnknown {
		return true
	}
	switch remote.ProviderStatus {
	case verify.RemoteStatusCreated, verify.RemoteStatusInProgress:
		return true
	}
	return remote.Status == verify.PollIncomplete
}

func fallbackResult(local *verify.LocalAnalysis, remote *verify.RemotePollResult, reason string) verify.MergedResult {
	return verify.MergedResult{
		IsLive:     false,
		FinalScore: math.Max(0, local.Score-fallbackPenalty),
		Reason:     reason,
		Source:     verify.SourceFallback,
		Remote:     remote,
		Local:      local,
	}
}
