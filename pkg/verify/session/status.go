package session

import (
	"fmt"

	"github.com/dayfusion/liveness-gateway/pkg/verify"
)

// Identity score bands for the backend numeric fallback (0..1 scale).
const (
	identityApproveScore = 0.80
	identityReviewScore  = 0.50
)

// Document score bands (0..100 scale).
const (
	documentApproveScore = 80.0
	documentReviewScore  = 70.0
)

// Face similarity below this routes to manual review instead of approval.
const faceMatchStrongScore = 80.0

// FinalStatus derives the terminal session status from the merged liveness
// verdict, the optional backend analysis, and the optional document face
// match. Liveness rejection always wins: no backend or match signal can
// approve a session the merge engine rejected.
func FinalStatus(m verify.MergedResult, backend *verify.BackendAnalysis, faceMatch *float64, documentProvided bool) (verify.Status, []string) {
	var notes []string

	if !m.IsLive {
		notes = append(notes, "liveness not confirmed")
		return verify.StatusRejected, notes
	}

	if documentProvided && faceMatch != nil && *faceMatch == 0 {
		notes = append(notes, "document face match found no matching face")
		return verify.StatusRejected, notes
	}

	if backend != nil {
		switch backend.Status {
		case verify.BackendApproved:
			// A backend approval is only honored when the remote service
			// itself confirmed liveness; fallback-path sessions cannot be
			// approved by the backend alone.
			if m.Source == verify.SourceFallback || m.Remote == nil || m.Remote.Decision != verify.DecisionLive {
				notes = append(notes, "backend approval discarded without remote liveness confirmation")
				return verify.StatusRejected, notes
			}
			notes = append(notes, "backend analysis approved")
			return verify.StatusApproved, notes
		case verify.BackendRejected:
			notes = append(notes, "backend analysis rejected")
			return verify.StatusRejected, notes
		case verify.BackendReviewRequired:
			notes = append(notes, "backend analysis requires review")
			return verify.StatusReview, notes
		}

		if backend.IdentityScore != nil {
			score := *backend.IdentityScore
			notes = append(notes, fmt.Sprintf("identity score %.2f", score))
			switch {
			case score >= identityApproveScore:
				return verify.StatusApproved, notes
			case score >= identityReviewScore:
				return verify.StatusReview, notes
			default:
				return verify.StatusRejected, notes
			}
		}
		if backend.DocumentScore != nil {
			score := *backend.DocumentScore
			notes = append(notes, fmt.Sprintf("document score %.1f", score))
			switch {
			case score >= documentApproveScore:
				return verify.StatusApproved, notes
			case score >= documentReviewScore:
				return verify.StatusReview, notes
			default:
				return verify.StatusRejected, notes
			}
		}
	}

	if faceMatch != nil && *faceMatch < faceMatchStrongScore {
		notes = append(notes, fmt.Sprintf("face match %.1f below strong-match threshold", *faceMatch))
		return verify.StatusReview, notes
	}

	return verify.StatusApproved, notes
}
