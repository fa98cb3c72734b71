package liveness

import (
	"testing"

	"github.com/dayfusion/liveness-gateway/pkg/verify"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name       string
		raw        verify.RawLivenessResult
		conclusive bool
		want       verify.RemotePollResult
	}{
		{
			name:       "no status yet",
			raw:        verify.RawLivenessResult{},
			conclusive: false,
		},
		{
			name:       "created",
			raw:        verify.RawLivenessResult{Status: verify.RemoteStatusCreated},
			conclusive: false,
		},
		{
			name:       "in progress",
			raw:        verify.RawLivenessResult{Status: verify.RemoteStatusInProgress, Decision: "LIVE", Confidence: 0.9},
			conclusive: false,
		},
		{
			name:       "unknown with zero confidence",
			raw:        verify.RawLivenessResult{Status: verify.RemoteStatusSucceeded, Decision: "UNKNOWN", Confidence: 0},
			conclusive: false,
		},
		{
			name:       "succeeded live",
			raw:        verify.RawLivenessResult{Status: verify.RemoteStatusSucceeded, Decision: "LIVE", Confidence: 0.92},
			conclusive: true,
			want: verify.RemotePollResult{
				Decision: verify.DecisionLive, Confidence: 0.92,
				Status: verify.PollSuccess, ProviderStatus: verify.RemoteStatusSucceeded,
			},
		},
		{
			name:       "succeeded spoof",
			raw:        verify.RawLivenessResult{Status: verify.RemoteStatusSucceeded, Decision: "SPOOF", Confidence: 0.4},
			conclusive: true,
			want: verify.RemotePollResult{
				Decision: verify.DecisionSpoof, Confidence: 0.4,
				Status: verify.PollSuccess, ProviderStatus: verify.RemoteStatusSucceeded,
			},
		},
		{
			name:       "succeeded with weak evidence",
			raw:        verify.RawLivenessResult{Status: verify.RemoteStatusSucceeded, Decision: "UNKNOWN", Confidence: 0.1},
			conclusive: true,
			want: verify.RemotePollResult{
				Decision: verify.DecisionUnknown, Confidence: 0.1,
				Status: verify.PollIncomplete, ProviderStatus: verify.RemoteStatusSucceeded,
			},
		},
		{
			name:       "session failed",
			raw:        verify.RawLivenessResult{Status: verify.RemoteStatusFailed, Decision: "FAKE", Confidence: 0.2, Reason: "replay"},
			conclusive: true,
			want: verify.RemotePollResult{
				Decision: verify.DecisionFake, Confidence: 0.2,
				Status: verify.PollFailed, Reason: "replay", ProviderStatus: verify.RemoteStatusFailed,
			},
		},
		{
			name:       "session expired",
			raw:        verify.RawLivenessResult{Status: verify.RemoteStatusExpired, Decision: "", Confidence: 0.3},
			conclusive: true,
			want: verify.RemotePollResult{
				Decision: verify.DecisionUnknown, Confidence: 0.3,
				Status: verify.PollFailed, ProviderStatus: verify.RemoteStatusExpired,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, conclusive := Normalize(tt.raw)
			if conclusive != tt.conclusive {
				t.Fatalf("conclusive = %v, want %v", conclusive, tt.conclusive)
			}
			if !conclusive {
				if got != nil {
					t.Fatalf("inconclusive result must be nil, got %+v", got)
				}
				return
			}
			if *got != tt.want {
				t.Fatalf("Normalize() = %+v, want %+v", *got, tt.want)
			}
		})
	}
}
