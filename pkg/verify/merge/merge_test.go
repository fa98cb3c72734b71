package merge

import (
	"testing"

	"github.com/dayfusion/liveness-gateway/pkg/verify"
)

func local(score float64) verify.LocalAnalysis {
	return verify.LocalAnalysis{Score: score, CapturesCount: 3, AverageConfidence: score}
}

func TestFraudPrecedence(t *testing.T) {
	// An explicit fraud verdict zeroes the score regardless of local signals.
	for _, decision := range []verify.Decision{verify.DecisionFake, verify.DecisionSpoof} {
		for _, score := range []float64{0, 40, 98, 100} {
			remote := &verify.RemotePollResult{
				Decision:   decision,
				Confidence: 0.95,
				Status:     verify.PollSuccess,
			}
			got := Merge(local(score), remote)
			if got.IsLive {
				t.Fatalf("decision=%s local=%v: IsLive must be false", decision, score)
			}
			if got.FinalScore != 0 {
				t.Fatalf("decision=%s local=%v: FinalScore = %v, want 0", decision, score, got.FinalScore)
			}
			if got.Source != verify.SourceRemote {
				t.Fatalf("decision=%s: Source = %q, want aws", decision, got.Source)
			}
		}
	}
}

func TestNoVerdictConservatism(t *testing.T) {
	tests := []struct {
		localScore float64
		wantScore  float64
	}{
		{0, 0},
		{10, 0},
		{30, 0},
		{31, 1},
		{75, 45},
		{100, 70},
	}
	for _, tt := range tests {
		got := Merge(local(tt.localScore), nil)
		if got.IsLive {
			t.Fatalf("local=%v: IsLive must be false without a remote verdict", tt.localScore)
		}
		if got.FinalScore != tt.wantScore {
			t.Fatalf("local=%v: FinalScore = %v, want %v", tt.localScore, got.FinalScore, tt.wantScore)
		}
		if got.Source != verify.SourceFallback {
			t.Fatalf("local=%v: Source = %q, want fallback", tt.localScore, got.Source)
		}
	}
}

func TestConfirmationThreshold(t *testing.T) {
	below := Merge(local(90), &verify.RemotePollResult{
		Decision: verify.DecisionLive, Confidence: 0.69, Status: verify.PollSuccess,
	})
	if below.IsLive {
		t.Fatal("confidence 0.69 must not confirm live")
	}
	at := Merge(local(90), &verify.RemotePollResult{
		Decision: verify.DecisionLive, Confidence: 0.70, Status: verify.PollSuccess,
	})
	if !at.IsLive {
		t.Fatal("confidence 0.70 must confirm live")
	}
	if at.Source != verify.SourceCombined {
		t.Fatalf("Source = %q, want aws+local", at.Source)
	}
}

func TestScoreFloorOnConfirmation(t *testing.T) {
	remote := &verify.RemotePollResult{Decision: verify.DecisionLive, Confidence: 0.9, Status: verify.PollSuccess}

	low := Merge(local(40), remote)
	if low.FinalScore != 80 {
		t.Fatalf("FinalScore = %v, want floor of 80", low.FinalScore)
	}
	high := Merge(local(95), remote)
	if high.FinalScore != 95 {
		t.Fatalf("FinalScore = %v, want local score 95", high.FinalScore)
	}
}

func TestIncompleteRemoteAnalysis(t *testing.T) {
	tests := []struct {
		name   string
		remote *verify.RemotePollResult
	}{
		{
			name: "unknown decision",
			remote: &verify.RemotePollResult{
				Decision: verify.DecisionUnknown, Confidence: 0.4, Status: verify.PollIncomplete,
			},
		},
		{
			name: "provider still created",
			remote: &verify.RemotePollResult{
				Decision: verify.DecisionLive, Confidence: 0.9, Status: verify.PollFailed,
				ProviderStatus: verify.RemoteStatusCreated,
			},
		},
		{
			name: "provider in progress",
			remote: &verify.RemotePollResult{
				Decision: verify.DecisionLive, Confidence: 0.3, Status: verify.PollFailed,
				ProviderStatus: verify.RemoteStatusInProgress,
			},
		},
		{
			name: "incomplete status",
			remote: &verify.RemotePollResult{
				Decision: verify.DecisionLive, Confidence: 0.2, Status: verify.PollIncomplete,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Merge(local(75), tt.remote)
			if got.IsLive {
				t.Fatal("incomplete analysis must not approve")
			}
			if got.FinalScore != 45 {
				t.Fatalf("FinalScore = %v, want 45 (75-30)", got.FinalScore)
			}
			if got.Source != verify.SourceFallback {
				t.Fatalf("Source = %q, want fallback", got.Source)
			}
		})
	}
}

func TestExplicitRemoteFailure(t *testing.T) {
	remote := &verify.RemotePollResult{
		Decision: verify.DecisionLive, Confidence: 0.2,
		Status: verify.PollFailed, ProviderStatus: verify.RemoteStatusFailed,
	}
	got := Merge(local(90), remote)
	if got.IsLive {
		t.Fatal("failed remote analysis must not approve")
	}
	if got.FinalScore != 30 {
		t.Fatalf("FinalScore = %v, want min(90,30)=30", got.FinalScore)
	}
	if got.Source != verify.SourceRemote {
		t.Fatalf("Source = %q, want aws", got.Source)
	}

	low := Merge(local(20), remote)
	if low.FinalScore != 20 {
		t.Fatalf("FinalScore = %v, want min(20,30)=20", low.FinalScore)
	}
}

func TestScenarioA(t *testing.T) {
	got := Merge(local(90), &verify.RemotePollResult{
		Decision: verify.DecisionLive, Confidence: 0.85, Status: verify.PollSuccess,
	})
	if !got.IsLive || got.FinalScore != 90 || got.Source != verify.SourceCombined {
		t.Fatalf("scenario A: got %+v", got)
	}
}

func TestScenarioC(t *testing.T) {
	got := Merge(local(98), &verify.RemotePollResult{
		Decision: verify.DecisionSpoof, Confidence: 0.95, Status: verify.PollSuccess,
	})
	if got.IsLive || got.FinalScore != 0 {
		t.Fatalf("scenario C: got %+v", got)
	}
}

func TestScenarioD(t *testing.T) {
	got := Merge(local(75), &verify.RemotePollResult{
		Decision: verify.DecisionUnknown, Confidence: 0,
		Status: verify.PollIncomplete, ProviderStatus: verify.RemoteStatusCreated,
	})
	if got.IsLive || got.FinalScore != 45 || got.Source != verify.SourceFallback {
		t.Fatalf("scenario D: got %+v", got)
	}
}
