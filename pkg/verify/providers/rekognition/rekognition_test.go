package rekognition

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsrekognition "github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"
	"github.com/aws/smithy-go"

	"github.com/dayfusion/liveness-gateway/pkg/verify"
)

type fakeAPI struct {
	detectOut  *awsrekognition.DetectFacesOutput
	detectErr  error
	compareOut *awsrekognition.CompareFacesOutput
	compareErr error
	createOut  *awsrekognition.CreateFaceLivenessSessionOutput
	createErr  error
	resultsOut *awsrekognition.GetFaceLivenessSessionResultsOutput
	resultsErr error
}

func (f *fakeAPI) DetectFaces(ctx context.Context, params *awsrekognition.DetectFacesInput, optFns ...func(*awsrekognition.Options)) (*awsrekognition.DetectFacesOutput, error) {
	return f.detectOut, f.detectErr
}

func (f *fakeAPI) CompareFaces(ctx context.Context, params *awsrekognition.CompareFacesInput, optFns ...func(*awsrekognition.Options)) (*awsrekognition.CompareFacesOutput, error) {
	return f.compareOut, f.compareErr
}

func (f *fakeAPI) CreateFaceLivenessSession(ctx context.Context, params *awsrekognition.CreateFaceLivenessSessionInput, optFns ...func(*awsrekognition.Options)) (*awsrekognition.CreateFaceLivenessSessionOutput, error) {
	return f.createOut, f.createErr
}

func (f *fakeAPI) GetFaceLivenessSessionResults(ctx context.Context, params *awsrekognition.GetFaceLivenessSessionResultsInput, optFns ...func(*awsrekognition.Options)) (*awsrekognition.GetFaceLivenessSessionResultsOutput, error) {
	return f.resultsOut, f.resultsErr
}

func newTestClient(api *fakeAPI) *Client {
	return &Client{api: api}
}

func TestScoreFaceConfidence(t *testing.T) {
	t.Run("face found", func(t *testing.T) {
		c := newTestClient(&fakeAPI{detectOut: &awsrekognition.DetectFacesOutput{
			FaceDetails: []types.FaceDetail{{Confidence: aws.Float32(97.4)}},
		}})
		got, err := c.ScoreFaceConfidence(context.Background(), []byte("frame"))
		if err != nil {
			t.Fatalf("error: %v", err)
		}
		if got < 97.3 || got > 97.5 {
			t.Fatalf("confidence = %v", got)
		}
	})

	t.Run("no face", func(t *testing.T) {
		c := newTestClient(&fakeAPI{detectOut: &awsrekognition.DetectFacesOutput{}})
		got, err := c.ScoreFaceConfidence(context.Background(), []byte("frame"))
		if err != nil || got != 0 {
			t.Fatalf("got %v, %v", got, err)
		}
	})

	t.Run("provider error", func(t *testing.T) {
		c := newTestClient(&fakeAPI{detectErr: errors.New("throttled")})
		if _, err := c.ScoreFaceConfidence(context.Background(), []byte("frame")); err == nil {
			t.Fatal("expected an error")
		}
	})
}

func TestCompareFaces(t *testing.T) {
	t.Run("match", func(t *testing.T) {
		c := newTestClient(&fakeAPI{compareOut: &awsrekognition.CompareFacesOutput{
			FaceMatches: []types.CompareFacesMatch{{Similarity: aws.Float32(93.2)}},
		}})
		got, err := c.CompareFaces(context.Background(), []byte("a"), []byte("b"))
		if err != nil {
			t.Fatalf("error: %v", err)
		}
		if !got.Matched || got.Similarity < 93 {
			t.Fatalf("match = %+v", got)
		}
	})

	t.Run("below threshold", func(t *testing.T) {
		c := newTestClient(&fakeAPI{compareOut: &awsrekognition.CompareFacesOutput{}})
		got, err := c.CompareFaces(context.Background(), []byte("a"), []byte("b"))
		if err != nil {
			t.Fatalf("error: %v", err)
		}
		if got.Matched || got.Similarity != 0 || got.Reason != "NO_MATCH" {
			t.Fatalf("match = %+v", got)
		}
	})

	t.Run("no detectable face is a verdict", func(t *testing.T) {
		apiErr := &smithy.GenericAPIError{Code: "InvalidParameterException", Message: "no faces"}
		c := newTestClient(&fakeAPI{compareErr: apiErr})
		got, err := c.CompareFaces(context.Background(), []byte("a"), []byte("b"))
		if err != nil {
			t.Fatalf("error: %v", err)
		}
		if got.Matched || got.Similarity != 0 || got.Reason != "NO_FACE_DETECTED" {
			t.Fatalf("match = %+v", got)
		}
	})

	t.Run("other errors propagate", func(t *testing.T) {
		apiErr := &smithy.GenericAPIError{Code: "AccessDeniedException"}
		c := newTestClient(&fakeAPI{compareErr: apiErr})
		if _, err := c.CompareFaces(context.Background(), []byte("a"), []byte("b")); err == nil {
			t.Fatal("expected an error")
		}
	})
}

func TestCreateSession(t *testing.T) {
	c := newTestClient(&fakeAPI{createOut: &awsrekognition.CreateFaceLivenessSessionOutput{
		SessionId: aws.String("remote-42"),
	}})
	got, err := c.CreateSession(context.Background())
	if err != nil || got != "remote-42" {
		t.Fatalf("got %q, %v", got, err)
	}

	c = newTestClient(&fakeAPI{createOut: &awsrekognition.CreateFaceLivenessSessionOutput{}})
	if _, err := c.CreateSession(context.Background()); err == nil {
		t.Fatal("expected an error for an empty session id")
	}
}

func TestGetResult(t *testing.T) {
	tests := []struct {
		name           string
		out            *awsrekognition.GetFaceLivenessSessionResultsOutput
		wantDecision   string
		wantConfidence float64
		wantStatus     string
	}{
		{
			name: "live",
			out: &awsrekognition.GetFaceLivenessSessionResultsOutput{
				Status: types.LivenessSessionStatusSucceeded, Confidence: aws.Float32(96),
			},
			wantDecision: "LIVE", wantConfidence: 0.96, wantStatus: "SUCCEEDED",
		},
		{
			name: "spoof",
			out: &awsrekognition.GetFaceLivenessSessionResultsOutput{
				Status: types.LivenessSessionStatusSucceeded, Confidence: aws.Float32(42),
			},
			wantDecision: "SPOOF", wantConfidence: 0.42, wantStatus: "SUCCEEDED",
		},
		{
			name: "in progress",
			out: &awsrekognition.GetFaceLivenessSessionResultsOutput{
				Status: types.LivenessSessionStatusInProgress,
			},
			wantDecision: "UNKNOWN", wantConfidence: 0, wantStatus: "IN_PROGRESS",
		},
		{
			name: "failed",
			out: &awsrekognition.GetFaceLivenessSessionResultsOutput{
				Status: types.LivenessSessionStatusFailed, Confidence: aws.Float32(10),
			},
			wantDecision: "UNKNOWN", wantConfidence: 0.1, wantStatus: "FAILED",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(&fakeAPI{resultsOut: tt.out})
			got, err := c.GetResult(context.Background(), "remote-42")
			if err != nil {
				t.Fatalf("error: %v", err)
			}
			want := verify.RawLivenessResult{
				Status: tt.wantStatus, Decision: tt.wantDecision, Confidence: tt.wantConfidence,
			}
			if got != want {
				t.Fatalf("got %+v, want %+v", got, want)
			}
		})
	}
}
