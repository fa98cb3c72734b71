// Package rekognition adapts AWS Rekognition to the frame scoring, face
// matching and remote liveness interfaces.
package rekognition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsrekognition "github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"
	"github.com/aws/smithy-go"

	"github.com/dayfusion/liveness-gateway/pkg/verify"
)

const (
	// compareSimilarityThreshold is the minimum similarity for Rekognition
	// to report a face match at all.
	compareSimilarityThreshold = 80.0

	// liveDecisionConfidence is the normalized confidence at which a
	// finished liveness session counts as LIVE.
	liveDecisionConfidence = 0.90
)

// api is the subset of the Rekognition client the adapter calls.
type api interface {
	DetectFaces(ctx context.Context, params *awsrekognition.DetectFacesInput, optFns ...func(*awsrekognition.Options)) (*awsrekognition.DetectFacesOutput, error)
	CompareFaces(ctx context.Context, params *awsrekognition.CompareFacesInput, optFns ...func(*awsrekognition.Options)) (*awsrekognition.CompareFacesOutput, error)
	CreateFaceLivenessSession(ctx context.Context, params *awsrekognition.CreateFaceLivenessSessionInput, optFns ...func(*awsrekognition.Options)) (*awsrekognition.CreateFaceLivenessSessionOutput, error)
	GetFaceLivenessSessionResults(ctx context.Context, params *awsrekognition.GetFaceLivenessSessionResultsInput, optFns ...func(*awsrekognition.Options)) (*awsrekognition.GetFaceLivenessSessionResultsOutput, error)
}

// Client implements verify.FrameScorer, verify.FaceMatcher and
// verify.LivenessAPI on top of Rekognition.
type Client struct {
	api    api
	logger *slog.Logger
}

// New creates an adapter over a configured Rekognition client.
func New(client *awsrekognition.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{api: client, logger: logger}
}

// ScoreFaceConfidence runs face detection on a frame and returns the
// confidence (0..100) of the most prominent face, or 0 when no face is
// found.
func (c *Client) ScoreFaceConfidence(ctx context.Context, frame []byte) (float64, error) {
	out, err := c.api.DetectFaces(ctx, &awsrekognition.DetectFacesInput{
		Image:      &types.Image{Bytes: frame},
		Attributes: []types.Attribute{types.AttributeDefault},
	})
	if err != nil {
		return 0, fmt.Errorf("detect faces: %w", err)
	}
	if len(out.FaceDetails) == 0 {
		return 0, nil
	}
	face := out.FaceDetails[0]
	if face.Confidence == nil {
		return 0, nil
	}
	return float64(*face.Confidence), nil
}

// CompareFaces compares the reference capture against a document image.
// Rekognition rejects images without a detectable face with an
// InvalidParameterException; that maps to a zero-similarity non-match
// rather than an error, since it is a verdict about the input.
func (c *Client) CompareFaces(ctx context.Context, source, target []byte) (verify.FaceMatch, error) {
	out, err := c.api.CompareFaces(ctx, &awsrekognition.CompareFacesInput{
		SourceImage:         &types.Image{Bytes: source},
		TargetImage:         &types.Image{Bytes: target},
		SimilarityThreshold: aws.Float32(compareSimilarityThreshold),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "InvalidParameterException" {
			return verify.FaceMatch{Similarity: 0, Matched: false, Reason: "NO_FACE_DETECTED"}, nil
		}
		return verify.FaceMatch{}, fmt.Errorf("compare faces: %w", err)
	}
	if len(out.FaceMatches) == 0 {
		return verify.FaceMatch{Similarity: 0, Matched: false, Reason: "NO_MATCH"}, nil
	}
	best := out.FaceMatches[0]
	similarity := 0.0
	if best.Similarity != nil {
		similarity = float64(*best.Similarity)
	}
	return verify.FaceMatch{Similarity: similarity, Matched: true}, nil
}

// CreateSession creates a face liveness session and returns its id.
func (c *Client) CreateSession(ctx context.Context) (string, error) {
	out, err := c.api.CreateFaceLivenessSession(ctx, &awsrekognition.CreateFaceLivenessSessionInput{})
	if err != nil {
		return "", fmt.Errorf("create liveness session: %w", err)
	}
	if out.SessionId == nil || *out.SessionId == "" {
		return "", errors.New("create liveness session: empty session id")
	}
	return *out.SessionId, nil
}

// GetResult queries the liveness session, normalizing confidence to 0..1
// and deriving the decision: high-confidence finished sessions are LIVE,
// finished sessions below the bar are SPOOF, everything else is UNKNOWN.
func (c *Client) GetResult(ctx context.Context, remoteSessionID string) (verify.RawLivenessResult, error) {
	out, err := c.api.GetFaceLivenessSessionResults(ctx, &awsrekognition.GetFaceLivenessSessionResultsInput{
		SessionId: aws.String(remoteSessionID),
	})
	if err != nil {
		return verify.RawLivenessResult{}, fmt.Errorf("get liveness results: %w", err)
	}

	status := string(out.Status)
	confidence := 0.0
	if out.Confidence != nil {
		confidence = float64(*out.Confidence) / 100
	}

	decision := "UNKNOWN"
	switch {
	case confidence >= liveDecisionConfidence:
		decision = "LIVE"
	case out.Status == types.LivenessSessionStatusSucceeded:
		decision = "SPOOF"
	}

	return verify.RawLivenessResult{
		Status:     status,
		Decision:   decision,
		Confidence: confidence,
	}, nil
}
