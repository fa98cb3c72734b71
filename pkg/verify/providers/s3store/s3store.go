// Package s3store stores session artifacts (frames, documents, video) in
// an S3 bucket.
package s3store

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dayfusion/liveness-gateway/pkg/verify"
)

// presignTTL bounds how long a preview link stays valid.
const presignTTL = 15 * time.Minute

// Store implements verify.Uploader over an S3 bucket.
type Store struct {
	client    *awss3.Client
	presigner *awss3.PresignClient
	bucket    string
	prefix    string
	logger    *slog.Logger
}

// New creates a store writing under the given bucket and key prefix.
func New(client *awss3.Client, bucket, prefix string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		client:    client,
		presigner: awss3.NewPresignClient(client),
		bucket:    bucket,
		prefix:    prefix,
		logger:    logger,
	}
}

// Upload writes one artifact and returns its key plus a short-lived
// preview URL. A failed presign leaves the URL empty; the stored object is
// still usable through its key.
func (s *Store) Upload(ctx context.Context, sessionID, label string, data []byte, mimeType string) (verify.UploadResult, error) {
	key := path.Join(s.prefix, sessionID, label+extensionFor(mimeType))

	_, err := s.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(mimeType),
	})
	if err != nil {
		return verify.UploadResult{}, fmt.Errorf("put object %s: %w", key, err)
	}

	out := verify.UploadResult{
		Key:      key,
		MimeType: mimeType,
		Size:     int64(len(data)),
	}

	presigned, err := s.presigner.PresignGetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, awss3.WithPresignExpires(presignTTL))
	if err != nil {
		s.logger.Warn("presign failed", "key", key, "error", err)
		return out, nil
	}
	out.URL = presigned.URL
	return out, nil
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "video/webm":
		return ".webm"
	case "video/mp4":
		return ".mp4"
	default:
		return ""
	}
}
