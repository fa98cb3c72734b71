package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/dayfusion/liveness-gateway/pkg/verify"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleSummary(id string, createdAt time.Time) *verify.SessionSummary {
	match := 87.5
	return &verify.SessionSummary{
		SessionID:      id,
		CreatedAt:      createdAt,
		IsLive:         true,
		LivenessScore:  91.2,
		FaceMatchScore: &match,
		Status:         verify.StatusApproved,
		Captures: []verify.CaptureRecord{
			{Position: verify.PositionFront, Confidence: 98.1, StorageKey: id + "/capture-00-front.jpg"},
			{Position: verify.PositionLeft, Confidence: 95.4, StorageKey: id + "/capture-01-left.jpg"},
		},
		Video: &verify.VideoArtifact{
			StorageKey: id + "/session-video.webm",
			MimeType:   "video/webm",
			Size:       2048,
			DurationMS: 9500,
		},
		Metadata: map[string]string{"merge_source": "aws+local"},
	}
}

func TestStoreSaveAndGet(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	want := sampleSummary("sess-1", time.Now().UTC())
	if err := store.Save(ctx, want); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	got, err := store.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.SessionID != want.SessionID || got.Status != want.Status || !got.IsLive {
		t.Fatalf("got %+v", got)
	}
	if got.LivenessScore != want.LivenessScore {
		t.Fatalf("liveness score = %v, want %v", got.LivenessScore, want.LivenessScore)
	}
	if got.FaceMatchScore == nil || *got.FaceMatchScore != *want.FaceMatchScore {
		t.Fatalf("face match score = %v", got.FaceMatchScore)
	}
	if len(got.Captures) != 2 || got.Captures[0].Position != verify.PositionFront {
		t.Fatalf("captures = %+v", got.Captures)
	}
	if got.Video == nil || got.Video.StorageKey != want.Video.StorageKey {
		t.Fatalf("video = %+v", got.Video)
	}
	if got.Metadata["merge_source"] != "aws+local" {
		t.Fatalf("metadata = %+v", got.Metadata)
	}
	if !got.CreatedAt.Equal(want.CreatedAt) {
		t.Fatalf("created at = %v, want %v", got.CreatedAt, want.CreatedAt)
	}
}

func TestStoreGetMissing(t *testing.T) {
	store := openTestStore(t)

	_, err := store.Get(context.Background(), "nope")
	var verr *verify.Error
	if !errors.As(err, &verr) || verr.Type != verify.ErrNotFound {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestStoreListNewestFirst(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		s := sampleSummary(string(rune('a'+i)), base.Add(time.Duration(i)*time.Minute))
		s.Video = nil
		s.FaceMatchScore = nil
		s.Metadata = nil
		if err := store.Save(ctx, s); err != nil {
			t.Fatalf("Save() error: %v", err)
		}
	}

	got, err := store.List(ctx, 3)
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].SessionID != "e" || got[2].SessionID != "c" {
		t.Fatalf("order: %s, %s, %s", got[0].SessionID, got[1].SessionID, got[2].SessionID)
	}
	if got[0].Video != nil || got[0].FaceMatchScore != nil {
		t.Fatalf("optional fields must round-trip as unset: %+v", got[0])
	}
}

func TestStoreSaveOverwrites(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	s := sampleSummary("sess-1", time.Now().UTC())
	if err := store.Save(ctx, s); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	s.Status = verify.StatusReview
	if err := store.Save(ctx, s); err != nil {
		t.Fatalf("second Save() error: %v", err)
	}

	got, err := store.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.Status != verify.StatusReview {
		t.Fatalf("status = %v, want Review", got.Status)
	}
}

func TestStoreSaveRejectsEmptyID(t *testing.T) {
	store := openTestStore(t)
	err := store.Save(context.Background(), &verify.SessionSummary{})
	var verr *verify.Error
	if !errors.As(err, &verr) || verr.Type != verify.ErrInvalidRequest {
		t.Fatalf("expected invalid request error, got %v", err)
	}
}
