package capture

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"
)

type chunkSource struct {
	fakeSource
	mu     sync.Mutex
	chunks [][]byte
	wait   chan struct{}
}

func (c *chunkSource) NextChunk(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	if len(c.chunks) > 0 {
		chunk := c.chunks[0]
		c.chunks = c.chunks[1:]
		c.mu.Unlock()
		return chunk, nil
	}
	c.mu.Unlock()
	if c.wait != nil {
		select {
		case <-c.wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
		return nil, io.EOF
	}
}

func TestChunkRecorderBuffersChunks(t *testing.T) {
	src := &chunkSource{chunks: [][]byte{[]byte("aa"), []byte("bb"), []byte("cc")}}
	r := &ChunkRecorder{}

	h, err := r.Start(src)
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	rec, err := h.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
	if string(rec.Data) != "aabbcc" {
		t.Fatalf("recorded data = %q", rec.Data)
	}
	if rec.MimeType != "video/webm" {
		t.Fatalf("mime type = %q", rec.MimeType)
	}
	if rec.DurationMS < 0 {
		t.Fatalf("duration = %d", rec.DurationMS)
	}
}

func TestChunkRecorderStopIsIdempotent(t *testing.T) {
	src := &chunkSource{chunks: [][]byte{[]byte("xy")}}
	r := &ChunkRecorder{}

	h, err := r.Start(src)
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	first, err := h.Stop(context.Background())
	if err != nil {
		t.Fatalf("first Stop() error: %v", err)
	}
	second, err := h.Stop(context.Background())
	if err != nil {
		t.Fatalf("second Stop() error: %v", err)
	}
	if string(first.Data) != string(second.Data) || first.DurationMS != second.DurationMS {
		t.Fatalf("repeated Stop diverged: %+v vs %+v", first, second)
	}
}

func TestChunkRecorderStopAwaitsDrain(t *testing.T) {
	// The loop is blocked inside NextChunk; Stop must cancel it and wait
	// for the goroutine to exit before sealing the result.
	src := &chunkSource{wait: make(chan struct{})}
	r := &ChunkRecorder{}

	h, err := r.Start(src)
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := h.Stop(context.Background()); err != nil {
			t.Errorf("Stop() error: %v", err)
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after cancelling the chunk loop")
	}
}

func TestChunkRecorderNilSource(t *testing.T) {
	r := &ChunkRecorder{}
	if _, err := r.Start(nil); err == nil {
		t.Fatal("expected an error for a nil source")
	}
}
