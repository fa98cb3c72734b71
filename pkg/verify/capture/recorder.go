package capture

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/dayfusion/liveness-gateway/pkg/verify"
)

// Recording is the buffered output of a stopped session recording.
type Recording struct {
	Data       []byte
	MimeType   string
	DurationMS int64
}

// RecorderHandle controls one in-flight recording.
type RecorderHandle interface {
	// Stop ends the recording and returns the buffered result. Stop is
	// idempotent: repeated calls return the same result. It does not
	// return until the chunk loop has drained, so the recording is
	// complete when Stop returns.
	Stop(ctx context.Context) (Recording, error)
}

// Recorder starts a recording over a media source.
type Recorder interface {
	Start(src verify.MediaSource) (RecorderHandle, error)
}

// ChunkRecorder accumulates encoded video chunks from the media source
// into memory for later upload.
type ChunkRecorder struct {
	Logger *slog.Logger
}

// Start begins pulling chunks from the source in the background.
func (r *ChunkRecorder) Start(src verify.MediaSource) (RecorderHandle, error) {
	if src == nil {
		return nil, verify.NewInvalidRequestError("media source is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &chunkHandle{
		cancel:   cancel,
		done:     make(chan struct{}),
		mimeType: src.MimeType(),
		started:  time.Now(),
		logger:   r.Logger,
	}
	go h.loop(ctx, src)
	return h, nil
}

type chunkHandle struct {
	cancel   context.CancelFunc
	done     chan struct{}
	mimeType string
	started  time.Time
	logger   *slog.Logger

	mu  sync.Mutex
	buf bytes.Buffer

	stopOnce sync.Once
	result   Recording
	stopErr  error
}

func (h *chunkHandle) loop(ctx context.Context, src verify.MediaSource) {
	defer close(h.done)
	for {
		chunk, err := src.NextChunk(ctx)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, io.EOF) && h.logger != nil {
				h.logger.Warn("recording chunk read failed", "error", err)
			}
			return
		}
		h.mu.Lock()
		h.buf.Write(chunk)
		h.mu.Unlock()
	}
}

// Stop ends the chunk loop, waits for it to drain, and seals the result.
func (h *chunkHandle) Stop(ctx context.Context) (Recording, error) {
	h.stopOnce.Do(func() {
		h.cancel()
		select {
		case <-h.done:
		case <-ctx.Done():
			h.stopErr = ctx.Err()
			return
		}
		h.mu.Lock()
		defer h.mu.Unlock()
		h.result = Recording{
			Data:       h.buf.Bytes(),
			MimeType:   h.mimeType,
			DurationMS: time.Since(h.started).Milliseconds(),
		}
	})
	return h.result, h.stopErr
}
