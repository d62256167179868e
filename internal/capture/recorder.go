package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/stimmlabs/stimm-core/internal/codec"
)

// State identifies where a recorder is in its capture cycle.
type State string

const (
	StateIdle                 State = "idle"
	StateRequestingPermission State = "requesting_permission"
	StateRecording            State = "recording"
	StateStopped              State = "stopped"
	StateError                State = "error"
)

// PermissionError marks a capture attempt the device layer refused. The
// attempt is terminal; a fresh Start is required.
type PermissionError struct {
	Err error
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("capture device access denied: %v", e.Err)
}

func (e *PermissionError) Unwrap() error { return e.Err }

var errCaptureInProgress = errors.New("capture already in progress")

// Recorder drives at most one capture session at a time over an injected
// Source. Chunks are buffered strictly in arrival order; Stop concatenates
// them into a single blob tagged with the first chunk's MIME type.
type Recorder struct {
	source Source
	log    *slog.Logger

	mu     sync.Mutex
	state  State
	stream Stream
	chunks []Chunk
	blob   *codec.Blob
	done   chan struct{}
}

func NewRecorder(source Source, log *slog.Logger) *Recorder {
	return &Recorder{
		source: source,
		log:    log.With(slog.String("component", "recorder")),
		state:  StateIdle,
	}
}

// State reports the current capture state.
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Blob returns the finished audio object produced by the last Stop, if any.
func (r *Recorder) Blob() (codec.Blob, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.blob == nil {
		return codec.Blob{}, false
	}
	return *r.blob, true
}

// Start opens the source and begins buffering chunks. Valid from idle,
// stopped, and error states; the latter two are implicitly reset. Starting
// while a capture is in flight is an error the caller must avoid.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	switch r.state {
	case StateRecording, StateRequestingPermission:
		r.mu.Unlock()
		return errCaptureInProgress
	}
	r.state = StateRequestingPermission
	r.blob = nil
	r.chunks = nil
	r.mu.Unlock()

	stream, err := r.source.Open(ctx)
	if err != nil {
		r.mu.Lock()
		r.state = StateError
		r.mu.Unlock()
		return &PermissionError{Err: err}
	}

	done := make(chan struct{})
	r.mu.Lock()
	r.stream = stream
	r.done = done
	r.state = StateRecording
	r.mu.Unlock()

	go func() {
		defer close(done)
		for chunk := range stream.Chunks() {
			r.mu.Lock()
			r.chunks = append(r.chunks, chunk)
			r.mu.Unlock()
		}
	}()

	return nil
}

// Stop finalizes the capture: the device stream is released first, then the
// buffered chunks are concatenated in arrival order. Calling Stop while not
// recording is a no-op.
func (r *Recorder) Stop() (codec.Blob, bool) {
	r.mu.Lock()
	if r.state != StateRecording {
		r.mu.Unlock()
		return codec.Blob{}, false
	}
	stream := r.stream
	done := r.done
	r.mu.Unlock()

	// Release the device before touching the buffered data so the hardware
	// is freed no matter what happens downstream.
	if err := stream.Close(); err != nil {
		r.log.Warn("closing capture stream failed", slog.String("error", err.Error()))
	}
	<-done

	r.mu.Lock()
	defer r.mu.Unlock()

	var mimeType string
	var size int
	for _, c := range r.chunks {
		size += len(c.Data)
	}
	data := make([]byte, 0, size)
	for i, c := range r.chunks {
		if i == 0 {
			mimeType = c.MIMEType
		}
		data = append(data, c.Data...)
	}

	blob := codec.Blob{MIMEType: mimeType, Data: data}
	r.blob = &blob
	r.chunks = nil
	r.stream = nil
	r.done = nil
	r.state = StateStopped
	return blob, true
}

// Reset clears the produced blob and returns to idle. It does nothing while
// a recording is in flight.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateRecording || r.state == StateRequestingPermission {
		return
	}
	r.blob = nil
	r.chunks = nil
	r.state = StateIdle
}
