package capture

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeStream hands the test full control over chunk delivery.
type fakeStream struct {
	out    chan Chunk
	closed chan struct{}
}

func newFakeStream() *fakeStream {
	return &fakeStream{out: make(chan Chunk, 16), closed: make(chan struct{})}
}

func (f *fakeStream) Chunks() <-chan Chunk { return f.out }

func (f *fakeStream) Close() error {
	close(f.closed)
	close(f.out)
	return nil
}

type fakeSource struct {
	stream *fakeStream
	err    error
	opens  int
}

func (f *fakeSource) Open(_ context.Context) (Stream, error) {
	f.opens++
	if f.err != nil {
		return nil, f.err
	}
	return f.stream, nil
}

func waitForChunks(t *testing.T, r *Recorder, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		r.mu.Lock()
		got := len(r.chunks)
		r.mu.Unlock()
		if got >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d chunks", n)
}

func TestChunkOrderPreserved(t *testing.T) {
	stream := newFakeStream()
	src := &fakeSource{stream: stream}
	rec := NewRecorder(src, newLogger())

	if err := rec.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if rec.State() != StateRecording {
		t.Fatalf("expected recording state, got %s", rec.State())
	}

	chunks := []Chunk{
		{MIMEType: "audio/webm", Data: []byte("first-")},
		{MIMEType: "audio/webm", Data: []byte("second-")},
		{MIMEType: "audio/webm", Data: []byte("third")},
	}
	for _, c := range chunks {
		stream.out <- c
	}
	waitForChunks(t, rec, len(chunks))

	blob, ok := rec.Stop()
	if !ok {
		t.Fatal("expected stop to finalize a recording")
	}
	if rec.State() != StateStopped {
		t.Fatalf("expected stopped state, got %s", rec.State())
	}
	if blob.MIMEType != "audio/webm" {
		t.Fatalf("expected mime of first chunk, got %q", blob.MIMEType)
	}
	if !bytes.Equal(blob.Data, []byte("first-second-third")) {
		t.Fatalf("chunks reordered or lost: %q", blob.Data)
	}
}

func TestStopReleasesStream(t *testing.T) {
	stream := newFakeStream()
	src := &fakeSource{stream: stream}
	rec := NewRecorder(src, newLogger())

	if err := rec.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, ok := rec.Stop(); !ok {
		t.Fatal("expected stop to succeed")
	}
	select {
	case <-stream.closed:
	default:
		t.Fatal("expected stream closed on stop")
	}
}

func TestStopWhileIdleIsNoop(t *testing.T) {
	rec := NewRecorder(&fakeSource{stream: newFakeStream()}, newLogger())
	if _, ok := rec.Stop(); ok {
		t.Fatal("stop from idle must be a no-op")
	}
	if rec.State() != StateIdle {
		t.Fatalf("state changed by no-op stop: %s", rec.State())
	}
}

func TestPermissionDenied(t *testing.T) {
	src := &fakeSource{err: errors.New("device busy")}
	rec := NewRecorder(src, newLogger())

	err := rec.Start(context.Background())
	if err == nil {
		t.Fatal("expected permission error")
	}
	var permErr *PermissionError
	if !errors.As(err, &permErr) {
		t.Fatalf("expected PermissionError, got %T", err)
	}
	if rec.State() != StateError {
		t.Fatalf("expected error state, got %s", rec.State())
	}

	// Error state is terminal for that attempt but a new start must work.
	src.err = nil
	src.stream = newFakeStream()
	if err := rec.Start(context.Background()); err != nil {
		t.Fatalf("restart after error: %v", err)
	}
	if rec.State() != StateRecording {
		t.Fatalf("expected recording after restart, got %s", rec.State())
	}
}

func TestResetClearsBlob(t *testing.T) {
	stream := newFakeStream()
	rec := NewRecorder(&fakeSource{stream: stream}, newLogger())
	if err := rec.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	stream.out <- Chunk{MIMEType: "audio/ogg", Data: []byte("x")}
	waitForChunks(t, rec, 1)
	if _, ok := rec.Stop(); !ok {
		t.Fatal("stop failed")
	}
	if _, ok := rec.Blob(); !ok {
		t.Fatal("expected blob after stop")
	}
	rec.Reset()
	if rec.State() != StateIdle {
		t.Fatalf("expected idle after reset, got %s", rec.State())
	}
	if _, ok := rec.Blob(); ok {
		t.Fatal("expected blob cleared by reset")
	}
}

func TestStartWhileRecordingRejected(t *testing.T) {
	stream := newFakeStream()
	rec := NewRecorder(&fakeSource{stream: stream}, newLogger())
	if err := rec.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := rec.Start(context.Background()); err == nil {
		t.Fatal("expected second start to be rejected")
	}
}
