package trainer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/stimmlabs/stimm-core/internal/bus"
	"github.com/stimmlabs/stimm-core/internal/capture"
	"github.com/stimmlabs/stimm-core/internal/protocol"
)

// busSource receives a session's audio chunks over the bus, letting thin
// capture nodes stream into the trainer without a local microphone.
type busSource struct {
	bus       *bus.Client
	sessionID string
}

// NewBusSource returns a capture source fed by the session's chunk subject.
func NewBusSource(busClient *bus.Client, sessionID string) capture.Source {
	return &busSource{bus: busClient, sessionID: sessionID}
}

func (b *busSource) Open(ctx context.Context) (capture.Stream, error) {
	stream := &busStream{
		out: make(chan capture.Chunk, 64),
		log: b.bus.Logger(),
	}
	sub, err := b.bus.Conn().Subscribe(protocol.CaptureChunkSubject(b.sessionID), stream.handle)
	if err != nil {
		return nil, fmt.Errorf("subscribe capture chunks: %w", err)
	}
	stream.sub = sub
	return stream, nil
}

type busStream struct {
	sub *nats.Subscription
	out chan capture.Chunk
	log *slog.Logger

	mu      sync.Mutex
	closed  bool
	nextSeq int
}

func (s *busStream) handle(msg *nats.Msg) {
	var chunk protocol.CaptureChunk
	if err := json.Unmarshal(msg.Data, &chunk); err != nil {
		s.log.Warn("failed to decode capture chunk", slog.String("error", err.Error()))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	// NATS keeps per-subscription order, so a sequence mismatch means a
	// sender started before the subscription existed or a chunk was lost.
	if chunk.Sequence != s.nextSeq {
		s.log.Warn("capture chunk sequence gap",
			slog.String("session_id", chunk.SessionID),
			slog.Int("expected", s.nextSeq),
			slog.Int("got", chunk.Sequence))
	}
	s.nextSeq = chunk.Sequence + 1
	if len(chunk.Data) > 0 {
		s.out <- capture.Chunk{MIMEType: chunk.MIMEType, Data: chunk.Data}
	}
	if chunk.Final {
		s.closeLocked()
	}
}

func (s *busStream) Chunks() <-chan capture.Chunk { return s.out }

func (s *busStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
	return nil
}

func (s *busStream) closeLocked() {
	if s.closed {
		return
	}
	s.closed = true
	if s.sub != nil {
		_ = s.sub.Unsubscribe()
	}
	close(s.out)
}
