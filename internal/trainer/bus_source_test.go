package trainer

import (
	"encoding/json"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stimmlabs/stimm-core/internal/capture"
	"github.com/stimmlabs/stimm-core/internal/protocol"
)

func newBusStream() *busStream {
	return &busStream{
		out: make(chan capture.Chunk, 8),
		log: newLogger(),
	}
}

func chunkMsg(t *testing.T, chunk protocol.CaptureChunk) *nats.Msg {
	t.Helper()
	data, err := json.Marshal(chunk)
	if err != nil {
		t.Fatalf("marshal chunk: %v", err)
	}
	return &nats.Msg{Data: data}
}

func TestBusStreamDeliversChunksInOrder(t *testing.T) {
	s := newBusStream()
	s.handle(chunkMsg(t, protocol.CaptureChunk{SessionID: "b1", Sequence: 0, MIMEType: "audio/wav", Data: []byte("one")}))
	s.handle(chunkMsg(t, protocol.CaptureChunk{SessionID: "b1", Sequence: 1, MIMEType: "audio/wav", Data: []byte("two")}))
	s.handle(chunkMsg(t, protocol.CaptureChunk{SessionID: "b1", Sequence: 2, Final: true}))

	var got []string
	for chunk := range s.Chunks() {
		got = append(got, string(chunk.Data))
	}
	if len(got) != 2 || got[0] != "one" || got[1] != "two" {
		t.Fatalf("unexpected chunks: %v", got)
	}
}

func TestBusStreamSequenceGapStillDelivers(t *testing.T) {
	s := newBusStream()
	s.handle(chunkMsg(t, protocol.CaptureChunk{SessionID: "b2", Sequence: 0, Data: []byte("one")}))
	// A dropped chunk is logged, not fatal: the take stays usable.
	s.handle(chunkMsg(t, protocol.CaptureChunk{SessionID: "b2", Sequence: 5, Data: []byte("six")}))
	s.handle(chunkMsg(t, protocol.CaptureChunk{SessionID: "b2", Sequence: 6, Final: true}))

	var got []string
	for chunk := range s.Chunks() {
		got = append(got, string(chunk.Data))
	}
	if len(got) != 2 || got[1] != "six" {
		t.Fatalf("unexpected chunks: %v", got)
	}
}

func TestBusStreamDropsChunksAfterFinal(t *testing.T) {
	s := newBusStream()
	s.handle(chunkMsg(t, protocol.CaptureChunk{SessionID: "b3", Sequence: 0, Data: []byte("one")}))
	s.handle(chunkMsg(t, protocol.CaptureChunk{SessionID: "b3", Sequence: 1, Final: true}))
	// Late arrival after the stream ended must not panic or block.
	s.handle(chunkMsg(t, protocol.CaptureChunk{SessionID: "b3", Sequence: 2, Data: []byte("late")}))

	var got []string
	for chunk := range s.Chunks() {
		got = append(got, string(chunk.Data))
	}
	if len(got) != 1 || got[0] != "one" {
		t.Fatalf("unexpected chunks: %v", got)
	}
}

func TestBusStreamIgnoresMalformedChunk(t *testing.T) {
	s := newBusStream()
	s.handle(&nats.Msg{Data: []byte("not json")})
	s.handle(chunkMsg(t, protocol.CaptureChunk{SessionID: "b4", Sequence: 0, Final: true}))

	if _, ok := <-s.Chunks(); ok {
		t.Fatal("malformed chunk must not be delivered")
	}
}

func TestBusStreamCloseIsIdempotent(t *testing.T) {
	s := newBusStream()
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if _, ok := <-s.Chunks(); ok {
		t.Fatal("closed stream must not deliver chunks")
	}
}
