package capture

import (
	"context"
	"sync"
)

type mockSource struct {
	chunks []Chunk
}

// NewMockSource returns a source that replays fixed chunks, for development
// and tests without a capture device. The stream stays open after the last
// chunk until Close, mirroring a device that keeps recording silence.
func NewMockSource(chunks []Chunk) Source {
	return &mockSource{chunks: chunks}
}

func (s *mockSource) Open(_ context.Context) (Stream, error) {
	st := &mockStream{
		out:    make(chan Chunk),
		closed: make(chan struct{}),
	}
	go func() {
		defer close(st.out)
		for _, c := range s.chunks {
			select {
			case st.out <- c:
			case <-st.closed:
				return
			}
		}
		<-st.closed
	}()
	return st, nil
}

type mockStream struct {
	out    chan Chunk
	closed chan struct{}
	once   sync.Once
}

func (st *mockStream) Chunks() <-chan Chunk { return st.out }

func (st *mockStream) Close() error {
	st.once.Do(func() { close(st.closed) })
	return nil
}
