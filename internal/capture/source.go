package capture

import "context"

// Chunk is one audio fragment as delivered by a capture device.
type Chunk struct {
	MIMEType string
	Data     []byte
}

// Stream delivers chunks in arrival order. The channel returned by Chunks is
// closed once the device stops producing, which happens after Close releases
// the underlying hardware.
type Stream interface {
	Chunks() <-chan Chunk
	Close() error
}

// Source abstracts the platform capture boundary. Open may block while the
// host negotiates device access.
type Source interface {
	Open(ctx context.Context) (Stream, error)
}
