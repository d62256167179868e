package transcribe

import (
	"context"
	"fmt"

	"github.com/stimmlabs/stimm-core/internal/codec"
)

// MockTranscriber returns a canned transcription without any network calls.
// Useful for development and tests.
type MockTranscriber struct {
	// Text is returned verbatim when set; otherwise a summary of the input.
	Text string
	// Err, when set, is returned instead.
	Err error

	Calls []MockCall
}

// MockCall records one invocation for assertions.
type MockCall struct {
	Audio    codec.Blob
	Examples []Example
}

func (m *MockTranscriber) Transcribe(_ context.Context, audio codec.Blob, examples []Example) (string, error) {
	m.Calls = append(m.Calls, MockCall{Audio: audio, Examples: examples})
	if m.Err != nil {
		return "", m.Err
	}
	if m.Text != "" {
		return m.Text, nil
	}
	return fmt.Sprintf("mock transcription (%d bytes, %d examples)", len(audio.Data), len(examples)), nil
}
