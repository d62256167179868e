// Package transcribe turns recorded audio into text via a speech model,
// priming the model with the speaker's own reference recordings so it
// adapts to dysarthric speech.
package transcribe

import (
	"context"
	"errors"

	"github.com/stimmlabs/stimm-core/internal/codec"
)

// Example pairs a reference recording with its known transcription.
type Example struct {
	Audio codec.Blob
	Text  string
}

// Transcriber converts an audio blob to text. Examples prime the model;
// an empty slice falls back to unprimed transcription.
type Transcriber interface {
	Transcribe(ctx context.Context, audio codec.Blob, examples []Example) (string, error)
}

var (
	// ErrMissingCredential means no API key is available from either the
	// environment or the stored credential slot.
	ErrMissingCredential = errors.New("transcriber credential not configured")

	// ErrInvalidCredential means the provider rejected the key. The stored
	// credential must be discarded so the user supplies a fresh one.
	ErrInvalidCredential = errors.New("transcriber credential rejected by provider")
)
