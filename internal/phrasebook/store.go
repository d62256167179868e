// Package phrasebook manages the training material: the phrases a speaker
// practices, the recordings made of them, and the transcriber credential.
// All three live in named slots backed by the slot store, loaded once at
// startup and written through on every mutation.
package phrasebook

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stimmlabs/stimm-core/internal/codec"
	"github.com/stimmlabs/stimm-core/internal/slotstore"
)

const (
	slotPhrases    = "phrases"
	slotRecordings = "recordings"
	slotCredential = "transcriber-credential"
)

// Phrase is a sentence the speaker trains on.
type Phrase struct {
	ID   int64  `json:"id"`
	Text string `json:"text"`
	Lang string `json:"lang"`
}

// StoredRecording is one committed take of a phrase. Audio is kept in its
// transport encoding so the slot value stays plain JSON.
type StoredRecording struct {
	ID          string `json:"id"`
	PhraseID    int64  `json:"phraseId"`
	AudioBase64 string `json:"audioBase64"`
	MIMEType    string `json:"mimeType"`
}

// Decode recovers the raw audio blob of the recording.
func (r StoredRecording) Decode() (codec.Blob, error) {
	return codec.Decode(r.AudioBase64, r.MIMEType)
}

// Book is the in-memory working set with write-through persistence.
type Book struct {
	store *slotstore.Store
	log   *slog.Logger
	clock func() time.Time

	mu         sync.RWMutex
	phrases    []Phrase
	recordings []StoredRecording
	credential string
}

// Open loads the phrase book from the slot store, seeding the phrase list
// on first run.
func Open(ctx context.Context, store *slotstore.Store, log *slog.Logger) (*Book, error) {
	b := &Book{store: store, log: log, clock: time.Now}

	b.phrases = seedPhrases()
	if _, err := store.Load(ctx, slotPhrases, &b.phrases); err != nil {
		return nil, fmt.Errorf("load phrases: %w", err)
	}
	b.recordings = []StoredRecording{}
	if _, err := store.Load(ctx, slotRecordings, &b.recordings); err != nil {
		return nil, fmt.Errorf("load recordings: %w", err)
	}
	if _, err := store.Load(ctx, slotCredential, &b.credential); err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}

	log.Info("phrase book loaded",
		slog.Int("phrases", len(b.phrases)),
		slog.Int("recordings", len(b.recordings)))
	return b, nil
}

// Phrases returns a copy of the phrase list, newest first.
func (b *Book) Phrases() []Phrase {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Phrase, len(b.phrases))
	copy(out, b.phrases)
	return out
}

// PhraseByID looks up a phrase.
func (b *Book) PhraseByID(id int64) (Phrase, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, p := range b.phrases {
		if p.ID == id {
			return p, true
		}
	}
	return Phrase{}, false
}

// AddPhrase prepends a new phrase and persists the list. The ID is the
// current time in milliseconds, which keeps user phrases clear of seed IDs.
func (b *Book) AddPhrase(ctx context.Context, text, lang string) (Phrase, error) {
	p := Phrase{ID: b.clock().UnixMilli(), Text: text, Lang: lang}

	b.mu.Lock()
	defer b.mu.Unlock()
	phrases := append([]Phrase{p}, b.phrases...)
	if err := b.store.Save(ctx, slotPhrases, phrases); err != nil {
		return Phrase{}, err
	}
	b.phrases = phrases
	return p, nil
}

// Recordings returns a copy of all stored recordings.
func (b *Book) Recordings() []StoredRecording {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]StoredRecording, len(b.recordings))
	copy(out, b.recordings)
	return out
}

// RecordingsForPhrase returns the takes committed for one phrase.
func (b *Book) RecordingsForPhrase(phraseID int64) []StoredRecording {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []StoredRecording
	for _, r := range b.recordings {
		if r.PhraseID == phraseID {
			out = append(out, r)
		}
	}
	return out
}

// AddRecording commits an audio blob as a take of the given phrase and
// persists the recording list.
func (b *Book) AddRecording(ctx context.Context, phraseID int64, blob codec.Blob) (StoredRecording, error) {
	rec := StoredRecording{
		ID:          uuid.NewString(),
		PhraseID:    phraseID,
		AudioBase64: codec.Encode(blob),
		MIMEType:    blob.MIMEType,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	recordings := append(append([]StoredRecording{}, b.recordings...), rec)
	if err := b.store.Save(ctx, slotRecordings, recordings); err != nil {
		return StoredRecording{}, err
	}
	b.recordings = recordings
	return rec, nil
}

// DeleteRecording removes a take by ID. Unknown IDs are a no-op.
func (b *Book) DeleteRecording(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	recordings := make([]StoredRecording, 0, len(b.recordings))
	for _, r := range b.recordings {
		if r.ID != id {
			recordings = append(recordings, r)
		}
	}
	if len(recordings) == len(b.recordings) {
		return nil
	}
	if err := b.store.Save(ctx, slotRecordings, recordings); err != nil {
		return err
	}
	b.recordings = recordings
	return nil
}

// Credential returns the stored transcriber credential, empty if none.
func (b *Book) Credential() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.credential
}

// SetCredential persists a new transcriber credential.
func (b *Book) SetCredential(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.store.Save(ctx, slotCredential, key); err != nil {
		return err
	}
	b.credential = key
	return nil
}

// ClearCredential discards the stored credential, typically after the
// provider rejected it.
func (b *Book) ClearCredential(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.store.Delete(ctx, slotCredential); err != nil {
		return err
	}
	b.credential = ""
	b.log.Info("transcriber credential cleared")
	return nil
}
