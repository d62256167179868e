package phrasebook

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stimmlabs/stimm-core/internal/codec"
	"github.com/stimmlabs/stimm-core/internal/config"
	"github.com/stimmlabs/stimm-core/internal/slotstore"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func openBook(t *testing.T) (*Book, *slotstore.Store) {
	t.Helper()
	cfg := config.StoreConfig{Path: filepath.Join(t.TempDir(), "slots.db")}
	store, err := slotstore.Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	book, err := Open(context.Background(), store, newLogger())
	if err != nil {
		t.Fatalf("open book: %v", err)
	}
	return book, store
}

func TestFreshBookIsSeeded(t *testing.T) {
	book, _ := openBook(t)
	phrases := book.Phrases()
	if len(phrases) != 16 {
		t.Fatalf("expected 16 seed phrases, got %d", len(phrases))
	}
	if _, ok := book.PhraseByID(1); !ok {
		t.Fatal("expected seed phrase with id 1")
	}
	if len(book.Recordings()) != 0 {
		t.Fatal("expected no recordings on first run")
	}
	if book.Credential() != "" {
		t.Fatal("expected no credential on first run")
	}
}

func TestAddPhrasePrependsAndPersists(t *testing.T) {
	book, store := openBook(t)
	book.clock = func() time.Time { return time.UnixMilli(1700000000000) }

	p, err := book.AddPhrase(context.Background(), "Ich bin müde.", LangGerman)
	if err != nil {
		t.Fatalf("add phrase: %v", err)
	}
	if p.ID != 1700000000000 {
		t.Fatalf("expected timestamp id, got %d", p.ID)
	}
	if book.Phrases()[0].ID != p.ID {
		t.Fatal("expected new phrase first")
	}

	// Reopen from the same store: the addition must have been written through.
	reopened, err := Open(context.Background(), store, newLogger())
	if err != nil {
		t.Fatalf("reopen book: %v", err)
	}
	if len(reopened.Phrases()) != 17 {
		t.Fatalf("expected 17 phrases after reopen, got %d", len(reopened.Phrases()))
	}
	if reopened.Phrases()[0].Text != "Ich bin müde." {
		t.Fatalf("expected added phrase first after reopen")
	}
}

func TestRecordingRoundTrip(t *testing.T) {
	book, store := openBook(t)
	blob := codec.Blob{MIMEType: "audio/webm", Data: []byte("take-one")}

	rec, err := book.AddRecording(context.Background(), 3, blob)
	if err != nil {
		t.Fatalf("add recording: %v", err)
	}
	if rec.ID == "" {
		t.Fatal("expected generated recording id")
	}

	got := book.RecordingsForPhrase(3)
	if len(got) != 1 {
		t.Fatalf("expected one take for phrase 3, got %d", len(got))
	}
	decoded, err := got[0].Decode()
	if err != nil {
		t.Fatalf("decode stored recording: %v", err)
	}
	if string(decoded.Data) != "take-one" || decoded.MIMEType != "audio/webm" {
		t.Fatalf("audio altered by storage: %+v", decoded)
	}

	reopened, err := Open(context.Background(), store, newLogger())
	if err != nil {
		t.Fatalf("reopen book: %v", err)
	}
	if len(reopened.Recordings()) != 1 {
		t.Fatal("expected recording to survive reopen")
	}
}

func TestDeleteRecording(t *testing.T) {
	book, _ := openBook(t)
	blob := codec.Blob{MIMEType: "audio/webm", Data: []byte("x")}
	rec, err := book.AddRecording(context.Background(), 1, blob)
	if err != nil {
		t.Fatalf("add recording: %v", err)
	}
	if err := book.DeleteRecording(context.Background(), rec.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(book.Recordings()) != 0 {
		t.Fatal("expected recording removed")
	}
	if err := book.DeleteRecording(context.Background(), "no-such-id"); err != nil {
		t.Fatalf("deleting unknown id must be a no-op, got %v", err)
	}
}

func TestCredentialLifecycle(t *testing.T) {
	book, store := openBook(t)
	if err := book.SetCredential(context.Background(), "key-123"); err != nil {
		t.Fatalf("set credential: %v", err)
	}
	if book.Credential() != "key-123" {
		t.Fatalf("unexpected credential %q", book.Credential())
	}

	reopened, err := Open(context.Background(), store, newLogger())
	if err != nil {
		t.Fatalf("reopen book: %v", err)
	}
	if reopened.Credential() != "key-123" {
		t.Fatal("expected credential to survive reopen")
	}

	if err := book.ClearCredential(context.Background()); err != nil {
		t.Fatalf("clear credential: %v", err)
	}
	if book.Credential() != "" {
		t.Fatal("expected credential cleared")
	}
}
