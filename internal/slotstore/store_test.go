package slotstore

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stimmlabs/stimm-core/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func openStore(t *testing.T) *Store {
	t.Helper()
	cfg := config.StoreConfig{Path: filepath.Join(t.TempDir(), "slots.db")}
	s, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open slot store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestMissingSlotKeepsDefault(t *testing.T) {
	s := openStore(t)
	values := []string{"seed"}
	ok, err := s.Load(context.Background(), "phrases", &values)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if ok {
		t.Fatal("expected missing slot")
	}
	if len(values) != 1 || values[0] != "seed" {
		t.Fatalf("default mutated: %v", values)
	}
}

func TestSaveThenLoad(t *testing.T) {
	s := openStore(t)
	if err := s.Save(context.Background(), "phrases", []string{"a", "b"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	var values []string
	ok, err := s.Load(context.Background(), "phrases", &values)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !ok || len(values) != 2 {
		t.Fatalf("expected stored values, got ok=%v %v", ok, values)
	}
}

func TestCorruptSlotFallsBackToDefault(t *testing.T) {
	s := openStore(t)
	_, err := s.db.Exec(`INSERT INTO slots(name, value, updated_at) VALUES('recordings', '{not json', CURRENT_TIMESTAMP)`)
	if err != nil {
		t.Fatalf("inject corrupt slot: %v", err)
	}
	values := []int{42}
	ok, err := s.Load(context.Background(), "recordings", &values)
	if err != nil {
		t.Fatalf("corrupt slot must not be a hard failure: %v", err)
	}
	if ok {
		t.Fatal("corrupt slot must read as absent")
	}
	if len(values) != 1 || values[0] != 42 {
		t.Fatalf("default mutated: %v", values)
	}
}

func TestStringSlot(t *testing.T) {
	s := openStore(t)
	if err := s.Save(context.Background(), "credential", "secret-key"); err != nil {
		t.Fatalf("save: %v", err)
	}
	var key string
	ok, err := s.Load(context.Background(), "credential", &key)
	if err != nil || !ok {
		t.Fatalf("load credential: ok=%v err=%v", ok, err)
	}
	if key != "secret-key" {
		t.Fatalf("unexpected credential: %q", key)
	}
	if err := s.Delete(context.Background(), "credential"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	key = ""
	ok, err = s.Load(context.Background(), "credential", &key)
	if err != nil {
		t.Fatalf("load after delete: %v", err)
	}
	if ok {
		t.Fatal("expected slot gone after delete")
	}
}
