package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Bus.Servers[0] != "nats://localhost:4222" {
		t.Fatalf("expected default server, got %v", cfg.Bus.Servers)
	}
	if cfg.Transcribe.MaxExamples != 5 {
		t.Fatalf("expected 5 max examples, got %d", cfg.Transcribe.MaxExamples)
	}
	if cfg.Speech.Locale != "de-DE" {
		t.Fatalf("expected de-DE locale, got %s", cfg.Speech.Locale)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("STIMM_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("STIMM_STORE_PATH", "./tmp.db")
	t.Setenv("STIMM_TRANSCRIBE_MODEL", "gemini-2.5-pro")
	t.Setenv("STIMM_TRANSCRIBE_MAX_EXAMPLES", "3")
	t.Setenv("STIMM_SPEECH_DEFAULT_GENDER", "female")
	t.Setenv("STIMM_SPEECH_RATE", "1.1")
	t.Setenv("STIMM_CAPTURE_MODE", "mock")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Store.Path != "./tmp.db" {
		t.Fatalf("expected store path override")
	}
	if cfg.Transcribe.Model != "gemini-2.5-pro" {
		t.Fatalf("expected model override, got %s", cfg.Transcribe.Model)
	}
	if cfg.Transcribe.MaxExamples != 3 {
		t.Fatalf("expected max examples override, got %d", cfg.Transcribe.MaxExamples)
	}
	if cfg.Speech.DefaultGender != "female" {
		t.Fatalf("expected gender override")
	}
	if cfg.Speech.Rate != 1.1 {
		t.Fatalf("expected rate override, got %v", cfg.Speech.Rate)
	}
	if cfg.Capture.Mode != "mock" {
		t.Fatalf("expected capture mode override")
	}
}

func TestValidateRejectsBadCaptureMode(t *testing.T) {
	t.Setenv("STIMM_CAPTURE_MODE", "portaudio")
	if _, err := Load(""); err == nil {
		t.Fatal("expected validation error for unknown capture mode")
	}
}
