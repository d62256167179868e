// Package runtime assembles the daemon: embedded bus, stores, transcriber,
// speech sink, trainer, and the health endpoints.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stimmlabs/stimm-core/internal/bus"
	"github.com/stimmlabs/stimm-core/internal/capture"
	"github.com/stimmlabs/stimm-core/internal/config"
	"github.com/stimmlabs/stimm-core/internal/natsserver"
	"github.com/stimmlabs/stimm-core/internal/phrasebook"
	"github.com/stimmlabs/stimm-core/internal/presence"
	"github.com/stimmlabs/stimm-core/internal/slotstore"
	"github.com/stimmlabs/stimm-core/internal/speech"
	"github.com/stimmlabs/stimm-core/internal/trainer"
	"github.com/stimmlabs/stimm-core/internal/transcribe"
)

type Runtime struct {
	cfg         config.Config
	logger      *slog.Logger
	httpServer  *http.Server
	tracerClose func(context.Context) error
	ready       atomic.Bool
	wg          sync.WaitGroup

	embedded *natsserver.EmbeddedServer
	bus      *bus.Client
	store    *slotstore.Store
	book     *phrasebook.Book
	speech   *speech.Service
	trainer  *trainer.Service
	presence *presence.Registry
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

// Start brings up every component and blocks until the context is
// cancelled, then tears them down in reverse order.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	embedded, err := natsserver.Start(r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("failed to start embedded bus: %w", err)
	}
	r.embedded = embedded

	busClient, err := bus.Connect(ctx, r.cfg.Bus, r.logger)
	if err != nil {
		r.teardown()
		return fmt.Errorf("failed to connect to bus: %w", err)
	}
	r.bus = busClient

	store, err := slotstore.Open(ctx, r.cfg.Store, r.logger)
	if err != nil {
		r.teardown()
		return fmt.Errorf("failed to open slot store: %w", err)
	}
	r.store = store

	book, err := phrasebook.Open(ctx, store, r.logger)
	if err != nil {
		r.teardown()
		return fmt.Errorf("failed to open phrase book: %w", err)
	}
	r.book = book

	transcriber, err := r.buildTranscriber()
	if err != nil {
		r.teardown()
		return err
	}

	sink, err := r.buildSpeechSink()
	if err != nil {
		r.teardown()
		return err
	}
	r.speech = speech.NewService(ctx, r.cfg.Speech, busClient, sink, r.logger)
	if err := r.speech.Start(); err != nil {
		r.teardown()
		return fmt.Errorf("failed to start speech service: %w", err)
	}

	sources, err := r.buildSourceFactory()
	if err != nil {
		r.teardown()
		return err
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	r.trainer = trainer.NewService(ctx, r.cfg.Trainer, r.cfg.Transcribe,
		busClient, book, transcriber, sources, rng, r.logger)
	if err := r.trainer.Start(); err != nil {
		r.teardown()
		return fmt.Errorf("failed to start trainer: %w", err)
	}

	registry, err := presence.NewRegistry(ctx, r.cfg.Node, busClient, r.logger)
	if err != nil {
		r.teardown()
		return fmt.Errorf("failed to start presence registry: %w", err)
	}
	r.presence = registry

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("addr", addr))

	<-ctx.Done()
	r.logger.Info("runtime stopping")
	r.ready.Store(false)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.wg.Wait()

	r.teardown()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

// teardown closes whatever came up, newest first. Safe to call with any
// prefix of the components started, so failed startups unwind through the
// same path as a normal shutdown.
func (r *Runtime) teardown() {
	if r.presence != nil {
		r.presence.Close()
	}
	if r.trainer != nil {
		r.trainer.Close()
	}
	if r.speech != nil {
		r.speech.Close()
	}
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			r.logger.Error("slot store shutdown error", slog.String("error", err.Error()))
		}
	}
	r.bus.Close()
	r.embedded.Shutdown()
}

// buildTranscriber selects the transcription backend. The Gemini client
// resolves its key per request: the environment variable wins, then the
// credential stored in the phrase book.
func (r *Runtime) buildTranscriber() (transcribe.Transcriber, error) {
	switch r.cfg.Transcribe.Mode {
	case "mock":
		return &transcribe.MockTranscriber{}, nil
	case "gemini":
		keyEnv := r.cfg.Transcribe.APIKeyEnv
		credential := func(context.Context) (string, error) {
			if keyEnv != "" {
				if key := os.Getenv(keyEnv); key != "" {
					return key, nil
				}
			}
			return r.book.Credential(), nil
		}
		return transcribe.NewGeminiClient(r.cfg.Transcribe, credential, r.logger), nil
	default:
		return nil, fmt.Errorf("unknown transcribe mode %q", r.cfg.Transcribe.Mode)
	}
}

func (r *Runtime) buildSpeechSink() (speech.Sink, error) {
	switch r.cfg.Speech.Mode {
	case "mock":
		return speech.NewMockSink(), nil
	case "exec":
		sink, err := speech.NewExecSink(r.cfg.Speech.Command)
		if err != nil {
			return nil, fmt.Errorf("failed to build speech sink: %w", err)
		}
		return sink, nil
	default:
		return nil, fmt.Errorf("unknown speech mode %q", r.cfg.Speech.Mode)
	}
}

func (r *Runtime) buildSourceFactory() (trainer.SourceFactory, error) {
	switch r.cfg.Capture.Mode {
	case "mock":
		return func(string) (capture.Source, error) {
			return capture.NewMockSource(nil), nil
		}, nil
	case "exec":
		command := r.cfg.Capture.Command
		return func(string) (capture.Source, error) {
			return capture.NewExecSource(command, r.logger)
		}, nil
	case "bus":
		return func(sessionID string) (capture.Source, error) {
			return trainer.NewBusSource(r.bus, sessionID), nil
		}, nil
	default:
		return nil, fmt.Errorf("unknown capture mode %q", r.cfg.Capture.Mode)
	}
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if r.bus.Healthy() && r.speech.Healthy() && r.trainer.Healthy() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("unhealthy"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
