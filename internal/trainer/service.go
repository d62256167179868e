// Package trainer runs the training and recognition sessions: it drives the
// recorder from control messages, commits finished takes to the phrase
// book, and hands recognition takes to the transcriber.
package trainer

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stimmlabs/stimm-core/internal/bus"
	"github.com/stimmlabs/stimm-core/internal/capture"
	"github.com/stimmlabs/stimm-core/internal/codec"
	"github.com/stimmlabs/stimm-core/internal/config"
	"github.com/stimmlabs/stimm-core/internal/phrasebook"
	"github.com/stimmlabs/stimm-core/internal/protocol"
	"github.com/stimmlabs/stimm-core/internal/transcribe"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SourceFactory opens the audio source for a new session.
type SourceFactory func(sessionID string) (capture.Source, error)

// publisher is the slice of the NATS connection the service needs, kept
// narrow so tests can observe published messages.
type publisher interface {
	Publish(subject string, data []byte) error
}

type Service struct {
	cfg         config.TrainerConfig
	maxExamples int
	timeout     time.Duration
	bus         *bus.Client
	pub         publisher
	book        *phrasebook.Book
	transcriber transcribe.Transcriber
	sources     SourceFactory
	sub         *nats.Subscription
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	logger      *slog.Logger

	mu       sync.Mutex
	sessions map[string]*session

	rngMu sync.Mutex
	rng   *rand.Rand

	takeCounter      metric.Int64Counter
	recognizeCounter metric.Int64Counter
}

type session struct {
	recorder *capture.Recorder
	mode     string
	phraseID int64
	gender   string
}

func NewService(
	parent context.Context,
	cfg config.TrainerConfig,
	tcfg config.TranscribeConfig,
	busClient *bus.Client,
	book *phrasebook.Book,
	transcriber transcribe.Transcriber,
	sources SourceFactory,
	rng *rand.Rand,
	log *slog.Logger,
) *Service {
	ctx, cancel := context.WithCancel(parent)
	s := &Service{
		cfg:         cfg,
		maxExamples: tcfg.MaxExamples,
		timeout:     time.Duration(tcfg.TimeoutMS) * time.Millisecond,
		bus:         busClient,
		book:        book,
		transcriber: transcriber,
		sources:     sources,
		ctx:         ctx,
		cancel:      cancel,
		logger:      log.With(slog.String("component", "trainer")),
		sessions:    make(map[string]*session),
		rng:         rng,
	}
	if busClient != nil {
		s.pub = busClient.Conn()
	}
	s.initMetrics()
	return s
}

func (s *Service) initMetrics() {
	meter := otel.Meter("github.com/stimmlabs/stimm-core/runtime")
	takes, err := meter.Int64Counter("stimm.trainer.takes",
		metric.WithDescription("Training takes committed to the phrase book"))
	if err != nil {
		s.logger.Warn("failed to initialize metrics", slogError(err))
		return
	}
	recognitions, err := meter.Int64Counter("stimm.trainer.recognitions",
		metric.WithDescription("Recognition requests settled"))
	if err != nil {
		s.logger.Warn("failed to initialize metrics", slogError(err))
		return
	}
	s.takeCounter = takes
	s.recognizeCounter = recognitions
}

func (s *Service) Start() error {
	if !s.cfg.Enabled {
		return nil
	}
	sub, err := s.bus.Conn().Subscribe(protocol.SubjectCaptureControl, s.handleControl)
	if err != nil {
		return err
	}
	s.sub = sub
	return nil
}

func (s *Service) Close() {
	s.cancel()
	if s.sub != nil {
		_ = s.sub.Drain()
	}
	s.wg.Wait()
}

func (s *Service) Healthy() bool { return !s.cfg.Enabled || s.sub != nil }

func (s *Service) handleControl(msg *nats.Msg) {
	var ctrl protocol.CaptureControl
	if err := json.Unmarshal(msg.Data, &ctrl); err != nil {
		s.logger.Warn("failed to decode capture control", slogError(err))
		return
	}
	s.apply(ctrl)
}

func (s *Service) apply(ctrl protocol.CaptureControl) {
	if ctrl.SessionID == "" {
		s.logger.Warn("capture control without session id", slog.String("action", ctrl.Action))
		return
	}
	switch ctrl.Action {
	case protocol.ActionStart:
		s.startSession(ctrl)
	case protocol.ActionStop:
		s.stopSession(ctrl.SessionID)
	case protocol.ActionReset:
		s.resetSession(ctrl.SessionID)
	default:
		s.logger.Warn("unknown capture action", slog.String("action", ctrl.Action))
	}
}

func (s *Service) startSession(ctrl protocol.CaptureControl) {
	s.mu.Lock()
	if _, exists := s.sessions[ctrl.SessionID]; exists {
		s.mu.Unlock()
		s.logger.Warn("session already active", slog.String("session_id", ctrl.SessionID))
		return
	}
	s.mu.Unlock()

	source, err := s.sources(ctrl.SessionID)
	if err != nil {
		s.logger.Warn("failed to open audio source", slogError(err))
		s.publishResult(protocol.RecognitionResult{
			SessionID: ctrl.SessionID,
			Mode:      ctrl.Mode,
			Error:     err.Error(),
			Timestamp: time.Now().UTC(),
		})
		return
	}

	recorder := capture.NewRecorder(source, s.logger)
	if err := recorder.Start(s.ctx); err != nil {
		s.logger.Warn("capture start failed", slogError(err),
			slog.String("session_id", ctrl.SessionID))
		s.publishResult(protocol.RecognitionResult{
			SessionID: ctrl.SessionID,
			Mode:      ctrl.Mode,
			Error:     err.Error(),
			Timestamp: time.Now().UTC(),
		})
		return
	}

	s.mu.Lock()
	s.sessions[ctrl.SessionID] = &session{
		recorder: recorder,
		mode:     ctrl.Mode,
		phraseID: ctrl.PhraseID,
		gender:   ctrl.Gender,
	}
	s.mu.Unlock()

	// The source is subscribed now; tell senders it is safe to stream.
	started := protocol.CaptureStarted{
		SessionID: ctrl.SessionID,
		Mode:      ctrl.Mode,
		Timestamp: time.Now().UTC(),
	}
	if data, err := json.Marshal(started); err == nil {
		if err := s.pub.Publish(protocol.SubjectCaptureStarted, data); err != nil {
			s.logger.Warn("failed to publish session start", slogError(err))
		}
	}

	s.logger.Info("capture session started",
		slog.String("session_id", ctrl.SessionID),
		slog.String("mode", ctrl.Mode))
}

func (s *Service) stopSession(sessionID string) {
	s.mu.Lock()
	sess := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	if sess == nil {
		s.logger.Warn("stop for unknown session", slog.String("session_id", sessionID))
		return
	}

	blob, ok := sess.recorder.Stop()
	if !ok || len(blob.Data) == 0 {
		s.logger.Warn("session produced no audio", slog.String("session_id", sessionID))
		sess.recorder.Reset()
		return
	}

	switch sess.mode {
	case protocol.ModeTraining:
		s.commitTake(sessionID, sess, blob)
	case protocol.ModeRecognition:
		s.recognizeTake(sessionID, sess, blob)
	default:
		s.logger.Warn("session has unknown mode",
			slog.String("session_id", sessionID),
			slog.String("mode", sess.mode))
	}
}

func (s *Service) resetSession(sessionID string) {
	s.mu.Lock()
	sess := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	if sess == nil {
		return
	}
	// Stop first in case the take is still running, then discard it.
	sess.recorder.Stop()
	sess.recorder.Reset()
	s.logger.Info("capture session reset", slog.String("session_id", sessionID))
}

func (s *Service) commitTake(sessionID string, sess *session, blob codec.Blob) {
	ctx, cancel := context.WithTimeout(s.ctx, 10*time.Second)
	defer cancel()

	rec, err := s.book.AddRecording(ctx, sess.phraseID, blob)
	if err != nil {
		s.logger.Warn("failed to store take", slogError(err))
		return
	}
	sess.recorder.Reset()

	saved := protocol.TrainingSaved{
		SessionID:   sessionID,
		RecordingID: rec.ID,
		PhraseID:    rec.PhraseID,
		Timestamp:   time.Now().UTC(),
	}
	if data, err := json.Marshal(saved); err == nil {
		if err := s.pub.Publish(protocol.SubjectTrainingSaved, data); err != nil {
			s.logger.Warn("failed to publish training result", slogError(err))
		}
	}
	if s.takeCounter != nil {
		s.takeCounter.Add(ctx, 1)
	}
	s.logger.Info("training take stored",
		slog.String("recording_id", rec.ID),
		slog.Int64("phrase_id", rec.PhraseID))
}

func (s *Service) recognizeTake(sessionID string, sess *session, blob codec.Blob) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
		defer cancel()

		examples := s.sampleExamples()
		s.logger.Debug("recognizing take",
			slog.Int("examples", len(examples)),
			slog.Int("audio_bytes", len(blob.Data)))
		text, err := s.transcriber.Transcribe(ctx, blob, examples)

		result := protocol.RecognitionResult{
			SessionID: sessionID,
			Mode:      protocol.ModeRecognition,
			Timestamp: time.Now().UTC(),
		}
		switch {
		case errors.Is(err, transcribe.ErrInvalidCredential):
			// Discard the stored key so the next attempt asks for a new one.
			if clearErr := s.book.ClearCredential(ctx); clearErr != nil {
				s.logger.Warn("failed to clear rejected credential", slogError(clearErr))
			}
			result.Error = err.Error()
			result.CredentialRejected = true
		case err != nil:
			s.logger.Warn("recognition failed", slogError(err))
			result.Error = err.Error()
		default:
			result.Text = text
		}

		sess.recorder.Reset()
		s.publishResult(result)
		if s.recognizeCounter != nil {
			s.recognizeCounter.Add(ctx, 1,
				metric.WithAttributes(attribute.Bool("ok", result.Error == "")))
		}

		if s.cfg.SpeakResults && result.Text != "" {
			s.requestSpeech(result.Text, sess.gender)
		}
	}()
}

func (s *Service) publishResult(result protocol.RecognitionResult) {
	data, err := json.Marshal(result)
	if err != nil {
		s.logger.Warn("failed to marshal recognition result", slogError(err))
		return
	}
	if err := s.pub.Publish(protocol.SubjectRecognizeResult, data); err != nil {
		s.logger.Warn("failed to publish recognition result", slogError(err))
	}
}

func (s *Service) requestSpeech(text, gender string) {
	req := protocol.SpeakRequest{Text: text, Gender: gender}
	data, err := json.Marshal(req)
	if err != nil {
		return
	}
	if err := s.pub.Publish(protocol.SubjectSpeakRequest, data); err != nil {
		s.logger.Warn("failed to publish speak request", slogError(err))
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
