package speech

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/stimmlabs/stimm-core/internal/bus"
	"github.com/stimmlabs/stimm-core/internal/config"
	"github.com/stimmlabs/stimm-core/internal/protocol"
)

// Service voices speak requests arriving on the bus. Each request cancels
// whatever is still playing before the new utterance starts.
type Service struct {
	cfg    config.SpeechConfig
	bus    *bus.Client
	sink   Sink
	sub    *nats.Subscription
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger
}

func NewService(parent context.Context, cfg config.SpeechConfig, busClient *bus.Client, sink Sink, log *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		cfg:    cfg,
		bus:    busClient,
		sink:   sink,
		ctx:    ctx,
		cancel: cancel,
		logger: log.With(slog.String("component", "speech-service")),
	}
}

func (s *Service) Start() error {
	if !s.cfg.Enabled {
		return nil
	}
	sub, err := s.bus.Conn().Subscribe(protocol.SubjectSpeakRequest, s.handleRequest)
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
	s.sink.Cancel()
}

func (s *Service) Healthy() bool { return !s.cfg.Enabled || s.sub != nil }

func (s *Service) handleRequest(msg *nats.Msg) {
	var req protocol.SpeakRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.logger.Warn("failed to decode speak request", slogError(err))
		return
	}
	if req.Text == "" {
		return
	}

	gender := Gender(req.Gender)
	if gender == "" {
		gender = Gender(s.cfg.DefaultGender)
	}

	utterance := Utterance{
		Text: req.Text,
		Lang: s.cfg.Locale,
		Rate: s.cfg.Rate,
	}
	if voices, err := s.sink.Voices(s.ctx); err != nil {
		s.logger.Warn("voice listing failed, using backend default", slogError(err))
	} else if v, ok := SelectVoice(voices, s.cfg.Language, s.cfg.Locale, gender); ok {
		utterance.Voice = v.Name
	}

	s.sink.Cancel()
	if err := s.sink.Speak(s.ctx, utterance); err != nil {
		s.logger.Warn("speech playback failed", slogError(err))
		return
	}
	s.logger.Debug("speaking",
		slog.String("voice", utterance.Voice),
		slog.Int("chars", len(req.Text)))
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
