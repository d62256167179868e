package trainer

import (
	"github.com/stimmlabs/stimm-core/internal/transcribe"
)

// sampleExamples draws the priming set for one recognition. The rng is the
// only state shared between in-flight recognitions, so the lock covers just
// the sampling step and is never held across the remote call.
func (s *Service) sampleExamples() []transcribe.Example {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return transcribe.BuildExamples(s.book.Recordings(), func(id int64) (string, bool) {
		p, ok := s.book.PhraseByID(id)
		return p.Text, ok
	}, s.maxExamples, s.rng, s.logger)
}
