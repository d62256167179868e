package transcribe

import (
	"log/slog"
	"math/rand"

	"github.com/stimmlabs/stimm-core/internal/phrasebook"
)

// BuildExamples samples up to max reference recordings, uniformly at
// random, and pairs each with its phrase text. Recordings whose phrase was
// deleted or whose audio no longer decodes are skipped, and the sampler
// keeps drawing until max examples are collected or the pool runs dry.
func BuildExamples(
	recordings []phrasebook.StoredRecording,
	phraseText func(int64) (string, bool),
	max int,
	rng *rand.Rand,
	log *slog.Logger,
) []Example {
	if max <= 0 || len(recordings) == 0 {
		return nil
	}

	pool := make([]phrasebook.StoredRecording, len(recordings))
	copy(pool, recordings)
	rng.Shuffle(len(pool), func(i, j int) {
		pool[i], pool[j] = pool[j], pool[i]
	})

	examples := make([]Example, 0, max)
	for _, rec := range pool {
		if len(examples) == max {
			break
		}
		text, ok := phraseText(rec.PhraseID)
		if !ok {
			log.Debug("skipping recording of deleted phrase",
				slog.String("recording_id", rec.ID),
				slog.Int64("phrase_id", rec.PhraseID))
			continue
		}
		audio, err := rec.Decode()
		if err != nil {
			log.Warn("skipping undecodable recording",
				slog.String("recording_id", rec.ID),
				slog.String("error", err.Error()))
			continue
		}
		examples = append(examples, Example{Audio: audio, Text: text})
	}
	return examples
}
