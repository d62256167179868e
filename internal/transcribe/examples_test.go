package transcribe

import (
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"testing"

	"github.com/stimmlabs/stimm-core/internal/codec"
	"github.com/stimmlabs/stimm-core/internal/phrasebook"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func makeRecordings(n int, phraseID int64) []phrasebook.StoredRecording {
	recs := make([]phrasebook.StoredRecording, n)
	for i := range recs {
		blob := codec.Blob{MIMEType: "audio/webm", Data: []byte(fmt.Sprintf("audio-%d", i))}
		recs[i] = phrasebook.StoredRecording{
			ID:          fmt.Sprintf("rec-%d", i),
			PhraseID:    phraseID,
			AudioBase64: codec.Encode(blob),
			MIMEType:    blob.MIMEType,
		}
	}
	return recs
}

func allPhrases(int64) (string, bool) { return "Ich habe Durst.", true }

func TestBuildExamplesCapsAtMax(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	examples := BuildExamples(makeRecordings(9, 1), allPhrases, 5, rng, newLogger())
	if len(examples) != 5 {
		t.Fatalf("expected 5 examples, got %d", len(examples))
	}
}

func TestBuildExamplesFewerThanMax(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	examples := BuildExamples(makeRecordings(2, 1), allPhrases, 5, rng, newLogger())
	if len(examples) != 2 {
		t.Fatalf("expected 2 examples, got %d", len(examples))
	}
}

func TestBuildExamplesSkipsOrphansWhileFilling(t *testing.T) {
	// 7 recordings, 2 of which point at a deleted phrase: the sampler
	// must still deliver a full set of 5.
	recs := makeRecordings(5, 1)
	recs = append(recs, makeRecordings(2, 99)...)

	phraseText := func(id int64) (string, bool) {
		if id == 99 {
			return "", false
		}
		return "Mir ist kalt.", true
	}

	rng := rand.New(rand.NewSource(7))
	examples := BuildExamples(recs, phraseText, 5, rng, newLogger())
	if len(examples) != 5 {
		t.Fatalf("expected orphans to be skipped while filling, got %d examples", len(examples))
	}
	for _, ex := range examples {
		if ex.Text != "Mir ist kalt." {
			t.Fatalf("orphan recording leaked into examples: %q", ex.Text)
		}
	}
}

func TestBuildExamplesSkipsUndecodable(t *testing.T) {
	recs := makeRecordings(3, 1)
	recs[1].AudioBase64 = "!!! not base64 !!!"

	rng := rand.New(rand.NewSource(3))
	examples := BuildExamples(recs, allPhrases, 5, rng, newLogger())
	if len(examples) != 2 {
		t.Fatalf("expected undecodable recording skipped, got %d examples", len(examples))
	}
}

func TestBuildExamplesEmptyPool(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	if got := BuildExamples(nil, allPhrases, 5, rng, newLogger()); len(got) != 0 {
		t.Fatalf("expected no examples from empty pool, got %d", len(got))
	}
}
