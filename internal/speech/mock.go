package speech

import (
	"context"
	"sync"
)

// MockSink records utterances for tests and development runs.
type MockSink struct {
	VoiceList []Voice

	mu      sync.Mutex
	spoken  []Utterance
	cancels int
}

func NewMockSink(voices ...Voice) *MockSink {
	return &MockSink{VoiceList: voices}
}

func (m *MockSink) Voices(_ context.Context) ([]Voice, error) {
	return m.VoiceList, nil
}

func (m *MockSink) Speak(_ context.Context, u Utterance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.spoken = append(m.spoken, u)
	return nil
}

func (m *MockSink) Cancel() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancels++
}

// Spoken returns a copy of everything spoken so far.
func (m *MockSink) Spoken() []Utterance {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Utterance, len(m.spoken))
	copy(out, m.spoken)
	return out
}

// Cancels returns how many times playback was cancelled.
func (m *MockSink) Cancels() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancels
}
