// Package speech plays phrase text aloud through a synthesis backend so a
// speaker can hear a reference rendition before practicing.
package speech

import "context"

// Gender steers voice selection.
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

// Voice describes one synthesis voice offered by a backend.
type Voice struct {
	Name string `json:"name"`
	Lang string `json:"lang"`
}

// Utterance is one piece of text to voice.
type Utterance struct {
	Text  string  `json:"text"`
	Lang  string  `json:"lang"`
	Rate  float64 `json:"rate"`
	Voice string  `json:"voice,omitempty"`
}

// Sink renders utterances. Speak returns once playback has been handed to
// the backend, not once audio finishes. Cancel stops anything in flight so
// successive phrases never overlap.
type Sink interface {
	Voices(ctx context.Context) ([]Voice, error)
	Speak(ctx context.Context, u Utterance) error
	Cancel()
}
