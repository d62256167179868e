// Package protocol defines the bus subjects and message payloads exchanged
// between capture nodes, the trainer, and playback nodes.
package protocol

import (
	"fmt"
	"time"
)

// Subjects. Capture chunks are per-session so a recognizer can subscribe to
// exactly one stream.
const (
	SubjectCaptureControl     = "capture.control"
	SubjectCaptureStarted     = "capture.started"
	SubjectCaptureChunkPrefix = "capture.chunk"
	SubjectTrainingSaved      = "training.saved"
	SubjectRecognizeResult    = "recognize.result"
	SubjectSpeakRequest       = "speak.request"
	SubjectNodeAnnounce       = "ctrl.node.announce"
	SubjectNodeHeartbeat      = "ctrl.node.heartbeat"
)

// CaptureChunkSubject returns the chunk subject for a session.
func CaptureChunkSubject(sessionID string) string {
	return fmt.Sprintf("%s.%s", SubjectCaptureChunkPrefix, sessionID)
}

// Control actions and session modes.
const (
	ActionStart = "start"
	ActionStop  = "stop"
	ActionReset = "reset"

	ModeTraining    = "training"
	ModeRecognition = "recognition"
)

// CaptureControl drives a capture session. Start opens the audio source,
// stop finalizes it, reset discards a finished take.
type CaptureControl struct {
	Action    string `json:"action"`
	SessionID string `json:"session_id"`
	Mode      string `json:"mode,omitempty"`
	PhraseID  int64  `json:"phrase_id,omitempty"`
	Gender    string `json:"gender,omitempty"`
}

// CaptureStarted acknowledges a start control: the chunk subscription for
// the session exists and senders may stream. Chunks published before this
// event would be lost, since core NATS only delivers to live subscriptions.
type CaptureStarted struct {
	SessionID string    `json:"session_id"`
	Mode      string    `json:"mode,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// CaptureChunk is one fragment of an in-flight recording. Sequence numbers
// preserve arrival order across the bus; Final marks the end of the stream.
type CaptureChunk struct {
	SessionID string `json:"session_id"`
	Sequence  int    `json:"sequence"`
	MIMEType  string `json:"mime_type"`
	Data      []byte `json:"data"`
	Final     bool   `json:"final,omitempty"`
}

// TrainingSaved announces that a take was committed to the phrase book.
type TrainingSaved struct {
	SessionID   string    `json:"session_id"`
	RecordingID string    `json:"recording_id"`
	PhraseID    int64     `json:"phrase_id"`
	Timestamp   time.Time `json:"timestamp"`
}

// RecognitionResult carries the transcription outcome for a session. Text
// and Error are mutually exclusive. Mode echoes the session mode so
// subscribers can filter capture failures of training sessions.
// CredentialRejected tells subscribers the stored credential was discarded
// and a new one must be supplied.
type RecognitionResult struct {
	SessionID          string    `json:"session_id"`
	Mode               string    `json:"mode,omitempty"`
	Text               string    `json:"text,omitempty"`
	Error              string    `json:"error,omitempty"`
	CredentialRejected bool      `json:"credential_rejected,omitempty"`
	Timestamp          time.Time `json:"timestamp"`
}

// SpeakRequest asks a playback node to voice a piece of text.
type SpeakRequest struct {
	Text   string `json:"text"`
	Gender string `json:"gender,omitempty"`
}

// NodeAnnounce is sent once when a node joins the mesh.
type NodeAnnounce struct {
	NodeID    string    `json:"node_id"`
	Role      string    `json:"role"`
	Timestamp time.Time `json:"timestamp"`
}

// NodeHeartbeat is sent periodically while a node is alive.
type NodeHeartbeat struct {
	NodeID    string    `json:"node_id"`
	Timestamp time.Time `json:"timestamp"`
}
