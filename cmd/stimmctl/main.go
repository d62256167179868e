// stimmctl is the operator tool: it streams a WAV file into a capture
// session, stores the transcriber key, and adds phrases to the phrase book.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/go-audio/wav"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/stimmlabs/stimm-core/internal/config"
	"github.com/stimmlabs/stimm-core/internal/phrasebook"
	"github.com/stimmlabs/stimm-core/internal/protocol"
	"github.com/stimmlabs/stimm-core/internal/slotstore"
)

var version = "0.1.0-dev"

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "expected 'send', 'set-key', 'add-phrase' or 'version'")
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "send":
		err = runSend(os.Args[2:])
	case "set-key":
		err = runSetKey(os.Args[2:])
	case "add-phrase":
		err = runAddPhrase(os.Args[2:])
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runSend(args []string) error {
	var (
		file      string
		servers   string
		sessionID string
		mode      string
		phraseID  int64
		gender    string
		chunkSize int
	)
	cmd := flag.NewFlagSet("send", flag.ExitOnError)
	cmd.StringVar(&file, "file", "", "Path to WAV file")
	cmd.StringVar(&servers, "servers", "nats://localhost:4222", "NATS server URL")
	cmd.StringVar(&sessionID, "session", "", "Session ID (generated when empty)")
	cmd.StringVar(&mode, "mode", protocol.ModeRecognition, "Session mode: training or recognition")
	cmd.Int64Var(&phraseID, "phrase", 0, "Phrase ID (required for training)")
	cmd.StringVar(&gender, "gender", "", "Preferred playback voice gender")
	cmd.IntVar(&chunkSize, "chunk", 32*1024, "Chunk size in bytes")
	cmd.Parse(args)

	if file == "" {
		return fmt.Errorf("-file is required")
	}
	if mode == protocol.ModeTraining && phraseID == 0 {
		return fmt.Errorf("-phrase is required for training")
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read audio file: %w", err)
	}
	decoder := wav.NewDecoder(bytes.NewReader(data))
	if !decoder.IsValidFile() {
		return fmt.Errorf("%s is not a valid WAV file", file)
	}
	duration, err := decoder.Duration()
	if err != nil {
		return fmt.Errorf("read WAV duration: %w", err)
	}
	fmt.Printf("sending %s (%s, %d bytes) as session %s\n", file, duration.Round(time.Millisecond), len(data), sessionID)

	conn, err := nats.Connect(servers, nats.Name("stimmctl"))
	if err != nil {
		return fmt.Errorf("connect to nats: %w", err)
	}
	defer conn.Close()

	// Subscribe to everything we will wait on before publishing anything:
	// core NATS only delivers to subscriptions that already exist.
	startedSub, err := conn.SubscribeSync(protocol.SubjectCaptureStarted)
	if err != nil {
		return fmt.Errorf("subscribe session start: %w", err)
	}
	defer startedSub.Unsubscribe()

	var resultSub *nats.Subscription
	if mode == protocol.ModeRecognition {
		resultSub, err = conn.SubscribeSync(protocol.SubjectRecognizeResult)
		if err != nil {
			return fmt.Errorf("subscribe results: %w", err)
		}
		defer resultSub.Unsubscribe()
	}

	start := protocol.CaptureControl{
		Action:    protocol.ActionStart,
		SessionID: sessionID,
		Mode:      mode,
		PhraseID:  phraseID,
		Gender:    gender,
	}
	if err := publishJSON(conn, protocol.SubjectCaptureControl, start); err != nil {
		return err
	}
	if err := awaitSessionStart(startedSub, sessionID); err != nil {
		return err
	}

	subject := protocol.CaptureChunkSubject(sessionID)
	sequence := 0
	for offset := 0; offset < len(data); offset += chunkSize {
		end := offset + chunkSize
		if end > len(data) {
			end = len(data)
		}
		chunk := protocol.CaptureChunk{
			SessionID: sessionID,
			Sequence:  sequence,
			MIMEType:  "audio/wav",
			Data:      data[offset:end],
		}
		if err := publishJSON(conn, subject, chunk); err != nil {
			return err
		}
		sequence++
	}
	final := protocol.CaptureChunk{SessionID: sessionID, Sequence: sequence, Final: true}
	if err := publishJSON(conn, subject, final); err != nil {
		return err
	}

	stop := protocol.CaptureControl{Action: protocol.ActionStop, SessionID: sessionID}
	if err := publishJSON(conn, protocol.SubjectCaptureControl, stop); err != nil {
		return err
	}
	if err := conn.Flush(); err != nil {
		return err
	}

	if mode == protocol.ModeRecognition {
		return waitForResult(resultSub, sessionID)
	}
	fmt.Println("take sent")
	return nil
}

// awaitSessionStart blocks until the trainer acknowledges the session, so
// no chunk is published before its subscription exists.
func awaitSessionStart(sub *nats.Subscription, sessionID string) error {
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		msg, err := sub.NextMsg(time.Until(deadline))
		if err != nil {
			return fmt.Errorf("wait for session start: %w", err)
		}
		var started protocol.CaptureStarted
		if err := json.Unmarshal(msg.Data, &started); err != nil {
			continue
		}
		if started.SessionID == sessionID {
			return nil
		}
	}
	return fmt.Errorf("timed out waiting for session start")
}

func waitForResult(sub *nats.Subscription, sessionID string) error {
	deadline := time.Now().Add(90 * time.Second)
	for time.Now().Before(deadline) {
		msg, err := sub.NextMsg(time.Until(deadline))
		if err != nil {
			return fmt.Errorf("wait for result: %w", err)
		}
		var result protocol.RecognitionResult
		if err := json.Unmarshal(msg.Data, &result); err != nil {
			continue
		}
		if result.SessionID != sessionID {
			continue
		}
		if result.Error != "" {
			if result.CredentialRejected {
				return fmt.Errorf("recognition failed, credential rejected: %s", result.Error)
			}
			return fmt.Errorf("recognition failed: %s", result.Error)
		}
		fmt.Println(result.Text)
		return nil
	}
	return fmt.Errorf("timed out waiting for recognition result")
}

func runSetKey(args []string) error {
	var (
		storePath string
		key       string
	)
	cmd := flag.NewFlagSet("set-key", flag.ExitOnError)
	cmd.StringVar(&storePath, "store", "./data/stimm-store.db", "Path to slot store")
	cmd.StringVar(&key, "key", "", "Transcriber API key (reads stdin when empty)")
	cmd.Parse(args)

	if key == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read key from stdin: %w", err)
		}
		key = string(bytes.TrimSpace(data))
	}
	if key == "" {
		return fmt.Errorf("key must not be empty")
	}

	ctx := context.Background()
	book, closeStore, err := openBook(ctx, storePath)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := book.SetCredential(ctx, key); err != nil {
		return err
	}
	fmt.Println("credential stored")
	return nil
}

func runAddPhrase(args []string) error {
	var (
		storePath string
		text      string
		lang      string
	)
	cmd := flag.NewFlagSet("add-phrase", flag.ExitOnError)
	cmd.StringVar(&storePath, "store", "./data/stimm-store.db", "Path to slot store")
	cmd.StringVar(&text, "text", "", "Phrase text")
	cmd.StringVar(&lang, "lang", phrasebook.LangGerman, "Phrase language: de or ch")
	cmd.Parse(args)

	if text == "" {
		return fmt.Errorf("-text is required")
	}
	if lang != phrasebook.LangGerman && lang != phrasebook.LangSwiss {
		return fmt.Errorf("-lang must be de or ch")
	}

	ctx := context.Background()
	book, closeStore, err := openBook(ctx, storePath)
	if err != nil {
		return err
	}
	defer closeStore()

	p, err := book.AddPhrase(ctx, text, lang)
	if err != nil {
		return err
	}
	fmt.Printf("phrase %d added\n", p.ID)
	return nil
}

func openBook(ctx context.Context, storePath string) (*phrasebook.Book, func(), error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	store, err := slotstore.Open(ctx, config.StoreConfig{Path: storePath}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("open slot store: %w", err)
	}
	book, err := phrasebook.Open(ctx, store, logger)
	if err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("open phrase book: %w", err)
	}
	return book, func() { store.Close() }, nil
}

func publishJSON(conn *nats.Conn, subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.Publish(subject, data)
}
