package capture

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"

	"github.com/mattn/go-shellwords"
	"github.com/stimmlabs/stimm-core/internal/codec"
)

type execSource struct {
	cmd []string
	log *slog.Logger
}

type execChunk struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

// NewExecSource wraps a helper command that records from the local device and
// emits one JSON chunk per line on stdout (base64 payload plus MIME type).
// Killing the process releases the device.
func NewExecSource(command string, log *slog.Logger) (Source, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse capture command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("capture command empty")
	}
	return &execSource{cmd: args, log: log}, nil
}

func (s *execSource) Open(ctx context.Context) (Stream, error) {
	base := s.cmd[0]
	args := append([]string{}, s.cmd[1:]...)
	cmd := exec.Command(base, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("capture command stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start capture command: %w", err)
	}

	st := &execStream{
		cmd: cmd,
		out: make(chan Chunk, 16),
	}

	go func() {
		defer close(st.out)
		defer cmd.Wait()

		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 64*1024), 8*1024*1024)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			var raw execChunk
			if err := json.Unmarshal(line, &raw); err != nil {
				s.log.Warn("skipping malformed capture chunk", slog.String("error", err.Error()))
				continue
			}
			blob, err := codec.Decode(raw.Data, raw.MIMEType)
			if err != nil {
				s.log.Warn("skipping undecodable capture chunk", slog.String("error", err.Error()))
				continue
			}
			st.out <- Chunk{MIMEType: blob.MIMEType, Data: blob.Data}
		}
	}()

	return st, nil
}

type execStream struct {
	cmd  *exec.Cmd
	out  chan Chunk
	once sync.Once
}

func (st *execStream) Chunks() <-chan Chunk { return st.out }

func (st *execStream) Close() error {
	var err error
	st.once.Do(func() {
		if st.cmd.Process != nil {
			err = st.cmd.Process.Kill()
		}
	})
	return err
}
