package speech

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sync"

	"github.com/mattn/go-shellwords"
)

// execSink shells out to an external synthesis program. Speaking pipes one
// JSON utterance to the program's stdin; listing voices runs it with
// --list-voices and reads a JSON array from stdout.
type execSink struct {
	cmd []string

	mu      sync.Mutex
	current *exec.Cmd
}

func NewExecSink(command string) (Sink, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse speech command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("speech command empty")
	}
	return &execSink{cmd: args}, nil
}

func (e *execSink) Voices(ctx context.Context) ([]Voice, error) {
	base := e.cmd[0]
	args := append(append([]string{}, e.cmd[1:]...), "--list-voices")
	out, err := exec.CommandContext(ctx, base, args...).Output()
	if err != nil {
		return nil, fmt.Errorf("list voices: %w", err)
	}
	var voices []Voice
	if err := json.Unmarshal(out, &voices); err != nil {
		return nil, fmt.Errorf("decode voice list: %w", err)
	}
	return voices, nil
}

func (e *execSink) Speak(ctx context.Context, u Utterance) error {
	data, err := json.Marshal(u)
	if err != nil {
		return err
	}

	base := e.cmd[0]
	args := append([]string{}, e.cmd[1:]...)
	cmd := exec.CommandContext(ctx, base, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	if _, err := stdin.Write(data); err != nil {
		stdin.Close()
		cmd.Wait()
		return err
	}
	stdin.Close()

	e.mu.Lock()
	e.current = cmd
	e.mu.Unlock()

	// Reap in the background so playback does not block the caller.
	go func() {
		_ = cmd.Wait()
		e.mu.Lock()
		if e.current == cmd {
			e.current = nil
		}
		e.mu.Unlock()
	}()
	return nil
}

func (e *execSink) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current != nil && e.current.Process != nil {
		_ = e.current.Process.Kill()
		e.current = nil
	}
}
