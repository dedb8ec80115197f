package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os/exec"
)

var ErrPlayerUnavailable = errors.New("playback process unavailable")

// DefaultPlayerCommand plays a compressed audio stream read from stdin.
var DefaultPlayerCommand = []string{"mpv", "--no-cache", "--no-terminal", "--", "fd://0"}

// Relay pipes audio frames into the stdin of a playback process. Each Play
// call owns one process for the length of one utterance.
type Relay struct {
	Command []string
	// Stdout and Stderr receive the playback process output; nil discards it.
	Stdout io.Writer
	Stderr io.Writer

	logger *slog.Logger
}

func NewRelay(command []string, logger *slog.Logger) *Relay {
	if len(command) == 0 {
		command = DefaultPlayerCommand
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{Command: command, logger: logger.With("component", "relay")}
}

// Check fails when the playback binary cannot be found.
func (r *Relay) Check() error {
	if len(r.Command) == 0 {
		return fmt.Errorf("%w: no command configured", ErrPlayerUnavailable)
	}
	if _, err := exec.LookPath(r.Command[0]); err != nil {
		return fmt.Errorf("%w: %v", ErrPlayerUnavailable, err)
	}
	return nil
}

// Play writes every frame to the playback process as it arrives, then closes
// its stdin and waits for it to finish.
func (r *Relay) Play(ctx context.Context, frames iter.Seq[[]byte]) error {
	if err := r.Check(); err != nil {
		return err
	}
	cmd := exec.CommandContext(ctx, r.Command[0], r.Command[1:]...)
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("playback stdin: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: %v", ErrPlayerUnavailable, err)
	}

	var writeErr error
	written := 0
	for frame := range frames {
		if len(frame) == 0 {
			continue
		}
		if _, err := stdin.Write(frame); err != nil {
			writeErr = fmt.Errorf("write frame: %w", err)
			break
		}
		written += len(frame)
	}
	_ = stdin.Close()
	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if writeErr != nil {
		return writeErr
	}
	if waitErr != nil {
		return fmt.Errorf("playback exited: %w", waitErr)
	}
	r.logger.Debug("playback finished", "bytes", written)
	return nil
}
