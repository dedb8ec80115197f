package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"time"
)

// DefaultCaptureCommand records 16 kHz mono PCM16LE to stdout.
var DefaultCaptureCommand = []string{"arecord", "-q", "-f", "S16_LE", "-r", "16000", "-c", "1", "-t", "raw"}

type CaptureConfig struct {
	Command       []string
	SampleRate    int
	FrameDuration time.Duration
	// RecordPath, when set, keeps a WAV copy of everything captured.
	RecordPath string
}

// Capture runs a recording process and slices its output into fixed-size
// PCM frames.
type Capture struct {
	cfg    CaptureConfig
	logger *slog.Logger
}

func NewCapture(cfg CaptureConfig, logger *slog.Logger) *Capture {
	if len(cfg.Command) == 0 {
		cfg.Command = DefaultCaptureCommand
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.FrameDuration <= 0 {
		cfg.FrameDuration = 100 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Capture{cfg: cfg, logger: logger.With("component", "capture")}
}

func (c *Capture) SampleRate() int { return c.cfg.SampleRate }

// FrameBytes is the PCM16 mono frame size for the configured duration.
func (c *Capture) FrameBytes() int {
	n := int(int64(c.cfg.SampleRate) * int64(c.cfg.FrameDuration) / int64(time.Second) * 2)
	if n <= 0 {
		return 2
	}
	return n
}

// Run starts the capture process and sends frames to out until ctx is done
// or the process stops. out is closed on return.
func (c *Capture) Run(ctx context.Context, out chan<- []byte) error {
	defer close(out)

	cmd := exec.CommandContext(ctx, c.cfg.Command[0], c.cfg.Command[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("capture stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start capture %q: %w", c.cfg.Command[0], err)
	}

	var rec *Recorder
	if c.cfg.RecordPath != "" {
		rec, err = CreateRecorder(c.cfg.RecordPath, c.cfg.SampleRate)
		if err != nil {
			c.logger.Warn("recording disabled", "path", c.cfg.RecordPath, "error", err)
		} else {
			defer rec.Close()
		}
	}

	readErr := ReadFrames(ctx, stdout, c.FrameBytes(), rec, out)
	_ = cmd.Process.Kill()
	_ = cmd.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return readErr
}

// ReadFrames reads fixed-size frames from r until EOF or ctx is done. A short
// trailing frame is still delivered. When rec is non-nil every frame is also
// written to it.
func ReadFrames(ctx context.Context, r io.Reader, frameBytes int, rec io.Writer, out chan<- []byte) error {
	for {
		frame := make([]byte, frameBytes)
		n, err := io.ReadFull(r, frame)
		if n > 0 {
			frame = frame[:n]
			if rec != nil {
				_, _ = rec.Write(frame)
			}
			select {
			case out <- frame:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read capture: %w", err)
		}
	}
}
