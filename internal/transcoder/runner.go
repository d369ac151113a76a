package transcoder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"mediapipe/internal/logging"
	"mediapipe/internal/services"
)

// processWaitDelay bounds how long Run waits for output pipes after the
// process group has been killed.
const processWaitDelay = 5 * time.Second

const maxStderrTail = 600

// Markers ffmpeg and ffprobe print when the input itself is unreadable.
var unsupportedInputMarkers = []string{
	"invalid data found when processing input",
	"could not find codec parameters",
	"moov atom not found",
	"no such file or directory",
	"does not contain any stream",
	"unknown format",
}

// run executes tool in its own process group. Cancelling ctx kills the whole
// group with SIGKILL.
func (t *Transcoder) run(ctx context.Context, tool string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, tool, args...) //nolint:gosec
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		if err := unix.Kill(-cmd.Process.Pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
			return err
		}
		return nil
	}
	cmd.WaitDelay = processWaitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	started := time.Now()
	err := cmd.Run()
	t.logger.Debug("external tool finished",
		logging.String("tool", tool),
		logging.Duration("elapsed", time.Since(started)),
		logging.Bool("ok", err == nil),
	)
	if err == nil {
		return stdout.Bytes(), nil
	}
	return nil, classifyRunError(ctx, tool, err, stderr.String())
}

func classifyRunError(ctx context.Context, tool string, err error, stderr string) error {
	name := toolName(tool)
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return services.Wrap(services.ErrTimeout, name, "run", "deadline exceeded; process group killed", ctxErr)
		}
		return fmt.Errorf("%s: %w", name, ctxErr)
	}
	if errors.Is(err, exec.ErrNotFound) {
		return services.Wrap(services.ErrConfiguration, name, "locate binary", "install it or set the transcoder binary path", err)
	}
	tail := stderrTail(stderr)
	lower := strings.ToLower(tail)
	for _, marker := range unsupportedInputMarkers {
		if strings.Contains(lower, marker) {
			return services.Wrap(services.ErrUnsupportedInput, name, "decode input", tail, err)
		}
	}
	return services.Wrap(services.ErrExternalTool, name, "run", tail, err)
}

func stderrTail(stderr string) string {
	stderr = strings.TrimSpace(stderr)
	if len(stderr) > maxStderrTail {
		stderr = "..." + stderr[len(stderr)-maxStderrTail:]
	}
	return stderr
}

func toolName(tool string) string {
	if idx := strings.LastIndexAny(tool, `/\`); idx >= 0 {
		return tool[idx+1:]
	}
	return tool
}
