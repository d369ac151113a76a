package transcoder

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	draptolib "github.com/five82/drapto"

	"mediapipe/internal/logging"
)

func TestDraptoReporterSamplesProgress(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "drapto.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("logging.New: %v", err)
	}
	rep := newDraptoReporter(logger)

	for _, snap := range []draptolib.ProgressSnapshot{
		{Percent: 1}, {Percent: 4}, {Percent: 9}, {Percent: 11},
		{Percent: 12}, {Percent: 35}, {Percent: 36}, {Percent: 100},
	} {
		rep.EncodingProgress(snap)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	content := string(data)
	if got := strings.Count(content, "drapto encoding progress"); got != 4 {
		t.Fatalf("expected 4 sampled progress lines (0, 10, 30, 100), got %d:\n%s", got, content)
	}
}
