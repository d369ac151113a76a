package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// TailOptions selects which lines Tail returns. A negative Offset means
// "the last Limit lines"; otherwise reading starts at Offset.
type TailOptions struct {
	Offset int64
	Limit  int
	Follow bool
	Wait   time.Duration
	// Filter keeps only lines for which it returns true. Nil keeps all.
	Filter func(line string) bool
}

// TailResult carries the lines read and the offset to resume from.
type TailResult struct {
	Lines  []string
	Offset int64
}

const pollInterval = 250 * time.Millisecond

// Tail reads path according to opts. A missing file yields no lines.
func Tail(ctx context.Context, path string, opts TailOptions) (TailResult, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return TailResult{}, nil
	}
	if err != nil {
		return TailResult{Offset: opts.Offset}, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return TailResult{Offset: opts.Offset}, fmt.Errorf("log path %q is a directory", path)
	}

	var result TailResult
	if opts.Offset < 0 {
		result, err = scan(path, 0, opts.Filter, opts.Limit)
	} else {
		start := opts.Offset
		if start > info.Size() {
			start = 0
		}
		result, err = scan(path, start, opts.Filter, 0)
	}
	if err != nil || len(result.Lines) > 0 || !opts.Follow || opts.Wait <= 0 {
		return result, err
	}
	return wait(ctx, path, result.Offset, opts)
}

// scan reads from offset to EOF. A positive keep retains only the last keep
// lines; zero keeps everything.
func scan(path string, offset int64, filter func(string) bool, keep int) (TailResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return TailResult{Offset: offset}, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return TailResult{Offset: offset}, fmt.Errorf("seek log file: %w", err)
	}

	reader := bufio.NewReaderSize(file, 64*1024)
	var lines []string
	pos := offset
	for {
		line, err := reader.ReadString('\n')
		if err == io.EOF {
			// A partial trailing line is left for the next read.
			break
		}
		if err != nil {
			return TailResult{Offset: offset}, fmt.Errorf("read log file: %w", err)
		}
		pos += int64(len(line))
		line = strings.TrimRight(line, "\r\n")
		if filter != nil && !filter(line) {
			continue
		}
		lines = append(lines, line)
		if keep > 0 && len(lines) > keep {
			lines = lines[1:]
		}
	}
	return TailResult{Lines: lines, Offset: pos}, nil
}

func wait(ctx context.Context, path string, offset int64, opts TailOptions) (TailResult, error) {
	deadline := time.Now().Add(opts.Wait)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return TailResult{Offset: offset}, ctx.Err()
		case <-ticker.C:
		}
		result, err := scan(path, offset, opts.Filter, 0)
		if err != nil || len(result.Lines) > 0 || time.Now().After(deadline) {
			return result, err
		}
		offset = result.Offset
	}
}

// AssetFilter matches lines carrying asset_id=<id> (console) or
// "asset_id":<id> (JSON).
func AssetFilter(id int64) func(string) bool {
	value := strconv.FormatInt(id, 10)
	console := "asset_id=" + value
	jsonKey := `"asset_id":` + value
	return func(line string) bool {
		return hasField(line, console) || hasField(line, jsonKey)
	}
}

// hasField reports whether token appears in line and is not a prefix of a
// longer number.
func hasField(line, token string) bool {
	for rest := line; ; {
		idx := strings.Index(rest, token)
		if idx < 0 {
			return false
		}
		end := idx + len(token)
		if end == len(rest) || rest[end] < '0' || rest[end] > '9' {
			return true
		}
		rest = rest[end:]
	}
}
