package transcoder

import (
	"context"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"mediapipe/internal/services"
)

// VideoProbe represents the parsed output of an ffprobe inspection.
type VideoProbe struct {
	Streams []Stream    `json:"streams"`
	Format  ProbeFormat `json:"format"`
}

// Stream describes a single stream in the media container.
type Stream struct {
	Index        int    `json:"index"`
	CodecName    string `json:"codec_name"`
	CodecType    string `json:"codec_type"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	RFrameRate   string `json:"r_frame_rate"`
	AvgFrameRate string `json:"avg_frame_rate"`
	BitRate      string `json:"bit_rate"`
	PixFmt       string `json:"pix_fmt"`
}

// ProbeFormat captures container-level metadata.
type ProbeFormat struct {
	Filename   string `json:"filename"`
	NBStreams  int    `json:"nb_streams"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
	FormatName string `json:"format_name"`
}

// Probe runs ffprobe against path and decodes the JSON response.
func (t *Transcoder) Probe(ctx context.Context, path string) (VideoProbe, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return VideoProbe{}, services.Wrap(services.ErrValidation, "ffprobe", "inspect", "empty path", nil)
	}
	output, err := t.run(ctx, t.ffprobe, "-v", "quiet", "-print_format", "json", "-show_format", "-show_streams", path)
	if err != nil {
		return VideoProbe{}, err
	}
	var probe VideoProbe
	if err := json.Unmarshal(output, &probe); err != nil {
		return VideoProbe{}, services.Wrap(services.ErrExternalTool, "ffprobe", "parse output", "", err)
	}
	return probe, nil
}

// VideoStream returns the first video stream, if any.
func (p VideoProbe) VideoStream() (Stream, bool) {
	for _, stream := range p.Streams {
		if strings.EqualFold(stream.CodecType, "video") {
			return stream, true
		}
	}
	return Stream{}, false
}

// AudioStream returns the first audio stream, if any.
func (p VideoProbe) AudioStream() (Stream, bool) {
	for _, stream := range p.Streams {
		if strings.EqualFold(stream.CodecType, "audio") {
			return stream, true
		}
	}
	return Stream{}, false
}

// DurationSeconds returns the container duration truncated to whole seconds.
func (p VideoProbe) DurationSeconds() int {
	d := parseFloat(p.Format.Duration)
	if math.IsNaN(d) || d < 0 {
		return 0
	}
	return int(d)
}

// BitRate returns the container bitrate in bits per second, or 0 when unavailable.
func (p VideoProbe) BitRate() int64 {
	rate := parseFloat(p.Format.BitRate)
	if math.IsNaN(rate) || rate < 0 {
		return 0
	}
	return int64(rate)
}

// ParseFrameRate evaluates an ffprobe rate such as "30000/1001" by dividing
// numerator by denominator, rounded to two decimals. Plain numbers are
// accepted. Malformed values and zero denominators yield 0.
func ParseFrameRate(value string) float64 {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	num, den, found := strings.Cut(value, "/")
	n, err := strconv.ParseFloat(strings.TrimSpace(num), 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0
	}
	d := 1.0
	if found {
		d, err = strconv.ParseFloat(strings.TrimSpace(den), 64)
		if err != nil || d == 0 || math.IsNaN(d) || math.IsInf(d, 0) {
			return 0
		}
	}
	rate := n / d
	if rate < 0 {
		return 0
	}
	return math.Round(rate*100) / 100
}

func parseFloat(value string) float64 {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return 0
	}
	if parsed, err := strconv.ParseFloat(cleaned, 64); err == nil {
		return parsed
	}
	return math.NaN()
}
