package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"mediapipe/internal/config"
)

// Requirement defines an external dependency mediapipe relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status is a Requirement plus the result of looking it up on PATH.
type Status struct {
	Requirement
	Available bool
	Detail    string
}

// MediaRequirements lists the external tools the stage workers invoke.
func MediaRequirements(cfg config.Transcoder) []Requirement {
	ffmpegUse := "Required for video compression and frame extraction"
	if cfg.VideoEncoder == config.VideoEncoderDrapto {
		ffmpegUse = "Required by the drapto AV1 backend and frame extraction"
	}
	return []Requirement{
		{
			Name:        "FFmpeg",
			Command:     cfg.FFmpegBinary,
			Description: ffmpegUse,
		},
		{
			Name:        "FFprobe",
			Command:     cfg.FFprobeBinary,
			Description: "Required for video metadata extraction",
		},
	}
}

// CheckBinaries resolves each requirement's command on PATH.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, len(requirements))
	for i, req := range requirements {
		req.Command = strings.TrimSpace(req.Command)
		req.Description = strings.TrimSpace(req.Description)
		results[i] = Status{Requirement: req}
		switch _, err := exec.LookPath(req.Command); {
		case req.Command == "":
			results[i].Detail = "command not configured"
		case err != nil:
			results[i].Detail = fmt.Sprintf("binary %q not found", req.Command)
		default:
			results[i].Available = true
		}
	}
	return results
}

// Missing returns the required dependencies that are unavailable.
func Missing(statuses []Status) []Status {
	var missing []Status
	for _, status := range statuses {
		if !status.Available && !status.Optional {
			missing = append(missing, status)
		}
	}
	return missing
}
