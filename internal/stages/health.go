package stages

import (
	"fmt"
	"strings"

	"mediapipe/internal/config"
	"mediapipe/internal/deps"
)

// Health summarizes the readiness of a pipeline stage.
type Health struct {
	Name   string
	Ready  bool
	Detail string
}

// Healthy constructs a ready Health record.
func Healthy(name string) Health {
	return Health{Name: name, Ready: true}
}

// Unhealthy constructs an unhealthy Health record with context detail.
func Unhealthy(name, detail string) Health {
	return Health{Name: name, Ready: false, Detail: detail}
}

func ffmpegRequirement(cfg *config.Config) deps.Requirement {
	return deps.MediaRequirements(cfg.Transcoder)[0]
}

func ffprobeRequirement(cfg *config.Config) deps.Requirement {
	return deps.MediaRequirements(cfg.Transcoder)[1]
}

// binaryHealth reports name as unhealthy when any required binary is missing.
func binaryHealth(name string, reqs ...deps.Requirement) Health {
	missing := deps.Missing(deps.CheckBinaries(reqs))
	if len(missing) == 0 {
		return Healthy(name)
	}
	details := make([]string, 0, len(missing))
	for _, status := range missing {
		details = append(details, fmt.Sprintf("%s: %s", status.Name, status.Detail))
	}
	return Unhealthy(name, strings.Join(details, "; "))
}
