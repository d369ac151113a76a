package asset

const (
	weightCompressed = 40
	weightThumbnails = 30
	weightMetadata   = 30
	// maxInFlightProgress keeps non-terminal assets below 100.
	maxInFlightProgress = 99
)

// Progress computes the 0-100 estimate shown to status pollers. It depends only
// on status and artifact presence.
func Progress(a *Asset) int {
	if a == nil {
		return 0
	}
	switch a.Status {
	case StatusCompleted:
		return 100
	case StatusFailed:
		return 0
	}
	progress := 0
	if a.HasCompressed() {
		progress += weightCompressed
	}
	if a.HasThumbnails() {
		progress += weightThumbnails
	}
	if a.HasMetadata() {
		progress += weightMetadata
	}
	return min(progress, maxInFlightProgress)
}
