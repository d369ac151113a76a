package daemonctl

import (
	"context"
	"errors"
	"time"

	"mediapipe/internal/asset"
	"mediapipe/internal/config"
	"mediapipe/internal/daemon"
	"mediapipe/internal/deps"
	"mediapipe/internal/queue"
)

// Snapshot is the daemon status shown by `mediapipe daemon status`.
type Snapshot struct {
	Running bool
	PID     int
	// Live holds the API response when the daemon answered.
	Live         *daemon.StatusPayload
	Assets       map[asset.Status]int
	Queue        map[queue.Status]int
	Dependencies []deps.Status
	APIError     string
}

// BuildSnapshot prefers the live API and falls back to reading the stores.
func BuildSnapshot(ctx context.Context, cfg *config.Config) (Snapshot, error) {
	if cfg == nil {
		return Snapshot{}, errors.New("configuration not available")
	}
	running, pid, err := ProcessInfo(cfg)
	if err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{Running: running, PID: pid}

	if running {
		client, err := NewClient(cfg)
		if err == nil {
			queryCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			snap.Live, err = client.Status(queryCtx)
			cancel()
		}
		if err != nil {
			snap.APIError = err.Error()
		}
	}
	if snap.Live != nil {
		snap.Assets = snap.Live.Assets
		snap.Queue = snap.Live.Queue
		if snap.PID == 0 {
			snap.PID = snap.Live.PID
		}
	} else if err := snap.readStores(ctx, cfg); err != nil {
		return snap, err
	}
	snap.Dependencies = deps.CheckBinaries(deps.MediaRequirements(cfg.Transcoder))
	return snap, nil
}

func (s *Snapshot) readStores(ctx context.Context, cfg *config.Config) error {
	queryCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	assets, err := asset.Open(cfg)
	if err != nil {
		return err
	}
	defer assets.Close()
	if s.Assets, err = assets.Stats(queryCtx); err != nil {
		return err
	}

	jobs, err := queue.Open(cfg)
	if err != nil {
		return err
	}
	defer jobs.Close()
	s.Queue, err = jobs.Stats(queryCtx)
	return err
}
