package preflight

import (
	"context"

	"mediapipe/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

type check struct {
	enabled func(*config.Config) bool
	run     func(context.Context, *config.Config) Result
}

func always(*config.Config) bool { return true }

var checks = []check{
	{always, func(_ context.Context, cfg *config.Config) Result {
		return CheckDirectoryAccess("Data directory", cfg.Paths.DataDir)
	}},
	{always, func(_ context.Context, cfg *config.Config) Result {
		return CheckDirectoryAccess("Cache directory", cfg.Paths.CacheDir)
	}},
	{
		func(cfg *config.Config) bool { return cfg.Storage.Backend == config.StorageLocal },
		func(_ context.Context, cfg *config.Config) Result {
			return CheckDirectoryAccess("Blob directory", cfg.Paths.BlobDir)
		},
	},
	{
		func(cfg *config.Config) bool { return cfg.Notifications.NtfyTopic != "" },
		func(ctx context.Context, cfg *config.Config) Result {
			return CheckNtfy(ctx, cfg.Notifications.NtfyTopic)
		},
	},
	{
		func(cfg *config.Config) bool { return cfg.Notifications.NATSURL != "" },
		func(_ context.Context, cfg *config.Config) Result {
			return CheckNATS(cfg.Notifications.NATSURL)
		},
	},
	{
		func(cfg *config.Config) bool { return len(cfg.Notifications.KafkaBrokers) > 0 },
		func(ctx context.Context, cfg *config.Config) Result {
			return CheckKafka(ctx, cfg.Notifications.KafkaBrokers)
		},
	},
}

// RunAll runs every check whose feature is configured, in a fixed order.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}
	var results []Result
	for _, c := range checks {
		if c.enabled(cfg) {
			results = append(results, c.run(ctx, cfg))
		}
	}
	return results
}

// Failed filters results down to the checks that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
