package notifications

import (
	"context"
	"log/slog"

	"mediapipe/internal/logging"
)

// LogSubscriber writes one structured line per event.
type LogSubscriber struct {
	logger *slog.Logger
}

// NewLogSubscriber returns a subscriber that logs through logger.
func NewLogSubscriber(logger *slog.Logger) *LogSubscriber {
	return &LogSubscriber{logger: logging.NewComponentLogger(logger, "events")}
}

func (l *LogSubscriber) Name() string { return "log" }

func (l *LogSubscriber) Notify(ctx context.Context, event Event) error {
	logging.WithContext(ctx, l.logger).Info("asset processed",
		logging.String(logging.FieldEventType, string(event.Type)),
		logging.Int64(logging.FieldAssetID, event.AssetID),
		logging.Int64("owner_id", event.Asset.OwnerID),
		logging.String("name", event.Asset.Name),
		logging.String("kind", event.Asset.Kind),
		logging.String("status", event.Asset.Status),
	)
	return nil
}
