package pipeline

import (
	"context"

	"mediapipe/internal/asset"
	"mediapipe/internal/logging"
	"mediapipe/internal/queue"
	"mediapipe/internal/services"
)

// StatusView is the polling projection of one asset.
type StatusView struct {
	ID            int64        `json:"id"`
	Status        asset.Status `json:"status"`
	Progress      int          `json:"progress"`
	ErrorMessage  string       `json:"error_message,omitempty"`
	HasCompressed bool         `json:"has_compressed"`
	HasThumbnails bool         `json:"has_thumbnails"`
	HasMetadata   bool         `json:"has_metadata"`
}

// Status returns the projection for a live asset.
func (o *Orchestrator) Status(ctx context.Context, id int64) (StatusView, error) {
	a, err := o.assets.Get(ctx, id)
	if err != nil {
		return StatusView{}, err
	}
	return NewStatusView(a), nil
}

// NewStatusView projects an already loaded asset.
func NewStatusView(a *asset.Asset) StatusView {
	return StatusView{
		ID:            a.ID,
		Status:        a.Status,
		Progress:      asset.Progress(a),
		ErrorMessage:  a.ErrorMessage,
		HasCompressed: a.HasCompressed(),
		HasThumbnails: a.HasThumbnails(),
		HasMetadata:   a.HasMetadata(),
	}
}

// Reprocess moves a completed or failed asset back to pending, drops the
// previous run's derivatives and schedules a new process job.
func (o *Orchestrator) Reprocess(ctx context.Context, id int64) (SubmitResult, error) {
	ctx = services.WithAssetID(ctx, id)
	reset, err := o.assets.ResetToPending(ctx, id)
	if err != nil {
		return SubmitResult{}, err
	}
	if reset == nil {
		return o.noOp(ctx, id)
	}
	o.transitioned(logging.WithContext(ctx, o.logger), reset.From, asset.StatusPending)
	for _, path := range reset.Stale {
		o.discardBlob(ctx, path, "superseded derivative")
	}
	if _, err := o.jobs.Enqueue(ctx, id, queue.KindProcess, o.cfg.Pipeline.MaxAttempts); err != nil {
		return SubmitResult{Status: asset.StatusPending}, err
	}
	return SubmitResult{Status: asset.StatusPending}, nil
}

// Delete soft-deletes an asset. Stages still running for it see it as missing.
func (o *Orchestrator) Delete(ctx context.Context, id int64) error {
	ctx = services.WithAssetID(ctx, id)
	if err := o.assets.SoftDelete(ctx, id); err != nil {
		return err
	}
	logging.WithContext(ctx, o.logger).Info("asset deleted",
		logging.String(logging.FieldEventType, "asset_deleted"),
	)
	return nil
}
