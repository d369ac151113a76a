package services

import "context"

// ctxKey is typed by the value it stores so lookups cannot mix types.
type ctxKey[T comparable] struct{ name string }

var (
	assetIDKey   = ctxKey[int64]{"asset_id"}
	jobIDKey     = ctxKey[int64]{"job_id"}
	stageKey     = ctxKey[string]{"stage"}
	requestIDKey = ctxKey[string]{"request_id"}
)

// with stores v under key. Zero values are not stored.
func with[T comparable](ctx context.Context, key ctxKey[T], v T) context.Context {
	var zero T
	if v == zero {
		return ctx
	}
	return context.WithValue(ctx, key, v)
}

func lookup[T comparable](ctx context.Context, key ctxKey[T]) (T, bool) {
	v, ok := ctx.Value(key).(T)
	return v, ok
}

// WithAssetID tags ctx with the asset being processed.
func WithAssetID(ctx context.Context, id int64) context.Context { return with(ctx, assetIDKey, id) }

func AssetIDFromContext(ctx context.Context) (int64, bool) { return lookup(ctx, assetIDKey) }

// WithJobID tags ctx with the claimed queue job.
func WithJobID(ctx context.Context, id int64) context.Context { return with(ctx, jobIDKey, id) }

func JobIDFromContext(ctx context.Context) (int64, bool) { return lookup(ctx, jobIDKey) }

// WithStage tags ctx with the stage name. A blank name leaves ctx unchanged.
func WithStage(ctx context.Context, stage string) context.Context {
	return with(ctx, stageKey, stage)
}

func StageFromContext(ctx context.Context) (string, bool) { return lookup(ctx, stageKey) }

// WithRequestID tags ctx with a correlation id for log lines spanning stages.
func WithRequestID(ctx context.Context, id string) context.Context {
	return with(ctx, requestIDKey, id)
}

func RequestIDFromContext(ctx context.Context) (string, bool) { return lookup(ctx, requestIDKey) }
