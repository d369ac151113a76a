package transcoder

import (
	"log/slog"
	"math"

	draptolib "github.com/five82/drapto"

	"mediapipe/internal/logging"
)

// draptoReporter forwards drapto encode events to the transcoder log.
// Encoding progress is logged once per progressStep percent.
type draptoReporter struct {
	logger     *slog.Logger
	lastBucket int
}

const progressStep = 10.0

func newDraptoReporter(logger *slog.Logger) *draptoReporter {
	return &draptoReporter{
		logger:     logger.With(logging.String(logging.FieldStage, "drapto")),
		lastBucket: -1,
	}
}

// bucket returns the progress step percent falls in.
func bucket(percent float64) int {
	return int(math.Floor(percent / progressStep))
}

func (r *draptoReporter) Hardware(draptolib.HardwareSummary) {}

func (r *draptoReporter) Initialization(s draptolib.InitializationSummary) {
	r.logger.Debug("drapto encode initialized",
		logging.String("input", s.InputFile),
		logging.String("resolution", s.Resolution),
		logging.String("dynamic_range", s.DynamicRange),
	)
}

func (r *draptoReporter) StageProgress(s draptolib.StageProgress) {
	r.logger.Debug("drapto stage", logging.String("drapto_stage", s.Stage), logging.String("detail", s.Message))
}

func (r *draptoReporter) CropResult(s draptolib.CropSummary) {
	r.logger.Debug("drapto crop detection",
		logging.String("crop", s.Crop),
		logging.Bool("required", s.Required),
		logging.Bool("disabled", s.Disabled),
	)
}

func (r *draptoReporter) EncodingConfig(s draptolib.EncodingConfigSummary) {
	r.logger.Debug("drapto encoding config",
		logging.String("encoder", s.Encoder),
		logging.String("preset", s.Preset),
		logging.String("quality", s.Quality),
	)
}

func (r *draptoReporter) EncodingStarted(totalFrames uint64) {
	r.logger.Info("drapto encoding started", logging.Int64("total_frames", int64(totalFrames)))
}

func (r *draptoReporter) EncodingProgress(s draptolib.ProgressSnapshot) {
	percent := float64(s.Percent)
	if b := bucket(percent); b > r.lastBucket {
		r.lastBucket = b
		r.logger.Info("drapto encoding progress",
			logging.Int("percent", int(percent)),
			logging.Any("fps", float64(s.FPS)),
		)
	}
}

func (r *draptoReporter) ValidationComplete(s draptolib.ValidationSummary) {
	if s.Passed {
		r.logger.Debug("drapto validation passed")
		return
	}
	for _, step := range s.Steps {
		if !step.Passed {
			logging.WarnWithContext(r.logger, "drapto validation step failed", "drapto_validation_failed",
				logging.String("step", step.Name),
				logging.String("detail", step.Details),
				logging.String(logging.FieldErrorHint, "inspect the encoded output"),
			)
		}
	}
}

func (r *draptoReporter) EncodingComplete(s draptolib.EncodingOutcome) {
	r.logger.Info("drapto encoding complete",
		logging.String("output", s.OutputPath),
		logging.Int64("original_size", int64(s.OriginalSize)),
		logging.Int64("encoded_size", int64(s.EncodedSize)),
	)
}

func (r *draptoReporter) Warning(message string) {
	logging.WarnWithContext(r.logger, "drapto warning", "drapto_warning",
		logging.String("detail", message),
		logging.String(logging.FieldErrorHint, "review the drapto encoder output"),
	)
}

func (r *draptoReporter) Error(e draptolib.ReporterError) {
	r.logger.Error("drapto error",
		logging.String("title", e.Title),
		logging.String("detail", e.Message),
		logging.String(logging.FieldErrorHint, e.Suggestion),
	)
}

func (r *draptoReporter) OperationComplete(string)                  {}
func (r *draptoReporter) BatchStarted(draptolib.BatchStartInfo)      {}
func (r *draptoReporter) FileProgress(draptolib.FileProgressContext) {}
func (r *draptoReporter) BatchComplete(draptolib.BatchSummary)       {}

var _ draptolib.Reporter = (*draptoReporter)(nil)
