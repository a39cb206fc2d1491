// Package pipeline drives an uploaded image from Pending to a terminal
// status: classification, depth generation, color passthrough and, for
// object inputs, mask generation.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"parallax/internal/domain"
	"parallax/internal/infra"
	"parallax/internal/metrics"
	"parallax/internal/vision"
)

// Progress checkpoints. The orchestrator only ever moves forward through
// these, so a polling client observes monotonically increasing progress.
const (
	progressStarted    = 10
	progressClassify   = 20
	progressClassified = 30
	progressDepthStart = 40
	progressDepthDone  = 60
	progressMask       = 80
	progressDone       = 100
)

// Orchestrator owns the per-job state machine. Exactly one orchestrator
// invocation runs a given job; concurrent jobs are isolated from each other
// through the ledger and blob store contracts.
type Orchestrator struct {
	ledger     domain.JobLedger
	store      domain.BlobStore
	classifier *vision.Classifier
	depth      *vision.DepthChain
	mask       *vision.MaskChain
	logger     infra.Logger
	stats      *metrics.Collectors
}

// NewOrchestrator wires the pipeline's collaborators.
func NewOrchestrator(
	ledger domain.JobLedger,
	store domain.BlobStore,
	classifier *vision.Classifier,
	depth *vision.DepthChain,
	mask *vision.MaskChain,
	logger infra.Logger,
	stats *metrics.Collectors,
) *Orchestrator {
	return &Orchestrator{
		ledger:     ledger,
		store:      store,
		classifier: classifier,
		depth:      depth,
		mask:       mask,
		logger:     logger,
		stats:      stats,
	}
}

// Run executes the whole pipeline for one job. Invoked exactly once per job,
// decoupled from the submitting request. Provider errors never surface here;
// input and persistence errors transition the job to Failed. The terminal
// ledger write happens before the error propagates, so the job is never left
// in a non-terminal state.
func (o *Orchestrator) Run(ctx context.Context, jobID, filename string, hint domain.InputType) error {
	started := time.Now()
	err := o.run(ctx, jobID, filename, hint)
	o.stats.JobDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		o.fail(ctx, jobID, err)
		o.stats.JobsTotal.WithLabelValues(string(domain.JobStatusFailed)).Inc()
		return err
	}
	o.stats.JobsTotal.WithLabelValues(string(domain.JobStatusCompleted)).Inc()
	return nil
}

func (o *Orchestrator) run(ctx context.Context, jobID, filename string, hint domain.InputType) error {
	if err := o.ledger.UpdateJob(ctx, jobID, domain.JobUpdate{
		Status:   domain.StatusOf(domain.JobStatusProcessing),
		Progress: domain.ProgressOf(progressStarted),
	}); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	original, err := o.store.GetUpload(ctx, jobID, filename)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("%w: %s/%s", domain.ErrInputNotFound, jobID, filename)
		}
		return fmt.Errorf("load upload: %w", err)
	}

	img, err := imaging.Decode(bytes.NewReader(original))
	if err != nil {
		return fmt.Errorf("decode upload: %w", err)
	}
	width, height := img.Bounds().Dx(), img.Bounds().Dy()

	if err := o.ledger.UpdateJob(ctx, jobID, domain.JobUpdate{Progress: domain.ProgressOf(progressClassify)}); err != nil {
		return fmt.Errorf("mark classifying: %w", err)
	}
	inputType := hint
	if inputType == "" || inputType == domain.InputTypeUnknown {
		inputType = o.classifier.Classify(ctx, img, original)
	}
	// Persist the classification immediately so polling clients can observe
	// it before the pipeline finishes.
	if err := o.ledger.UpdateJob(ctx, jobID, domain.JobUpdate{
		InputType: domain.InputTypeOf(inputType),
		Progress:  domain.ProgressOf(progressClassified),
	}); err != nil {
		return fmt.Errorf("record input type: %w", err)
	}
	o.logger.Debug().Str("job_id", jobID).Str("input_type", string(inputType)).Msg("pipeline: classified")

	if err := o.ledger.UpdateJob(ctx, jobID, domain.JobUpdate{Progress: domain.ProgressOf(progressDepthStart)}); err != nil {
		return fmt.Errorf("mark depth start: %w", err)
	}
	depthImg := o.depth.Generate(ctx, width, height, original)
	if err := o.ledger.UpdateJob(ctx, jobID, domain.JobUpdate{Progress: domain.ProgressOf(progressDepthDone)}); err != nil {
		return fmt.Errorf("mark depth done: %w", err)
	}

	outputs := make(map[domain.AssetType]string, 3)

	colorID, err := o.saveAsset(ctx, jobID, domain.AssetTypeColor, imaging.Clone(img), domain.AssetMetadata{Width: width, Height: height})
	if err != nil {
		return err
	}
	outputs[domain.AssetTypeColor] = colorID

	depthID, err := o.saveAsset(ctx, jobID, domain.AssetTypeDepth, depthImg, depthMetadata(depthImg, width, height))
	if err != nil {
		return err
	}
	outputs[domain.AssetTypeDepth] = depthID

	if inputType == domain.InputTypeObject {
		if err := o.ledger.UpdateJob(ctx, jobID, domain.JobUpdate{Progress: domain.ProgressOf(progressMask)}); err != nil {
			return fmt.Errorf("mark mask start: %w", err)
		}
		maskImg := o.mask.Generate(ctx, width, height, original)
		maskID, err := o.saveAsset(ctx, jobID, domain.AssetTypeMask, maskImg, domain.AssetMetadata{Width: width, Height: height})
		if err != nil {
			return err
		}
		outputs[domain.AssetTypeMask] = maskID
	}

	if err := o.ledger.UpdateJob(ctx, jobID, domain.JobUpdate{
		Status:   domain.StatusOf(domain.JobStatusCompleted),
		Progress: domain.ProgressOf(progressDone),
		Outputs:  outputs,
	}); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	o.logger.Info().Str("job_id", jobID).Int("assets", len(outputs)).Msg("pipeline: completed")
	return nil
}

// saveAsset encodes the image as PNG, writes it to the blob store and records
// the asset in the ledger.
func (o *Orchestrator) saveAsset(ctx context.Context, jobID string, assetType domain.AssetType, img image.Image, meta domain.AssetMetadata) (string, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return "", fmt.Errorf("encode %s asset: %w", assetType, err)
	}
	data := buf.Bytes()

	if _, err := o.store.PutProcessed(ctx, jobID, assetType, data); err != nil {
		return "", fmt.Errorf("store %s asset: %w", assetType, err)
	}

	asset := &domain.Asset{
		ID:          uuid.New().String(),
		JobID:       jobID,
		Type:        assetType,
		Filename:    string(assetType) + ".png",
		ContentType: "image/png",
		Size:        int64(len(data)),
		Metadata:    meta,
	}
	if err := o.ledger.CreateAsset(ctx, asset); err != nil {
		return "", fmt.Errorf("record %s asset: %w", assetType, err)
	}
	return asset.ID, nil
}

// fail records the terminal Failed state. The write happens before Run
// returns the error to its caller and survives cancellation of the job
// context; an already-terminal job is left untouched.
func (o *Orchestrator) fail(ctx context.Context, jobID string, cause error) {
	ctx = context.WithoutCancel(ctx)
	err := o.ledger.UpdateJob(ctx, jobID, domain.JobUpdate{
		Status: domain.StatusOf(domain.JobStatusFailed),
		Error:  domain.ErrorOf(cause.Error()),
	})
	if err != nil && !errors.Is(err, domain.ErrJobTerminal) {
		o.logger.Error().Err(err).Str("job_id", jobID).Msg("pipeline: failed to record terminal state")
	}
	o.logger.Error().Err(cause).Str("job_id", jobID).Msg("pipeline: job failed")
}

// depthMetadata derives the asset measurements from the generated depth map:
// the observed grayscale range normalized to [0,1] and a suggested parallax
// strength proportional to that range.
func depthMetadata(depth *image.Gray, width, height int) domain.AssetMetadata {
	min, max := uint8(255), uint8(0)
	for _, pixel := range depth.Pix {
		if pixel < min {
			min = pixel
		}
		if pixel > max {
			max = pixel
		}
	}
	if min > max {
		min, max = 0, 0
	}
	depthMin := float64(min) / 255
	depthMax := float64(max) / 255
	strength := (depthMax - depthMin) * 0.5
	if strength < 0.05 {
		strength = 0.05
	}
	return domain.AssetMetadata{
		Width:            width,
		Height:           height,
		DepthMin:         &depthMin,
		DepthMax:         &depthMax,
		ParallaxStrength: &strength,
	}
}
