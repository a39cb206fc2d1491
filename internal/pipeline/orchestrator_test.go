package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"parallax/internal/adapter/repo"
	"parallax/internal/domain"
	"parallax/internal/metrics"
	"parallax/internal/storage"
	"parallax/internal/vision"
)

// recordingLedger wraps the memory ledger and captures every update so tests
// can assert on the observable sequence a polling client would see.
type recordingLedger struct {
	*repo.MemoryLedger
	mu      sync.Mutex
	updates []domain.JobUpdate
}

func (l *recordingLedger) UpdateJob(ctx context.Context, id string, upd domain.JobUpdate) error {
	l.mu.Lock()
	l.updates = append(l.updates, upd)
	l.mu.Unlock()
	return l.MemoryLedger.UpdateJob(ctx, id, upd)
}

type failingDepthSource struct{}

func (failingDepthSource) Name() string { return "always-failing" }

func (failingDepthSource) Depth(ctx context.Context, imageData []byte) (image.Image, error) {
	return nil, errors.New("provider unavailable")
}

type testEnv struct {
	ledger       *recordingLedger
	store        *storage.FileStore
	orchestrator *Orchestrator
}

func newTestEnv(t *testing.T, depthSources []vision.DepthSource) *testEnv {
	t.Helper()
	ledger := &recordingLedger{MemoryLedger: repo.NewMemoryLedger()}
	store, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	logger := zerolog.Nop()
	stats := metrics.New(prometheus.NewRegistry())
	orchestrator := NewOrchestrator(
		ledger,
		store,
		vision.NewClassifier(nil, logger, stats),
		vision.NewDepthChain(depthSources, logger, stats),
		vision.NewMaskChain(nil, logger, stats),
		logger,
		stats,
	)
	return &testEnv{ledger: ledger, store: store, orchestrator: orchestrator}
}

func pngBytes(t *testing.T, width, height int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, width, height))); err != nil {
		t.Fatalf("encode test image: %v", err)
	}
	return buf.Bytes()
}

func (e *testEnv) createJob(t *testing.T, id, filename string, data []byte) {
	t.Helper()
	ctx := context.Background()
	job := &domain.Job{ID: id, Status: domain.JobStatusPending, OriginalFilename: filename}
	if err := e.ledger.CreateJob(ctx, job); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if data != nil {
		if err := e.store.PutUpload(ctx, id, filename, data); err != nil {
			t.Fatalf("PutUpload: %v", err)
		}
	}
}

func TestRunCompletesLandscapeJobWithColorAndDepth(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	env.createJob(t, "j1", "wide.png", pngBytes(t, 200, 100))

	if err := env.orchestrator.Run(ctx, "j1", "wide.png", ""); err != nil {
		t.Fatalf("Run: %v", err)
	}

	job, err := env.ledger.GetJob(ctx, "j1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.Status != domain.JobStatusCompleted {
		t.Fatalf("status = %q, want completed", job.Status)
	}
	if job.Progress != 100 {
		t.Fatalf("progress = %d, want 100", job.Progress)
	}
	if job.InputType != domain.InputTypeLandscape {
		t.Fatalf("input type = %q, want landscape", job.InputType)
	}
	if job.Error != "" {
		t.Fatalf("error = %q, want empty", job.Error)
	}
	if len(job.Outputs) != 2 {
		t.Fatalf("outputs = %v, want exactly color+depth", job.Outputs)
	}
	for _, assetType := range []domain.AssetType{domain.AssetTypeColor, domain.AssetTypeDepth} {
		assetID, ok := job.Outputs[assetType]
		if !ok {
			t.Fatalf("outputs missing %s: %v", assetType, job.Outputs)
		}
		asset, err := env.ledger.GetAsset(ctx, assetID)
		if err != nil {
			t.Fatalf("GetAsset(%s): %v", assetType, err)
		}
		if asset.Metadata.Width != 200 || asset.Metadata.Height != 100 {
			t.Fatalf("%s metadata = %+v, want 200x100", assetType, asset.Metadata)
		}
		reader, err := env.store.GetProcessed(ctx, "j1", assetType)
		if err != nil {
			t.Fatalf("GetProcessed(%s): %v", assetType, err)
		}
		reader.Close()
	}
}

func TestRunGeneratesMaskForObjectJobs(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	env.createJob(t, "j1", "tall.png", pngBytes(t, 50, 100))

	if err := env.orchestrator.Run(ctx, "j1", "tall.png", ""); err != nil {
		t.Fatalf("Run: %v", err)
	}

	job, _ := env.ledger.GetJob(ctx, "j1")
	if job.InputType != domain.InputTypeObject {
		t.Fatalf("input type = %q, want object", job.InputType)
	}
	if len(job.Outputs) != 3 {
		t.Fatalf("outputs = %v, want color+depth+mask", job.Outputs)
	}
	if _, ok := job.Outputs[domain.AssetTypeMask]; !ok {
		t.Fatalf("outputs missing mask: %v", job.Outputs)
	}
}

func TestRunHonorsTypeHintWithoutClassifying(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	// The aspect ratio says landscape, the hint says object: the hint wins.
	env.createJob(t, "j1", "wide.png", pngBytes(t, 200, 100))

	if err := env.orchestrator.Run(ctx, "j1", "wide.png", domain.InputTypeObject); err != nil {
		t.Fatalf("Run: %v", err)
	}

	job, _ := env.ledger.GetJob(ctx, "j1")
	if job.InputType != domain.InputTypeObject {
		t.Fatalf("input type = %q, want hinted object", job.InputType)
	}
	if _, ok := job.Outputs[domain.AssetTypeMask]; !ok {
		t.Fatalf("hinted object job missing mask: %v", job.Outputs)
	}
}

func TestRunFailsWhenUploadIsMissing(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	env.createJob(t, "j1", "gone.png", nil)

	err := env.orchestrator.Run(ctx, "j1", "gone.png", "")
	if err == nil {
		t.Fatalf("Run succeeded without an upload")
	}
	if !errors.Is(err, domain.ErrInputNotFound) {
		t.Fatalf("Run error = %v, want ErrInputNotFound", err)
	}

	job, _ := env.ledger.GetJob(ctx, "j1")
	if job.Status != domain.JobStatusFailed {
		t.Fatalf("status = %q, want failed", job.Status)
	}
	if !strings.Contains(job.Error, "not found") {
		t.Fatalf("error = %q, want a not-found description", job.Error)
	}
	if job.Progress != 10 {
		t.Fatalf("progress = %d, want frozen at 10", job.Progress)
	}
}

func TestRunFailsOnUnreadableImage(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	env.createJob(t, "j1", "junk.png", []byte("not an image"))

	if err := env.orchestrator.Run(ctx, "j1", "junk.png", ""); err == nil {
		t.Fatalf("Run succeeded on unreadable image")
	}
	job, _ := env.ledger.GetJob(ctx, "j1")
	if job.Status != domain.JobStatusFailed || job.Error == "" {
		t.Fatalf("job = %+v, want failed with error set", job)
	}
}

func TestRunCompletesDespiteFailingProvider(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, []vision.DepthSource{failingDepthSource{}})
	env.createJob(t, "j1", "wide.png", pngBytes(t, 200, 100))

	if err := env.orchestrator.Run(ctx, "j1", "wide.png", ""); err != nil {
		t.Fatalf("Run with failing provider: %v", err)
	}
	job, _ := env.ledger.GetJob(ctx, "j1")
	if job.Status != domain.JobStatusCompleted {
		t.Fatalf("status = %q, want completed via fallback", job.Status)
	}
}

func TestRunProgressIsMonotonicWithSingleTerminalWrite(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	env.createJob(t, "j1", "tall.png", pngBytes(t, 50, 100))

	if err := env.orchestrator.Run(ctx, "j1", "tall.png", ""); err != nil {
		t.Fatalf("Run: %v", err)
	}

	last := 0
	terminalSeen := false
	for i, upd := range env.ledger.updates {
		if terminalSeen {
			t.Fatalf("update %d issued after terminal write: %+v", i, upd)
		}
		if upd.Progress != nil {
			if *upd.Progress < last {
				t.Fatalf("progress went backwards: %d after %d", *upd.Progress, last)
			}
			last = *upd.Progress
		}
		if upd.Status != nil && upd.Status.Terminal() {
			terminalSeen = true
		}
	}
	if !terminalSeen {
		t.Fatalf("no terminal write recorded")
	}
	if last != 100 {
		t.Fatalf("final progress = %d, want 100", last)
	}
}

func TestRunDepthMetadataCarriesRangeAndParallax(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	env.createJob(t, "j1", "img.png", pngBytes(t, 100, 100))

	if err := env.orchestrator.Run(ctx, "j1", "img.png", ""); err != nil {
		t.Fatalf("Run: %v", err)
	}
	job, _ := env.ledger.GetJob(ctx, "j1")
	asset, err := env.ledger.GetAsset(ctx, job.Outputs[domain.AssetTypeDepth])
	if err != nil {
		t.Fatalf("GetAsset: %v", err)
	}
	meta := asset.Metadata
	if meta.DepthMin == nil || meta.DepthMax == nil || meta.ParallaxStrength == nil {
		t.Fatalf("depth metadata incomplete: %+v", meta)
	}
	// Fallback depth spans the full range: center 255, corner 0.
	if *meta.DepthMin != 0 || *meta.DepthMax != 1 {
		t.Fatalf("depth range = [%v, %v], want [0, 1]", *meta.DepthMin, *meta.DepthMax)
	}
	if *meta.ParallaxStrength <= 0 || *meta.ParallaxStrength > 1 {
		t.Fatalf("parallax strength = %v, want in (0, 1]", *meta.ParallaxStrength)
	}
}
