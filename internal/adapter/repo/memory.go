package repo

import (
	"context"
	"sync"
	"time"

	"parallax/internal/domain"
)

// MemoryLedger is an in-process domain.JobLedger. It backs tests and the
// zero-configuration mode where no DATABASE_URL is set. Safe for concurrent
// use; each update is applied under the lock as a single atomic write.
type MemoryLedger struct {
	mu     sync.RWMutex
	jobs   map[string]*domain.Job
	assets map[string]*domain.Asset
	// asset ids per job in insertion order
	jobAssets map[string][]string
}

// NewMemoryLedger constructs an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		jobs:      make(map[string]*domain.Job),
		assets:    make(map[string]*domain.Asset),
		jobAssets: make(map[string][]string),
	}
}

// CreateJob inserts a new job record.
func (l *MemoryLedger) CreateJob(ctx context.Context, job *domain.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	stored := cloneJob(job)
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	stored.UpdatedAt = stored.CreatedAt
	l.jobs[job.ID] = stored
	return nil
}

// GetJob returns a copy of the stored job.
func (l *MemoryLedger) GetJob(ctx context.Context, id string) (*domain.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	job, ok := l.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneJob(job), nil
}

// UpdateJob applies the partial update, enforcing the lifecycle invariants:
// no update reaches a terminal job and progress never decreases.
func (l *MemoryLedger) UpdateJob(ctx context.Context, id string, upd domain.JobUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	job, ok := l.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	if job.Status.Terminal() {
		return domain.ErrJobTerminal
	}
	if upd.Status != nil {
		job.Status = *upd.Status
	}
	if upd.InputType != nil {
		job.InputType = *upd.InputType
	}
	if upd.Progress != nil && *upd.Progress > job.Progress {
		job.Progress = *upd.Progress
	}
	if upd.Error != nil {
		job.Error = *upd.Error
	}
	if upd.Outputs != nil {
		job.Outputs = cloneOutputs(upd.Outputs)
	}
	job.UpdatedAt = time.Now().UTC()
	return nil
}

// DeleteJob removes the job and its asset records.
func (l *MemoryLedger) DeleteJob(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.jobs[id]; !ok {
		return domain.ErrNotFound
	}
	delete(l.jobs, id)
	for _, assetID := range l.jobAssets[id] {
		delete(l.assets, assetID)
	}
	delete(l.jobAssets, id)
	return nil
}

// CreateAsset inserts an asset record.
func (l *MemoryLedger) CreateAsset(ctx context.Context, asset *domain.Asset) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	stored := *asset
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	l.assets[asset.ID] = &stored
	l.jobAssets[asset.JobID] = append(l.jobAssets[asset.JobID], asset.ID)
	return nil
}

// GetAsset returns a copy of the stored asset.
func (l *MemoryLedger) GetAsset(ctx context.Context, id string) (*domain.Asset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	asset, ok := l.assets[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *asset
	return &copied, nil
}

// ListAssetsByJob returns the job's assets in insertion order.
func (l *MemoryLedger) ListAssetsByJob(ctx context.Context, jobID string) ([]domain.Asset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids := l.jobAssets[jobID]
	assets := make([]domain.Asset, 0, len(ids))
	for _, id := range ids {
		if asset, ok := l.assets[id]; ok {
			assets = append(assets, *asset)
		}
	}
	return assets, nil
}

func cloneJob(job *domain.Job) *domain.Job {
	copied := *job
	copied.Outputs = cloneOutputs(job.Outputs)
	return &copied
}

func cloneOutputs(outputs map[domain.AssetType]string) map[domain.AssetType]string {
	if outputs == nil {
		return nil
	}
	copied := make(map[domain.AssetType]string, len(outputs))
	for k, v := range outputs {
		copied[k] = v
	}
	return copied
}

var _ domain.JobLedger = (*MemoryLedger)(nil)
