package domain

import (
	"context"
	"io"
)

// JobLedger is the durable record of jobs and their assets. Implementations
// must be safe for concurrent use by independent jobs, apply each update as a
// single atomic write, and enforce the job lifecycle invariants: updates to a
// terminal job return ErrJobTerminal and progress never moves backwards.
type JobLedger interface {
	CreateJob(ctx context.Context, job *Job) error
	GetJob(ctx context.Context, id string) (*Job, error)
	UpdateJob(ctx context.Context, id string, upd JobUpdate) error
	DeleteJob(ctx context.Context, id string) error

	CreateAsset(ctx context.Context, asset *Asset) error
	GetAsset(ctx context.Context, id string) (*Asset, error)
	ListAssetsByJob(ctx context.Context, jobID string) ([]Asset, error)
}

// BlobStore is the content store for uploaded originals and derived assets,
// keyed by job and asset type. Reads of absent keys return ErrNotFound.
type BlobStore interface {
	PutUpload(ctx context.Context, jobID, filename string, data []byte) error
	GetUpload(ctx context.Context, jobID, filename string) ([]byte, error)
	PutProcessed(ctx context.Context, jobID string, assetType AssetType, data []byte) (string, error)
	GetProcessed(ctx context.Context, jobID string, assetType AssetType) (io.ReadCloser, error)
	DeleteAllForJob(ctx context.Context, jobID string) error
}
