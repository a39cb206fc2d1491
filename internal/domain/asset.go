package domain

import (
	"fmt"
	"time"
)

// AssetType enumerates the deliverable outputs of a job.
type AssetType string

const (
	AssetTypeColor AssetType = "color"
	AssetTypeDepth AssetType = "depth"
	AssetTypeMask  AssetType = "mask"
)

// ParseAssetType validates an asset type string.
func ParseAssetType(s string) (AssetType, error) {
	switch AssetType(s) {
	case AssetTypeColor, AssetTypeDepth, AssetTypeMask:
		return AssetType(s), nil
	}
	return "", fmt.Errorf("unknown asset type %q", s)
}

// Asset represents one derived or passthrough output file belonging to a job.
// At most one asset exists per (job, type) pair and assets are immutable once
// created.
type Asset struct {
	ID          string
	JobID       string
	Type        AssetType
	Filename    string
	ContentType string
	Size        int64
	Metadata    AssetMetadata
	CreatedAt   time.Time
}

// AssetMetadata carries per-asset measurements. Width and height are always
// present; the depth fields are populated on depth assets only.
type AssetMetadata struct {
	Width            int      `json:"width"`
	Height           int      `json:"height"`
	DepthMin         *float64 `json:"depth_min,omitempty"`
	DepthMax         *float64 `json:"depth_max,omitempty"`
	ParallaxStrength *float64 `json:"parallax_strength,omitempty"`
}
