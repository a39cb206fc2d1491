package vision

import (
	"context"
	"image"
	"image/draw"

	"github.com/disintegration/imaging"

	"parallax/internal/infra"
	"parallax/internal/metrics"
)

// DepthSource produces a depth image from encoded input bytes. A source
// reports failure through its error; the chain treats timeouts, transport
// errors and explicit provider failures identically.
type DepthSource interface {
	Name() string
	Depth(ctx context.Context, imageData []byte) (image.Image, error)
}

// MaskSource produces a segmentation mask from encoded input bytes.
type MaskSource interface {
	Name() string
	Mask(ctx context.Context, imageData []byte) (image.Image, error)
}

// DepthChain tries remote depth sources in rank order and falls back to the
// local radial-gradient computation. Generate never fails.
type DepthChain struct {
	sources []DepthSource
	logger  infra.Logger
	stats   *metrics.Collectors
}

// NewDepthChain builds a chain over zero or more ranked sources.
func NewDepthChain(sources []DepthSource, logger infra.Logger, stats *metrics.Collectors) *DepthChain {
	return &DepthChain{sources: sources, logger: logger, stats: stats}
}

// Generate returns a single-channel depth map sized width x height.
func (c *DepthChain) Generate(ctx context.Context, width, height int, imageData []byte) *image.Gray {
	for _, source := range c.sources {
		result, err := source.Depth(ctx, imageData)
		if err != nil {
			c.logger.Warn().Err(err).Str("provider", source.Name()).Msg("depth: provider failed, advancing")
			c.stats.ProviderAttempts.WithLabelValues(source.Name(), "error").Inc()
			continue
		}
		c.stats.ProviderAttempts.WithLabelValues(source.Name(), "ok").Inc()
		return toGray(result, width, height)
	}
	c.stats.FallbacksTotal.WithLabelValues("depth").Inc()
	return FallbackDepth(width, height)
}

// MaskChain tries remote mask sources in rank order and falls back to the
// local elliptical mask. Generate never fails.
type MaskChain struct {
	sources []MaskSource
	logger  infra.Logger
	stats   *metrics.Collectors
}

// NewMaskChain builds a chain over zero or more ranked sources.
func NewMaskChain(sources []MaskSource, logger infra.Logger, stats *metrics.Collectors) *MaskChain {
	return &MaskChain{sources: sources, logger: logger, stats: stats}
}

// Generate returns a single-channel mask sized width x height.
func (c *MaskChain) Generate(ctx context.Context, width, height int, imageData []byte) *image.Gray {
	for _, source := range c.sources {
		result, err := source.Mask(ctx, imageData)
		if err != nil {
			c.logger.Warn().Err(err).Str("provider", source.Name()).Msg("mask: provider failed, advancing")
			c.stats.ProviderAttempts.WithLabelValues(source.Name(), "error").Inc()
			continue
		}
		c.stats.ProviderAttempts.WithLabelValues(source.Name(), "ok").Inc()
		return toGray(result, width, height)
	}
	c.stats.FallbacksTotal.WithLabelValues("mask").Inc()
	return FallbackMask(width, height)
}

// toGray normalizes provider output to a single-channel image matching the
// original dimensions.
func toGray(img image.Image, width, height int) *image.Gray {
	bounds := img.Bounds()
	if bounds.Dx() != width || bounds.Dy() != height {
		img = imaging.Resize(img, width, height, imaging.Lanczos)
	}
	gray := image.NewGray(image.Rect(0, 0, width, height))
	draw.Draw(gray, gray.Bounds(), img, img.Bounds().Min, draw.Src)
	return gray
}
