// Package vision decides what an uploaded image is and how its depth and
// mask deliverables get produced: remote providers tried in rank order, a
// deterministic local computation as the terminal fallback.
package vision

import (
	"context"
	"image"
	"strings"

	"parallax/internal/domain"
	"parallax/internal/infra"
	"parallax/internal/metrics"
)

// LabelProvider returns classification labels for an image, best first.
type LabelProvider interface {
	Name() string
	Labels(ctx context.Context, imageData []byte) ([]string, error)
}

// landscapeKeywords match provider labels that indicate a landscape scene.
var landscapeKeywords = []string{"landscape", "mountain", "beach", "forest", "sky", "outdoor", "nature"}

const (
	landscapeRatio = 1.5
	objectRatio    = 0.75
	topLabels      = 5
)

// Classifier assigns an InputType to an image. It never fails: provider
// errors are swallowed and the ambiguous case defaults to Object. Callers
// must not assume classification accuracy.
type Classifier struct {
	provider LabelProvider // nil when no provider is configured
	logger   infra.Logger
	stats    *metrics.Collectors
}

// NewClassifier builds a classifier. provider may be nil.
func NewClassifier(provider LabelProvider, logger infra.Logger, stats *metrics.Collectors) *Classifier {
	return &Classifier{provider: provider, logger: logger, stats: stats}
}

// Classify applies, in order: the aspect-ratio heuristic, label-based
// provider classification for the ambiguous band, and the Object default.
// imageData carries the original encoded bytes for the provider call.
func (c *Classifier) Classify(ctx context.Context, img image.Image, imageData []byte) domain.InputType {
	bounds := img.Bounds()
	ratio := float64(bounds.Dx()) / float64(bounds.Dy())

	if ratio > landscapeRatio {
		return domain.InputTypeLandscape
	}
	if ratio < objectRatio {
		return domain.InputTypeObject
	}

	if c.provider != nil {
		labels, err := c.provider.Labels(ctx, imageData)
		if err != nil {
			c.logger.Warn().Err(err).Str("provider", c.provider.Name()).Msg("classify: provider failed, defaulting")
			c.stats.ProviderAttempts.WithLabelValues(c.provider.Name(), "error").Inc()
		} else {
			c.stats.ProviderAttempts.WithLabelValues(c.provider.Name(), "ok").Inc()
			if matchesLandscape(labels) {
				return domain.InputTypeLandscape
			}
		}
	}

	return domain.InputTypeObject
}

func matchesLandscape(labels []string) bool {
	if len(labels) > topLabels {
		labels = labels[:topLabels]
	}
	for _, label := range labels {
		lowered := strings.ToLower(label)
		for _, keyword := range landscapeKeywords {
			if strings.Contains(lowered, keyword) {
				return true
			}
		}
	}
	return false
}
