// Package hf implements request/response vision providers against the
// Hugging Face Inference API: image classification labels and DPT depth
// estimation, each a single bounded-timeout call.
package hf

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"

	"parallax/internal/infra"
)

// ErrMissingAPIToken indicates the client was configured without credentials.
var ErrMissingAPIToken = errors.New("hf: api token is required")

// Options configures the Hugging Face client.
type Options struct {
	APIToken      string
	BaseURL       string
	ClassifyModel string
	DepthModel    string
	HTTPClient    *http.Client
	Logger        *infra.Logger
	Timeout       time.Duration
}

// Client performs HTTP calls against the Hugging Face Inference API.
type Client struct {
	apiToken      string
	baseURL       string
	classifyModel string
	depthModel    string
	httpClient    *http.Client
	logger        *infra.Logger
}

type classification struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api-inference.huggingface.co"
	}
	classifyModel := strings.TrimSpace(opts.ClassifyModel)
	if classifyModel == "" {
		classifyModel = "google/vit-base-patch16-224"
	}
	depthModel := strings.TrimSpace(opts.DepthModel)
	if depthModel == "" {
		depthModel = "Intel/dpt-large"
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Client{
		apiToken:      strings.TrimSpace(opts.APIToken),
		baseURL:       baseURL,
		classifyModel: classifyModel,
		depthModel:    depthModel,
		httpClient:    httpClient,
		logger:        logger,
	}
}

// Name identifies the provider in logs and metrics.
func (c *Client) Name() string { return "huggingface" }

// Configured reports whether the client can perform remote calls.
func (c *Client) Configured() bool { return c.apiToken != "" }

// Labels classifies the image and returns the predicted labels, best first.
func (c *Client) Labels(ctx context.Context, imageData []byte) ([]string, error) {
	raw, err := c.infer(ctx, c.classifyModel, imageData)
	if err != nil {
		return nil, err
	}
	var results []classification
	if err := json.Unmarshal(raw, &results); err != nil {
		return nil, fmt.Errorf("hf: decode classification: %w", err)
	}
	labels := make([]string, 0, len(results))
	for _, result := range results {
		labels = append(labels, result.Label)
	}
	c.logger.Debug().Str("model", c.classifyModel).Int("labels", len(labels)).Msg("hf: classified image")
	return labels, nil
}

// Depth runs monocular depth estimation; the API responds with the depth
// image itself.
func (c *Client) Depth(ctx context.Context, imageData []byte) (image.Image, error) {
	raw, err := c.infer(ctx, c.depthModel, imageData)
	if err != nil {
		return nil, err
	}
	img, err := imaging.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("hf: decode depth image: %w", err)
	}
	return img, nil
}

func (c *Client) infer(ctx context.Context, model string, imageData []byte) ([]byte, error) {
	if !c.Configured() {
		return nil, ErrMissingAPIToken
	}
	endpoint := c.baseURL + "/models/" + model
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(imageData))
	if err != nil {
		return nil, fmt.Errorf("hf: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("hf: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("hf: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("hf: model %s status %d: %s", model, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return raw, nil
}
