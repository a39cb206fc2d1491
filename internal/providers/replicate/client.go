// Package replicate implements a polling-style vision provider against the
// Replicate predictions API: submit a prediction, poll at a fixed interval up
// to a ceiling, then download the output image.
package replicate

import (
	"bytes"
	"context"
	"encoding/base64"
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
var ErrMissingAPIToken = errors.New("replicate: api token is required")

// Options configures the Replicate client.
type Options struct {
	APIToken     string
	BaseURL      string
	DepthModel   string // model version for depth predictions
	MaskModel    string // model version for mask predictions; empty disables mask support
	HTTPClient   *http.Client
	Logger       *infra.Logger
	PollInterval time.Duration
	PollCeiling  time.Duration
}

// Client performs HTTP calls against the Replicate predictions API.
type Client struct {
	apiToken     string
	baseURL      string
	depthModel   string
	maskModel    string
	httpClient   *http.Client
	logger       *infra.Logger
	pollInterval time.Duration
	pollCeiling  time.Duration
}

type predictionRequest struct {
	Version string          `json:"version"`
	Input   predictionInput `json:"input"`
}

type predictionInput struct {
	Image string `json:"image"`
}

type predictionResponse struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  string          `json:"error"`
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.replicate.com/v1"
	}
	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	pollCeiling := opts.PollCeiling
	if pollCeiling <= 0 {
		pollCeiling = 60 * time.Second
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
		apiToken:     strings.TrimSpace(opts.APIToken),
		baseURL:      baseURL,
		depthModel:   strings.TrimSpace(opts.DepthModel),
		maskModel:    strings.TrimSpace(opts.MaskModel),
		httpClient:   httpClient,
		logger:       logger,
		pollInterval: pollInterval,
		pollCeiling:  pollCeiling,
	}
}

// Name identifies the provider in logs and metrics.
func (c *Client) Name() string { return "replicate" }

// Configured reports whether the client can perform remote calls.
func (c *Client) Configured() bool { return c.apiToken != "" }

// SupportsMask reports whether a mask model version is configured.
func (c *Client) SupportsMask() bool { return c.maskModel != "" }

// Depth runs a depth prediction for the given encoded image.
func (c *Client) Depth(ctx context.Context, imageData []byte) (image.Image, error) {
	return c.predict(ctx, c.depthModel, imageData)
}

// Mask runs a segmentation prediction for the given encoded image.
func (c *Client) Mask(ctx context.Context, imageData []byte) (image.Image, error) {
	if c.maskModel == "" {
		return nil, errors.New("replicate: mask model not configured")
	}
	return c.predict(ctx, c.maskModel, imageData)
}

func (c *Client) predict(ctx context.Context, version string, imageData []byte) (image.Image, error) {
	if !c.Configured() {
		return nil, ErrMissingAPIToken
	}
	if version == "" {
		return nil, errors.New("replicate: model version is required")
	}

	payload := predictionRequest{
		Version: version,
		Input: predictionInput{
			Image: "data:image/png;base64," + base64.StdEncoding.EncodeToString(imageData),
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("replicate: encode request: %w", err)
	}

	prediction, err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/predictions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(c.pollCeiling)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.pollInterval):
		}

		prediction, err = c.doJSON(ctx, http.MethodGet, c.baseURL+"/predictions/"+prediction.ID, nil)
		if err != nil {
			return nil, err
		}

		switch prediction.Status {
		case "succeeded":
			outputURL, err := firstOutputURL(prediction.Output)
			if err != nil {
				return nil, err
			}
			c.logger.Debug().Str("prediction_id", prediction.ID).Str("url", outputURL).Msg("replicate: prediction succeeded")
			return c.download(ctx, outputURL)
		case "failed", "canceled":
			return nil, fmt.Errorf("replicate: prediction %s: %s", prediction.Status, prediction.Error)
		}
	}
	return nil, fmt.Errorf("replicate: prediction timed out after %s", c.pollCeiling)
}

func (c *Client) doJSON(ctx context.Context, method, url string, body io.Reader) (*predictionResponse, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("replicate: build request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+c.apiToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("replicate: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("replicate: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("replicate: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var decoded predictionResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("replicate: decode response: %w", err)
	}
	return &decoded, nil
}

func (c *Client) download(ctx context.Context, url string) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("replicate: build download request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("replicate: download output: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("replicate: download status %d", resp.StatusCode)
	}
	img, err := imaging.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("replicate: decode output image: %w", err)
	}
	return img, nil
}

// firstOutputURL handles both output shapes the API produces: a single URL
// string or an array of URLs.
func firstOutputURL(output json.RawMessage) (string, error) {
	if len(output) == 0 {
		return "", errors.New("replicate: empty prediction output")
	}
	var single string
	if err := json.Unmarshal(output, &single); err == nil && single != "" {
		return single, nil
	}
	var many []string
	if err := json.Unmarshal(output, &many); err == nil && len(many) > 0 && many[0] != "" {
		return many[0], nil
	}
	return "", fmt.Errorf("replicate: unexpected output shape: %s", strings.TrimSpace(string(output)))
}
