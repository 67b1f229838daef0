// Package imagen is the Imagen image backend, served through the official
// google.golang.org/genai SDK.
package imagen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"auto-creative-engine/internal/creative"
	"auto-creative-engine/internal/logging"
	"auto-creative-engine/internal/retry"
)

const (
	DefaultModel = "imagen-4.0-generate-001"
	serviceName  = "imagen"
)

// models is the slice of *genai.Models the backend needs.
type models interface {
	GenerateImages(ctx context.Context, model, prompt string, config *genai.GenerateImagesConfig) (*genai.GenerateImagesResponse, error)
}

type Options struct {
	APIKey       string
	Model        string
	MaxRetries   int
	RetryBackoff time.Duration
	Logger       *slog.Logger
}

type Client struct {
	models models
	model  string
	retry  retry.Policy
	logger *slog.Logger
}

var _ creative.ImageGenerator = (*Client)(nil)

func New(ctx context.Context, opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("imagen: api key is required")
	}

	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("imagen: create client: %w", err)
	}
	return newWithModels(gc.Models, opts), nil
}

func newWithModels(m models, opts Options) *Client {
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = DefaultModel
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	return &Client{
		models: m,
		model:  model,
		retry:  retry.Policy{Attempts: opts.MaxRetries, Backoff: opts.RetryBackoff, Logger: logger},
		logger: logger,
	}
}

// Generate asks for exactly one image. Imagen does not take a reference
// image, so ir.Reference is ignored.
func (c *Client) Generate(ctx context.Context, ir creative.ImageRequest) ([]byte, error) {
	prompt := strings.TrimSpace(ir.Prompt)
	if prompt == "" {
		return nil, &creative.ServiceError{Service: serviceName, Message: "prompt is empty", Err: creative.ErrMalformedResponse}
	}

	cfg := &genai.GenerateImagesConfig{
		NumberOfImages: 1,
		AspectRatio:    ir.AspectRatio,
		OutputMIMEType: "image/jpeg",
	}

	var data []byte
	err := c.retry.Do(ctx, c.model, func(ctx context.Context) error {
		resp, err := c.models.GenerateImages(ctx, c.model, prompt, cfg)
		if err != nil {
			return wrapError(err)
		}
		data, err = firstImage(resp)
		return err
	})
	if err != nil {
		return nil, err
	}

	c.logger.Debug("imagen image generated", "model", c.model, "bytes", len(data))
	return data, nil
}

func firstImage(resp *genai.GenerateImagesResponse) ([]byte, error) {
	if resp == nil || len(resp.GeneratedImages) == 0 {
		return nil, &creative.ServiceError{Service: serviceName, Message: "no images in response", Err: creative.ErrMalformedResponse}
	}

	img := resp.GeneratedImages[0]
	if img == nil || img.Image == nil || len(img.Image.ImageBytes) == 0 {
		msg := "empty image in response"
		if img != nil && img.RAIFilteredReason != "" {
			msg = "filtered: " + img.RAIFilteredReason
		}
		return nil, &creative.ServiceError{Service: serviceName, Message: msg, Err: creative.ErrMalformedResponse}
	}
	return img.Image.ImageBytes, nil
}

func wrapError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &creative.ServiceError{Service: serviceName, StatusCode: apiErr.Code, Message: apiErr.Message, Err: err}
	}
	return &creative.ServiceError{Service: serviceName, Err: err}
}
