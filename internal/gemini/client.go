package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"auto-creative-engine/internal/creative"
	"auto-creative-engine/internal/logging"
	"auto-creative-engine/internal/retry"
)

const (
	DefaultTextModel  = "gemini-2.5-flash"
	DefaultImageModel = "gemini-2.5-flash-image"

	serviceName = "gemini"
)

const imageInstruction = `You are an advertising art director. Produce exactly one finished ad creative image for the brief.
Return the image as inline data. Do not return text, JSON, code or links.`

type Options struct {
	APIKey     string
	BaseURL    string
	APIVersion string
	TextModel  string
	ImageModel string
	// MaxRetries counts attempts, not extra tries. Values below 1 mean 3 and
	// values above retry.MaxAttempts are capped.
	MaxRetries   int
	RetryBackoff time.Duration
	HTTPClient   *http.Client
	Logger       *slog.Logger
}

// Client talks to the Gemini REST API. It serves as both the text generator
// and the Gemini image backend.
type Client struct {
	apiKey     string
	baseURL    string
	apiVersion string
	textModel  string
	imageModel string
	retry      retry.Policy
	httpClient *http.Client
	logger     *slog.Logger
}

var (
	_ creative.TextGenerator  = (*Client)(nil)
	_ creative.ImageGenerator = (*Client)(nil)
)

func New(opts Options) *Client {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com"
	}

	apiVersion := strings.TrimSpace(opts.APIVersion)
	if apiVersion == "" {
		apiVersion = "v1beta"
	}

	textModel := strings.TrimSpace(opts.TextModel)
	if textModel == "" {
		textModel = DefaultTextModel
	}
	imageModel := strings.TrimSpace(opts.ImageModel)
	if imageModel == "" {
		imageModel = DefaultImageModel
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	return &Client{
		apiKey:     opts.APIKey,
		baseURL:    baseURL,
		apiVersion: apiVersion,
		textModel:  textModel,
		imageModel: imageModel,
		retry:      retry.Policy{Attempts: opts.MaxRetries, Backoff: opts.RetryBackoff, Logger: logger},
		httpClient: opts.HTTPClient,
		logger:     logger,
	}
}

// GenerateText returns the concatenated text parts of the first candidate.
func (c *Client) GenerateText(ctx context.Context, prompt string, opts creative.TextOptions) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", &creative.ServiceError{Service: serviceName, Message: "prompt is empty", Err: creative.ErrMalformedResponse}
	}

	req := generateContentRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{
			Temperature:     opts.Temperature,
			MaxOutputTokens: opts.MaxTokens,
			// short copy does not need thinking tokens eating the output budget
			ThinkingConfig: &thinkingConfig{ThinkingBudget: 0},
		},
	}

	resp, err := c.generateContent(ctx, c.textModel, req)
	if err != nil && isUnknownFieldError(err, "thinkingConfig") {
		req.GenerationConfig.ThinkingConfig = nil
		resp, err = c.generateContent(ctx, c.textModel, req)
	}
	if err != nil {
		return "", err
	}

	text, _ := extractParts(resp)
	if strings.TrimSpace(text) == "" {
		return "", c.malformed(resp, "no text in response")
	}
	return text, nil
}

// Generate produces one image. A reference image, when present, is sent as
// inline data ahead of the brief.
func (c *Client) Generate(ctx context.Context, ir creative.ImageRequest) ([]byte, error) {
	prompt := strings.TrimSpace(ir.Prompt)
	if prompt == "" {
		return nil, &creative.ServiceError{Service: serviceName, Message: "prompt is empty", Err: creative.ErrMalformedResponse}
	}

	parts := []part{{Text: fmt.Sprintf("Generate a high quality image: %s", prompt)}}
	if ref := ir.Reference; ref != nil && len(ref.Data) > 0 {
		mime := ref.MimeType
		if mime == "" {
			mime = http.DetectContentType(ref.Data)
		}
		parts = append(parts,
			part{Text: "Product reference photo. Keep the product recognisable:"},
			part{InlineData: &blob{Data: base64.StdEncoding.EncodeToString(ref.Data), MimeType: mime}},
		)
	}

	req := generateContentRequest{
		Contents:          []content{{Role: "user", Parts: parts}},
		SystemInstruction: &content{Role: "user", Parts: []part{{Text: imageInstruction}}},
		GenerationConfig: generationConfig{
			ResponseModalities: []string{"TEXT", "IMAGE"},
		},
	}
	if ir.AspectRatio != "" {
		req.GenerationConfig.ImageConfig = &imageConfig{AspectRatio: ir.AspectRatio}
	}

	resp, err := c.generateContent(ctx, c.imageModel, req)
	if err != nil && req.GenerationConfig.ImageConfig != nil && isUnknownFieldError(err, "imageConfig") {
		req.GenerationConfig.ImageConfig = nil
		resp, err = c.generateContent(ctx, c.imageModel, req)
	}
	if err != nil {
		return nil, err
	}

	_, images := extractParts(resp)
	if len(images) == 0 {
		return nil, c.malformed(resp, "no inline image in response")
	}

	data, err := base64.StdEncoding.DecodeString(images[0].Data)
	if err != nil {
		return nil, &creative.ServiceError{Service: serviceName, Message: "decode inline image", Err: fmt.Errorf("%w: %v", creative.ErrMalformedResponse, err)}
	}

	c.logger.Debug("gemini image generated", "model", c.imageModel, "bytes", len(data), "mime", images[0].MimeType)
	return data, nil
}

func (c *Client) generateContent(ctx context.Context, model string, payload generateContentRequest) (generateContentResponse, error) {
	var resp generateContentResponse
	err := c.retry.Do(ctx, model, func(ctx context.Context) error {
		var err error
		resp, err = c.doGenerateContent(ctx, model, payload)
		return err
	})
	return resp, err
}

func (c *Client) doGenerateContent(ctx context.Context, model string, payload generateContentRequest) (generateContentResponse, error) {
	if c.httpClient == nil {
		return generateContentResponse{}, &creative.ServiceError{Service: serviceName, Message: "http client is nil"}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return generateContentResponse{}, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/models/%s:generateContent", c.baseURL, c.apiVersion, model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return generateContentResponse{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("content-type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return generateContentResponse{}, &creative.ServiceError{Service: serviceName, Err: fmt.Errorf("request: %w", err)}
	}
	defer httpResp.Body.Close()

	rawBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return generateContentResponse{}, &creative.ServiceError{Service: serviceName, Err: fmt.Errorf("read response: %w", err)}
	}

	if httpResp.StatusCode >= 400 {
		return generateContentResponse{}, &creative.ServiceError{
			Service:    serviceName,
			StatusCode: httpResp.StatusCode,
			Message:    errorMessage(rawBody, httpResp.Status),
		}
	}

	var decoded generateContentResponse
	if err := json.Unmarshal(rawBody, &decoded); err != nil {
		return generateContentResponse{}, &creative.ServiceError{
			Service: serviceName,
			Message: "decode response",
			Err:     fmt.Errorf("%w: %v", creative.ErrMalformedResponse, err),
		}
	}
	return decoded, nil
}

func (c *Client) malformed(resp generateContentResponse, msg string) error {
	switch {
	case resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "":
		msg += ": blocked: " + resp.PromptFeedback.BlockReason
	case len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != "":
		msg += ": finish reason " + resp.Candidates[0].FinishReason
	}
	return &creative.ServiceError{Service: serviceName, Message: msg, Err: creative.ErrMalformedResponse}
}

func extractParts(resp generateContentResponse) (string, []blob) {
	if len(resp.Candidates) == 0 {
		return "", nil
	}

	var textBuilder strings.Builder
	var images []blob

	for _, p := range resp.Candidates[0].Content.Parts {
		if p.Text != "" {
			textBuilder.WriteString(p.Text)
		}
		if p.InlineData != nil && p.InlineData.Data != "" && strings.HasPrefix(p.InlineData.MimeType, "image/") {
			images = append(images, *p.InlineData)
		}
	}

	return textBuilder.String(), images
}

func errorMessage(raw []byte, status string) string {
	var body apiErrorBody
	if err := json.Unmarshal(raw, &body); err == nil && body.Error.Message != "" {
		return body.Error.Message
	}
	if msg := strings.TrimSpace(string(raw)); msg != "" {
		return msg
	}
	return status
}

func isUnknownFieldError(err error, field string) bool {
	message := err.Error()
	return strings.Contains(message, "Unknown name") && strings.Contains(message, field)
}
