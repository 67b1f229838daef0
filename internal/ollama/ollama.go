// Package ollama runs a local image model through the ollama CLI.
package ollama

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"auto-creative-engine/internal/creative"
	"auto-creative-engine/internal/logging"
)

const (
	DefaultBin   = "ollama"
	DefaultModel = "x/flux2-klein"
	serviceName  = "ollama"
)

var savedImageRe = regexp.MustCompile(`Image saved to:\s+(.+\.png)`)

type Options struct {
	Bin    string
	Model  string
	Logger *slog.Logger
}

type Client struct {
	bin    string
	model  string
	logger *slog.Logger
}

var _ creative.ImageGenerator = (*Client)(nil)

func New(opts Options) *Client {
	bin := strings.TrimSpace(opts.Bin)
	if bin == "" {
		bin = DefaultBin
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = DefaultModel
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	return &Client{bin: bin, model: model, logger: logger}
}

// Generate runs the model in a private working directory so concurrent
// workers never see each other's output files. Aspect ratio and reference
// are not supported by the CLI and are ignored.
func (c *Client) Generate(ctx context.Context, ir creative.ImageRequest) ([]byte, error) {
	prompt := strings.TrimSpace(ir.Prompt)
	if prompt == "" {
		return nil, &creative.ServiceError{Service: serviceName, Message: "prompt is empty", Err: creative.ErrMalformedResponse}
	}

	workDir, err := os.MkdirTemp("", "ollama-image-*")
	if err != nil {
		return nil, &creative.ServiceError{Service: serviceName, Err: fmt.Errorf("create work dir: %w", err)}
	}
	defer os.RemoveAll(workDir)

	cmd := exec.CommandContext(ctx, c.bin, "run", c.model, prompt)
	cmd.Dir = workDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, &creative.ServiceError{Service: serviceName, Err: ctxErr}
		}
		return nil, &creative.ServiceError{
			Service: serviceName,
			Message: fmt.Sprintf("command failed: %v: %s", err, strings.TrimSpace(stderr.String())),
		}
	}

	filename, err := extractFilename(stdout.String())
	if err != nil {
		return nil, &creative.ServiceError{Service: serviceName, Message: err.Error(), Err: creative.ErrMalformedResponse}
	}

	path := filename
	if !filepath.IsAbs(path) {
		path = filepath.Join(workDir, filename)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &creative.ServiceError{Service: serviceName, Message: "generated image not readable", Err: fmt.Errorf("%w: %v", creative.ErrMalformedResponse, err)}
	}

	c.logger.Debug("ollama image generated", "model", c.model, "file", filename, "bytes", len(data))
	return data, nil
}

func extractFilename(output string) (string, error) {
	matches := savedImageRe.FindStringSubmatch(output)
	if len(matches) < 2 {
		return "", fmt.Errorf("could not find 'Image saved to:' in output")
	}
	return strings.TrimSpace(matches[1]), nil
}
