package creative

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"auto-creative-engine/internal/logging"
)

// DefaultConcurrency bounds in-flight image calls. It is sized for provider
// rate limits, not local CPU.
const DefaultConcurrency = 6

// MaxConcurrency caps the pool whatever the caller asks for.
const MaxConcurrency = 16

// ImageOptions are shared by every unit of one batch.
type ImageOptions struct {
	AspectRatio string
	Reference   *Reference
}

type BatchGenerator struct {
	images      ImageGenerator
	concurrency int
	limiter     *rate.Limiter
	normalize   func([]byte) ([]byte, error)
	logger      *slog.Logger
}

type BatchOptions struct {
	Images      ImageGenerator
	Concurrency int
	// RateInterval spaces out calls across the pool; zero disables it.
	RateInterval time.Duration
	// Normalize runs inside the unit after a successful call, e.g. to decode
	// and re-encode the image. An error turns the unit into a Failure.
	Normalize func([]byte) ([]byte, error)
	Logger    *slog.Logger
}

func NewBatchGenerator(opts BatchOptions) *BatchGenerator {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	var limiter *rate.Limiter
	if opts.RateInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(opts.RateInterval), 1)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	if concurrency > MaxConcurrency {
		logger.Warn("concurrency capped", "requested", concurrency, "max", MaxConcurrency)
		concurrency = MaxConcurrency
	}

	return &BatchGenerator{
		images:      opts.Images,
		concurrency: concurrency,
		limiter:     limiter,
		normalize:   opts.Normalize,
		logger:      logger,
	}
}

// Workers returns the pool size used for a batch of n prompts.
func (g *BatchGenerator) Workers(n int) int {
	return min(g.concurrency, n)
}

// Generate returns exactly one outcome per prompt, ordered by index. Unit
// failures are recorded as Failure outcomes and never abort the batch. When
// ctx ends first, units that have not reported yet are marked as failed with
// the context error and abandoned; completed successes are kept.
func (g *BatchGenerator) Generate(ctx context.Context, prompts []string, opts ImageOptions) []Outcome {
	n := len(prompts)
	outcomes := make([]Outcome, n)
	if n == 0 {
		return outcomes
	}

	// Every index sends exactly once, so a buffer of n never blocks a worker
	// whose result is no longer being collected.
	results := make(chan Outcome, n)

	go func() {
		var eg errgroup.Group
		eg.SetLimit(g.Workers(n))
		for i, prompt := range prompts {
			if err := ctx.Err(); err != nil {
				results <- failed(i, err)
				continue
			}
			eg.Go(func() error {
				results <- g.unit(ctx, i, prompt, opts)
				return nil
			})
		}
		_ = eg.Wait()
	}()

	reported := make([]bool, n)
	received := 0
	record := func(o Outcome) {
		if o.Index < 0 || o.Index >= n || reported[o.Index] {
			return
		}
		outcomes[o.Index] = o
		reported[o.Index] = true
		received++
	}

collect:
	for received < n {
		select {
		case o := <-results:
			record(o)
		case <-ctx.Done():
			break collect
		}
	}

	if received < n {
		for drained := false; !drained; {
			select {
			case o := <-results:
				record(o)
			default:
				drained = true
			}
		}
		for i := range outcomes {
			if !reported[i] {
				outcomes[i] = failed(i, ctx.Err())
			}
		}
		g.logger.Warn("batch cancelled, abandoning in-flight units", "completed", received, "total", n, "err", ctx.Err())
	}

	return outcomes
}

func (g *BatchGenerator) unit(ctx context.Context, index int, prompt string, opts ImageOptions) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = failed(index, fmt.Errorf("image %d: panic: %v", index+1, r))
		}
	}()

	logger := g.logger.With("index", index, "creative", index+1)

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return failed(index, fmt.Errorf("image %d: rate limiter: %w", index+1, err))
		}
	}

	start := time.Now()
	data, err := g.images.Generate(ctx, ImageRequest{
		Prompt:      prompt,
		AspectRatio: opts.AspectRatio,
		Reference:   opts.Reference,
	})
	if err == nil && len(data) == 0 {
		err = errors.New("empty image payload")
	}
	if err != nil {
		logger.Warn("image generation failed", "err", err, "dur_ms", time.Since(start).Milliseconds())
		return failed(index, fmt.Errorf("image %d: %w", index+1, err))
	}

	if g.normalize != nil {
		data, err = g.normalize(data)
		if err != nil {
			logger.Warn("image decode failed", "err", err)
			return failed(index, fmt.Errorf("image %d: %w", index+1, err))
		}
	}

	logger.Info("image generated", "bytes", len(data), "dur_ms", time.Since(start).Milliseconds())
	return Outcome{Index: index, Status: StatusSuccess, Image: data}
}

func failed(index int, err error) Outcome {
	return Outcome{Index: index, Status: StatusFailure, Err: err}
}
