package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"auto-creative-engine/internal/app"
	"auto-creative-engine/internal/config"
	"auto-creative-engine/internal/creative"
	"auto-creative-engine/internal/engine"
)

type options struct {
	productDescription string
	logo               string
	productImage       string
	count              int
	brandName          string
	theme              string
	tone               string
	aspectRatio        string
	apiKey             string
	outputDir          string
	imageBackend       string
	concurrency        int
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:           "creative",
		Short:         "Generate a batch of ad creatives with captions and package them as a ZIP",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.productDescription, "product-description", "", "product to advertise")
	f.StringVar(&opts.logo, "logo", "", "logo image used to extract brand colors")
	f.StringVar(&opts.productImage, "product-image", "", "product photo used as a reference image")
	f.IntVarP(&opts.count, "num-creatives", "n", creative.DefaultCount, fmt.Sprintf("number of creatives (%d-%d)", creative.MinCount, creative.MaxCount))
	f.StringVar(&opts.brandName, "brand-name", creative.DefaultBrandName, "brand name")
	f.StringVar(&opts.theme, "theme", "", "visual theme: "+strings.Join(creative.Themes(), ", "))
	f.StringVar(&opts.tone, "tone", "", "caption tone (default \"professional\")")
	f.StringVar(&opts.aspectRatio, "aspect-ratio", "", "aspect ratio: "+strings.Join(creative.AspectRatios, ", "))
	f.StringVar(&opts.apiKey, "api-key", "", "Gemini API key (default $GEMINI_API_KEY)")
	f.StringVarP(&opts.outputDir, "output-dir", "o", "", "output directory (default $OUTPUT_DIR or data/outputs)")
	f.StringVar(&opts.imageBackend, "image-backend", "", "image backend: gemini, imagen, ollama (default $IMAGE_BACKEND)")
	f.IntVar(&opts.concurrency, "concurrency", 0, "parallel image requests (default $MAX_CONCURRENT)")
	_ = cmd.MarkFlagRequired("product-description")

	return cmd
}

// applyTo lets flags override the environment config.
func (o options) applyTo(cfg *config.Config) error {
	if key := strings.TrimSpace(o.apiKey); key != "" {
		cfg.GeminiAPIKey = key
	}
	if backend := strings.ToLower(strings.TrimSpace(o.imageBackend)); backend != "" {
		if err := config.ValidateBackend(backend); err != nil {
			return err
		}
		cfg.ImageBackend = backend
	}
	if o.concurrency > 0 {
		cfg.MaxConcurrent = min(o.concurrency, creative.MaxConcurrency)
	}
	if dir := strings.TrimSpace(o.outputDir); dir != "" {
		cfg.OutputDir = dir
	}
	return nil
}

func run(cmd *cobra.Command, opts options) error {
	ctx := cmd.Context()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := opts.applyTo(&cfg); err != nil {
		return err
	}

	logger, closer := app.NewLogger(cfg)
	defer closer.Close()

	eng, err := app.NewEngine(ctx, cfg, nil, logger)
	if err != nil {
		logger.Error("engine init failed", "err", err)
		return err
	}

	res, err := eng.Run(ctx, engine.Input{
		ProductDescription: opts.productDescription,
		BrandName:          opts.brandName,
		Theme:              opts.theme,
		Tone:               opts.tone,
		AspectRatio:        opts.aspectRatio,
		Count:              opts.count,
		LogoPath:           opts.logo,
		ProductImagePath:   opts.productImage,
	})
	if err != nil {
		logger.Error("run failed", "err", err)
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, res.Summary())
	if len(res.BrandColors) > 0 {
		fmt.Fprintln(out, "brand colors:", strings.Join(res.BrandColors, " "))
	}
	fmt.Fprintln(out, "output:", res.Dir)
	fmt.Fprintln(out, "archive:", res.ArchivePath)
	return nil
}
