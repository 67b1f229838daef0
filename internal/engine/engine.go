// Package engine wires the creative pipeline to brand color extraction and
// packaging. It is the single entry point shared by the CLI, the HTTP API
// and the Telegram bot.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"auto-creative-engine/internal/brandcolor"
	"auto-creative-engine/internal/creative"
	"auto-creative-engine/internal/imageutil"
	"auto-creative-engine/internal/logging"
	"auto-creative-engine/internal/packager"
)

type Options struct {
	Text   creative.TextGenerator
	Images creative.ImageGenerator
	Colors *brandcolor.Extractor

	Concurrency  int
	RateInterval time.Duration
	// Normalize defaults to imageutil.ToJPEG.
	Normalize func([]byte) ([]byte, error)
	// EnhancePrompts appends brand guidelines to every image prompt.
	EnhancePrompts bool

	OutputDir string
	Logger    *slog.Logger
	Now       func() time.Time
}

type Engine struct {
	text           creative.TextGenerator
	images         creative.ImageGenerator
	colors         *brandcolor.Extractor
	concurrency    int
	rateInterval   time.Duration
	normalize      func([]byte) ([]byte, error)
	enhancePrompts bool
	outputDir      string
	logger         *slog.Logger
	now            func() time.Time
}

// Input is one run. File paths and in-memory images are alternatives; a
// non-empty path wins.
type Input struct {
	ProductDescription string
	BrandName          string
	Theme              string
	Tone               string
	AspectRatio        string
	Count              int

	LogoPath         string
	Logo             []byte
	ProductImagePath string
	ProductImage     *creative.Reference

	// OutputDir overrides the engine's output directory for this run.
	OutputDir string
	// NamedArchive names the archive <brand>_creatives_<timestamp>.zip
	// instead of creatives.zip.
	NamedArchive bool
}

type Result struct {
	Set         creative.CreativeSet
	BrandColors []string
	Dir         string
	ArchivePath string
	Requested   int
	Delivered   int
}

func (r Result) Summary() string {
	return creative.Summary(r.Set)
}

func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	colors := opts.Colors
	if colors == nil {
		colors = brandcolor.New(brandcolor.Options{Logger: logger})
	}
	normalize := opts.Normalize
	if normalize == nil {
		normalize = imageutil.ToJPEG
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	outputDir := strings.TrimSpace(opts.OutputDir)
	if outputDir == "" {
		outputDir = "data/outputs"
	}

	return &Engine{
		text:           opts.Text,
		images:         opts.Images,
		colors:         colors,
		concurrency:    opts.Concurrency,
		rateInterval:   opts.RateInterval,
		normalize:      normalize,
		enhancePrompts: opts.EnhancePrompts,
		outputDir:      outputDir,
		logger:         logger,
		now:            now,
	}
}

// Run validates the input, extracts brand colors, generates the creative set
// and packages it. A run where every image failed still returns a Result
// with an archive; only validation and packaging problems are errors.
func (e *Engine) Run(ctx context.Context, in Input) (Result, error) {
	if e.images == nil {
		return Result{}, fmt.Errorf("engine: no image backend configured")
	}

	logo, product, err := e.loadImages(in)
	if err != nil {
		return Result{}, err
	}

	req := creative.GenerationRequest{
		ProductDescription: strings.TrimSpace(in.ProductDescription),
		BrandName:          in.BrandName,
		Theme:              strings.ToLower(strings.TrimSpace(in.Theme)),
		Tone:               in.Tone,
		Count:              in.Count,
		AspectRatio:        strings.TrimSpace(in.AspectRatio),
		ProductImage:       product,
	}
	if err := req.Validate(); err != nil {
		return Result{}, err
	}

	if len(logo) > 0 {
		req.BrandColors = e.colors.Extract(logo)
	}
	brand := req.Brand()

	dir := strings.TrimSpace(in.OutputDir)
	if dir == "" {
		dir = e.outputDir
	}
	pkg := packager.New(packager.Options{Dir: dir, Logger: e.logger})
	if err := pkg.Prepare(); err != nil {
		return Result{}, err
	}

	images := e.images
	if e.enhancePrompts {
		images = brandedImages{next: images, brand: brand}
	}

	builder := creative.NewBuilder(creative.BuilderOptions{
		Prompts: creative.NewPromptBuilder(creative.PromptBuilderOptions{Text: e.text, Now: e.now, Logger: e.logger}),
		Batch: creative.NewBatchGenerator(creative.BatchOptions{
			Images:       images,
			Concurrency:  e.concurrency,
			RateInterval: e.rateInterval,
			Normalize:    e.normalize,
			Logger:       e.logger,
		}),
		Captions: creative.NewCaptionBuilder(creative.CaptionBuilderOptions{Text: e.text, Logger: e.logger}),
		Store:    pkg,
		Logger:   e.logger,
	})

	e.logger.Info("run started",
		"brand", brand.Name,
		"theme", brand.Theme,
		"count", req.Count,
		"colors", len(brand.Colors),
		"product_image", product != nil,
		"dir", dir,
	)

	set, err := builder.Build(ctx, req)
	if err != nil {
		return Result{}, err
	}

	if err := pkg.WriteCaptions(set); err != nil {
		return Result{}, err
	}
	if err := pkg.WritePrompts(set.Prompts, brand); err != nil {
		return Result{}, err
	}

	name := creative.DefaultZipName
	if in.NamedArchive {
		name = creative.ZipName(brand.Name, e.now())
	}
	archive, err := pkg.WriteArchive(name)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		Set:         set,
		BrandColors: brand.Colors,
		Dir:         dir,
		ArchivePath: archive,
		Requested:   set.Requested,
		Delivered:   set.Delivered(),
	}

	logFn := e.logger.Info
	if res.Delivered < res.Requested {
		logFn = e.logger.Warn
	}
	logFn("run finished", "summary", res.Summary(), "archive", archive)
	return res, nil
}

func (e *Engine) loadImages(in Input) ([]byte, *creative.Reference, error) {
	logo := in.Logo
	if path := strings.TrimSpace(in.LogoPath); path != "" {
		if err := imageutil.ValidateFile("logo", path); err != nil {
			return nil, nil, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, nil, &creative.ValidationError{Field: "logo", Reason: err.Error()}
		}
		logo = data
	}

	product := in.ProductImage
	if path := strings.TrimSpace(in.ProductImagePath); path != "" {
		if err := imageutil.ValidateFile("product_image", path); err != nil {
			return nil, nil, err
		}
		ref, err := imageutil.LoadReference(path)
		if err != nil {
			return nil, nil, &creative.ValidationError{Field: "product_image", Reason: err.Error()}
		}
		product = ref
	}
	if product != nil && len(product.Data) == 0 {
		product = nil
	}

	return logo, product, nil
}

type brandedImages struct {
	next  creative.ImageGenerator
	brand creative.BrandConfig
}

func (b brandedImages) Generate(ctx context.Context, req creative.ImageRequest) ([]byte, error) {
	req.Prompt = creative.EnhanceWithBrand(req.Prompt, b.brand)
	return b.next.Generate(ctx, req)
}
