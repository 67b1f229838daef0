package creative

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"auto-creative-engine/internal/logging"
)

// Builder turns one GenerationRequest into a CreativeSet.
type Builder struct {
	prompts  *PromptBuilder
	batch    *BatchGenerator
	captions *CaptionBuilder
	store    ImageStore
	logger   *slog.Logger
}

type BuilderOptions struct {
	Prompts  *PromptBuilder
	Batch    *BatchGenerator
	Captions *CaptionBuilder
	Store    ImageStore
	Logger   *slog.Logger
}

func NewBuilder(opts BuilderOptions) *Builder {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	return &Builder{
		prompts:  opts.Prompts,
		batch:    opts.Batch,
		captions: opts.Captions,
		store:    opts.Store,
		logger:   logger,
	}
}

// Build validates the request, generates prompts, fans image generation out
// and captions every image that made it. The returned set may hold fewer
// images than requested; Prompts always has the requested length. Only
// validation and persistence failures are returned as errors.
func (b *Builder) Build(ctx context.Context, req GenerationRequest) (CreativeSet, error) {
	if err := req.Validate(); err != nil {
		return CreativeSet{}, err
	}
	if b.store == nil {
		return CreativeSet{}, &PackagingError{Op: "save", Err: errors.New("no image store configured")}
	}

	brand := req.Brand()
	aspect := req.AspectRatio
	if aspect == "" {
		aspect = DefaultAspectRatio
	}

	prompts := b.prompts.Build(ctx, req, req.Count)
	texts := make([]string, len(prompts))
	for i, p := range prompts {
		texts[i] = p.Text
	}

	outcomes := b.batch.Generate(ctx, texts, ImageOptions{
		AspectRatio: aspect,
		Reference:   req.ProductImage,
	})

	set := CreativeSet{
		Requested: req.Count,
		Mapping:   make(map[string]string),
		Prompts:   prompts,
	}

	// Finished images are kept even when ctx ran out during the batch.
	persist := context.WithoutCancel(ctx)

	for _, o := range outcomes {
		if !o.OK() {
			b.logger.Error("creative failed", "index", o.Index, "creative", o.Index+1, "err", o.Err)
			continue
		}

		name := ImageName(o.Index)
		path, err := b.store.SaveImage(persist, name, o.Image)
		if err != nil {
			var pe *PackagingError
			if errors.As(err, &pe) {
				return CreativeSet{}, err
			}
			return CreativeSet{}, &PackagingError{Op: "save", Path: name, Err: err}
		}

		key := ImageKey(name)
		caption := b.captions.Build(ctx, prompts[o.Index].Text, req.ProductDescription, brand, DefaultCaptionStyle, DefaultCaptionMaxLength)

		set.Images = append(set.Images, Creative{
			Index:  o.Index,
			Name:   name,
			Path:   path,
			Prompt: prompts[o.Index],
		})
		set.Captions = append(set.Captions, CaptionItem{Key: key, Text: caption})
		set.Mapping[key] = caption
	}

	b.logger.Info("creative set built",
		"summary", Summary(set),
		"requested", set.Requested,
		"delivered", set.Delivered(),
	)
	return set, nil
}

// Summary renders "{delivered}/{requested} creatives generated".
func Summary(set CreativeSet) string {
	return fmt.Sprintf("%d/%d creatives generated", set.Delivered(), set.Requested)
}
