// Package handlers turns Telegram updates into creative runs. A chat keeps a
// brand profile between runs; photos and albums start a run.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/sync/errgroup"

	"auto-creative-engine/internal/creative"
	"auto-creative-engine/internal/engine"
	"auto-creative-engine/internal/logging"
	"auto-creative-engine/internal/mediagroup"
	"auto-creative-engine/internal/session"
	"auto-creative-engine/internal/telegram"
)

const logoCaption = "logo"

// Messenger is the part of *telegram.Client the handler talks to.
type Messenger interface {
	SendTyping(chatID int64)
	SendUploading(chatID int64)
	SendText(chatID int64, text string) error
	SendDocument(chatID int64, name string, data []byte, caption string) error
	DownloadFile(ctx context.Context, fileID string) ([]byte, string, error)
}

type Runner interface {
	Run(ctx context.Context, in engine.Input) (engine.Result, error)
}

type Options struct {
	Telegram Messenger
	Engine   Runner
	Sessions *session.Store
	// WorkDir holds per-run output directories. Empty uses the system temp dir.
	WorkDir    string
	RunTimeout time.Duration
	MaxRuns    int
	Logger     *slog.Logger
}

type Handler struct {
	tg         Messenger
	engine     Runner
	sessions   *session.Store
	workDir    string
	runTimeout time.Duration
	runs       chan struct{}
	logger     *slog.Logger
	aggregator *mediagroup.Aggregator
}

func New(opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	sessions := opts.Sessions
	if sessions == nil {
		sessions = session.NewStore(session.Options{})
	}
	maxRuns := opts.MaxRuns
	if maxRuns <= 0 {
		maxRuns = 2
	}

	return &Handler{
		tg:         opts.Telegram,
		engine:     opts.Engine,
		sessions:   sessions,
		workDir:    opts.WorkDir,
		runTimeout: opts.RunTimeout,
		runs:       make(chan struct{}, maxRuns),
		logger:     logger,
	}
}

func (h *Handler) SetMediaGroupAggregator(ag *mediagroup.Aggregator) {
	h.aggregator = ag
}

func (h *Handler) HandleUpdate(ctx context.Context, update telegram.Update) error {
	if update.Message == nil || update.Message.From == nil || update.Message.Chat == nil {
		return nil
	}

	msg := update.Message
	chatID := msg.Chat.ID
	userID := msg.From.ID
	username := msg.From.UserName

	if msg.IsCommand() {
		return h.handleCommand(ctx, chatID, userID, username, msg)
	}

	if len(msg.Photo) > 0 {
		return h.handlePhoto(ctx, chatID, userID, username, msg)
	}

	if strings.TrimSpace(msg.Text) != "" {
		return h.tg.SendText(chatID, "Send a product photo with its description as the caption, or use /creatives <description>. /help lists every command.")
	}

	return nil
}

// HandleMediaGroup treats the first album photo as the logo and the second as
// the product image. The album caption is the product description.
func (h *Handler) HandleMediaGroup(ctx context.Context, group mediagroup.Group) {
	description := strings.TrimSpace(group.Caption)
	if description == "" {
		_ = h.tg.SendText(group.ChatID, "❌ Add the product description as the album caption.")
		return
	}
	if len(group.FileIDs) > 2 {
		h.logger.Info("album has extra photos", "chat_id", group.ChatID, "photos", len(group.FileIDs))
	}

	var logoID, productID string
	switch len(group.FileIDs) {
	case 0:
		return
	case 1:
		productID = group.FileIDs[0]
	default:
		logoID, productID = group.FileIDs[0], group.FileIDs[1]
	}

	if err := h.runFromPhotos(ctx, group.ChatID, group.UserID, group.Username, description, logoID, productID); err != nil {
		h.logger.Error("media group run failed", "chat_id", group.ChatID, "err", err)
	}
}

func (h *Handler) handleCommand(ctx context.Context, chatID int64, userID int64, username string, msg *tgbotapi.Message) error {
	args := strings.TrimSpace(msg.CommandArguments())

	switch msg.Command() {
	case "start":
		return h.tg.SendText(chatID,
			"🎨 Auto Creative Engine\n\n"+
				"Send a product photo with a short description as the caption and I will return a ZIP of ad creatives with captions.\n\n"+
				"Send a photo captioned \"logo\" first to use your brand colors.\n"+
				"/help lists every command.",
		)
	case "help":
		return h.tg.SendText(chatID, helpText())
	case "brand":
		if args == "" {
			return h.tg.SendText(chatID, "❌ Usage: /brand <name>")
		}
		p := h.sessions.Update(userID, username, func(p *session.Profile) {
			p.BrandName = creative.NormalizeBrandName(args)
		})
		return h.tg.SendText(chatID, fmt.Sprintf("✅ Brand set to %q.", p.BrandName))
	case "theme":
		theme := strings.ToLower(args)
		if !creative.IsTheme(theme) {
			return h.tg.SendText(chatID, "❌ Usage: /theme <name>\nThemes: "+strings.Join(creative.Themes(), ", "))
		}
		h.sessions.Update(userID, username, func(p *session.Profile) { p.Theme = theme })
		return h.tg.SendText(chatID, fmt.Sprintf("✅ Theme set to %s.", theme))
	case "tone":
		if args == "" {
			return h.tg.SendText(chatID, "❌ Usage: /tone <tone>, for example /tone playful")
		}
		h.sessions.Update(userID, username, func(p *session.Profile) { p.Tone = args })
		return h.tg.SendText(chatID, fmt.Sprintf("✅ Tone set to %s.", args))
	case "ratio":
		if !slices.Contains(creative.AspectRatios, args) {
			return h.tg.SendText(chatID, "❌ Usage: /ratio <ratio>\nRatios: "+strings.Join(creative.AspectRatios, ", "))
		}
		h.sessions.Update(userID, username, func(p *session.Profile) { p.AspectRatio = args })
		return h.tg.SendText(chatID, fmt.Sprintf("✅ Aspect ratio set to %s.", args))
	case "count":
		n, err := strconv.Atoi(args)
		if err != nil || n < creative.MinCount || n > creative.MaxCount {
			return h.tg.SendText(chatID, fmt.Sprintf("❌ Usage: /count <%d-%d>", creative.MinCount, creative.MaxCount))
		}
		h.sessions.Update(userID, username, func(p *session.Profile) { p.Count = n })
		return h.tg.SendText(chatID, fmt.Sprintf("✅ Next runs will generate %d creatives.", n))
	case "reset":
		h.sessions.Reset(userID)
		return h.tg.SendText(chatID, "✅ Brand profile cleared.")
	case "creatives":
		if args == "" {
			return h.tg.SendText(chatID, "❌ Usage: /creatives <product description>")
		}
		return h.run(ctx, chatID, userID, username, args, nil, nil)
	default:
		return h.tg.SendText(chatID, "❌ Unknown command. Use /help.")
	}
}

func (h *Handler) handlePhoto(ctx context.Context, chatID int64, userID int64, username string, msg *tgbotapi.Message) error {
	fileID := msg.Photo[len(msg.Photo)-1].FileID

	if msg.MediaGroupID != "" && h.aggregator != nil {
		h.aggregator.Add(mediagroup.Item{
			ChatID:       chatID,
			UserID:       userID,
			Username:     username,
			MediaGroupID: msg.MediaGroupID,
			MessageID:    msg.MessageID,
			Caption:      msg.Caption,
			FileID:       fileID,
		})
		return nil
	}

	caption := strings.TrimSpace(msg.Caption)
	if strings.EqualFold(caption, logoCaption) {
		data, _, err := h.tg.DownloadFile(ctx, fileID)
		if err != nil {
			h.logger.Error("logo download failed", "chat_id", chatID, "err", err)
			return h.tg.SendText(chatID, "❌ Could not download the logo. Please send it again.")
		}
		h.sessions.SetLogo(userID, username, data)
		return h.tg.SendText(chatID, "✅ Logo saved. Brand colors will be taken from it.")
	}
	if caption == "" {
		return h.tg.SendText(chatID, "❌ Add the product description as the photo caption, or caption it \"logo\" to set your logo.")
	}

	return h.runFromPhotos(ctx, chatID, userID, username, caption, "", fileID)
}

func (h *Handler) runFromPhotos(ctx context.Context, chatID int64, userID int64, username, description, logoID, productID string) error {
	h.tg.SendTyping(chatID)

	ids := []string{logoID, productID}
	type downloaded struct {
		Data []byte
		Mime string
	}
	downloads := make([]downloaded, len(ids))

	eg, egCtx := errgroup.WithContext(ctx)
	for i, fileID := range ids {
		if fileID == "" {
			continue
		}
		eg.Go(func() error {
			data, mimeType, err := h.tg.DownloadFile(egCtx, fileID)
			if err != nil {
				return err
			}
			downloads[i] = downloaded{Data: data, Mime: mimeType}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		h.logger.Error("photo download failed", "chat_id", chatID, "err", err)
		return h.tg.SendText(chatID, "❌ Could not download the photos. Please send them again.")
	}

	var product *creative.Reference
	if d := downloads[1]; len(d.Data) > 0 {
		product = &creative.Reference{Data: d.Data, MimeType: d.Mime}
	}
	return h.run(ctx, chatID, userID, username, description, downloads[0].Data, product)
}

// run executes one engine run for the chat. A nil logo falls back to the
// logo stored in the profile.
func (h *Handler) run(ctx context.Context, chatID int64, userID int64, username, description string, logo []byte, product *creative.Reference) error {
	select {
	case h.runs <- struct{}{}:
		defer func() { <-h.runs }()
	default:
		return h.tg.SendText(chatID, "⏳ Too many runs in progress. Please try again in a minute.")
	}

	profile := h.sessions.Get(userID, username)
	if logo == nil {
		logo = profile.Logo
	}
	count := profile.Count
	if count == 0 {
		count = creative.DefaultCount
	}

	dir, err := os.MkdirTemp(h.workDir, "run-*")
	if err != nil {
		h.logger.Error("run dir", "err", err)
		return h.tg.SendText(chatID, "❌ Something went wrong. Please try again.")
	}
	defer os.RemoveAll(dir)

	if h.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.runTimeout)
		defer cancel()
	}

	_ = h.tg.SendText(chatID, fmt.Sprintf("🎨 Generating %d creatives, this can take a few minutes...", count))
	h.tg.SendUploading(chatID)

	res, err := h.engine.Run(ctx, engine.Input{
		ProductDescription: description,
		BrandName:          profile.BrandName,
		Theme:              profile.Theme,
		Tone:               profile.Tone,
		AspectRatio:        profile.AspectRatio,
		Count:              count,
		Logo:               logo,
		ProductImage:       product,
		OutputDir:          dir,
		NamedArchive:       true,
	})
	if err != nil {
		return h.replyRunError(chatID, err)
	}

	data, err := os.ReadFile(res.ArchivePath)
	if err != nil {
		h.logger.Error("read archive", "path", res.ArchivePath, "err", err)
		return h.tg.SendText(chatID, "❌ Could not read the archive. Please try again.")
	}

	if err := h.tg.SendDocument(chatID, filepath.Base(res.ArchivePath), data, resultCaption(res)); err != nil {
		h.logger.Error("send archive", "chat_id", chatID, "bytes", len(data), "err", err)
		return h.tg.SendText(chatID, resultCaption(res)+"\n\n❌ The archive could not be sent. Try a smaller /count.")
	}
	return nil
}

func (h *Handler) replyRunError(chatID int64, err error) error {
	var ve *creative.ValidationError
	switch {
	case errors.As(err, &ve):
		return h.tg.SendText(chatID, fmt.Sprintf("❌ Invalid %s: %s", ve.Field, ve.Reason))
	case errors.Is(err, context.DeadlineExceeded):
		h.logger.Warn("run timed out", "chat_id", chatID, "err", err)
		return h.tg.SendText(chatID, "❌ The run took too long. Try a smaller /count.")
	default:
		h.logger.Error("run failed", "chat_id", chatID, "err", err)
		return h.tg.SendText(chatID, "❌ Something went wrong. Please try again.")
	}
}

func resultCaption(res engine.Result) string {
	caption := "✅ " + res.Summary()
	if res.Delivered == 0 {
		caption = "⚠️ " + res.Summary() + "\nNo image could be generated. Please try again later."
	}
	if len(res.BrandColors) > 0 {
		caption += "\nBrand colors: " + strings.Join(res.BrandColors, " ")
	}
	return caption
}

func helpText() string {
	return "🎨 Help\n\n" +
		"Photo + caption: generate creatives for the product in the photo.\n" +
		"Photo captioned \"logo\": save your logo for brand colors.\n" +
		"Album of two photos: logo first, product second, description as caption.\n\n" +
		"/creatives <description> - generate without a product photo\n" +
		"/brand <name> - brand name\n" +
		"/theme <name> - " + strings.Join(creative.Themes(), ", ") + "\n" +
		"/tone <tone> - caption tone\n" +
		"/ratio <ratio> - " + strings.Join(creative.AspectRatios, ", ") + "\n" +
		fmt.Sprintf("/count <%d-%d> - creatives per run\n", creative.MinCount, creative.MaxCount) +
		"/reset - clear the brand profile"
}
