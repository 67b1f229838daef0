package handlers

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auto-creative-engine/internal/creative"
	"auto-creative-engine/internal/engine"
	"auto-creative-engine/internal/mediagroup"
	"auto-creative-engine/internal/session"
)

type sentDocument struct {
	Name    string
	Data    []byte
	Caption string
}

type stubMessenger struct {
	mu    sync.Mutex
	texts []string
	docs  []sentDocument
	files map[string][]byte
}

func (s *stubMessenger) SendTyping(int64)    {}
func (s *stubMessenger) SendUploading(int64) {}

func (s *stubMessenger) SendText(chatID int64, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, text)
	return nil
}

func (s *stubMessenger) SendDocument(chatID int64, name string, data []byte, caption string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = append(s.docs, sentDocument{Name: name, Data: data, Caption: caption})
	return nil
}

func (s *stubMessenger) DownloadFile(ctx context.Context, fileID string) ([]byte, string, error) {
	data, ok := s.files[fileID]
	if !ok {
		return nil, "", errors.New("file not found")
	}
	return data, "image/jpeg", nil
}

func (s *stubMessenger) lastText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.texts) == 0 {
		return ""
	}
	return s.texts[len(s.texts)-1]
}

type stubRunner struct {
	inputs []engine.Input
	err    error
}

func (r *stubRunner) Run(ctx context.Context, in engine.Input) (engine.Result, error) {
	r.inputs = append(r.inputs, in)
	if r.err != nil {
		return engine.Result{}, r.err
	}
	path := filepath.Join(in.OutputDir, "Brand_creatives.zip")
	if err := os.WriteFile(path, []byte("zip"), 0o644); err != nil {
		return engine.Result{}, err
	}
	set := creative.CreativeSet{Requested: in.Count, Images: make([]creative.Creative, in.Count)}
	return engine.Result{
		Set:         set,
		BrandColors: []string{"#112233"},
		ArchivePath: path,
		Requested:   in.Count,
		Delivered:   in.Count,
	}, nil
}

func newTestHandler(t *testing.T) (*Handler, *stubMessenger, *stubRunner) {
	t.Helper()
	tg := &stubMessenger{files: map[string][]byte{"logo-id": []byte("logo"), "product-id": []byte("product")}}
	runner := &stubRunner{}
	h := New(Options{
		Telegram: tg,
		Engine:   runner,
		Sessions: session.NewStore(session.Options{}),
		WorkDir:  t.TempDir(),
	})
	return h, tg, runner
}

func command(text string) tgbotapi.Update {
	length := len(text)
	for i, r := range text {
		if r == ' ' {
			length = i
			break
		}
	}
	return tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 1,
		From:      &tgbotapi.User{ID: 42, UserName: "ann"},
		Chat:      &tgbotapi.Chat{ID: 7},
		Text:      text,
		Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: length}},
	}}
}

func photo(fileID, caption string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 2,
		From:      &tgbotapi.User{ID: 42, UserName: "ann"},
		Chat:      &tgbotapi.Chat{ID: 7},
		Caption:   caption,
		Photo:     []tgbotapi.PhotoSize{{FileID: "thumb"}, {FileID: fileID}},
	}}
}

func TestProfileCommandsFeedTheRun(t *testing.T) {
	h, tg, runner := newTestHandler(t)
	ctx := context.Background()

	require.NoError(t, h.HandleUpdate(ctx, command("/brand Brewly")))
	require.NoError(t, h.HandleUpdate(ctx, command("/theme luxury")))
	require.NoError(t, h.HandleUpdate(ctx, command("/count 3")))
	require.NoError(t, h.HandleUpdate(ctx, command("/ratio 9:16")))
	require.NoError(t, h.HandleUpdate(ctx, command("/creatives cold brew in a can")))

	require.Len(t, runner.inputs, 1)
	in := runner.inputs[0]
	assert.Equal(t, "cold brew in a can", in.ProductDescription)
	assert.Equal(t, "Brewly", in.BrandName)
	assert.Equal(t, "luxury", in.Theme)
	assert.Equal(t, "9:16", in.AspectRatio)
	assert.Equal(t, 3, in.Count)
	assert.True(t, in.NamedArchive)
	assert.Nil(t, in.ProductImage)

	require.Len(t, tg.docs, 1)
	assert.Equal(t, "Brand_creatives.zip", tg.docs[0].Name)
	assert.Contains(t, tg.docs[0].Caption, "3/3 creatives generated")
	assert.Contains(t, tg.docs[0].Caption, "#112233")

	_, err := os.Stat(in.OutputDir)
	assert.True(t, os.IsNotExist(err), "run dir should be removed")
}

func TestInvalidCommandArguments(t *testing.T) {
	h, tg, runner := newTestHandler(t)
	ctx := context.Background()

	require.NoError(t, h.HandleUpdate(ctx, command("/count 80")))
	assert.Contains(t, tg.lastText(), "Usage: /count")

	require.NoError(t, h.HandleUpdate(ctx, command("/theme grunge")))
	assert.Contains(t, tg.lastText(), "luxury")

	require.NoError(t, h.HandleUpdate(ctx, command("/creatives")))
	assert.Contains(t, tg.lastText(), "Usage: /creatives")

	assert.Empty(t, runner.inputs)
}

func TestLogoPhotoIsStoredAndReused(t *testing.T) {
	h, tg, runner := newTestHandler(t)
	ctx := context.Background()

	require.NoError(t, h.HandleUpdate(ctx, photo("logo-id", "Logo")))
	assert.Contains(t, tg.lastText(), "Logo saved")
	assert.Empty(t, runner.inputs)

	require.NoError(t, h.HandleUpdate(ctx, photo("product-id", "iced latte")))

	require.Len(t, runner.inputs, 1)
	in := runner.inputs[0]
	assert.Equal(t, []byte("logo"), in.Logo)
	require.NotNil(t, in.ProductImage)
	assert.Equal(t, []byte("product"), in.ProductImage.Data)
	assert.Equal(t, creative.DefaultCount, in.Count)
}

func TestPhotoWithoutCaptionAsksForDescription(t *testing.T) {
	h, tg, runner := newTestHandler(t)

	require.NoError(t, h.HandleUpdate(context.Background(), photo("product-id", "")))

	assert.Contains(t, tg.lastText(), "caption")
	assert.Empty(t, runner.inputs)
}

func TestMediaGroupUsesLogoThenProduct(t *testing.T) {
	h, tg, runner := newTestHandler(t)

	h.HandleMediaGroup(context.Background(), mediagroup.Group{
		ChatID:  7,
		UserID:  42,
		Caption: "cold brew",
		FileIDs: []string{"logo-id", "product-id"},
	})

	require.Len(t, runner.inputs, 1)
	assert.Equal(t, []byte("logo"), runner.inputs[0].Logo)
	assert.Equal(t, []byte("product"), runner.inputs[0].ProductImage.Data)
	assert.Len(t, tg.docs, 1)
}

func TestRunValidationErrorIsReported(t *testing.T) {
	h, tg, runner := newTestHandler(t)
	runner.err = &creative.ValidationError{Field: "product_description", Reason: "is required"}

	require.NoError(t, h.HandleUpdate(context.Background(), command("/creatives x")))

	assert.Equal(t, "❌ Invalid product_description: is required", tg.lastText())
	assert.Empty(t, tg.docs)
}

func TestBusyWhenRunsAreExhausted(t *testing.T) {
	h, tg, runner := newTestHandler(t)
	for i := 0; i < cap(h.runs); i++ {
		h.runs <- struct{}{}
	}

	require.NoError(t, h.HandleUpdate(context.Background(), command("/creatives cold brew")))

	assert.Contains(t, tg.lastText(), "Too many runs")
	assert.Empty(t, runner.inputs)
}

func TestResetClearsProfile(t *testing.T) {
	h, _, runner := newTestHandler(t)
	ctx := context.Background()

	require.NoError(t, h.HandleUpdate(ctx, command("/brand Brewly")))
	require.NoError(t, h.HandleUpdate(ctx, command("/reset")))
	require.NoError(t, h.HandleUpdate(ctx, command("/creatives tea")))

	require.Len(t, runner.inputs, 1)
	assert.Empty(t, runner.inputs[0].BrandName)
}
