package webapi

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auto-creative-engine/internal/creative"
	"auto-creative-engine/internal/engine"
)

type stubRunner struct {
	got engine.Input
	err error
}

func (s *stubRunner) Run(ctx context.Context, in engine.Input) (engine.Result, error) {
	s.got = in
	if s.err != nil {
		return engine.Result{}, s.err
	}

	path := filepath.Join(in.OutputDir, "Brand_creatives_20250101_000000.zip")
	if err := os.WriteFile(path, []byte("PK-archive"), 0o644); err != nil {
		return engine.Result{}, err
	}

	set := creative.CreativeSet{
		Requested: in.Count,
		Images:    []creative.Creative{{Index: 0, Name: "creative_001.jpg"}},
		Captions:  []creative.CaptionItem{{Key: "creative_001", Text: "Buy now!"}},
		Mapping:   map[string]string{"creative_001": "Buy now!"},
	}
	for i := 0; i < in.Count; i++ {
		set.Prompts = append(set.Prompts, creative.PromptItem{Index: i, Text: "scene", Style: creative.Styles[i%len(creative.Styles)]})
	}
	return engine.Result{Set: set, ArchivePath: path, Requested: in.Count, Delivered: 1, Dir: in.OutputDir}, nil
}

func multipartBody(t *testing.T, fields map[string]string, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for k, data := range files {
		fw, err := mw.CreateFormFile(k, k+".png")
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func tinyPNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))))
	return buf.Bytes()
}

func newTestServer(t *testing.T, runner Runner) http.Handler {
	t.Helper()
	return New(Options{Engine: runner, WorkDir: t.TempDir()}).Handler()
}

func TestCreateThenDownload(t *testing.T) {
	runner := &stubRunner{}
	h := newTestServer(t, runner)

	body, ct := multipartBody(t, map[string]string{
		"product_description": "cold brew",
		"brand_name":          "Brewly",
		"count":               "3",
		"aspect_ratio":        "16:9",
	}, map[string][]byte{"logo": tinyPNG(t), "product_image": tinyPNG(t)})

	req := httptest.NewRequest(http.MethodPost, "/api/creatives", body)
	req.Header.Set("content-type", ct)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp createResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Requested)
	assert.Equal(t, 1, resp.Delivered)
	assert.Equal(t, "1/3 creatives generated", resp.Summary)
	assert.Equal(t, "some creatives could not be generated", resp.Warning)
	assert.Len(t, resp.Prompts, 3)
	require.Len(t, resp.Captions, 1)
	assert.Equal(t, "creative_001.jpg", resp.Captions[0].Image)

	assert.Equal(t, "Brewly", runner.got.BrandName)
	assert.Equal(t, "16:9", runner.got.AspectRatio)
	assert.NotEmpty(t, runner.got.Logo)
	require.NotNil(t, runner.got.ProductImage)
	assert.Equal(t, "image/png", runner.got.ProductImage.MimeType)
	assert.True(t, runner.got.NamedArchive)
	assert.NoDirExists(t, runner.got.OutputDir)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, resp.DownloadURL, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/zip", rec.Header().Get("content-type"))
	assert.Contains(t, rec.Header().Get("content-disposition"), "Brand_creatives_20250101_000000.zip")
	assert.Equal(t, "PK-archive", rec.Body.String())
}

func TestCreateDefaultsCount(t *testing.T) {
	runner := &stubRunner{}
	h := newTestServer(t, runner)

	body, ct := multipartBody(t, map[string]string{"product_description": "tea"}, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/creatives", body)
	req.Header.Set("content-type", ct)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, creative.DefaultCount, runner.got.Count)
	assert.Nil(t, runner.got.ProductImage)
}

func TestCreateMapsErrors(t *testing.T) {
	cases := map[string]struct {
		err    error
		fields map[string]string
		status int
	}{
		"validation": {
			err:    &creative.ValidationError{Field: "count", Reason: "must be between 1 and 50, got 99"},
			fields: map[string]string{"product_description": "tea", "count": "99"},
			status: http.StatusBadRequest,
		},
		"packaging": {
			err:    &creative.PackagingError{Op: "archive", Err: os.ErrPermission},
			fields: map[string]string{"product_description": "tea"},
			status: http.StatusInternalServerError,
		},
		"bad count": {
			fields: map[string]string{"product_description": "tea", "count": "ten"},
			status: http.StatusBadRequest,
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			h := newTestServer(t, &stubRunner{err: tc.err})
			body, ct := multipartBody(t, tc.fields, nil)
			req := httptest.NewRequest(http.MethodPost, "/api/creatives", body)
			req.Header.Set("content-type", ct)
			rec := httptest.NewRecorder()

			h.ServeHTTP(rec, req)

			assert.Equal(t, tc.status, rec.Code)
			var apiErr apiError
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
			assert.NotEmpty(t, apiErr.Error)
		})
	}
}

func TestCreateRejectsNonImageUpload(t *testing.T) {
	h := newTestServer(t, &stubRunner{})
	body, ct := multipartBody(t, map[string]string{"product_description": "tea"}, map[string][]byte{"logo": []byte("hello world")})
	req := httptest.NewRequest(http.MethodPost, "/api/creatives", body)
	req.Header.Set("content-type", ct)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "logo")
}

func TestArchiveNotFound(t *testing.T) {
	h := newTestServer(t, &stubRunner{})

	for _, path := range []string{"/api/creatives/not-a-uuid/archive", "/api/creatives/6f1c1f1e-8a0e-4a0e-9d52-1f1c1f1e8a0e/archive"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
}

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestServer(t, &stubRunner{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
