// Package webapi exposes the engine over HTTP: a multipart upload that runs
// one generation and a short-lived archive download.
package webapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"auto-creative-engine/internal/creative"
	"auto-creative-engine/internal/engine"
	"auto-creative-engine/internal/logging"
)

const maxUploadBytes = 25 << 20

// Runner is the part of *engine.Engine the server needs.
type Runner interface {
	Run(ctx context.Context, in engine.Input) (engine.Result, error)
}

type Options struct {
	Engine         Runner
	WorkDir        string
	ArchiveTTL     time.Duration
	RequestTimeout time.Duration
	MaxRuns        int
	Logger         *slog.Logger
}

type Server struct {
	engine   Runner
	archives *cache.Cache
	workDir  string
	timeout  time.Duration
	runs     chan struct{}
	logger   *slog.Logger
}

type archiveEntry struct {
	Name string
	Data []byte
}

type apiError struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

type captionResponse struct {
	Image   string `json:"image"`
	Caption string `json:"caption"`
}

type promptResponse struct {
	Index int    `json:"index"`
	Style string `json:"style"`
	Text  string `json:"text"`
}

type createResponse struct {
	ID          string            `json:"id"`
	Requested   int               `json:"requested"`
	Delivered   int               `json:"delivered"`
	Summary     string            `json:"summary"`
	BrandColors []string          `json:"brand_colors,omitempty"`
	Captions    []captionResponse `json:"captions"`
	Prompts     []promptResponse  `json:"prompts"`
	DownloadURL string            `json:"download_url"`
	Warning     string            `json:"warning,omitempty"`
}

func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	ttl := opts.ArchiveTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Minute
	}
	maxRuns := opts.MaxRuns
	if maxRuns < 1 {
		maxRuns = 2
	}

	return &Server{
		engine:   opts.Engine,
		archives: cache.New(ttl, ttl/2),
		workDir:  opts.WorkDir,
		timeout:  timeout,
		runs:     make(chan struct{}, maxRuns),
		logger:   logger,
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		s.withLogging,
	)

	r.Get("/healthz", s.handleHealth)
	r.Post("/api/creatives", s.handleCreate)
	r.Get("/api/creatives/{id}/archive", s.handleArchive)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid multipart form"})
		return
	}

	in := engine.Input{
		ProductDescription: strings.TrimSpace(r.FormValue("product_description")),
		BrandName:          strings.TrimSpace(r.FormValue("brand_name")),
		Theme:              strings.TrimSpace(r.FormValue("theme")),
		Tone:               strings.TrimSpace(r.FormValue("tone")),
		AspectRatio:        strings.TrimSpace(r.FormValue("aspect_ratio")),
		Count:              creative.DefaultCount,
		NamedArchive:       true,
	}
	if raw := strings.TrimSpace(r.FormValue("count")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, apiError{Error: "count must be an integer", Field: "count"})
			return
		}
		in.Count = n
	}

	logo, err := readUpload(r, "logo")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: err.Error(), Field: "logo"})
		return
	}
	in.Logo = logo.Data

	product, err := readUpload(r, "product_image")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: err.Error(), Field: "product_image"})
		return
	}
	if len(product.Data) > 0 {
		in.ProductImage = &product
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	select {
	case s.runs <- struct{}{}:
		defer func() { <-s.runs }()
	case <-ctx.Done():
		writeJSON(w, http.StatusServiceUnavailable, apiError{Error: "server busy"})
		return
	}

	dir, err := os.MkdirTemp(s.workDir, "run-*")
	if err != nil {
		s.logger.Error("create run dir failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, apiError{Error: "internal error"})
		return
	}
	defer os.RemoveAll(dir)
	in.OutputDir = dir

	res, err := s.engine.Run(ctx, in)
	if err != nil {
		s.writeRunError(w, err)
		return
	}

	data, err := os.ReadFile(res.ArchivePath)
	if err != nil {
		s.logger.Error("read archive failed", "path", res.ArchivePath, "err", err)
		writeJSON(w, http.StatusInternalServerError, apiError{Error: "internal error"})
		return
	}

	id := uuid.NewString()
	s.archives.SetDefault(id, archiveEntry{Name: filepath.Base(res.ArchivePath), Data: data})

	writeJSON(w, http.StatusOK, buildResponse(id, res))
}

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		writeJSON(w, http.StatusNotFound, apiError{Error: "archive not found"})
		return
	}

	v, ok := s.archives.Get(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, apiError{Error: "archive not found or expired"})
		return
	}
	entry := v.(archiveEntry)

	w.Header().Set("content-type", "application/zip")
	w.Header().Set("content-disposition", `attachment; filename="`+entry.Name+`"`)
	w.Header().Set("content-length", strconv.Itoa(len(entry.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(entry.Data)
}

func (s *Server) writeRunError(w http.ResponseWriter, err error) {
	var ve *creative.ValidationError
	var pe *creative.PackagingError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, apiError{Error: ve.Reason, Field: ve.Field})
	case errors.As(err, &pe):
		s.logger.Error("packaging failed", "op", pe.Op, "path", pe.Path, "err", pe.Err)
		writeJSON(w, http.StatusInternalServerError, apiError{Error: "failed to package creatives"})
	case errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, http.StatusGatewayTimeout, apiError{Error: "generation timed out"})
	default:
		s.logger.Error("run failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, apiError{Error: "internal error"})
	}
}

func buildResponse(id string, res engine.Result) createResponse {
	out := createResponse{
		ID:          id,
		Requested:   res.Requested,
		Delivered:   res.Delivered,
		Summary:     res.Summary(),
		BrandColors: res.BrandColors,
		Captions:    make([]captionResponse, 0, len(res.Set.Captions)),
		Prompts:     make([]promptResponse, 0, len(res.Set.Prompts)),
		DownloadURL: "/api/creatives/" + id + "/archive",
	}
	for i, c := range res.Set.Captions {
		out.Captions = append(out.Captions, captionResponse{Image: res.Set.Images[i].Name, Caption: c.Text})
	}
	for _, p := range res.Set.Prompts {
		out.Prompts = append(out.Prompts, promptResponse{Index: p.Index, Style: p.Style, Text: p.Text})
	}

	switch {
	case res.Delivered == 0:
		out.Warning = "no creatives could be generated"
	case res.Delivered < res.Requested:
		out.Warning = "some creatives could not be generated"
	}
	return out
}

// readUpload returns an empty reference when the field is absent.
func readUpload(r *http.Request, field string) (creative.Reference, error) {
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return creative.Reference{}, nil
	}
	if err != nil {
		return creative.Reference{}, errors.New("failed to read upload")
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return creative.Reference{}, errors.New("failed to read upload")
	}

	mimeType := strings.TrimSpace(header.Header.Get("Content-Type"))
	if before, _, ok := strings.Cut(mimeType, ";"); ok {
		mimeType = strings.TrimSpace(before)
	}
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(data)
		if before, _, ok := strings.Cut(mimeType, ";"); ok {
			mimeType = strings.TrimSpace(before)
		}
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return creative.Reference{}, errors.New("upload is not an image")
	}

	return creative.Reference{Data: data, MimeType: mimeType}, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"dur_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
