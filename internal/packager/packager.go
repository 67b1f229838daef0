// Package packager lays generated creatives out on disk and bundles them
// into a ZIP archive.
package packager

import (
	"archive/zip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"auto-creative-engine/internal/creative"
	"auto-creative-engine/internal/logging"
)

const (
	ImagesDir    = "images"
	CaptionsDir  = "captions"
	MappingFile  = "mapping.json"
	PromptsFile  = "prompts.json"
	MaxZipSizeMB = 500
)

type Options struct {
	Dir    string
	Logger *slog.Logger
	// WarnBytes overrides the archive size that triggers a warning.
	WarnBytes int64
}

// Packager owns one output directory. It implements creative.ImageStore.
type Packager struct {
	dir       string
	warnBytes int64
	logger    *slog.Logger
}

var _ creative.ImageStore = (*Packager)(nil)

type mappingDoc struct {
	Mapping map[string]string `json:"mapping"`
	Count   int               `json:"count"`
}

type promptDoc struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
	Style string `json:"style"`
}

type promptsDoc struct {
	Prompts []promptDoc `json:"prompts"`
	Count   int         `json:"count"`
	Brand   brandDoc    `json:"brand"`
}

type brandDoc struct {
	Name   string   `json:"name"`
	Colors []string `json:"colors"`
	Theme  string   `json:"theme"`
	Tone   string   `json:"tone"`
}

func New(opts Options) *Packager {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	warn := opts.WarnBytes
	if warn <= 0 {
		warn = MaxZipSizeMB << 20
	}

	return &Packager{
		dir:       opts.Dir,
		warnBytes: warn,
		logger:    logger,
	}
}

func (p *Packager) Dir() string { return p.dir }

// Prepare creates the layout and removes images, captions and manifests
// left over from a previous run in the same directory.
func (p *Packager) Prepare() error {
	for _, sub := range []string{ImagesDir, CaptionsDir} {
		if err := os.MkdirAll(filepath.Join(p.dir, sub), 0o755); err != nil {
			return &creative.PackagingError{Op: "prepare", Path: sub, Err: err}
		}
	}

	stale, err := p.list(ImagesDir, creative.ImageExt)
	if err != nil {
		return err
	}
	captions, err := p.list(CaptionsDir, creative.CaptionExt)
	if err != nil {
		return err
	}
	stale = append(stale, captions...)
	stale = append(stale, filepath.Join(p.dir, MappingFile), filepath.Join(p.dir, PromptsFile))

	removed := 0
	for _, path := range stale {
		err := os.Remove(path)
		switch {
		case err == nil:
			removed++
		case errors.Is(err, os.ErrNotExist):
		default:
			return &creative.PackagingError{Op: "clean", Path: path, Err: err}
		}
	}
	if removed > 0 {
		p.logger.Info("removed stale outputs", "dir", p.dir, "files", removed)
	}
	return nil
}

// SaveImage writes data to images/<name> through a temp file so a reader
// never sees a partial image.
func (p *Packager) SaveImage(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &creative.PackagingError{Op: "save", Path: name, Err: err}
	}
	if name != filepath.Base(name) {
		return "", &creative.PackagingError{Op: "save", Path: name, Err: errors.New("name must not contain a directory")}
	}

	path := filepath.Join(p.dir, ImagesDir, name)
	if err := writeAtomic(path, data); err != nil {
		return "", &creative.PackagingError{Op: "save", Path: path, Err: err}
	}
	return path, nil
}

// WriteCaptions writes one text file per caption and mapping.json, keyed by
// image base name.
func (p *Packager) WriteCaptions(set creative.CreativeSet) error {
	mapping := make(map[string]string, len(set.Captions))
	for _, c := range set.Captions {
		path := filepath.Join(p.dir, CaptionsDir, creative.CaptionName(c.Key))
		if err := writeAtomic(path, []byte(c.Text)); err != nil {
			return &creative.PackagingError{Op: "caption", Path: path, Err: err}
		}
		mapping[c.Key] = c.Text
	}
	return p.writeJSON(MappingFile, mappingDoc{Mapping: mapping, Count: len(mapping)})
}

// WritePrompts records every prompt of the run, including ones whose image
// failed.
func (p *Packager) WritePrompts(prompts []creative.PromptItem, brand creative.BrandConfig) error {
	doc := promptsDoc{
		Prompts: make([]promptDoc, 0, len(prompts)),
		Count:   len(prompts),
		Brand: brandDoc{
			Name:   brand.Name,
			Colors: slices.Clone(brand.Colors),
			Theme:  brand.Theme,
			Tone:   brand.Tone,
		},
	}
	if doc.Brand.Colors == nil {
		doc.Brand.Colors = []string{}
	}
	for _, pr := range prompts {
		doc.Prompts = append(doc.Prompts, promptDoc{Index: pr.Index, Text: pr.Text, Style: pr.Style})
	}
	return p.writeJSON(PromptsFile, doc)
}

func (p *Packager) writeJSON(name string, v any) error {
	path := filepath.Join(p.dir, name)
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return &creative.PackagingError{Op: "encode", Path: path, Err: err}
	}
	if err := writeAtomic(path, data); err != nil {
		return &creative.PackagingError{Op: "write", Path: path, Err: err}
	}
	return nil
}

// Archive streams images/, captions/ and mapping.json into w, each group
// sorted by name.
func (p *Packager) Archive(w io.Writer) error {
	images, err := p.list(ImagesDir, creative.ImageExt)
	if err != nil {
		return err
	}
	captions, err := p.list(CaptionsDir, creative.CaptionExt)
	if err != nil {
		return err
	}

	zw := zip.NewWriter(w)
	add := func(path, entry string) error {
		if err := addFile(zw, path, entry); err != nil {
			return &creative.PackagingError{Op: "archive", Path: entry, Err: err}
		}
		return nil
	}

	for _, path := range images {
		if err := add(path, ImagesDir+"/"+filepath.Base(path)); err != nil {
			return err
		}
	}
	for _, path := range captions {
		if err := add(path, CaptionsDir+"/"+filepath.Base(path)); err != nil {
			return err
		}
	}

	mapping := filepath.Join(p.dir, MappingFile)
	if _, err := os.Stat(mapping); err == nil {
		if err := add(mapping, MappingFile); err != nil {
			return err
		}
	}

	if err := zw.Close(); err != nil {
		return &creative.PackagingError{Op: "archive", Err: err}
	}
	return nil
}

// WriteArchive writes the archive to <dir>/<name> and returns its path. An
// empty name means creative.DefaultZipName.
func (p *Packager) WriteArchive(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		name = creative.DefaultZipName
	}
	path := filepath.Join(p.dir, name)

	tmp, err := os.CreateTemp(p.dir, ".archive-*")
	if err != nil {
		return "", &creative.PackagingError{Op: "archive", Path: path, Err: err}
	}
	defer os.Remove(tmp.Name())

	if err := p.Archive(tmp); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", &creative.PackagingError{Op: "archive", Path: path, Err: err}
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", &creative.PackagingError{Op: "archive", Path: path, Err: err}
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", &creative.PackagingError{Op: "archive", Path: path, Err: err}
	}
	sizeMB := float64(info.Size()) / (1 << 20)
	p.logger.Info("archive created", "path", path, "size_mb", fmt.Sprintf("%.2f", sizeMB))
	if info.Size() > p.warnBytes {
		p.logger.Warn("archive exceeds recommended size", "path", path, "size_mb", fmt.Sprintf("%.2f", sizeMB), "limit_mb", p.warnBytes>>20)
	}
	return path, nil
}

func (p *Packager) list(sub, ext string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(p.dir, sub, "*"+ext))
	if err != nil {
		return nil, &creative.PackagingError{Op: "list", Path: sub, Err: err}
	}
	slices.Sort(matches)
	return matches, nil
}

func addFile(zw *zip.Writer, path, entry string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = entry
	hdr.Method = zip.Deflate

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, f)
	return err
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
