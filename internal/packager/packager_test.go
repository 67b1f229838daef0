package packager

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auto-creative-engine/internal/creative"
)

func buildSet(t *testing.T, p *Packager, indices ...int) creative.CreativeSet {
	t.Helper()
	set := creative.CreativeSet{Requested: 5, Mapping: map[string]string{}}
	for _, idx := range indices {
		name := creative.ImageName(idx)
		path, err := p.SaveImage(context.Background(), name, []byte("jpeg-"+name))
		require.NoError(t, err)

		key := creative.ImageKey(name)
		text := "caption for " + key
		set.Images = append(set.Images, creative.Creative{Index: idx, Name: name, Path: path})
		set.Captions = append(set.Captions, creative.CaptionItem{Key: key, Text: text})
		set.Mapping[key] = text
	}
	return set
}

func zipEntries(t *testing.T, data []byte) (map[string]string, string) {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	out := make(map[string]string)
	var order []string
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		body, err := io.ReadAll(rc)
		require.NoError(t, err)
		rc.Close()
		out[f.Name] = string(body)
		order = append(order, f.Name)
	}
	return out, strings.Join(order, ",")
}

func TestArchiveLayout(t *testing.T) {
	p := New(Options{Dir: t.TempDir()})
	require.NoError(t, p.Prepare())

	set := buildSet(t, p, 0, 1, 3, 4)
	require.NoError(t, p.WriteCaptions(set))

	var buf bytes.Buffer
	require.NoError(t, p.Archive(&buf))
	entries, order := zipEntries(t, buf.Bytes())

	assert.Equal(t,
		"images/creative_001.jpg,images/creative_002.jpg,images/creative_004.jpg,images/creative_005.jpg,"+
			"captions/creative_001.txt,captions/creative_002.txt,captions/creative_004.txt,captions/creative_005.txt,"+
			"mapping.json",
		order)
	assert.Equal(t, "jpeg-creative_004.jpg", entries["images/creative_004.jpg"])
	assert.Equal(t, "caption for creative_004", entries["captions/creative_004.txt"])

	var doc struct {
		Mapping map[string]string `json:"mapping"`
		Count   int               `json:"count"`
	}
	require.NoError(t, json.Unmarshal([]byte(entries["mapping.json"]), &doc))
	assert.Equal(t, 4, doc.Count)
	assert.Equal(t, set.Mapping, doc.Mapping)
}

func TestArchiveEmptyRun(t *testing.T) {
	p := New(Options{Dir: t.TempDir()})
	require.NoError(t, p.Prepare())
	require.NoError(t, p.WriteCaptions(creative.CreativeSet{Requested: 3}))

	var buf bytes.Buffer
	require.NoError(t, p.Archive(&buf))
	entries, order := zipEntries(t, buf.Bytes())

	assert.Equal(t, "mapping.json", order)
	assert.JSONEq(t, `{"mapping":{},"count":0}`, entries["mapping.json"])
}

func TestPrepareRemovesStaleOutputs(t *testing.T) {
	dir := t.TempDir()
	p := New(Options{Dir: dir})
	require.NoError(t, p.Prepare())

	old := buildSet(t, p, 0, 1, 2)
	require.NoError(t, p.WriteCaptions(old))
	keep := filepath.Join(dir, ImagesDir, "notes.md")
	require.NoError(t, os.WriteFile(keep, []byte("x"), 0o644))

	require.NoError(t, p.Prepare())

	images, _ := filepath.Glob(filepath.Join(dir, ImagesDir, "*.jpg"))
	captions, _ := filepath.Glob(filepath.Join(dir, CaptionsDir, "*.txt"))
	assert.Empty(t, images)
	assert.Empty(t, captions)
	assert.NoFileExists(t, filepath.Join(dir, MappingFile))
	assert.FileExists(t, keep)
}

func TestWriteArchiveNamesAndReplaces(t *testing.T) {
	dir := t.TempDir()
	p := New(Options{Dir: dir})
	require.NoError(t, p.Prepare())
	require.NoError(t, p.WriteCaptions(buildSet(t, p, 0)))

	path, err := p.WriteArchive("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, creative.DefaultZipName), path)

	named, err := p.WriteArchive("Brewly_creatives_20240101_000000.zip")
	require.NoError(t, err)
	assert.FileExists(t, named)

	leftovers, _ := filepath.Glob(filepath.Join(dir, ".archive-*"))
	assert.Empty(t, leftovers)
}

func TestWritePrompts(t *testing.T) {
	dir := t.TempDir()
	p := New(Options{Dir: dir})
	prompts := []creative.PromptItem{
		{Index: 0, Text: "a", Style: "photorealistic"},
		{Index: 1, Text: "b", Style: "illustration"},
	}
	require.NoError(t, p.WritePrompts(prompts, creative.BrandConfig{Name: "Brewly", Theme: "modern"}))

	data, err := os.ReadFile(filepath.Join(dir, PromptsFile))
	require.NoError(t, err)

	var doc promptsDoc
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, 2, doc.Count)
	assert.Equal(t, "Brewly", doc.Brand.Name)
	assert.NotNil(t, doc.Brand.Colors)
	assert.Equal(t, "illustration", doc.Prompts[1].Style)
}

func TestSaveImageRejectsPathsAndReportsPackagingError(t *testing.T) {
	p := New(Options{Dir: t.TempDir()})
	require.NoError(t, p.Prepare())

	_, err := p.SaveImage(context.Background(), "../escape.jpg", []byte("x"))
	var pe *creative.PackagingError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "save", pe.Op)

	missing := New(Options{Dir: filepath.Join(t.TempDir(), "not-prepared")})
	_, err = missing.SaveImage(context.Background(), "creative_001.jpg", []byte("x"))
	require.True(t, errors.As(err, &pe))
}
