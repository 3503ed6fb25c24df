// Package page holds the in-memory representation of every file the engine publishes.
package page

import (
	"bytes"
	"maps"
	"path"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// SourceInfo describes where a page came from.
type SourceInfo struct {
	// Path is slash separated and rooted at the source directory ("/blog/post.md").
	Path    string
	Ext     string
	Abs     string
	ModTime time.Time
}

// Page is a unit of output. Assets are binary pages (images) that still flow through
// processors; Content then holds the raw bytes.
type Page struct {
	Src        SourceInfo
	Data       map[string]any
	Content    []byte
	URL        string
	OutputPath string
	Asset      bool

	doc *html.Node
}

// New creates a page with an empty data map.
func New(src SourceInfo) *Page {
	return &Page{Src: src, Data: map[string]any{}}
}

// OutputExt is the extension of the output path, falling back to the source extension.
func (p *Page) OutputExt() string {
	if p.OutputPath != "" {
		return strings.ToLower(path.Ext(p.OutputPath))
	}
	return strings.ToLower(p.Src.Ext)
}

// Document parses Content as HTML once and returns the cached tree. Changes to the tree
// are written back by Flush.
func (p *Page) Document() (*html.Node, error) {
	if p.doc != nil {
		return p.doc, nil
	}
	doc, err := html.Parse(bytes.NewReader(p.Content))
	if err != nil {
		return nil, err
	}
	p.doc = doc
	return doc, nil
}

// HasDocument reports whether a parsed tree is pending a Flush.
func (p *Page) HasDocument() bool { return p.doc != nil }

// Flush serialises a parsed document back into Content.
func (p *Page) Flush() error {
	if p.doc == nil {
		return nil
	}
	var buf bytes.Buffer
	if err := html.Render(&buf, p.doc); err != nil {
		return err
	}
	p.Content = buf.Bytes()
	p.doc = nil
	return nil
}

// SetContent replaces Content and drops any parsed document.
func (p *Page) SetContent(b []byte) {
	p.Content = b
	p.doc = nil
}

// Duplicate copies the page for a new output path. Data is copied one level deep.
func (p *Page) Duplicate(outputPath string) *Page {
	dup := &Page{
		Src:        p.Src,
		Data:       maps.Clone(p.Data),
		Content:    bytes.Clone(p.Content),
		OutputPath: outputPath,
		URL:        outputPath,
		Asset:      p.Asset,
	}
	if dup.Data == nil {
		dup.Data = map[string]any{}
	}
	return dup
}

// String returns the best identifier for logs.
func (p *Page) String() string {
	if p.Src.Path != "" {
		return p.Src.Path
	}
	return p.OutputPath
}
