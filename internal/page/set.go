package page

import (
	"slices"
	"strings"
)

// Set is the ordered collection of pages of one build.
type Set struct {
	pages []*Page
}

// NewSet creates a set from pages, keeping their order.
func NewSet(pages ...*Page) *Set {
	return &Set{pages: slices.Clone(pages)}
}

// Add appends pages.
func (s *Set) Add(pages ...*Page) { s.pages = append(s.pages, pages...) }

// All returns a snapshot of the pages in insertion order.
func (s *Set) All() []*Page { return slices.Clone(s.pages) }

// Len returns the number of pages.
func (s *Set) Len() int { return len(s.pages) }

// Remove drops p from the set. It reports whether p was present.
func (s *Set) Remove(p *Page) bool {
	i := slices.Index(s.pages, p)
	if i < 0 {
		return false
	}
	s.pages = slices.Delete(s.pages, i, i+1)
	return true
}

// FindByURL returns the first page with the URL.
func (s *Set) FindByURL(url string) *Page {
	for _, p := range s.pages {
		if p.URL == url {
			return p
		}
	}
	return nil
}

// FindByOutput returns the first page writing to outputPath.
func (s *Set) FindByOutput(outputPath string) *Page {
	for _, p := range s.pages {
		if p.OutputPath == outputPath {
			return p
		}
	}
	return nil
}

// FindBySrc returns the page loaded from the slash source path.
func (s *Set) FindBySrc(srcPath string) *Page {
	for _, p := range s.pages {
		if p.Src.Path == srcPath {
			return p
		}
	}
	return nil
}

// Filter returns pages whose output extension is one of exts. No extensions means all.
func (s *Set) Filter(exts ...string) []*Page {
	if len(exts) == 0 {
		return s.All()
	}
	var out []*Page
	for _, p := range s.pages {
		ext := p.OutputExt()
		for _, e := range exts {
			if strings.EqualFold(ext, e) {
				out = append(out, p)
				break
			}
		}
	}
	return out
}
