package bundle

import (
	"fmt"

	"git.home.luguber.info/inful/sitebuilder/internal/frontmatter"
	"git.home.luguber.info/inful/sitebuilder/internal/markdown"
	"git.home.luguber.info/inful/sitebuilder/internal/page"
	"git.home.luguber.info/inful/sitebuilder/internal/plugin"
)

// markdownPages loads .md files: YAML front matter becomes page data and the body is
// rendered to HTML. A missing title falls back to the first level-one heading.
type markdownPages struct {
	renderer *markdown.Renderer
}

func (m *markdownPages) Metadata() plugin.Metadata {
	return partMetadata("markdown", "Markdown pages with YAML front matter")
}

func (m *markdownPages) Install(host plugin.Host) error {
	host.LoadPages([]string{".md", ".markdown"}, m.load)
	return nil
}

func (m *markdownPages) load(src page.SourceInfo, raw []byte) (*page.Page, error) {
	data, body, err := frontmatter.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("front matter: %w", err)
	}
	content, err := m.renderer.Render(body)
	if err != nil {
		return nil, fmt.Errorf("render markdown: %w", err)
	}
	if _, ok := data["title"]; !ok {
		if title := m.renderer.Title(body); title != "" {
			data["title"] = title
		}
	}
	p := page.New(src)
	p.Data = data
	p.Content = content
	return p, nil
}

// htmlPages loads .html files as pages, with optional front matter.
type htmlPages struct{}

func (h *htmlPages) Metadata() plugin.Metadata {
	return partMetadata("html", "HTML pages with optional front matter")
}

func (h *htmlPages) Install(host plugin.Host) error {
	host.LoadPages([]string{".html", ".htm"}, h.load)
	return nil
}

func (h *htmlPages) load(src page.SourceInfo, raw []byte) (*page.Page, error) {
	data, body, err := frontmatter.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("front matter: %w", err)
	}
	p := page.New(src)
	p.Data = data
	p.Content = body
	return p, nil
}
