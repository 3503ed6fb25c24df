package bundle

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/frontmatter"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
	"git.home.luguber.info/inful/sitebuilder/internal/page"
	"git.home.luguber.info/inful/sitebuilder/internal/plugin"
)

// maxLayoutDepth bounds layout chains so a cycle fails instead of looping.
const maxLayoutDepth = 10

// layouts wraps pages that set `layout` in a Go html/template from the includes
// directory. A layout file may itself declare a `layout` in front matter.
type layouts struct {
	includes string
	dir      string
	host     plugin.Host

	mu    sync.Mutex
	cache map[string]*layoutFile
}

type layoutFile struct {
	tpl  *template.Template
	data map[string]any
}

// layoutData is the value templates execute against.
type layoutData struct {
	Content template.HTML
	Title   string
	URL     string
	Data    map[string]any
	Site    map[string]any
	Page    *page.Page
}

func (l *layouts) Metadata() plugin.Metadata {
	return partMetadata("layout", "html/template layouts from the includes directory")
}

func (l *layouts) Install(host plugin.Host) error {
	l.host = host
	l.dir = filepath.Join(host.Src(), filepath.FromSlash(l.includes))
	host.Process([]string{".html"}, l.render)
	return nil
}

func (l *layouts) render(ctx context.Context, pages []*page.Page, _ *page.Set) error {
	// Layout files may change between builds in serve mode.
	l.mu.Lock()
	l.cache = map[string]*layoutFile{}
	l.mu.Unlock()

	site := l.host.SiteData()
	for _, p := range pages {
		if err := ctx.Err(); err != nil {
			return err
		}
		name, _ := p.Data["layout"].(string)
		if p.Asset || name == "" {
			continue
		}
		if err := l.apply(p, name, site); err != nil {
			return err
		}
	}
	return nil
}

func (l *layouts) apply(p *page.Page, name string, site map[string]any) error {
	content := p.Content
	for depth := 0; name != ""; depth++ {
		if depth == maxLayoutDepth {
			return errors.BuildError("layout chain too deep").
				WithContext(logfields.KeyPage, p.String()).
				WithContext("layout", name).
				Build()
		}
		lf, err := l.load(name)
		if err != nil {
			return errors.WrapError(err, errors.CategoryBuild, "load layout").
				WithContext(logfields.KeyPage, p.String()).
				WithContext("layout", name).
				Build()
		}
		title, _ := p.Data["title"].(string)
		var buf bytes.Buffer
		err = lf.tpl.Execute(&buf, layoutData{
			Content: template.HTML(content), //nolint:gosec // page content is trusted site source
			Title:   title,
			URL:     p.URL,
			Data:    p.Data,
			Site:    site,
			Page:    p,
		})
		if err != nil {
			return errors.WrapError(err, errors.CategoryBuild, "render layout").
				WithContext(logfields.KeyPage, p.String()).
				WithContext("layout", name).
				Build()
		}
		content = buf.Bytes()
		name, _ = lf.data["layout"].(string)
	}
	p.SetContent(content)
	return nil
}

func (l *layouts) load(name string) (*layoutFile, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if lf, ok := l.cache[name]; ok {
		return lf, nil
	}

	clean := path.Clean("/" + filepath.ToSlash(name))
	raw, err := os.ReadFile(filepath.Join(l.dir, filepath.FromSlash(clean)))
	if err != nil {
		return nil, fmt.Errorf("layout %q: %w", name, err)
	}
	data, body, err := frontmatter.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("layout %q front matter: %w", name, err)
	}
	tpl, err := template.New(name).Funcs(l.funcs()).Parse(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse layout %q: %w", name, err)
	}
	lf := &layoutFile{tpl: tpl, data: data}
	l.cache[name] = lf
	return lf, nil
}

func (l *layouts) funcs() template.FuncMap {
	return template.FuncMap{
		// url resolves a site path against the public location.
		"url":  func(p string) string { return absoluteURL(l.host.Location(), p) },
		"slug": Slugify,
		"date": func(layout string, t time.Time) string { return t.Format(layout) },
	}
}
