package bundle

import (
	"context"
	"encoding/xml"
	"slices"
	"strings"

	"git.home.luguber.info/inful/sitebuilder/internal/page"
	"git.home.luguber.info/inful/sitebuilder/internal/plugin"
)

// SitemapPath is the output path of the generated sitemap.
const SitemapPath = "/sitemap.xml"

// sitemap writes /sitemap.xml listing every HTML page, unless a page with that output
// already exists. Pages with `sitemap: false` are left out.
type sitemap struct {
	location string
}

type urlSet struct {
	XMLName xml.Name     `xml:"urlset"`
	NS      string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod,omitempty"`
}

func (s *sitemap) Metadata() plugin.Metadata {
	return partMetadata("sitemap", "sitemap.xml for every HTML page")
}

func (s *sitemap) Install(host plugin.Host) error {
	s.location = host.Location()
	host.Process([]string{".html"}, s.generate)
	return nil
}

func (s *sitemap) generate(_ context.Context, pages []*page.Page, all *page.Set) error {
	if all.FindByOutput(SitemapPath) != nil {
		return nil
	}
	set := urlSet{NS: "http://www.sitemaps.org/schemas/sitemap/0.9"}
	for _, p := range pages {
		if p.Asset {
			continue
		}
		if include, ok := p.Data["sitemap"].(bool); ok && !include {
			continue
		}
		u := sitemapURL{Loc: absoluteURL(s.location, p.URL)}
		if !p.Src.ModTime.IsZero() {
			u.LastMod = p.Src.ModTime.UTC().Format("2006-01-02")
		}
		set.URLs = append(set.URLs, u)
	}
	slices.SortFunc(set.URLs, func(a, b sitemapURL) int { return strings.Compare(a.Loc, b.Loc) })

	out, err := xml.MarshalIndent(set, "", "  ")
	if err != nil {
		return err
	}
	all.Add(&page.Page{
		Data:       map[string]any{},
		Content:    append([]byte(xml.Header), out...),
		URL:        SitemapPath,
		OutputPath: SitemapPath,
	})
	return nil
}
