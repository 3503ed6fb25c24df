// Package bundle groups the project's own site conventions into one plugin:
// Markdown and HTML pages, URL rules, layouts and the sitemap.
package bundle

import (
	"git.home.luguber.info/inful/sitebuilder/internal/markdown"
	"git.home.luguber.info/inful/sitebuilder/internal/plugin"
	"git.home.luguber.info/inful/sitebuilder/internal/version"
)

// Name is the registry name of the bundle.
const Name = "bundle"

// DefaultIncludes is the layout directory, relative to the source directory.
const DefaultIncludes = "_includes"

// Options configures the bundle.
type Options struct {
	Includes string
	Sitemap  bool
	Markdown markdown.Options
}

// Option mutates Options.
type Option func(*Options)

// WithoutSitemap disables sitemap.xml generation.
func WithoutSitemap() Option { return func(o *Options) { o.Sitemap = false } }

// WithIncludes sets the layout directory, relative to the source directory.
func WithIncludes(dir string) Option { return func(o *Options) { o.Includes = dir } }

// WithMarkdown sets the Markdown renderer options.
func WithMarkdown(opts markdown.Options) Option { return func(o *Options) { o.Markdown = opts } }

// Bundle installs its parts in a fixed order. It registers as one plugin.
type Bundle struct {
	opts  Options
	parts []plugin.Plugin
}

// New returns the bundle with defaults applied, then opts.
func New(opts ...Option) *Bundle {
	o := Options{Includes: DefaultIncludes, Sitemap: true}
	for _, fn := range opts {
		fn(&o)
	}
	r := markdown.New(o.Markdown)
	parts := []plugin.Plugin{
		&markdownPages{renderer: r},
		&htmlPages{},
		&urls{},
		&layouts{includes: o.Includes},
	}
	if o.Sitemap {
		parts = append(parts, &sitemap{})
	}
	return &Bundle{opts: o, parts: parts}
}

// Metadata implements plugin.Plugin.
func (b *Bundle) Metadata() plugin.Metadata {
	return plugin.Metadata{
		Name:        Name,
		Version:     version.Version,
		Type:        plugin.TypeBundle,
		Description: "Markdown and HTML pages, pretty URLs, layouts and sitemap",
	}
}

// Options returns the effective options.
func (b *Bundle) Options() Options { return b.opts }

// Parts returns the bundled plugins in install order.
func (b *Bundle) Parts() []plugin.Plugin { return append([]plugin.Plugin(nil), b.parts...) }

// Install installs every part on the host, stopping at the first failure.
func (b *Bundle) Install(host plugin.Host) error {
	for _, part := range b.parts {
		if err := part.Install(host); err != nil {
			return plugin.NewError(part.Metadata().Name, "install", err)
		}
	}
	return nil
}

func partMetadata(name, description string) plugin.Metadata {
	return plugin.Metadata{Name: Name + "/" + name, Version: version.Version, Type: plugin.TypeProcessor, Description: description}
}
