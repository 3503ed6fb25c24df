// Package siteconfig assembles the site: a source directory and the three plugins
// that make up this project, registered in a fixed order.
package siteconfig

import (
	"git.home.luguber.info/inful/sitebuilder/internal/config"
	"git.home.luguber.info/inful/sitebuilder/internal/plugins/bundle"
	"git.home.luguber.info/inful/sitebuilder/internal/plugins/picture"
	"git.home.luguber.info/inful/sitebuilder/internal/plugins/transformimages"
	"git.home.luguber.info/inful/sitebuilder/internal/site"
)

// DefaultSrc is the source directory of the assembled site.
const DefaultSrc = "./src"

// New returns the site with default plugin options. Assembly never fails; an unusable
// source directory is reported by Build.
func New() *site.Site {
	return site.New(site.Options{Src: DefaultSrc}).
		Use(bundle.New()).
		Use(picture.New()).
		Use(transformimages.New())
}

// FromConfig assembles the same site with engine and plugin options taken from cfg.
func FromConfig(cfg *config.Config) *site.Site {
	if cfg == nil {
		return New()
	}
	s := site.New(engineOptions(cfg))
	for key, value := range cfg.Data {
		s.Data(key, value)
	}
	return s.
		Use(bundle.New(bundleOptions(cfg)...)).
		Use(picture.New(pictureOptions(cfg)...)).
		Use(transformimages.New(transformOptions(cfg)...))
}

func engineOptions(cfg *config.Config) site.Options {
	src := cfg.Src
	if src == "" {
		src = DefaultSrc
	}
	return site.Options{
		Src:      src,
		Dest:     cfg.Dest,
		Location: cfg.Location,
		UglyURLs: cfg.UglyURLs,
		KeepDest: cfg.KeepDest,
	}
}

func bundleOptions(cfg *config.Config) []bundle.Option {
	var opts []bundle.Option
	if cfg.Bundle.Includes != "" {
		opts = append(opts, bundle.WithIncludes(cfg.Bundle.Includes))
	}
	if !cfg.Bundle.SitemapEnabled() {
		opts = append(opts, bundle.WithoutSitemap())
	}
	return opts
}

func pictureOptions(cfg *config.Config) []picture.Option {
	var opts []picture.Option
	if cfg.Picture.Name != "" {
		opts = append(opts, picture.WithName(cfg.Picture.Name))
	}
	if cfg.Picture.Attribute != "" {
		opts = append(opts, picture.WithAttribute(cfg.Picture.Attribute))
	}
	return opts
}

func transformOptions(cfg *config.Config) []transformimages.Option {
	var opts []transformimages.Option
	if cfg.TransformImages.Name != "" {
		opts = append(opts, transformimages.WithName(cfg.TransformImages.Name))
	}
	switch {
	case cfg.TransformImages.NoCache:
		opts = append(opts, transformimages.WithCachePath(""))
	case cfg.TransformImages.Cache != "":
		opts = append(opts, transformimages.WithCachePath(cfg.TransformImages.Cache))
	}
	opts = append(opts, transformimages.WithMaxAge(cfg.TransformImages.CacheMaxAge()))
	if len(cfg.TransformImages.Extensions) > 0 {
		opts = append(opts, transformimages.WithExtensions(cfg.TransformImages.Extensions...))
	}
	return opts
}
