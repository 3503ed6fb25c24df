// Package site implements the static site engine.
//
// A Site is constructed from Options, extended with plugins through Use and built
// with Build. Plugins never run during Use beyond their Install hook, so assembling
// a site is cheap and side-effect free; every failure surfaces from Build.
package site

import (
	"fmt"
	"log/slog"
	"maps"
	"path"
	"strings"

	"git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
	"git.home.luguber.info/inful/sitebuilder/internal/metrics"
	"git.home.luguber.info/inful/sitebuilder/internal/plugin"
)

// Defaults applied by New to empty options.
const (
	DefaultSrc      = "./"
	DefaultDest     = "_site"
	DefaultLocation = "http://localhost/"
)

// Options configures the engine.
type Options struct {
	// Src is the content source directory.
	Src string
	// Dest is the output directory.
	Dest string
	// Location is the public base URL, used for absolute links such as the sitemap.
	Location string
	// UglyURLs disables directory-style URLs ("/about.html" instead of "/about/").
	UglyURLs bool
	// KeepDest leaves existing files in Dest instead of emptying it before writing.
	KeepDest bool
}

type loaderEntry struct {
	plugin string
	exts   []string
	load   plugin.Loader
}

type processorEntry struct {
	plugin string
	exts   []string
	fn     plugin.ProcessFunc
}

// Site is a configured engine. It is not safe for concurrent builds.
type Site struct {
	opts     Options
	logger   *slog.Logger
	recorder metrics.Recorder
	registry *plugin.Registry

	loaders       []loaderEntry
	assetExts     []string
	preprocessors []processorEntry
	processors    []processorEntry
	data          map[string]any

	installing string
	err        error
}

// New creates a site. Empty Dest and Location get defaults; an empty Src means the
// working directory.
func New(opts Options) *Site {
	if opts.Src == "" {
		opts.Src = DefaultSrc
	}
	if opts.Dest == "" {
		opts.Dest = DefaultDest
	}
	if opts.Location == "" {
		opts.Location = DefaultLocation
	}
	if !strings.HasSuffix(opts.Location, "/") {
		opts.Location += "/"
	}
	return &Site{
		opts:     opts,
		logger:   slog.Default(),
		recorder: metrics.NoopRecorder{},
		registry: plugin.NewRegistry(),
		data:     map[string]any{},
	}
}

// WithLogger sets the logger used by the engine and its plugins.
func (s *Site) WithLogger(l *slog.Logger) *Site {
	if l != nil {
		s.logger = l
	}
	return s
}

// WithRecorder sets the metrics recorder.
func (s *Site) WithRecorder(r metrics.Recorder) *Site {
	if r != nil {
		s.recorder = r
	}
	return s
}

// Use registers and installs a plugin, returning the site for chaining. The plugin
// value is kept as given. The first registration or install error is retained and
// returned by Build.
func (s *Site) Use(p plugin.Plugin) *Site {
	if err := s.registry.Register(p); err != nil {
		s.keepErr(errors.WrapError(err, errors.CategoryPlugin, "register plugin").Fatal().Build())
		return s
	}
	md := p.Metadata()
	s.installing = md.Name
	err := p.Install(s)
	s.installing = ""
	if err != nil {
		s.keepErr(errors.WrapError(plugin.NewError(md.Name, "install", err), errors.CategoryPlugin, "install plugin").
			Fatal().
			WithContext(logfields.KeyPlugin, md.Name).
			Build())
		return s
	}
	s.logger.Debug("Plugin registered", logfields.Plugin(md.Name), slog.String("version", md.Version))
	return s
}

func (s *Site) keepErr(err error) {
	if s.err == nil {
		s.err = err
	}
}

// Err returns the first error recorded by Use, if any.
func (s *Site) Err() error { return s.err }

// Plugins returns the registered plugins in registration order.
func (s *Site) Plugins() []plugin.Plugin { return s.registry.List() }

// PluginNames returns the registered plugin names in registration order.
func (s *Site) PluginNames() []string { return s.registry.Names() }

// Options returns a copy of the effective options.
func (s *Site) Options() Options { return s.opts }

func (s *Site) Src() string                { return s.opts.Src }
func (s *Site) Dest() string               { return s.opts.Dest }
func (s *Site) Location() string           { return s.opts.Location }
func (s *Site) PrettyURLs() bool           { return !s.opts.UglyURLs }
func (s *Site) Logger() *slog.Logger       { return s.logger }
func (s *Site) Recorder() metrics.Recorder { return s.recorder }

// URL resolves a site path against Location.
func (s *Site) URL(p string) string {
	rel := strings.TrimPrefix(path.Clean("/"+p), "/")
	if rel != "" && strings.HasSuffix(p, "/") {
		rel += "/"
	}
	return s.opts.Location + rel
}

// LoadPages implements plugin.Host.
func (s *Site) LoadPages(exts []string, loader plugin.Loader) {
	s.loaders = append(s.loaders, loaderEntry{plugin: s.installing, exts: normalizeExts(exts), load: loader})
}

// LoadAssets implements plugin.Host.
func (s *Site) LoadAssets(exts ...string) {
	for _, e := range normalizeExts(exts) {
		if !containsExt(s.assetExts, e) {
			s.assetExts = append(s.assetExts, e)
		}
	}
}

// Preprocess implements plugin.Host.
func (s *Site) Preprocess(exts []string, fn plugin.ProcessFunc) {
	s.preprocessors = append(s.preprocessors, processorEntry{plugin: s.installing, exts: normalizeExts(exts), fn: fn})
}

// Process implements plugin.Host.
func (s *Site) Process(exts []string, fn plugin.ProcessFunc) {
	s.processors = append(s.processors, processorEntry{plugin: s.installing, exts: normalizeExts(exts), fn: fn})
}

// Data implements plugin.Host.
func (s *Site) Data(key string, value any) { s.data[key] = value }

// SiteData implements plugin.Host.
func (s *Site) SiteData() map[string]any { return maps.Clone(s.data) }

// String summarises the configuration for logs and the inspect command.
func (s *Site) String() string {
	return fmt.Sprintf("site(src=%s dest=%s plugins=%v)", s.opts.Src, s.opts.Dest, s.registry.Names())
}

func normalizeExts(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		out = append(out, e)
	}
	return out
}

func containsExt(exts []string, ext string) bool {
	for _, e := range exts {
		if strings.EqualFold(e, ext) {
			return true
		}
	}
	return false
}

var _ plugin.Host = (*Site)(nil)
