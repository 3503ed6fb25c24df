// Package transformimages resizes and re-encodes image assets that carry
// transformation data, caching encoded results between builds.
package transformimages

import (
	"context"
	"image"
	"log/slog"
	"path"
	"path/filepath"
	"strings"
	"time"

	"git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/imagecache"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
	"git.home.luguber.info/inful/sitebuilder/internal/page"
	"git.home.luguber.info/inful/sitebuilder/internal/plugin"
	"git.home.luguber.info/inful/sitebuilder/internal/version"
)

// Defaults.
const (
	PluginName       = "transform_images"
	DefaultName      = "transformImages"
	DefaultCachePath = "_cache/transform_images.db"
	DefaultMaxAge    = 30 * 24 * time.Hour
)

// DefaultExtensions are the image types loaded and transformed.
var DefaultExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp"}

// Options configures the plugin.
type Options struct {
	// Extensions selects the assets to transform.
	Extensions []string
	// Name is the page data key holding transformations.
	Name string
	// CachePath is the SQLite cache file, relative to the source directory.
	// Empty disables caching.
	CachePath string
	// MaxAge evicts cache entries not used for this long when the cache opens.
	// Zero keeps every entry.
	MaxAge time.Duration
	// Functions adds named operations usable in transformations.
	Functions map[string]Func
	// Store overrides the cache store; CachePath is then ignored.
	Store imagecache.Store
}

// Option mutates Options.
type Option func(*Options)

// WithName sets the data key.
func WithName(name string) Option { return func(o *Options) { o.Name = name } }

// WithExtensions replaces the extensions to transform.
func WithExtensions(exts ...string) Option { return func(o *Options) { o.Extensions = exts } }

// WithCachePath sets the cache file; empty disables the cache.
func WithCachePath(p string) Option { return func(o *Options) { o.CachePath = p } }

// WithMaxAge sets the cache eviction age; zero disables eviction.
func WithMaxAge(d time.Duration) Option { return func(o *Options) { o.MaxAge = d } }

// WithFunction registers a named operation.
func WithFunction(name string, fn Func) Option {
	return func(o *Options) {
		if o.Functions == nil {
			o.Functions = map[string]Func{}
		}
		o.Functions[name] = fn
	}
}

// WithStore uses store as the cache. The caller keeps ownership.
func WithStore(store imagecache.Store) Option { return func(o *Options) { o.Store = store } }

// Plugin transforms image assets.
type Plugin struct {
	opts  Options
	funcs map[string]Func
	host  plugin.Host
}

// New returns the plugin with defaults applied, then opts.
func New(opts ...Option) *Plugin {
	o := Options{
		Extensions: DefaultExtensions,
		Name:       DefaultName,
		CachePath:  DefaultCachePath,
		MaxAge:     DefaultMaxAge,
	}
	for _, fn := range opts {
		fn(&o)
	}
	funcs := builtinFuncs()
	for name, fn := range o.Functions {
		funcs[name] = fn
	}
	return &Plugin{opts: o, funcs: funcs}
}

// Metadata implements plugin.Plugin.
func (p *Plugin) Metadata() plugin.Metadata {
	return plugin.Metadata{
		Name:        PluginName,
		Version:     version.Version,
		Type:        plugin.TypeImage,
		Description: "Resize and convert image assets",
	}
}

// Options returns the effective options.
func (p *Plugin) Options() Options { return p.opts }

// Install implements plugin.Plugin.
func (p *Plugin) Install(host plugin.Host) error {
	p.host = host
	host.LoadAssets(p.opts.Extensions...)
	host.Process(p.opts.Extensions, p.process)
	return nil
}

func (p *Plugin) openStore(ctx context.Context) (imagecache.Store, func(), error) {
	if p.opts.Store != nil {
		return p.opts.Store, func() {}, nil
	}
	if p.opts.CachePath == "" {
		return nil, func() {}, nil
	}
	dbPath := p.opts.CachePath
	if !filepath.IsAbs(dbPath) {
		dbPath = filepath.Join(p.host.Src(), filepath.FromSlash(dbPath))
	}
	store, err := imagecache.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, nil, err
	}
	if p.opts.MaxAge > 0 {
		removed, err := store.Prune(ctx, time.Now().Add(-p.opts.MaxAge))
		if err != nil {
			_ = store.Close()
			return nil, nil, errors.WrapError(err, errors.CategoryCache, "prune image cache").WithContext(logfields.KeyPath, dbPath).Build()
		}
		if removed > 0 {
			p.host.Logger().Debug("Pruned image cache", logfields.Path(dbPath), slog.Int64("removed", removed))
		}
	}
	return store, func() { _ = store.Close() }, nil
}

func (p *Plugin) process(ctx context.Context, pages []*page.Page, all *page.Set) error {
	var pending []*page.Page
	for _, pg := range pages {
		if pg.Asset && pg.Data[p.opts.Name] != nil {
			pending = append(pending, pg)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	store, closeStore, err := p.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	for _, pg := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.transformPage(ctx, store, pg, all); err != nil {
			return err
		}
	}
	return nil
}

func (p *Plugin) transformPage(ctx context.Context, store imagecache.Store, pg *page.Page, all *page.Set) error {
	transforms, err := Decode(pg.Data[p.opts.Name])
	if err != nil {
		return errors.WrapError(err, errors.CategoryImage, "invalid transformation").
			WithContext(logfields.KeyPage, pg.String()).
			Build()
	}
	delete(pg.Data, p.opts.Name)

	source := pg.Content
	srcFormat := normalizeFormat(path.Ext(pg.OutputPath))
	base := strings.TrimSuffix(pg.OutputPath, path.Ext(pg.OutputPath))
	var decoded image.Image
	inPlace := false

	for _, t := range transforms {
		if !matches(t.Matches, pg.Src.Path) {
			continue
		}
		format := normalizeFormat(t.Format)
		if format == "" {
			format = srcFormat
		}
		if !Supported(format) {
			return errors.ImageError("unsupported output format").
				WithContext(logfields.KeyPage, pg.String()).
				WithContext(logfields.KeyFormat, format).
				Build()
		}

		out, err := p.run(ctx, store, source, &decoded, t, format)
		if err != nil {
			return errors.WrapError(err, errors.CategoryImage, "transform image").
				WithContext(logfields.KeyPage, pg.String()).
				WithContext(logfields.KeyFormat, format).
				Build()
		}

		if t.Suffix == "" && !inPlace {
			inPlace = true
			pg.Content = out
			pg.OutputPath = base + "." + format
			pg.URL = pg.OutputPath
			continue
		}
		variant := pg.Duplicate(base + t.Suffix + "." + format)
		variant.Content = out
		all.Add(variant)
	}
	return nil
}

// run produces the encoded output for one transformation, consulting the cache first.
// The source is decoded at most once per page.
func (p *Plugin) run(ctx context.Context, store imagecache.Store, source []byte, decoded *image.Image, t Transformation, format string) ([]byte, error) {
	start := time.Now()
	rec := p.host.Recorder()

	var key string
	if store != nil {
		desc, err := t.key(format)
		if err != nil {
			return nil, err
		}
		key = imagecache.Key(source, desc)
		data, ok, err := store.Get(ctx, key)
		if err != nil {
			p.host.Logger().Warn("Image cache lookup failed", logfields.Error(err))
		} else if ok {
			rec.ObserveImageTransform(format, time.Since(start), true)
			return data, nil
		}
	}

	if *decoded == nil {
		img, err := decode(source)
		if err != nil {
			return nil, err
		}
		*decoded = img
	}
	img := resize(*decoded, t.Resize)
	img, err := applyOps(img, t.Ops, p.funcs)
	if err != nil {
		return nil, err
	}
	out, err := encode(img, format, t.Quality)
	if err != nil {
		return nil, err
	}

	if store != nil {
		if err := store.Put(ctx, key, format, out); err != nil {
			p.host.Logger().Warn("Image cache store failed", logfields.Error(err))
		}
	}
	d := time.Since(start)
	rec.ObserveImageTransform(format, d, false)
	p.host.Logger().Debug("Image transformed",
		logfields.Format(format), logfields.Duration(d), slog.Int("bytes", len(out)))
	return out, nil
}

func matches(pattern, srcPath string) bool {
	if pattern == "" {
		return true
	}
	if ok, _ := path.Match(pattern, srcPath); ok {
		return true
	}
	ok, _ := path.Match(pattern, path.Base(srcPath))
	return ok
}
