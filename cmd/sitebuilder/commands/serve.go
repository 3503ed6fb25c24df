package commands

import (
	"context"
	"log/slog"
	"net/http"
	"path/filepath"

	prom "github.com/prometheus/client_golang/prometheus"
	promcollect "github.com/prometheus/client_golang/prometheus/collectors"

	"git.home.luguber.info/inful/sitebuilder/internal/config"
	"git.home.luguber.info/inful/sitebuilder/internal/metrics"
	"git.home.luguber.info/inful/sitebuilder/internal/plugins/transformimages"
	"git.home.luguber.info/inful/sitebuilder/internal/preview"
	"git.home.luguber.info/inful/sitebuilder/internal/site"
	"git.home.luguber.info/inful/sitebuilder/internal/siteconfig"
)

// ServeCmd implements the 'serve' command.
type ServeCmd struct {
	Port         int    `short:"p" help:"Port to listen on (overrides server.port)"`
	Host         string `help:"Interface to bind" default:"localhost"`
	NoLiveReload bool   `name:"no-live-reload" help:"Disable browser live reload"`
	NoMetrics    bool   `name:"no-metrics" help:"Do not expose Prometheus metrics"`
}

func (s *ServeCmd) Run(_ *Global, root *CLI) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	opts := s.options(cfg)
	rec := metrics.Recorder(metrics.NoopRecorder{})
	if !s.NoMetrics {
		var handler http.Handler
		rec, handler = prometheusRecorder()
		opts.Metrics = handler
	}

	ctx, cancel := signalContext()
	defer cancel()
	return preview.New(opts, newBuildFunc(cfg, rec)).Run(ctx)
}

func (s *ServeCmd) options(cfg *config.Config) preview.Options {
	port := cfg.Server.Port
	if s.Port != 0 {
		port = s.Port
	}
	return preview.Options{
		Src:         cfg.Src,
		Dest:        cfg.Dest,
		Host:        s.Host,
		Port:        port,
		LiveReload:  cfg.Server.LiveReloadEnabled() && !s.NoLiveReload,
		MetricsPath: cfg.Server.MetricsPath,
		Ignore:      ignoredPaths(cfg),
		Logger:      slog.Default(),
	}
}

// prometheusRecorder registers build collectors plus the Go and process
// collectors on a private registry.
func prometheusRecorder() (metrics.Recorder, http.Handler) {
	reg := prom.NewRegistry()
	reg.MustRegister(promcollect.NewGoCollector(), promcollect.NewProcessCollector(promcollect.ProcessCollectorOpts{}))
	return metrics.NewPrometheusRecorder(reg), metrics.HTTPHandler(reg)
}

// ignoredPaths are written by the build itself and must not trigger rebuilds.
func ignoredPaths(cfg *config.Config) []string {
	if cfg.TransformImages.NoCache {
		return nil
	}
	cache := cfg.TransformImages.Cache
	if cache == "" {
		cache = transformimages.DefaultCachePath
	}
	if filepath.IsAbs(cache) {
		return []string{cache}
	}
	return []string{filepath.Join(cfg.Src, filepath.FromSlash(cache))}
}

// newBuildFunc assembles a fresh site for every build.
func newBuildFunc(cfg *config.Config, rec metrics.Recorder) preview.BuildFunc {
	return func(ctx context.Context) (*site.Report, error) {
		return siteconfig.FromConfig(cfg).
			WithLogger(slog.Default()).
			WithRecorder(rec).
			Build(ctx)
	}
}
