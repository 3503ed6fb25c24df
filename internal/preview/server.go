// Package preview serves a built site locally, rebuilding it when sources change
// and reloading connected browsers.
package preview

import (
	"context"
	stderrors "errors"
	"fmt"
	"html"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
	"git.home.luguber.info/inful/sitebuilder/internal/site"
)

// DefaultPort is used when Options.Port is zero.
const DefaultPort = 3000

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 5 * time.Second

// BuildFunc produces a fresh build of the site into Options.Dest.
type BuildFunc func(ctx context.Context) (*site.Report, error)

// Options configure a preview Server.
type Options struct {
	Src  string
	Dest string
	Host string
	Port int

	LiveReload  bool
	MetricsPath string
	Metrics     http.Handler

	// Ignore lists extra directories whose changes never trigger a rebuild.
	Ignore   []string
	Debounce time.Duration
	Logger   *slog.Logger
}

// Server serves Dest and rebuilds on changes below Src.
type Server struct {
	opts   Options
	build  BuildFunc
	hub    *Hub
	filter ignoreFilter
	logger *slog.Logger
	status buildStatus
}

type buildStatus struct {
	mu       sync.RWMutex
	lastErr  error
	lastGood *site.Report
}

func (bs *buildStatus) set(r *site.Report, err error) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	bs.lastErr = err
	if err == nil {
		bs.lastGood = r
	}
}

func (bs *buildStatus) get() (*site.Report, error) {
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	return bs.lastGood, bs.lastErr
}

// New returns a Server. The site is not built until Rebuild or Run is called.
func New(opts Options, build BuildFunc) *Server {
	if opts.Port == 0 {
		opts.Port = DefaultPort
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ignore := append([]string{opts.Dest}, opts.Ignore...)
	return &Server{
		opts:   opts,
		build:  build,
		hub:    NewHub(),
		filter: newIgnoreFilter(ignore...),
		logger: logger,
	}
}

// Hub exposes the live reload hub.
func (s *Server) Hub() *Hub { return s.hub }

// LastReport returns the report of the most recent successful build.
func (s *Server) LastReport() *site.Report {
	r, _ := s.status.get()
	return r
}

// Rebuild runs the build once, records the outcome and notifies browsers.
func (s *Server) Rebuild(ctx context.Context) error {
	report, err := s.build(ctx)
	s.status.set(report, err)
	if err != nil {
		s.logger.Warn("Build failed", logfields.Error(err))
		s.hub.Broadcast(fmt.Sprintf("error-%d", time.Now().UnixNano()))
		return err
	}
	s.logger.Info("Site built", logfields.BuildID(report.BuildID), slog.String("summary", report.Summary()))
	s.hub.Broadcast(report.BuildID)
	return nil
}

// Handler returns the HTTP handler serving the site, live reload and metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	files := http.Handler(http.FileServer(http.Dir(s.opts.Dest)))
	if s.opts.LiveReload {
		mux.Handle(LiveReloadPath, s.hub)
		files = injectScript(files)
	}
	if s.opts.Metrics != nil && s.opts.MetricsPath != "" {
		mux.Handle(s.opts.MetricsPath, s.opts.Metrics)
	}
	mux.Handle("/", s.withBuildError(files))
	return withRecovery(s.logger, withLogging(s.logger, mux))
}

// withBuildError shows the last build error instead of stale output.
func (s *Server) withBuildError(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, err := s.status.get()
		if err == nil {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = fmt.Fprint(w, errorPage(err, s.opts.LiveReload))
	})
}

func errorPage(err error, liveReload bool) string {
	page := "<!doctype html><html><head><meta charset=\"utf-8\"><title>Build failed</title></head>" +
		"<body><h1>Build failed</h1><pre>" + html.EscapeString(err.Error()) + "</pre>"
	if liveReload {
		page += Script
	}
	return page + "</body></html>"
}

// Run builds the site, serves it and rebuilds on change until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Rebuild(ctx); err != nil && ctx.Err() != nil {
		return err
	}

	watcher, err := s.newWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	reqs, trigger := newDebouncer(s.opts.Debounce)
	workerCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()
	go s.rebuildWorker(workerCtx, reqs)

	addr := net.JoinHostPort(s.opts.Host, strconv.Itoa(s.opts.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.WrapError(err, errors.CategoryRuntime, "listen").WithContext("addr", addr).Build()
	}
	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	serveErr := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()
	s.logger.Info("Preview server listening", logfields.URL("http://"+ln.Addr().String()+"/"), logfields.Src(s.opts.Src))

	for {
		select {
		case <-ctx.Done():
			return s.shutdown(srv)
		case err := <-serveErr:
			s.hub.Shutdown()
			return errors.WrapError(err, errors.CategoryRuntime, "serve").Build()
		case ev, ok := <-watcher.Events:
			if !ok {
				return s.shutdown(srv)
			}
			s.handleEvent(watcher, ev, trigger)
		case err, ok := <-watcher.Errors:
			if !ok {
				return s.shutdown(srv)
			}
			s.logger.Warn("Watcher error", logfields.Error(err))
		}
	}
}

// rebuildWorker runs one build at a time; requests arriving during a build
// collapse into a single follow-up build.
func (s *Server) rebuildWorker(ctx context.Context, reqs chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-reqs:
			s.logger.Info("Change detected; rebuilding site")
			_ = s.Rebuild(ctx)
		}
	}
}

func (s *Server) shutdown(srv *http.Server) error {
	s.logger.Info("Shutting down preview server")
	s.hub.Shutdown()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		s.logger.Warn("HTTP server shutdown error", logfields.Error(err))
	}
	return nil
}
