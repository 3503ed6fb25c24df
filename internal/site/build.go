package site

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
	"git.home.luguber.info/inful/sitebuilder/internal/metrics"
	"git.home.luguber.info/inful/sitebuilder/internal/page"
	"git.home.luguber.info/inful/sitebuilder/internal/plugin"
)

// Stage names, also used as metric labels.
const (
	StageLoad       = "load"
	StagePreprocess = "preprocess"
	StageProcess    = "process"
	StageWrite      = "write"
)

// StageTiming records how long one stage took.
type StageTiming struct {
	Name     string
	Duration time.Duration
}

// Report summarises a finished (or failed) build.
type Report struct {
	BuildID  string
	Src      string
	Dest     string
	Pages    int
	Assets   int
	Copied   int
	Duration time.Duration
	Stages   []StageTiming
	Outcome  metrics.BuildOutcomeLabel
}

// Summary returns a one-line human readable description.
func (r *Report) Summary() string {
	return fmt.Sprintf("%s: %d pages, %d assets, %d files copied in %s",
		r.Outcome, r.Pages, r.Assets, r.Copied, r.Duration.Round(time.Millisecond))
}

type buildState struct {
	src    string
	dest   string
	pages  *page.Set
	static []staticFile
	logger *slog.Logger
}

type stage struct {
	name string
	run  func(ctx context.Context, st *buildState, r *Report) error
}

// Build loads the source tree, runs preprocessors and processors in registration
// order and writes the result to Dest.
func (s *Site) Build(ctx context.Context) (*Report, error) {
	if s.err != nil {
		return nil, s.err
	}
	report := &Report{BuildID: uuid.NewString(), Src: s.opts.Src, Dest: s.opts.Dest}
	logger := s.logger.With(logfields.BuildID(report.BuildID))

	src, err := filepath.Abs(s.opts.Src)
	if err != nil {
		return report, errors.WrapError(err, errors.CategoryConfig, "resolve source directory").WithContext(logfields.KeySrc, s.opts.Src).Build()
	}
	dest, err := filepath.Abs(s.opts.Dest)
	if err != nil {
		return report, errors.WrapError(err, errors.CategoryConfig, "resolve destination directory").WithContext(logfields.KeyDest, s.opts.Dest).Build()
	}
	st := &buildState{src: src, dest: dest, pages: page.NewSet(), logger: logger}

	logger.Info("Starting site build", logfields.Src(s.opts.Src), logfields.Dest(s.opts.Dest), slog.Any("plugins", s.registry.Names()))
	start := time.Now()

	stages := []stage{
		{name: StageLoad, run: func(_ context.Context, st *buildState, _ *Report) error { return s.load(st) }},
		{name: StagePreprocess, run: func(ctx context.Context, st *buildState, _ *Report) error {
			return s.runProcessors(ctx, st, s.preprocessors, "preprocess")
		}},
		{name: StageProcess, run: func(ctx context.Context, st *buildState, _ *Report) error {
			return s.runProcessors(ctx, st, s.processors, "process")
		}},
		{name: StageWrite, run: s.write},
	}

	for _, stg := range stages {
		if err := ctx.Err(); err != nil {
			return s.finish(report, start, logger, stg.name, err)
		}
		t0 := time.Now()
		err := stg.run(ctx, st, report)
		d := time.Since(t0)
		s.recorder.ObserveStageDuration(stg.name, d)
		report.Stages = append(report.Stages, StageTiming{Name: stg.name, Duration: d})
		if err != nil {
			return s.finish(report, start, logger, stg.name, err)
		}
		s.recorder.IncStageResult(stg.name, metrics.ResultSuccess)
		logger.Debug("Stage completed", logfields.Stage(stg.name), logfields.Duration(d))
	}

	return s.finish(report, start, logger, "", nil)
}

func (s *Site) finish(report *Report, start time.Time, logger *slog.Logger, failedStage string, err error) (*Report, error) {
	report.Duration = time.Since(start)
	s.recorder.ObserveBuildDuration(report.Duration)

	switch {
	case err == nil:
		report.Outcome = metrics.BuildOutcomeSuccess
		s.recorder.SetPageCount(report.Pages, report.Assets)
		logger.Info("Site build completed", slog.String("summary", report.Summary()))
	case isCanceled(err):
		report.Outcome = metrics.BuildOutcomeCanceled
		s.recorder.IncStageResult(failedStage, metrics.ResultCanceled)
		err = errors.WrapError(err, errors.CategoryCanceled, "build canceled").WithContext(logfields.KeyStage, failedStage).Build()
		logger.Warn("Site build canceled", logfields.Stage(failedStage))
	default:
		report.Outcome = metrics.BuildOutcomeFailed
		s.recorder.IncStageResult(failedStage, metrics.ResultFailed)
		logger.Error("Site build failed", logfields.Stage(failedStage), logfields.Error(err))
	}
	s.recorder.IncBuildOutcome(report.Outcome)
	return report, err
}

func isCanceled(err error) bool {
	return stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded)
}

func (s *Site) runProcessors(ctx context.Context, st *buildState, entries []processorEntry, operation string) error {
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		pages := st.pages.Filter(entry.exts...)
		if len(pages) == 0 {
			continue
		}
		if err := entry.fn(ctx, pages, st.pages); err != nil {
			if isCanceled(err) {
				return err
			}
			perr := plugin.NewError(entry.plugin, operation, err)
			if errors.IsClassified(err) {
				return perr
			}
			return errors.WrapError(perr, errors.CategoryPlugin, operation+" failed").
				Fatal().
				WithContext(logfields.KeyPlugin, entry.plugin).
				Build()
		}
		for _, p := range pages {
			if err := p.Flush(); err != nil {
				return errors.WrapError(err, errors.CategoryBuild, "render document").WithContext(logfields.KeyPage, p.String()).Build()
			}
		}
	}
	return nil
}
