package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "sitebuilder"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	stageDuration  *prom.HistogramVec
	buildDuration  prom.Histogram
	stageResults   *prom.CounterVec
	buildOutcome   *prom.CounterVec
	pages          *prom.GaugeVec
	imageDuration  *prom.HistogramVec
	imageTransform *prom.CounterVec
}

// NewPrometheusRecorder constructs the collectors and registers them on reg.
// A nil reg gets a private registry.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		stageDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of individual build stages",
			Buckets:   prom.DefBuckets,
		}, []string{"stage"}),
		buildDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "build_duration_seconds",
			Help:      "Total build duration",
			Buckets:   prom.DefBuckets,
		}),
		stageResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "stage_results_total",
			Help:      "Stage result counts by outcome",
		}, []string{"stage", "result"}),
		buildOutcome: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "build_outcomes_total",
			Help:      "Build outcomes by final status",
		}, []string{"outcome"}),
		pages: prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "pages",
			Help:      "Pages written by the last build",
		}, []string{"kind"}),
		imageDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "image_transform_duration_seconds",
			Help:      "Duration of single image transformations",
			Buckets:   prom.DefBuckets,
		}, []string{"format"}),
		imageTransform: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "image_transforms_total",
			Help:      "Image transformations by output format and cache result",
		}, []string{"format", "cache"}),
	}
	reg.MustRegister(pr.stageDuration, pr.buildDuration, pr.stageResults, pr.buildOutcome, pr.pages, pr.imageDuration, pr.imageTransform)
	return pr
}

func (p *PrometheusRecorder) ObserveStageDuration(stage string, d time.Duration) {
	if p == nil {
		return
	}
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveBuildDuration(d time.Duration) {
	if p == nil {
		return
	}
	p.buildDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncStageResult(stage string, result ResultLabel) {
	if p == nil {
		return
	}
	p.stageResults.WithLabelValues(stage, string(result)).Inc()
}

func (p *PrometheusRecorder) IncBuildOutcome(outcome BuildOutcomeLabel) {
	if p == nil {
		return
	}
	p.buildOutcome.WithLabelValues(string(outcome)).Inc()
}

func (p *PrometheusRecorder) SetPageCount(pages, assets int) {
	if p == nil {
		return
	}
	p.pages.WithLabelValues("page").Set(float64(pages))
	p.pages.WithLabelValues("asset").Set(float64(assets))
}

func (p *PrometheusRecorder) ObserveImageTransform(format string, d time.Duration, cached bool) {
	if p == nil {
		return
	}
	cache := "miss"
	if cached {
		cache = "hit"
	}
	p.imageTransform.WithLabelValues(format, cache).Inc()
	if !cached {
		p.imageDuration.WithLabelValues(format).Observe(d.Seconds())
	}
}
