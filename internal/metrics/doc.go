// Package metrics provides build observability for sitebuilder.
//
// The engine and the image plugins receive a Recorder. NoopRecorder is the default;
// the serve command swaps in a PrometheusRecorder and exposes it through HTTPHandler:
//
//	reg := prometheus.NewRegistry()
//	rec := metrics.NewPrometheusRecorder(reg)
//	s := siteconfig.FromConfig(cfg).WithRecorder(rec)
//	mux.Handle("/metrics", metrics.HTTPHandler(reg))
package metrics
