// Package prometheus renders fitAuth session lifecycle metrics in Prometheus
// text exposition format.
//
// [NewPrometheusExporter] reads from a [fitAuth.Client] and exposes an
// [http.Handler]. Counters are named fitauth_*_total; the single histogram is
// fitauth_login_latency_seconds.
//
// Nothing is registered in a global registry; callers mount the Handler.
package prometheus
