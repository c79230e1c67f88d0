package prometheus

import (
	"net/http"
	"strconv"
	"strings"

	fitAuth "github.com/MrEthical07/fitAuth"
	"github.com/MrEthical07/fitAuth/metrics/export/internaldefs"
)

type metricsSource interface {
	MetricsSnapshot() fitAuth.MetricsSnapshot
	AuditDropped() uint64
}

// stateSource is optional; a source exposing it also gets the auth state gauge.
type stateSource interface {
	State() fitAuth.State
}

// PrometheusExporter renders session lifecycle metrics in Prometheus text
// exposition format.
type PrometheusExporter struct {
	source metricsSource
}

// NewPrometheusExporter reads from client.
func NewPrometheusExporter(client *fitAuth.Client) *PrometheusExporter {
	if client == nil {
		return &PrometheusExporter{}
	}
	return &PrometheusExporter{source: client}
}

// NewPrometheusExporterFromSource reads from any value exposing a snapshot
// and the audit drop count.
func NewPrometheusExporterFromSource(source metricsSource) *PrometheusExporter {
	return &PrometheusExporter{source: source}
}

// Handler serves Render over HTTP.
func (p *PrometheusExporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(p.Render()))
	})
}

// Render returns the current metrics, or "" when metrics are disabled and
// nothing was dropped.
func (p *PrometheusExporter) Render() string {
	if p == nil || p.source == nil {
		return ""
	}

	snapshot := p.source.MetricsSnapshot()
	dropped := p.source.AuditDropped()
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 && dropped == 0 {
		return ""
	}

	var b strings.Builder
	b.Grow(8192)

	for _, fam := range internaldefs.CounterFamilies {
		writeHeader(&b, fam.Name, fam.Help, "counter")
		for _, s := range fam.Series {
			writeSample(&b, fam.Name, s.Labels, strconv.FormatUint(snapshot.Counters[s.ID], 10))
		}
	}

	for _, def := range internaldefs.HistogramDefs {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snapshot.Histograms[def.ID]))
		writeHistogram(&b, def.Name, def.Help, cumulative)
	}

	writeHeader(&b, internaldefs.AuditDroppedName, "Audit events dropped because the queue was full.", "counter")
	writeSample(&b, internaldefs.AuditDroppedName, nil, strconv.FormatUint(dropped, 10))

	if ss, ok := p.source.(stateSource); ok {
		values := internaldefs.StateValues(ss.State().Status())
		writeHeader(&b, internaldefs.StateGaugeName, "Current auth state; the active state is 1.", "gauge")
		for i, s := range internaldefs.States {
			writeSample(&b, internaldefs.StateGaugeName,
				[]internaldefs.Label{{Key: "state", Value: s.String()}},
				strconv.FormatInt(values[i], 10))
		}
	}

	return b.String()
}

func writeHeader(b *strings.Builder, name, help, kind string) {
	b.WriteString("# HELP ")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(escapeHelp(help))
	b.WriteString("\n# TYPE ")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(kind)
	b.WriteByte('\n')
}

func writeSample(b *strings.Builder, name string, labels []internaldefs.Label, value string) {
	b.WriteString(name)
	if len(labels) > 0 {
		b.WriteByte('{')
		for i, l := range labels {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(l.Key)
			b.WriteString(`="`)
			b.WriteString(escapeLabel(l.Value))
			b.WriteByte('"')
		}
		b.WriteByte('}')
	}
	b.WriteByte(' ')
	b.WriteString(value)
	b.WriteByte('\n')
}

func writeHistogram(b *strings.Builder, name, help string, cumulative [8]uint64) {
	writeHeader(b, name, help, "histogram")
	for i, le := range internaldefs.HistogramBounds {
		writeSample(b, name+"_bucket", []internaldefs.Label{{Key: "le", Value: le}}, strconv.FormatUint(cumulative[i], 10))
	}
	writeSample(b, name+"_count", nil, strconv.FormatUint(cumulative[len(cumulative)-1], 10))
	// Snapshots carry no sum.
	writeSample(b, name+"_sum", nil, "0")
}

func escapeHelp(help string) string {
	help = strings.ReplaceAll(help, "\\", "\\\\")
	return strings.ReplaceAll(help, "\n", "\\n")
}

func escapeLabel(v string) string {
	v = strings.ReplaceAll(v, "\\", "\\\\")
	v = strings.ReplaceAll(v, "\"", "\\\"")
	return strings.ReplaceAll(v, "\n", "\\n")
}
