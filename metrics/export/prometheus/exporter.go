// Package prometheus renders engine counters in Prometheus text exposition
// format. It reads snapshots only; metric storage lives in the root
// package.
package prometheus

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/canvasforge/authcore"
)

// Source is anything that can produce a metrics snapshot, normally an
// *authcore.Engine.
type Source interface {
	MetricsSnapshot() authcore.MetricsSnapshot
	AuditDropped() uint64
}

// Exporter renders metrics from a Source.
type Exporter struct {
	source Source
}

// NewExporter returns an Exporter over the given source.
func NewExporter(source Source) *Exporter {
	return &Exporter{source: source}
}

// Handler returns an http.Handler serving the current metrics.
func (e *Exporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(e.Render()))
	})
}

// Render writes all counters in text exposition format.
func (e *Exporter) Render() string {
	if e == nil || e.source == nil {
		return ""
	}

	snapshot := e.source.MetricsSnapshot()

	var b strings.Builder
	b.Grow(4096)

	for _, id := range authcore.MetricIDs() {
		writeCounter(&b, authcore.MetricName(id), snapshot.Counters[id])
	}
	writeCounter(&b, "authcore_audit_dropped_total", e.source.AuditDropped())

	return b.String()
}

func writeCounter(b *strings.Builder, name string, value uint64) {
	if name == "" {
		return
	}
	b.WriteString("# TYPE ")
	b.WriteString(name)
	b.WriteString(" counter\n")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(strconv.FormatUint(value, 10))
	b.WriteByte('\n')
}
