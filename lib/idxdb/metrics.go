package idxdb

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/puzpuzpuz/xsync/v3"
)

// opMetrics are the metrics of one operation on one store
type opMetrics struct {
	ok       *metrics.Counter
	failed   *metrics.Counter
	duration *metrics.Histogram
}

var (
	opCache      = xsync.NewMapOf[string, *opMetrics]()
	labelEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)
)

func metricsFor(op, store string) *opMetrics {
	m, _ := opCache.LoadOrCompute(op+"\x00"+store, func() *opMetrics {
		labels := fmt.Sprintf(`op=%q,store="%s"`, op, labelEscaper.Replace(store))
		return &opMetrics{
			ok:       metrics.GetOrCreateCounter(`idxdb_operations_total{` + labels + `,result="ok"}`),
			failed:   metrics.GetOrCreateCounter(`idxdb_operations_total{` + labels + `,result="error"}`),
			duration: metrics.GetOrCreateHistogram(`idxdb_operation_duration_seconds{` + labels + `}`),
		}
	})
	return m
}

// observe records the outcome of an operation that started at start
func observe(op, store string, start time.Time, err error) {
	m := metricsFor(op, store)
	m.duration.UpdateDuration(start)
	if err != nil {
		m.failed.Inc()
		return
	}
	m.ok.Inc()
}

// WriteMetrics writes the operation metrics in Prometheus text format
func WriteMetrics(w io.Writer) {
	metrics.WritePrometheus(w, false)
}
