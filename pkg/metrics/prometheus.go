package metrics

import (
	"fmt"
	"io"
)

// PrometheusExporter renders a Collector's counters, plus a caller-
// supplied engine Stats snapshot, in Prometheus text exposition format.
// There is no registry or HTTP handler here since this engine exposes no
// network surface to bind one to.
type PrometheusExporter struct {
	collector *Collector
	namespace string
}

// NewPrometheusExporter creates an exporter under the "lsmkv" namespace.
func NewPrometheusExporter(collector *Collector) *PrometheusExporter {
	return &PrometheusExporter{collector: collector, namespace: "lsmkv"}
}

// EngineGauges is the subset of engine.Stats the exporter renders as
// gauges; passed in by the caller so this package never imports
// pkg/engine (which already imports pkg/metrics would be a cycle).
type EngineGauges struct {
	ActiveMemtableSizeBytes int64
	ActiveMemtableLen       int
	LogicalCount            int64
	L0Count                 int
	L1Count                 int
	L2Count                 int
}

// WriteMetrics writes every counter and gauge in Prometheus text format.
func (pe *PrometheusExporter) WriteMetrics(w io.Writer, gauges EngineGauges) error {
	snap := pe.collector.Snapshot()

	if err := pe.writeCounter(w, "inserts_total", "Total number of insert operations", snap.InsertsTotal); err != nil {
		return err
	}
	if err := pe.writeCounter(w, "removes_total", "Total number of remove operations", snap.RemovesTotal); err != nil {
		return err
	}
	if err := pe.writeCounter(w, "finds_total", "Total number of find operations", snap.FindsTotal); err != nil {
		return err
	}
	if err := pe.writeCounter(w, "finds_found_total", "Total number of finds that returned a value", snap.FindsFound); err != nil {
		return err
	}
	if err := pe.writeCounter(w, "finds_tombstone_total", "Total number of finds shadowed by a tombstone", snap.FindsTombstone); err != nil {
		return err
	}
	if err := pe.writeCounter(w, "flushes_total", "Total number of memtable flushes", snap.FlushesTotal); err != nil {
		return err
	}
	if err := pe.writeCounter(w, "compactions_total", "Total number of level compactions", snap.CompactionsTotal); err != nil {
		return err
	}

	if err := pe.writeGauge(w, "memtable_size_bytes", "Active memtable size in bytes", float64(gauges.ActiveMemtableSizeBytes)); err != nil {
		return err
	}
	if err := pe.writeGauge(w, "memtable_entries", "Active memtable entry count", float64(gauges.ActiveMemtableLen)); err != nil {
		return err
	}
	if err := pe.writeGauge(w, "logical_record_count", "Approximate live record count", float64(gauges.LogicalCount)); err != nil {
		return err
	}
	if err := pe.writeGauge(w, "l0_sstables", "Number of SSTables in L0", float64(gauges.L0Count)); err != nil {
		return err
	}
	if err := pe.writeGauge(w, "l1_sstables", "Number of SSTables in L1", float64(gauges.L1Count)); err != nil {
		return err
	}
	if err := pe.writeGauge(w, "l2_sstables", "Number of SSTables in L2", float64(gauges.L2Count)); err != nil {
		return err
	}

	return nil
}

func (pe *PrometheusExporter) writeCounter(w io.Writer, name, help string, value uint64) error {
	metricName := pe.namespace + "_" + name
	_, err := fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s counter\n%s %d\n",
		metricName, help, metricName, metricName, value)
	return err
}

func (pe *PrometheusExporter) writeGauge(w io.Writer, name, help string, value float64) error {
	metricName := pe.namespace + "_" + name
	_, err := fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s gauge\n%s %g\n",
		metricName, help, metricName, metricName, value)
	return err
}
