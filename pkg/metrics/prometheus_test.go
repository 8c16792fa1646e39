package metrics

import (
	"bytes"
	"strings"
	"testing"
)

func TestWriteMetricsContainsExpectedSeries(t *testing.T) {
	c := NewCollector()
	c.RecordInsert()
	c.RecordFlush()

	exporter := NewPrometheusExporter(c)

	var buf bytes.Buffer
	err := exporter.WriteMetrics(&buf, EngineGauges{
		ActiveMemtableSizeBytes: 128,
		ActiveMemtableLen:       4,
		LogicalCount:            4,
		L0Count:                 2,
	})
	if err != nil {
		t.Fatalf("WriteMetrics: %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		"lsmkv_inserts_total 1",
		"lsmkv_flushes_total 1",
		"lsmkv_memtable_size_bytes 128",
		"lsmkv_l0_sstables 2",
		"# TYPE lsmkv_inserts_total counter",
		"# TYPE lsmkv_memtable_size_bytes gauge",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected output to contain %q, got:\n%s", want, out)
		}
	}
}
