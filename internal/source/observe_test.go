package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestExpvarRecorderAggregatesPerOperation(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	ctx := context.Background()

	rec.Observe(ctx, "load_core", true, 20*time.Millisecond)
	rec.Observe(ctx, "load_core", true, 30*time.Millisecond)
	rec.Observe(ctx, "load_core", false, 5*time.Millisecond)
	rec.Observe(ctx, "", true, time.Millisecond) // ignored

	snap := rec.Snapshot()
	if got := snap.DurationsMS["load_core"]; got != 55 {
		t.Fatalf("durations = %v, want 55", got)
	}
	if snap.Results["load_core"]["success"] != 2 || snap.Results["load_core"]["error"] != 1 {
		t.Fatalf("results = %+v", snap.Results)
	}
	if len(snap.Results) != 1 {
		t.Fatalf("empty operation must not be recorded: %+v", snap.Results)
	}
	if rec.Name() == "" {
		t.Fatal("auto-generated name must not be empty")
	}
}

func TestExpvarRecorderSnapshotIsIsolated(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	rec.Observe(context.Background(), "refresh_source", true, time.Millisecond)

	snap := rec.Snapshot()
	snap.Results["refresh_source"]["success"] = 99
	snap.DurationsMS["refresh_source"] = 99

	again := rec.Snapshot()
	if again.Results["refresh_source"]["success"] != 1 {
		t.Fatalf("snapshot mutation leaked into the recorder: %+v", again.Results)
	}
}

func TestPrometheusRecorderExportsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusRecorder(reg)
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	ctx := context.Background()
	rec.Observe(ctx, "link_source", true, 10*time.Millisecond)
	rec.Observe(ctx, "link_source", false, 10*time.Millisecond)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	byName := map[string]bool{}
	for _, fam := range families {
		byName[fam.GetName()] = true
		if fam.GetName() != "tokencore_source_operation_results_total" {
			continue
		}
		var success, errCount float64
		for _, m := range fam.GetMetric() {
			status := ""
			for _, label := range m.GetLabel() {
				if label.GetName() == "status" {
					status = label.GetValue()
				}
			}
			switch status {
			case "success":
				success = m.GetCounter().GetValue()
			case "error":
				errCount = m.GetCounter().GetValue()
			}
		}
		if success != 1 || errCount != 1 {
			t.Fatalf("counters = success %v, error %v", success, errCount)
		}
	}
	for _, name := range []string{
		"tokencore_source_operation_duration_seconds",
		"tokencore_source_operation_results_total",
	} {
		if !byName[name] {
			t.Fatalf("metric %s not exported; got %v", name, byName)
		}
	}
}

func TestPrometheusRecorderRejectsDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewPrometheusRecorder(reg); err != nil {
		t.Fatalf("first registration: %v", err)
	}
	if _, err := NewPrometheusRecorder(reg); err == nil {
		t.Fatal("second registration on the same registry must fail")
	}
}

func TestJSONTracerEncodesSpans(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewJSONTracer(&buf)
	ctx := context.Background()

	_, span := tracer.Start(ctx, "load_core")
	span.End(nil)
	_, span = tracer.Start(ctx, "refresh_source")
	span.End(errors.New("upstream 502"))

	entries := tracer.Entries()
	if len(entries) != 2 {
		t.Fatalf("entries = %+v", entries)
	}
	if entries[0].Operation != "load_core" || entries[0].Status != "success" || entries[0].Error != "" {
		t.Fatalf("first entry = %+v", entries[0])
	}
	if entries[1].Status != "error" || entries[1].Error != "upstream 502" {
		t.Fatalf("second entry = %+v", entries[1])
	}
	if entries[1].EndedAt.Before(entries[1].StartedAt) {
		t.Fatalf("span interval inverted: %+v", entries[1])
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 JSON lines, got %d: %q", len(lines), buf.String())
	}
	var decoded JSONTraceEntry
	if err := json.Unmarshal([]byte(lines[1]), &decoded); err != nil {
		t.Fatalf("decode line: %v", err)
	}
	if decoded.Operation != "refresh_source" || decoded.Error != "upstream 502" {
		t.Fatalf("decoded = %+v", decoded)
	}
}

func TestJSONTracerNilWriterRetainsEntries(t *testing.T) {
	tracer := NewJSONTracer(nil)
	_, span := tracer.Start(context.Background(), "activate_theme")
	span.End(nil)
	if got := tracer.Entries(); len(got) != 1 || got[0].Operation != "activate_theme" {
		t.Fatalf("entries = %+v", got)
	}
}
