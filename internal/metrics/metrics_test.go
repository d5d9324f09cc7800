package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestMustRegisterExposesNoSamplesBeforeObservation(t *testing.T) {
	reg := prometheus.NewRegistry()
	MustRegister(reg)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if len(mfs) != 0 {
		t.Fatalf("expected no samples before any observation, got %d families", len(mfs))
	}
}

func TestObserveNMSIncrementsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	MustRegister(reg)

	ObserveNMS("dbnet", 10, 4)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}

	var gotPre, gotSuppressed float64
	for _, mf := range mfs {
		for _, m := range mf.Metric {
			for _, l := range m.Label {
				if l.GetName() != "engine" || l.GetValue() != "dbnet" {
					continue
				}
				switch mf.GetName() {
				case "idetgo_nms_detections_pre_total":
					gotPre = counterValue(m)
				case "idetgo_nms_suppressed_total":
					gotSuppressed = counterValue(m)
				}
			}
		}
	}
	if gotPre != 10 {
		t.Fatalf("detections_pre_total = %v, want 10", gotPre)
	}
	if gotSuppressed != 6 {
		t.Fatalf("suppressed_total = %v, want 6", gotSuppressed)
	}
}

func counterValue(m *dto.Metric) float64 {
	if m.Counter == nil {
		return 0
	}
	return m.Counter.GetValue()
}
