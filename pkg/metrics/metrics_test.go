package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMRCCountersIncrement(t *testing.T) {
	before := testutil.ToFloat64(MRCHits)
	MRCHits.Inc()
	after := testutil.ToFloat64(MRCHits)
	if after != before+1 {
		t.Fatalf("MRCHits = %v, want %v", after, before+1)
	}
}

func TestDepotKeyHarvestErrorsByClass(t *testing.T) {
	DepotKeyHarvestErrors.WithLabelValues("timeout").Inc()
	got := testutil.ToFloat64(DepotKeyHarvestErrors.WithLabelValues("timeout"))
	if got < 1 {
		t.Fatalf("timeout class counter = %v, want >= 1", got)
	}
}
