package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestIncDropIncrementsLabeledCounter(t *testing.T) {
	r := NewRegistry()
	r.IncDrop(1, "bad_payload")
	r.IncDrop(1, "bad_payload")
	r.IncDrop(2, "stale_timestamp")

	require.Equal(t, float64(2), testutil.ToFloat64(r.drops.WithLabelValues("1", "bad_payload")))
	require.Equal(t, float64(1), testutil.ToFloat64(r.drops.WithLabelValues("2", "stale_timestamp")))
}

func TestSetSchedulerBudgetRecordsGauge(t *testing.T) {
	r := NewRegistry()
	r.SetSchedulerBudget(0, 3, 4096)
	require.Equal(t, float64(4096), testutil.ToFloat64(r.schedBudget.WithLabelValues("0", "3")))
}

func TestSetPTPOffsetAndState(t *testing.T) {
	r := NewRegistry()
	r.SetPTPOffset(-1500)
	r.SetPTPState(2)
	require.Equal(t, float64(-1500), testutil.ToFloat64(r.ptpOffset))
	require.Equal(t, float64(2), testutil.ToFloat64(r.ptpState))
}
