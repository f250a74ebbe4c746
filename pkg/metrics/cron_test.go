package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestCronJobMetricsCountsPerJob(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)

	m.IncSuccess("cashback-expiry")
	m.IncSuccess("cashback-expiry")
	m.IncFailure("wallet-reconcile")
	m.ObserveDuration("cashback-expiry", 1500*time.Millisecond)

	require.Equal(t, 2.0, testutil.ToFloat64(m.success.WithLabelValues("cashback-expiry")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.failure.WithLabelValues("wallet-reconcile")))
	require.Equal(t, 0.0, testutil.ToFloat64(m.failure.WithLabelValues("cashback-expiry")))

	mfs, err := reg.Gather()
	require.NoError(t, err)
	hist := findMetricFamily(mfs, "orderledger_cron_job_duration_seconds")
	require.NotNil(t, hist)
	require.InDelta(t, 1.5, hist.GetMetric()[0].GetHistogram().GetSampleSum(), 0.0001)
}

func TestCronJobMetricsLabelsUnnamedJobs(t *testing.T) {
	m := NewCronJobMetrics(prometheus.NewRegistry())
	m.IncSuccess("")
	require.Equal(t, 1.0, testutil.ToFloat64(m.success.WithLabelValues("unknown")))

	var none *CronJobMetrics
	none.IncSuccess("x")
	NewCronJobMetrics(nil).IncFailure("x")
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
