package prometrics

import (
	"testing"

	"github.com/Zhima-Mochi/bookstore-orders/internal/observability"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func family(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	t.Fatalf("metric %s not gathered", name)
	return nil
}

func TestCounterIsRegisteredOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg, "", "")

	first := r.Counter("widgets_total", "Widgets.", "kind")
	second := r.Counter("widgets_total", "Widgets.", "kind")

	first.Add(1, observability.L("kind", "a"))
	second.Bind(observability.L("kind", "a")).Add(2)

	f := family(t, reg, "widgets_total")
	require.Len(t, f.GetMetric(), 1)
	assert.InDelta(t, 3.0, f.GetMetric()[0].GetCounter().GetValue(), 1e-9)
}

func TestInstrumentsCoverEveryMetricKey(t *testing.T) {
	reg := prometheus.NewRegistry()
	counters, histograms := Instruments(New(reg, "", ""))

	for _, key := range []observability.MetricKey{
		observability.MUsecaseRequests,
		observability.MHTTPRequests,
		observability.MExternalRequests,
		observability.MStockRetries,
		observability.MCheckoutCompensations,
	} {
		assert.Contains(t, counters, key)
	}
	for _, key := range []observability.MetricKey{
		observability.MUsecaseDuration,
		observability.MHTTPRequestDuration,
		observability.MExternalRequestDuration,
	} {
		assert.Contains(t, histograms, key)
	}

	histograms[observability.MUsecaseDuration].Bind(observability.L("use_case", "Checkout")).Observe(0.01)
	f := family(t, reg, "usecase_duration_seconds")
	assert.EqualValues(t, 1, f.GetMetric()[0].GetHistogram().GetSampleCount())
}

func TestMismatchedLabelsAreDropped(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg, "", "").Counter("gadgets_total", "Gadgets.", "kind")

	assert.NotPanics(t, func() {
		c.Add(1, observability.L("colour", "red"))
		c.Bind().Add(1)
	})
	c.Add(1, observability.L("kind", "b"))

	f := family(t, reg, "gadgets_total")
	require.Len(t, f.GetMetric(), 1)
	assert.InDelta(t, 1.0, f.GetMetric()[0].GetCounter().GetValue(), 1e-9)
}
