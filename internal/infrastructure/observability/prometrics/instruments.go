package prometrics

import "github.com/Zhima-Mochi/bookstore-orders/internal/observability"

// Instruments registers every metric the service emits and returns them keyed for the
// observability provider.
func Instruments(r Registry) (map[observability.MetricKey]observability.Counter, map[observability.MetricKey]observability.Histogram) {
	counters := map[observability.MetricKey]observability.Counter{
		observability.MUsecaseRequests: r.Counter(string(observability.MUsecaseRequests),
			"Total number of use case invocations.", "use_case", "outcome"),
		observability.MHTTPRequests: r.Counter(string(observability.MHTTPRequests),
			"Total number of HTTP requests.", "method", "route", "status"),
		observability.MExternalRequests: r.Counter(string(observability.MExternalRequests),
			"Calls to external dependencies.", "peer", "endpoint", "outcome"),
		observability.MStockRetries: r.Counter(string(observability.MStockRetries),
			"Stock reservation attempts retried after losing a race.", "operation"),
		observability.MCheckoutCompensations: r.Counter(string(observability.MCheckoutCompensations),
			"Checkout steps that were compensated or deferred.", "step"),
	}
	histograms := map[observability.MetricKey]observability.Histogram{
		observability.MUsecaseDuration: r.Histogram(string(observability.MUsecaseDuration),
			"Duration of use case execution in seconds.", nil, "use_case"),
		observability.MHTTPRequestDuration: r.Histogram(string(observability.MHTTPRequestDuration),
			"Duration of HTTP requests in seconds.", nil, "method", "route", "status"),
		observability.MExternalRequestDuration: r.Histogram(string(observability.MExternalRequestDuration),
			"Duration of calls to external dependencies in seconds.", nil, "peer", "endpoint"),
	}
	return counters, histograms
}
