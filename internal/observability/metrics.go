package observability

// Metric keys and the labels each series is reported with.
const (
	MUsecaseRequests MetricKey = "usecase_requests_total"   // use_case, outcome
	MUsecaseDuration MetricKey = "usecase_duration_seconds" // use_case

	MHTTPRequests        MetricKey = "http_requests_total"           // method, route, status
	MHTTPRequestDuration MetricKey = "http_request_duration_seconds" // method, route, status

	// payment gateway calls and outbox publishes
	MExternalRequests        MetricKey = "external_requests_total"           // peer, endpoint, outcome
	MExternalRequestDuration MetricKey = "external_request_duration_seconds" // peer, endpoint

	MStockRetries          MetricKey = "stock_reservation_retries_total" // operation
	MCheckoutCompensations MetricKey = "checkout_compensations_total"    // step
)
