package telemetry

// Span names.
const (
	SpanDashboard       = "dashboard.assemble"
	SpanMediaUpload     = "media.upload"
	SpanMediaDerivative = "media.derivatives"
	SpanChartCompute    = "charts.compute"
)
