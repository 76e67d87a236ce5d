package handlers

// Metadata key constants visible to typed handlers.
const (
	// MetadataKeyCorrelationID tracks a request across both processes.
	MetadataKeyCorrelationID = "ipc_correlation_id"

	// MetadataKeyTraceID stores a distributed tracing id.
	MetadataKeyTraceID = "trace_id"

	// MetadataKeySpanID stores a distributed tracing span id.
	MetadataKeySpanID = "span_id"
)
