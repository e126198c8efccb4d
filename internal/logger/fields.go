package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// Standard tracing fields. These are propagated through the call chain.
const (
	// FieldRequestID is the HTTP request ID (UUID)
	FieldRequestID = "request_id"

	// FieldReportID is the analysis report (pipeline job) ID
	FieldReportID = "report_id"

	// FieldBookID is the manuscript ID
	FieldBookID = "book_id"

	// FieldStage is the pipeline stage name
	FieldStage = "stage"

	// FieldComponent is the component/module name
	FieldComponent = "component"
)

// Standard metric fields, used for aggregation and alerting.
const (
	// FieldDurationMs is the execution duration in milliseconds
	FieldDurationMs = "duration_ms"

	// FieldCount is a generic count field
	FieldCount = "count"

	// FieldStatus is the operation status
	FieldStatus = "status"
)
