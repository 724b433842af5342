package dto

// IngestHeartbeatsResponse acknowledges acceptance for deferred processing.
// The count echoes how many heartbeats were enqueued, not aggregated.
type IngestHeartbeatsResponse struct {
	Count int `json:"count"`
}

type FieldErrorResponse struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrorResponse itemizes every schema violation so clients can fix
// a payload in one round trip.
type ValidationErrorResponse struct {
	Error  string               `json:"error"`
	Fields []FieldErrorResponse `json:"fields"`
}
