package errors

const (
	HttpInternalError         = "internal_error"
	HttpInvalidJsonError      = "invalid_json"
	HttpValidationError       = "validation_failed"
	HttpInvalidSubscription   = "invalid_subscription"
	HttpUnknownSubscription   = "unknown_subscription"
	HttpPayloadTooLargeError  = "payload_too_large"
	HttpInvalidParameterError = "invalid_parameter"
	HttpServiceUnavailable    = "service_unavailable"
)

// ErrorResponse is the error response body for ingestion and stream errors.
type ErrorResponse struct {
	ErrorType string      `json:"error_type"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
}
