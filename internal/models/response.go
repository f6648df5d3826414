package models

// ResponseStatus carries the outcome of a request. Code always equals the
// HTTP status the response is sent with.
type ResponseStatus struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Reason  string `json:"reason,omitempty"`
}

// DefaultResponseBody is the envelope of every API response
type DefaultResponseBody struct {
	Data   interface{}    `json:"data"`
	Status ResponseStatus `json:"status"`
}

// NewResponse builds an envelope
func NewResponse(code int, message string, data interface{}) DefaultResponseBody {
	return DefaultResponseBody{Data: data, Status: ResponseStatus{Code: code, Message: message}}
}

// NewErrorResponse builds an envelope without data. Reason is a stable
// machine readable code such as INVALID_TOKEN.
func NewErrorResponse(code int, message, reason string) DefaultResponseBody {
	return DefaultResponseBody{Status: ResponseStatus{Code: code, Message: message, Reason: reason}}
}
