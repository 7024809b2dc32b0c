package infra

import (
	"net/http"

	"github.com/pot-code/go-signin/internal/infrastructure/validate"
)

// RESTStandardError response error, clients read the errors list
type RESTStandardError struct {
	Code    int      `json:"code"`
	Title   string   `json:"title"`
	Errors  []string `json:"errors"`
	TraceID string   `json:"trace_id,omitempty"`
}

// NewRESTStandardError titled after the status code, messages go to errors
func NewRESTStandardError(code int, messages ...string) *RESTStandardError {
	if messages == nil {
		messages = []string{}
	}
	return &RESTStandardError{
		Code:   code,
		Title:  http.StatusText(code),
		Errors: messages,
	}
}

func (re RESTStandardError) Error() string {
	if len(re.Errors) > 0 {
		return re.Errors[0]
	}
	return re.Title
}

// SetTraceID .
func (re RESTStandardError) SetTraceID(traceID string) RESTStandardError {
	re.TraceID = traceID
	return re
}

// RESTValidationError standard validation error
type RESTValidationError struct {
	RESTStandardError
	InvalidParams []*validate.FieldError `json:"invalid_params"`
}

// NewRESTValidationError errors carries the reason of each invalid field
func NewRESTValidationError(code int, internal []*validate.FieldError) *RESTValidationError {
	return &RESTValidationError{
		RESTStandardError: *NewRESTStandardError(code, validate.Reasons(internal)...),
		InvalidParams:     internal,
	}
}

// SetTraceID .
func (rve RESTValidationError) SetTraceID(traceID string) RESTValidationError {
	rve.RESTStandardError.TraceID = traceID
	return rve
}
