package validate

import "strings"

// FieldError field error to be nested by other errors
type FieldError struct {
	Domain string `json:"domain"`
	Reason string `json:"reason"`
}

// NewFieldError create new field error
func NewFieldError(domain string, reason string) *FieldError {
	return &FieldError{domain, reason}
}

// Validator .
type Validator interface {
	Struct(s interface{}) []*FieldError
}

// Reasons flattens field errors into their messages, keeping order
func Reasons(errs []*FieldError) []string {
	result := make([]string, 0, len(errs))
	for _, e := range errs {
		if reason := strings.TrimSpace(e.Reason); reason != "" {
			result = append(result, reason)
		}
	}
	return result
}
