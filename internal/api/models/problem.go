package models

import (
	"encoding/json"
	"net/http"
)

// Problem is an RFC7807 body, served as application/problem+json.
type Problem struct {
	// Type is a URI reference that identifies the problem type.
	Type string `json:"type"`

	// Title is a short, human-readable summary of the problem type.
	Title string `json:"title"`

	// Status is the HTTP status code for this occurrence of the problem.
	Status int `json:"status"`

	// Detail is a human-readable explanation specific to this occurrence.
	Detail string `json:"detail,omitempty"`

	// Instance is a URI reference that identifies the specific occurrence.
	Instance string `json:"instance,omitempty"`

	// TraceID is the request trace identifier for debugging.
	TraceID string `json:"traceId"`

	// Errors contains structured field validation errors.
	Errors []FieldError `json:"errors,omitempty"`
}

// FieldError represents a validation error on a specific field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// ProblemType constants for standard error types.
const (
	ProblemTypeValidation       = "https://utm.skylane.dev/problems/validation-error"
	ProblemTypeUnauthorized     = "https://utm.skylane.dev/problems/unauthorized"
	ProblemTypeForbidden        = "https://utm.skylane.dev/problems/forbidden"
	ProblemTypeNotFound         = "https://utm.skylane.dev/problems/not-found"
	ProblemTypeConflict         = "https://utm.skylane.dev/problems/conflict"
	ProblemTypeUnsupportedMedia = "https://utm.skylane.dev/problems/unsupported-media-type"
	ProblemTypeTooManyRequests  = "https://utm.skylane.dev/problems/too-many-requests"
	ProblemTypeInternal         = "https://utm.skylane.dev/problems/internal-error"
	ProblemTypeUnavailable      = "https://utm.skylane.dev/problems/service-unavailable"
	ProblemTypeTLSRequired      = "https://utm.skylane.dev/problems/tls-required"
)

var problemTitles = map[string]string{
	ProblemTypeValidation:       "Validation error",
	ProblemTypeUnauthorized:     "Unauthorized",
	ProblemTypeForbidden:        "Forbidden",
	ProblemTypeNotFound:         "Not found",
	ProblemTypeConflict:         "Conflict",
	ProblemTypeUnsupportedMedia: "Unsupported media type",
	ProblemTypeTooManyRequests:  "Too many requests",
	ProblemTypeInternal:         "Internal server error",
	ProblemTypeUnavailable:      "Service unavailable",
	ProblemTypeTLSRequired:      "TLS required",
}

// NewProblem creates a Problem of a known type. Unknown types get the
// generic status text as title.
func NewProblem(problemType string, status int, traceID, detail string) *Problem {
	title, ok := problemTitles[problemType]
	if !ok {
		title = http.StatusText(status)
	}
	return &Problem{
		Type:    problemType,
		Title:   title,
		Status:  status,
		Detail:  detail,
		TraceID: traceID,
	}
}

// WithInstance sets the request path the problem occurred on.
func (p *Problem) WithInstance(instance string) *Problem {
	p.Instance = instance
	return p
}

// WithErrors attaches field errors.
func (p *Problem) WithErrors(errs []FieldError) *Problem {
	p.Errors = errs
	return p
}

// Write writes the Problem as JSON to the ResponseWriter.
func (p *Problem) Write(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.Header().Set("X-Request-Id", p.TraceID)
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

func NewBadRequest(traceID, detail string, errs []FieldError) *Problem {
	return NewProblem(ProblemTypeValidation, http.StatusBadRequest, traceID, detail).WithErrors(errs)
}

func NewUnauthorized(traceID, detail string) *Problem {
	return NewProblem(ProblemTypeUnauthorized, http.StatusUnauthorized, traceID, detail)
}

func NewForbidden(traceID, detail string) *Problem {
	return NewProblem(ProblemTypeForbidden, http.StatusForbidden, traceID, detail)
}

func NewNotFound(traceID, detail string) *Problem {
	return NewProblem(ProblemTypeNotFound, http.StatusNotFound, traceID, detail)
}

func NewConflict(traceID, detail string) *Problem {
	return NewProblem(ProblemTypeConflict, http.StatusConflict, traceID, detail)
}

func NewTooManyRequests(traceID, detail string) *Problem {
	return NewProblem(ProblemTypeTooManyRequests, http.StatusTooManyRequests, traceID, detail)
}

func NewInternalError(traceID, detail string) *Problem {
	return NewProblem(ProblemTypeInternal, http.StatusInternalServerError, traceID, detail)
}

func NewServiceUnavailable(traceID, detail string) *Problem {
	return NewProblem(ProblemTypeUnavailable, http.StatusServiceUnavailable, traceID, detail)
}
