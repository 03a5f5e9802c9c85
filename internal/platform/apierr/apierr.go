package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies failures of the analysis pipeline.
type Kind string

const (
	KindConfiguration Kind = "configuration_error"
	KindUploadRead    Kind = "upload_read_error"
	KindUpstreamFetch Kind = "upstream_fetch_error"
	KindProcessing    Kind = "processing_error"
	KindKPI           Kind = "kpi_error"
	KindNarrative     Kind = "narrative_error"
)

// Status is the HTTP status a kind maps to when it reaches a client.
func (k Kind) Status() int {
	switch k {
	case KindUploadRead:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

type Error struct {
	Kind   Kind
	Stage  string
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := "api error"
	switch {
	case e.Err != nil:
		msg = e.Err.Error()
	case e.Code != "":
		msg = e.Code
	case e.Status != 0:
		msg = fmt.Sprintf("api error (%d)", e.Status)
	}
	if e.Stage != "" {
		return e.Stage + ": " + msg
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Stage tags err with the pipeline stage it came from.
func Stage(kind Kind, stage string, err error) *Error {
	return &Error{Kind: kind, Stage: stage, Status: kind.Status(), Code: string(kind), Err: err}
}

func Configuration(err error) *Error {
	return &Error{Kind: KindConfiguration, Status: KindConfiguration.Status(), Code: string(KindConfiguration), Err: err}
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	e, ok := As(err)
	return ok && e.Kind == kind
}
