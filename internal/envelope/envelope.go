// Package envelope builds the HATEOAS-style response shapes from §6:
// a success envelope wrapping "data" and a "_links" self link, and an
// error envelope wrapping the apperr taxonomy.
package envelope

import "rserv/internal/apperr"

// Link is a single HATEOAS link.
type Link struct {
	Href string `json:"href"`
}

// Links is the "_links" block attached to every response.
type Links struct {
	Self Link `json:"self"`
}

// Success wraps a successful result.
type Success struct {
	Data  interface{} `json:"data"`
	Links Links       `json:"_links"`
}

// ErrorBody is the "error" block of an error response.
type ErrorBody struct {
	Message    string          `json:"message"`
	StatusCode int             `json:"status_code"`
	Details    []apperr.Detail `json:"details,omitempty"`
}

// ErrorEnvelope is the full error response shape.
type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
	Links Links     `json:"_links"`
}

// NewSuccess wraps data with a self link.
func NewSuccess(data interface{}, selfHref string) Success {
	return Success{Data: data, Links: Links{Self: Link{Href: selfHref}}}
}

// NewError renders an *apperr.Error into the error envelope shape.
func NewError(err *apperr.Error, selfHref string) ErrorEnvelope {
	return ErrorEnvelope{
		Error: ErrorBody{
			Message:    err.Message,
			StatusCode: err.StatusCode,
			Details:    err.Details,
		},
		Links: Links{Self: Link{Href: selfHref}},
	}
}
