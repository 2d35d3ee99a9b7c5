package http

import (
	ihttp "github.com/wesleyorama2/netwire/internal/http"
)

// Request is a request under construction. Build it with NewRequest and
// the chained With methods.
type Request = ihttp.Request

// Header is an ordered list of header fields.
type Header = ihttp.Header

// TimingInfo breaks the duration of a request into phases.
type TimingInfo = ihttp.TimingInfo

// NewRequest creates a request for method and target, e.g. "/users?id=1".
//
// Example:
//
//	req := http.NewRequest("POST", "/users").
//	    WithHeader("X-Trace", "abc").
//	    WithBody(map[string]interface{}{"name": "Ada"})
func NewRequest(method, target string) *Request {
	return ihttp.NewRequest(method, target)
}

// NewHeader builds a Header from name/value pairs.
func NewHeader(pairs ...string) Header {
	return ihttp.NewHeader(pairs...)
}
