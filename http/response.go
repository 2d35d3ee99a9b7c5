package http

import (
	jsoniter "github.com/json-iterator/go"

	ihttp "github.com/wesleyorama2/netwire/internal/http"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Response is a complete reply.
type Response struct {
	// StatusCode is the HTTP status code (e.g., 200, 404, 500)
	StatusCode int

	// Status is the status code and text (e.g., "200 OK")
	Status string

	// Proto is the protocol of the reply, e.g. "HTTP/1.1"
	Proto string

	// Header contains the reply header fields in arrival order
	Header Header

	// Body is the decoded reply body
	Body []byte

	// Timing contains the phases of the request
	Timing TimingInfo
}

func newResponse(reply *ihttp.ReplyHeader, body []byte, timing TimingInfo) *Response {
	return &Response{
		StatusCode: reply.StatusCode,
		Status:     reply.Status(),
		Proto:      reply.Proto,
		Header:     reply.Header.Clone(),
		Body:       body,
		Timing:     timing,
	}
}

// GetBodyAsString returns the body as a string.
func (r *Response) GetBodyAsString() string {
	return string(r.Body)
}

// GetBodyAsJSON unmarshals the body into v.
//
// Example:
//
//	var users []User
//	if err := resp.GetBodyAsJSON(&users); err != nil {
//	    log.Fatal(err)
//	}
func (r *Response) GetBodyAsJSON(v interface{}) error {
	return json.Unmarshal(r.Body, v)
}

// GetHeader returns the first value of the named header, or "".
func (r *Response) GetHeader(key string) string {
	return r.Header.Get(key)
}

// IsSuccess returns true if the response status code is in the 2xx range.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// IsRedirect returns true if the response status code is in the 3xx range.
func (r *Response) IsRedirect() bool {
	return r.StatusCode >= 300 && r.StatusCode < 400
}

// IsClientError returns true if the response status code is in the 4xx range.
func (r *Response) IsClientError() bool {
	return r.StatusCode >= 400 && r.StatusCode < 500
}

// IsServerError returns true if the response status code is in the 5xx range.
func (r *Response) IsServerError() bool {
	return r.StatusCode >= 500 && r.StatusCode < 600
}

// IsError returns true if the response status code indicates an error (4xx or 5xx).
func (r *Response) IsError() bool {
	return r.IsClientError() || r.IsServerError()
}
