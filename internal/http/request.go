package http

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Request represents an HTTP request
type Request struct {
	Method      string
	Target      string
	QueryParams url.Values
	Header      Header
	Body        []byte
	bodyErr     error
}

// NewRequest creates a new HTTP request. An empty target means "/".
func NewRequest(method, target string) *Request {
	return &Request{
		Method:      strings.ToUpper(method),
		Target:      target,
		QueryParams: make(url.Values),
	}
}

// WithHeader adds a header to the request
func (r *Request) WithHeader(key, value string) *Request {
	r.Header.Add(key, value)
	return r
}

// WithQueryParam adds a query parameter to the request
func (r *Request) WithQueryParam(key, value string) *Request {
	r.QueryParams.Add(key, value)
	return r
}

// WithQueryParams adds multiple query parameters to the request
func (r *Request) WithQueryParams(params map[string]string) *Request {
	for key, value := range params {
		r.QueryParams.Add(key, value)
	}
	return r
}

// WithBody sets the body of the request. Strings, byte slices and readers
// are sent as they are; any other value is encoded as JSON and, unless the
// request already has one, gets a JSON Content-Type.
func (r *Request) WithBody(body interface{}) *Request {
	r.bodyErr = nil
	switch b := body.(type) {
	case nil:
		r.Body = nil
	case string:
		r.Body = []byte(b)
	case []byte:
		r.Body = b
	case io.Reader:
		r.Body, r.bodyErr = io.ReadAll(b)
	default:
		r.Body, r.bodyErr = json.Marshal(b)
		if r.bodyErr == nil && !r.Header.Has("Content-Type") {
			r.Header.Set("Content-Type", "application/json")
		}
	}
	return r
}

// Clone returns a copy that can be sent independently of r.
func (r *Request) Clone() *Request {
	c := *r
	c.Header = r.Header.Clone()
	c.QueryParams = make(url.Values, len(r.QueryParams))
	for k, v := range r.QueryParams {
		c.QueryParams[k] = append([]string(nil), v...)
	}
	return &c
}

// RequestURI returns the target with the query parameters appended.
func (r *Request) RequestURI() string {
	target := r.Target
	if target == "" {
		target = "/"
	}
	if len(r.QueryParams) == 0 {
		return target
	}
	sep := "?"
	if strings.Contains(target, "?") {
		sep = "&"
	}
	return target + sep + r.QueryParams.Encode()
}

func (r *Request) hasBody() bool {
	if len(r.Body) > 0 {
		return true
	}
	switch r.Method {
	case "POST", "PUT", "PATCH":
		return true
	}
	return false
}

// requestContext carries what the client adds to every request.
type requestContext struct {
	host     string
	defaults Header
	auth     string
}

// writeTo serializes the request line, headers and body. Client defaults
// are sent unless the request sets the same field itself.
func (r *Request) writeTo(w io.Writer, rc requestContext) error {
	if r.bodyErr != nil {
		return fmt.Errorf("error encoding request body: %w", r.bodyErr)
	}
	if err := r.check(rc); err != nil {
		return err
	}
	method := r.Method
	if method == "" {
		method = "GET"
	}

	var buf bytes.Buffer
	buf.WriteString(method)
	buf.WriteByte(' ')
	buf.WriteString(r.RequestURI())
	buf.WriteString(" HTTP/1.1\r\n")

	if !r.Header.Has("Host") {
		writeField(&buf, "Host", rc.host)
	}
	for _, f := range rc.defaults.Fields() {
		if !r.Header.Has(f.Name) {
			writeField(&buf, f.Name, f.Value)
		}
	}
	for _, f := range r.Header.Fields() {
		writeField(&buf, f.Name, f.Value)
	}
	if rc.auth != "" && !r.Header.Has("Authorization") {
		writeField(&buf, "Authorization", rc.auth)
	}
	if r.hasBody() && !r.Header.Has("Content-Length") {
		writeField(&buf, "Content-Length", strconv.Itoa(len(r.Body)))
	}
	buf.WriteString("\r\n")
	buf.Write(r.Body)

	_, err := w.Write(buf.Bytes())
	return err
}

// check rejects a method, target or header field that would split the
// request line or the header block.
func (r *Request) check(rc requestContext) error {
	if strings.ContainsAny(r.Method, " \t\r\n\x00") {
		return &UsageError{Op: "write request", Msg: fmt.Sprintf("invalid method %q", r.Method)}
	}
	if target := r.RequestURI(); strings.ContainsAny(target, " \t\r\n\x00") {
		return &UsageError{Op: "write request", Msg: fmt.Sprintf("invalid target %q", target)}
	}
	for _, h := range []Header{rc.defaults, r.Header} {
		for _, f := range h.Fields() {
			if err := checkField(f.Name, f.Value); err != nil {
				return err
			}
		}
	}
	if err := checkField("Host", rc.host); err != nil {
		return err
	}
	return checkField("Authorization", rc.auth)
}

func checkField(name, value string) error {
	if name == "" || strings.ContainsAny(name, ": \t\r\n\x00") {
		return &UsageError{Op: "write request", Msg: fmt.Sprintf("invalid header name %q", name)}
	}
	if strings.ContainsAny(value, "\r\n\x00") {
		return &UsageError{Op: "write request", Msg: fmt.Sprintf("invalid value for header %s", name)}
	}
	return nil
}

func writeField(buf *bytes.Buffer, name, value string) {
	buf.WriteString(name)
	buf.WriteString(": ")
	buf.WriteString(value)
	buf.WriteString("\r\n")
}
