package http

import (
	"fmt"
	"time"
)

// ReplyHeader is the status line and header block of a reply.
type ReplyHeader struct {
	Proto      string
	Major      int
	Minor      int
	StatusCode int
	StatusText string
	Header     Header

	// ContentLength is the announced body size, or -1 when the body is
	// chunked or runs until the server closes the connection.
	ContentLength int64
	Chunked       bool
}

// Status returns the status code and text, e.g. "200 OK".
func (r *ReplyHeader) Status() string {
	if r.StatusText == "" {
		return fmt.Sprintf("%d", r.StatusCode)
	}
	return fmt.Sprintf("%d %s", r.StatusCode, r.StatusText)
}

// GetHeader returns the value of the specified header
func (r *ReplyHeader) GetHeader(key string) string {
	return r.Header.Get(key)
}

// IsSuccess returns true if the response status code is in the 2xx range
func (r *ReplyHeader) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// IsRedirect returns true if the response status code is in the 3xx range
func (r *ReplyHeader) IsRedirect() bool {
	return r.StatusCode >= 300 && r.StatusCode < 400
}

// IsClientError returns true if the response status code is in the 4xx range
func (r *ReplyHeader) IsClientError() bool {
	return r.StatusCode >= 400 && r.StatusCode < 500
}

// IsServerError returns true if the response status code is in the 5xx range
func (r *ReplyHeader) IsServerError() bool {
	return r.StatusCode >= 500 && r.StatusCode < 600
}

// KeepAlive reports whether the server allows another request on the same
// connection.
func (r *ReplyHeader) KeepAlive() bool {
	if r.Header.hasToken("Connection", "close") {
		return false
	}
	if r.Major == 1 && r.Minor == 0 {
		return r.Header.hasToken("Connection", "keep-alive")
	}
	return r.Major >= 1
}

// framing tells how the body of a reply is delimited.
type framing int

const (
	framingNone framing = iota
	framingLength
	framingChunked
	framingClose
)

func (f framing) String() string {
	switch f {
	case framingNone:
		return "none"
	case framingLength:
		return "content-length"
	case framingChunked:
		return "chunked"
	case framingClose:
		return "until-close"
	}
	return "unknown"
}

func (r *ReplyHeader) framing(method string) framing {
	switch {
	case method == "HEAD":
		return framingNone
	case r.StatusCode >= 100 && r.StatusCode < 200, r.StatusCode == 204, r.StatusCode == 304:
		return framingNone
	case r.Chunked:
		return framingChunked
	case r.ContentLength == 0:
		return framingNone
	case r.ContentLength > 0:
		return framingLength
	}
	return framingClose
}

// TimingInfo contains detailed timing information for the last request
type TimingInfo struct {
	StartTime           time.Time
	DNSLookupTime       time.Duration
	TCPConnectTime      time.Duration
	TimeToFirstByte     time.Duration
	ContentTransferTime time.Duration
	TotalTime           time.Duration
}

// GetDNSLookupTimeMillis returns the DNS lookup time in milliseconds
func (t TimingInfo) GetDNSLookupTimeMillis() int64 {
	return t.DNSLookupTime.Milliseconds()
}

// GetTCPConnectTimeMillis returns the TCP connection time in milliseconds
func (t TimingInfo) GetTCPConnectTimeMillis() int64 {
	return t.TCPConnectTime.Milliseconds()
}

// GetTimeToFirstByteMillis returns the time to first byte in milliseconds
func (t TimingInfo) GetTimeToFirstByteMillis() int64 {
	return t.TimeToFirstByte.Milliseconds()
}

// GetContentTransferTimeMillis returns the content transfer time in milliseconds
func (t TimingInfo) GetContentTransferTimeMillis() int64 {
	return t.ContentTransferTime.Milliseconds()
}

// GetTotalTimeMillis returns the total request time in milliseconds
func (t TimingInfo) GetTotalTimeMillis() int64 {
	return t.TotalTime.Milliseconds()
}

// timer fills a TimingInfo as a request moves through its phases. Each
// phase is measured from the end of the previous one.
type timer struct {
	info      TimingInfo
	lastPhase time.Time
}

func (t *timer) start() {
	now := time.Now()
	t.info = TimingInfo{StartTime: now}
	t.lastPhase = now
}

func (t *timer) phase(d *time.Duration) {
	now := time.Now()
	*d = now.Sub(t.lastPhase)
	t.lastPhase = now
}

func (t *timer) finish() {
	t.info.TotalTime = time.Since(t.info.StartTime)
}

func (t *timer) mark() {
	t.lastPhase = time.Now()
}
