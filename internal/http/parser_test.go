package http

import (
	"errors"
	"io"
	"strings"
	"testing"
)

func parseHead(t *testing.T, head string) (*ReplyHeader, error) {
	t.Helper()
	var p replyParser
	for _, line := range strings.Split(head, "\r\n") {
		done, err := p.feedLine(line)
		if err != nil {
			return nil, err
		}
		if done {
			return p.reply, nil
		}
	}
	t.Fatalf("header block of %q never completed", head)
	return nil, nil
}

func TestReplyParser(t *testing.T) {
	tests := []struct {
		name       string
		head       string
		wantStatus int
		wantText   string
		wantLength int64
		wantChunk  bool
		wantHeader map[string]string
	}{
		{
			name:       "Content-Length",
			head:       "HTTP/1.1 200 OK\r\nContent-Length: 5\r\nContent-Type: text/plain\r\n\r\n",
			wantStatus: 200,
			wantText:   "OK",
			wantLength: 5,
			wantHeader: map[string]string{"content-type": "text/plain"},
		},
		{
			name:       "Reason with spaces",
			head:       "HTTP/1.1 404 Not Found\r\n\r\n",
			wantStatus: 404,
			wantText:   "Not Found",
			wantLength: -1,
		},
		{
			name:       "No reason phrase",
			head:       "HTTP/1.1 204\r\n\r\n",
			wantStatus: 204,
			wantLength: -1,
		},
		{
			name:       "Chunked wins over Content-Length",
			head:       "HTTP/1.1 200 OK\r\nContent-Length: 10\r\nTransfer-Encoding: gzip, chunked\r\n\r\n",
			wantStatus: 200,
			wantText:   "OK",
			wantLength: -1,
			wantChunk:  true,
		},
		{
			name:       "Non-chunked coding is close delimited",
			head:       "HTTP/1.1 200 OK\r\nTransfer-Encoding: gzip\r\nContent-Length: 3\r\n\r\n",
			wantStatus: 200,
			wantText:   "OK",
			wantLength: -1,
		},
		{
			name:       "Repeated equal Content-Length",
			head:       "HTTP/1.1 200 OK\r\nContent-Length: 2\r\ncontent-length: 2\r\n\r\n",
			wantStatus: 200,
			wantText:   "OK",
			wantLength: 2,
		},
		{
			name:       "Stray empty line before status",
			head:       "\r\nHTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n",
			wantStatus: 200,
			wantText:   "OK",
			wantLength: 0,
		},
		{
			name:       "Folded header value",
			head:       "HTTP/1.1 200 OK\r\nX-Long: first\r\n  second\r\n\r\n",
			wantStatus: 200,
			wantText:   "OK",
			wantLength: -1,
			wantHeader: map[string]string{"X-Long": "first second"},
		},
		{
			name:       "Value whitespace trimmed",
			head:       "HTTP/1.0 200 OK\r\nServer:   test  \r\n\r\n",
			wantStatus: 200,
			wantText:   "OK",
			wantLength: -1,
			wantHeader: map[string]string{"Server": "test"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply, err := parseHead(t, tt.head)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if reply.StatusCode != tt.wantStatus {
				t.Errorf("StatusCode = %d, want %d", reply.StatusCode, tt.wantStatus)
			}
			if reply.StatusText != tt.wantText {
				t.Errorf("StatusText = %q, want %q", reply.StatusText, tt.wantText)
			}
			if reply.ContentLength != tt.wantLength {
				t.Errorf("ContentLength = %d, want %d", reply.ContentLength, tt.wantLength)
			}
			if reply.Chunked != tt.wantChunk {
				t.Errorf("Chunked = %v, want %v", reply.Chunked, tt.wantChunk)
			}
			for name, want := range tt.wantHeader {
				if got := reply.Header.Get(name); got != want {
					t.Errorf("Header %s = %q, want %q", name, got, want)
				}
			}
		})
	}
}

func TestReplyParser_Errors(t *testing.T) {
	tests := []struct {
		name string
		head string
	}{
		{"Not HTTP", "FTP/1.1 200 OK\r\n\r\n"},
		{"Bad version", "HTTP/x.1 200 OK\r\n\r\n"},
		{"Missing minor version", "HTTP/1 200 OK\r\n\r\n"},
		{"Short status code", "HTTP/1.1 20 OK\r\n\r\n"},
		{"Non numeric status", "HTTP/1.1 abc OK\r\n\r\n"},
		{"Status below 100", "HTTP/1.1 099 Odd\r\n\r\n"},
		{"Header without colon", "HTTP/1.1 200 OK\r\nbroken\r\n\r\n"},
		{"Empty header name", "HTTP/1.1 200 OK\r\n: value\r\n\r\n"},
		{"Space in header name", "HTTP/1.1 200 OK\r\nBad Name: v\r\n\r\n"},
		{"Continuation without field", "HTTP/1.1 200 OK\r\n folded\r\n\r\n"},
		{"Negative Content-Length", "HTTP/1.1 200 OK\r\nContent-Length: -1\r\n\r\n"},
		{"Invalid Content-Length", "HTTP/1.1 200 OK\r\nContent-Length: ten\r\n\r\n"},
		{"Conflicting Content-Length", "HTTP/1.1 200 OK\r\nContent-Length: 1\r\nContent-Length: 2\r\n\r\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseHead(t, tt.head)
			var perr *ProtocolError
			if !errors.As(err, &perr) {
				t.Errorf("Expected a ProtocolError, got %v", err)
			}
		})
	}
}

func TestReplyParser_TooManyFields(t *testing.T) {
	var p replyParser
	if _, err := p.feedLine("HTTP/1.1 200 OK"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	var err error
	for i := 0; i <= maxHeaderFields && err == nil; i++ {
		_, err = p.feedLine("X-Field: v")
	}
	var perr *ProtocolError
	if !errors.As(err, &perr) {
		t.Errorf("Expected a ProtocolError after %d fields, got %v", maxHeaderFields, err)
	}
}

func TestReplyHeader_Framing(t *testing.T) {
	tests := []struct {
		name   string
		method string
		reply  ReplyHeader
		want   framing
	}{
		{"HEAD", "HEAD", ReplyHeader{StatusCode: 200, ContentLength: 10}, framingNone},
		{"No Content", "GET", ReplyHeader{StatusCode: 204, ContentLength: -1}, framingNone},
		{"Not Modified", "GET", ReplyHeader{StatusCode: 304, ContentLength: 10}, framingNone},
		{"Switching Protocols", "GET", ReplyHeader{StatusCode: 101, ContentLength: -1}, framingNone},
		{"Chunked", "GET", ReplyHeader{StatusCode: 200, ContentLength: -1, Chunked: true}, framingChunked},
		{"Zero length", "GET", ReplyHeader{StatusCode: 200, ContentLength: 0}, framingNone},
		{"Length", "POST", ReplyHeader{StatusCode: 201, ContentLength: 42}, framingLength},
		{"Until close", "GET", ReplyHeader{StatusCode: 200, ContentLength: -1}, framingClose},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.reply.framing(tt.method); got != tt.want {
				t.Errorf("framing(%s) = %s, want %s", tt.method, got, tt.want)
			}
		})
	}
}

func TestReplyHeader_KeepAlive(t *testing.T) {
	tests := []struct {
		name  string
		major int
		minor int
		conn  string
		want  bool
	}{
		{"HTTP/1.1 default", 1, 1, "", true},
		{"HTTP/1.1 close", 1, 1, "close", false},
		{"HTTP/1.1 close among tokens", 1, 1, "Upgrade, Close", false},
		{"HTTP/1.0 default", 1, 0, "", false},
		{"HTTP/1.0 keep-alive", 1, 0, "Keep-Alive", true},
		{"HTTP/0.9", 0, 9, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := ReplyHeader{Major: tt.major, Minor: tt.minor}
			if tt.conn != "" {
				r.Header.Add("Connection", tt.conn)
			}
			if got := r.KeepAlive(); got != tt.want {
				t.Errorf("KeepAlive() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestReplyHeader_StatusClasses(t *testing.T) {
	r := ReplyHeader{StatusCode: 503, StatusText: "Service Unavailable"}
	if r.Status() != "503 Service Unavailable" {
		t.Errorf("Status() = %q", r.Status())
	}
	if !r.IsServerError() || r.IsSuccess() || r.IsClientError() || r.IsRedirect() {
		t.Errorf("Wrong status class for 503")
	}
	if (&ReplyHeader{StatusCode: 299}).Status() != "299" {
		t.Errorf("Status() without text should be the bare code")
	}
}

func TestCutLine(t *testing.T) {
	tests := []struct {
		in       string
		wantLine string
		wantRest string
		wantOK   bool
	}{
		{"abc\r\ndef", "abc", "def", true},
		{"abc\ndef", "abc", "def", true},
		{"\r\n", "", "", true},
		{"partial", "", "partial", false},
		{"a\rb\n", "a\rb", "", true},
	}

	for _, tt := range tests {
		line, rest, ok := cutLine([]byte(tt.in))
		if line != tt.wantLine || string(rest) != tt.wantRest || ok != tt.wantOK {
			t.Errorf("cutLine(%q) = %q, %q, %v; want %q, %q, %v",
				tt.in, line, rest, ok, tt.wantLine, tt.wantRest, tt.wantOK)
		}
	}
}

func TestBodyDecoder_Length(t *testing.T) {
	var d bodyDecoder
	d.reset(framingLength, 5)

	if got := d.want(100); got != 5 {
		t.Errorf("want(100) = %d, want 5", got)
	}
	body, rest, err := d.decode([]byte("hel"))
	if err != nil || string(body) != "hel" || len(rest) != 0 || d.done {
		t.Fatalf("decode(hel) = %q, %q, %v, done=%v", body, rest, err, d.done)
	}
	body, rest, err = d.decode([]byte("loEXTRA"))
	if err != nil || string(body) != "lo" || string(rest) != "EXTRA" || !d.done {
		t.Fatalf("decode(loEXTRA) = %q, %q, %v, done=%v", body, rest, err, d.done)
	}
	if err := d.eof(); err != nil {
		t.Errorf("eof() after a complete body = %v", err)
	}
}

func TestBodyDecoder_EOF(t *testing.T) {
	var d bodyDecoder
	d.reset(framingClose, -1)
	body, _, err := d.decode([]byte("anything"))
	if err != nil || string(body) != "anything" || d.done {
		t.Fatalf("decode = %q, %v, done=%v", body, err, d.done)
	}
	if err := d.eof(); err != nil || !d.done {
		t.Errorf("eof() on a close delimited body = %v, done=%v", err, d.done)
	}

	d.reset(framingLength, 10)
	d.decode([]byte("short"))
	err = d.eof()
	var perr *ProtocolError
	if !errors.As(err, &perr) || !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("eof() on a short body = %v, want ProtocolError wrapping ErrUnexpectedEOF", err)
	}
}

func TestBodyDecoder_None(t *testing.T) {
	var d bodyDecoder
	d.reset(framingNone, 0)
	if !d.done {
		t.Fatalf("empty body not done")
	}
	body, rest, err := d.decode([]byte("next"))
	if err != nil || len(body) != 0 || string(rest) != "next" {
		t.Errorf("decode on a finished body = %q, %q, %v", body, rest, err)
	}
}
