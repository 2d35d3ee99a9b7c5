package http

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/indigo-web/utils/strcomp"
)

const (
	maxLineLength   = 16 << 10
	maxHeaderFields = 256
)

// replyParser turns the lines of a reply head into a ReplyHeader. It is fed
// one line at a time, without the line terminator, so the same parser
// serves the blocking path (lines from StreamBuf.ReadLine) and the
// event-driven path (lines cut from accumulated socket bytes).
type replyParser struct {
	reply      *ReplyHeader
	statusSeen bool
	lengths    []string
}

func (p *replyParser) reset() {
	*p = replyParser{}
}

// feedLine consumes one line and reports whether the header block is
// complete.
func (p *replyParser) feedLine(line string) (bool, error) {
	if !p.statusSeen {
		// tolerate stray empty lines ahead of the status line
		if line == "" {
			return false, nil
		}
		reply, err := parseStatusLine(line)
		if err != nil {
			return false, err
		}
		p.reply = reply
		p.statusSeen = true
		return false, nil
	}

	if line == "" {
		return true, p.complete()
	}

	if line[0] == ' ' || line[0] == '\t' {
		fields := p.reply.Header.fields
		if len(fields) == 0 {
			return false, protocolError("continuation line without header field", nil)
		}
		last := &fields[len(fields)-1]
		last.Value = strings.TrimSpace(last.Value + " " + strings.TrimSpace(line))
		return false, nil
	}

	if p.reply.Header.Len() >= maxHeaderFields {
		return false, protocolError("too many header fields", nil)
	}

	colon := strings.IndexByte(line, ':')
	if colon <= 0 {
		return false, protocolError("malformed header line "+strconv.Quote(line), nil)
	}
	name := line[:colon]
	if strings.ContainsAny(name, " \t") {
		return false, protocolError("malformed header name "+strconv.Quote(name), nil)
	}
	value := strings.TrimSpace(line[colon+1:])
	p.reply.Header.Add(name, value)

	if strcomp.EqualFold(name, "Content-Length") {
		p.lengths = append(p.lengths, value)
	}
	return false, nil
}

func (p *replyParser) complete() error {
	r := p.reply
	r.ContentLength = -1

	for _, coding := range r.Header.Values("Transfer-Encoding") {
		parts := strings.Split(coding, ",")
		r.Chunked = strcomp.EqualFold(strings.TrimSpace(parts[len(parts)-1]), "chunked")
	}
	if r.Chunked {
		return nil
	}

	for _, v := range p.lengths {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			return protocolError("invalid Content-Length "+strconv.Quote(v), err)
		}
		if r.ContentLength >= 0 && r.ContentLength != n {
			return protocolError("conflicting Content-Length values", nil)
		}
		r.ContentLength = n
	}
	if r.Header.Has("Transfer-Encoding") {
		// a non-chunked transfer coding is delimited by close
		r.ContentLength = -1
	}
	return nil
}

// parseStatusLine parses "HTTP/<major>.<minor> <code> [<reason>]".
func parseStatusLine(line string) (*ReplyHeader, error) {
	bad := func() error {
		return protocolError("malformed status line "+strconv.Quote(line), nil)
	}

	proto, rest, ok := strings.Cut(line, " ")
	if !ok || !strings.HasPrefix(proto, "HTTP/") {
		return nil, bad()
	}
	major, minor, ok := parseVersion(proto[len("HTTP/"):])
	if !ok {
		return nil, bad()
	}

	rest = strings.TrimLeft(rest, " ")
	code, text, _ := strings.Cut(rest, " ")
	if len(code) != 3 {
		return nil, bad()
	}
	status, err := strconv.Atoi(code)
	if err != nil || status < 100 {
		return nil, bad()
	}

	return &ReplyHeader{
		Proto:         proto,
		Major:         major,
		Minor:         minor,
		StatusCode:    status,
		StatusText:    strings.TrimSpace(text),
		ContentLength: -1,
	}, nil
}

func parseVersion(v string) (int, int, bool) {
	majStr, minStr, ok := strings.Cut(v, ".")
	if !ok {
		return 0, 0, false
	}
	major, err := strconv.Atoi(majStr)
	if err != nil || major < 0 {
		return 0, 0, false
	}
	minor, err := strconv.Atoi(minStr)
	if err != nil || minor < 0 {
		return 0, 0, false
	}
	return major, minor, true
}

// isInterim reports a 1xx reply that precedes the final one. 101 ends the
// HTTP exchange and is treated as final.
func isInterim(r *ReplyHeader) bool {
	return r.StatusCode >= 100 && r.StatusCode < 200 && r.StatusCode != 101
}

// cutLine removes the first complete line from buf. It reports false when
// buf holds no line terminator yet.
func cutLine(buf []byte) (line string, rest []byte, ok bool) {
	i := bytes.IndexByte(buf, '\n')
	if i < 0 {
		return "", buf, false
	}
	l := buf[:i]
	if n := len(l); n > 0 && l[n-1] == '\r' {
		l = l[:n-1]
	}
	return string(l), buf[i+1:], true
}
