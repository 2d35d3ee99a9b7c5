package http

import (
	"errors"
	"io"

	"github.com/indigo-web/chunkedbody"
)

// bodyDecoder removes the framing from raw reply bytes. It is fed whatever
// arrived from the socket and hands back decoded body bytes plus the raw
// bytes it did not need.
type bodyDecoder struct {
	mode      framing
	remaining int64
	chunked   *chunkedbody.Parser
	done      bool
	out       []byte
}

func (d *bodyDecoder) reset(mode framing, length int64) {
	d.mode = mode
	d.remaining = length
	d.done = mode == framingNone
	d.out = d.out[:0]
	if mode == framingChunked {
		// a fresh parser drops state left by an abandoned body
		d.chunked = chunkedbody.NewParser(chunkedbody.DefaultSettings())
	}
}

// want returns how many raw bytes may be read without running past the end
// of the body, capped at max.
func (d *bodyDecoder) want(max int) int {
	if d.mode == framingLength && d.remaining < int64(max) {
		return int(d.remaining)
	}
	return max
}

// decode consumes raw and returns the body bytes found in it. The returned
// slice is only valid until the next call.
func (d *bodyDecoder) decode(raw []byte) (body, rest []byte, err error) {
	if d.done {
		return nil, raw, nil
	}

	switch d.mode {
	case framingLength:
		n := int64(len(raw))
		if n > d.remaining {
			n = d.remaining
		}
		d.remaining -= n
		d.done = d.remaining == 0
		return raw[:n], raw[n:], nil

	case framingClose:
		return raw, nil, nil

	case framingChunked:
		d.out = d.out[:0]
		for len(raw) > 0 {
			chunk, extra, err := d.chunked.Parse(raw, false)
			switch err {
			case nil:
			case io.EOF:
				d.out = append(d.out, chunk...)
				d.done = true
				return d.out, extra, nil
			default:
				return nil, nil, protocolError("malformed chunked body", err)
			}
			d.out = append(d.out, chunk...)
			if len(extra) == len(raw) && len(chunk) == 0 {
				break
			}
			raw = extra
		}
		return d.out, nil, nil
	}

	d.done = true
	return nil, raw, nil
}

// eof tells the decoder the server closed the connection. Only a
// close-delimited body may end this way.
func (d *bodyDecoder) eof() error {
	if d.done {
		return nil
	}
	if d.mode == framingClose {
		d.done = true
		return nil
	}
	return protocolError("connection closed before end of body", io.ErrUnexpectedEOF)
}

// bodyReader streams the body of the current reply on the blocking path.
type bodyReader struct {
	c       *Client
	pending []byte
}

func (r *bodyReader) Read(p []byte) (int, error) {
	c := r.c
	if c.pending {
		return 0, &UsageError{Op: "Read", Msg: "asynchronous request in flight"}
	}
	for {
		if len(r.pending) > 0 {
			n := copy(p, r.pending)
			r.pending = r.pending[n:]
			return n, nil
		}
		if c.reply == nil || c.state != StateHeaderReceived && c.state != StateBodyStreaming {
			return 0, io.EOF
		}
		if c.body.done {
			c.finishSync()
			return 0, io.EOF
		}
		c.state = StateBodyStreaming

		raw := c.scratch[:c.body.want(len(c.scratch))]
		n, err := c.buf.Read(raw)
		if err != nil {
			if err = c.bodyReadError(err); err != nil {
				return 0, c.failSync(err)
			}
			continue
		}

		body, _, err := c.body.decode(raw[:n])
		if err != nil {
			return 0, c.failSync(err)
		}
		r.pending = body
	}
}

// bodyReadError maps a failed read in the middle of a body.
func (c *Client) bodyReadError(err error) error {
	if err == io.EOF {
		if err := c.body.eof(); err != nil {
			return err
		}
		return nil
	}
	if errors.Is(err, ErrTimeout) && c.body.mode == framingClose {
		return protocolError("unterminated body", err)
	}
	return err
}
