package http

import (
	"errors"
	"io"
	"time"

	"github.com/wesleyorama2/netwire/internal/tcp"
)

// Do executes req with the client's default timeouts.
func (c *Client) Do(req *Request) (*ReplyHeader, error) {
	return c.Execute(req, c.timeout, c.connectTimeout)
}

// Execute sends req and reads the reply header, leaving the body unread.
//
// A connection is opened first when none is usable; the connect is bounded
// by connectTimeout, which falls back to timeout when it is WaitInfinite.
// All reads are bounded by timeout. Interim 1xx replies are skipped.
//
// The body must be consumed with ReadBody or Body before the next request;
// a reply without a body is finished right away.
func (c *Client) Execute(req *Request, timeout, connectTimeout time.Duration) (*ReplyHeader, error) {
	if err := c.checkIdle("Execute"); err != nil {
		return nil, err
	}
	if err := req.check(c.requestContext()); err != nil {
		return nil, err
	}
	if connectTimeout < 0 {
		connectTimeout = timeout
	}

	c.beginRequest(req)

	if !c.connected() {
		c.state = StateConnecting
		if err := c.open(connectTimeout); err != nil {
			return nil, c.failSync(err)
		}
	} else {
		c.timer.mark()
	}
	if err := c.stream.SetTimeout(timeout); err != nil {
		return nil, c.failSync(err)
	}
	c.buf.Reset(c.stream)

	c.state = StateSending
	if err := req.writeTo(c.buf, c.requestContext()); err != nil {
		return nil, c.failSync(err)
	}
	if err := c.buf.Flush(); err != nil {
		return nil, c.failSync(err)
	}
	c.state = StateRequestSent
	c.log.Debug("request sent", "method", req.Method, "target", req.RequestURI())

	if err := c.readHeader(); err != nil {
		return nil, c.failSync(err)
	}
	c.state = StateHeaderReceived
	c.body.reset(c.reply.framing(req.Method), c.reply.ContentLength)
	c.log.Debug("reply header", "status", c.reply.StatusCode, "framing", c.body.mode.String())

	if c.body.done {
		c.finishSync()
	}
	return c.reply, nil
}

func (c *Client) beginRequest(req *Request) {
	c.req = req
	c.reply = nil
	c.err = nil
	c.parser.reset()
	c.timer.start()
}

// readHeader reads lines until a final reply header is complete.
func (c *Client) readHeader() error {
	first := true
	for {
		line, err := c.buf.ReadLine(maxLineLength)
		if err != nil {
			return headerReadError(err)
		}
		if first {
			c.timer.phase(&c.timer.info.TimeToFirstByte)
			first = false
		}

		done, err := c.parser.feedLine(line)
		if err != nil {
			return err
		}
		if !done {
			continue
		}
		if isInterim(c.parser.reply) {
			c.log.Debug("interim reply skipped", "status", c.parser.reply.StatusCode)
			c.parser.reset()
			continue
		}
		c.reply = c.parser.reply
		c.timer.mark()
		return nil
	}
}

func headerReadError(err error) error {
	switch {
	case err == io.EOF, err == io.ErrUnexpectedEOF:
		return protocolError("connection closed before reply header", io.ErrUnexpectedEOF)
	case errors.Is(err, tcp.ErrLineTooLong):
		return protocolError("header line too long", err)
	}
	return err
}

// ReadBody appends the rest of the current reply body to dst.
func (c *Client) ReadBody(dst []byte) ([]byte, error) {
	if c.pending {
		return dst, &UsageError{Op: "ReadBody", Msg: "asynchronous request in flight"}
	}
	if c.reply == nil {
		return dst, &UsageError{Op: "ReadBody", Msg: "no reply"}
	}

	r := &bodyReader{c: c}
	buf := make([]byte, c.bufSize)
	for {
		n, err := r.Read(buf)
		dst = append(dst, buf[:n]...)
		if err == io.EOF {
			return dst, nil
		}
		if err != nil {
			return dst, err
		}
	}
}

// Body returns a reader streaming the rest of the current reply body. It
// reports io.EOF once the body is complete.
func (c *Client) Body() io.Reader {
	return &bodyReader{c: c}
}

// Get sends a GET request for target and returns the reply body.
func (c *Client) Get(target string, timeout, connectTimeout time.Duration) ([]byte, error) {
	if _, err := c.Execute(NewRequest("GET", target), timeout, connectTimeout); err != nil {
		return nil, err
	}
	return c.ReadBody(nil)
}

func (c *Client) finishSync() {
	c.finishReply()
	c.state = StateIdle
}

// failSync drops the connection, whose state is unknown after a failure,
// and returns err.
func (c *Client) failSync(err error) error {
	c.dropConnection()
	c.state = StateError
	c.log.Debug("request failed", "err", err)
	return err
}
