package http

import (
	"bytes"
	"errors"
	"io"

	"github.com/wesleyorama2/netwire/internal/reactor"
	"github.com/wesleyorama2/netwire/internal/tcp"
)

// BeginExecute starts req without blocking. Progress happens when the
// selector reports readiness; the client advances by one stage per
// notification and fires RequestSent, HeaderReceived, BodyAvailable and
// finally ReplyFinished. Call EndExecute after ReplyFinished.
//
// Failures found before anything is registered, such as an unknown host,
// are returned directly and fire no signal. Later failures are recorded
// and returned by EndExecute.
func (c *Client) BeginExecute(req *Request) error {
	if c.selector == nil {
		return &UsageError{Op: "BeginExecute", Msg: "no selector set"}
	}
	if err := c.checkIdle("BeginExecute"); err != nil {
		return err
	}
	if err := req.check(c.requestContext()); err != nil {
		return err
	}

	c.beginRequest(req)

	var out bytes.Buffer
	if err := req.writeTo(&out, c.requestContext()); err != nil {
		c.state = StateError
		return err
	}
	c.out = out.Bytes()
	c.outPos = 0
	c.in = c.in[:0]
	c.bodyBuf = c.bodyBuf[:0]

	if c.connected() {
		c.timer.mark()
		if err := c.stream.SetTimeout(0); err != nil {
			return c.failSync(err)
		}
		c.state = StateSending
	} else {
		if err := c.startConnect(); err != nil {
			return c.failSync(err)
		}
	}

	if err := c.register(reactor.Writable); err != nil {
		return c.failSync(err)
	}
	c.pending = true
	return nil
}

func (c *Client) startConnect() error {
	c.dropConnection()
	if err := c.resolve(); err != nil {
		return err
	}
	c.timer.phase(&c.timer.info.DNSLookupTime)

	s := tcp.NewStream(tcp.WithTimeout(0), tcp.WithLogger(c.log))
	done, err := s.StartConnect(c.addr)
	if err != nil {
		return err
	}
	c.attach(s)
	if done {
		c.timer.phase(&c.timer.info.TCPConnectTime)
		c.state = StateSending
	} else {
		c.state = StateConnecting
	}
	return nil
}

func (c *Client) register(ev reactor.Event) error {
	fd := c.stream.Fd()
	if err := c.selector.Register(fd, ev, reactor.HandlerFunc(c.onReady)); err != nil {
		return err
	}
	c.registered = fd
	return nil
}

func (c *Client) setInterest(ev reactor.Event) {
	if c.registered < 0 {
		return
	}
	if err := c.selector.Modify(c.registered, ev); err != nil {
		c.fail(err)
	}
}

func (c *Client) deregister() {
	if c.registered < 0 {
		return
	}
	if c.selector != nil {
		c.selector.Deregister(c.registered)
	}
	c.registered = -1
}

// onReady performs one state transition.
func (c *Client) onReady(fd int, ev reactor.Event) {
	if !c.pending || fd != c.registered {
		return
	}

	switch c.state {
	case StateConnecting:
		c.stepConnect()
	case StateSending:
		c.stepSend()
	case StateRequestSent:
		c.stepHeader()
	case StateHeaderReceived:
		c.stepBodyStart()
	case StateBodyStreaming:
		c.stepBody()
	}
}

func (c *Client) stepConnect() {
	if err := c.stream.FinishConnect(); err != nil {
		c.fail(err)
		return
	}
	c.timer.phase(&c.timer.info.TCPConnectTime)
	c.log.Debug("connected", "addr", c.addr.String())
	c.state = StateSending
}

func (c *Client) stepSend() {
	n, err := c.stream.WriteOnce(c.out[c.outPos:])
	if err == tcp.ErrWouldBlock {
		return
	}
	if err != nil {
		c.fail(err)
		return
	}
	c.outPos += n
	if c.outPos < len(c.out) {
		return
	}

	c.state = StateRequestSent
	c.log.Debug("request sent", "method", c.req.Method, "target", c.req.RequestURI())
	c.setInterest(reactor.Readable)
	c.RequestSent.emit(c)
}

// readSome reads what the socket has. It reports false when nothing was
// available or the request failed.
func (c *Client) readSome() ([]byte, bool) {
	n, err := c.stream.Read(c.scratch)
	switch {
	case err == nil:
		return c.scratch[:n], true
	case errors.Is(err, ErrTimeout):
		return nil, false
	case err == io.EOF:
		return nil, true
	}
	c.fail(err)
	return nil, false
}

func (c *Client) stepHeader() {
	data, ok := c.readSome()
	if !ok {
		return
	}
	if data == nil {
		c.fail(protocolError("connection closed before reply header", io.ErrUnexpectedEOF))
		return
	}
	if len(c.in) == 0 && c.parser.reply == nil {
		c.timer.phase(&c.timer.info.TimeToFirstByte)
	}
	c.in = append(c.in, data...)

	for {
		line, rest, ok := cutLine(c.in)
		if !ok {
			if len(c.in) > maxLineLength {
				c.fail(protocolError("header line too long", tcp.ErrLineTooLong))
			}
			return
		}
		c.in = rest

		done, err := c.parser.feedLine(line)
		if err != nil {
			c.fail(err)
			return
		}
		if !done {
			continue
		}
		if isInterim(c.parser.reply) {
			c.parser.reset()
			continue
		}
		break
	}

	c.reply = c.parser.reply
	c.timer.mark()
	c.body.reset(c.reply.framing(c.req.Method), c.reply.ContentLength)
	c.state = StateHeaderReceived
	c.log.Debug("reply header", "status", c.reply.StatusCode, "framing", c.body.mode.String())

	// the next step works on bytes already here
	c.setInterest(reactor.Readable | reactor.Writable)
	c.HeaderReceived.emit(c)
}

func (c *Client) stepBodyStart() {
	c.state = StateBodyStreaming
	if len(c.in) > 0 {
		body, _, err := c.body.decode(c.in)
		if err != nil {
			c.fail(err)
			return
		}
		c.bodyBuf = append(c.bodyBuf, body...)
		c.in = c.in[:0]
	}
	c.updateBodyInterest(true)
}

func (c *Client) stepBody() {
	if len(c.bodyBuf) > 0 {
		progress := c.deliver()
		if c.body.done && !progress {
			// the consumer stopped taking bytes and no more will come
			c.finishAsync()
			return
		}
		c.updateBodyInterest(progress)
		return
	}
	if c.body.done {
		c.finishAsync()
		return
	}

	data, ok := c.readSome()
	if !ok {
		return
	}
	if data == nil {
		if err := c.body.eof(); err != nil {
			c.fail(err)
			return
		}
	} else {
		body, _, err := c.body.decode(data)
		if err != nil {
			c.fail(err)
			return
		}
		c.bodyBuf = append(c.bodyBuf, body...)
	}
	c.updateBodyInterest(true)
}

// deliver hands buffered body bytes to BodyAvailable and reports whether
// any were consumed.
func (c *Client) deliver() bool {
	n := len(c.bodyBuf)
	if c.BodyAvailable != nil {
		n = c.BodyAvailable(c, c.bodyBuf)
	}
	if n <= 0 {
		return false
	}
	if n > len(c.bodyBuf) {
		n = len(c.bodyBuf)
	}
	c.bodyBuf = c.bodyBuf[:copy(c.bodyBuf, c.bodyBuf[n:])]
	return true
}

// updateBodyInterest keeps write interest while there is local work: bytes
// the consumer is still taking or a body that is complete.
func (c *Client) updateBodyInterest(progress bool) {
	if c.body.done || len(c.bodyBuf) > 0 && progress {
		c.setInterest(reactor.Readable | reactor.Writable)
		return
	}
	c.setInterest(reactor.Readable)
}

func (c *Client) finishAsync() {
	c.deregister()
	c.finishReply()
	c.state = StateReplyFinished
	c.ReplyFinished.emit(c)
}

// fail records err and ends the request. ReplyFinished still fires.
func (c *Client) fail(err error) {
	if c.state == StateError {
		return
	}
	c.err = err
	c.state = StateError
	c.log.Debug("request failed", "err", err)
	c.dropConnection()
	c.ReplyFinished.emit(c)
}

// EndExecute completes an asynchronous request and returns the error it
// ended with, if any. It must follow ReplyFinished.
func (c *Client) EndExecute() error {
	if !c.pending {
		return &UsageError{Op: "EndExecute", Msg: "no asynchronous request pending"}
	}
	if c.state != StateReplyFinished && c.state != StateError {
		return &UsageError{Op: "EndExecute", Msg: "reply not finished (state " + c.state.String() + ")"}
	}
	err := c.err
	c.pending = false
	c.err = nil
	c.state = StateIdle
	return err
}

// Cancel abandons the current request and returns to StateIdle. The
// connection is left open, but one abandoned in the middle of a reply is
// replaced on the next request.
func (c *Client) Cancel() {
	c.deregister()
	switch c.state {
	case StateIdle, StateReplyFinished, StateError:
	default:
		c.reusable = false
	}
	c.pending = false
	c.err = nil
	c.state = StateIdle
	c.bodyBuf = c.bodyBuf[:0]
	c.in = c.in[:0]
}
