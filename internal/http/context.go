package http

import (
	"context"
	"time"

	"github.com/wesleyorama2/netwire/internal/reactor"
)

// contextPoll bounds one selector round of ExecuteContext.
const contextPoll = 100 * time.Millisecond

// ExecuteContext sends req through the asynchronous machinery and drives
// the client's selector until the reply has finished, ctx is done or the
// client's timeout has elapsed. Without a selector the client gets a
// private one. The body is collected and returned with the header;
// BodyAvailable is restored afterwards.
func (c *Client) ExecuteContext(ctx context.Context, req *Request) (*ReplyHeader, []byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if c.selector == nil {
		if err := c.SetSelector(reactor.New(reactor.WithLogger(c.log))); err != nil {
			return nil, nil, err
		}
	}

	var body []byte
	finished := false
	prev := c.BodyAvailable
	c.BodyAvailable = func(_ *Client, chunk []byte) int {
		body = append(body, chunk...)
		return len(chunk)
	}
	disconnect := c.ReplyFinished.Connect(func(*Client) { finished = true })
	defer func() {
		disconnect()
		c.BodyAvailable = prev
	}()

	if err := c.BeginExecute(req); err != nil {
		return nil, nil, err
	}

	var deadline time.Time
	if c.timeout >= 0 {
		deadline = time.Now().Add(c.timeout)
	}
	timeoutErr := ErrTimeout
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
		timeoutErr = context.DeadlineExceeded
	}

	for !finished {
		if err := ctx.Err(); err != nil {
			c.Cancel()
			return nil, nil, err
		}
		wait := contextPoll
		if !deadline.IsZero() {
			left := time.Until(deadline)
			if left <= 0 {
				c.Cancel()
				return nil, nil, timeoutErr
			}
			wait = min(wait, left)
		}
		if _, err := c.selector.Wait(wait); err != nil {
			c.Cancel()
			return nil, nil, err
		}
	}

	if err := c.EndExecute(); err != nil {
		return nil, nil, err
	}
	return c.reply, body, nil
}
