package http

// Signal is an ordered list of callbacks fired at one stage of an
// asynchronous request. Callbacks run on the goroutine driving the
// selector, in the order they were connected.
type Signal struct {
	slots  []slot
	nextID int
}

type slot struct {
	id int
	fn func(*Client)
}

// Connect adds fn and returns a function that removes it again.
func (s *Signal) Connect(fn func(*Client)) (disconnect func()) {
	s.nextID++
	id := s.nextID
	s.slots = append(s.slots, slot{id: id, fn: fn})
	return func() {
		for i, sl := range s.slots {
			if sl.id == id {
				s.slots = append(s.slots[:i:i], s.slots[i+1:]...)
				return
			}
		}
	}
}

// Len returns the number of connected callbacks.
func (s *Signal) Len() int {
	return len(s.slots)
}

func (s *Signal) emit(c *Client) {
	// a callback may disconnect itself or others while we iterate
	slots := s.slots
	for _, sl := range slots {
		sl.fn(c)
	}
}

// BodyDelegate receives body bytes as they arrive and returns how many of
// them it consumed. Bytes left over are delivered again, together with any
// newer ones, on the next call.
type BodyDelegate func(c *Client, chunk []byte) int

// Observer receives every notification of an asynchronous request. Passing
// the client to each call lets one observer serve many clients.
type Observer interface {
	RequestSent(c *Client)
	HeaderReceived(c *Client)
	BodyAvailable(c *Client, chunk []byte) int
	ReplyFinished(c *Client)
}

// Observe connects o to all notifications of c. The returned function
// disconnects it.
func (c *Client) Observe(o Observer) (disconnect func()) {
	d1 := c.RequestSent.Connect(o.RequestSent)
	d2 := c.HeaderReceived.Connect(o.HeaderReceived)
	d3 := c.ReplyFinished.Connect(o.ReplyFinished)
	c.BodyAvailable = o.BodyAvailable
	return func() {
		d1()
		d2()
		d3()
		c.BodyAvailable = nil
	}
}
