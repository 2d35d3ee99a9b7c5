// Package reactor provides a single-threaded readiness loop over poll(2).
//
// A Selector keeps a set of descriptors with the events each is interested
// in. Wait performs one poll round and invokes the handler of every ready
// descriptor on the calling goroutine. Handlers may register, modify or
// deregister descriptors, including their own, while being dispatched.
package reactor

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sys/unix"

	"github.com/wesleyorama2/netwire/internal/logx"
)

// WaitInfinite makes Wait block until some descriptor becomes ready.
const WaitInfinite time.Duration = -1

// Event is a set of readiness conditions.
type Event uint8

const (
	// Readable means a read will not block.
	Readable Event = 1 << iota
	// Writable means a write will not block.
	Writable
)

func (e Event) String() string {
	switch e {
	case 0:
		return "none"
	case Readable:
		return "readable"
	case Writable:
		return "writable"
	case Readable | Writable:
		return "readable|writable"
	}
	return "invalid"
}

func (e Event) pollEvents() int16 {
	var ev int16
	if e&Readable != 0 {
		ev |= unix.POLLIN
	}
	if e&Writable != 0 {
		ev |= unix.POLLOUT
	}
	return ev
}

func fromPollEvents(rev int16) Event {
	var e Event
	if rev&unix.POLLIN != 0 {
		e |= Readable
	}
	if rev&unix.POLLOUT != 0 {
		e |= Writable
	}
	// let the handler's own I/O surface the failure
	if rev&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
		e |= Readable | Writable
	}
	return e
}

// Handler is notified about readiness of a registered descriptor.
type Handler interface {
	Ready(fd int, ev Event)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(fd int, ev Event)

// Ready calls f(fd, ev).
func (f HandlerFunc) Ready(fd int, ev Event) {
	f(fd, ev)
}

type registration struct {
	interest Event
	handler  Handler
	// gen guards against dispatching a handler registered after the poll
	// round started on a reused descriptor number
	gen uint64
}

// Option configures a Selector.
type Option func(*Selector)

// WithLogger sets the logger for debug output. Nil disables logging.
func WithLogger(l *slog.Logger) Option {
	return func(s *Selector) {
		s.log = logx.OrDiscard(l)
	}
}

// Selector is a poll(2) based readiness loop. It is not safe for concurrent
// use; all methods must be called from the goroutine driving Wait.
type Selector struct {
	regs map[int]*registration
	gen  uint64
	log  *slog.Logger

	pollfds []unix.PollFd
}

// New creates an empty Selector.
func New(opts ...Option) *Selector {
	s := &Selector{
		regs: make(map[int]*registration),
		log:  logx.Discard,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds fd with the given interest. Registering an fd again
// replaces its interest and handler.
func (s *Selector) Register(fd int, ev Event, h Handler) error {
	if fd < 0 {
		return &Error{Op: "register", Fd: fd, Msg: "invalid descriptor"}
	}
	if h == nil {
		return &Error{Op: "register", Fd: fd, Msg: "nil handler"}
	}
	s.gen++
	s.regs[fd] = &registration{interest: ev, handler: h, gen: s.gen}
	s.log.Debug("register", "fd", fd, "events", ev.String())
	return nil
}

// Modify changes the interest of a registered fd.
func (s *Selector) Modify(fd int, ev Event) error {
	r, ok := s.regs[fd]
	if !ok {
		return &Error{Op: "modify", Fd: fd, Msg: "not registered"}
	}
	r.interest = ev
	return nil
}

// Deregister removes fd. Removing an unknown fd does nothing.
func (s *Selector) Deregister(fd int) {
	if _, ok := s.regs[fd]; !ok {
		return
	}
	delete(s.regs, fd)
	s.log.Debug("deregister", "fd", fd)
}

// Registered reports whether fd is registered.
func (s *Selector) Registered(fd int) bool {
	_, ok := s.regs[fd]
	return ok
}

// Interest returns the events fd is registered for.
func (s *Selector) Interest(fd int) (Event, bool) {
	r, ok := s.regs[fd]
	if !ok {
		return 0, false
	}
	return r.interest, true
}

// Len returns the number of registered descriptors.
func (s *Selector) Len() int {
	return len(s.regs)
}

// Wait polls all registered descriptors once, for at most timeout, and
// dispatches the ready ones in ascending descriptor order. It reports
// whether any handler ran. An interrupted poll counts as nothing ready.
// With nothing registered Wait returns at once.
func (s *Selector) Wait(timeout time.Duration) (bool, error) {
	if len(s.regs) == 0 {
		return false, nil
	}

	fds := make([]int, 0, len(s.regs))
	for fd := range s.regs {
		fds = append(fds, fd)
	}
	sort.Ints(fds)

	s.pollfds = s.pollfds[:0]
	gens := make([]uint64, len(fds))
	for i, fd := range fds {
		r := s.regs[fd]
		gens[i] = r.gen
		s.pollfds = append(s.pollfds, unix.PollFd{Fd: int32(fd), Events: r.interest.pollEvents()})
	}

	n, err := unix.Poll(s.pollfds, pollMillis(timeout))
	if err == unix.EINTR {
		return false, nil
	}
	if err != nil {
		return false, &Error{Op: "poll", Fd: -1, Err: err}
	}
	if n == 0 {
		return false, nil
	}

	dispatched := false
	for i, pfd := range s.pollfds {
		if pfd.Revents == 0 {
			continue
		}
		fd := int(pfd.Fd)
		r, ok := s.regs[fd]
		// skip descriptors a previous handler removed or replaced
		if !ok || r.gen != gens[i] {
			continue
		}
		ev := fromPollEvents(pfd.Revents)
		if ev == 0 {
			continue
		}
		dispatched = true
		r.handler.Ready(fd, ev)
	}
	return dispatched, nil
}

// Run calls Wait until ctx is done, nothing is registered any more, or
// polling fails.
func (s *Selector) Run(ctx context.Context) error {
	for s.Len() > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		timeout := WaitInfinite
		if deadline, ok := ctx.Deadline(); ok {
			timeout = time.Until(deadline)
			if timeout < 0 {
				return context.DeadlineExceeded
			}
		}
		// wake up regularly so cancellation without a deadline is noticed
		if ctx.Done() != nil && (timeout < 0 || timeout > runSlice) {
			timeout = runSlice
		}
		if _, err := s.Wait(timeout); err != nil {
			return err
		}
	}
	return nil
}

const runSlice = 100 * time.Millisecond

func pollMillis(d time.Duration) int {
	if d < 0 {
		return -1
	}
	return int((d + time.Millisecond - 1) / time.Millisecond)
}
