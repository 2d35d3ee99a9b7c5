package tcp

import (
	"log/slog"
	"time"

	"golang.org/x/sys/unix"

	"github.com/wesleyorama2/netwire/internal/logx"
)

// WaitInfinite disables a timeout: waits block until the socket is ready.
const WaitInfinite time.Duration = -1

// Option configures a Stream or Listener.
type Option func(*options)

type options struct {
	timeout time.Duration
	log     *slog.Logger
}

func buildOptions(opts []Option) options {
	o := options{timeout: WaitInfinite, log: logx.Discard}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithTimeout sets the initial read/connect timeout of a Stream, or the
// accept timeout of a Listener.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithLogger routes debug and warning messages to l. A nil logger disables
// logging.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.log = logx.OrDiscard(l)
	}
}

// pollMillis converts a timeout to poll(2) milliseconds, rounding partial
// milliseconds up so a tiny positive timeout never turns into a zero poll.
func pollMillis(d time.Duration) int {
	if d < 0 {
		return -1
	}
	return int((d + time.Millisecond - 1) / time.Millisecond)
}

// waitFor blocks until fd reports one of events or timeout elapses. Hang-up
// and error conditions count as ready so the following I/O call reports them.
func waitFor(fd int, events int16, timeout time.Duration) error {
	var deadline time.Time
	if timeout >= 0 {
		deadline = time.Now().Add(timeout)
	}

	remaining := timeout
	for {
		fds := []unix.PollFd{{Fd: int32(fd), Events: events}}
		n, err := unix.Poll(fds, pollMillis(remaining))
		if err == unix.EINTR {
			if timeout >= 0 {
				remaining = time.Until(deadline)
				if remaining <= 0 {
					return ErrTimeout
				}
			}
			continue
		}
		if err != nil {
			return newError("poll", err)
		}
		if n == 0 {
			return ErrTimeout
		}
		return nil
	}
}
