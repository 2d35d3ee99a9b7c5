package tcp

import (
	"log/slog"
	"time"

	"golang.org/x/sys/unix"
)

// Listener is a bound, listening IPv4 TCP socket.
type Listener struct {
	sock          *Socket
	addr          Addr
	acceptTimeout time.Duration
	log           *slog.Logger
}

// Listen resolves host, binds to host:port with SO_REUSEADDR set and starts
// listening. A backlog <= 0 uses the system maximum. Port 0 picks an
// ephemeral port; Addr reports the one bound.
func Listen(host string, port, backlog int, opts ...Option) (*Listener, error) {
	o := buildOptions(opts)

	addr, err := Resolve(host, port)
	if err != nil {
		return nil, err
	}

	l := &Listener{
		sock:          newSocketWithLogger(o.log),
		acceptTimeout: o.timeout,
		log:           o.log,
	}
	if err := l.sock.Create(unix.AF_INET, unix.SOCK_STREAM, 0); err != nil {
		return nil, err
	}

	fd := l.sock.Fd()
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		l.sock.Close()
		return nil, newError("setsockopt", err)
	}
	if err := unix.Bind(fd, addr.sockaddr()); err != nil {
		l.sock.Close()
		return nil, newError("bind", err)
	}
	if backlog <= 0 {
		backlog = unix.SOMAXCONN
	}
	if err := unix.Listen(fd, backlog); err != nil {
		l.sock.Close()
		return nil, newError("listen", err)
	}

	bound, err := l.sock.LocalAddr()
	if err != nil {
		l.sock.Close()
		return nil, err
	}
	l.addr = bound

	l.log.Debug("listening", "addr", bound.String(), "backlog", backlog)
	return l, nil
}

// Addr returns the bound address.
func (l *Listener) Addr() Addr {
	return l.addr
}

// Fd returns the listening descriptor.
func (l *Listener) Fd() int {
	return l.sock.Fd()
}

// SetAcceptTimeout bounds Accept. WaitInfinite (the default) blocks.
func (l *Listener) SetAcceptTimeout(d time.Duration) {
	l.acceptTimeout = d
}

// Accept waits for the next peer and returns a stream connected to it.
// Extra options configure the returned stream.
func (l *Listener) Accept(opts ...Option) (*Stream, error) {
	s := NewStream(append([]Option{WithLogger(l.log)}, opts...)...)
	if err := s.Accept(l); err != nil {
		return nil, err
	}
	return s, nil
}

func (l *Listener) accept() (int, unix.Sockaddr, error) {
	fd := l.sock.Fd()
	if fd < 0 {
		return -1, nil, newError("accept", unix.EBADF)
	}

	if l.acceptTimeout >= 0 {
		if err := waitFor(fd, unix.POLLIN, l.acceptTimeout); err != nil {
			return -1, nil, err
		}
	}

	for {
		nfd, sa, err := unix.Accept4(fd, unix.SOCK_CLOEXEC)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return -1, nil, newError("accept", err)
		}
		return nfd, sa, nil
	}
}

// Close stops listening and releases the descriptor. It is idempotent.
func (l *Listener) Close() error {
	if fd := l.sock.Fd(); fd >= 0 {
		_ = unix.Shutdown(fd, unix.SHUT_RDWR)
	}
	return l.sock.Close()
}
