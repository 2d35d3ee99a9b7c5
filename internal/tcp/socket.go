package tcp

import (
	"log/slog"

	"golang.org/x/sys/unix"

	"github.com/wesleyorama2/netwire/internal/logx"
)

// Socket owns one OS socket descriptor. A Socket is used through a pointer
// and never copied, so a live descriptor always has exactly one owner.
type Socket struct {
	fd     int
	family int
	typ    int
	proto  int
	log    *slog.Logger
}

// NewSocket returns a closed socket.
func NewSocket() *Socket {
	return &Socket{fd: -1, log: logx.Discard}
}

func newSocketWithLogger(l *slog.Logger) *Socket {
	s := NewSocket()
	s.log = logx.OrDiscard(l)
	return s
}

// Create allocates a new descriptor, closing any previously held one first.
func (s *Socket) Create(family, typ, proto int) error {
	s.Close()

	fd, err := unix.Socket(family, typ|unix.SOCK_CLOEXEC, proto)
	if err != nil {
		return newError("socket", err)
	}

	s.adopt(fd, family, typ, proto)
	s.log.Debug("socket created", "fd", fd)
	return nil
}

func (s *Socket) adopt(fd, family, typ, proto int) {
	s.fd = fd
	s.family = family
	s.typ = typ
	s.proto = proto
}

// Close releases the descriptor. Closing a closed socket does nothing.
// Close always returns nil; a failing close(2) is only logged.
func (s *Socket) Close() error {
	if s.fd < 0 {
		return nil
	}
	fd := s.fd
	s.fd = -1
	if err := unix.Close(fd); err != nil {
		s.log.Warn("error in close", "fd", fd, "err", err)
	}
	return nil
}

// Release hands the descriptor to the caller and leaves the socket closed.
func (s *Socket) Release() int {
	fd := s.fd
	s.fd = -1
	return fd
}

// Fd returns the descriptor, or -1 when closed.
func (s *Socket) Fd() int {
	return s.fd
}

// Valid reports whether the socket holds an open descriptor.
func (s *Socket) Valid() bool {
	return s.fd >= 0
}

// LocalAddr returns the address the socket is bound to.
func (s *Socket) LocalAddr() (Addr, error) {
	if s.fd < 0 {
		return Addr{}, newError("getsockname", unix.EBADF)
	}
	sa, err := unix.Getsockname(s.fd)
	if err != nil {
		return Addr{}, newError("getsockname", err)
	}
	return addrFromSockaddr(sa), nil
}

// Nonblocking reports the live O_NONBLOCK flag of the descriptor.
func (s *Socket) Nonblocking() (bool, error) {
	if s.fd < 0 {
		return false, newError("fcntl", unix.EBADF)
	}
	flags, err := unix.FcntlInt(uintptr(s.fd), unix.F_GETFL, 0)
	if err != nil {
		return false, newError("fcntl", err)
	}
	return flags&unix.O_NONBLOCK != 0, nil
}

// SetNonblocking switches the descriptor between blocking and non-blocking
// mode.
func (s *Socket) SetNonblocking(on bool) error {
	if s.fd < 0 {
		return newError("fcntl", unix.EBADF)
	}
	if err := unix.SetNonblock(s.fd, on); err != nil {
		return newError("fcntl", err)
	}
	return nil
}

// SaveFlags captures the current file status flags. The returned saver puts
// them back on Restore, which is meant to be deferred:
//
//	saver, err := sock.SaveFlags()
//	if err != nil {
//	    return err
//	}
//	defer saver.Restore()
func (s *Socket) SaveFlags() (*FlagSaver, error) {
	if s.fd < 0 {
		return nil, newError("fcntl", unix.EBADF)
	}
	flags, err := unix.FcntlInt(uintptr(s.fd), unix.F_GETFL, 0)
	if err != nil {
		return nil, newError("fcntl", err)
	}
	return &FlagSaver{fd: s.fd, flags: flags, log: s.log}, nil
}

// FlagSaver restores file status flags captured by Socket.SaveFlags.
type FlagSaver struct {
	fd       int
	flags    int
	restored bool
	log      *slog.Logger
}

// Restore puts the saved flags back. It is safe on a nil saver and only
// acts once. A failing fcntl(2) is logged, not returned.
func (f *FlagSaver) Restore() {
	if f == nil || f.restored {
		return
	}
	f.restored = true
	if _, err := unix.FcntlInt(uintptr(f.fd), unix.F_SETFL, f.flags); err != nil {
		logx.OrDiscard(f.log).Warn("error restoring flags", "fd", f.fd, "err", err)
	}
}
