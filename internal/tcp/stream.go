package tcp

import (
	"io"
	"log/slog"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Stream is a connected TCP socket with a read timeout.
//
// The timeout slot decides how Read and connect behave:
//   - WaitInfinite (< 0): blocking I/O
//   - 0: non-blocking; a read with nothing available fails with ErrTimeout
//   - > 0: wait up to that long for readiness
//
// Setting the timeout also sets the socket's blocking mode: the socket is
// non-blocking whenever the timeout is >= 0.
type Stream struct {
	sock    *Socket
	timeout time.Duration
	peer    Addr
	pending Addr
	log     *slog.Logger
}

// NewStream returns an unconnected stream.
func NewStream(opts ...Option) *Stream {
	o := buildOptions(opts)
	return &Stream{
		sock:    newSocketWithLogger(o.log),
		timeout: o.timeout,
		log:     o.log,
	}
}

// Socket exposes the underlying socket.
func (s *Stream) Socket() *Socket {
	return s.sock
}

// Fd returns the descriptor, or -1 when closed.
func (s *Stream) Fd() int {
	return s.sock.Fd()
}

// Valid reports whether the stream holds an open socket.
func (s *Stream) Valid() bool {
	return s.sock.Valid()
}

// PeerAddr returns the address of the connected or accepted peer. It is
// the zero Addr until a connect succeeds.
func (s *Stream) PeerAddr() Addr {
	return s.peer
}

// LocalAddr returns the local address of the socket.
func (s *Stream) LocalAddr() (Addr, error) {
	return s.sock.LocalAddr()
}

// Timeout returns the current timeout slot.
func (s *Stream) Timeout() time.Duration {
	return s.timeout
}

// SetTimeout stores d and, when a socket is open, switches it to
// non-blocking mode for d >= 0 and to blocking mode otherwise.
func (s *Stream) SetTimeout(d time.Duration) error {
	s.timeout = d
	if !s.sock.Valid() {
		return nil
	}
	return s.sock.SetNonblocking(d >= 0)
}

// Connect resolves host and connects to it.
func (s *Stream) Connect(host string, port int) error {
	addr, err := Resolve(host, port)
	if err != nil {
		return err
	}
	return s.ConnectAddr(addr)
}

// ConnectAddr connects to addr, bounded by the current timeout slot, and
// then applies that timeout to the connected socket. A failed connect
// releases the socket so the next attempt starts with a fresh one.
func (s *Stream) ConnectAddr(addr Addr) error {
	if !s.sock.Valid() {
		if err := s.sock.Create(unix.AF_INET, unix.SOCK_STREAM, 0); err != nil {
			return err
		}
	}
	s.peer = Addr{}

	s.log.Debug("connect", "addr", addr.String(), "timeout", s.timeout)

	var err error
	if s.timeout < 0 {
		err = s.connectBlocking(addr)
	} else {
		err = s.connectBounded(addr)
	}
	if err != nil {
		s.sock.Close()
		return err
	}
	s.peer = addr

	return s.SetTimeout(s.timeout)
}

func (s *Stream) connectBlocking(addr Addr) error {
	if err := s.sock.SetNonblocking(false); err != nil {
		return err
	}
	err := unix.Connect(s.sock.Fd(), addr.sockaddr())
	if err == unix.EINTR {
		// the handshake goes on in the kernel; wait for its outcome
		if err := waitFor(s.sock.Fd(), unix.POLLOUT, WaitInfinite); err != nil {
			return err
		}
		return s.connectResult()
	}
	if err != nil {
		return newError("connect", err)
	}
	return nil
}

func (s *Stream) connectBounded(addr Addr) error {
	saver, err := s.sock.SaveFlags()
	if err != nil {
		return err
	}
	defer saver.Restore()

	if err := s.sock.SetNonblocking(true); err != nil {
		return err
	}

	err = unix.Connect(s.sock.Fd(), addr.sockaddr())
	if err == nil {
		return nil
	}
	if err != unix.EINPROGRESS && err != unix.EINTR {
		return newError("connect", err)
	}

	if err := waitFor(s.sock.Fd(), unix.POLLOUT, s.timeout); err != nil {
		return err
	}
	return s.connectResult()
}

func (s *Stream) connectResult() error {
	soerr, err := unix.GetsockoptInt(s.sock.Fd(), unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return newError("getsockopt", err)
	}
	if soerr != 0 {
		return newError("connect", syscall.Errno(soerr))
	}
	return nil
}

// StartConnect begins a non-blocking connect to addr. It reports true when
// the connection was established at once; otherwise the caller waits for
// write readiness and calls FinishConnect.
func (s *Stream) StartConnect(addr Addr) (bool, error) {
	if !s.sock.Valid() {
		if err := s.sock.Create(unix.AF_INET, unix.SOCK_STREAM, 0); err != nil {
			return false, err
		}
	}
	s.peer = Addr{}

	if err := s.sock.SetNonblocking(true); err != nil {
		s.sock.Close()
		return false, err
	}

	err := unix.Connect(s.sock.Fd(), addr.sockaddr())
	switch err {
	case nil:
		s.peer = addr
		return true, s.SetTimeout(s.timeout)
	case unix.EINPROGRESS, unix.EINTR:
		s.pending = addr
		return false, nil
	default:
		s.sock.Close()
		return false, newError("connect", err)
	}
}

// FinishConnect checks the outcome of a connect started with StartConnect
// and applies the timeout slot.
func (s *Stream) FinishConnect() error {
	if !s.sock.Valid() {
		return newError("connect", unix.EBADF)
	}
	pending := s.pending
	s.pending = Addr{}
	if err := s.connectResult(); err != nil {
		s.sock.Close()
		return err
	}
	s.peer = pending
	return s.SetTimeout(s.timeout)
}

// Accept drops any previous connection and accepts the next peer of l.
func (s *Stream) Accept(l *Listener) error {
	s.Close()

	fd, sa, err := l.accept()
	if err != nil {
		return err
	}
	s.sock.adopt(fd, unix.AF_INET, unix.SOCK_STREAM, 0)
	s.peer = addrFromSockaddr(sa)

	s.log.Debug("accepted", "fd", fd, "peer", s.peer.String())
	return s.SetTimeout(s.timeout)
}

// Read reads up to len(p) bytes. A closed peer yields (0, io.EOF).
//
// With a timeout >= 0 the read is first tried without waiting; only when no
// data is available does it poll for readiness (unless the timeout is 0, in
// which case it fails with ErrTimeout right away) and then read once more.
func (s *Stream) Read(p []byte) (int, error) {
	fd := s.sock.Fd()
	if fd < 0 {
		return 0, newError("read", unix.EBADF)
	}
	if len(p) == 0 {
		return 0, nil
	}

	n, err := readOnce(fd, p)
	if err == unix.EAGAIN && s.timeout >= 0 {
		if s.timeout == 0 {
			return 0, ErrTimeout
		}
		s.log.Debug("poll for read", "fd", fd, "timeout", s.timeout)
		if err := waitFor(fd, unix.POLLIN, s.timeout); err != nil {
			return 0, err
		}
		n, err = readOnce(fd, p)
		if err == unix.EAGAIN {
			return 0, ErrTimeout
		}
	}
	if err != nil {
		return 0, newError("read", err)
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

func readOnce(fd int, p []byte) (int, error) {
	for {
		n, err := unix.Read(fd, p)
		if err == unix.EINTR {
			continue
		}
		return n, err
	}
}

// WriteOnce performs a single write(2). It returns ErrWouldBlock when a
// non-blocking socket accepted nothing, and a TransportError for any other
// failure including a write that accepted zero bytes.
func (s *Stream) WriteOnce(p []byte) (int, error) {
	fd := s.sock.Fd()
	if fd < 0 {
		return 0, newError("write", unix.EBADF)
	}
	if len(p) == 0 {
		return 0, nil
	}

	for {
		n, err := unix.Write(fd, p)
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN {
			return 0, ErrWouldBlock
		}
		if err != nil {
			return 0, newError("write", err)
		}
		if n <= 0 {
			return 0, newError("write", io.ErrShortWrite)
		}
		return n, nil
	}
}

// Write writes all of p. On a non-blocking socket it waits for write
// readiness within the timeout slot whenever the kernel buffer is full.
// The returned count tells how much was accepted before a failure.
func (s *Stream) Write(p []byte) (int, error) {
	written := 0
	for written < len(p) {
		n, err := s.WriteOnce(p[written:])
		written += n
		if err == ErrWouldBlock {
			if s.timeout == 0 {
				return written, ErrTimeout
			}
			if err := waitFor(s.sock.Fd(), unix.POLLOUT, s.timeout); err != nil {
				return written, err
			}
			continue
		}
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

// CloseWrite shuts down the sending side, signalling end-of-stream to the
// peer while still allowing reads.
func (s *Stream) CloseWrite() error {
	if !s.sock.Valid() {
		return newError("shutdown", unix.EBADF)
	}
	if err := unix.Shutdown(s.sock.Fd(), unix.SHUT_WR); err != nil {
		return newError("shutdown", err)
	}
	return nil
}

// Close releases the socket. It is idempotent.
func (s *Stream) Close() error {
	return s.sock.Close()
}
