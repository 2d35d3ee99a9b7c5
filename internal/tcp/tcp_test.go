package tcp

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/wesleyorama2/netwire/internal/logx"
)

// peer starts a loopback listener from the standard library and returns the
// port plus a channel delivering the first accepted connection.
func peer(t *testing.T) (int, <-chan net.Conn) {
	t.Helper()

	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	conns := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			close(conns)
			return
		}
		conns <- c
	}()

	return ln.Addr().(*net.TCPAddr).Port, conns
}

func connected(t *testing.T, timeout time.Duration) (*Stream, net.Conn) {
	t.Helper()

	port, conns := peer(t)
	s := NewStream(WithTimeout(timeout))
	require.NoError(t, s.Connect("127.0.0.1", port))
	t.Cleanup(func() { s.Close() })

	select {
	case c := <-conns:
		require.NotNil(t, c)
		t.Cleanup(func() { c.Close() })
		return s, c
	case <-time.After(5 * time.Second):
		t.Fatal("peer did not accept")
	}
	return nil, nil
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name    string
		host    string
		port    int
		want    string
		wantErr bool
	}{
		{name: "ipv4 literal", host: "127.0.0.1", port: 80, want: "127.0.0.1:80"},
		{name: "wildcard", host: "", port: 8080, want: "0.0.0.0:8080"},
		{name: "localhost", host: "localhost", port: 1, want: "127.0.0.1:1"},
		{name: "ipv6 literal", host: "::1", port: 80, wantErr: true},
		{name: "port out of range", host: "127.0.0.1", port: 70000, wantErr: true},
		{name: "unknown host", host: "no-such-host.invalid", port: 80, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr, err := Resolve(tt.host, tt.port)
			if tt.wantErr {
				var rerr *ResolveError
				assert.ErrorAs(t, err, &rerr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, addr.String())
		})
	}
}

func TestParseAddr(t *testing.T) {
	addr, err := ParseAddr("127.0.0.1:9000")
	require.NoError(t, err)
	assert.Equal(t, 9000, addr.Port)

	_, err = ParseAddr("127.0.0.1")
	var rerr *ResolveError
	assert.ErrorAs(t, err, &rerr)

	_, err = ParseAddr("127.0.0.1:http")
	assert.ErrorAs(t, err, &rerr)
}

func TestSocket_CloseIsIdempotent(t *testing.T) {
	s := NewSocket()
	assert.NoError(t, s.Close(), "closing a never-opened socket")

	require.NoError(t, s.Create(unix.AF_INET, unix.SOCK_STREAM, 0))
	assert.True(t, s.Valid())

	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
	assert.False(t, s.Valid())
	assert.Equal(t, -1, s.Fd())
}

func TestSocket_CreateReplacesDescriptor(t *testing.T) {
	s := NewSocket()
	defer s.Close()

	require.NoError(t, s.Create(unix.AF_INET, unix.SOCK_STREAM, 0))
	require.NoError(t, s.SetNonblocking(true))
	require.NoError(t, s.Create(unix.AF_INET, unix.SOCK_STREAM, 0))

	nb, err := s.Nonblocking()
	require.NoError(t, err)
	assert.False(t, nb, "a fresh descriptor starts in blocking mode")
}

func TestSocket_LocalAddrOnClosedSocket(t *testing.T) {
	_, err := NewSocket().LocalAddr()
	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "getsockname", terr.Op)
	assert.ErrorIs(t, err, unix.EBADF)
}

func TestSocket_Release(t *testing.T) {
	s := NewSocket()
	require.NoError(t, s.Create(unix.AF_INET, unix.SOCK_STREAM, 0))

	fd := s.Release()
	assert.False(t, s.Valid())
	assert.NoError(t, unix.Close(fd))
}

func TestFlagSaver_RestoresFlags(t *testing.T) {
	s := NewSocket()
	require.NoError(t, s.Create(unix.AF_INET, unix.SOCK_STREAM, 0))
	defer s.Close()

	nb, err := s.Nonblocking()
	require.NoError(t, err)
	require.False(t, nb)

	failing := func() error {
		saver, err := s.SaveFlags()
		if err != nil {
			return err
		}
		defer saver.Restore()

		if err := s.SetNonblocking(true); err != nil {
			return err
		}
		return errors.New("boom")
	}
	require.Error(t, failing())

	nb, err = s.Nonblocking()
	require.NoError(t, err)
	assert.False(t, nb, "flags restored on the error path")

	var saver *FlagSaver
	assert.NotPanics(t, saver.Restore)
}

func TestFlagSaver_LogsRestoreFailure(t *testing.T) {
	var buf bytes.Buffer
	s := newSocketWithLogger(logx.New(&buf, slog.LevelWarn))
	require.NoError(t, s.Create(unix.AF_INET, unix.SOCK_STREAM, 0))

	saver, err := s.SaveFlags()
	require.NoError(t, err)

	// the descriptor goes away under the saver
	require.NoError(t, unix.Close(s.Release()))
	saver.Restore()

	assert.Contains(t, buf.String(), "error restoring flags")
	assert.Contains(t, buf.String(), "bad file descriptor")
}

func closeOnExec(t *testing.T, fd int) bool {
	t.Helper()
	flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0)
	require.NoError(t, err)
	return flags&unix.FD_CLOEXEC != 0
}

func TestSocket_CreateSetsCloseOnExec(t *testing.T) {
	s := NewSocket()
	require.NoError(t, s.Create(unix.AF_INET, unix.SOCK_STREAM, 0))
	defer s.Close()

	assert.True(t, closeOnExec(t, s.Fd()))
}

func TestStream_SetTimeoutTogglesBlockingMode(t *testing.T) {
	s, _ := connected(t, WaitInfinite)

	tests := []struct {
		timeout     time.Duration
		nonblocking bool
	}{
		{WaitInfinite, false},
		{0, true},
		{50 * time.Millisecond, true},
		{-5, false},
	}

	for _, tt := range tests {
		t.Run(tt.timeout.String(), func(t *testing.T) {
			require.NoError(t, s.SetTimeout(tt.timeout))
			assert.Equal(t, tt.timeout, s.Timeout())

			nb, err := s.Socket().Nonblocking()
			require.NoError(t, err)
			assert.Equal(t, tt.nonblocking, nb)
		})
	}
}

func TestStream_SetTimeoutBeforeConnect(t *testing.T) {
	s := NewStream()
	assert.NoError(t, s.SetTimeout(time.Second))
	assert.Equal(t, time.Second, s.Timeout())
}

func TestStream_ReadBlocking(t *testing.T) {
	s, c := connected(t, WaitInfinite)

	go func() {
		time.Sleep(50 * time.Millisecond)
		c.Write([]byte("late"))
	}()

	buf := make([]byte, 16)
	n, err := s.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "late", string(buf[:n]))
}

func TestStream_ReadZeroTimeout(t *testing.T) {
	s, c := connected(t, 0)

	start := time.Now()
	_, err := s.Read(make([]byte, 8))
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 50*time.Millisecond)

	_, err = c.Write([]byte("x"))
	require.NoError(t, err)

	// data now arrives without a readiness wait
	require.Eventually(t, func() bool {
		n, err := s.Read(make([]byte, 8))
		return err == nil && n == 1
	}, time.Second, 5*time.Millisecond)
}

func TestStream_ReadBoundedTimeout(t *testing.T) {
	t.Run("elapses", func(t *testing.T) {
		s, _ := connected(t, 100*time.Millisecond)

		start := time.Now()
		_, err := s.Read(make([]byte, 8))
		elapsed := time.Since(start)

		assert.ErrorIs(t, err, ErrTimeout)
		var terr *TransportError
		assert.False(t, errors.As(err, &terr), "timeout is not a transport error")
		assert.GreaterOrEqual(t, elapsed, 90*time.Millisecond)
		assert.Less(t, elapsed, time.Second)
	})

	t.Run("ready in time", func(t *testing.T) {
		s, c := connected(t, time.Second)

		go func() {
			time.Sleep(30 * time.Millisecond)
			c.Write([]byte("ok"))
		}()

		buf := make([]byte, 8)
		n, err := s.Read(buf)
		require.NoError(t, err)
		assert.Equal(t, "ok", string(buf[:n]))
	})
}

func TestStream_ReadEOF(t *testing.T) {
	for _, timeout := range []time.Duration{WaitInfinite, time.Second} {
		t.Run(timeout.String(), func(t *testing.T) {
			s, c := connected(t, timeout)
			require.NoError(t, c.Close())

			n, err := s.Read(make([]byte, 8))
			assert.Equal(t, 0, n)
			assert.Equal(t, io.EOF, err)
		})
	}
}

func TestStream_ReadClosed(t *testing.T) {
	s := NewStream()
	_, err := s.Read(make([]byte, 1))
	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "read", terr.Op)
}

func TestStream_WriteToClosedPeer(t *testing.T) {
	s, c := connected(t, time.Second)

	// an abortive close makes the next writes fail with ECONNRESET/EPIPE
	require.NoError(t, c.(*net.TCPConn).SetLinger(0))
	require.NoError(t, c.Close())

	var err error
	payload := make([]byte, 4096)
	for i := 0; i < 100 && err == nil; i++ {
		_, err = s.Write(payload)
		if err == nil {
			time.Sleep(5 * time.Millisecond)
		}
	}

	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "write", terr.Op)
}

func TestStream_WriteOnceWouldBlock(t *testing.T) {
	s, _ := connected(t, 0)

	payload := make([]byte, 64*1024)
	var err error
	for i := 0; i < 10000 && err == nil; i++ {
		_, err = s.WriteOnce(payload)
	}
	assert.ErrorIs(t, err, ErrWouldBlock)

	_, err = s.Write(payload)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestStream_ConnectRefused(t *testing.T) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	for _, timeout := range []time.Duration{WaitInfinite, time.Second} {
		t.Run(timeout.String(), func(t *testing.T) {
			s := NewStream(WithTimeout(timeout))
			err := s.Connect("127.0.0.1", port)

			var terr *TransportError
			require.ErrorAs(t, err, &terr)
			assert.Equal(t, "connect", terr.Op)
			assert.False(t, s.Valid(), "failed connect releases the socket")
			assert.Equal(t, Addr{}, s.PeerAddr(), "no peer after a failed connect")
		})
	}
}

func TestStream_StartConnectRefused(t *testing.T) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	addr, err := Resolve("127.0.0.1", ln.Addr().(*net.TCPAddr).Port)
	require.NoError(t, err)
	ln.Close()

	s := NewStream(WithTimeout(time.Second))
	defer s.Close()

	done, err := s.StartConnect(addr)
	if err == nil {
		require.False(t, done)
		assert.Equal(t, Addr{}, s.PeerAddr(), "no peer while the connect is pending")

		fds := []unix.PollFd{{Fd: int32(s.Fd()), Events: unix.POLLOUT}}
		_, perr := unix.Poll(fds, 1000)
		require.NoError(t, perr)
		err = s.FinishConnect()
	}

	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "connect", terr.Op)
	assert.False(t, s.Valid())
	assert.Equal(t, Addr{}, s.PeerAddr())
}

func TestStream_ConnectUnknownHost(t *testing.T) {
	s := NewStream()
	err := s.Connect("no-such-host.invalid", 80)
	var rerr *ResolveError
	assert.ErrorAs(t, err, &rerr)
}

func TestStream_StartConnect(t *testing.T) {
	port, conns := peer(t)
	addr, err := Resolve("127.0.0.1", port)
	require.NoError(t, err)

	s := NewStream(WithTimeout(time.Second))
	defer s.Close()

	done, err := s.StartConnect(addr)
	require.NoError(t, err)
	if !done {
		fds := []unix.PollFd{{Fd: int32(s.Fd()), Events: unix.POLLOUT}}
		_, err := unix.Poll(fds, 1000)
		require.NoError(t, err)
		require.NoError(t, s.FinishConnect())
	}

	c := <-conns
	require.NotNil(t, c)
	defer c.Close()

	local, err := s.LocalAddr()
	require.NoError(t, err)
	assert.Equal(t, c.RemoteAddr().(*net.TCPAddr).Port, local.Port)
	assert.Equal(t, port, s.PeerAddr().Port)
}

func TestListener(t *testing.T) {
	l, err := Listen("127.0.0.1", 0, 0)
	require.NoError(t, err)
	defer l.Close()

	port := l.Addr().Port
	require.NotZero(t, port)

	go func() {
		c, err := net.Dial("tcp4", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
		if err != nil {
			return
		}
		defer c.Close()
		c.Write([]byte("hi"))
		io.Copy(io.Discard, c)
	}()

	s, err := l.Accept(WithTimeout(time.Second))
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, time.Second, s.Timeout())
	assert.Equal(t, "127.0.0.1", s.PeerAddr().IP.String())
	assert.True(t, closeOnExec(t, s.Fd()), "accepted descriptor")
	assert.True(t, closeOnExec(t, l.sock.Fd()), "listening descriptor")

	buf := make([]byte, 8)
	n, err := s.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "hi", string(buf[:n]))
}

func TestListener_Errors(t *testing.T) {
	t.Run("unknown host", func(t *testing.T) {
		_, err := Listen("no-such-host.invalid", 0, 0)
		var rerr *ResolveError
		assert.ErrorAs(t, err, &rerr)
		var terr *TransportError
		assert.False(t, errors.As(err, &terr))
	})

	t.Run("address in use", func(t *testing.T) {
		ln, err := net.Listen("tcp4", "127.0.0.1:0")
		require.NoError(t, err)
		defer ln.Close()

		_, err = Listen("127.0.0.1", ln.Addr().(*net.TCPAddr).Port, 0)
		var terr *TransportError
		require.ErrorAs(t, err, &terr)
		assert.Equal(t, "bind", terr.Op)
	})

	t.Run("accept timeout", func(t *testing.T) {
		l, err := Listen("127.0.0.1", 0, 1)
		require.NoError(t, err)
		defer l.Close()

		l.SetAcceptTimeout(20 * time.Millisecond)
		_, err = l.Accept()
		assert.ErrorIs(t, err, ErrTimeout)
	})

	t.Run("closed", func(t *testing.T) {
		l, err := Listen("127.0.0.1", 0, 1)
		require.NoError(t, err)
		require.NoError(t, l.Close())
		assert.NoError(t, l.Close())

		_, err = l.Accept()
		var terr *TransportError
		assert.ErrorAs(t, err, &terr)
	})
}

func TestStreamBuf_RoundTrip(t *testing.T) {
	s, c := connected(t, time.Second)

	// a tiny buffer forces several overflows
	b := NewStreamBuf(s, 7)
	msg := "GET / HTTP/1.1\r\nHost: example\r\n\r\n"

	_, err := b.WriteString(msg[:10])
	require.NoError(t, err)
	_, err = b.Write([]byte(msg[10:20]))
	require.NoError(t, err)
	for i := 20; i < len(msg); i++ {
		require.NoError(t, b.WriteByte(msg[i]))
	}
	require.NoError(t, b.Flush())
	assert.Equal(t, 0, b.Pending())

	got := make([]byte, len(msg))
	require.NoError(t, c.SetReadDeadline(time.Now().Add(time.Second)))
	_, err = io.ReadFull(c, got)
	require.NoError(t, err)
	assert.Equal(t, msg, string(got))
}

func TestStreamBuf_ReadAcrossRefills(t *testing.T) {
	s, c := connected(t, time.Second)
	b := NewStreamBuf(s, 4)

	go func() {
		c.Write([]byte("HTTP/1.1 200 OK\r\nX: y\nbody"))
		c.Close()
	}()

	line, err := b.ReadLine(0)
	require.NoError(t, err)
	assert.Equal(t, "HTTP/1.1 200 OK", line)

	line, err = b.ReadLine(0)
	require.NoError(t, err)
	assert.Equal(t, "X: y", line)

	c1, err := b.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, byte('b'), c1)
	require.NoError(t, b.UnreadByte())
	assert.Error(t, b.UnreadByte())

	rest, err := io.ReadAll(b)
	require.NoError(t, err)
	assert.Equal(t, "body", string(rest))
}

type scriptedRW struct {
	reads  []string
	rerr   error
	wrote  []byte
	werr   error
	wlimit int
}

func (s *scriptedRW) Read(p []byte) (int, error) {
	if len(s.reads) == 0 {
		return 0, s.rerr
	}
	n := copy(p, s.reads[0])
	s.reads[0] = s.reads[0][n:]
	if s.reads[0] == "" {
		s.reads = s.reads[1:]
	}
	return n, nil
}

func (s *scriptedRW) Write(p []byte) (int, error) {
	if s.werr != nil {
		return 0, s.werr
	}
	n := len(p)
	if s.wlimit > 0 && n > s.wlimit {
		n = s.wlimit
	}
	s.wrote = append(s.wrote, p[:n]...)
	return n, nil
}

func TestStreamBuf_ReadLine(t *testing.T) {
	tests := []struct {
		name    string
		reads   []string
		max     int
		want    string
		wantErr error
	}{
		{name: "crlf", reads: []string{"abc\r\n"}, want: "abc"},
		{name: "bare lf", reads: []string{"abc\n"}, want: "abc"},
		{name: "split", reads: []string{"ab", "c\r", "\n"}, want: "abc"},
		{name: "empty line", reads: []string{"\r\n"}, want: ""},
		{name: "too long", reads: []string{"abcdef\r\n"}, max: 3, wantErr: ErrLineTooLong},
		{name: "too long unterminated", reads: []string{"abcd", "efgh"}, max: 3, wantErr: ErrLineTooLong},
		{name: "eof mid line", reads: []string{"abc"}, wantErr: io.ErrUnexpectedEOF},
		{name: "eof", reads: nil, wantErr: io.EOF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewStreamBuf(&scriptedRW{reads: tt.reads, rerr: io.EOF}, 4)
			line, err := b.ReadLine(tt.max)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, line)
		})
	}
}

func TestStreamBuf_UnderflowKeepsTimeout(t *testing.T) {
	b := NewStreamBuf(&scriptedRW{reads: []string{"ab"}, rerr: ErrTimeout}, 0)
	assert.Equal(t, DefaultBufferSize, b.Size())

	buf := make([]byte, 8)
	n, err := b.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 0, b.Buffered())

	_, err = b.Read(buf)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestStreamBuf_WriteFailureIsSticky(t *testing.T) {
	boom := errors.New("boom")
	rw := &scriptedRW{werr: boom}
	b := NewStreamBuf(rw, 4)

	n, err := b.Write([]byte("abcd"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	n, err = b.Write([]byte("efgh"))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, n)
	assert.Equal(t, 0, b.Pending(), "overflow resets the buffer")

	assert.ErrorIs(t, b.Flush(), boom)
	assert.ErrorIs(t, b.WriteByte('x'), boom)

	b.Reset(&scriptedRW{})
	assert.NoError(t, b.WriteByte('x'))
	assert.NoError(t, b.Flush())
}

func TestStreamBuf_ShortWrite(t *testing.T) {
	b := NewStreamBuf(&scriptedRW{wlimit: 2}, 8)
	_, err := b.WriteString("abcd")
	require.NoError(t, err)
	assert.ErrorIs(t, b.Flush(), io.ErrShortWrite)
}
