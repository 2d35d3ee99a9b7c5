package http

import (
	"bufio"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

// replyFunc returns the raw bytes to answer a request with and whether the
// connection stays open for another request.
type replyFunc func(req string) (reply string, keepOpen bool)

type testServer struct {
	ln       net.Listener
	port     int
	requests chan string
	accepts  atomic.Int32

	mu    sync.Mutex
	conns []net.Conn
}

func newTestServer(t *testing.T, reply replyFunc) *testServer {
	t.Helper()

	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)

	s := &testServer{
		ln:       ln,
		port:     ln.Addr().(*net.TCPAddr).Port,
		requests: make(chan string, 16),
	}
	go s.serve(reply)

	t.Cleanup(func() {
		ln.Close()
		s.mu.Lock()
		defer s.mu.Unlock()
		for _, c := range s.conns {
			c.Close()
		}
	})
	return s
}

func (s *testServer) serve(reply replyFunc) {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.accepts.Add(1)
		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.mu.Unlock()
		go s.handle(conn, reply)
	}
}

func (s *testServer) handle(conn net.Conn, reply replyFunc) {
	defer conn.Close()
	br := bufio.NewReader(conn)
	for {
		req, err := readRawRequest(br)
		if err != nil {
			return
		}
		s.requests <- req

		resp, keepOpen := reply(req)
		if _, err := io.WriteString(conn, resp); err != nil {
			return
		}
		if !keepOpen {
			return
		}
	}
}

// readRawRequest reads one request head plus its Content-Length body.
func readRawRequest(br *bufio.Reader) (string, error) {
	var sb strings.Builder
	length := 0
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return "", err
		}
		sb.WriteString(line)
		if line == "\r\n" {
			break
		}
		if name, value, ok := strings.Cut(line, ":"); ok && strings.EqualFold(name, "Content-Length") {
			length, _ = strconv.Atoi(strings.TrimSpace(value))
		}
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(br, body); err != nil {
		return "", err
	}
	sb.Write(body)
	return sb.String(), nil
}

func fixed(reply string) replyFunc {
	return func(string) (string, bool) {
		return reply, true
	}
}

func closing(reply string) replyFunc {
	return func(string) (string, bool) {
		return reply, false
	}
}

// silent never answers.
func silent(string) (string, bool) {
	return "", true
}
