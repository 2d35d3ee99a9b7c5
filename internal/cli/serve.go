package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/indigo-web/utils/strcomp"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/wesleyorama2/netwire/internal/output"
	"github.com/wesleyorama2/netwire/internal/tcp"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	maxRequestLine = 8192
	maxFields      = 100
	maxEchoBody    = 1 << 20
	acceptPoll     = 200 * time.Millisecond
)

func newServeCmd(g *globalOptions) *cobra.Command {
	var listen string
	var chunked bool
	var idle time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a small HTTP/1.1 echo server",
		Long: `Run an HTTP/1.1 server that answers every request with a JSON document
describing it: method, target, query, headers and body. A target of the
form /status/CODE answers with that status code. Useful as a local peer
for get, post, run and bench.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := g.logger(cmd)
			if err != nil {
				return err
			}
			addr, err := tcp.ParseAddr(listen)
			if err != nil {
				return err
			}

			srv, err := newEchoServer(addr, chunked, idle, log)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s Listening on http://%s\n", output.InfoIcon(g.colorless(out)), srv.Addr())
			return srv.Serve(cmd.Context())
		},
	}

	cmd.Flags().StringVarP(&listen, "listen", "l", "127.0.0.1:8080", "Address to listen on")
	cmd.Flags().BoolVar(&chunked, "chunked", false, "Send replies with chunked transfer encoding")
	cmd.Flags().DurationVar(&idle, "idle-timeout", 30*time.Second, "Close connections idle for this long")
	return cmd
}

// echoServer answers each request with a JSON description of it.
type echoServer struct {
	ln      *tcp.Listener
	chunked bool
	idle    time.Duration
	log     *slog.Logger
	wg      sync.WaitGroup
}

func newEchoServer(addr tcp.Addr, chunked bool, idle time.Duration, log *slog.Logger) (*echoServer, error) {
	ln, err := tcp.Listen(addr.IP.String(), addr.Port, 0, tcp.WithLogger(log))
	if err != nil {
		return nil, err
	}
	ln.SetAcceptTimeout(acceptPoll)
	return &echoServer{ln: ln, chunked: chunked, idle: idle, log: log}, nil
}

// Addr returns the address the server is bound to.
func (s *echoServer) Addr() tcp.Addr {
	return s.ln.Addr()
}

// Serve accepts connections until ctx is done, then closes the listener
// and waits for open connections to finish.
func (s *echoServer) Serve(ctx context.Context) error {
	defer s.wg.Wait()
	defer s.ln.Close()

	for ctx.Err() == nil {
		st, err := s.ln.Accept(tcp.WithTimeout(s.idle))
		if errors.Is(err, tcp.ErrTimeout) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			return err
		}

		s.log.Debug("connection accepted", "peer", st.PeerAddr().String())
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(st)
		}()
	}
	return nil
}

type echoRequest struct {
	method  string
	target  string
	proto   string
	headers [][2]string
	body    []byte
	close   bool
}

func (s *echoServer) serveConn(st *tcp.Stream) {
	defer st.Close()
	buf := tcp.NewStreamBuf(st, 0)

	for {
		req, err := readEchoRequest(buf)
		if err != nil {
			if err != io.EOF {
				s.log.Debug("bad request", "peer", st.PeerAddr().String(), "err", err)
			}
			return
		}
		if err := s.reply(buf, req); err != nil {
			s.log.Debug("reply failed", "err", err)
			return
		}
		if req.close {
			return
		}
	}
}

func readEchoRequest(buf *tcp.StreamBuf) (*echoRequest, error) {
	line, err := buf.ReadLine(maxRequestLine)
	if err != nil {
		return nil, err
	}
	parts := strings.SplitN(line, " ", 3)
	if len(parts) != 3 || !strings.HasPrefix(parts[2], "HTTP/1.") {
		return nil, fmt.Errorf("malformed request line %q", line)
	}
	req := &echoRequest{method: parts[0], target: parts[1], proto: parts[2]}

	length := 0
	keepAlive := false
	for {
		line, err := buf.ReadLine(maxRequestLine)
		if err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return nil, err
		}
		if line == "" {
			break
		}
		if len(req.headers) == maxFields {
			return nil, errors.New("too many header fields")
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("malformed header line %q", line)
		}
		name, value = strings.TrimSpace(name), strings.TrimSpace(value)
		req.headers = append(req.headers, [2]string{name, value})

		switch {
		case strcomp.EqualFold(name, "content-length"):
			if length, err = strconv.Atoi(value); err != nil || length < 0 || length > maxEchoBody {
				return nil, fmt.Errorf("bad Content-Length %q", value)
			}
		case strcomp.EqualFold(name, "transfer-encoding"):
			return nil, errors.New("request transfer encodings are not supported")
		case strcomp.EqualFold(name, "connection"):
			v := strings.ToLower(value)
			req.close = strings.Contains(v, "close")
			keepAlive = strings.Contains(v, "keep-alive")
		}
	}
	if req.proto == "HTTP/1.0" && !keepAlive {
		req.close = true
	}

	if length > 0 {
		req.body = make([]byte, length)
		if _, err := io.ReadFull(buf, req.body); err != nil {
			return nil, err
		}
	}
	return req, nil
}

type echoReply struct {
	Method  string              `json:"method"`
	Target  string              `json:"target"`
	Path    string              `json:"path"`
	Query   map[string][]string `json:"query,omitempty"`
	Headers map[string]string   `json:"headers"`
	Body    string              `json:"body,omitempty"`
}

var statusText = map[int]string{
	200: "OK",
	201: "Created",
	204: "No Content",
	301: "Moved Permanently",
	302: "Found",
	304: "Not Modified",
	400: "Bad Request",
	401: "Unauthorized",
	403: "Forbidden",
	404: "Not Found",
	500: "Internal Server Error",
	502: "Bad Gateway",
	503: "Service Unavailable",
}

func (s *echoServer) reply(buf *tcp.StreamBuf, req *echoRequest) error {
	status := 200
	u, err := url.ParseRequestURI(req.target)
	if err != nil {
		status = 400
		u = &url.URL{Path: req.target}
	}
	if code, ok := strings.CutPrefix(u.Path, "/status/"); ok {
		if n, err := strconv.Atoi(code); err == nil && n >= 200 && n <= 599 {
			status = n
		}
	}

	var body []byte
	if status != 204 && status != 304 {
		doc := echoReply{
			Method:  req.method,
			Target:  req.target,
			Path:    u.Path,
			Headers: make(map[string]string, len(req.headers)),
			Body:    string(req.body),
		}
		if q := u.Query(); len(q) > 0 {
			doc.Query = q
		}
		for _, h := range req.headers {
			doc.Headers[h[0]] = h[1]
		}
		if body, err = json.Marshal(doc); err != nil {
			return err
		}
	}

	text, ok := statusText[status]
	if !ok {
		text = "Status " + strconv.Itoa(status)
	}
	fmt.Fprintf(buf, "HTTP/1.1 %d %s\r\n", status, text)
	buf.WriteString("Server: netwire\r\n")
	if req.close {
		buf.WriteString("Connection: close\r\n")
	}
	if body != nil {
		buf.WriteString("Content-Type: application/json\r\n")
	}

	switch {
	case req.method == "HEAD" || body == nil:
		fmt.Fprintf(buf, "Content-Length: %d\r\n\r\n", len(body))
	case s.chunked:
		buf.WriteString("Transfer-Encoding: chunked\r\n\r\n")
		writeChunks(buf, body)
	default:
		fmt.Fprintf(buf, "Content-Length: %d\r\n\r\n", len(body))
		buf.Write(body)
	}
	return buf.Flush()
}

// writeChunks sends body as two chunks and the terminating zero chunk.
func writeChunks(w io.Writer, body []byte) {
	half := len(body) / 2
	for _, chunk := range [][]byte{body[:half], body[half:]} {
		if len(chunk) == 0 {
			continue
		}
		fmt.Fprintf(w, "%x\r\n", len(chunk))
		w.Write(chunk)
		io.WriteString(w, "\r\n")
	}
	io.WriteString(w, "0\r\n\r\n")
}
