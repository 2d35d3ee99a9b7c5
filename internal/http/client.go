package http

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/wesleyorama2/netwire/internal/logx"
	"github.com/wesleyorama2/netwire/internal/reactor"
	"github.com/wesleyorama2/netwire/internal/tcp"
)

// WaitInfinite disables a timeout.
const WaitInfinite = tcp.WaitInfinite

// State is the stage of the request currently handled by a Client.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateSending
	StateRequestSent
	StateHeaderReceived
	StateBodyStreaming
	StateReplyFinished
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateSending:
		return "sending"
	case StateRequestSent:
		return "request-sent"
	case StateHeaderReceived:
		return "header-received"
	case StateBodyStreaming:
		return "body-streaming"
	case StateReplyFinished:
		return "reply-finished"
	case StateError:
		return "error"
	}
	return "unknown"
}

// Client is an HTTP/1.1 client bound to one server. It runs one request at
// a time, either blocking (Execute, ReadBody, Get) or driven by a reactor
// selector (BeginExecute, EndExecute).
//
// A Client owns its connection. It is used through a pointer; everyone
// holding the pointer shares the connection and sees the effects of
// Connect and Cancel. It is not safe for concurrent use.
type Client struct {
	// RequestSent fires once the whole request has been written.
	RequestSent Signal
	// HeaderReceived fires once the reply header has been parsed.
	HeaderReceived Signal
	// ReplyFinished fires exactly once per asynchronous request, after the
	// body has been delivered or an error was recorded.
	ReplyFinished Signal
	// BodyAvailable receives body bytes of asynchronous requests. When nil
	// the body is discarded.
	BodyAvailable BodyDelegate

	host     string
	port     int
	addr     tcp.Addr
	resolved bool

	timeout        time.Duration
	connectTimeout time.Duration
	bufSize        int
	eager          bool
	headers        Header
	authValue      string
	selector       *reactor.Selector
	log            *slog.Logger

	stream   *tcp.Stream
	buf      *tcp.StreamBuf
	reusable bool
	scratch  []byte

	state  State
	req    *Request
	reply  *ReplyHeader
	parser replyParser
	body   bodyDecoder
	timer  timer

	// asynchronous request
	pending    bool
	err        error
	out        []byte
	outPos     int
	in         []byte
	bodyBuf    []byte
	registered int
}

// Option is a function that configures a Client
type Option func(*Client)

// WithTimeout sets the default read timeout used by Do.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithConnectTimeout sets the default connect timeout used by Do and by
// eager connects. Left at WaitInfinite it falls back to the read timeout.
func WithConnectTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.connectTimeout = timeout
	}
}

// WithSelector sets the selector for asynchronous requests.
func WithSelector(s *reactor.Selector) Option {
	return func(c *Client) {
		c.selector = s
	}
}

// WithLogger routes client debug output to l.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.log = logx.OrDiscard(l)
	}
}

// WithAuth sets Basic credentials for every request.
func WithAuth(user, password string) Option {
	return func(c *Client) {
		c.Auth(user, password)
	}
}

// WithHeader adds a header sent with every request
func WithHeader(key, value string) Option {
	return func(c *Client) {
		c.headers.Set(key, value)
	}
}

// WithBufferSize sets the size of the stream buffers.
func WithBufferSize(n int) Option {
	return func(c *Client) {
		c.bufSize = n
	}
}

// WithEagerConnect makes the constructor connect right away.
func WithEagerConnect() Option {
	return func(c *Client) {
		c.eager = true
	}
}

func newClient(opts []Option) *Client {
	c := &Client{
		timeout:        WaitInfinite,
		connectTimeout: WaitInfinite,
		bufSize:        tcp.DefaultBufferSize,
		log:            logx.Discard,
		registered:     -1,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.bufSize <= 0 {
		c.bufSize = tcp.DefaultBufferSize
	}
	c.scratch = make([]byte, c.bufSize)
	return c
}

// NewClient creates a client for host:port. The connection is opened on
// the first request unless WithEagerConnect is given.
func NewClient(host string, port int, opts ...Option) (*Client, error) {
	c := newClient(opts)
	if err := c.Connect(host, port, c.eager); err != nil {
		return nil, err
	}
	return c, nil
}

// NewClientAddr creates a client for an already resolved address.
func NewClientAddr(addr tcp.Addr, opts ...Option) (*Client, error) {
	c := newClient(opts)
	if err := c.ConnectAddr(addr, c.eager); err != nil {
		return nil, err
	}
	return c, nil
}

// NewClientURL creates a client for the server named by an http URL. The
// URL path is ignored; user info becomes Basic credentials.
func NewClientURL(rawURL string, opts ...Option) (*Client, error) {
	c := newClient(opts)
	if err := c.ConnectURL(rawURL, c.eager); err != nil {
		return nil, err
	}
	return c, nil
}

// Connect sets the server to host:port and drops the current connection.
// With eager set the new connection is opened at once.
func (c *Client) Connect(host string, port int, eager bool) error {
	if err := c.checkIdle("Connect"); err != nil {
		return err
	}
	if port < 0 || port > 65535 {
		return &ResolveError{Host: host, Err: fmt.Errorf("port %d out of range", port)}
	}
	c.dropConnection()
	c.host = host
	c.port = port
	c.resolved = false
	if eager {
		return c.openEager()
	}
	return nil
}

// ConnectAddr sets the server to addr and drops the current connection.
func (c *Client) ConnectAddr(addr tcp.Addr, eager bool) error {
	if err := c.checkIdle("ConnectAddr"); err != nil {
		return err
	}
	c.dropConnection()
	c.addr = addr
	c.resolved = true
	c.port = addr.Port
	c.host = "0.0.0.0"
	if addr.IP != nil {
		c.host = addr.IP.String()
	}
	if eager {
		return c.openEager()
	}
	return nil
}

// ConnectURL sets the server from an http URL and drops the current
// connection.
func (c *Client) ConnectURL(rawURL string, eager bool) error {
	if err := c.checkIdle("ConnectURL"); err != nil {
		return err
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("error parsing URL: %w", err)
	}
	if u.Scheme != "http" {
		return &UsageError{Op: "ConnectURL", Msg: fmt.Sprintf("unsupported scheme %q", u.Scheme)}
	}
	port := 80
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return &ResolveError{Host: u.Host, Err: fmt.Errorf("invalid port %q", p)}
		}
	}
	if u.User != nil {
		pass, _ := u.User.Password()
		c.Auth(u.User.Username(), pass)
	}
	return c.Connect(u.Hostname(), port, eager)
}

func (c *Client) openEager() error {
	ct := c.connectTimeout
	if ct < 0 {
		ct = c.timeout
	}
	c.timer.start()
	if err := c.open(ct); err != nil {
		return err
	}
	return c.stream.SetTimeout(c.timeout)
}

// Host returns the server host name or address.
func (c *Client) Host() string {
	return c.host
}

// Port returns the server port.
func (c *Client) Port() int {
	return c.port
}

// State returns the stage of the current request.
func (c *Client) State() State {
	return c.state
}

// Header returns the header of the current or last reply.
func (c *Client) Header() *ReplyHeader {
	return c.reply
}

// Timing returns the timing of the last request.
func (c *Client) Timing() TimingInfo {
	return c.timer.info
}

// Selector returns the selector used for asynchronous requests.
func (c *Client) Selector() *reactor.Selector {
	return c.selector
}

// SetSelector replaces the selector. It fails while an asynchronous request
// is pending.
func (c *Client) SetSelector(s *reactor.Selector) error {
	if c.pending {
		return &UsageError{Op: "SetSelector", Msg: "asynchronous request in flight"}
	}
	c.selector = s
	return nil
}

// Wait runs one round of the selector.
func (c *Client) Wait(d time.Duration) (bool, error) {
	if c.selector == nil {
		return false, &UsageError{Op: "Wait", Msg: "no selector set"}
	}
	return c.selector.Wait(d)
}

// In returns the buffered stream replies are read from. It is nil until a
// connection was opened.
func (c *Client) In() *tcp.StreamBuf {
	return c.buf
}

// Auth sets Basic credentials for subsequent requests.
func (c *Client) Auth(user, password string) {
	var sb strings.Builder
	sb.WriteString("Basic ")
	enc := base64.NewEncoder(base64.StdEncoding, &sb)
	enc.Write([]byte(user + ":" + password))
	enc.Close()
	c.authValue = sb.String()
}

// ClearAuth removes the credentials.
func (c *Client) ClearAuth() {
	c.authValue = ""
}

func (c *Client) hostHeader() string {
	if c.port == 80 {
		return c.host
	}
	return net.JoinHostPort(c.host, strconv.Itoa(c.port))
}

func (c *Client) requestContext() requestContext {
	return requestContext{
		host:     c.hostHeader(),
		defaults: c.headers,
		auth:     c.authValue,
	}
}

// busy reports whether a request occupies the client.
func (c *Client) busy() bool {
	if c.pending {
		return true
	}
	switch c.state {
	case StateIdle, StateReplyFinished, StateError:
		return false
	}
	return true
}

func (c *Client) checkIdle(op string) error {
	if c.busy() {
		return &UsageError{Op: op, Msg: "request in flight (state " + c.state.String() + ")"}
	}
	return nil
}

func (c *Client) resolve() error {
	if c.resolved {
		return nil
	}
	addr, err := tcp.Resolve(c.host, c.port)
	if err != nil {
		return err
	}
	c.addr = addr
	c.resolved = true
	return nil
}

// open establishes a new connection, bounded by connectTimeout.
func (c *Client) open(connectTimeout time.Duration) error {
	c.dropConnection()

	if err := c.resolve(); err != nil {
		return err
	}
	c.timer.phase(&c.timer.info.DNSLookupTime)

	s := tcp.NewStream(tcp.WithTimeout(connectTimeout), tcp.WithLogger(c.log))
	if err := s.ConnectAddr(c.addr); err != nil {
		return err
	}
	c.timer.phase(&c.timer.info.TCPConnectTime)

	c.attach(s)
	c.log.Debug("connected", "addr", c.addr.String())
	return nil
}

func (c *Client) attach(s *tcp.Stream) {
	c.stream = s
	if c.buf == nil {
		c.buf = tcp.NewStreamBuf(s, c.bufSize)
	} else {
		c.buf.Reset(s)
	}
	c.reusable = true
}

func (c *Client) connected() bool {
	return c.reusable && c.stream != nil && c.stream.Valid()
}

func (c *Client) dropConnection() {
	if c.stream != nil {
		c.deregister()
		c.stream.Close()
	}
	c.reusable = false
}

// finishReply ends the exchange and decides whether the connection can
// carry another request.
func (c *Client) finishReply() {
	c.timer.phase(&c.timer.info.ContentTransferTime)
	c.timer.finish()

	if !c.reply.KeepAlive() || c.body.mode == framingClose {
		c.dropConnection()
	}
	c.log.Debug("reply finished",
		"status", c.reply.StatusCode,
		"total", c.timer.info.TotalTime,
		"keepAlive", c.reusable)
}

// Close drops the connection.
func (c *Client) Close() error {
	c.dropConnection()
	c.state = StateIdle
	c.pending = false
	return nil
}
