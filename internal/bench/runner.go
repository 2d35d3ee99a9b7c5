// Package bench repeats one request against a server and records latency
// and throughput. Requests run either one after another on a single
// blocking client or overlapped on several clients sharing one selector.
package bench

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/wesleyorama2/netwire/internal/http"
	"github.com/wesleyorama2/netwire/internal/logx"
	"github.com/wesleyorama2/netwire/internal/reactor"
)

// ClientFactory creates a client for the target server. The runner
// passes extra options, such as the selector for asynchronous runs.
type ClientFactory func(opts ...http.Option) (*http.Client, error)

// RequestFactory returns the request to send. It is called once per
// request because a Request is not reused after it was executed.
type RequestFactory func() *http.Request

// Runner issues requests and feeds the results to a Recorder.
type Runner struct {
	newClient      ClientFactory
	newRequest     RequestFactory
	recorder       *Recorder
	pacer          *Pacer
	timeout        time.Duration
	connectTimeout time.Duration
	log            *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithRate limits request starts to rate per second. Zero means as fast as
// the clients can go.
func WithRate(rate float64) Option {
	return func(r *Runner) {
		r.pacer = NewPacer(rate)
	}
}

// WithTimeouts sets the read and connect timeouts. Asynchronous runs
// treat the read timeout as a bound on the whole request.
func WithTimeouts(timeout, connectTimeout time.Duration) Option {
	return func(r *Runner) {
		r.timeout = timeout
		r.connectTimeout = connectTimeout
	}
}

// WithRecorder makes the runner record into rec.
func WithRecorder(rec *Recorder) Option {
	return func(r *Runner) {
		r.recorder = rec
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		r.log = logx.OrDiscard(l)
	}
}

// NewRunner creates a runner.
func NewRunner(newClient ClientFactory, newRequest RequestFactory, opts ...Option) *Runner {
	r := &Runner{
		newClient:      newClient,
		newRequest:     newRequest,
		timeout:        http.WaitInfinite,
		connectTimeout: http.WaitInfinite,
		log:            logx.Discard,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.recorder == nil {
		r.recorder = NewRecorder()
	}
	return r
}

// Recorder returns the recorder results go to.
func (r *Runner) Recorder() *Recorder {
	return r.recorder
}

// RunSync sends n requests one after another on one blocking client. It
// stops early when ctx is done.
func (r *Runner) RunSync(ctx context.Context, n int) (Snapshot, error) {
	c, err := r.newClient()
	if err != nil {
		return Snapshot{}, err
	}
	defer c.Close()

	var body []byte
	for i := 0; i < n; i++ {
		if err := r.pacer.Wait(ctx); err != nil {
			break
		}

		start := time.Now()
		reply, err := c.Execute(r.newRequest(), r.timeout, r.connectTimeout)
		if err == nil {
			body, err = c.ReadBody(body[:0])
		} else {
			body = body[:0]
		}

		status := 0
		if reply != nil {
			status = reply.StatusCode
		}
		if err != nil {
			r.log.Debug("request failed", "n", i, "err", err)
		}
		r.recorder.Record(time.Since(start), status, int64(len(body)), err)
	}
	return r.recorder.Snapshot(), nil
}

// RunAsync sends n requests spread over the given number of clients, all
// registered with one selector and served by one observer. It returns when
// every started request has finished, or after cancelling the requests in
// flight when ctx is done. A request still connecting after the connect
// timeout, or unfinished after the read timeout, is cancelled and recorded
// as http.ErrTimeout.
func (r *Runner) RunAsync(ctx context.Context, n, clients int) (Snapshot, error) {
	if clients < 1 {
		clients = 1
	}
	if clients > n {
		clients = n
	}

	sel := reactor.New(reactor.WithLogger(r.log))
	obs := newObserver()

	var idle []*http.Client
	for i := 0; i < clients; i++ {
		c, err := r.newClient(http.WithSelector(sel))
		if err != nil {
			closeAll(idle)
			return Snapshot{}, err
		}
		c.Observe(obs)
		idle = append(idle, c)
	}
	all := append([]*http.Client(nil), idle...)
	defer closeAll(all)

	started, done := 0, 0
	var slot time.Time
	for done < started || started < n {
		if ctx.Err() != nil {
			r.cancelInFlight(obs)
			break
		}

		for len(idle) > 0 && started < n {
			if slot.IsZero() {
				slot = r.pacer.Next()
			}
			if time.Now().Before(slot) {
				break
			}
			slot = time.Time{}

			c := idle[len(idle)-1]
			idle = idle[:len(idle)-1]
			started++

			obs.begin(c, r.timeout, r.connectTimeout)
			if err := c.BeginExecute(r.newRequest()); err != nil {
				r.log.Debug("request failed to start", "err", err)
				r.recorder.Record(time.Since(obs.inFlight[c].start), 0, 0, err)
				delete(obs.inFlight, c)
				done++
				idle = append(idle, c)
			}
		}

		if done == started && started == n {
			break
		}

		wait := runSlice
		if len(idle) > 0 && started < n && !slot.IsZero() {
			if d := time.Until(slot); d < wait {
				wait = max(d, 0)
			}
		}
		if next, ok := obs.nextDeadline(); ok {
			wait = max(min(wait, time.Until(next)), 0)
		}
		if len(obs.inFlight) > 0 {
			if _, err := sel.Wait(wait); err != nil {
				r.cancelInFlight(obs)
				return r.recorder.Snapshot(), err
			}
		} else if wait > 0 {
			sleep(ctx, wait)
		}

		for _, c := range obs.drain() {
			res := obs.inFlight[c]
			delete(obs.inFlight, c)

			err := c.EndExecute()
			status := 0
			if err == nil {
				status = c.Header().StatusCode
			} else {
				r.log.Debug("request failed", "err", err)
			}
			r.recorder.Record(time.Since(res.start), status, res.bytes, err)
			done++
			idle = append(idle, c)
		}

		for _, c := range r.expire(obs, time.Now()) {
			done++
			idle = append(idle, c)
		}
	}
	return r.recorder.Snapshot(), nil
}

// expire cancels the requests past their deadline, records them as timed
// out and returns their clients.
func (r *Runner) expire(obs *observer, now time.Time) []*http.Client {
	var expired []*http.Client
	for c, res := range obs.inFlight {
		if !res.expired(c.State(), now) {
			continue
		}
		c.Cancel()
		r.log.Debug("request timed out", "state", c.State().String())
		r.recorder.Record(now.Sub(res.start), 0, res.bytes, http.ErrTimeout)
		delete(obs.inFlight, c)
		expired = append(expired, c)
	}
	return expired
}

const runSlice = 100 * time.Millisecond

func (r *Runner) cancelInFlight(obs *observer) {
	for c, res := range obs.inFlight {
		c.Cancel()
		r.recorder.Record(time.Since(res.start), 0, res.bytes, context.Canceled)
	}
	obs.inFlight = map[*http.Client]*result{}
}

func closeAll(clients []*http.Client) {
	for _, c := range clients {
		c.Close()
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// ErrNoRequests is returned by Run for a request count below one.
var ErrNoRequests = errors.New("bench: at least one request is required")

// Run dispatches to RunAsync when async is set and to RunSync otherwise.
func (r *Runner) Run(ctx context.Context, n, clients int, async bool) (Snapshot, error) {
	if n < 1 {
		return Snapshot{}, ErrNoRequests
	}
	if async {
		return r.RunAsync(ctx, n, clients)
	}
	return r.RunSync(ctx, n)
}

type result struct {
	start time.Time
	bytes int64

	// zero when unbounded
	connectBy time.Time
	deadline  time.Time
}

func (res *result) expired(state http.State, now time.Time) bool {
	if !res.deadline.IsZero() && !now.Before(res.deadline) {
		return true
	}
	return state == http.StateConnecting && !res.connectBy.IsZero() && !now.Before(res.connectBy)
}

// observer is shared by every client of an asynchronous run.
type observer struct {
	inFlight map[*http.Client]*result
	finished []*http.Client
}

func newObserver() *observer {
	return &observer{inFlight: map[*http.Client]*result{}}
}

// begin starts tracking c. The connect timeout falls back to timeout when
// it is WaitInfinite; negative values leave a bound unset.
func (o *observer) begin(c *http.Client, timeout, connectTimeout time.Duration) {
	res := &result{start: time.Now()}
	if connectTimeout < 0 {
		connectTimeout = timeout
	}
	if timeout >= 0 {
		res.deadline = res.start.Add(timeout)
	}
	if connectTimeout >= 0 {
		res.connectBy = res.start.Add(connectTimeout)
	}
	o.inFlight[c] = res
}

// nextDeadline returns the earliest bound of the requests in flight.
func (o *observer) nextDeadline() (time.Time, bool) {
	var next time.Time
	earlier := func(t time.Time) {
		if !t.IsZero() && (next.IsZero() || t.Before(next)) {
			next = t
		}
	}
	for c, res := range o.inFlight {
		earlier(res.deadline)
		if c.State() == http.StateConnecting {
			earlier(res.connectBy)
		}
	}
	return next, !next.IsZero()
}

func (o *observer) drain() []*http.Client {
	f := o.finished
	o.finished = nil
	return f
}

func (o *observer) RequestSent(*http.Client)    {}
func (o *observer) HeaderReceived(*http.Client) {}

func (o *observer) BodyAvailable(c *http.Client, chunk []byte) int {
	if res, ok := o.inFlight[c]; ok {
		res.bytes += int64(len(chunk))
	}
	return len(chunk)
}

func (o *observer) ReplyFinished(c *http.Client) {
	o.finished = append(o.finished, c)
}
