package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/dchest/uniuri"
	"github.com/spf13/cobra"

	"github.com/wesleyorama2/netwire/internal/http"
	"github.com/wesleyorama2/netwire/internal/output"
	"github.com/wesleyorama2/netwire/internal/reactor"
	"github.com/wesleyorama2/netwire/pkg/jsonpath"
	"github.com/wesleyorama2/netwire/pkg/jsonschema"
)

// requestIDHeader carries the random id added by --request-id.
const requestIDHeader = "X-Request-Id"

// requestOptions holds the flags of commands that send a single request.
type requestOptions struct {
	headers        []string
	query          []string
	timeout        time.Duration
	connectTimeout time.Duration
	user           string
	async          bool
	extract        []string
	schema         string
	requestID      bool
}

func (o *requestOptions) addFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringArrayVarP(&o.headers, "header", "H", nil, "HTTP headers to include (can be used multiple times)")
	f.StringArrayVarP(&o.query, "query", "q", nil, "Query parameters as key=value (can be used multiple times)")
	f.DurationVarP(&o.timeout, "timeout", "t", 30*time.Second, "Read timeout, 0 waits forever")
	f.DurationVar(&o.connectTimeout, "connect-timeout", 0, "Connect timeout, 0 uses --timeout")
	f.StringVarP(&o.user, "user", "u", "", "Basic credentials as user:password")
	f.BoolVar(&o.async, "async", false, "Drive the request through the readiness selector")
	f.StringArrayVar(&o.extract, "extract", nil, "Extract a value from a JSON reply as name=$.path (can be used multiple times)")
	f.StringVar(&o.schema, "schema", "", "Validate the JSON reply body against this schema file")
	f.BoolVar(&o.requestID, "request-id", false, "Add a random "+requestIDHeader+" header")
}

// timeouts maps the flag values to client timeouts: 0 means no limit for
// reads and "same as the read timeout" for connects.
func (o *requestOptions) timeouts() (timeout, connectTimeout time.Duration) {
	timeout, connectTimeout = o.timeout, o.connectTimeout
	if timeout <= 0 {
		timeout = http.WaitInfinite
	}
	if connectTimeout <= 0 {
		connectTimeout = http.WaitInfinite
	}
	return timeout, connectTimeout
}

// apply adds the header, query and request id flags to req.
func (o *requestOptions) apply(req *http.Request) error {
	for _, h := range o.headers {
		key, value, err := parseHeader(h)
		if err != nil {
			return err
		}
		req.WithHeader(key, value)
	}
	for _, q := range o.query {
		key, value, ok := strings.Cut(q, "=")
		if !ok || key == "" {
			return fmt.Errorf("invalid query parameter %q, want key=value", q)
		}
		req.WithQueryParam(key, value)
	}
	if o.requestID && !req.Header.Has(requestIDHeader) {
		req.WithHeader(requestIDHeader, uniuri.NewLen(20))
	}
	return nil
}

// extractPaths parses the --extract flags.
func (o *requestOptions) extractPaths() (map[string]string, error) {
	if len(o.extract) == 0 {
		return nil, nil
	}
	paths := make(map[string]string, len(o.extract))
	for _, e := range o.extract {
		name, path, ok := strings.Cut(e, "=")
		if !ok || name == "" || !strings.HasPrefix(path, "$") {
			return nil, fmt.Errorf("invalid extraction %q, want name=$.path", e)
		}
		paths[name] = path
	}
	return paths, nil
}

func (o *requestOptions) credentials() (user, password string, ok bool) {
	if o.user == "" {
		return "", "", false
	}
	user, password, _ = strings.Cut(o.user, ":")
	return user, password, true
}

// parseHeader splits "Name: value".
func parseHeader(h string) (string, string, error) {
	key, value, ok := strings.Cut(h, ":")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return "", "", fmt.Errorf("invalid header %q, want 'Name: value'", h)
	}
	return key, strings.TrimSpace(value), nil
}

// parseURL splits a URL into the server part and the request target. A
// missing scheme defaults to http; fragments are dropped.
func parseURL(fullURL string) (string, string, error) {
	if !strings.Contains(fullURL, "://") {
		fullURL = "http://" + fullURL
	}

	u, err := url.Parse(fullURL)
	if err != nil {
		return "", "", fmt.Errorf("error parsing URL: %w", err)
	}
	if u.Scheme != "http" {
		return "", "", fmt.Errorf("unsupported scheme %q: only http is supported", u.Scheme)
	}
	if u.Host == "" {
		return "", "", fmt.Errorf("URL %q has no host", fullURL)
	}

	base := u.Scheme + "://" + u.Host
	if u.User != nil {
		base = u.Scheme + "://" + u.User.String() + "@" + u.Host
	}

	target := u.EscapedPath()
	if target == "" {
		target = "/"
	}
	if u.RawQuery != "" {
		target += "?" + u.RawQuery
	}
	return base, target, nil
}

// displayBase strips credentials so they never reach the output.
func displayBase(base string) string {
	u, err := url.Parse(base)
	if err != nil || u.User == nil {
		return base
	}
	u.User = nil
	return u.String()
}

// exchange is one request to one server together with what to do with
// the reply.
type exchange struct {
	base       string
	req        *http.Request
	clientOpts []http.Option
	timeout    time.Duration
	connect    time.Duration
	async      bool
	extract    map[string]string
	schema     string
}

// newExchange builds an exchange from the request flags.
func newExchange(o *requestOptions, base string, req *http.Request) (*exchange, error) {
	if err := o.apply(req); err != nil {
		return nil, err
	}
	extract, err := o.extractPaths()
	if err != nil {
		return nil, err
	}

	ex := &exchange{
		base:    base,
		req:     req,
		async:   o.async,
		extract: extract,
		schema:  o.schema,
	}
	ex.timeout, ex.connect = o.timeouts()
	if user, password, ok := o.credentials(); ok {
		ex.clientOpts = append(ex.clientOpts, http.WithAuth(user, password))
	}
	return ex, nil
}

// perform runs ex and prints the request and the reply with the command's
// formatter. Schema violations and failed extractions make it fail after
// the reply has been printed.
func (g *globalOptions) perform(ctx context.Context, cmd *cobra.Command, ex *exchange) error {
	log, err := g.logger(cmd)
	if err != nil {
		return err
	}
	format, formatter, err := g.formatter(cmd)
	if err != nil {
		return err
	}

	var schema *jsonschema.Schema
	if ex.schema != "" {
		if schema, err = jsonschema.CompileFile(ex.schema); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if format == output.FormatText {
		fmt.Fprint(out, formatter.FormatRequest(ex.req, displayBase(ex.base)))
	}

	opts := append([]http.Option{
		http.WithTimeout(ex.timeout),
		http.WithConnectTimeout(ex.connect),
		http.WithLogger(log),
	}, ex.clientOpts...)
	client, err := http.NewClientURL(ex.base, opts...)
	if err != nil {
		return err
	}
	defer client.Close()

	var reply *http.ReplyHeader
	var body []byte
	if ex.async {
		reply, body, err = runAsync(ctx, client, ex.req, log)
	} else {
		reply, body, err = runSync(client, ex.req, ex.timeout, ex.connect)
	}
	if err != nil {
		return fmt.Errorf("%s %s: %w", ex.req.Method, ex.req.RequestURI(), err)
	}

	resp := &output.Response{
		Reply:  reply,
		Body:   body,
		Timing: client.Timing(),
	}

	var failures []string
	if len(ex.extract) > 0 {
		values, err := jsonpath.ExtractAll(body, ex.extract)
		resp.Extracted = values
		if err != nil {
			failures = append(failures, err.Error())
		}
	}
	if schema != nil {
		resp.SchemaChecked = true
		if err := schema.Validate(body); err != nil {
			var verrs jsonschema.ValidationErrors
			if !errors.As(err, &verrs) {
				verrs = jsonschema.ValidationErrors{err}
			}
			resp.SchemaErrors = verrs.Messages()
			failures = append(failures, fmt.Sprintf("reply body violates schema (%d violation(s))", len(verrs)))
		}
	}

	fmt.Fprint(out, formatter.FormatResponse(resp))
	if format != output.FormatText {
		fmt.Fprintln(out)
	}

	if len(failures) > 0 {
		return errors.New(strings.Join(failures, "; "))
	}
	return nil
}

func runSync(client *http.Client, req *http.Request, timeout, connect time.Duration) (*http.ReplyHeader, []byte, error) {
	reply, err := client.Execute(req, timeout, connect)
	if err != nil {
		return nil, nil, err
	}
	body, err := client.ReadBody(nil)
	if err != nil {
		return nil, nil, err
	}
	return reply, body, nil
}

// runAsync drives req on a private selector until it finishes, ctx ends or
// the client's timeout elapses.
func runAsync(ctx context.Context, client *http.Client, req *http.Request, log *slog.Logger) (*http.ReplyHeader, []byte, error) {
	if err := client.SetSelector(reactor.New(reactor.WithLogger(log))); err != nil {
		return nil, nil, err
	}
	return client.ExecuteContext(ctx, req)
}
