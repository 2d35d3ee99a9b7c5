package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/netwire/internal/bench"
	"github.com/wesleyorama2/netwire/internal/config"
	"github.com/wesleyorama2/netwire/internal/http"
	"github.com/wesleyorama2/netwire/internal/output"
)

type benchOptions struct {
	requests    int
	clients     int
	rate        float64
	method      string
	data        string
	configFile  string
	environment string
	name        string
	thresholds  []string
}

func newBenchCmd(g *globalOptions) *cobra.Command {
	o := &requestOptions{}
	b := &benchOptions{}

	cmd := &cobra.Command{
		Use:   "bench [URL]",
		Short: "Send one request repeatedly and report latency and throughput",
		Long: `Send the same request many times and report latency percentiles,
throughput and status codes. Requests run one after another on a single
connection, or with --async overlapped on several connections that share
one readiness selector.

The request comes either from the URL argument or from a bench entry of a
configuration file (--config, --environment, --bench); flags given on the
command line override the entry.

Thresholds such as "p95 < 500ms", "error_rate <= 0.01" or "rps > 100"
are checked after the run; the command fails when any of them does not
hold. Metrics: min, max, avg, p50, p90, p95, p99, error_rate, rps, count.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.runBench(cmd, args, o, b)
		},
	}

	o.addFlags(cmd)
	f := cmd.Flags()
	f.IntVarP(&b.requests, "requests", "n", 100, "Number of requests to send")
	f.IntVarP(&b.clients, "clients", "c", 1, "Number of connections for --async runs")
	f.Float64Var(&b.rate, "rate", 0, "Requests per second, 0 sends as fast as possible")
	f.StringVarP(&b.method, "method", "X", "GET", "Request method")
	f.StringVarP(&b.data, "data", "d", "", "Data to send in the request body")
	f.StringVar(&b.configFile, "config", "", "Configuration file")
	f.StringVarP(&b.environment, "environment", "e", "", "Environment to use with --config")
	f.StringVarP(&b.name, "bench", "b", "", "Bench entry of the configuration file")
	f.StringArrayVar(&b.thresholds, "threshold", nil, "Fail unless the result meets this condition, e.g. 'p95 < 500ms' (can be used multiple times)")
	return cmd
}

func (g *globalOptions) runBench(cmd *cobra.Command, args []string, o *requestOptions, b *benchOptions) error {
	log, err := g.logger(cmd)
	if err != nil {
		return err
	}
	format, formatter, err := g.formatter(cmd)
	if err != nil {
		return err
	}

	var base string
	var template *http.Request
	var clientOpts []http.Option
	timeout, connect := o.timeouts()

	switch {
	case b.name != "":
		if len(args) > 0 {
			return errors.New("a URL cannot be combined with --bench")
		}
		cfg, err := g.loadConfig(cmd, b.configFile)
		if err != nil {
			return err
		}
		entry, ok := cfg.Bench[b.name]
		if !ok {
			return fmt.Errorf("bench '%s' not found in configuration", b.name)
		}
		res, err := config.Resolve(cfg, b.environment, entry.Request, config.GetConfigDir(b.configFile))
		if err != nil {
			return err
		}

		var target string
		if base, target, err = parseURL(res.URL); err != nil {
			return err
		}
		template = requestFromResolved(res, target)
		clientOpts = environmentOptions(res.Env)
		if !cmd.Flags().Changed("timeout") && res.Env.Timeout > 0 {
			timeout = res.Env.Timeout.Std()
		}
		if !cmd.Flags().Changed("connect-timeout") && res.Env.ConnectTimeout > 0 {
			connect = res.Env.ConnectTimeout.Std()
		}

		flags := cmd.Flags()
		if !flags.Changed("requests") {
			b.requests = entry.Requests
		}
		if !flags.Changed("clients") && entry.Clients > 0 {
			b.clients = entry.Clients
		}
		if !flags.Changed("rate") {
			b.rate = entry.Rate
		}
		if !flags.Changed("async") {
			o.async = entry.Async
		}
		if !flags.Changed("threshold") {
			b.thresholds = entry.Thresholds
		}

	case len(args) == 1:
		var target string
		if base, target, err = parseURL(args[0]); err != nil {
			return err
		}
		template = http.NewRequest(b.method, target)
		if b.data != "" {
			template.WithBody(b.data)
		}

	default:
		return errors.New("either a URL or --bench is required")
	}

	thresholds, err := bench.ParseThresholds(b.thresholds)
	if err != nil {
		return err
	}
	if err := o.apply(template); err != nil {
		return err
	}
	if user, password, ok := o.credentials(); ok {
		clientOpts = append(clientOpts, http.WithAuth(user, password))
	}
	clientOpts = append(clientOpts,
		http.WithTimeout(timeout),
		http.WithConnectTimeout(connect),
		http.WithLogger(log),
	)

	newClient := func(opts ...http.Option) (*http.Client, error) {
		return http.NewClientURL(base, append(append([]http.Option(nil), clientOpts...), opts...)...)
	}
	newRequest := func() *http.Request {
		return template.Clone()
	}

	runner := bench.NewRunner(newClient, newRequest,
		bench.WithRate(b.rate),
		bench.WithTimeouts(timeout, connect),
		bench.WithLogger(log),
	)

	out := cmd.OutOrStdout()
	if format == output.FormatText {
		mode := "sequential"
		if o.async {
			mode = fmt.Sprintf("async, %d client(s)", b.clients)
		}
		fmt.Fprintf(out, "%s %s %s: %d requests (%s)\n",
			output.InfoIcon(g.colorless(out)), template.Method,
			displayBase(base)+template.RequestURI(), b.requests, mode)
	}

	ctx := cmd.Context()
	snap, err := runner.Run(ctx, b.requests, b.clients, o.async)
	if err != nil {
		return err
	}
	results, passed := bench.EvaluateThresholds(thresholds, snap)
	snap.Thresholds = results

	fmt.Fprint(out, formatter.FormatBench(snap))
	if format != output.FormatText {
		fmt.Fprintln(out)
	}

	if ctx.Err() != nil {
		return fmt.Errorf("bench interrupted after %d requests", snap.TotalRequests)
	}
	if !passed {
		var failed []string
		for _, r := range results {
			if !r.Passed {
				failed = append(failed, r.Expression)
			}
		}
		return fmt.Errorf("thresholds failed: %s", strings.Join(failed, ", "))
	}
	return nil
}
