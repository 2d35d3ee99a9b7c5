package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/netwire/internal/config"
	"github.com/wesleyorama2/netwire/internal/http"
)

func newRunCmd(g *globalOptions) *cobra.Command {
	o := &requestOptions{}
	var configFile, environment string

	cmd := &cobra.Command{
		Use:   "run REQUEST",
		Short: "Run a named request from a configuration file",
		Long: `Run a request defined in a YAML or JSON configuration file against one of
its environments. Variables of the environment are substituted into the
URL, headers, query parameters and body; extractions and the schema named
by the request are applied to the reply.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig(cmd, configFile)
			if err != nil {
				return err
			}
			res, err := config.Resolve(cfg, environment, args[0], config.GetConfigDir(configFile))
			if err != nil {
				return err
			}

			base, target, err := parseURL(res.URL)
			if err != nil {
				return err
			}
			ex, err := newExchange(o, base, requestFromResolved(res, target))
			if err != nil {
				return err
			}

			// flags win over the environment
			ex.clientOpts = append(environmentOptions(res.Env), ex.clientOpts...)
			if !cmd.Flags().Changed("timeout") && res.Env.Timeout > 0 {
				ex.timeout = res.Env.Timeout.Std()
			}
			if !cmd.Flags().Changed("connect-timeout") && res.Env.ConnectTimeout > 0 {
				ex.connect = res.Env.ConnectTimeout.Std()
			}
			if len(res.Extract) > 0 {
				merged := make(map[string]string, len(res.Extract)+len(ex.extract))
				for name, path := range res.Extract {
					merged[name] = path
				}
				for name, path := range ex.extract {
					merged[name] = path
				}
				ex.extract = merged
			}
			if ex.schema == "" {
				ex.schema = res.Schema
			}

			return g.perform(cmd.Context(), cmd, ex)
		},
	}

	o.addFlags(cmd)
	cmd.Flags().StringVarP(&configFile, "config", "c", "", "Configuration file")
	cmd.Flags().StringVarP(&environment, "environment", "e", "", "Environment to use")
	cmd.MarkFlagRequired("config")
	cmd.MarkFlagRequired("environment")
	return cmd
}

// loadConfig loads and validates a configuration file, listing every
// problem on stderr.
func (g *globalOptions) loadConfig(cmd *cobra.Command, path string) (*config.Config, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}

	if errs := config.ValidateConfig(cfg); len(errs) > 0 {
		fmt.Fprintln(cmd.ErrOrStderr(), "Configuration validation errors:")
		for _, e := range errs {
			fmt.Fprintf(cmd.ErrOrStderr(), "  - %s\n", e.Error())
		}
		return nil, fmt.Errorf("configuration %s has %d error(s)", path, len(errs))
	}
	return cfg, nil
}

// requestFromResolved builds the request a configuration entry describes.
// Headers are added in name order so the wire format is stable.
func requestFromResolved(res *config.Resolved, target string) *http.Request {
	req := http.NewRequest(res.Method, target)

	names := make([]string, 0, len(res.Headers))
	for name := range res.Headers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		req.WithHeader(name, res.Headers[name])
	}

	req.WithQueryParams(res.QueryParams)
	if res.Body != nil {
		req.WithBody(res.Body)
	}
	return req
}

// environmentOptions returns the client options an environment sets.
func environmentOptions(env config.Environment) []http.Option {
	var opts []http.Option
	if env.Username != "" {
		opts = append(opts, http.WithAuth(env.Username, env.Password))
	}
	if env.BufferSize > 0 {
		opts = append(opts, http.WithBufferSize(env.BufferSize))
	}
	return opts
}
