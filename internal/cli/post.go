package cli

import (
	"errors"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/netwire/internal/http"
)

func newPostCmd(g *globalOptions) *cobra.Command {
	o := &requestOptions{}
	var data, jsonData, dataFile string

	cmd := &cobra.Command{
		Use:   "post URL",
		Short: "Make a POST request to the specified URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			base, target, err := parseURL(args[0])
			if err != nil {
				return err
			}

			set := 0
			for _, s := range []string{data, jsonData, dataFile} {
				if s != "" {
					set++
				}
			}
			if set > 1 {
				return errors.New("only one of --data, --json and --data-file may be given")
			}

			req := http.NewRequest("POST", target)
			switch {
			case data != "":
				req.WithBody(data)
			case jsonData != "":
				req.WithBody(jsonData)
				if !hasHeader(o.headers, "Content-Type") {
					req.WithHeader("Content-Type", "application/json")
				}
			case dataFile != "":
				f, err := os.Open(dataFile)
				if err != nil {
					return err
				}
				defer f.Close()
				req.WithBody(f)
			}

			ex, err := newExchange(o, base, req)
			if err != nil {
				return err
			}
			return g.perform(cmd.Context(), cmd, ex)
		},
	}

	o.addFlags(cmd)
	cmd.Flags().StringVarP(&data, "data", "d", "", "Data to send in the request body")
	cmd.Flags().StringVarP(&jsonData, "json", "j", "", "JSON data to send in the request body")
	cmd.Flags().StringVar(&dataFile, "data-file", "", "Send the contents of this file as the request body")
	return cmd
}

// hasHeader reports whether one of the -H flags sets name.
func hasHeader(headers []string, name string) bool {
	for _, h := range headers {
		if key, _, err := parseHeader(h); err == nil && strings.EqualFold(key, name) {
			return true
		}
	}
	return false
}
