package cli

import (
	"github.com/spf13/cobra"

	"github.com/wesleyorama2/netwire/internal/http"
)

func newGetCmd(g *globalOptions) *cobra.Command {
	o := &requestOptions{}

	cmd := &cobra.Command{
		Use:   "get URL",
		Short: "Make a GET request to the specified URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			base, target, err := parseURL(args[0])
			if err != nil {
				return err
			}
			ex, err := newExchange(o, base, http.NewRequest("GET", target))
			if err != nil {
				return err
			}
			return g.perform(cmd.Context(), cmd, ex)
		},
	}
	o.addFlags(cmd)
	return cmd
}
