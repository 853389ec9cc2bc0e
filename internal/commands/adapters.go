package commands

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ashpool37/dapbridge/internal/adapter"
)

func NewAdaptersCommand(registry *adapter.Registry) *cobra.Command {
	return &cobra.Command{
		Use:   "adapters",
		Short: "Lists the supported debug adapters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tLANGUAGES\tREQUESTS\tMODE")
			for _, desc := range registry.Descriptors() {
				requests := make([]string, len(desc.Requests))
				for i, r := range desc.Requests {
					requests[i] = string(r)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					desc.ID,
					desc.Name,
					strings.Join(desc.Languages, ","),
					strings.Join(requests, ","),
					desc.Readiness.Mode,
				)
			}
			return w.Flush()
		},
	}
}
