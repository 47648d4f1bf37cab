package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/spreads/client/internal/mdns"
)

func newDiscoverCommand() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:         "discover",
		Short:       "Find spreads servers on the local network",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Browsing for %s (%s)...\n", mdns.ServiceType, timeout)

			servers, err := mdns.Browse(cmd.Context(), timeout)
			if err != nil {
				return err
			}
			if len(servers) == 0 {
				fmt.Fprintln(out, "No servers found")
				return nil
			}

			rows := make([][]string, 0, len(servers))
			for _, s := range servers {
				rows = append(rows, []string{s.Name, s.Origin(), s.Version})
			}
			fmt.Fprintln(out, renderTable([]string{"Name", "Server", "Protocol"}, rows, nil))
			fmt.Fprintln(out, "Use one with: spreadsctl --server <server> ...")
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", mdns.DefaultBrowseTimeout, "How long to listen for answers")
	return cmd
}
