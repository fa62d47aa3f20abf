package main

import (
	"fmt"
	"text/tabwriter"

	"groupchat/internal/network"

	"github.com/spf13/cobra"
)

var adaptersCmd = &cobra.Command{
	Use:   "adapters",
	Short: "List the network adapters a group can be joined on",
	RunE: func(cmd *cobra.Command, args []string) error {
		adapters, err := network.ListAdapters()
		if err != nil {
			return fmt.Errorf("failed to list adapters: %w", err)
		}
		if len(adapters) == 0 {
			return network.ErrNoAdapter
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tMAC\tADDRESS\tBROADCAST")
		for _, a := range adapters {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", a.Name, a.MAC, a.IP, a.Broadcast)
		}
		return w.Flush()
	},
}
