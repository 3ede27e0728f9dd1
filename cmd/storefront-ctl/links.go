package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var linksCmd = &cobra.Command{
	Use:   "links [order-id]",
	Short: "Print the customer view and refund links for an order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()

		o, err := app.Orders.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		links := app.Links.For(o.ID)
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "order   %s (%s)\n", o.OrderNumber, o.Status)
		fmt.Fprintf(out, "view    %s\n", links.ViewURL)
		fmt.Fprintf(out, "refund  %s\n", links.RefundURL)
		fmt.Fprintf(out, "execute %s\n", links.RefundExecuteURL)
		return nil
	},
}
