package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/hounfour/gateway/credentials"
)

func newCredentialsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Inspect resolvable credentials",
	}
	cmd.AddCommand(newCredentialsStatusCommand())
	return cmd
}

func newCredentialsStatusCommand() *cobra.Command {
	var live bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report each known credential's health (format-only by default, --live to probe)",
		RunE: func(cmd *cobra.Command, args []string) error {
			provider := credentials.NewCompositeProvider(".")

			var client *http.Client
			if live {
				client = &http.Client{Timeout: 10 * time.Second}
			}

			results := credentials.CheckAll(provider, live, client)
			for _, r := range results {
				fmt.Printf("%-20s %-24s %s\n", r.CredentialID, r.Status, r.Message)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&live, "live", false, "Issue a minimally-scoped live request instead of a format-only check")
	return cmd
}
