// Package commands implements relayctl, the operator CLI for the relay.
package commands

import (
	"github.com/spf13/cobra"
)

var (
	relayURL string
	secret   string

	backend     string
	sqlitePath  string
	databaseURL string
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "relayctl",
		Short:        "Operate a sendmessage relay",
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&relayURL, "relay", "http://127.0.0.1:8080", "relay base URL")

	root.AddCommand(secretCmd(), sendCmd(), userCmd())
	return root
}

func Execute() error {
	return newRootCmd().Execute()
}
