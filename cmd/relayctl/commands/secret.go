package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/eldtechnologies/sendmessage/internal/crypto"
)

// secret: print a fresh random shared secret.
func secretCmd() *cobra.Command {
	var length int
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Generate a random shared secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := crypto.RandomSecret(length)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), s)
			return nil
		},
	}
	cmd.Flags().IntVarP(&length, "length", "n", crypto.DefaultSecretLength, "secret length")
	return cmd
}
