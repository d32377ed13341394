package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/eldtechnologies/sendmessage/internal/config"
	"github.com/eldtechnologies/sendmessage/internal/store"
)

// openDirectory opens the user directory selected by the backend flags.
// The returned func releases it.
func openDirectory(ctx context.Context) (store.Directory, func(), error) {
	switch backend {
	case config.BackendSQLite:
		s, err := store.NewSQLiteStore(ctx, sqlitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case config.BackendPostgres:
		if databaseURL == "" {
			return nil, nil, fmt.Errorf("--database-url is required for the postgres backend")
		}
		if err := store.RunMigrations(ctx, databaseURL); err != nil {
			return nil, nil, err
		}
		s, err := store.NewPostgresStore(ctx, databaseURL)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported directory backend %q (sqlite or postgres)", backend)
	}
}

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage the local user directory",
	}
	cmd.PersistentFlags().StringVar(&backend, "backend", config.BackendSQLite, "directory backend (sqlite or postgres)")
	cmd.PersistentFlags().StringVar(&sqlitePath, "sqlite-path", "./data/sendmessage.db", "SQLite database path")
	cmd.PersistentFlags().StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL")

	cmd.AddCommand(userAddCmd(), userShowCmd())
	return cmd
}

// user add <username>: create a user that can send and receive.
func userAddCmd() *cobra.Command {
	var (
		name        string
		unconfirmed bool
	)
	cmd := &cobra.Command{
		Use:   "add <username>",
		Short: "Add a user to the directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, release, err := openDirectory(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			user, err := dir.CreateUser(cmd.Context(), args[0], name, !unconfirmed)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s)\n", user.Username, user.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().BoolVar(&unconfirmed, "unconfirmed", false, "create the user without confirming it")
	return cmd
}

// user show <username>: look a user up the way the relay does.
func userShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <username>",
		Short: "Resolve a user as the relay would",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, release, err := openDirectory(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			user, err := dir.GetUser(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%q\n", user.Username, user.ID, user.Name)
			return nil
		},
	}
}
