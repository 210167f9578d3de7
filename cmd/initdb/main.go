package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"obd-backend/internal/users"
	"obd-backend/pkg/config"
)

func main() {
	var dbPath string

	root := &cobra.Command{
		Use:   "initdb",
		Short: "Create the users credential database",
		Args:  cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if dbPath != "" {
				return nil
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			dbPath = cfg.Users.DBPath
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := users.Open(dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "users table ready in %s\n", dbPath)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (default from USERS_DB_PATH)")

	var username, password string
	addUser := &cobra.Command{
		Use:   "add-user",
		Short: "Add a user with a bcrypt-hashed password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := users.Open(dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			id, err := store.AddUser(cmd.Context(), username, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added user %s (id %d)\n", username, id)
			return nil
		},
	}
	addUser.Flags().StringVarP(&username, "username", "u", "", "Username")
	addUser.Flags().StringVarP(&password, "password", "p", "", "Password")
	_ = addUser.MarkFlagRequired("username")
	_ = addUser.MarkFlagRequired("password")

	root.AddCommand(addUser)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
