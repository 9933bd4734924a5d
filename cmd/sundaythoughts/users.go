package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	st "github.com/Really-Nice-Guy/ST-May01"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage the reader allow-list",
}

var (
	firstName string
	lastName  string
)

var usersAddCmd = &cobra.Command{
	Use:   "add <email>",
	Short: "Allow an email to read",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, _, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()
		u, err := store.AddUser(cmd.Context(), st.User{Email: args[0], FirstName: firstName, LastName: lastName})
		if err != nil {
			return err
		}
		logger.Info("reader added", zap.String("email", u.Email))
		return nil
	},
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List allowed emails",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, _, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()
		users, err := store.ListUsers(cmd.Context())
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "EMAIL\tNAME\tSINCE")
		for _, u := range users {
			fmt.Fprintf(w, "%s\t%s %s\t%s\n", u.Email, u.FirstName, u.LastName, u.CreatedAt.Format("2006-01-02"))
		}
		return w.Flush()
	},
}

var usersRemoveCmd = &cobra.Command{
	Use:   "remove <email>",
	Short: "Remove an email from the allow-list",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, _, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.DeleteUser(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("remove %s: %w", args[0], err)
		}
		logger.Info("reader removed", zap.String("email", args[0]))
		return nil
	},
}

func init() {
	usersAddCmd.Flags().StringVar(&firstName, "first-name", "", "Reader's first name")
	usersAddCmd.Flags().StringVar(&lastName, "last-name", "", "Reader's last name")
	usersCmd.AddCommand(usersAddCmd, usersListCmd, usersRemoveCmd)
}
