package cmd

import (
	"context"
	"fmt"

	"github.com/kozaktomas/hijabist/internal/config"
	"github.com/spf13/cobra"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Log out and forget the saved session",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		ctx := context.Background()

		client, err := newBackendClient(cfg)
		if err != nil {
			return err
		}
		st, err := openStorage(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		sessions, err := restoreSession(ctx, client, st.state)
		if err != nil {
			return err
		}
		if sessions.Current() == nil {
			fmt.Println("Not logged in")
			return nil
		}
		if err := sessions.Logout(ctx); err != nil {
			return err
		}
		fmt.Println("Logged out")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the logged-in user",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		ctx := context.Background()

		client, err := newBackendClient(cfg)
		if err != nil {
			return err
		}
		st, err := openStorage(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		sessions, err := restoreSession(ctx, client, st.state)
		if err != nil {
			return err
		}
		user := sessions.Current()
		if user == nil {
			fmt.Println("Not logged in")
			if email := sessions.RememberedEmail(ctx); email != "" {
				fmt.Printf("Remembered email: %s\n", email)
			}
			return nil
		}
		fmt.Printf("%s <%s>\n", user.DisplayName, user.Email)
		fmt.Printf("  UID: %s\n", user.UID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
}
