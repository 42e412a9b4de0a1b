package cmd

import (
	"context"
	"fmt"

	"github.com/kozaktomas/hijabist/internal/config"
	"github.com/kozaktomas/hijabist/internal/session"
	"github.com/spf13/cobra"
)

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account",
	Long: `Create an account on the recommendation backend. Registration does
not log you in; run "hijabist login" afterwards.`,
	RunE: runRegister,
}

func init() {
	rootCmd.AddCommand(registerCmd)

	registerCmd.Flags().String("name", "", "Display name")
	registerCmd.Flags().String("email", "", "Account email")
	registerCmd.Flags().String("password", "", "Account password (at least 6 characters)")
}

func runRegister(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx := context.Background()

	client, err := newBackendClient(cfg)
	if err != nil {
		return err
	}

	name := mustGetString(cmd, "name")
	if name == "" {
		if name, err = prompt("Name", ""); err != nil {
			return err
		}
	}
	email := mustGetString(cmd, "email")
	if email == "" {
		if email, err = prompt("Email", ""); err != nil {
			return err
		}
	}
	password := mustGetString(cmd, "password")
	if password == "" {
		if password, err = promptPassword("Password"); err != nil {
			return err
		}
	}

	msg, err := session.NewManager(client, nil).Register(ctx, session.RegisterInput{
		DisplayName: name,
		Email:       email,
		Password:    password,
	})
	if err != nil {
		return fmt.Errorf("registration failed: %w", err)
	}

	fmt.Println(msg)
	return nil
}
