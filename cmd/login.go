package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/kozaktomas/hijabist/internal/config"
	"github.com/kozaktomas/hijabist/internal/session"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in to the recommendation backend",
	Long: `Log in with your email and password. The session is kept in the
state file so later commands stay logged in.

Missing values are prompted for; HIJABIST_PASSWORD is used when set.`,
	RunE: runLogin,
}

func init() {
	rootCmd.AddCommand(loginCmd)

	loginCmd.Flags().String("email", "", "Account email (defaults to the remembered email)")
	loginCmd.Flags().String("password", "", "Account password")
	loginCmd.Flags().Bool("remember", false, "Remember the email for the next login")
}

func runLogin(cmd *cobra.Command, args []string) error {
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

	email := mustGetString(cmd, "email")
	if email == "" {
		email, err = prompt("Email", sessions.RememberedEmail(ctx))
		if err != nil {
			return err
		}
	}
	password := mustGetString(cmd, "password")
	if password == "" {
		password = os.Getenv("HIJABIST_PASSWORD")
	}
	if password == "" {
		password, err = promptPassword("Password")
		if err != nil {
			return err
		}
	}

	user, err := sessions.Login(ctx, session.LoginInput{
		Email:         email,
		Password:      password,
		RememberEmail: mustGetBool(cmd, "remember"),
	})
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	fmt.Printf("Logged in as %s <%s>\n", user.DisplayName, user.Email)
	return nil
}

// prompt reads a line from stdin, returning def for an empty answer.
func prompt(label, def string) (string, error) {
	if def != "" {
		fmt.Printf("%s [%s]: ", label, def)
	} else {
		fmt.Printf("%s: ", label)
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("could not read %s: %w", strings.ToLower(label), err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return def, nil
	}
	return line, nil
}

// promptPassword reads a password without echo when stdin is a terminal.
func promptPassword(label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return prompt(label, "")
	}
	fmt.Printf("%s: ", label)
	data, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("could not read password: %w", err)
	}
	return string(data), nil
}
