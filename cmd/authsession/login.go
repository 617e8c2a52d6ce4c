package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	authsession "github.com/authsession/authsession-go"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in interactively through the system browser",
	RunE:  runLogin,
}

func init() {
	loginCmd.Flags().String("redirect-uri", "http://127.0.0.1:53682/callback", "Registered redirect URI")
	loginCmd.Flags().String("state", "", "Opaque state echoed back in the callback")
	loginCmd.Flags().StringSlice("ui-locales", nil, "Preferred UI locales")
	rootCmd.AddCommand(loginCmd)
}

func runLogin(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redirectURI, _ := cmd.Flags().GetString("redirect-uri")
	state, _ := cmd.Flags().GetString("state")
	uiLocales, _ := cmd.Flags().GetStringSlice("ui-locales")

	result, err := a.container.Authorize(ctx, &authsession.AuthorizeOptions{
		RedirectURI: redirectURI,
		State:       state,
		UILocales:   uiLocales,
	})
	if errors.Is(err, authsession.ErrCanceled) {
		fmt.Println("Login canceled.")
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Printf("Logged in as %s\n", result.UserInfo.Sub)
	return nil
}
