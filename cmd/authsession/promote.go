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

var promoteCmd = &cobra.Command{
	Use:   "promote",
	Short: "Turn the anonymous identity into a permanent account",
	Long: `Open the system browser so the anonymous user can register or link an
existing account. The device-bound anonymous identity is attached to the new
account and then retired.`,
	RunE: runPromote,
}

func init() {
	promoteCmd.Flags().String("redirect-uri", "http://127.0.0.1:53682/callback", "Registered redirect URI")
	promoteCmd.Flags().String("state", "", "Opaque state echoed back in the callback")
	promoteCmd.Flags().StringSlice("ui-locales", nil, "Preferred UI locales")
	rootCmd.AddCommand(promoteCmd)
}

func runPromote(cmd *cobra.Command, _ []string) error {
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

	result, err := a.container.PromoteAnonymousUser(ctx, &authsession.AuthorizeOptions{
		RedirectURI: redirectURI,
		State:       state,
		UILocales:   uiLocales,
	})
	if errors.Is(err, authsession.ErrAnonymousUserNotFound) {
		return fmt.Errorf("no anonymous identity on this device, run \"authsession login-anonymous\" first")
	}
	if errors.Is(err, authsession.ErrCanceled) {
		fmt.Println("Promotion canceled.")
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Printf("Promoted to %s\n", result.UserInfo.Sub)
	return nil
}
