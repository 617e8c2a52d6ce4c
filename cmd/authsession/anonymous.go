package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var loginAnonymousCmd = &cobra.Command{
	Use:   "login-anonymous",
	Short: "Log in with the device-bound anonymous identity",
	Long: `Log in without user interaction using a keypair bound to this device.
The identity is created on first use and reused afterwards; it can later be
turned into a permanent account with "authsession promote".`,
	RunE: runLoginAnonymous,
}

func init() {
	rootCmd.AddCommand(loginAnonymousCmd)
}

func runLoginAnonymous(_ *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := a.container.AuthenticateAnonymously(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Logged in anonymously as %s\n", result.UserInfo.Sub)
	return nil
}
