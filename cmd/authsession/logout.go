package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Revoke the stored refresh token and clear the session",
	RunE:  runLogout,
}

func init() {
	logoutCmd.Flags().Bool("force", false, "Clear local state even when revocation fails")
	rootCmd.AddCommand(logoutCmd)
}

func runLogout(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.container.Configure(ctx); err != nil {
		return err
	}

	force, _ := cmd.Flags().GetBool("force")
	if err := a.container.Logout(ctx, force); err != nil {
		return err
	}

	fmt.Println("Logged out.")
	return nil
}
