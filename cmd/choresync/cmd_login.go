package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/user/choresync/internal/auth"
	"github.com/user/choresync/internal/types"
)

func init() {
	rootCmd.AddCommand(loginCmd, logoutCmd)

	loginCmd.Flags().String("token", "", "bearer token (required)")
	loginCmd.Flags().Duration("expires-in", 30*24*time.Hour, "token lifetime from now")
	_ = loginCmd.MarkFlagRequired("token")
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store a bearer credential",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		token, _ := cmd.Flags().GetString("token")
		expiresIn, _ := cmd.Flags().GetDuration("expires-in")

		cfg := loadConfig()
		s, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer s.Close()

		authMgr, err := auth.NewManager(cmd.Context(), s, nil)
		if err != nil {
			return fmt.Errorf("init auth: %w", err)
		}
		cred := types.Credential{Token: token, ExpiresAt: time.Now().Add(expiresIn)}
		if err := authMgr.SetCredential(cmd.Context(), cred); err != nil {
			return fmt.Errorf("store credential: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Credential stored, expires %s.\n", cred.ExpiresAt.Format(time.RFC3339))
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Clear the stored credential",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		s, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer s.Close()

		authMgr, err := auth.NewManager(cmd.Context(), s, nil)
		if err != nil {
			return fmt.Errorf("init auth: %w", err)
		}
		authMgr.Clear()
		fmt.Fprintln(os.Stdout, "Credential cleared.")
		return nil
	},
}
