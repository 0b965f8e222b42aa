package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/user/choresync/internal/auth"
	"github.com/user/choresync/internal/gateway"
)

func init() {
	rootCmd.AddCommand(queueCmd)
	queueCmd.AddCommand(queueListCmd, queueFlushCmd)
}

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and flush queued offline changes",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued requests awaiting replay",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		s, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer s.Close()

		pending, err := s.PendingRequests(cmd.Context())
		if err != nil {
			return fmt.Errorf("list queue: %w", err)
		}
		if len(pending) == 0 {
			fmt.Fprintln(os.Stdout, "Queue is empty.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tQUEUED\tURL")
		for _, req := range pending {
			fmt.Fprintf(w, "%d\t%s\t%s\n", req.ID, req.QueuedAt.Format(time.RFC3339), req.URL)
		}
		return w.Flush()
	},
}

var queueFlushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Replay queued requests against the server now",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		setupLogging(cfg)

		s, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer s.Close()

		authMgr, err := auth.NewManager(cmd.Context(), s, nil)
		if err != nil {
			return fmt.Errorf("init auth: %w", err)
		}
		if !authMgr.IsValid() {
			return fmt.Errorf("no valid credential, run 'choresync login' first")
		}

		before, err := s.QueueSize(cmd.Context())
		if err != nil {
			return fmt.Errorf("queue size: %w", err)
		}
		if before == 0 {
			fmt.Fprintln(os.Stdout, "Queue is empty.")
			return nil
		}

		client := &http.Client{Timeout: cfg.Timeout()}
		gw := gateway.New(authMgr, s, s, gateway.NewNetworkMonitor(), client,
			func() string { return apiBase(cmd.Context(), cfg, s) },
			cfg.CacheTTL(), nil)

		ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
		defer cancel()
		gw.ReplayQueue(ctx)

		after, err := s.QueueSize(cmd.Context())
		if err != nil {
			return fmt.Errorf("queue size: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Replayed %d request(s), %d remaining.\n", before-after, after)
		return nil
	},
}
