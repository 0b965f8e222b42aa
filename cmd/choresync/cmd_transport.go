package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/user/choresync/internal/store"
	"github.com/user/choresync/internal/types"
)

func init() {
	rootCmd.AddCommand(transportCmd)
	transportCmd.AddCommand(transportEnableCmd, transportDisableCmd, transportStatusCmd)
}

var transportCmd = &cobra.Command{
	Use:   "transport",
	Short: "Manage realtime transport flags",
}

func transportKind(arg string) (types.TransportKind, string, error) {
	switch arg {
	case "stream":
		return types.TransportStream, store.KeyStreamEnabled, nil
	case "socket":
		return types.TransportSocket, store.KeySocketEnabled, nil
	default:
		return 0, "", fmt.Errorf("unknown transport %q (want stream or socket)", arg)
	}
}

func setTransportFlag(cmd *cobra.Command, arg string, enabled bool) error {
	_, key, err := transportKind(arg)
	if err != nil {
		return err
	}

	cfg := loadConfig()
	s, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer s.Close()

	value := "false"
	if enabled {
		value = "true"
	}
	if err := s.SetSetting(cmd.Context(), key, value); err != nil {
		return fmt.Errorf("persist flag: %w", err)
	}
	fmt.Fprintf(os.Stdout, "Transport %s %s.\n", arg, map[bool]string{true: "enabled", false: "disabled"}[enabled])
	return nil
}

var transportEnableCmd = &cobra.Command{
	Use:   "enable <stream|socket>",
	Short: "Enable a realtime transport",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setTransportFlag(cmd, args[0], true)
	},
}

var transportDisableCmd = &cobra.Command{
	Use:   "disable <stream|socket>",
	Short: "Disable a realtime transport",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setTransportFlag(cmd, args[0], false)
	},
}

var transportStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show effective transport flags",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		s, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer s.Close()

		for _, arg := range []string{"stream", "socket"} {
			_, key, err := transportKind(arg)
			if err != nil {
				return err
			}
			value, err := s.GetSetting(cmd.Context(), key)
			if err != nil {
				value = "(unset)"
			}
			// The stream transport is opt-in, the socket transport opt-out.
			effective := value == "true"
			if arg == "socket" {
				effective = value != "false"
			}
			fmt.Fprintf(os.Stdout, "%s: stored=%s effective=%t\n", arg, value, effective)
		}
		return nil
	},
}
