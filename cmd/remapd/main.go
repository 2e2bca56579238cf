// Command remapd remaps keys system-wide depending on the focused window.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jetkvm/remapd"
	"github.com/jetkvm/remapd/internal/keys"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "remapd",
		Short:        "Focus-aware keyboard remapper",
		Version:      version,
		SilenceUsage: true,
	}
	root.PersistentFlags().String("config", "", "config file (default "+remapd.DefaultConfigPath+")")

	root.AddCommand(
		runCmd(),
		checkCmd(),
		keysCmd(),
		focusCmd(),
	)
	return root
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Grab the keyboard and remap until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return remapd.Main(ctx, remapd.Options{ConfigPath: path, Version: version})
		},
	}
}

func checkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate the config and print the mapping table",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			source, _ := cmd.Flags().GetString("source")

			cfg, err := remapd.LoadConfig(path)
			if err != nil {
				return err
			}
			if source == "" {
				source = cfg.Input.Source
			}
			lines, err := remapd.MappingSummary(cfg, source)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "config ok (input %s, media %s)\n", cfg.Input.Source, cfg.Media.Backend)
			for _, l := range lines {
				fmt.Fprintln(out, "  "+l)
			}
			return nil
		},
	}
	cmd.Flags().String("source", "", "input source whose table to print (evdev|serial)")
	return cmd
}

func keysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "List key names usable in [[mapping]] entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, c := range keys.AllCodes() {
				fmt.Fprintf(out, "%-20s %d\n", c, uint16(c))
			}
			return nil
		},
	}
}

func focusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "focus",
		Short: "Print the focused window and whether remapping is suppressed",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := remapd.LoadConfig(path)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			snap, reason, suppressed, err := remapd.QueryFocus(ctx, cfg)
			if err != nil {
				return fmt.Errorf("query focused window: %w", err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				Window     any    `json:"window"`
				Suppressed bool   `json:"suppressed"`
				Reason     string `json:"reason,omitempty"`
			}{snap, suppressed, reason})
		},
	}
}
