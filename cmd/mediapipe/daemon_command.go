package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mediapipe/internal/daemonctl"
	"mediapipe/internal/daemonrun"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	var (
		logLevel string
		dev      bool
	)

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the processing daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:    logLevel,
				Development: dev,
			})
		},
	}

	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override the configured log level")
	cmd.Flags().BoolVar(&dev, "dev", false, "Include source locations in log lines")

	cmd.AddCommand(newDaemonStartCommand(ctx))
	cmd.AddCommand(newDaemonStopCommand(ctx))
	cmd.AddCommand(newDaemonStatusCommand(ctx))
	return cmd
}

func newDaemonStartCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the daemon in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			exe, err := os.Executable()
			if err != nil {
				return fmt.Errorf("resolve executable: %w", err)
			}
			result, err := daemonctl.EnsureStarted(cfg, exe, daemonctl.LaunchOptions{
				ConfigPath: strings.TrimSpace(*ctx.configFlag),
			}, 10*time.Second)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch result.State {
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintf(out, "Daemon already running (pid %d)\n", result.PID)
			default:
				fmt.Fprintf(out, "Daemon started (pid %d)\n", result.PID)
			}
			return nil
		},
	}
}

func newDaemonStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the background daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			result, err := daemonctl.Stop(cfg, 15*time.Second)
			out := cmd.OutOrStdout()
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(out, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.ForcedKill {
				fmt.Fprintf(out, "Daemon did not exit in time; killed pid %d\n", result.PID)
				return nil
			}
			fmt.Fprintf(out, "Daemon stopped (pid %d)\n", result.PID)
			return nil
		},
	}
}

func newDaemonStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, asset and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			snap, err := daemonctl.BuildSnapshot(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, snap)
			}

			out := cmd.OutOrStdout()
			rows := [][]string{{"Daemon", daemonState(snap)}}
			if snap.Live != nil {
				rows = append(rows,
					[]string{"Workers", fmt.Sprintf("%d (%d active)", snap.Live.Workers, snap.Live.ActiveJobs)},
				)
				if snap.Live.LastError != "" {
					rows = append(rows, []string{"Last error", snap.Live.LastError})
				}
			}
			if snap.APIError != "" {
				rows = append(rows, []string{"API", snap.APIError})
			}
			for _, status := range sortedKeys(snap.Assets) {
				rows = append(rows, []string{"Assets " + status, strconv.Itoa(countOf(snap.Assets, status))})
			}
			for _, status := range sortedKeys(snap.Queue) {
				rows = append(rows, []string{"Jobs " + status, strconv.Itoa(countOf(snap.Queue, status))})
			}
			for _, dep := range snap.Dependencies {
				state := "ok"
				if !dep.Available {
					state = dep.Detail
				}
				rows = append(rows, []string{dep.Name, state})
			}
			fmt.Fprint(out, renderTable([]string{"Item", "Value"}, rows, nil))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func daemonState(snap daemonctl.Snapshot) string {
	if !snap.Running {
		return "stopped"
	}
	if snap.PID > 0 {
		return "running (pid " + strconv.Itoa(snap.PID) + ")"
	}
	return "running"
}

func sortedKeys[K ~string](counts map[K]int) []string {
	keys := make([]string, 0, len(counts))
	for key := range counts {
		keys = append(keys, string(key))
	}
	sort.Strings(keys)
	return keys
}

func countOf[K ~string](counts map[K]int, key string) int {
	return counts[K(key)]
}
