package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mohammednabarawy/video-gen/internal/logs"
	"github.com/mohammednabarawy/video-gen/internal/preflight"
	"github.com/mohammednabarawy/video-gen/internal/services/comfyui"
)

func newServerCommand(ctx *commandContext) *cobra.Command {
	serverCmd := &cobra.Command{
		Use:   "server",
		Short: "Manage the inference server",
	}

	serverCmd.AddCommand(newServerStartCommand(ctx))
	serverCmd.AddCommand(newServerStopCommand(ctx))
	serverCmd.AddCommand(newServerRestartCommand(ctx))
	serverCmd.AddCommand(newServerStatusCommand(ctx))
	serverCmd.AddCommand(newServerLogsCommand(ctx))

	return serverCmd
}

func (c *commandContext) newSupervisor() (*comfyui.Supervisor, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.runLogger()
	if err != nil {
		return nil, err
	}
	return comfyui.NewSupervisor(cfg, logger)
}

func newServerStartCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the inference server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			supervisor, err := ctx.newSupervisor()
			if err != nil {
				return err
			}
			stdout := cmd.OutOrStdout()
			if supervisor.IsRunning(cmd.Context()) {
				fmt.Fprintln(stdout, "Server already running")
				return nil
			}
			fmt.Fprintln(stdout, "Starting server...")
			if err := supervisor.Start(cmd.Context(), comfyui.StartOptions{}); err != nil {
				return err
			}
			fmt.Fprintf(stdout, "Server running at %s\n", cfg.ServerBaseURL())
			return nil
		},
	}
}

func newServerStopCommand(ctx *commandContext) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the managed inference server",
		RunE: func(cmd *cobra.Command, args []string) error {
			supervisor, err := ctx.newSupervisor()
			if err != nil {
				return err
			}
			if err := supervisor.Stop(cmd.Context(), force); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Server stopped")
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Skip the graceful shutdown phase")
	return cmd
}

func newServerRestartCommand(ctx *commandContext) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the managed inference server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			supervisor, err := ctx.newSupervisor()
			if err != nil {
				return err
			}
			if err := supervisor.Restart(cmd.Context(), comfyui.RestartOptions{Force: force}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Server restarted at %s\n", cfg.ServerBaseURL())
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Skip the graceful shutdown phase")
	return cmd
}

func newServerStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show server and environment status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			supervisor, err := ctx.newSupervisor()
			if err != nil {
				return err
			}
			status := supervisor.Status(cmd.Context())
			if asJSON {
				return writeJSON(cmd, status)
			}

			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)

			for _, line := range renderSectionHeader("Server", colorize) {
				fmt.Fprintln(stdout, line)
			}
			mode := "external"
			if cfg.ManagedServer() {
				mode = "managed"
			}
			fmt.Fprintln(stdout, renderStatusLine("Mode", statusInfo, mode, colorize))
			fmt.Fprintln(stdout, renderStatusLine("URL", statusInfo, status.URL, colorize))
			fmt.Fprintln(stdout, renderStatusLine("State", serverStateKind(cfg.ManagedServer(), status.Running), serverStateMessage(status), colorize))
			if status.InstallDir != "" {
				fmt.Fprintln(stdout, renderStatusLine("Install dir", statusInfo, status.InstallDir, colorize))
			}

			fmt.Fprintln(stdout)
			for _, line := range renderSectionHeader("Environment", colorize) {
				fmt.Fprintln(stdout, line)
			}
			var checks []preflight.Result
			if cfg.ManagedServer() {
				checks = append(checks, preflight.CheckInstallation(cfg))
			}
			if cfg.ModelsRoot() != "" {
				checks = append(checks, preflight.CheckModels(cfg))
			}
			if len(checks) == 0 {
				fmt.Fprintln(stdout, renderStatusLine("Checks", statusInfo, "nothing to check for an external server", colorize))
			}
			for _, check := range checks {
				fmt.Fprintln(stdout, renderPreflightLine(check, colorize))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit status as JSON")
	return cmd
}

func serverStateKind(managed, running bool) statusKind {
	switch {
	case running:
		return statusOK
	case managed:
		return statusInfo
	default:
		return statusError
	}
}

func serverStateMessage(status comfyui.ServerStatus) string {
	if !status.Running {
		return "not running"
	}
	if status.Owned && status.PID > 0 {
		return fmt.Sprintf("running (pid %d)", status.PID)
	}
	return "running (not started by videogen)"
}

func newServerLogsCommand(ctx *commandContext) *cobra.Command {
	var (
		lines  int
		follow bool
	)
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the server log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			path := cfg.ServerLogPath()
			if path == "" {
				return errors.New("log directory not configured")
			}

			runCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			stdout := cmd.OutOrStdout()
			result, err := logs.Tail(runCtx, path, logs.TailOptions{Offset: -1, Limit: lines})
			if err != nil {
				return err
			}
			for _, line := range result.Lines {
				fmt.Fprintln(stdout, line)
			}
			if !follow {
				return nil
			}

			offset := result.Offset
			for {
				result, err = logs.Tail(runCtx, path, logs.TailOptions{Offset: offset, Follow: true, Wait: 2 * time.Second})
				if err != nil {
					if errors.Is(err, context.Canceled) {
						return nil
					}
					return err
				}
				for _, line := range result.Lines {
					fmt.Fprintln(stdout, line)
				}
				offset = result.Offset
				if runCtx.Err() != nil {
					return nil
				}
			}
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep reading as the server writes")
	return cmd
}
