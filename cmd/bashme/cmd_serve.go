package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bashme-ai/bashme/pkg/agent"
	"github.com/bashme-ai/bashme/pkg/config"
	"github.com/bashme-ai/bashme/pkg/daemon"
	"github.com/bashme-ai/bashme/pkg/gateway"
	"github.com/bashme-ai/bashme/pkg/logger"
	"github.com/bashme-ai/bashme/pkg/toolserver"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the completion daemon in the foreground",
		RunE:  runServe,
	}
	cmd.Flags().Bool("debug", false, "Enable debug logging")
	cmd.Flags().Bool("foreground", false, "Suppress the interactive banner (used by 'serve start')")
	cmd.AddCommand(
		newServeStartCmd(),
		newServeStopCmd(),
		newServeRestartCmd(),
		newServeStatusCmd(),
	)
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	debug, _ := cmd.Flags().GetBool("debug")
	quiet, _ := cmd.Flags().GetBool("foreground")

	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))
	if debug {
		logger.SetLevel(logger.DEBUG)
		if !quiet {
			fmt.Println("Debug logging enabled")
		}
	}
	if logFile := config.ExpandHome(cfg.Log.File); logFile != "" {
		if err := logger.EnableFileLogging(logFile); err != nil {
			logger.WarnCF("gateway", "File logging unavailable", map[string]any{"error": err.Error()})
		}
	}

	session := agent.NewSession(cfg, toolserver.PromptName, toolserver.CompletionRules)
	defer session.Close()

	// A failed warm-up still serves; every completion answers with the
	// diagnostic marker until the daemon is restarted.
	if err := session.Warmup(cmd.Context()); err != nil && !quiet {
		fmt.Printf("✗ Warm-up failed: %v\n", err)
		fmt.Println("  Completions will carry a diagnostic marker until restart")
	}

	srv := gateway.NewServer(cfg, session)
	if err := srv.Start(); err != nil {
		return fmt.Errorf("error starting server: %w", err)
	}

	if !quiet {
		fmt.Printf("✓ bashme listening on %s\n", cfg.ListenAddr())
		fmt.Println("Press Ctrl+C to stop")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	if !quiet {
		fmt.Println("\nShutting down...")
	}
	logger.InfoC("gateway", "Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.WarnCF("gateway", "Shutdown error", map[string]any{"error": err.Error()})
	}
	if !quiet {
		fmt.Println("✓ Stopped")
	}
	return nil
}

func newServeStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the daemon in the background",
		RunE:  runServeStart,
	}
}

func newServeStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the background daemon",
		RunE:  runServeStop,
	}
}

func newServeRestartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "Restart the background daemon",
		RunE:  runServeRestart,
	}
}

func newServeStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE:  runServeStatus,
	}
}

// newDaemon builds the process manager pointed at this binary's own
// 'serve --foreground' invocation.
func newDaemon() (*daemon.Daemon, config.RuntimePaths, error) {
	paths := config.ResolveRuntimePaths()

	executable, err := os.Executable()
	if err != nil {
		return nil, paths, fmt.Errorf("unable to determine binary path: %w", err)
	}

	d := daemon.New(daemon.Config{
		PIDPath:    paths.PIDPath,
		LogPath:    paths.LogPath,
		Executable: executable,
		Args:       []string{"serve", "--foreground"},
	})
	return d, paths, nil
}

func runServeStart(_ *cobra.Command, _ []string) error {
	d, paths, err := newDaemon()
	if err != nil {
		return err
	}

	fmt.Println("Starting bashme daemon...")
	pid, err := d.Start()
	if err != nil {
		var running *daemon.ProcessRunningError
		if errors.As(err, &running) {
			fmt.Printf("✗ Daemon is already running with PID %d\n", running.GetPID())
			fmt.Println("\nUse 'bashme serve status' for more information")
			os.Exit(1)
		}
		fmt.Printf("✗ Failed to start daemon: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("✓ Daemon started")
	fmt.Printf("  PID: %d\n", pid)
	fmt.Printf("  Log: %s\n", paths.LogPath)
	return nil
}

func runServeStop(_ *cobra.Command, _ []string) error {
	d, _, err := newDaemon()
	if err != nil {
		return err
	}

	fmt.Println("Stopping bashme daemon...")
	if err := d.Stop(); err != nil {
		fmt.Printf("✗ %v\n", err)
		os.Exit(1)
	}

	fmt.Println("✓ Daemon stopped")
	return nil
}

func runServeRestart(_ *cobra.Command, _ []string) error {
	d, paths, err := newDaemon()
	if err != nil {
		return err
	}

	fmt.Println("Restarting bashme daemon...")
	pid, err := d.Restart()
	if err != nil {
		fmt.Printf("✗ Failed to restart daemon: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("✓ Daemon restarted")
	fmt.Printf("  PID: %d\n", pid)
	fmt.Printf("  Log: %s\n", paths.LogPath)
	return nil
}

func runServeStatus(_ *cobra.Command, _ []string) error {
	d, paths, err := newDaemon()
	if err != nil {
		return err
	}

	fmt.Println("bashme daemon status")
	fmt.Printf("Version: %s\n\n", formatVersion())

	status, err := d.Status()
	if err != nil {
		fmt.Println("Status: Stopped")
		fmt.Println("\nUse 'bashme serve start' to start the daemon")
		return nil
	}

	fmt.Println("Status: Running")
	fmt.Printf("  PID: %d\n", status.PID)
	if status.Uptime > 0 {
		fmt.Printf("  Uptime: %s\n", formatUptime(status.Uptime))
	}

	if health, err := fetchHealth(); err == nil {
		if health.Degraded {
			fmt.Println("  Health: degraded (completions answer a diagnostic marker)")
		} else {
			fmt.Printf("  Health: %s\n", health.Status)
		}
		fmt.Printf("  Cache: %d hits, %d misses\n", health.Cache.Hits, health.Cache.Misses)
	} else {
		fmt.Printf("  Health: unreachable (%v)\n", err)
	}

	fmt.Printf("\nLog file: %s\n", paths.LogPath)
	return nil
}

// fetchHealth asks the running daemon for its health snapshot.
func fetchHealth() (*gateway.HealthResponse, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://%s/health", cfg.ListenAddr()))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var health gateway.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, err
	}
	return &health, nil
}

// formatUptime formats a duration in a human-readable way.
func formatUptime(d time.Duration) string {
	if d < time.Minute {
		return d.Round(time.Second).String()
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	return fmt.Sprintf("%dd %dh", days, hours)
}
