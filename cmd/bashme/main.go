package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/bashme-ai/bashme/pkg/config"
)

var (
	version   = "dev"
	gitCommit string
	buildTime string
	goVersion string
)

// formatVersion returns the version string with optional git commit.
func formatVersion() string {
	v := version
	if gitCommit != "" {
		v += fmt.Sprintf(" (git: %s)", gitCommit)
	}
	return v
}

func printVersion() {
	fmt.Printf("bashme %s\n", formatVersion())
	if buildTime != "" {
		fmt.Printf("  Build: %s\n", buildTime)
	}
	goVer := goVersion
	if goVer == "" {
		goVer = runtime.Version()
	}
	fmt.Printf("  Go: %s\n", goVer)
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "bashme",
		Short:        "AI-assisted shell completion daemon",
		SilenceUsage: true,
	}
	cmd.AddCommand(
		newServeCmd(),
		newToolserverCmd(),
		newCompleteCmd(),
		newVersionCmd(),
	)
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(_ *cobra.Command, _ []string) {
			printVersion()
		},
	}
}

// loadConfig resolves the runtime paths and reads the config file.
// A missing file yields the defaults.
func loadConfig() (*config.Config, config.RuntimePaths, error) {
	paths := config.ResolveRuntimePaths()
	cfg, err := config.LoadConfig(paths.ConfigPath)
	if err != nil {
		return nil, paths, fmt.Errorf("error loading config: %w", err)
	}
	return cfg, paths, nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
