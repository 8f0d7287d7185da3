package config

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	EnvBashmeConfig = "BASHME_CONFIG"
	EnvBashmeHome   = "BASHME_HOME"
)

// RuntimePaths locates everything bashme keeps on disk. The home directory
// defaults to ~/.bashme; BASHME_CONFIG pins the config file directly and
// implies the home directory around it.
type RuntimePaths struct {
	HomeDir    string
	ConfigPath string
	PIDPath    string
	LogPath    string
}

func ResolveRuntimePaths() RuntimePaths {
	if configPath := ExpandHome(strings.TrimSpace(os.Getenv(EnvBashmeConfig))); configPath != "" {
		return buildRuntimePaths(filepath.Dir(configPath), configPath)
	}

	homeDir := ExpandHome(strings.TrimSpace(os.Getenv(EnvBashmeHome)))
	if homeDir == "" {
		homeDir = defaultBashmeHome()
	}

	return buildRuntimePaths(homeDir, filepath.Join(homeDir, "config.json"))
}

func defaultBashmeHome() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".bashme"
	}
	return filepath.Join(home, ".bashme")
}

func buildRuntimePaths(homeDir, configPath string) RuntimePaths {
	return RuntimePaths{
		HomeDir:    homeDir,
		ConfigPath: configPath,
		PIDPath:    filepath.Join(homeDir, "bashme.pid"),
		LogPath:    filepath.Join(homeDir, "bashme.log"),
	}
}
