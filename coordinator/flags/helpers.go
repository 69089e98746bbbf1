package flags

import (
	"os"
	"path/filepath"
	"runtime"
)

// defaultDataDir mirrors the platform conventions for application data.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ""
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "SpkCoordinator")
	case "windows":
		return filepath.Join(home, "AppData", "Local", "SpkCoordinator")
	default:
		return filepath.Join(home, ".spk-coordinator")
	}
}
