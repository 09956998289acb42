package pathing

import (
	"log"
	"os"
	"path/filepath"
)

// Ensure directories exist on startup
func init() {
	// Directories that must exist:
	dirs := []string{
		GetDataDir(),
		GetConfigDir(),
	}

	// Create all directories
	for _, dir := range dirs {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			err := os.MkdirAll(dir, 0755)
			if err != nil {
				log.Fatal(err)
			}
		}
	}
}

func GetMeterDbPath() string {
	// Join path
	return filepath.Join(GetDataDir(), "hem-readings.db")
}

func GetCollectorConfigPath() string {
	return filepath.Join(GetConfigDir(), "collector.toml")
}

func GetDataDir() string {
	if dir := os.Getenv("HEM_DATA_DIR"); dir != "" {
		return dir
	}
	return "/var/lib/house_energy_monitor"
}

func GetConfigDir() string {
	if dir := os.Getenv("HEM_CONFIG_DIR"); dir != "" {
		return dir
	}
	return "/etc/house_energy_monitor"
}
