package config

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// envFiles lists the .env locations in precedence order.
func envFiles(dataDir string) []string {
	paths := []string{".env"}
	if dataDir != "" {
		paths = append(paths, filepath.Join(dataDir, ".env"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "medtracker", ".env"))
	}
	return paths
}

// LoadEnvFiles loads every existing .env file. Variables already set in the
// environment, or by an earlier file, win.
func LoadEnvFiles(dataDir string) error {
	var found []string
	for _, path := range envFiles(dataDir) {
		if _, err := os.Stat(path); err == nil {
			found = append(found, path)
		}
	}
	if len(found) == 0 {
		return nil
	}
	return godotenv.Load(found...)
}

var envAliases = map[string][]string{
	"MEDTRACKER_SCHEDULE_TIMEZONE":       {"MEDTRACKER_TZ"},
	"MEDTRACKER_SERVER_PORT":             {"PORT"},
	"MEDTRACKER_EVENTS_REDIS_ADDR":       {"REDIS_ADDR", "REDIS_URL"},
	"MEDTRACKER_EVENTS_REDIS_PASSWORD":   {"REDIS_PASSWORD"},
	"MEDTRACKER_SECURITY_JWT_SECRET":     {"JWT_SECRET"},
	"MEDTRACKER_SECURITY_ADMIN_PASSWORD": {"MEDTRACKER_ADMIN_PASSWORD"},
}

// ResolveEnvWithAliases returns the canonical variable, or the first set
// alias.
func ResolveEnvWithAliases(canonicalKey string) string {
	if val := os.Getenv(canonicalKey); val != "" {
		return val
	}

	for _, alias := range envAliases[canonicalKey] {
		if val := os.Getenv(alias); val != "" {
			return val
		}
	}

	return ""
}
