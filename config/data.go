package config

import (
	"os"
	"path/filepath"
)

// getConfigDir determines the per-user config directory path.
// Priority: ARIA_UPLOADER_CONFIG_DIR environment variable > ~/.aria_uploader
func getConfigDir() string {
	if dir := os.Getenv("ARIA_UPLOADER_CONFIG_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		// No resolvable home, fall back to the working directory
		return ".aria_uploader"
	}
	return filepath.Join(home, ".aria_uploader")
}

// GetConfigDir returns the current config directory path.
// Checked at runtime so tests can redirect it via the environment.
func GetConfigDir() string {
	return getConfigDir()
}

// EnsureConfigDir creates the config directory if it doesn't exist.
func EnsureConfigDir() error {
	return os.MkdirAll(GetConfigDir(), 0755)
}

// GetCredentialsPath returns the full path to the saved Aria login record.
// Path: {CONFIG_DIR}/credentials.json
func GetCredentialsPath() string {
	return filepath.Join(GetConfigDir(), "credentials.json")
}

// GetCloudSettingsPath returns the full path to the saved Google Cloud
// settings record (service account key path + bucket name).
// Path: {CONFIG_DIR}/gcloud_settings.json
func GetCloudSettingsPath() string {
	return filepath.Join(GetConfigDir(), "gcloud_settings.json")
}

// GetHistoryDBPath returns the full path to the job history database.
// The history database records per-job outcomes across runs.
// Path: {CONFIG_DIR}/history.db
func GetHistoryDBPath() string {
	return filepath.Join(GetConfigDir(), "history.db")
}

// GetLogFilePath returns the full path to the persistent log file.
// Path: {CONFIG_DIR}/aria_uploader.log
func GetLogFilePath() string {
	return filepath.Join(GetConfigDir(), "aria_uploader.log")
}

// GetUploadBackend returns the configured object storage backend type.
// Configurable via ARIA_UPLOADER_BACKEND ("gcs", "s3", "sftp").
// Defaults to "gcs", which is what the Aria workflow normally targets.
func GetUploadBackend() string {
	if backend := os.Getenv("ARIA_UPLOADER_BACKEND"); backend != "" {
		return backend
	}
	return "gcs"
}
