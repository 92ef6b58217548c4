package credentials

import (
	"encoding/json"
	"errors"
	"os"
	"time"

	"github.com/ilyLeonOn/meta-aria-uploader/config"
	"github.com/ilyLeonOn/meta-aria-uploader/logger"
)

// LoginRecord is the persisted Aria service login pair.
// Stored as plaintext JSON; hardening this via a secret store is a
// deliberate non-goal for now.
type LoginRecord struct {
	Username string `json:"username"`
	Password string `json:"password"`
	SavedAt  string `json:"saved_at"`
}

// CloudSettings is the persisted object storage configuration.
type CloudSettings struct {
	CredPath string `json:"gcloud_cred_path"`
	Bucket   string `json:"bucket_name"`
	SavedAt  string `json:"saved_at"`
}

const savedAtLayout = "2006-01-02 15:04:05"

// SaveLogin writes the Aria login record, replacing any previous one.
func SaveLogin(username, password string) error {
	record := LoginRecord{
		Username: username,
		Password: password,
		SavedAt:  time.Now().Format(savedAtLayout),
	}
	if err := writeRecord(config.GetCredentialsPath(), record); err != nil {
		logger.Errorf("Failed to save credentials: %v", err)
		return err
	}
	logger.Infof("Credentials saved to %s", config.GetCredentialsPath())
	return nil
}

// LoadLogin reads the saved Aria login pair. A missing or incomplete
// record is treated as "nothing saved" and reported via ok=false.
func LoadLogin() (username, password string, ok bool) {
	var record LoginRecord
	if !readRecord(config.GetCredentialsPath(), &record) {
		return "", "", false
	}
	if record.Username == "" || record.Password == "" {
		return "", "", false
	}
	logger.Info("Credentials loaded from config file")
	return record.Username, record.Password, true
}

// ClearLogin deletes the saved Aria login record.
func ClearLogin() error {
	return removeRecord(config.GetCredentialsPath(), "credentials")
}

// SaveCloudSettings writes the storage settings record, replacing any
// previous one.
func SaveCloudSettings(credPath, bucket string) error {
	settings := CloudSettings{
		CredPath: credPath,
		Bucket:   bucket,
		SavedAt:  time.Now().Format(savedAtLayout),
	}
	if err := writeRecord(config.GetCloudSettingsPath(), settings); err != nil {
		logger.Errorf("Failed to save cloud settings: %v", err)
		return err
	}
	logger.Infof("Cloud settings saved to %s", config.GetCloudSettingsPath())
	return nil
}

// LoadCloudSettings reads the saved storage settings.
func LoadCloudSettings() (credPath, bucket string, ok bool) {
	var settings CloudSettings
	if !readRecord(config.GetCloudSettingsPath(), &settings) {
		return "", "", false
	}
	if settings.CredPath == "" || settings.Bucket == "" {
		return "", "", false
	}
	logger.Info("Cloud settings loaded from config file")
	return settings.CredPath, settings.Bucket, true
}

// ClearCloudSettings deletes the saved storage settings record.
func ClearCloudSettings() error {
	return removeRecord(config.GetCloudSettingsPath(), "cloud settings")
}

func writeRecord(path string, record interface{}) error {
	if err := config.EnsureConfigDir(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

func readRecord(path string, record interface{}) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Debugf("No saved record at %s", path)
		} else {
			logger.Errorf("Failed to read %s: %v", path, err)
		}
		return false
	}
	if err := json.Unmarshal(data, record); err != nil {
		logger.Errorf("Failed to parse %s: %v", path, err)
		return false
	}
	return true
}

func removeRecord(path, what string) error {
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		logger.Errorf("Failed to clear %s: %v", what, err)
		return err
	}
	logger.Infof("Cleared saved %s", what)
	return nil
}
