package credentials

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ilyLeonOn/meta-aria-uploader/config"
)

func TestSaveLoadClearLogin(t *testing.T) {
	t.Setenv("ARIA_UPLOADER_CONFIG_DIR", t.TempDir())

	if _, _, ok := LoadLogin(); ok {
		t.Fatal("LoadLogin reported ok with nothing saved")
	}

	if err := SaveLogin("alice", "s3cret"); err != nil {
		t.Fatalf("SaveLogin failed: %v", err)
	}

	username, password, ok := LoadLogin()
	if !ok {
		t.Fatal("LoadLogin reported not ok after SaveLogin")
	}
	if username != "alice" || password != "s3cret" {
		t.Errorf("LoadLogin = (%q, %q), want (alice, s3cret)", username, password)
	}

	// saved file is user-only
	info, err := os.Stat(config.GetCredentialsPath())
	if err != nil {
		t.Fatalf("credentials file missing: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("credentials file mode = %o, want 600", perm)
	}

	if err := ClearLogin(); err != nil {
		t.Fatalf("ClearLogin failed: %v", err)
	}
	if _, _, ok := LoadLogin(); ok {
		t.Error("LoadLogin reported ok after ClearLogin")
	}
	// clearing twice is not an error
	if err := ClearLogin(); err != nil {
		t.Errorf("second ClearLogin failed: %v", err)
	}
}

func TestSaveLoadClearCloudSettings(t *testing.T) {
	t.Setenv("ARIA_UPLOADER_CONFIG_DIR", t.TempDir())

	if _, _, ok := LoadCloudSettings(); ok {
		t.Fatal("LoadCloudSettings reported ok with nothing saved")
	}

	credPath := filepath.Join("keys", "svc.json")
	if err := SaveCloudSettings(credPath, "my-bucket"); err != nil {
		t.Fatalf("SaveCloudSettings failed: %v", err)
	}

	gotPath, gotBucket, ok := LoadCloudSettings()
	if !ok {
		t.Fatal("LoadCloudSettings reported not ok after save")
	}
	if gotPath != credPath || gotBucket != "my-bucket" {
		t.Errorf("LoadCloudSettings = (%q, %q), want (%q, my-bucket)", gotPath, gotBucket, credPath)
	}

	if err := ClearCloudSettings(); err != nil {
		t.Fatalf("ClearCloudSettings failed: %v", err)
	}
	if _, _, ok := LoadCloudSettings(); ok {
		t.Error("LoadCloudSettings reported ok after clear")
	}
}

func TestLoadLoginIncompleteRecord(t *testing.T) {
	t.Setenv("ARIA_UPLOADER_CONFIG_DIR", t.TempDir())

	if err := config.EnsureConfigDir(); err != nil {
		t.Fatal(err)
	}
	// username without password is treated as nothing saved
	data := []byte(`{"username": "alice", "password": ""}`)
	if err := os.WriteFile(config.GetCredentialsPath(), data, 0600); err != nil {
		t.Fatal(err)
	}

	if _, _, ok := LoadLogin(); ok {
		t.Error("LoadLogin reported ok for an incomplete record")
	}
}

func TestLoadLoginCorruptRecord(t *testing.T) {
	t.Setenv("ARIA_UPLOADER_CONFIG_DIR", t.TempDir())

	if err := config.EnsureConfigDir(); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(config.GetCredentialsPath(), []byte("not-json"), 0600); err != nil {
		t.Fatal(err)
	}

	if _, _, ok := LoadLogin(); ok {
		t.Error("LoadLogin reported ok for a corrupt record")
	}
}
