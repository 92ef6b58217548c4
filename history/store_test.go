package history

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestAddAndList(t *testing.T) {
	store := openTestStore(t)

	records := []Record{
		{Name: "rec1", Source: "/data/rec1.vrs", Status: "Uploaded (3 files)", FilesUploaded: 3, Timestamp: time.Now().Add(-2 * time.Hour)},
		{Name: "rec2", Source: "/data/rec2.vrs", Status: "Conversion failed", Timestamp: time.Now().Add(-1 * time.Hour)},
	}
	for _, r := range records {
		if err := store.Add(r); err != nil {
			t.Fatalf("Add(%s) failed: %v", r.Name, err)
		}
	}

	got, err := store.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("List returned %d records, want 2", len(got))
	}
	// chronological key order
	if got[0].Name != "rec1" || got[1].Name != "rec2" {
		t.Errorf("List order = [%s, %s], want [rec1, rec2]", got[0].Name, got[1].Name)
	}
	if got[0].FilesUploaded != 3 {
		t.Errorf("FilesUploaded = %d, want 3", got[0].FilesUploaded)
	}
}

func TestAddDefaultsTimestamp(t *testing.T) {
	store := openTestStore(t)

	if err := store.Add(Record{Name: "rec", Status: "Uploaded (1 files)"}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	got, err := store.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(got) != 1 || got[0].Timestamp.IsZero() {
		t.Errorf("expected a defaulted timestamp, got %v", got)
	}
}

func TestRepeatedRunsDoNotOverwrite(t *testing.T) {
	store := openTestStore(t)

	base := time.Now()
	for i := 0; i < 3; i++ {
		err := store.Add(Record{Name: "rec", Status: "Uploaded (1 files)", Timestamp: base.Add(time.Duration(i) * time.Second)})
		if err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}
	got, err := store.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("List returned %d records, want 3", len(got))
	}
}

func TestCleanupOldRecords(t *testing.T) {
	store := openTestStore(t)

	old := Record{Name: "old", Status: "Uploaded (1 files)", Timestamp: time.Now().Add(-48 * time.Hour)}
	fresh := Record{Name: "fresh", Status: "Uploaded (1 files)", Timestamp: time.Now()}
	if err := store.Add(old); err != nil {
		t.Fatal(err)
	}
	if err := store.Add(fresh); err != nil {
		t.Fatal(err)
	}

	if err := store.CleanupOldRecords(24 * time.Hour); err != nil {
		t.Fatalf("CleanupOldRecords failed: %v", err)
	}

	got, err := store.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(got) != 1 || got[0].Name != "fresh" {
		t.Errorf("List after cleanup = %v, want only fresh", got)
	}
}
