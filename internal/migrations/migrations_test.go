package migrations

import (
	"io/fs"
	"strings"
	"testing"
)

func TestMigrationsEmbedded(t *testing.T) {
	for _, name := range []string{"001_init.sql", "002_apps.sql"} {
		data, err := Files.ReadFile(name)
		if err != nil {
			t.Fatalf("expected embedded migration %s, got error: %v", name, err)
		}
		if len(data) == 0 {
			t.Fatalf("embedded migration %s is empty", name)
		}
	}
}

func TestMigrationsStartWithHeaderComment(t *testing.T) {
	entries, err := fs.ReadDir(Files, ".")
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	for _, entry := range entries {
		data, err := Files.ReadFile(entry.Name())
		if err != nil {
			t.Fatalf("read %s: %v", entry.Name(), err)
		}
		if !strings.HasPrefix(string(data), "-- ") {
			t.Errorf("migration %s must start with a descriptive comment", entry.Name())
		}
	}
}
