package kvstore

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

func openAll(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()

	file, err := OpenFile(filepath.Join(dir, "state.yaml"))
	if err != nil {
		t.Fatalf("OpenFile() error = %v", err)
	}
	db, err := OpenSQLite(filepath.Join(dir, "state.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return map[string]Store{
		"memory": NewMemory(),
		"file":   file,
		"sqlite": db,
	}
}

func TestStoreRoundTrip(t *testing.T) {
	for name, s := range openAll(t) {
		t.Run(name, func(t *testing.T) {
			if got := s.GetString(KeyNetwork); got != "" {
				t.Errorf("GetString(missing) = %q, want empty", got)
			}
			if got := s.GetInt(KeyStandAlone); got != 0 {
				t.Errorf("GetInt(missing) = %d, want 0", got)
			}

			if err := s.SetString(KeyNetwork, "home"); err != nil {
				t.Fatalf("SetString() error = %v", err)
			}
			if err := s.SetInt(KeyStandAlone, 1); err != nil {
				t.Fatalf("SetInt() error = %v", err)
			}
			if err := s.SetString(KeyNetwork, "office"); err != nil {
				t.Fatalf("SetString() overwrite error = %v", err)
			}

			if got := s.GetString(KeyNetwork); got != "office" {
				t.Errorf("GetString() = %q, want office", got)
			}
			if got := s.GetInt(KeyStandAlone); got != 1 {
				t.Errorf("GetInt() = %d, want 1", got)
			}

			keys := s.Keys()
			sort.Strings(keys)
			if strings.Join(keys, ",") != "network,stand_alone" {
				t.Errorf("Keys() = %v", keys)
			}

			if err := s.Delete(KeyNetwork); err != nil {
				t.Fatalf("Delete() error = %v", err)
			}
			if got := s.GetString(KeyNetwork); got != "" {
				t.Errorf("GetString() after delete = %q", got)
			}
		})
	}
}

func TestMalformedIntReadsZero(t *testing.T) {
	s := NewMemory()
	s.SetString(KeyStandAlone, "yes")
	if got := s.GetInt(KeyStandAlone); got != 0 {
		t.Errorf("GetInt() = %d, want 0", got)
	}
}

func TestFileStorePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.yaml")

	f, err := OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile() error = %v", err)
	}
	if err := f.SetString(ParamKey("mqtt_server"), "broker.local"); err != nil {
		t.Fatalf("SetString() error = %v", err)
	}

	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temporary file left behind")
	}

	reopened, err := OpenFile(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	if got := reopened.GetString("param.mqtt_server"); got != "broker.local" {
		t.Errorf("reopened value = %q", got)
	}
}

func TestFileStoreRejectsUnknownVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yaml")
	os.WriteFile(path, []byte("version: 7\nvalues:\n  network: x\n"), 0600)

	if _, err := OpenFile(path); err == nil {
		t.Fatal("expected version error")
	}
}

func TestOpenSelectsBackend(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		path string
		want string
	}{
		{"", "*kvstore.Memory"},
		{filepath.Join(dir, "a.yaml"), "*kvstore.File"},
		{filepath.Join(dir, "a.db"), "*kvstore.SQLite"},
	}
	for _, tt := range tests {
		s, err := Open(tt.path)
		if err != nil {
			t.Fatalf("Open(%q) error = %v", tt.path, err)
		}
		defer s.Close()
		if got := typeName(s); got != tt.want {
			t.Errorf("Open(%q) = %s, want %s", tt.path, got, tt.want)
		}
	}
}

func typeName(s Store) string {
	switch s.(type) {
	case *Memory:
		return "*kvstore.Memory"
	case *File:
		return "*kvstore.File"
	case *SQLite:
		return "*kvstore.SQLite"
	}
	return "unknown"
}
