package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcher_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "draftd.yaml")
	if err := os.WriteFile(path, []byte("log:\n  level: info\n"), 0o600); err != nil {
		t.Fatalf("seeding config: %v", err)
	}

	changes := make(chan *Config, 1)
	w, err := NewWatcher(path,
		func(cfg *Config) { changes <- cfg },
		func(err error) { t.Logf("watch error: %v", err) },
	)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer func() { _ = w.Close() }()

	if err := AtomicWrite(path, []byte("log:\n  level: debug\n")); err != nil {
		t.Fatalf("rewriting config: %v", err)
	}

	select {
	case cfg := <-changes:
		if cfg.Log.Level != "debug" {
			t.Errorf("reloaded Log.Level = %q, want %q", cfg.Log.Level, "debug")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload observed")
	}
}

func TestWatcher_KeepsOldConfigOnInvalidEdit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "draftd.yaml")
	if err := os.WriteFile(path, []byte("log:\n  level: info\n"), 0o600); err != nil {
		t.Fatalf("seeding config: %v", err)
	}

	changes := make(chan *Config, 1)
	errs := make(chan error, 1)
	w, err := NewWatcher(path,
		func(cfg *Config) { changes <- cfg },
		func(err error) { errs <- err },
	)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer func() { _ = w.Close() }()

	if err := AtomicWrite(path, []byte("log:\n  level: shouting\n")); err != nil {
		t.Fatalf("rewriting config: %v", err)
	}

	select {
	case err := <-errs:
		if err == nil {
			t.Error("expected validation error")
		}
	case cfg := <-changes:
		t.Errorf("invalid edit produced a snapshot: %+v", cfg)
	case <-time.After(5 * time.Second):
		t.Fatal("no callback observed")
	}
}

func TestWatcher_IgnoresSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "draftd.yaml")
	if err := os.WriteFile(path, []byte("log:\n  level: info\n"), 0o600); err != nil {
		t.Fatalf("seeding config: %v", err)
	}

	changes := make(chan *Config, 1)
	w, err := NewWatcher(path,
		func(cfg *Config) { changes <- cfg },
		func(err error) {},
	)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer func() { _ = w.Close() }()

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600); err != nil {
		t.Fatalf("writing sibling: %v", err)
	}

	select {
	case <-changes:
		t.Error("sibling write triggered a reload")
	case <-time.After(time.Second):
	}
}
