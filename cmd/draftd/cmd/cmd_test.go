package cmd

import (
	"os"
	"strings"
	"testing"
)

func TestSubcommandsRegistered(t *testing.T) {
	want := []string{"serve", "sweep", "advance", "new", "status", "init", "version"}
	have := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		have[c.Name()] = true
	}
	for _, name := range want {
		if !have[name] {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestInitWritesStarterConfig(t *testing.T) {
	t.Chdir(t.TempDir())

	if err := runInit(nil, nil); err != nil {
		t.Fatalf("runInit() error = %v", err)
	}

	data, err := os.ReadFile(".draftd.yaml")
	if err != nil {
		t.Fatalf("reading starter config: %v", err)
	}
	if !strings.Contains(string(data), "monthly_ceiling") {
		t.Error("starter config missing lookup section")
	}

	// A second init without --force refuses to clobber.
	if err := runInit(nil, nil); err == nil {
		t.Error("runInit() should refuse to overwrite")
	}

	initForce = true
	defer func() { initForce = false }()
	if err := runInit(nil, nil); err != nil {
		t.Errorf("runInit() with force error = %v", err)
	}
}
