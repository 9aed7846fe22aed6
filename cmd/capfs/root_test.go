package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/AnishMulay/capfs/internal/config"
)

func run(t *testing.T, cfgPath string, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--config", cfgPath}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCLI_PutCatLs(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.DataDir = filepath.Join(dir, "data")
	cfgPath := filepath.Join(dir, "capfs.yaml")
	if err := config.Save(cfgPath, cfg); err != nil {
		t.Fatal(err)
	}

	if _, err := run(t, cfgPath, "", "mkroot"); err != nil {
		t.Fatalf("mkroot: %v", err)
	}
	if _, err := run(t, cfgPath, "", "mkroot"); err == nil {
		t.Fatal("second mkroot succeeded")
	}
	if _, err := run(t, cfgPath, "hello capfs", "put", "/greeting"); err != nil {
		t.Fatalf("put: %v", err)
	}

	out, err := run(t, cfgPath, "", "cat", "/greeting")
	if err != nil {
		t.Fatalf("cat: %v", err)
	}
	if out != "hello capfs" {
		t.Errorf("cat = %q, want %q", out, "hello capfs")
	}

	// put replaces the contents.
	if _, err := run(t, cfgPath, "bye", "put", "/greeting"); err != nil {
		t.Fatal(err)
	}
	if out, _ := run(t, cfgPath, "", "cat", "/greeting"); out != "bye" {
		t.Errorf("cat after second put = %q, want bye", out)
	}

	out, err = run(t, cfgPath, "", "ls", "/")
	if err != nil {
		t.Fatalf("ls: %v", err)
	}
	if !strings.Contains(out, "greeting") || !strings.HasPrefix(out, "-") {
		t.Errorf("ls = %q", out)
	}

	out, err = run(t, cfgPath, "", "stat", "/greeting")
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if !strings.Contains(out, "length:  3") {
		t.Errorf("stat = %q", out)
	}

	if _, err := run(t, cfgPath, "", "cat", "/missing"); err == nil {
		t.Error("cat of a missing path succeeded")
	}
}
