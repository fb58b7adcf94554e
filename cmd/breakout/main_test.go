package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "breakout.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestRun_UnknownFlag(t *testing.T) {
	var stderr bytes.Buffer
	if err := run(context.Background(), []string{"-nope"}, &stderr); err == nil {
		t.Error("Expected error for an unknown flag")
	}
}

func TestRun_MissingConfigFile(t *testing.T) {
	var stderr bytes.Buffer
	err := run(context.Background(), []string{"-config", filepath.Join(t.TempDir(), "absent.yaml")}, &stderr)
	if err == nil {
		t.Error("Expected error for a missing config file")
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	path := writeConfig(t, "server:\n  tcp_addr: \"\"\n")
	var stderr bytes.Buffer
	if err := run(context.Background(), []string{"-config", path}, &stderr); err == nil {
		t.Error("Expected validation error")
	}
}

func TestRun_StartsAndStopsOnCancel(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "audit.db")
	path := writeConfig(t, `
server:
  tcp_addr: "127.0.0.1:0"
http:
  addr: "127.0.0.1:0"
database:
  path: "`+dbPath+`"
`)

	ctx, cancel := context.WithCancel(context.Background())
	var stderr bytes.Buffer
	done := make(chan error, 1)
	go func() { done <- run(ctx, []string{"-config", path}, &stderr) }()

	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected clean shutdown, got %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("run did not return after cancel")
	}
	if !strings.Contains(stderr.String(), "shutdown complete") {
		t.Errorf("Expected shutdown log, got %s", stderr.String())
	}
}

func TestRun_ConfigFileFromEnvironment(t *testing.T) {
	t.Setenv("BREAKOUT_CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))
	var stderr bytes.Buffer
	if err := run(context.Background(), nil, &stderr); err == nil {
		t.Error("Expected the env config path to be used and fail")
	}
}
