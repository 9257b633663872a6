package main

import (
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writeServeConfig writes a config that keeps all state in a temporary
// directory and listens on addr.
func writeServeConfig(t *testing.T, addr string) string {
	t.Helper()
	dir := t.TempDir()
	config := DefaultConfig()
	config.Server.ApiAddr = addr
	config.Server.DatabasePath = filepath.Join(dir, "data", "markus.db")
	config.Tags.TagDir = filepath.Join(dir, "tags")
	data, err := json.Marshal(config)
	if err != nil {
		t.Fatalf("failed to marshal config: %v", err)
	}
	path := filepath.Join(dir, "config.json")
	if err = os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

type runResult struct {
	action string
	err    error
}

func startRun(configPath string, actionChan chan string) <-chan runResult {
	done := make(chan runResult, 1)
	go func() {
		action, err := run(configPath, actionChan)
		done <- runResult{action, err}
	}()
	return done
}

func TestRun_Shutdown(t *testing.T) {
	actionChan := make(chan string, 1)
	done := startRun(writeServeConfig(t, "127.0.0.1:0"), actionChan)
	actionChan <- actionShutdown

	select {
	case res := <-done:
		if res.err != nil || res.action != actionShutdown {
			t.Errorf("run() = %q, %v; want %q, nil", res.action, res.err, actionShutdown)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("run() did not return after a shutdown action")
	}
}

func TestRun_ListenFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to occupy a port: %v", err)
	}
	defer func() { _ = ln.Close() }()

	done := startRun(writeServeConfig(t, ln.Addr().String()), make(chan string, 1))
	select {
	case res := <-done:
		if res.err == nil {
			t.Errorf("run() on a used port returned action %q and no error", res.action)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("run() kept waiting after the listener failed")
	}
}
