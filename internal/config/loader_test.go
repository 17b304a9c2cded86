package config

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleYAML = `
version: v1
engine:
  event_workers: 4
sites:
  - id: s1
    name: One
    host: one.example.com
    env: production
events:
  - type: site.created
    handler: provision
    params:
      step: filesystem
  - type: site.created
    handler: dns
    params:
      zone: sites.example.com
    when: site.env == "production"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "siteflow.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoaderInitialLoad(t *testing.T) {
	l, err := NewLoader(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("NewLoader error: %v", err)
	}
	cfg := l.Config()

	if cfg.Version != "v1" {
		t.Errorf("version = %q, want v1", cfg.Version)
	}
	if len(cfg.Events) != 2 {
		t.Fatalf("events = %d, want 2", len(cfg.Events))
	}
	if cfg.Events[1].When == "" {
		t.Error("guard expression was not loaded")
	}
	if step, _ := cfg.Events[0].Params["step"].(string); step != "filesystem" {
		t.Errorf("params.step = %q, want filesystem", step)
	}

	// Explicit value kept, the rest defaulted.
	if cfg.Engine.EventWorkers != 4 {
		t.Errorf("event_workers = %d, want 4", cfg.Engine.EventWorkers)
	}
	if cfg.Engine.QueueDepth != 1000 || cfg.Engine.EventTimeoutMs != 5000 || cfg.Engine.MaxSteps != 10000 {
		t.Errorf("defaults not applied: %+v", cfg.Engine)
	}
}

func TestLoaderReload(t *testing.T) {
	path := writeConfig(t, sampleYAML)
	l, err := NewLoader(path)
	if err != nil {
		t.Fatalf("NewLoader error: %v", err)
	}

	var notified *ServiceConfig
	l.OnChange(func(cfg *ServiceConfig) { notified = cfg })

	updated := sampleYAML + `
  - type: site.deleted
    handler: notify
    params:
      channel: ops
`
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	cfg, err := l.Reload()
	if err != nil {
		t.Fatalf("Reload error: %v", err)
	}
	if len(cfg.Events) != 3 {
		t.Errorf("events after reload = %d, want 3", len(cfg.Events))
	}
	if notified != cfg {
		t.Error("OnChange callback did not receive the reloaded config")
	}
}

func TestLoaderBadFile(t *testing.T) {
	if _, err := NewLoader(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := NewLoader(writeConfig(t, "version: [broken")); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestReloadKeepsOldConfigOnError(t *testing.T) {
	path := writeConfig(t, sampleYAML)
	l, err := NewLoader(path)
	if err != nil {
		t.Fatalf("NewLoader error: %v", err)
	}
	if err := os.WriteFile(path, []byte("{{{"), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	if _, err := l.Reload(); err == nil {
		t.Fatal("expected reload error")
	}
	if l.Config().Version != "v1" {
		t.Error("old config was not preserved after failed reload")
	}
}
