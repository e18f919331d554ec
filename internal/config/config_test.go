package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ANSIBOT_CONFIG", path)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ANSIBOT_CONFIG", filepath.Join(t.TempDir(), "missing.json"))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Agent.MaxIterations != 8 {
		t.Errorf("MaxIterations = %d, want 8", cfg.Agent.MaxIterations)
	}
	if cfg.Agent.RecursionLimit != 300 {
		t.Errorf("RecursionLimit = %d, want 300", cfg.Agent.RecursionLimit)
	}
	if cfg.Agent.ApprovalTimeout != 60*time.Second {
		t.Errorf("ApprovalTimeout = %v", cfg.Agent.ApprovalTimeout)
	}
	if cfg.Session.Expiry != 24*time.Hour {
		t.Errorf("Session.Expiry = %v", cfg.Session.Expiry)
	}
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	writeConfig(t, `{
		"controller": {"baseUrl": "https://ctrl.example.com/api/v2"},
		"agent": {"maxIterations": 4}
	}`)
	t.Setenv("ANSIBOT_AGENT_MAX_ITERATIONS", "6")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Controller.BaseURL != "https://ctrl.example.com/api/v2" {
		t.Errorf("BaseURL = %q", cfg.Controller.BaseURL)
	}
	if cfg.Agent.MaxIterations != 6 {
		t.Errorf("env override lost: MaxIterations = %d, want 6", cfg.Agent.MaxIterations)
	}
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for missing controller URL")
	}

	cfg.Controller.BaseURL = "https://ctrl.example.com/api/v2"
	cfg.Planner.APIBase = "http://planner:8000/v1"
	cfg.Planner.Model = "llama-4-scout"
	cfg.Reasoner.APIBase = "http://reasoner:8000/v1"
	cfg.Reasoner.Model = "qwen3-32b"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}

	cfg.Channels.Slack.Enabled = true
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for slack enabled without tokens")
	}
	cfg.Channels.Slack.AppToken = "xapp-1"
	cfg.Channels.Slack.BotToken = "xoxb-1"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate with slack tokens: %v", err)
	}

	cfg.Audit.Enabled = true
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for audit enabled without brokers")
	}
}
