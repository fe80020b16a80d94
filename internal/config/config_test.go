package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := []byte(`{
		"trust": {
			"ans": {"base_url": "http://ans.local"},
			"anchor": {"enabled": true, "chain_config": "chains.yaml"}
		},
		"workflow": {"high_risk_countries_file": "risk.json"}
	}`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Address != ":8080" {
		t.Fatalf("unexpected server address: %s", cfg.Server.Address)
	}
	if cfg.Storage.JobStore.Driver != "memory" || cfg.Queue.Driver != "memory" {
		t.Fatalf("unexpected storage defaults: %+v %+v", cfg.Storage, cfg.Queue)
	}
	if cfg.Workflow.MaxRetries != 3 || cfg.Workflow.WorkerCount != 4 {
		t.Fatalf("unexpected workflow defaults: %+v", cfg.Workflow)
	}
	if cfg.Trust.ANS.BaseURL != "http://ans.local" || cfg.Trust.ANS.TimeoutSeconds != 10 {
		t.Fatalf("unexpected ans config: %+v", cfg.Trust.ANS)
	}
	if cfg.Auth.Mode != "disabled" {
		t.Fatalf("unexpected auth mode: %s", cfg.Auth.Mode)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Fatalf("unexpected logging defaults: %+v", cfg.Logging)
	}

	// 相对路径应基于配置文件所在目录展开。
	if cfg.Trust.Anchor.ChainConfig != filepath.Join(dir, "chains.yaml") {
		t.Fatalf("unexpected chain config path: %s", cfg.Trust.Anchor.ChainConfig)
	}
	if cfg.Workflow.HighRiskCountriesFile != filepath.Join(dir, "risk.json") {
		t.Fatalf("unexpected risk file path: %s", cfg.Workflow.HighRiskCountriesFile)
	}
}

func TestLoadRejectsMissingFile(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for empty path")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadFromEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{}`), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(EnvConfigPath, path)

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("load from env: %v", err)
	}
	if cfg.Server.Address != ":8080" {
		t.Fatalf("unexpected address: %s", cfg.Server.Address)
	}

	t.Setenv(EnvConfigPath, "")
	if _, err := LoadFromEnv(); err == nil {
		t.Fatal("expected error when env var is empty")
	}
}
