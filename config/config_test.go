package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	_const "swgconf/internal/const"
)

func TestDefaultUsesEmbeddedConfig(t *testing.T) {
	cfg := Default()
	if cfg.LogLevel != "info" {
		t.Fatalf("Expected log level info, got %s", cfg.LogLevel)
	}
	if len(cfg.ConfigSources) != 6 {
		t.Fatalf("Expected 6 default sources, got %d", len(cfg.ConfigSources))
	}
	if cfg.ConfigSources[0].Source != "player_manager" || cfg.ConfigSources[5].Dest != "commands" {
		t.Fatalf("Unexpected default sources: %+v", cfg.ConfigSources)
	}
	if cfg.Watch.Debounce() != 500*time.Millisecond {
		t.Fatalf("Expected 500ms debounce, got %v", cfg.Watch.Debounce())
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.json")
	content := `{
  "token": "abc",
  "server_addr": "ws://panel:9000/ws",
  "log_level": "debug",
  "config_sources": [{"source": "custom", "dest": "custom"}],
  "watch": {"enabled": false}
}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Token != "abc" || cfg.ServerAddr != "ws://panel:9000/ws" {
		t.Fatalf("Unexpected connection settings: %+v", cfg)
	}
	if len(cfg.ConfigSources) != 1 || cfg.ConfigSources[0].Dest != "custom" {
		t.Fatalf("Expected custom sources, got %+v", cfg.ConfigSources)
	}
	if cfg.Watch.Enabled {
		t.Fatalf("Expected watch disabled")
	}
	if cfg.HistoryDB != _const.DefaultHistoryDB {
		t.Fatalf("Expected default history db, got %s", cfg.HistoryDB)
	}
	if cfg.DiskReserveMB != _const.DefaultDiskReserveMB {
		t.Fatalf("Expected default disk reserve, got %d", cfg.DiskReserveMB)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatalf("Expected error for missing config file")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Token = "saved"
	path := filepath.Join(t.TempDir(), "out.json")
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load saved config: %v", err)
	}
	if loaded.Token != "saved" {
		t.Fatalf("Expected token saved, got %s", loaded.Token)
	}
}

func TestResolveProjectRoot(t *testing.T) {
	explicit := t.TempDir()
	cfg := &Config{ProjectRoot: explicit}
	root, err := cfg.ResolveProjectRoot()
	if err != nil {
		t.Fatalf("Failed to resolve project root: %v", err)
	}
	if root != explicit {
		t.Fatalf("Expected %s, got %s", explicit, root)
	}

	// 工作目录包含 docker-compose.yml 时使用工作目录
	project := t.TempDir()
	if err := os.WriteFile(filepath.Join(project, _const.ProjectMarkerFile), []byte("services: {}\n"), 0644); err != nil {
		t.Fatalf("Failed to write marker: %v", err)
	}
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working dir: %v", err)
	}
	if err := os.Chdir(project); err != nil {
		t.Fatalf("Failed to chdir: %v", err)
	}
	defer os.Chdir(wd)

	root, err = (&Config{}).ResolveProjectRoot()
	if err != nil {
		t.Fatalf("Failed to detect project root: %v", err)
	}
	want, _ := filepath.EvalSymlinks(project)
	got, _ := filepath.EvalSymlinks(root)
	if got != want {
		t.Fatalf("Expected %s, got %s", want, got)
	}
}
