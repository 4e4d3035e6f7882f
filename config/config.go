package config

import (
	"embed"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	_const "swgconf/internal/const"
	"swgconf/model"
)

//go:embed config.json
var embeddedConfig embed.FS

// WatchConfig holds the Lua file watcher configuration
type WatchConfig struct {
	Enabled    bool `json:"enabled"`     // 是否监听配置目录变更
	DebounceMS int  `json:"debounce_ms"` // 去抖时间（毫秒）
}

// Debounce returns the debounce window, falling back to the default.
func (w WatchConfig) Debounce() time.Duration {
	if w.DebounceMS <= 0 {
		return time.Duration(_const.DefaultWatchDebounceMS) * time.Millisecond
	}
	return time.Duration(w.DebounceMS) * time.Millisecond
}

// ExportConfig holds the S3 snapshot export configuration
type ExportConfig struct {
	Enabled         bool   `json:"enabled"`
	Bucket          string `json:"bucket"`
	Region          string `json:"region,omitempty"`
	Endpoint        string `json:"endpoint,omitempty"` // 留空使用 AWS, 填写则用于 MinIO 等兼容服务
	Prefix          string `json:"prefix,omitempty"`
	PathStyle       bool   `json:"path_style"`
	AccessKeyID     string `json:"access_key_id,omitempty"` // 留空使用默认凭证链
	SecretAccessKey string `json:"secret_access_key,omitempty"`
}

// Config holds the configuration for the swgconf agent
type Config struct {
	Token         string               `json:"token"`
	ServerAddr    string               `json:"server_addr"`
	ProjectRoot   string               `json:"project_root,omitempty"` // 留空自动检测
	SnapshotDir   string               `json:"snapshot_dir,omitempty"` // 留空使用 <exe dir>/configurations
	LogLevel      string               `json:"log_level"`
	ConfigSources []model.ConfigSource `json:"config_sources"`
	HistoryDB     string               `json:"history_db,omitempty"`
	Watch         WatchConfig          `json:"watch"`
	MetricsAddr   string               `json:"metrics_addr,omitempty"` // 留空不启动 metrics 服务
	DiskReserveMB int                  `json:"disk_reserve_mb"`
	Export        ExportConfig         `json:"export"`
}

// DefaultSources 默认受管理的配置目录
func DefaultSources() []model.ConfigSource {
	names := []string{
		"player_manager",
		"loot_manager",
		"mission_manager",
		"planet_manager",
		"player_creation_manager",
		"commands",
	}
	sources := make([]model.ConfigSource, 0, len(names))
	for _, name := range names {
		sources = append(sources, model.ConfigSource{Source: name, Dest: name})
	}
	return sources
}

// Default returns the embedded configuration.
func Default() *Config {
	cfg := &Config{}
	if data, err := embeddedConfig.ReadFile("config.json"); err == nil {
		_ = json.Unmarshal(data, cfg)
	}
	cfg.applyDefaults()
	return cfg
}

// Load reads filename over the embedded defaults.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err = json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = _const.DefaultLogLevel
	}
	if len(c.ConfigSources) == 0 {
		c.ConfigSources = DefaultSources()
	}
	if c.HistoryDB == "" {
		c.HistoryDB = _const.DefaultHistoryDB
	}
	if c.DiskReserveMB <= 0 {
		c.DiskReserveMB = _const.DefaultDiskReserveMB
	}
	if c.Export.Prefix == "" {
		c.Export.Prefix = _const.DefaultExportPrefix
	}
}

// Save saves configuration to a JSON file
func (c *Config) Save(filename string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filename, data, _const.FilePerm)
}

// ResolveProjectRoot returns the configured project root, or detects it:
// the working directory if it holds docker-compose.yml, else the parent of
// the executable directory if that does, else the working directory.
func (c *Config) ResolveProjectRoot() (string, error) {
	if c.ProjectRoot != "" {
		return filepath.Abs(c.ProjectRoot)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	if hasMarker(cwd) {
		return cwd, nil
	}
	if exeDir, err := executableDir(); err == nil {
		parent := filepath.Dir(exeDir)
		if hasMarker(parent) {
			return parent, nil
		}
	}
	return cwd, nil
}

// SnapshotRoot returns the snapshot root directory.
func (c *Config) SnapshotRoot() (string, error) {
	if c.SnapshotDir != "" {
		return filepath.Abs(c.SnapshotDir)
	}
	exeDir, err := executableDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(exeDir, _const.DefaultSnapshotDirName), nil
}

// HistoryPath returns the history database path; a relative path sits
// next to the executable.
func (c *Config) HistoryPath() (string, error) {
	if filepath.IsAbs(c.HistoryDB) {
		return c.HistoryDB, nil
	}
	exeDir, err := executableDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(exeDir, c.HistoryDB), nil
}

func hasMarker(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, _const.ProjectMarkerFile))
	return err == nil
}

func executableDir() (string, error) {
	exePath, err := os.Executable()
	if err != nil {
		return "", err
	}
	return filepath.Dir(exePath), nil
}
