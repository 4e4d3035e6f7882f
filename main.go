package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"swgconf/config"
	"swgconf/internal/client"
	"swgconf/internal/logger"
)

func main() {
	var (
		configFile  = flag.String("config", "config.json", "Configuration file path")
		token       = flag.String("token", "", "Server authentication token")
		serverAddr  = flag.String("server", "", "Server WebSocket address")
		projectRoot = flag.String("root", "", "Game server project root (default: auto-detect)")
	)
	flag.Parse()

	// Initialize logger
	logger := logger.New()

	// Load configuration
	cfg, err := config.Load(*configFile)

	// 如果默认配置文件加载失败，尝试查找同目录下的配置文件
	if err != nil && *configFile == "config.json" {
		logger.Info("Default config file not found, searching for packaged config...")

		// 尝试查找与可执行文件同名的配置文件
		exePath, err2 := os.Executable()
		if err2 == nil {
			exeDir := filepath.Dir(exePath)
			exeName := strings.TrimSuffix(filepath.Base(exePath), filepath.Ext(exePath))

			// 查找可能的配置文件
			possibleConfigs := []string{
				filepath.Join(exeDir, exeName+"_config.json"),
				filepath.Join(exeDir, "config.json"),
			}

			for _, configPath := range possibleConfigs {
				if _, err2 := os.Stat(configPath); err2 == nil {
					logger.Info("Found config file: %s", configPath)
					cfg, err = config.Load(configPath)
					if err == nil {
						break
					}
				}
			}
		}

		// 仍然没有配置文件时使用内置默认配置
		if err != nil {
			logger.Info("No config file found, using built-in defaults")
			cfg, err = config.Default(), nil
		}
	}

	// 如果仍然无法加载配置，退出程序
	if err != nil {
		logger.Error("Failed to load config: %v", err)
		os.Exit(1)
	}

	// Override config with command line arguments
	if *token != "" {
		cfg.Token = *token
	}
	if *serverAddr != "" {
		cfg.ServerAddr = *serverAddr
	}
	if *projectRoot != "" {
		cfg.ProjectRoot = *projectRoot
	}
	logger.SetLevel(cfg.LogLevel)

	// Validate required configuration
	if cfg.Token == "" {
		logger.Error("Token is required")
		os.Exit(1)
	}
	if cfg.ServerAddr == "" {
		logger.Error("Server address is required")
		os.Exit(1)
	}

	// Initialize agent
	agent, err := client.New(cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize agent: %v", err)
		os.Exit(1)
	}

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start the client
	logger.Info("Starting swgconf agent...")
	if err := agent.Start(); err != nil {
		logger.Error("Failed to start agent: %v", err)
		agent.Stop()
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Shutting down gracefully...")
	agent.Stop()
}
