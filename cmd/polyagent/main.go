package main

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"polyagent/internal/app"
	"polyagent/internal/config"
	"polyagent/internal/logger"
)

func main() {
	// Optional .env for API keys; the file missing is not an error.
	_ = godotenv.Load()

	cfgPath := os.Getenv("POLYAGENT_CONFIG")
	if cfgPath == "" {
		if _, err := os.Stat("configs/config.yaml"); err == nil {
			cfgPath = "configs/config.yaml"
		}
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("loading config failed: %v", err)
	}

	logFile, err := setupLogOutput(cfg.App.LogPath)
	if err != nil {
		log.Fatalf("opening log file failed: %v", err)
	}
	if logFile != nil {
		defer logFile.Close()
	}
	logger.SetLevel(cfg.App.LogLevel)

	mode := "LIVE"
	if cfg.Trading.Paper {
		mode = "PAPER"
	}
	logger.Infof("polyagent %s starting (agent=%s balance=$%.2f kill=$%.2f)",
		mode, cfg.App.AgentID, cfg.Trading.InitialBalance, cfg.Trading.KillThreshold)

	a, err := app.New(context.Background(), cfg)
	if err != nil {
		log.Fatalf("building agent failed: %v", err)
	}
	if err := a.Run(); err != nil {
		log.Fatalf("agent exited with error: %v", err)
	}
}

func setupLogOutput(path string) (*os.File, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, nil
	}
	dir := filepath.Dir(trimmed)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.OpenFile(trimmed, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	mw := io.MultiWriter(os.Stdout, file)
	log.SetOutput(mw)
	logger.SetOutput(mw)
	return file, nil
}
