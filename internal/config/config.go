// Package config содержит логику чтения конфигурации сервиса доставки молока.
package config

import (
	"flag"
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации сервиса доставки молока.
type Config struct {
	RunAddress    string `env:"RUN_ADDRESS"`
	DatabaseURI   string `env:"DATABASE_URI"`
	SessionSecret string `env:"SESSION_SECRET"`
	NoticeFile    string `env:"NOTICE_FILE"`
	AdminUsername string `env:"ADMIN_USERNAME"`
	AdminPassword string `env:"ADMIN_PASSWORD"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envSessionSecret := cfg.SessionSecret
	envNoticeFile := cfg.NoticeFile

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.SessionSecret, "s", "", "secret key for admin session cookies")
	flag.StringVar(&cfg.NoticeFile, "n", "data/notice.json", "path to the notice file")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envSessionSecret != "" {
		cfg.SessionSecret = envSessionSecret
	}
	if envNoticeFile != "" {
		cfg.NoticeFile = envNoticeFile
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	if cfg.NoticeFile == "" {
		cfg.NoticeFile = "data/notice.json"
	}
	if cfg.AdminUsername == "" {
		cfg.AdminUsername = "admin"
	}

	return cfg, nil
}
