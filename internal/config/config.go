// Package config содержит логику чтения конфигурации клиента buspay.
package config

import (
	"flag"
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации клиента и мокового сервера buspay.
type Config struct {
	RunAddress         string `env:"RUN_ADDRESS"`
	DatabaseURI        string `env:"DATABASE_URI"`
	UserServiceAddress string `env:"USER_SERVICE_ADDRESS"`
	StoragePath        string `env:"STORAGE_PATH"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envUserService := cfg.UserServiceAddress
	envStoragePath := cfg.StoragePath

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for mock HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI for the dataset source")
	flag.StringVar(&cfg.UserServiceAddress, "u", "", "user service base address")
	flag.StringVar(&cfg.StoragePath, "s", "", "path to the session storage file")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envUserService != "" {
		cfg.UserServiceAddress = envUserService
	}
	if envStoragePath != "" {
		cfg.StoragePath = envStoragePath
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}

	return cfg, nil
}
