// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

// Package config loads process configuration for the minisvc binaries.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/Query-farm/minisvc/minisvc"
)

// Server configures a process exposing a service over HTTP.
type Server struct {
	Addr             string `env:"MINISVC_ADDR" envDefault:"127.0.0.1:3000"`
	CompressionLevel int    `env:"MINISVC_COMPRESSION_LEVEL" envDefault:"3"`
	LogLevel         string `env:"MINISVC_LOG_LEVEL" envDefault:"info"`
	LogFormat        string `env:"MINISVC_LOG_FORMAT" envDefault:"text"`
}

// Client configures a process binding a remote service.
type Client struct {
	Remote  string        `env:"MINISVC_REMOTE"`
	Timeout time.Duration `env:"MINISVC_TIMEOUT" envDefault:"20s"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// LoadServer reads the server configuration from the environment.
func LoadServer() (Server, error) {
	var cfg Server
	err := ParseEnv(&cfg)
	return cfg, err
}

// LoadClient reads the client configuration from the environment.
func LoadClient() (Client, error) {
	var cfg Client
	err := ParseEnv(&cfg)
	return cfg, err
}

// Options converts the configuration into client options.
func (c Client) Options(logger *slog.Logger) minisvc.ClientOptions {
	return minisvc.ClientOptions{
		Remote:  c.Remote,
		Timeout: c.Timeout,
		Logger:  logger,
	}
}
