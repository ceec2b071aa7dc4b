// Package config loads configuration structs from environment variables.
// Variables found in .env files are added to the environment first; values
// that are already set win.
//
//	cfg, err := config.Load[config.ServerConfig]()
//	if err != nil {
//		log.Fatal(err)
//	}
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// DefaultEnvFile is read by Load when no files are given.
const DefaultEnvFile = ".env"

// ServerConfig holds the settings shared by the example servers.
type ServerConfig struct {
	Addr            string        `env:"ADDR" envDefault:":8080"`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	IdleTimeout     time.Duration `env:"IDLE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"5s"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	LogDevelopment  bool          `env:"LOG_DEVELOPMENT" envDefault:"false"`
	ContentRoot     string        `env:"CONTENT_ROOT" envDefault:"."`
	WebRoot         string        `env:"WEB_ROOT" envDefault:"wwwroot"`
	EnableMetrics   bool          `env:"ENABLE_METRICS" envDefault:"false"`
}

// Load reads the given .env files (DefaultEnvFile when none are given) and
// parses the environment into a T. Missing .env files are skipped.
func Load[T any](files ...string) (T, error) {
	if len(files) == 0 {
		files = []string{DefaultEnvFile}
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			var zero T
			return zero, fmt.Errorf("config: read %s: %w", file, err)
		}
	}
	return Parse[T](nil)
}

// Parse parses a T from environ, or from the process environment when
// environ is nil. It never reads .env files.
func Parse[T any](environ map[string]string) (T, error) {
	opts := env.Options{}
	if environ != nil {
		opts.Environment = environ
	}
	cfg, err := env.ParseAsWithOptions[T](opts)
	if err != nil {
		return cfg, fmt.Errorf("config: parse environment: %w", err)
	}
	return cfg, nil
}

// MustLoad is like Load but panics on error.
func MustLoad[T any](files ...string) T {
	cfg, err := Load[T](files...)
	if err != nil {
		panic(err)
	}
	return cfg
}

// NewLogger builds a zap logger at the configured level.
func (c ServerConfig) NewLogger() (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("config: log level: %w", err)
	}
	zc := zap.NewProductionConfig()
	if c.LogDevelopment {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = level
	return zc.Build()
}

// NewServer returns an http.Server for handler using the configured address
// and timeouts.
func (c ServerConfig) NewServer(handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         c.Addr,
		Handler:      handler,
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
		IdleTimeout:  c.IdleTimeout,
	}
}
