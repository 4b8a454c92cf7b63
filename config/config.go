// Package config loads AtlasDB settings from defaults, an optional YAML
// file and ATLASDB_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/nickyhof/AtlasDB/core"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "ATLASDB_"

const (
	EngineGit    = "git"
	EngineBolt   = "bolt"
	EngineMemory = "memory"
)

// BoltDirName is the directory inside DataDir that holds the bolt
// engine's files, one per table.
const BoltDirName = "bolt"

type Config struct {
	Engine           string        `yaml:"engine" env:"ENGINE"`
	DataDir          string        `yaml:"data_dir" env:"DATA_DIR"`
	OperationTimeout time.Duration `yaml:"operation_timeout" env:"OPERATION_TIMEOUT"`
	OpenTimeout      time.Duration `yaml:"open_timeout" env:"OPEN_TIMEOUT"`
	StrictInsert     bool          `yaml:"strict_insert" env:"STRICT_INSERT"`
	Identity         core.Identity `yaml:"identity" envPrefix:"IDENTITY_"`
	Log              LogConfig     `yaml:"log" envPrefix:"LOG_"`
	Server           ServerConfig  `yaml:"server" envPrefix:"SERVER_"`
	Remote           RemoteConfig  `yaml:"remote" envPrefix:"REMOTE_"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"` // json or console
}

type ServerConfig struct {
	Addr      string `yaml:"addr" env:"ADDR"`
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET"`
	Issuer    string `yaml:"issuer" env:"ISSUER"`
	Audience  string `yaml:"audience" env:"AUDIENCE"`
	// NameClaim and EmailClaim name the token claims holding the commit
	// author; empty means "name" and "email".
	NameClaim  string `yaml:"name_claim" env:"NAME_CLAIM"`
	EmailClaim string `yaml:"email_claim" env:"EMAIL_CLAIM"`
	// MetricsAddr serves /metrics over HTTP when set.
	MetricsAddr string `yaml:"metrics_addr" env:"METRICS_ADDR"`
}

// RemoteConfig configures S3 access for dump and restore.
type RemoteConfig struct {
	Region    string `yaml:"region" env:"REGION"`
	Endpoint  string `yaml:"endpoint" env:"ENDPOINT"`
	AccessKey string `yaml:"access_key" env:"ACCESS_KEY"`
	SecretKey string `yaml:"secret_key" env:"SECRET_KEY"`
}

// Default returns the configuration used when nothing else is set.
func Default() Config {
	return Config{
		Engine:  EngineMemory,
		DataDir: "./data",
		Identity: core.Identity{
			Name:  "AtlasDB",
			Email: "atlasdb@localhost",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Server: ServerConfig{
			Addr: ":3306",
		},
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty) and the environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func (c Config) Validate() error {
	var problems []error

	switch c.Engine {
	case EngineGit, EngineBolt:
		if strings.TrimSpace(c.DataDir) == "" {
			problems = append(problems, fmt.Errorf("data_dir is required for engine %s", c.Engine))
		}
	case EngineMemory:
	default:
		problems = append(problems, fmt.Errorf("unknown engine %q (want git, bolt or memory)", c.Engine))
	}

	if c.OperationTimeout < 0 {
		problems = append(problems, errors.New("operation_timeout must not be negative"))
	}
	if c.OpenTimeout < 0 {
		problems = append(problems, errors.New("open_timeout must not be negative"))
	}

	if c.Engine == EngineGit && (c.Identity.Name == "" || c.Identity.Email == "") {
		problems = append(problems, errors.New("identity name and email are required for engine git"))
	}

	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		problems = append(problems, fmt.Errorf("log level: %w", err))
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		problems = append(problems, fmt.Errorf("unknown log format %q (want json or console)", c.Log.Format))
	}

	return errors.Join(problems...)
}

// BoltDir is the directory of the bolt engine.
func (c Config) BoltDir() string {
	return filepath.Join(c.DataDir, BoltDirName)
}

// NewLogger builds the process logger described by c.Log.
func (c Config) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}

	var zc zap.Config
	if c.Log.Format == "json" {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
