// Package config holds the runtime configuration surface and the parsed
// connection locator. The active ConnectionConfig is an explicitly owned
// value handed to the pool at construction; it is never mutated afterwards.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"github.com/sebcbi1/postgres-mcp/internal/logging"
)

// EnvKeyDatabase is the dotenv key the resolver persists the chosen URI under.
const EnvKeyDatabase = "MCP_DATABASE"

// Config is the process-wide runtime configuration, read from environment
// variables after the project .env has been loaded. Flags may override fields
// before the server starts.
type Config struct {
	// DatabaseURL is the PostgreSQL connection URI. Empty means discovery is
	// required before any query tool can run.
	DatabaseURL string `env:"MCP_DATABASE"`

	// ReadOnly enables the statement classifier policy and the session-level
	// read-only transaction mode. Defaults on; set MCP_READ_ONLY=false to
	// disable both.
	ReadOnly bool `env:"MCP_READ_ONLY" env-default:"true"`

	PoolMin int `env:"MCP_POOL_MIN" env-default:"1"`
	PoolMax int `env:"MCP_POOL_MAX" env-default:"20"`

	// ProjectDir is the discovery scan root and the location of the project
	// .env file. Editors/clients set CLIENT_CWD; falls back to the process cwd.
	ProjectDir string `env:"CLIENT_CWD"`

	CheckoutTimeout time.Duration `env:"MCP_CHECKOUT_TIMEOUT" env-default:"10s"`
	ConnectTimeout  time.Duration `env:"MCP_CONNECT_TIMEOUT" env-default:"5s"`
	QueryTimeout    time.Duration `env:"MCP_QUERY_TIMEOUT" env-default:"30s"`
	CloseGrace      time.Duration `env:"MCP_CLOSE_GRACE" env-default:"5s"`

	Log logging.Config
}

// Load reads the project .env (without overriding real environment variables,
// matching dotenv semantics) and then the environment.
func Load() (*Config, error) {
	LoadProjectEnv(projectDir(), false)

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	if cfg.ProjectDir == "" {
		cfg.ProjectDir = projectDir()
	}
	if cfg.PoolMin < 1 {
		cfg.PoolMin = 1
	}
	if cfg.PoolMax < cfg.PoolMin {
		cfg.PoolMax = cfg.PoolMin
	}
	return &cfg, nil
}

// LoadProjectEnv loads dir/.env into the environment. With override set,
// existing variables are replaced; used after the resolver persists a new
// choice so the process picks it up immediately.
func LoadProjectEnv(dir string, override bool) {
	envPath := filepath.Join(dir, ".env")
	if _, err := os.Stat(envPath); err != nil {
		return
	}
	if override {
		_ = godotenv.Overload(envPath)
	} else {
		_ = godotenv.Load(envPath)
	}
}

func projectDir() string {
	if dir := os.Getenv("CLIENT_CWD"); dir != "" {
		return dir
	}
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}
