package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"teamtask/internal/domain"
)

// Config models teamtask.yml.
type Config struct {
	Server struct {
		Addr           string        `yaml:"addr"`
		BasePath       string        `yaml:"base_path"`
		RequestTimeout time.Duration `yaml:"request_timeout"`
	} `yaml:"server"`
	Auth struct {
		TokenTTL time.Duration `yaml:"token_ttl"`
		Issuer   string        `yaml:"issuer"`
	} `yaml:"auth"`
	Cache struct {
		RedisURL string        `yaml:"redis_url"`
		UserTTL  time.Duration `yaml:"user_ttl"`
	} `yaml:"cache"`
	Users []SeedUser `yaml:"users"`
}

// SeedUser is created at bootstrap when no user with the same id exists.
type SeedUser struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Email    string `yaml:"email"`
	Role     string `yaml:"role"`
	Password string `yaml:"password"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with tt config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	if !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	if c.Server.RequestTimeout < 0 {
		return fmt.Errorf("config.server.request_timeout must not be negative")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("config.auth.token_ttl must be positive")
	}
	if c.Cache.UserTTL < 0 {
		return fmt.Errorf("config.cache.user_ttl must not be negative")
	}
	ids := map[string]bool{}
	emails := map[string]bool{}
	for i, u := range c.Users {
		if u.ID == "" {
			return fmt.Errorf("users[%d].id is required", i)
		}
		if ids[u.ID] {
			return fmt.Errorf("duplicate user id %s", u.ID)
		}
		ids[u.ID] = true
		email := strings.ToLower(u.Email)
		if email == "" {
			return fmt.Errorf("user %s has empty email", u.ID)
		}
		if emails[email] {
			return fmt.Errorf("duplicate user email %s", u.Email)
		}
		emails[email] = true
		if _, ok := domain.ParseRole(u.Role); !ok {
			return fmt.Errorf("user %s has unknown role %q", u.ID, u.Role)
		}
		if u.Password == "" {
			return fmt.Errorf("user %s has empty password", u.ID)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "teamtask.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	cfg, err := FromYAML([]byte(defaultTemplate))
	if err != nil {
		panic(fmt.Sprintf("default config invalid: %v", err))
	}
	return cfg
}

// FromYAML parses and validates config from raw YAML bytes. Missing
// sections keep their default values.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	applyDefaults(&cfg)
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

func applyDefaults(cfg *Config) {
	cfg.Server.Addr = "127.0.0.1:8080"
	cfg.Server.BasePath = "/api"
	cfg.Server.RequestTimeout = 15 * time.Second
	cfg.Auth.TokenTTL = 24 * time.Hour
	cfg.Auth.Issuer = "teamtask"
	cfg.Cache.UserTTL = 5 * time.Minute
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8080
  base_path: /api
  request_timeout: 15s

auth:
  token_ttl: 24h
  issuer: teamtask

cache:
  # Leave empty to resolve users straight from the database.
  redis_url: ""
  user_ttl: 5m

users:
  - id: admin
    name: Administrator
    email: admin@example.com
    role: Admin
    password: change-me
`
