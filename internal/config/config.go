package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"groupchat/internal/model"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

const (
	EnvPrefix   = "GROUPCHAT_"
	EnvPassword = EnvPrefix + "PASSWORD"

	BackendFile  = "file"
	BackendRedis = "redis"
)

type (
	// Config holds the groupchat configuration. Precedence is flags, then
	// environment, then the YAML file, then defaults.
	Config struct {
		Nickname string `yaml:"nickname" json:"nickname"`
		// Adapter is a MAC address or interface name, empty picks the first.
		Adapter  string `yaml:"adapter" json:"adapter"`
		Port     int    `yaml:"port" json:"port" validate:"min=1,max=65535"`
		// PortSet is true when Port came from the file, the environment or
		// a flag rather than from Default.
		PortSet  bool   `yaml:"-" json:"-"`
		LogLevel string `yaml:"log_level" json:"log_level"`
		LogFile  string `yaml:"log_file" json:"log_file"`
		Store    Store  `yaml:"store" json:"store"`
		Bridge   Bridge `yaml:"bridge" json:"bridge"`
	}

	Store struct {
		Backend   string `yaml:"backend" json:"backend" validate:"oneof=file redis"`
		Path      string `yaml:"path" json:"path"`
		RedisAddr string `yaml:"redis_addr" json:"redis_addr" validate:"required_if=Backend redis"`
		RedisKey  string `yaml:"redis_key" json:"redis_key"`
	}

	Bridge struct {
		Addr string `yaml:"addr" json:"addr" validate:"required,hostname_port"`
	}
)

func Default() *Config {
	return &Config{
		Port:     29999,
		LogLevel: "info",
		Store: Store{
			Backend:   BackendFile,
			RedisAddr: "localhost:6379",
		},
		Bridge: Bridge{Addr: "127.0.0.1:8080"},
	}
}

// DefaultPath returns <user config dir>/groupchat/config.yaml.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", ".groupchat", "config.yaml")
	}
	return filepath.Join(dir, "groupchat", "config.yaml")
}

// Load reads path over the defaults and applies GROUPCHAT_* environment
// variables. A missing file is not an error. A .env file in the working
// directory is loaded first without overriding variables already set.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, err
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
			var explicit struct {
				Port *int `yaml:"port"`
			}
			if err := yaml.Unmarshal(data, &explicit); err == nil && explicit.Port != nil {
				cfg.PortSet = true
			}
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := map[string]*string{
		"NICK":        &c.Nickname,
		"ADAPTER":     &c.Adapter,
		"LOG_LEVEL":   &c.LogLevel,
		"LOG_FILE":    &c.LogFile,
		"STORE":       &c.Store.Backend,
		"STORE_PATH":  &c.Store.Path,
		"REDIS_ADDR":  &c.Store.RedisAddr,
		"REDIS_KEY":   &c.Store.RedisKey,
		"BRIDGE_ADDR": &c.Bridge.Addr,
	}
	for name, dst := range str {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}

	if v, ok := lookup(EnvPrefix + "PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %sPORT: %w", EnvPrefix, err)
		}
		c.Port = port
		c.PortSet = true
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Nickname != "" {
		if err := model.ValidateSender(c.Nickname); err != nil {
			return fmt.Errorf("config: nickname: %w", err)
		}
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: log level: %w", err)
	}
	return nil
}

// Password returns the password from the environment, or nil.
func Password() []byte {
	v, ok := os.LookupEnv(EnvPassword)
	if !ok || v == "" {
		return nil
	}
	return []byte(v)
}
