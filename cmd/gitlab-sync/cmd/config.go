package cmd

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/spf13/viper"
)

// Config is the CLI configuration, loaded from a YAML file with
// environment variable substitution for secrets.
type Config struct {
	BaseURL     string      `mapstructure:"base_url"`
	Token       string      `mapstructure:"token"`
	Redis       RedisConfig `mapstructure:"redis"`
	Concurrency int         `mapstructure:"concurrency"`
	PageSize    int         `mapstructure:"page_size"`
	LogLevel    string      `mapstructure:"log_level"`
	Pretty      bool        `mapstructure:"pretty"`
}

// RedisConfig enables the response cache and shared rate-limit state when
// Addr is set.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// DefaultCLIConfig returns the configuration defaults.
func DefaultCLIConfig() *Config {
	return &Config{
		BaseURL:     "https://gitlab.com",
		Concurrency: 50,
		PageSize:    100,
		LogLevel:    "info",
	}
}

// LoadConfig reads the YAML configuration file. A missing file is not an
// error; flags and defaults then carry the run.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultCLIConfig()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.BaseURL = expandEnvVar(cfg.BaseURL)
	cfg.Token = expandEnvVar(cfg.Token)
	cfg.Redis.Addr = expandEnvVar(cfg.Redis.Addr)
	cfg.Redis.Password = expandEnvVar(cfg.Redis.Password)

	return cfg, nil
}

// Validate checks the configuration before a sync run.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	if c.Token == "" {
		return fmt.Errorf("token is required (set it in the config file or GITLAB_TOKEN)")
	}
	return nil
}

// envVarPattern matches ${VAR_NAME} or $VAR_NAME patterns.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVar expands environment variables in the format ${VAR} or $VAR.
// Unset variables are left as written.
func expandEnvVar(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		var varName string
		if strings.HasPrefix(match, "${") {
			varName = match[2 : len(match)-1]
		} else {
			varName = match[1:]
		}

		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}
