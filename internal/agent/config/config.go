package config

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"

	"fleetcmd/internal/logger"
	"fleetcmd/internal/transport"
)

// Config represents agent configuration
type Config struct {
	Agent     AgentConfig      `mapstructure:"agent"`
	Transport transport.Config `mapstructure:"transport"`
	Executor  ExecutorConfig   `mapstructure:"executor"`
	Log       logger.Config    `mapstructure:"log"`
}

// AgentConfig represents agent identity and reporting configuration
type AgentConfig struct {
	ID                string        `mapstructure:"id"`
	Hostname          string        `mapstructure:"hostname"`
	Tags              []string      `mapstructure:"tags"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
}

// ExecutorConfig represents shell execution configuration
type ExecutorConfig struct {
	Shell          string        `mapstructure:"shell"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
	MaxOutputBytes int           `mapstructure:"max_output_bytes"`
	MaxConcurrent  int           `mapstructure:"max_concurrent"`
}

// LoadConfig loads the agent configuration from a YAML file.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	setDefaults(&config)

	if err := config.Log.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := config.Transport.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default values for configuration
func setDefaults(config *Config) {
	if config.Agent.ID == "" {
		config.Agent.ID = "agent-" + uuid.New().String()
	}
	if config.Agent.Hostname == "" {
		if hostname, err := os.Hostname(); err == nil {
			config.Agent.Hostname = hostname
		}
	}
	if config.Agent.HeartbeatInterval == 0 {
		config.Agent.HeartbeatInterval = 30 * time.Second
	}

	if config.Executor.DefaultTimeout == 0 {
		config.Executor.DefaultTimeout = 30 * time.Second
	}
	if config.Executor.MaxOutputBytes == 0 {
		config.Executor.MaxOutputBytes = 1 << 20
	}
	if config.Executor.MaxConcurrent == 0 {
		config.Executor.MaxConcurrent = 8
	}

	tdefaults := transport.DefaultConfig()
	if config.Transport.URL == "" {
		config.Transport.URL = tdefaults.URL
	}
	if config.Transport.Name == "" {
		config.Transport.Name = config.Agent.ID
	}
	if config.Transport.ConnectTimeout == 0 {
		config.Transport.ConnectTimeout = tdefaults.ConnectTimeout
	}
	if config.Transport.FlushTimeout == 0 {
		config.Transport.FlushTimeout = tdefaults.FlushTimeout
	}
	if config.Transport.ReconnectWait == 0 {
		config.Transport.ReconnectWait = tdefaults.ReconnectWait
	}
	if config.Transport.MaxReconnects == 0 {
		config.Transport.MaxReconnects = tdefaults.MaxReconnects
	}

	config.Log.SetDefaults()
}
