package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"fleetcmd/internal/logger"
	"fleetcmd/internal/server/data"
	"fleetcmd/internal/server/database"
	"fleetcmd/internal/server/notify"
	"fleetcmd/internal/server/service"
	"fleetcmd/internal/transport"
)

// Config represents the complete server configuration
type Config struct {
	Server    ServerConfig     `mapstructure:"server"`
	API       APIConfig        `mapstructure:"api"`
	Log       logger.Config    `mapstructure:"log"`
	Database  database.Config  `mapstructure:"database"`
	Transport transport.Config `mapstructure:"transport"`
	Command   service.Options  `mapstructure:"command"`
	Data      data.Config      `mapstructure:"data"`
	Notify    notify.Config    `mapstructure:"notify"`
}

// ServerConfig represents the HTTP server configuration
type ServerConfig struct {
	Address      string        `mapstructure:"address"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	TLS          TLSConfig     `mapstructure:"tls"`
}

// TLSConfig represents the TLS configuration
type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

// APIConfig represents the API configuration
type APIConfig struct {
	Auth      AuthConfig      `mapstructure:"auth"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// AuthConfig represents the API token authentication configuration
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Token   string `mapstructure:"token"`
}

// CORSConfig represents the CORS configuration
type CORSConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

// RateLimitConfig represents the rate limiting configuration
type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// LoadConfig loads the server configuration from a YAML file.
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

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default values for configuration
func setDefaults(config *Config) {
	if config.Server.Address == "" {
		config.Server.Address = ":8080"
	}
	if config.Server.ReadTimeout == 0 {
		config.Server.ReadTimeout = 30 * time.Second
	}
	if config.Server.WriteTimeout == 0 {
		config.Server.WriteTimeout = 30 * time.Second
	}
	if config.Server.IdleTimeout == 0 {
		config.Server.IdleTimeout = 120 * time.Second
	}

	if config.API.RateLimit.Window == 0 {
		config.API.RateLimit.Window = time.Minute
	}
	if config.API.RateLimit.Requests == 0 {
		config.API.RateLimit.Requests = 60
	}

	config.Log.SetDefaults()

	defaults := database.DefaultConfig()
	if config.Database.Driver == "" {
		config.Database.Driver = defaults.Driver
	}
	if config.Database.DSN == "" {
		config.Database.DSN = defaults.DSN
	}
	if config.Database.MaxOpenConns == 0 {
		config.Database.MaxOpenConns = defaults.MaxOpenConns
	}
	if config.Database.MaxIdleConns == 0 {
		config.Database.MaxIdleConns = defaults.MaxIdleConns
	}
	if config.Database.ConnMaxLifetime == 0 {
		config.Database.ConnMaxLifetime = defaults.ConnMaxLifetime
	}
	if config.Database.QueryTimeout == 0 {
		config.Database.QueryTimeout = defaults.QueryTimeout
	}
	if config.Database.MigrationsPath == "" {
		config.Database.MigrationsPath = defaults.MigrationsPath
	}

	tdefaults := transport.DefaultConfig()
	if config.Transport.URL == "" {
		config.Transport.URL = tdefaults.URL
	}
	if config.Transport.Name == "" {
		config.Transport.Name = "fleetcmd-server"
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

	odefaults := service.DefaultOptions()
	if config.Command.DefaultTimeout == 0 {
		config.Command.DefaultTimeout = odefaults.DefaultTimeout
	}
	if config.Command.MaxTimeout == 0 {
		config.Command.MaxTimeout = odefaults.MaxTimeout
	}
	if config.Command.SweepInterval == 0 {
		config.Command.SweepInterval = odefaults.SweepInterval
	}
	if config.Command.OfflineThreshold == 0 {
		config.Command.OfflineThreshold = odefaults.OfflineThreshold
	}
	if config.Command.OfflineInterval == 0 {
		config.Command.OfflineInterval = odefaults.OfflineInterval
	}
	if config.Command.Retention == 0 {
		config.Command.Retention = odefaults.Retention
	}
	if config.Command.CleanupInterval == 0 {
		config.Command.CleanupInterval = odefaults.CleanupInterval
	}
}

// validateConfig validates the configuration
func validateConfig(config *Config) error {
	if err := config.Log.Validate(); err != nil {
		return err
	}
	if err := config.Database.Validate(); err != nil {
		return err
	}
	if err := config.Transport.Validate(); err != nil {
		return err
	}

	if config.Server.TLS.Enabled {
		if config.Server.TLS.CertFile == "" || config.Server.TLS.KeyFile == "" {
			return fmt.Errorf("tls requires cert_file and key_file")
		}
	}
	if config.API.Auth.Enabled && config.API.Auth.Token == "" {
		return fmt.Errorf("api auth requires a token")
	}
	return nil
}
