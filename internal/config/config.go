package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Logger     LoggerConfig     `mapstructure:"logger"`
	Lifecycle  LifecycleConfig  `mapstructure:"lifecycle"`
	QuietHours QuietHoursConfig `mapstructure:"quiet_hours"`
	Generator  GeneratorConfig  `mapstructure:"generator"`
	Reward     RewardConfig     `mapstructure:"reward"`
	Season     SeasonConfig     `mapstructure:"season"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsDir   string        `mapstructure:"migrations_dir"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// LifecycleConfig holds task lifecycle knobs
type LifecycleConfig struct {
	ReannounceDelay   time.Duration `mapstructure:"reannounce_delay"`
	ReannounceCap     int           `mapstructure:"reannounce_cap"`
	ResubmitSLAFactor float64       `mapstructure:"resubmit_sla_factor"`
}

// QuietHoursConfig holds the announcement quiet window
type QuietHoursConfig struct {
	Window   string `mapstructure:"window"`
	Timezone string `mapstructure:"timezone"`
}

// GeneratorConfig holds the daily generation schedule
type GeneratorConfig struct {
	Hour      int    `mapstructure:"hour"`
	WeeklyDay string `mapstructure:"weekly_day"`
}

// RewardConfig holds the adaptive reward bounds seeded at first start;
// runtime overrides are stored in the database
type RewardConfig struct {
	Min         float64 `mapstructure:"min"`
	Max         float64 `mapstructure:"max"`
	Default     float64 `mapstructure:"default"`
	BonusStep   float64 `mapstructure:"bonus_step"`
	PenaltyStep float64 `mapstructure:"penalty_step"`
}

// SeasonConfig holds season export settings
type SeasonConfig struct {
	ExportDir string `mapstructure:"export_dir"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	bindEnvVars()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 30*time.Second)

	// Database defaults
	viper.SetDefault("database.path", "data/choreboard.db")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	viper.SetDefault("database.migrations_dir", "migrations")

	// Logger defaults
	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.output_path", "stdout")
	viper.SetDefault("logger.format", "json")

	// Lifecycle defaults
	viper.SetDefault("lifecycle.reannounce_delay", 2*time.Hour)
	viper.SetDefault("lifecycle.reannounce_cap", 0)
	viper.SetDefault("lifecycle.resubmit_sla_factor", 0.5)

	// Quiet hours defaults
	viper.SetDefault("quiet_hours.window", "23:00-08:00")
	viper.SetDefault("quiet_hours.timezone", "Local")

	// Generator defaults
	viper.SetDefault("generator.hour", 8)
	viper.SetDefault("generator.weekly_day", "Saturday")

	// Reward defaults
	viper.SetDefault("reward.min", 0.5)
	viper.SetDefault("reward.max", 2.0)
	viper.SetDefault("reward.default", 1.0)
	viper.SetDefault("reward.bonus_step", 0.05)
	viper.SetDefault("reward.penalty_step", 0.1)

	// Season defaults
	viper.SetDefault("season.export_dir", "exports")
}

// bindEnvVars binds environment variables to configuration
func bindEnvVars() {
	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("database.path", "DATABASE_PATH")
	viper.BindEnv("logger.level", "LOG_LEVEL")
	viper.BindEnv("quiet_hours.window", "QUIET_HOURS_WINDOW")
	viper.BindEnv("quiet_hours.timezone", "QUIET_HOURS_TIMEZONE")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Lifecycle.ReannounceDelay <= 0 {
		return fmt.Errorf("lifecycle.reannounce_delay must be positive")
	}
	if c.Lifecycle.ReannounceCap < 0 {
		return fmt.Errorf("lifecycle.reannounce_cap must not be negative")
	}
	if c.Lifecycle.ResubmitSLAFactor <= 0 || c.Lifecycle.ResubmitSLAFactor > 1 {
		return fmt.Errorf("lifecycle.resubmit_sla_factor must be in (0, 1], got %f", c.Lifecycle.ResubmitSLAFactor)
	}
	if c.Generator.Hour < 0 || c.Generator.Hour > 23 {
		return fmt.Errorf("generator.hour must be between 0 and 23, got %d", c.Generator.Hour)
	}
	if _, err := c.WeeklyDay(); err != nil {
		return err
	}
	if c.Reward.Min <= 0 || c.Reward.Min > c.Reward.Max {
		return fmt.Errorf("reward bounds must satisfy 0 < min <= max")
	}
	if c.Reward.Default < c.Reward.Min || c.Reward.Default > c.Reward.Max {
		return fmt.Errorf("reward.default must be within [min, max]")
	}
	return nil
}

// WeeklyDay parses the configured weekday name
func (c *Config) WeeklyDay() (time.Weekday, error) {
	days := map[string]time.Weekday{
		"Sunday":    time.Sunday,
		"Monday":    time.Monday,
		"Tuesday":   time.Tuesday,
		"Wednesday": time.Wednesday,
		"Thursday":  time.Thursday,
		"Friday":    time.Friday,
		"Saturday":  time.Saturday,
	}
	day, ok := days[c.Generator.WeeklyDay]
	if !ok {
		return 0, fmt.Errorf("generator.weekly_day %q is not a weekday name", c.Generator.WeeklyDay)
	}
	return day, nil
}

// Timezone loads the configured quiet-hours location
func (c *Config) Timezone() (*time.Location, error) {
	if c.QuietHours.Timezone == "" || c.QuietHours.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.QuietHours.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid quiet_hours.timezone %q: %w", c.QuietHours.Timezone, err)
	}
	return loc, nil
}
