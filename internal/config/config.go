// Package config loads daemon configuration from a TOML file, environment,
// and command-line flags, in that order of increasing precedence.
package config

import (
	"os"
	"time"

	"codeberg.org/mutker/cyclewatch/internal/appliance"
	"codeberg.org/mutker/cyclewatch/internal/errors"
	"codeberg.org/mutker/cyclewatch/internal/logger"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultLogLevel        = "info"
	DefaultDatabase        = "/var/lib/cyclewatch/cyclewatch.db"
	DefaultBroker          = "tcp://localhost:1883"
	DefaultPersistInterval = 300 // seconds

	configName = "cyclewatch"
	envConfig  = "CYCLEWATCH_CONFIG"
)

type Config struct {
	LogLevel        string `mapstructure:"log_level"`
	Debug           bool   `mapstructure:"debug"`
	Verbose         bool   `mapstructure:"verbose"`
	Database        string `mapstructure:"database"`
	PersistInterval int    `mapstructure:"persist_interval"`

	MQTT       MQTT                 `mapstructure:"mqtt"`
	Appliances map[string]Appliance `mapstructure:"appliances"`
}

type MQTT struct {
	Broker          string `mapstructure:"broker"`
	ClientID        string `mapstructure:"client_id"`
	Username        string `mapstructure:"username"`
	Password        string `mapstructure:"password"`
	BaseTopic       string `mapstructure:"base_topic"`
	DiscoveryPrefix string `mapstructure:"discovery_prefix"`
}

// Appliance is the raw per-appliance section. Nil fields fall back to the
// selected profile, or to the package defaults when no profile is named.
type Appliance struct {
	Profile    string `mapstructure:"profile"`
	PowerTopic string `mapstructure:"power_topic"`
	RateTopic  string `mapstructure:"rate_topic"`

	StartWatts            *float64       `mapstructure:"start_watts"`
	StopWatts             *float64       `mapstructure:"stop_watts"`
	DeadZoneWatts         *float64       `mapstructure:"dead_zone_watts"`
	StartDebounce         *time.Duration `mapstructure:"start_debounce"`
	EndDebounce           *time.Duration `mapstructure:"end_debounce"`
	StaleAfter            *time.Duration `mapstructure:"stale_after"`
	CostPerKWH            *float64       `mapstructure:"cost_per_kwh"`
	ServiceEnabled        *bool          `mapstructure:"service_enabled"`
	ServiceCycleThreshold *int           `mapstructure:"service_cycle_threshold"`
	ServiceMessage        *string        `mapstructure:"service_message"`
}

// Resolve merges the section over its profile (or the defaults) into a
// validated engine config.
func (a Appliance) Resolve() (appliance.Config, error) {
	errFactory := errors.New()

	base := appliance.DefaultConfig()
	if a.Profile != "" {
		profile, ok := appliance.Profile(a.Profile)
		if !ok {
			return appliance.Config{}, errFactory.WithData(errors.ErrInvalidConfig, "unknown profile: "+a.Profile)
		}
		base = profile
	}

	if a.StartWatts != nil {
		base.StartWatts = *a.StartWatts
	}
	if a.StopWatts != nil {
		base.StopWatts = *a.StopWatts
	}
	if a.DeadZoneWatts != nil {
		base.DeadZoneWatts = *a.DeadZoneWatts
	}
	if a.StartDebounce != nil {
		base.StartDebounce = *a.StartDebounce
	}
	if a.EndDebounce != nil {
		base.EndDebounce = *a.EndDebounce
	}
	if a.StaleAfter != nil {
		base.StaleAfter = *a.StaleAfter
	}
	if a.CostPerKWH != nil {
		rate := *a.CostPerKWH
		base.CostPerKWH = &rate
	}
	if a.ServiceEnabled != nil {
		base.ServiceEnabled = *a.ServiceEnabled
	}
	if a.ServiceCycleThreshold != nil {
		base.ServiceCycleThreshold = *a.ServiceCycleThreshold
	}
	if a.ServiceMessage != nil {
		base.ServiceMessage = *a.ServiceMessage
	}

	if err := base.Validate(); err != nil {
		return appliance.Config{}, err
	}

	return base, nil
}

// Load reads configuration from all sources and validates it.
func Load() (*Config, error) {
	errFactory := errors.New()

	fs := pflag.NewFlagSet(configName, pflag.ContinueOnError)
	fs.ParseErrorsWhitelist.UnknownFlags = true
	configPath := fs.String("config", "", "Path to configuration file")
	fs.Bool("debug", false, "Enable debugging mode")
	fs.Bool("verbose", false, "Enable verbose logging")
	fs.String("log-level", "", "Log level (debug, info, warning, error)")
	fs.String("database", "", "Path to the state database")
	fs.String("broker", "", "MQTT broker address")

	if err := fs.Parse(os.Args[1:]); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	v := viper.New()
	v.SetConfigType("toml")
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("database", DefaultDatabase)
	v.SetDefault("persist_interval", DefaultPersistInterval)
	v.SetDefault("mqtt.broker", DefaultBroker)
	v.SetDefault("mqtt.client_id", configName)
	v.SetDefault("mqtt.base_topic", configName)
	v.SetDefault("mqtt.discovery_prefix", "homeassistant")

	explicit := *configPath
	if explicit == "" {
		explicit = os.Getenv(envConfig)
	}
	if explicit != "" {
		v.SetConfigFile(explicit)
		if err := v.ReadInConfig(); err != nil {
			return nil, errFactory.Wrap(errors.ErrReadConfig, err)
		}
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath("/etc")
		v.AddConfigPath("$HOME/.config/cyclewatch")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, errFactory.Wrap(errors.ErrReadConfig, err)
			}
		}
	}

	for flagName, key := range map[string]string{
		"debug":     "debug",
		"verbose":   "verbose",
		"log-level": "log_level",
		"database":  "database",
		"broker":    "mqtt.broker",
	} {
		flag := fs.Lookup(flagName)
		if flag != nil && flag.Changed {
			v.Set(key, flag.Value.String())
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, errFactory.Wrap(errors.ErrReadConfig, err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) Validate() error {
	errFactory := errors.New()

	if !validLogLevel(c.LogLevel) {
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}
	if c.Database == "" {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "database path must not be empty")
	}
	if c.PersistInterval < 0 {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "persist_interval must not be negative")
	}

	for name, section := range c.Appliances {
		if section.PowerTopic == "" {
			return errFactory.WithData(errors.ErrInvalidConfig, "appliance "+name+" has no power_topic")
		}
		if _, err := section.Resolve(); err != nil {
			return errFactory.Wrap(errors.ErrInvalidConfig, err)
		}
	}

	return nil
}

// LoggerLevel maps the configured level onto the logger's scale; debug and
// verbose flags take precedence.
func (c *Config) LoggerLevel() logger.LogLevel {
	if c.Debug {
		return logger.DebugLevel
	}
	if c.Verbose {
		return logger.InfoLevel
	}

	switch c.LogLevel {
	case "debug":
		return logger.DebugLevel
	case "info":
		return logger.InfoLevel
	case "warning":
		return logger.WarnLevel
	case "error":
		return logger.ErrorLevel
	}

	return logger.InfoLevel
}

func validLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warning", "error":
		return true
	default:
		return false
	}
}
