package config

import (
	"os"
	"strings"
	"time"

	"codeberg.org/mutker/perfcollector/internal/errors"
	"codeberg.org/mutker/perfcollector/internal/pid"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultInterval    = 100 * time.Millisecond
	DefaultOutput      = "/tmp/perf_data.csv"
	DefaultLogLevel    = string(LogLevelInfo)
	DefaultTelemetryDB = "/var/lib/perfcollector/samples.db"
	DefaultEnvPrefix   = "PERFCOLLECTOR"

	configName = "perfcollector"
	configType = "toml"
	configDir  = "/etc"
)

type Config struct {
	Interval      time.Duration `mapstructure:"interval"`
	Output        string        `mapstructure:"output"`
	LogLevel      string        `mapstructure:"log_level"`
	Telemetry     bool          `mapstructure:"telemetry"`
	TelemetryDB   string        `mapstructure:"telemetry_db"`
	MetricsListen string        `mapstructure:"metrics_listen"`
	PIDFile       string        `mapstructure:"pid_file"`
}

// DefaultPIDFile is the PID file path in the system temp directory
func DefaultPIDFile() string {
	return pid.DefaultPath()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("interval", DefaultInterval)
	v.SetDefault("output", DefaultOutput)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("telemetry", false)
	v.SetDefault("telemetry_db", DefaultTelemetryDB)
	v.SetDefault("metrics_listen", "")
	v.SetDefault("pid_file", DefaultPIDFile())
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet(configName, pflag.ContinueOnError)
	fs.String("config", "", "Path to the configuration file")
	fs.Duration("interval", DefaultInterval, "Interval between samples")
	fs.String("output", DefaultOutput, "CSV output file, truncated at start")
	fs.String("log-level", DefaultLogLevel, "Log level (debug, info, warning, error)")
	fs.Bool("telemetry", false, "Also archive samples to SQLite")
	fs.String("telemetry-db", DefaultTelemetryDB, "SQLite archive path")
	fs.String("metrics-listen", "", "Address serving Prometheus metrics, empty to disable")
	fs.String("pid-file", DefaultPIDFile(), "PID file path")

	return fs
}

// Load reads defaults, the TOML config file, PERFCOLLECTOR_* environment
// variables and command line flags, in increasing order of precedence.
func Load(opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := &options{
		envPrefix: DefaultEnvPrefix,
		args:      os.Args[1:],
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
		}
	}

	v := viper.New()
	setDefaults(v)

	fs := newFlagSet()
	if err := fs.Parse(o.args); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}
	for key, name := range map[string]string{
		"interval":       "interval",
		"output":         "output",
		"log_level":      "log-level",
		"telemetry":      "telemetry",
		"telemetry_db":   "telemetry-db",
		"metrics_listen": "metrics-listen",
		"pid_file":       "pid-file",
	} {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return nil, errFactory.Wrap(errors.ErrBindFlags, err)
		}
	}

	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	configPath := o.configPath
	if path, _ := fs.GetString("config"); path != "" {
		configPath = path
	}
	if configPath == "" {
		configPath = os.Getenv(o.envPrefix + "_CONFIG")
	}

	if err := readConfigFile(v, configPath); err != nil {
		return nil, err
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func readConfigFile(v *viper.Viper, path string) error {
	errFactory := errors.New()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType(configType)
		if err := v.ReadInConfig(); err != nil {
			return errFactory.Wrap(errors.ErrReadConfig, err)
		}
		return nil
	}

	v.SetConfigName(configName)
	v.SetConfigType(configType)
	v.AddConfigPath(configDir)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return errFactory.Wrap(errors.ErrReadConfig, err)
		}
	}

	return nil
}

// Validate checks the loaded values
func (c *Config) Validate() error {
	errFactory := errors.New()

	if c.Interval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, c.Interval)
	}
	if c.Output == "" {
		return errFactory.New(errors.ErrInvalidOutput)
	}
	if !LogLevel(c.LogLevel).IsValid() {
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}
	if c.Telemetry && c.TelemetryDB == "" {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "telemetry_db must be set when telemetry is enabled")
	}

	return nil
}
