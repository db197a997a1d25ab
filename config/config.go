package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides, e.g. ORCHESTRATOR_SERVER_PORT.
const EnvPrefix = "ORCHESTRATOR"

// DefaultConverterArgs is the argument template passed to the converter.
// {input} and {output} are replaced per job.
const DefaultConverterArgs = "run --input {input} --output {output} --simulate --hourly ALL"

// Config holds the application configuration
type Config struct {
	Paths       PathsConfig       `mapstructure:"paths"`
	Workers     int               `mapstructure:"workers"`
	Selection   SelectionConfig   `mapstructure:"selection"`
	Analysis    AnalysisConfig    `mapstructure:"analysis"`
	Converter   ConverterConfig   `mapstructure:"converter"`
	Server      ServerConfig      `mapstructure:"server"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Database    DatabaseConfig    `mapstructure:"database"`
	ObjectStore ObjectStoreConfig `mapstructure:"objectstore"`
	Kafka       KafkaConfig       `mapstructure:"kafka"`
}

// PathsConfig locates the on-disk collaborators.
type PathsConfig struct {
	CommunitiesDir string `mapstructure:"communities_dir"`
	CSVDir         string `mapstructure:"csv_dir"`
	LibraryDir     string `mapstructure:"library_dir"`
	LogsDir        string `mapstructure:"logs_dir"`
}

// SelectionConfig controls archetype selection.
type SelectionConfig struct {
	Seed     string  `mapstructure:"seed"`
	Headroom float64 `mapstructure:"headroom"`
}

// AnalysisConfig controls aggregation.
type AnalysisConfig struct {
	Seed          string `mapstructure:"seed"`
	FillShortfall bool   `mapstructure:"fill_shortfall"`
	ExpectedRows  int    `mapstructure:"expected_rows"`
}

// ConverterConfig describes the external converter and simulator.
type ConverterConfig struct {
	Binary     string        `mapstructure:"binary"`
	Args       string        `mapstructure:"args"`
	Timeout    time.Duration `mapstructure:"timeout"`
	KeepOutput bool          `mapstructure:"keep_output"`
}

// ServerConfig configures the run query API.
type ServerConfig struct {
	Port string `mapstructure:"port"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// DatabaseConfig configures the optional Postgres export.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

// ObjectStoreConfig configures the optional artifact upload backend.
type ObjectStoreConfig struct {
	Backend   string `mapstructure:"backend"` // "minio", "s3" or empty
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Prefix    string `mapstructure:"prefix"`
}

// KafkaConfig configures the optional transition event publisher.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// SetDefaults registers every key so environment overrides are picked up on Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("paths.communities_dir", "communities")
	v.SetDefault("paths.csv_dir", "csv")
	v.SetDefault("paths.library_dir", filepath.Join("archetypes", "library"))
	v.SetDefault("paths.logs_dir", "logs")

	v.SetDefault("workers", runtime.NumCPU())

	v.SetDefault("selection.seed", "")
	v.SetDefault("selection.headroom", 0.2)

	v.SetDefault("analysis.seed", "")
	v.SetDefault("analysis.fill_shortfall", true)
	v.SetDefault("analysis.expected_rows", 8761)

	v.SetDefault("converter.binary", "h2k-hpxml")
	v.SetDefault("converter.args", DefaultConverterArgs)
	v.SetDefault("converter.timeout", "30m")
	v.SetDefault("converter.keep_output", false)

	v.SetDefault("server.port", "8080")

	v.SetDefault("logging.level", "INFO")
	v.SetDefault("logging.file", "")

	v.SetDefault("database.url", "")

	v.SetDefault("objectstore.backend", "")
	v.SetDefault("objectstore.endpoint", "")
	v.SetDefault("objectstore.access_key", "")
	v.SetDefault("objectstore.secret_key", "")
	v.SetDefault("objectstore.bucket", "community-analysis")
	v.SetDefault("objectstore.region", "us-east-1")
	v.SetDefault("objectstore.use_ssl", false)
	v.SetDefault("objectstore.prefix", "")

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "community-run-events")
}

// NewViper returns a viper instance with defaults, environment binding and,
// when configFile is set or ./orchestrator.yaml exists, the config file loaded.
func NewViper(configFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Legacy plain keys still honoured by deployment scripts
	_ = v.BindEnv("workers", EnvPrefix+"_WORKERS", "MAX_PARALLEL_WORKERS")
	_ = v.BindEnv("selection.seed", EnvPrefix+"_SELECTION_SEED", "ARCHETYPE_SELECTION_SEED")
	_ = v.BindEnv("analysis.seed", EnvPrefix+"_ANALYSIS_SEED", "ANALYSIS_RANDOM_SEED")
	_ = v.BindEnv("database.url", EnvPrefix+"_DATABASE_URL", "DATABASE_URL")

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
		return v, nil
	}

	v.SetConfigName("orchestrator")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	return v, nil
}

// Load loads configuration from defaults, an optional file and the environment
func Load(configFile string) (*Config, error) {
	v, err := NewViper(configFile)
	if err != nil {
		return nil, err
	}
	return FromViper(v)
}

// FromViper decodes and validates the configuration held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, errs
	}
	return &cfg, nil
}

// CommunityDir returns the workspace root of a community.
func (c *Config) CommunityDir(community string) string {
	return filepath.Join(c.Paths.CommunitiesDir, community)
}

// Default returns the configuration built from defaults only.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("config: defaults do not decode: %v", err))
	}
	return &cfg
}
