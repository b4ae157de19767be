package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	envPrefix           = "CONTRIBCAST"
	defaultHTTPAddress  = "0.0.0.0:8080"
	defaultLogLevel     = "info"
	defaultDriver       = StorageDriverMemory
	defaultStorageKey   = "contribcast_contributions"
	defaultFileDir      = "data"
	defaultDatabasePath = "contribcast.db"
	defaultIDGenerator  = "ulid"
	defaultMetricsPath  = "/metrics"
)

// Storage drivers understood by the binary.
const (
	StorageDriverMemory   = "memory"
	StorageDriverFile     = "file"
	StorageDriverSQLite   = "sqlite"
	StorageDriverDynamoDB = "dynamodb"
)

// AppConfig captures runtime configuration for the API server and CLI.
type AppConfig struct {
	HTTPAddress    string
	LogLevel       string
	StorageDriver  string
	StorageKey     string
	FileDir        string
	DatabasePath   string
	DynamoTable    string
	DynamoRegion   string
	DynamoEndpoint string
	IDGenerator    string
	SeedEnabled    bool
	MetricsEnabled bool
	MetricsPath    string
	AllowedOrigins []string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("http.allowed_origins", []string{})
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("storage.driver", defaultDriver)
	configViper.SetDefault("storage.key", defaultStorageKey)
	configViper.SetDefault("file.dir", defaultFileDir)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("dynamodb.table", "")
	configViper.SetDefault("dynamodb.region", "")
	configViper.SetDefault("dynamodb.endpoint", "")
	configViper.SetDefault("ids.generator", defaultIDGenerator)
	configViper.SetDefault("seed.enabled", true)
	configViper.SetDefault("metrics.enabled", true)
	configViper.SetDefault("metrics.path", defaultMetricsPath)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:    configViper.GetString("http.address"),
		LogLevel:       configViper.GetString("log.level"),
		StorageDriver:  strings.ToLower(strings.TrimSpace(configViper.GetString("storage.driver"))),
		StorageKey:     configViper.GetString("storage.key"),
		FileDir:        configViper.GetString("file.dir"),
		DatabasePath:   configViper.GetString("database.path"),
		DynamoTable:    configViper.GetString("dynamodb.table"),
		DynamoRegion:   configViper.GetString("dynamodb.region"),
		DynamoEndpoint: configViper.GetString("dynamodb.endpoint"),
		IDGenerator:    strings.ToLower(strings.TrimSpace(configViper.GetString("ids.generator"))),
		SeedEnabled:    configViper.GetBool("seed.enabled"),
		MetricsEnabled: configViper.GetBool("metrics.enabled"),
		MetricsPath:    configViper.GetString("metrics.path"),
		AllowedOrigins: splitOrigins(configViper.GetStringSlice("http.allowed_origins")),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.StorageKey) == "" {
		return fmt.Errorf("storage.key is required")
	}
	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverFile:
		if strings.TrimSpace(c.FileDir) == "" {
			return fmt.Errorf("file.dir is required for the file driver")
		}
	case StorageDriverSQLite:
		if strings.TrimSpace(c.DatabasePath) == "" {
			return fmt.Errorf("database.path is required for the sqlite driver")
		}
	case StorageDriverDynamoDB:
		if strings.TrimSpace(c.DynamoTable) == "" {
			return fmt.Errorf("dynamodb.table is required for the dynamodb driver")
		}
	default:
		return fmt.Errorf("storage.driver %q is not supported", c.StorageDriver)
	}
	if c.MetricsEnabled && !strings.HasPrefix(c.MetricsPath, "/") {
		return fmt.Errorf("metrics.path must start with /")
	}
	return nil
}

// Env values arrive as one comma-separated string.
func splitOrigins(values []string) []string {
	origins := []string{}
	for _, value := range values {
		for _, origin := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(origin); trimmed != "" {
				origins = append(origins, trimmed)
			}
		}
	}
	return origins
}
