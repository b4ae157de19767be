package config

import (
	"testing"
)

func TestLoadDefaults(testContext *testing.T) {
	cfg, err := Load(NewViper())
	if err != nil {
		testContext.Fatalf("expected defaults to load: %v", err)
	}
	if cfg.StorageDriver != StorageDriverMemory {
		testContext.Fatalf("expected memory driver, got %q", cfg.StorageDriver)
	}
	if cfg.StorageKey != "contribcast_contributions" {
		testContext.Fatalf("unexpected storage key %q", cfg.StorageKey)
	}
	if !cfg.SeedEnabled || !cfg.MetricsEnabled {
		testContext.Fatalf("expected seed and metrics enabled by default")
	}
	if cfg.IDGenerator != "ulid" {
		testContext.Fatalf("unexpected id generator %q", cfg.IDGenerator)
	}
	if len(cfg.AllowedOrigins) != 0 {
		testContext.Fatalf("expected no allowed origins, got %v", cfg.AllowedOrigins)
	}
}

func TestLoadReadsEnvironment(testContext *testing.T) {
	testContext.Setenv("CONTRIBCAST_STORAGE_DRIVER", " SQLite ")
	testContext.Setenv("CONTRIBCAST_DATABASE_PATH", "/tmp/contribcast.db")
	testContext.Setenv("CONTRIBCAST_SEED_ENABLED", "false")
	testContext.Setenv("CONTRIBCAST_HTTP_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load(NewViper())
	if err != nil {
		testContext.Fatalf("expected env config to load: %v", err)
	}
	if cfg.StorageDriver != StorageDriverSQLite {
		testContext.Fatalf("expected sqlite driver, got %q", cfg.StorageDriver)
	}
	if cfg.DatabasePath != "/tmp/contribcast.db" {
		testContext.Fatalf("unexpected database path %q", cfg.DatabasePath)
	}
	if cfg.SeedEnabled {
		testContext.Fatalf("expected seeding disabled")
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
		testContext.Fatalf("unexpected origins %v", cfg.AllowedOrigins)
	}
}

func TestLoadValidatesDriverSettings(testContext *testing.T) {
	testCases := []struct {
		name   string
		values map[string]any
	}{
		{name: "unknown driver", values: map[string]any{"storage.driver": "redis"}},
		{name: "dynamodb without table", values: map[string]any{"storage.driver": "dynamodb"}},
		{name: "file without dir", values: map[string]any{"storage.driver": "file", "file.dir": " "}},
		{name: "sqlite without path", values: map[string]any{"storage.driver": "sqlite", "database.path": ""}},
		{name: "blank storage key", values: map[string]any{"storage.key": " "}},
		{name: "relative metrics path", values: map[string]any{"metrics.path": "metrics"}},
	}

	for _, testCase := range testCases {
		testContext.Run(testCase.name, func(subTest *testing.T) {
			configViper := NewViper()
			for key, value := range testCase.values {
				configViper.Set(key, value)
			}
			if _, err := Load(configViper); err == nil {
				subTest.Fatalf("expected validation error")
			}
		})
	}
}
