package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validJWTSecret = "test-secret-key-at-least-32-chars!"

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
site:
  id: "test-site"
cloud:
  country: "GB"
  account: "owner@example.com"
  password: "hunter2"
  device_id: "iot-123"
database:
  path: "/tmp/test.db"
polling:
  interval: 45
security:
  jwt:
    secret: "test-secret-key-at-least-32-chars!"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Site.ID != "test-site" {
		t.Errorf("Site.ID = %q, want %q", cfg.Site.ID, "test-site")
	}
	if cfg.Cloud.Country != "GB" {
		t.Errorf("Cloud.Country = %q, want %q", cfg.Cloud.Country, "GB")
	}
	if cfg.Cloud.DeviceID != "iot-123" {
		t.Errorf("Cloud.DeviceID = %q, want %q", cfg.Cloud.DeviceID, "iot-123")
	}
	if cfg.PollInterval() != 45*time.Second {
		t.Errorf("PollInterval() = %v, want 45s", cfg.PollInterval())
	}
	// Defaults survive for keys the file does not mention.
	if cfg.Cloud.AppKey != DefaultAppKey {
		t.Errorf("Cloud.AppKey = %q, want default %q", cfg.Cloud.AppKey, DefaultAppKey)
	}
	if cfg.Cloud.Language != "en-US" {
		t.Errorf("Cloud.Language = %q, want en-US", cfg.Cloud.Language)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "invalid: [yaml: content")

	_, err := Load(path)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `
cloud:
  country: "GB"
  account: "owner@example.com"
  password: "from-file"
`)

	t.Setenv("LITTERBOX_CLOUD_PASSWORD", "from-env")
	t.Setenv("LITTERBOX_JWT_SECRET", validJWTSecret)
	t.Setenv("LITTERBOX_MQTT_HOST", "broker.local")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Cloud.Password != "from-env" {
		t.Errorf("Cloud.Password = %q, want env override", cfg.Cloud.Password)
	}
	if cfg.MQTT.Broker.Host != "broker.local" {
		t.Errorf("MQTT.Broker.Host = %q, want broker.local", cfg.MQTT.Broker.Host)
	}
}

func validConfig() *Config {
	cfg := defaultConfig()
	cfg.Cloud.Country = "GB"
	cfg.Cloud.Account = "owner@example.com"
	cfg.Cloud.Password = "hunter2"
	cfg.Security.JWT.Secret = validJWTSecret
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{
			name:    "missing country",
			mutate:  func(c *Config) { c.Cloud.Country = "" },
			wantErr: "cloud.country",
		},
		{
			name:    "missing password",
			mutate:  func(c *Config) { c.Cloud.Password = "" },
			wantErr: "cloud.password",
		},
		{
			name:    "zero poll interval",
			mutate:  func(c *Config) { c.Polling.Interval = 0 },
			wantErr: "polling.interval",
		},
		{
			name: "discard before refresh",
			mutate: func(c *Config) {
				c.Polling.UsageRefreshAfter = 600
				c.Polling.UsageDiscardAfter = 60
			},
			wantErr: "usage_discard_after",
		},
		{
			name:    "negative history retention",
			mutate:  func(c *Config) { c.Database.HistoryRetentionDays = -1 },
			wantErr: "history_retention_days",
		},
		{
			name:    "invalid qos",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: "mqtt.qos",
		},
		{
			name:    "short jwt secret",
			mutate:  func(c *Config) { c.Security.JWT.Secret = "short" },
			wantErr: "at least 32 characters",
		},
		{
			name: "influx enabled without url",
			mutate: func(c *Config) {
				c.InfluxDB.Enabled = true
			},
			wantErr: "influxdb.url",
		},
		{
			name: "api user with unknown role",
			mutate: func(c *Config) {
				c.Security.Users = []APIUserConfig{{Username: "alice", PasswordHash: "$argon2id$x", Role: "root"}}
			},
			wantErr: "security.users[0].role",
		},
		{
			name: "api user without hash",
			mutate: func(c *Config) {
				c.Security.Users = []APIUserConfig{{Username: "alice", Role: "admin"}}
			},
			wantErr: "password_hash",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() error = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Validate_CollectsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Site.ID = ""
	cfg.Database.Path = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() error = nil, want error")
	}
	if !strings.Contains(err.Error(), "site.id") || !strings.Contains(err.Error(), "database.path") {
		t.Errorf("Validate() error = %v, want both site.id and database.path", err)
	}
}

func TestConfig_Windows(t *testing.T) {
	cfg := defaultConfig()

	refresh, discard := cfg.PropertiesWindows()
	if refresh != 0 || discard != 30*time.Minute {
		t.Errorf("PropertiesWindows() = (%v, %v), want (0s, 30m)", refresh, discard)
	}

	refresh, discard = cfg.UsageWindows()
	if refresh != 30*time.Minute || discard != 4*time.Hour {
		t.Errorf("UsageWindows() = (%v, %v), want (30m, 4h)", refresh, discard)
	}
}

func TestConfig_Timeouts(t *testing.T) {
	cfg := defaultConfig()

	if got := cfg.GetReadTimeout(); got != 30*time.Second {
		t.Errorf("GetReadTimeout() = %v, want 30s", got)
	}
	if got := cfg.GetIdleTimeout(); got != 60*time.Second {
		t.Errorf("GetIdleTimeout() = %v, want 60s", got)
	}
	if got := cfg.CloudTimeout(); got != 15*time.Second {
		t.Errorf("CloudTimeout() = %v, want 15s", got)
	}
	if got := cfg.HistoryRetention(); got != 90*24*time.Hour {
		t.Errorf("HistoryRetention() = %v, want 90 days", got)
	}
}
