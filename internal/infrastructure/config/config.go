package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Vendor application credentials baked into the PetMarvel mobile app.
// They can be overridden in config for testing against a fake cloud.
const (
	DefaultAppID     = "b0baae0630f444b0811ea3c2eb212171"
	DefaultAppKey    = "34280983"
	DefaultAppSecret = "d342fca55b41d9b96490bda0c9c703b3"
)

// Config is the root configuration structure for the litter box bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Cloud     CloudConfig     `yaml:"cloud"`
	Polling   PollingConfig   `yaml:"polling"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

// CloudConfig contains the PetMarvel account and vendor endpoint settings.
type CloudConfig struct {
	// Country is an ISO 3166 alpha-2 code (e.g. "GB", "CN").
	Country  string `yaml:"country"`
	Account  string `yaml:"account"`
	Password string `yaml:"password"`

	// DeviceID is the iotId of the litter box to poll.
	DeviceID   string `yaml:"device_id"`
	DeviceName string `yaml:"device_name"`

	Language string `yaml:"language"`

	AppID     string `yaml:"app_id"`
	AppKey    string `yaml:"app_key"`
	AppSecret string `yaml:"app_secret"`

	// Endpoint overrides. Empty means the vendor defaults.
	LoginHost     string `yaml:"login_host"`
	DomesticHost  string `yaml:"domestic_host"`
	RegionGateway string `yaml:"region_gateway"`
	GatewayScheme string `yaml:"gateway_scheme"`
	HTTPTimeout   int    `yaml:"http_timeout"`
}

// PollingConfig controls the refresh loop and the two polling caches.
// All values are in seconds.
type PollingConfig struct {
	Interval               int `yaml:"interval"`
	PropertiesRefreshAfter int `yaml:"properties_refresh_after"`
	PropertiesDiscardAfter int `yaml:"properties_discard_after"`
	UsageRefreshAfter      int `yaml:"usage_refresh_after"`
	UsageDiscardAfter      int `yaml:"usage_discard_after"`
	UsageHistoryLimit      int `yaml:"usage_history_limit"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`

	// HistoryRetentionDays bounds snapshot history. 0 keeps everything.
	HistoryRetentionDays int `yaml:"history_retention_days"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT   JWTConfig       `yaml:"jwt"`
	Users []APIUserConfig `yaml:"users"`
}

// APIUserConfig declares one HTTP API account.
type APIUserConfig struct {
	Username string `yaml:"username"`

	// PasswordHash is an Argon2id PHC string (see the -hash-password flag).
	PasswordHash string `yaml:"password_hash"`

	// Role is viewer, operator or admin.
	Role string `yaml:"role"`
}

// JWTConfig contains JWT token settings.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: LITTERBOX_SECTION_KEY
// For example: LITTERBOX_CLOUD_PASSWORD, LITTERBOX_API_PORT
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:       "site-001",
			Name:     "Gray Logic",
			Timezone: "UTC",
		},
		Cloud: CloudConfig{
			Language:    "en-US",
			AppID:       DefaultAppID,
			AppKey:      DefaultAppKey,
			AppSecret:   DefaultAppSecret,
			HTTPTimeout: 15,
		},
		Polling: PollingConfig{
			Interval:               30,
			PropertiesRefreshAfter: 0,
			PropertiesDiscardAfter: 30 * 60,
			UsageRefreshAfter:      30 * 60,
			UsageDiscardAfter:      4 * 60 * 60,
			UsageHistoryLimit:      50,
		},
		Database: DatabaseConfig{
			Path:                 "./data/litterbox.db",
			WALMode:              true,
			BusyTimeout:          5,
			HistoryRetentionDays: 90,
		},
		MQTT: MQTTConfig{
			Enabled: true,
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graylogic-litterbox",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 15,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	// Cloud account
	if v := os.Getenv("LITTERBOX_CLOUD_COUNTRY"); v != "" {
		cfg.Cloud.Country = v
	}
	if v := os.Getenv("LITTERBOX_CLOUD_ACCOUNT"); v != "" {
		cfg.Cloud.Account = v
	}
	if v := os.Getenv("LITTERBOX_CLOUD_PASSWORD"); v != "" {
		cfg.Cloud.Password = v
	}
	if v := os.Getenv("LITTERBOX_CLOUD_DEVICE_ID"); v != "" {
		cfg.Cloud.DeviceID = v
	}

	if v := os.Getenv("LITTERBOX_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("LITTERBOX_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("LITTERBOX_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("LITTERBOX_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("LITTERBOX_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	if v := os.Getenv("LITTERBOX_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Always override the JWT secret in production.
	if v := os.Getenv("LITTERBOX_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
}

// Validate checks the configuration for errors and security issues.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	// Cloud validation
	if c.Cloud.Country == "" {
		errs = append(errs, "cloud.country is required")
	}
	if c.Cloud.Account == "" {
		errs = append(errs, "cloud.account is required")
	}
	if c.Cloud.Password == "" {
		errs = append(errs, "cloud.password is required (set LITTERBOX_CLOUD_PASSWORD environment variable)")
	}
	if c.Cloud.AppID == "" || c.Cloud.AppKey == "" || c.Cloud.AppSecret == "" {
		errs = append(errs, "cloud.app_id, cloud.app_key and cloud.app_secret must not be empty")
	}

	// Polling validation
	if c.Polling.Interval < 1 {
		errs = append(errs, "polling.interval must be at least 1 second")
	}
	if c.Polling.PropertiesRefreshAfter < 0 || c.Polling.PropertiesDiscardAfter < c.Polling.PropertiesRefreshAfter {
		errs = append(errs, "polling.properties_discard_after must be >= properties_refresh_after >= 0")
	}
	if c.Polling.UsageRefreshAfter < 0 || c.Polling.UsageDiscardAfter < c.Polling.UsageRefreshAfter {
		errs = append(errs, "polling.usage_discard_after must be >= usage_refresh_after >= 0")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	if c.Database.HistoryRetentionDays < 0 {
		errs = append(errs, "database.history_retention_days must not be negative")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	const minJWTSecretLength = 32
	if c.Security.JWT.Secret == "" {
		errs = append(errs, "security.jwt.secret is required (set LITTERBOX_JWT_SECRET environment variable)")
	} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters for adequate security")
	}

	for i, u := range c.Security.Users {
		if u.Username == "" || u.PasswordHash == "" {
			errs = append(errs, fmt.Sprintf("security.users[%d] needs username and password_hash", i))
		}
		switch u.Role {
		case "viewer", "operator", "admin":
		default:
			errs = append(errs, fmt.Sprintf("security.users[%d].role must be viewer, operator or admin", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// AccessTokenTTL returns the JWT access token lifetime.
func (c *Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.Security.JWT.AccessTokenTTL) * time.Minute
}

// HistoryRetention returns how long snapshot history is kept, or 0 for ever.
func (c *Config) HistoryRetention() time.Duration {
	return time.Duration(c.Database.HistoryRetentionDays) * 24 * time.Hour
}

// PollInterval returns the refresh loop period.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Polling.Interval) * time.Second
}

// CloudTimeout returns the per-request HTTP timeout for vendor cloud calls.
func (c *Config) CloudTimeout() time.Duration {
	return time.Duration(c.Cloud.HTTPTimeout) * time.Second
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// PropertiesWindows returns the refresh-after and discard-after windows of the
// device properties cache.
func (c *Config) PropertiesWindows() (refresh, discard time.Duration) {
	return seconds(c.Polling.PropertiesRefreshAfter), seconds(c.Polling.PropertiesDiscardAfter)
}

// UsageWindows returns the refresh-after and discard-after windows of the
// usage history cache.
func (c *Config) UsageWindows() (refresh, discard time.Duration) {
	return seconds(c.Polling.UsageRefreshAfter), seconds(c.Polling.UsageDiscardAfter)
}
