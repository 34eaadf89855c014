package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable holding the config file path.
const EnvConfigPath = "SAVECAIR_CONFIG"

// DefaultConfigPath is used when EnvConfigPath is unset.
const DefaultConfigPath = "configs/config.yaml"

// Config is the root configuration structure for the savecair bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Gateway   GatewayConfig   `yaml:"gateway"`
	Bridge    BridgeConfig    `yaml:"bridge"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Security  SecurityConfig  `yaml:"security"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// GatewayConfig contains the savecair gateway connection and session settings.
type GatewayConfig struct {
	URL      string `yaml:"url"`
	IAMID    string `yaml:"iam_id"`
	Password string `yaml:"password"`

	// Reconnect enables fixed-interval reconnection after every close.
	Reconnect bool `yaml:"reconnect"`

	// ReconnectInterval is in seconds.
	ReconnectInterval int `yaml:"reconnect_interval"`

	// PollInterval is in seconds.
	PollInterval int `yaml:"poll_interval"`

	// LoadAll subscribes to every known sensor and ignores Sensors.
	LoadAll bool     `yaml:"load_all"`
	Sensors []string `yaml:"sensors"`

	// LoginTimeout is in seconds. 0 waits indefinitely.
	LoginTimeout int `yaml:"login_timeout"`

	// HandshakeTimeout and WriteTimeout are in seconds.
	HandshakeTimeout int `yaml:"handshake_timeout"`
	WriteTimeout     int `yaml:"write_timeout"`
}

// BridgeConfig contains settings for the MQTT climate bridge.
type BridgeConfig struct {
	Enabled bool   `yaml:"enabled"`
	ID      string `yaml:"id"`

	// HealthInterval is in seconds.
	HealthInterval int `yaml:"health_interval"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
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
	Enabled  bool             `yaml:"enabled"`
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

// WebSocketConfig contains settings for the UI push WebSocket.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
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

// SecurityConfig contains HTTP API authentication settings.
type SecurityConfig struct {
	JWT   JWTConfig   `yaml:"jwt"`
	Admin AdminConfig `yaml:"admin"`
}

// JWTConfig contains JWT token settings.
type JWTConfig struct {
	Secret string `yaml:"secret"`

	// AccessTokenTTL is in minutes.
	AccessTokenTTL int `yaml:"access_token_ttl"`
}

// AdminConfig is the single API operator account. PasswordHash is an
// Argon2id PHC string (see savecair-bridge -hash-password).
type AdminConfig struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Path returns the config file path from SAVECAIR_CONFIG, or the default.
func Path() string {
	if v := os.Getenv(EnvConfigPath); v != "" {
		return v
	}
	return DefaultConfigPath
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: SAVECAIR_SECTION_KEY
// For example: SAVECAIR_GATEWAY_PASSWORD, SAVECAIR_MQTT_HOST
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

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Gateway: GatewayConfig{
			URL:               "wss://homesolutions.systemair.com/ws/",
			Reconnect:         true,
			ReconnectInterval: 60,
			PollInterval:      60,
			HandshakeTimeout:  10,
			WriteTimeout:      5,
		},
		Bridge: BridgeConfig{
			Enabled:        true,
			ID:             "savecair-01",
			HealthInterval: 30,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "savecair-bridge",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Security: SecurityConfig{
			JWT:   JWTConfig{AccessTokenTTL: 15},
			Admin: AdminConfig{Username: "admin"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: SAVECAIR_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Gateway
	if v := os.Getenv("SAVECAIR_GATEWAY_URL"); v != "" {
		cfg.Gateway.URL = v
	}
	if v := os.Getenv("SAVECAIR_GATEWAY_IAM_ID"); v != "" {
		cfg.Gateway.IAMID = v
	}
	if v := os.Getenv("SAVECAIR_GATEWAY_PASSWORD"); v != "" {
		cfg.Gateway.Password = v
	}
	if v := os.Getenv("SAVECAIR_GATEWAY_POLL_INTERVAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.PollInterval = n
		}
	}

	// MQTT
	if v := os.Getenv("SAVECAIR_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("SAVECAIR_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("SAVECAIR_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("SAVECAIR_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("SAVECAIR_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Security - JWT secret and admin hash (always set these via env in production)
	if v := os.Getenv("SAVECAIR_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
	if v := os.Getenv("SAVECAIR_ADMIN_PASSWORD_HASH"); v != "" {
		cfg.Security.Admin.PasswordHash = v
	}

	// Logging
	if v := os.Getenv("SAVECAIR_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Gateway validation
	if u, err := url.Parse(c.Gateway.URL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		errs = append(errs, "gateway.url must be a ws:// or wss:// URL")
	}
	if c.Gateway.IAMID == "" {
		errs = append(errs, "gateway.iam_id is required")
	}
	if c.Gateway.Password == "" {
		errs = append(errs, "gateway.password is required (set SAVECAIR_GATEWAY_PASSWORD environment variable)")
	}
	if c.Gateway.PollInterval < 1 {
		errs = append(errs, "gateway.poll_interval must be at least 1 second")
	}
	if c.Gateway.Reconnect && c.Gateway.ReconnectInterval < 1 {
		errs = append(errs, "gateway.reconnect_interval must be at least 1 second")
	}
	if c.Gateway.LoginTimeout < 0 {
		errs = append(errs, "gateway.login_timeout must not be negative")
	}

	// Bridge validation
	if c.Bridge.Enabled && c.Bridge.ID == "" {
		errs = append(errs, "bridge.id is required when the bridge is enabled")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// API validation
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// Security validation - the API controls the unit, so it needs credentials
	const minJWTSecretLength = 32
	if c.API.Enabled {
		if c.Security.JWT.Secret == "" {
			errs = append(errs, "security.jwt.secret is required when the api is enabled (set SAVECAIR_JWT_SECRET environment variable)")
		} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
			errs = append(errs, "security.jwt.secret must be at least 32 characters")
		}
		if c.Security.Admin.Username == "" {
			errs = append(errs, "security.admin.username is required when the api is enabled")
		}
		if !strings.HasPrefix(c.Security.Admin.PasswordHash, "$argon2id$") {
			errs = append(errs, "security.admin.password_hash must be an argon2id hash (generate with savecair-bridge -hash-password)")
		}
	}
	if c.Security.JWT.AccessTokenTTL < 0 {
		errs = append(errs, "security.jwt.access_token_ttl must not be negative")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url and influxdb.bucket are required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (a APIConfig) GetReadTimeout() time.Duration {
	return time.Duration(a.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (a APIConfig) GetWriteTimeout() time.Duration {
	return time.Duration(a.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (a APIConfig) GetIdleTimeout() time.Duration {
	return time.Duration(a.Timeouts.Idle) * time.Second
}

// GetAccessTokenTTL returns the access token lifetime as a Duration.
func (j JWTConfig) GetAccessTokenTTL() time.Duration {
	return time.Duration(j.AccessTokenTTL) * time.Minute
}

// GetPingInterval returns the WebSocket ping interval as a Duration.
func (w WebSocketConfig) GetPingInterval() time.Duration {
	return time.Duration(w.PingInterval) * time.Second
}

// GetPongTimeout returns how long a WebSocket client may go without a pong.
func (w WebSocketConfig) GetPongTimeout() time.Duration {
	return time.Duration(w.PongTimeout) * time.Second
}

// GetPollInterval returns the gateway poll interval as a Duration.
func (g GatewayConfig) GetPollInterval() time.Duration {
	return time.Duration(g.PollInterval) * time.Second
}

// GetReconnectInterval returns the gateway reconnect interval as a Duration.
func (g GatewayConfig) GetReconnectInterval() time.Duration {
	return time.Duration(g.ReconnectInterval) * time.Second
}

// GetLoginTimeout returns the login timeout as a Duration. Zero means none.
func (g GatewayConfig) GetLoginTimeout() time.Duration {
	return time.Duration(g.LoginTimeout) * time.Second
}

// GetHandshakeTimeout returns the websocket handshake timeout as a Duration.
func (g GatewayConfig) GetHandshakeTimeout() time.Duration {
	return time.Duration(g.HandshakeTimeout) * time.Second
}

// GetWriteTimeout returns the frame write timeout as a Duration.
func (g GatewayConfig) GetWriteTimeout() time.Duration {
	return time.Duration(g.WriteTimeout) * time.Second
}

// GetHealthInterval returns the bridge health report interval as a Duration.
func (b BridgeConfig) GetHealthInterval() time.Duration {
	return time.Duration(b.HealthInterval) * time.Second
}
