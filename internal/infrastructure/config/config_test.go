package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

const (
	testJWTSecret    = "a-test-jwt-secret-of-at-least-32-chars"
	testPasswordHash = "$argon2id$v=19$m=65536,t=3,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaGhhc2hoYXNoaGFzaGhhc2hoYXNoaGFzaGhhc2g"
)

func validConfig() *Config {
	cfg := defaultConfig()
	cfg.Gateway.IAMID = "IAM_0001"
	cfg.Gateway.Password = "1234"
	cfg.Security.JWT.Secret = testJWTSecret
	cfg.Security.Admin.PasswordHash = testPasswordHash
	return cfg
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
gateway:
  iam_id: "IAM_0001"
  password: "1234"
  poll_interval: 30
  sensors:
    - main_airflow
    - main_user_mode
mqtt:
  broker:
    host: "broker.lan"
    port: 1883
    client_id: "test-client"
  qos: 1
bridge:
  id: "ventilation"
security:
  jwt:
    secret: "`+testJWTSecret+`"
    access_token_ttl: 30
  admin:
    password_hash: "`+testPasswordHash+`"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Gateway.IAMID != "IAM_0001" {
		t.Errorf("Gateway.IAMID = %q, want %q", cfg.Gateway.IAMID, "IAM_0001")
	}
	if cfg.Gateway.GetPollInterval() != 30*time.Second {
		t.Errorf("Gateway.GetPollInterval() = %v, want 30s", cfg.Gateway.GetPollInterval())
	}
	if len(cfg.Gateway.Sensors) != 2 {
		t.Errorf("Gateway.Sensors = %v, want 2 entries", cfg.Gateway.Sensors)
	}
	if cfg.MQTT.Broker.Host != "broker.lan" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "broker.lan")
	}
	if cfg.Bridge.ID != "ventilation" {
		t.Errorf("Bridge.ID = %q, want %q", cfg.Bridge.ID, "ventilation")
	}

	// Unset keys keep their defaults.
	if cfg.Gateway.URL != "wss://homesolutions.systemair.com/ws/" {
		t.Errorf("Gateway.URL = %q, want default", cfg.Gateway.URL)
	}
	if !cfg.Gateway.Reconnect {
		t.Error("Gateway.Reconnect = false, want default true")
	}
	if cfg.Security.Admin.Username != "admin" {
		t.Errorf("Security.Admin.Username = %q, want default admin", cfg.Security.Admin.Username)
	}
	if cfg.Security.JWT.GetAccessTokenTTL() != 30*time.Minute {
		t.Errorf("Security.JWT.GetAccessTokenTTL() = %v, want 30m", cfg.Security.JWT.GetAccessTokenTTL())
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "invalid: [yaml: content")

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	configPath := writeConfig(t, `
gateway:
  iam_id: ""
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected validation error for empty gateway.iam_id, got nil")
	}
	if !strings.Contains(err.Error(), "gateway.iam_id is required") {
		t.Errorf("Load() error = %v, want gateway.iam_id message", err)
	}
}

func TestLoad_PasswordFromEnvironment(t *testing.T) {
	configPath := writeConfig(t, `
gateway:
  iam_id: "IAM_0001"
api:
  enabled: false
`)
	t.Setenv("SAVECAIR_GATEWAY_PASSWORD", "from-env")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Gateway.Password != "from-env" {
		t.Errorf("Gateway.Password = %q, want %q", cfg.Gateway.Password, "from-env")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:   "valid config",
			mutate: func(*Config) {},
		},
		{
			name:    "http gateway url",
			mutate:  func(c *Config) { c.Gateway.URL = "https://homesolutions.systemair.com/ws/" },
			wantErr: "gateway.url",
		},
		{
			name:    "missing password",
			mutate:  func(c *Config) { c.Gateway.Password = "" },
			wantErr: "gateway.password",
		},
		{
			name:    "zero poll interval",
			mutate:  func(c *Config) { c.Gateway.PollInterval = 0 },
			wantErr: "gateway.poll_interval",
		},
		{
			name:    "zero reconnect interval",
			mutate:  func(c *Config) { c.Gateway.ReconnectInterval = 0 },
			wantErr: "gateway.reconnect_interval",
		},
		{
			name: "zero reconnect interval with reconnect disabled",
			mutate: func(c *Config) {
				c.Gateway.Reconnect = false
				c.Gateway.ReconnectInterval = 0
			},
		},
		{
			name:    "negative login timeout",
			mutate:  func(c *Config) { c.Gateway.LoginTimeout = -1 },
			wantErr: "gateway.login_timeout",
		},
		{
			name:    "missing bridge id",
			mutate:  func(c *Config) { c.Bridge.ID = "" },
			wantErr: "bridge.id",
		},
		{
			name:    "invalid QoS",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: "mqtt.qos",
		},
		{
			name:    "invalid port high",
			mutate:  func(c *Config) { c.API.Port = 70000 },
			wantErr: "api.port",
		},
		{
			name: "port ignored when api disabled",
			mutate: func(c *Config) {
				c.API.Enabled = false
				c.API.Port = 0
			},
		},
		{
			name:    "api without jwt secret",
			mutate:  func(c *Config) { c.Security.JWT.Secret = "" },
			wantErr: "security.jwt.secret is required",
		},
		{
			name:    "short jwt secret",
			mutate:  func(c *Config) { c.Security.JWT.Secret = "short" },
			wantErr: "at least 32 characters",
		},
		{
			name:    "api without admin hash",
			mutate:  func(c *Config) { c.Security.Admin.PasswordHash = "" },
			wantErr: "security.admin.password_hash",
		},
		{
			name:    "plain text admin password",
			mutate:  func(c *Config) { c.Security.Admin.PasswordHash = "admin" },
			wantErr: "security.admin.password_hash",
		},
		{
			name:    "api without admin username",
			mutate:  func(c *Config) { c.Security.Admin.Username = "" },
			wantErr: "security.admin.username",
		},
		{
			name: "credentials not needed when api disabled",
			mutate: func(c *Config) {
				c.API.Enabled = false
				c.Security = SecurityConfig{}
			},
		},
		{
			name:    "negative token ttl",
			mutate:  func(c *Config) { c.Security.JWT.AccessTokenTTL = -1 },
			wantErr: "access_token_ttl",
		},
		{
			name:    "influxdb enabled without url",
			mutate:  func(c *Config) { c.InfluxDB.Enabled = true },
			wantErr: "influxdb.url",
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
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_ValidateCollectsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Gateway.IAMID = ""
	cfg.MQTT.QoS = 5

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() error = nil")
	}
	if !strings.Contains(err.Error(), "gateway.iam_id") || !strings.Contains(err.Error(), "mqtt.qos") {
		t.Errorf("Validate() error = %v, want both problems", err)
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
		Gateway: GatewayConfig{
			ReconnectInterval: 15,
			LoginTimeout:      20,
			HandshakeTimeout:  10,
			WriteTimeout:      5,
		},
		WebSocket: WebSocketConfig{PingInterval: 25, PongTimeout: 8},
		Bridge:    BridgeConfig{HealthInterval: 30},
	}

	tests := []struct {
		name string
		got  time.Duration
		want time.Duration
	}{
		{"read", cfg.API.GetReadTimeout(), 30 * time.Second},
		{"write", cfg.API.GetWriteTimeout(), 45 * time.Second},
		{"idle", cfg.API.GetIdleTimeout(), 60 * time.Second},
		{"ping", cfg.WebSocket.GetPingInterval(), 25 * time.Second},
		{"pong", cfg.WebSocket.GetPongTimeout(), 8 * time.Second},
		{"reconnect", cfg.Gateway.GetReconnectInterval(), 15 * time.Second},
		{"login", cfg.Gateway.GetLoginTimeout(), 20 * time.Second},
		{"handshake", cfg.Gateway.GetHandshakeTimeout(), 10 * time.Second},
		{"gateway write", cfg.Gateway.GetWriteTimeout(), 5 * time.Second},
		{"health", cfg.Bridge.GetHealthInterval(), 30 * time.Second},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s timeout = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("SAVECAIR_GATEWAY_URL", "ws://gateway.lan/ws/")
	t.Setenv("SAVECAIR_GATEWAY_IAM_ID", "IAM_9")
	t.Setenv("SAVECAIR_GATEWAY_PASSWORD", "pw")
	t.Setenv("SAVECAIR_GATEWAY_POLL_INTERVAL", "15")
	t.Setenv("SAVECAIR_MQTT_HOST", "mqtt.example.com")
	t.Setenv("SAVECAIR_MQTT_USERNAME", "testuser")
	t.Setenv("SAVECAIR_MQTT_PASSWORD", "testpass")
	t.Setenv("SAVECAIR_API_HOST", "192.168.1.1")
	t.Setenv("SAVECAIR_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("SAVECAIR_LOG_LEVEL", "debug")
	t.Setenv("SAVECAIR_JWT_SECRET", testJWTSecret)
	t.Setenv("SAVECAIR_ADMIN_PASSWORD_HASH", testPasswordHash)

	applyEnvOverrides(cfg)

	checks := []struct {
		name string
		got  any
		want any
	}{
		{"Gateway.URL", cfg.Gateway.URL, "ws://gateway.lan/ws/"},
		{"Gateway.IAMID", cfg.Gateway.IAMID, "IAM_9"},
		{"Gateway.Password", cfg.Gateway.Password, "pw"},
		{"Gateway.PollInterval", cfg.Gateway.PollInterval, 15},
		{"MQTT.Broker.Host", cfg.MQTT.Broker.Host, "mqtt.example.com"},
		{"MQTT.Auth.Username", cfg.MQTT.Auth.Username, "testuser"},
		{"MQTT.Auth.Password", cfg.MQTT.Auth.Password, "testpass"},
		{"API.Host", cfg.API.Host, "192.168.1.1"},
		{"InfluxDB.Token", cfg.InfluxDB.Token, "secret-token"},
		{"Logging.Level", cfg.Logging.Level, "debug"},
		{"Security.JWT.Secret", cfg.Security.JWT.Secret, testJWTSecret},
		{"Security.Admin.PasswordHash", cfg.Security.Admin.PasswordHash, testPasswordHash},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestApplyEnvOverrides_BadPollInterval(t *testing.T) {
	cfg := defaultConfig()
	t.Setenv("SAVECAIR_GATEWAY_POLL_INTERVAL", "soon")

	applyEnvOverrides(cfg)

	if cfg.Gateway.PollInterval != 60 {
		t.Errorf("Gateway.PollInterval = %d, want default 60", cfg.Gateway.PollInterval)
	}
}

func TestPath(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	if got := Path(); got != DefaultConfigPath {
		t.Errorf("Path() = %q, want %q", got, DefaultConfigPath)
	}

	t.Setenv(EnvConfigPath, "/etc/savecair/config.yaml")
	if got := Path(); got != "/etc/savecair/config.yaml" {
		t.Errorf("Path() = %q, want env value", got)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Gateway.ReconnectInterval != 60 {
		t.Errorf("defaultConfig Gateway.ReconnectInterval = %d, want 60", cfg.Gateway.ReconnectInterval)
	}
	if cfg.Gateway.PollInterval != 60 {
		t.Errorf("defaultConfig Gateway.PollInterval = %d, want 60", cfg.Gateway.PollInterval)
	}
	if cfg.Gateway.LoginTimeout != 0 {
		t.Errorf("defaultConfig Gateway.LoginTimeout = %d, want 0", cfg.Gateway.LoginTimeout)
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.API.Port != 8080 {
		t.Errorf("defaultConfig API.Port = %d, want 8080", cfg.API.Port)
	}
}
