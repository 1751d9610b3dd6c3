package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Store backends.
const (
	BackendSQLite = "sqlite"
	BackendBolt   = "bolt"
	BackendMemory = "memory"
)

// Corruption policies for unreadable collections.
const (
	CorruptionFailOpen = "fail_open"
	CorruptionStrict   = "strict"
)

// Connection modes.
const (
	ConnectionSimulated = "simulated"
	ConnectionModbus    = "modbus"
)

// Push payload shapes.
const (
	PayloadNested = "nested"
	PayloadFlat   = "flat"
)

// Config is the root configuration structure for the EMS console.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site       SiteConfig       `yaml:"site"`
	Store      StoreConfig      `yaml:"store"`
	Database   DatabaseConfig   `yaml:"database"`
	Bolt       BoltConfig       `yaml:"bolt"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	API        APIConfig        `yaml:"api"`
	WebSocket  WebSocketConfig  `yaml:"websocket"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	Logging    LoggingConfig    `yaml:"logging"`
	Security   SecurityConfig   `yaml:"security"`
	Push       PushConfig       `yaml:"push"`
	Connection ConnectionConfig `yaml:"connection"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// StoreConfig selects the persistence substrate for the device and register collections.
type StoreConfig struct {
	Backend string `yaml:"backend"`

	// CorruptionPolicy decides what happens when a stored collection cannot be decoded.
	// "fail_open" logs and returns an empty collection, "strict" returns an error.
	CorruptionPolicy string `yaml:"corruption_policy"`

	// ConflictDetection rejects writes based on a stale collection version.
	// When false the last writer wins.
	ConflictDetection bool `yaml:"conflict_detection"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// BoltConfig contains bbolt settings.
type BoltConfig struct {
	Path        string `yaml:"path"`
	OpenTimeout int    `yaml:"open_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
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
	Host         string           `yaml:"host"`
	Port         int              `yaml:"port"`
	TLS          TLSConfig        `yaml:"tls"`
	Timeouts     APITimeoutConfig `yaml:"timeouts"`
	CORS         CORSConfig       `yaml:"cors"`
	MaxBodyBytes int64            `yaml:"max_body_bytes"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
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

// SecurityConfig contains authentication settings.
type SecurityConfig struct {
	JWT   JWTConfig    `yaml:"jwt"`
	Users []UserConfig `yaml:"users"`
}

// JWTConfig contains JWT token settings.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"` // minutes
}

// UserConfig is a console operator. PasswordHash is an Argon2id PHC string.
type UserConfig struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
}

// PushConfig contains settings for pushing configurations to the backend API.
type PushConfig struct {
	URL         string `yaml:"url"`
	Token       string `yaml:"token"`
	Payload     string `yaml:"payload"` // nested or flat
	Timeout     int    `yaml:"timeout"` // seconds
	Concurrency int    `yaml:"concurrency"`
}

// ConnectionConfig controls how device connection status is determined.
type ConnectionConfig struct {
	Mode        string  `yaml:"mode"`         // simulated or modbus
	DelayMillis int     `yaml:"delay_millis"` // simulated only
	SuccessRate float64 `yaml:"success_rate"` // simulated only, 0..1
	Timeout     int     `yaml:"timeout"`      // seconds, modbus only
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: EMS_SECTION_KEY
// For example: EMS_DATABASE_PATH, EMS_PUSH_TOKEN
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
		Site: SiteConfig{
			ID:   "site-001",
			Name: "EMS",
		},
		Store: StoreConfig{
			Backend:           BackendSQLite,
			CorruptionPolicy:  CorruptionFailOpen,
			ConflictDetection: true,
		},
		Database: DatabaseConfig{
			Path:        "./data/ems.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Bolt: BoltConfig{
			Path:        "./data/ems.bolt",
			OpenTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "ems-console",
			},
			QoS:         1,
			TopicPrefix: "ems",
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
			MaxBodyBytes: 1 << 20,
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 60,
			},
		},
		Push: PushConfig{
			Payload:     PayloadNested,
			Timeout:     10,
			Concurrency: 4,
		},
		Connection: ConnectionConfig{
			Mode:        ConnectionSimulated,
			DelayMillis: 1500,
			SuccessRate: 0.5,
			Timeout:     3,
		},
	}
}

// applyEnvOverrides lets EMS_* environment variables replace file values.
// Empty variables are ignored, as are numbers and booleans that do not parse.
// Secrets (JWT, push token, broker and InfluxDB credentials) are expected
// to arrive this way in production.
func applyEnvOverrides(cfg *Config) {
	strs := map[string]*string{
		"EMS_STORE_BACKEND":  &cfg.Store.Backend,
		"EMS_DATABASE_PATH":  &cfg.Database.Path,
		"EMS_BOLT_PATH":      &cfg.Bolt.Path,
		"EMS_MQTT_HOST":      &cfg.MQTT.Broker.Host,
		"EMS_MQTT_USERNAME":  &cfg.MQTT.Auth.Username,
		"EMS_MQTT_PASSWORD":  &cfg.MQTT.Auth.Password,
		"EMS_API_HOST":       &cfg.API.Host,
		"EMS_INFLUXDB_URL":   &cfg.InfluxDB.URL,
		"EMS_INFLUXDB_TOKEN": &cfg.InfluxDB.Token,
		"EMS_PUSH_URL":       &cfg.Push.URL,
		"EMS_PUSH_TOKEN":     &cfg.Push.Token,
		"EMS_JWT_SECRET":     &cfg.Security.JWT.Secret,
		"EMS_LOG_LEVEL":      &cfg.Logging.Level,
	}
	for name, dst := range strs {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"EMS_API_PORT":  &cfg.API.Port,
		"EMS_MQTT_PORT": &cfg.MQTT.Broker.Port,
	}
	for name, dst := range ints {
		if n, err := strconv.Atoi(os.Getenv(name)); err == nil {
			*dst = n
		}
	}

	bools := map[string]*bool{
		"EMS_MQTT_ENABLED":     &cfg.MQTT.Enabled,
		"EMS_INFLUXDB_ENABLED": &cfg.InfluxDB.Enabled,
	}
	for name, dst := range bools {
		if b, err := strconv.ParseBool(os.Getenv(name)); err == nil {
			*dst = b
		}
	}
}

// Validate checks the configuration for errors and security issues.
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	switch c.Store.Backend {
	case BackendSQLite:
		if c.Database.Path == "" {
			errs = append(errs, "database.path is required for the sqlite backend")
		}
	case BackendBolt:
		if c.Bolt.Path == "" {
			errs = append(errs, "bolt.path is required for the bolt backend")
		}
	case BackendMemory:
	default:
		errs = append(errs, "store.backend must be sqlite, bolt or memory")
	}

	if c.Store.CorruptionPolicy != CorruptionFailOpen && c.Store.CorruptionPolicy != CorruptionStrict {
		errs = append(errs, "store.corruption_policy must be fail_open or strict")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.WebSocket.PingInterval <= 0 {
		errs = append(errs, "websocket.ping_interval must be positive")
	}
	if c.WebSocket.PongTimeout <= 0 {
		errs = append(errs, "websocket.pong_timeout must be positive")
	}
	if c.WebSocket.MaxMessageSize <= 0 {
		errs = append(errs, "websocket.max_message_size must be positive")
	}

	const minJWTSecretLength = 32
	if c.Security.JWT.Secret == "" {
		errs = append(errs, "security.jwt.secret is required (set EMS_JWT_SECRET environment variable)")
	} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters")
	}

	for i, u := range c.Security.Users {
		if u.Username == "" || u.PasswordHash == "" {
			errs = append(errs, fmt.Sprintf("security.users[%d] needs username and password_hash", i))
		}
	}

	if c.Push.Payload != PayloadNested && c.Push.Payload != PayloadFlat {
		errs = append(errs, "push.payload must be nested or flat")
	}

	switch c.Connection.Mode {
	case ConnectionSimulated:
		if c.Connection.SuccessRate < 0 || c.Connection.SuccessRate > 1 {
			errs = append(errs, "connection.success_rate must be between 0 and 1")
		}
	case ConnectionModbus:
	default:
		errs = append(errs, "connection.mode must be simulated or modbus")
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

// GetPushTimeout returns the per-request push timeout.
func (c *Config) GetPushTimeout() time.Duration {
	return time.Duration(c.Push.Timeout) * time.Second
}
