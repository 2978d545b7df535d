package prolink

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the tunables spec.md fixes as constants (TTLs, sweep
// cadence, retry budgets, buffer sizes) so deployments can override them
// without a rebuild. Every field defaults to the spec's documented value
// when left zero (see DefaultConfig).
type Config struct {
	Registry   RegistryConfig   `yaml:"registry"`
	DBClient   DBClientConfig   `yaml:"dbclient"`
	Prometheus PrometheusConfig `yaml:"prometheus"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
}

// RegistryConfig controls device TTL expiry.
type RegistryConfig struct {
	DeviceTTL    time.Duration `yaml:"device_ttl"`    // default 5s
	SweepInterval time.Duration `yaml:"sweep_interval"` // default 1s
}

// DBClientConfig controls queue, connection-pool, and retry behavior.
type DBClientConfig struct {
	PopTimeout        time.Duration `yaml:"pop_timeout"`         // default 1s
	BackPressureSleep time.Duration `yaml:"back_pressure_sleep"` // default 1s
	ConnectionTTLTicks int          `yaml:"connection_ttl_ticks"` // default 30
	ReceiveBufferBytes int          `yaml:"receive_buffer_bytes"` // default 65536
	SingleMessageRetries int        `yaml:"single_message_retries"` // default 30
	RenderRetries     int           `yaml:"render_retries"`      // default 40
	OwnDeviceNumber   int           `yaml:"own_device_number"`   // default 0
	CacheBound        int           `yaml:"cache_bound"`         // 0 = unbounded
}

// PrometheusConfig controls metrics registration.
type PrometheusConfig struct {
	Enabled bool `yaml:"enabled"`
}

// MQTTConfig controls the optional change-event/result bridge.
type MQTTConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Broker      string        `yaml:"broker"`
	Username    string        `yaml:"username"`
	Password    string        `yaml:"password"`
	TopicPrefix string        `yaml:"topic_prefix"`
	QoS         byte          `yaml:"qos"`
	Retain      bool          `yaml:"retain"`
	TLS         MQTTTLSConfig `yaml:"tls"`
}

// MQTTTLSConfig controls TLS for the MQTT broker connection.
type MQTTTLSConfig struct {
	Enabled    bool   `yaml:"enabled"`
	CACert     string `yaml:"ca_cert"`
	ClientCert string `yaml:"client_cert"`
	ClientKey  string `yaml:"client_key"`
}

// DefaultConfig returns the tunables as spec.md documents them.
func DefaultConfig() Config {
	return Config{
		Registry: RegistryConfig{
			DeviceTTL:     DefaultDeviceTTL,
			SweepInterval: time.Second,
		},
		DBClient: DBClientConfig{
			PopTimeout:           time.Second,
			BackPressureSleep:    time.Second,
			ConnectionTTLTicks:   30,
			ReceiveBufferBytes:   65536,
			SingleMessageRetries: 30,
			RenderRetries:        40,
			OwnDeviceNumber:      0,
		},
	}
}

// LoadConfig reads a YAML config file and overlays it onto DefaultConfig,
// so an omitted field keeps its spec-documented default rather than
// becoming its Go zero value.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("prolink: reading config %s: %w", path, err)
	}

	var overlay Config
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return cfg, fmt.Errorf("prolink: parsing config %s: %w", path, err)
	}

	if overlay.Registry.DeviceTTL != 0 {
		cfg.Registry.DeviceTTL = overlay.Registry.DeviceTTL
	}
	if overlay.Registry.SweepInterval != 0 {
		cfg.Registry.SweepInterval = overlay.Registry.SweepInterval
	}
	if overlay.DBClient.PopTimeout != 0 {
		cfg.DBClient.PopTimeout = overlay.DBClient.PopTimeout
	}
	if overlay.DBClient.BackPressureSleep != 0 {
		cfg.DBClient.BackPressureSleep = overlay.DBClient.BackPressureSleep
	}
	if overlay.DBClient.ConnectionTTLTicks != 0 {
		cfg.DBClient.ConnectionTTLTicks = overlay.DBClient.ConnectionTTLTicks
	}
	if overlay.DBClient.ReceiveBufferBytes != 0 {
		cfg.DBClient.ReceiveBufferBytes = overlay.DBClient.ReceiveBufferBytes
	}
	if overlay.DBClient.SingleMessageRetries != 0 {
		cfg.DBClient.SingleMessageRetries = overlay.DBClient.SingleMessageRetries
	}
	if overlay.DBClient.RenderRetries != 0 {
		cfg.DBClient.RenderRetries = overlay.DBClient.RenderRetries
	}
	cfg.DBClient.OwnDeviceNumber = overlay.DBClient.OwnDeviceNumber
	cfg.DBClient.CacheBound = overlay.DBClient.CacheBound
	cfg.Prometheus = overlay.Prometheus
	cfg.MQTT = overlay.MQTT

	return cfg, nil
}
