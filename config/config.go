// Package config loads the gateway configuration file.
//
// The file is optional. Values it does not set keep their defaults, and
// command line flags override both.
package config

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ruteri/sensor-anchoring-gateway/anchor"
	"github.com/ruteri/sensor-anchoring-gateway/identity"
	"github.com/ruteri/sensor-anchoring-gateway/interfaces"
	"gopkg.in/yaml.v3"
)

// Config is the gateway configuration.
type Config struct {
	Gateway  GatewayConfig  `yaml:"gateway"`
	Sensors  SensorsConfig  `yaml:"sensors"`
	Queue    QueueConfig    `yaml:"queue"`
	Backend  BackendConfig  `yaml:"backend"`
	Token    TokenConfig    `yaml:"token"`
	Store    StoreConfig    `yaml:"store"`
	Keys     KeysConfig     `yaml:"keys"`
	Policies PoliciesConfig `yaml:"policies"`
	Server   ServerConfig   `yaml:"server"`

	// Workers is the number of anchoring workers.
	Workers int `yaml:"workers"`
}

type GatewayConfig struct {
	// ID is the gateway UUID. Empty derives it from the first hardware address.
	ID string `yaml:"id"`

	// Namespace is the root name of every device UUID.
	Namespace string `yaml:"namespace"`

	// ClockThreshold is the earliest time accepted as a synchronized clock.
	ClockThreshold time.Time `yaml:"clock_threshold"`
}

type SensorsConfig struct {
	// Simulate enables the built-in producer.
	Simulate bool `yaml:"simulate"`

	// IDs are the simulated sensor identifiers, visited round-robin.
	IDs []string `yaml:"ids"`

	// Interval is the initial producer cadence. Backend responses may change it.
	Interval time.Duration `yaml:"interval"`

	StartupDelay time.Duration `yaml:"startup_delay"`
}

type QueueConfig struct {
	Capacity    int           `yaml:"capacity"`
	PushTimeout time.Duration `yaml:"push_timeout"`
	PopTimeout  time.Duration `yaml:"pop_timeout"`
}

type BackendConfig struct {
	// URL is the base URL of the identity and key services.
	URL string `yaml:"url"`

	// SRV, when set, resolves URL from this DNS SRV name at startup.
	SRV string `yaml:"srv"`

	// Resolver is the DNS server used for SRV lookups.
	Resolver string `yaml:"resolver"`

	// AnchorURL is the anchoring endpoint. Empty means URL + "/api/anchor".
	AnchorURL string `yaml:"anchor_url"`

	// PublicKey is the hex encoded Ed25519 key signing backend responses.
	PublicKey string `yaml:"public_key"`

	DeviceType string        `yaml:"device_type"`
	Timeout    time.Duration `yaml:"timeout"`
}

type TokenConfig struct {
	// Value is the registration token, opaque or JWT.
	Value string `yaml:"value"`

	// File is read when Value is empty.
	File string `yaml:"file"`
}

type StoreConfig struct {
	// URIs are the context store locations, see interfaces.NewStorageBackendLocation.
	URIs []string `yaml:"uris"`

	// Passphrase seals context blobs at rest when non-empty.
	Passphrase string `yaml:"passphrase"`
}

type KeysConfig struct {
	Validity     time.Duration `yaml:"validity"`
	RotationLead time.Duration `yaml:"rotation_lead"`
}

type PoliciesConfig struct {
	AlreadyRegistered string `yaml:"already_registered"`
	Verification      string `yaml:"verification"`
}

type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`

	// AdminKeysFile enables the admin API with the keys it lists.
	AdminKeysFile string `yaml:"admin_keys_file"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Namespace:      identity.DefaultNamespace,
			ClockThreshold: identity.DefaultClockThreshold,
		},
		Sensors: SensorsConfig{
			Simulate:     true,
			IDs:          []string{"test_alpha", "test_beta"},
			Interval:     6 * time.Second,
			StartupDelay: 6 * time.Second,
		},
		Queue: QueueConfig{
			Capacity:    32,
			PushTimeout: time.Second,
			PopTimeout:  anchor.DefaultPopTimeout,
		},
		Backend: BackendConfig{
			URL:        "http://127.0.0.1:8081",
			Resolver:   "127.0.0.53:53",
			DeviceType: "default_type",
			Timeout:    30 * time.Second,
		},
		Store: StoreConfig{
			URIs: []string{"file:///var/lib/sensor-anchoring-gateway/contexts"},
		},
		Keys: KeysConfig{
			Validity:     identity.DefaultKeyValidity,
			RotationLead: identity.DefaultRotationLead,
		},
		Policies: PoliciesConfig{
			AlreadyRegistered: string(identity.AlreadyRegisteredFail),
			Verification:      string(anchor.ReportDelivered),
		},
		Server: ServerConfig{
			ListenAddr: "127.0.0.1:8080",
		},
		Workers: 1,
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("could not parse %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Gateway.Namespace == "" {
		errs = append(errs, errors.New("gateway.namespace is required"))
	}
	if c.Sensors.Simulate && len(c.Sensors.IDs) == 0 {
		errs = append(errs, errors.New("sensors.ids is required when simulating"))
	}
	for _, id := range c.Sensors.IDs {
		if _, err := identity.ShortName(id); err != nil {
			errs = append(errs, fmt.Errorf("sensors.ids: %q has no short name", id))
		}
	}
	if c.Sensors.Interval <= 0 {
		errs = append(errs, errors.New("sensors.interval must be positive"))
	}
	if c.Queue.Capacity < 1 {
		errs = append(errs, errors.New("queue.capacity must be at least 1"))
	}
	if c.Queue.PushTimeout <= 0 || c.Queue.PopTimeout <= 0 {
		errs = append(errs, errors.New("queue timeouts must be positive"))
	}
	if c.Backend.URL == "" && c.Backend.SRV == "" {
		errs = append(errs, errors.New("backend.url or backend.srv is required"))
	}
	if c.Backend.PublicKey != "" {
		if _, err := c.BackendPublicKey(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(c.Store.URIs) == 0 {
		errs = append(errs, errors.New("store.uris is required"))
	}
	for _, uri := range c.Store.URIs {
		if _, err := interfaces.NewStorageBackendLocation(uri); err != nil {
			errs = append(errs, fmt.Errorf("store.uris: %w", err))
		}
	}
	if c.Keys.Validity <= c.Keys.RotationLead {
		errs = append(errs, errors.New("keys.validity must exceed keys.rotation_lead"))
	}
	if _, err := identity.ParseAlreadyRegisteredPolicy(c.Policies.AlreadyRegistered); err != nil {
		errs = append(errs, err)
	}
	if _, err := anchor.ParseVerificationPolicy(c.Policies.Verification); err != nil {
		errs = append(errs, err)
	}
	if c.Workers < 1 {
		errs = append(errs, errors.New("workers must be at least 1"))
	}

	return errors.Join(errs...)
}

// BackendPublicKey decodes Backend.PublicKey. It returns nil without error
// when no key is configured.
func (c *Config) BackendPublicKey() (ed25519.PublicKey, error) {
	if c.Backend.PublicKey == "" {
		return nil, nil
	}
	raw, err := hex.DecodeString(c.Backend.PublicKey)
	if err != nil || len(raw) != ed25519.PublicKeySize {
		return nil, errors.New("backend.public_key must be a hex encoded ed25519 public key")
	}
	return ed25519.PublicKey(raw), nil
}

// AnchorEndpoint returns the anchoring URL for baseURL.
func (c *Config) AnchorEndpoint(baseURL string) string {
	if c.Backend.AnchorURL != "" {
		return c.Backend.AnchorURL
	}
	return baseURL + "/api/anchor"
}

// TokenValue returns the configured token, reading Token.File if needed.
func (c *Config) TokenValue() (string, error) {
	if c.Token.Value != "" || c.Token.File == "" {
		return c.Token.Value, nil
	}
	data, err := os.ReadFile(c.Token.File)
	if err != nil {
		return "", fmt.Errorf("could not read token file: %w", err)
	}
	return string(data), nil
}
