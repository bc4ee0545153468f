package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// PlatformName identifies our entry in a Homebridge-style platforms array.
const PlatformName = "Meater"

// Defaults applied before the file is read.
const (
	DefaultRefreshRate   = 1800 // seconds; also the lower bound for any probe
	DefaultDiscoveryRate = 3600 // seconds
	DefaultEndpoint      = "https://public-api.cloud.meater.com/v1"
	DefaultMaxSkip       = 8
)

var errNoPlatformEntry = errors.New("cannot find config for " + PlatformName + " in platforms array")

// Credentials is the account used against the MEATER cloud.
type Credentials struct {
	Email    string `mapstructure:"email"`
	Password string `mapstructure:"password"`
	Token    string `mapstructure:"token"`
}

// DeviceOverride is user supplied per-probe configuration. Nil fields are "not set".
type DeviceOverride struct {
	ID               string  `mapstructure:"id"`
	ConfigDeviceName *string `mapstructure:"configDeviceName"`
	HideDevice       *bool   `mapstructure:"hide_device"`
	Firmware         *string `mapstructure:"firmware"`
	External         *bool   `mapstructure:"external"`
	RefreshRate      *int    `mapstructure:"refreshRate"`
	Logging          *string `mapstructure:"logging"`
}

type Backoff struct {
	Enabled bool `mapstructure:"enabled"`
	MaxSkip int  `mapstructure:"maxSkip"`
}

type Options struct {
	Devices       []DeviceOverride `mapstructure:"devices"`
	RefreshRate   int              `mapstructure:"refreshRate"`
	DiscoveryRate int              `mapstructure:"discoveryRate"`
	Logging       string           `mapstructure:"logging"`
	Endpoint      string           `mapstructure:"endpoint"`
	Backoff       Backoff          `mapstructure:"backoff"`
}

type Server struct {
	Port string `mapstructure:"port"`
}

type DB struct {
	Path string `mapstructure:"path"`
}

// Auth configures operator tokens for the local HTTP API.
type Auth struct {
	SigningKey string        `mapstructure:"signing_key"`
	TokenTTL   time.Duration `mapstructure:"token_ttl"`
}

type MQTT struct {
	Enabled     bool   `mapstructure:"enabled"`
	Broker      string `mapstructure:"broker"`
	ClientID    string `mapstructure:"client_id"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	TopicPrefix string `mapstructure:"topic_prefix"`
	QoS         int    `mapstructure:"qos"`
}

// Config is the typed view of the JSON config file.
type Config struct {
	Credentials Credentials `mapstructure:"credentials"`
	Options     Options     `mapstructure:"options"`
	Server      Server      `mapstructure:"server"`
	DB          DB          `mapstructure:"db"`
	Auth        Auth        `mapstructure:"auth"`
	MQTT        MQTT        `mapstructure:"mqtt"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("options.refreshRate", DefaultRefreshRate)
	v.SetDefault("options.discoveryRate", DefaultDiscoveryRate)
	v.SetDefault("options.logging", "standard")
	v.SetDefault("options.endpoint", DefaultEndpoint)
	v.SetDefault("options.backoff.enabled", false)
	v.SetDefault("options.backoff.maxSkip", DefaultMaxSkip)
	v.SetDefault("server.port", "8080")
	v.SetDefault("db.path", "meater.db")
	v.SetDefault("auth.token_ttl", time.Hour)
	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", "meater-sync")
	v.SetDefault("mqtt.topic_prefix", "meater")
	v.SetDefault("mqtt.qos", 1)
}

// Load reads the config file at path. Both a plain file and a Homebridge
// config with a "Meater" entry in its platforms array are accepted.
// Environment variables prefixed MEATER_ override file values
// (e.g. MEATER_CREDENTIALS_PASSWORD).
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %q: %w", path, err)
	}
	section, err := platformSection(raw)
	if err != nil {
		return Config{}, fmt.Errorf("parse config %q: %w", path, err)
	}

	v := viper.New()
	v.SetConfigType("json")
	v.SetEnvPrefix("MEATER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	if err := v.ReadConfig(bytes.NewReader(section)); err != nil {
		return Config{}, fmt.Errorf("read config %q: %w", path, err)
	}
	// AutomaticEnv only answers Get calls, bind the secrets explicitly so Unmarshal sees them.
	for _, key := range []string{"credentials.email", "credentials.password", "credentials.token", "auth.signing_key", "mqtt.password"} {
		_ = v.BindEnv(key)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config %q: %w", path, err)
	}
	cfg.Options.sanitize()
	return cfg, nil
}

// sanitize replaces values the engine cannot run with by their defaults.
func (o *Options) sanitize() {
	if o.DiscoveryRate <= 0 {
		o.DiscoveryRate = DefaultDiscoveryRate
	}
	if o.RefreshRate <= 0 {
		o.RefreshRate = DefaultRefreshRate
	}
	if o.Backoff.MaxSkip < 0 {
		o.Backoff.MaxSkip = DefaultMaxSkip
	}
}

// platformSection returns the JSON object holding our sections.
func platformSection(raw []byte) ([]byte, error) {
	var root map[string]any
	if err := json.Unmarshal(raw, &root); err != nil {
		return nil, err
	}
	if _, ok := root["platforms"]; !ok {
		return raw, nil
	}
	entry, err := findPlatform(root)
	if err != nil {
		return nil, err
	}
	return json.Marshal(entry)
}

func findPlatform(root map[string]any) (map[string]any, error) {
	platforms, ok := root["platforms"].([]any)
	if !ok {
		return nil, errors.New("cannot find platforms array in config")
	}
	for _, p := range platforms {
		entry, ok := p.(map[string]any)
		if ok && entry["platform"] == PlatformName {
			return entry, nil
		}
	}
	return nil, errNoPlatformEntry
}

// Override returns the override for id, if any.
func (o Options) Override(id string) (DeviceOverride, bool) {
	for _, d := range o.Devices {
		if d.ID == id {
			return d, true
		}
	}
	return DeviceOverride{}, false
}
