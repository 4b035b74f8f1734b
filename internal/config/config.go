package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

const (
	// AppName is used for XDG directory paths.
	AppName = "onehop"

	DefaultConnectTimeout        = 10 * time.Second
	DefaultHandshakeTimeout      = 30 * time.Second
	DefaultStreamTimeout         = 20 * time.Second
	DefaultMaxChannels           = 64
	DefaultMaxCircuitsPerChannel = 1024
	DefaultEventBuffer           = 128
	DefaultMaxResponseBytes      = 5 * 1024 * 1024 // 5MB
)

// Config holds every tunable of the connector. Zero values are replaced by
// defaults only through NewConfig and Load; Validate rejects them.
type Config struct {
	// ConnectTimeout bounds each TCP connect to the relay.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	// HandshakeTimeout bounds the link handshake and CREATE_FAST.
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	// StreamTimeout bounds the wait for CONNECTED and, in TorClient, the
	// response read.
	StreamTimeout time.Duration `yaml:"stream_timeout"`

	MaxChannels           int `yaml:"max_channels"`
	MaxCircuitsPerChannel int `yaml:"max_circuits_per_channel"`
	EventBuffer           int `yaml:"event_buffer"`
	MaxResponseBytes      int `yaml:"max_response_bytes"`

	Verbose     bool   `yaml:"verbose"`
	JSONLog     bool   `yaml:"json_log"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// NewConfig returns a Config with default values.
func NewConfig() *Config {
	return &Config{
		ConnectTimeout:        DefaultConnectTimeout,
		HandshakeTimeout:      DefaultHandshakeTimeout,
		StreamTimeout:         DefaultStreamTimeout,
		MaxChannels:           DefaultMaxChannels,
		MaxCircuitsPerChannel: DefaultMaxCircuitsPerChannel,
		EventBuffer:           DefaultEventBuffer,
		MaxResponseBytes:      DefaultMaxResponseBytes,
	}
}

// Validate checks that every limit is positive.
func (c *Config) Validate() error {
	switch {
	case c.ConnectTimeout <= 0, c.HandshakeTimeout <= 0, c.StreamTimeout <= 0:
		return ErrInvalidTimeout
	case c.MaxChannels <= 0, c.MaxCircuitsPerChannel <= 0, c.EventBuffer <= 0:
		return ErrInvalidLimit
	case c.MaxResponseBytes <= 0:
		return ErrInvalidMaxResponse
	}
	return nil
}

// DefaultPath returns $XDG_CONFIG_HOME/onehop/config.yaml.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, AppName, "config.yaml")
}
