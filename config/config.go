// Package config loads the agent's own session/transport configuration
// from an INI file, independent of whatever per-client configuration the
// middleware's own LoadConfigFile hook later performs.
package config

import (
	"fmt"
	"time"

	"gopkg.in/ini.v1"
)

// UDPConfig describes the UDP transport listener.
type UDPConfig struct {
	Enabled bool
	Bind    string
	MTU     int
}

// TCPConfig describes the TCP transport listener.
type TCPConfig struct {
	Enabled bool
	Bind    string
}

// SerialConfig describes the serial transport link. The agent's own
// entry point opens Device as a plain file and hands the resulting
// connection to transportio.NewSerialAdapter; it does not apply Baud, so
// the line speed is whatever the device is already set to. This package
// only carries the parameters.
type SerialConfig struct {
	Enabled     bool
	Device      string
	Baud        int
	LocalAddr   byte
	PeerAddr    byte
	MaxFrameLen int
}

// Config is the agent's own session/transport configuration, read from
// the `[agent]`, `[transport.udp]`, `[transport.tcp]` and
// `[transport.serial]` sections of an INI file.
type Config struct {
	// ReliableWindow and BestEffortWindow are W_r and W_b: how many
	// in-flight messages each kind of output stream retains.
	ReliableWindow   int
	BestEffortWindow int

	// HeartbeatPeriod is T_hb, the interval the periodic sweep runs at.
	HeartbeatPeriod time.Duration

	// ClientExpiry is how long a client may go without activity before
	// ExpireInactive reclaims its entry.
	ClientExpiry time.Duration

	// MiddlewareConfigPath is handed to the middleware's own
	// LoadConfigFile hook; empty means no middleware config is loaded.
	MiddlewareConfigPath string

	UDP    UDPConfig
	TCP    TCPConfig
	Serial SerialConfig
}

// Default returns the configuration the agent runs with when no file is
// given: UDP enabled on the standard XRCE-DDS agent port, everything else
// disabled.
func Default() Config {
	return Config{
		ReliableWindow:   16,
		BestEffortWindow: 16,
		HeartbeatPeriod:  200 * time.Millisecond,
		ClientExpiry:     10 * time.Second,
		UDP: UDPConfig{
			Enabled: true,
			Bind:    "0.0.0.0:2019",
			MTU:     512,
		},
	}
}

// Load reads filePath and overlays it on top of Default.
func Load(filePath string) (Config, error) {
	cfg := Default()

	file, err := ini.Load(filePath)
	if err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}

	if section, err := file.GetSection("agent"); err == nil {
		if key, err := section.GetKey("reliable_window"); err == nil {
			cfg.ReliableWindow = key.MustInt(cfg.ReliableWindow)
		}
		if key, err := section.GetKey("best_effort_window"); err == nil {
			cfg.BestEffortWindow = key.MustInt(cfg.BestEffortWindow)
		}
		if key, err := section.GetKey("heartbeat_period_ms"); err == nil {
			cfg.HeartbeatPeriod = time.Duration(key.MustInt(int(cfg.HeartbeatPeriod/time.Millisecond))) * time.Millisecond
		}
		if key, err := section.GetKey("client_expiry_ms"); err == nil {
			cfg.ClientExpiry = time.Duration(key.MustInt(int(cfg.ClientExpiry/time.Millisecond))) * time.Millisecond
		}
		if key, err := section.GetKey("middleware_config"); err == nil {
			cfg.MiddlewareConfigPath = key.String()
		}
	}

	if section, err := file.GetSection("transport.udp"); err == nil {
		cfg.UDP.Enabled = section.Key("enabled").MustBool(cfg.UDP.Enabled)
		cfg.UDP.Bind = section.Key("bind").MustString(cfg.UDP.Bind)
		cfg.UDP.MTU = section.Key("mtu").MustInt(cfg.UDP.MTU)
	}

	if section, err := file.GetSection("transport.tcp"); err == nil {
		cfg.TCP.Enabled = section.Key("enabled").MustBool(cfg.TCP.Enabled)
		cfg.TCP.Bind = section.Key("bind").MustString(cfg.TCP.Bind)
	}

	if section, err := file.GetSection("transport.serial"); err == nil {
		cfg.Serial.Enabled = section.Key("enabled").MustBool(cfg.Serial.Enabled)
		cfg.Serial.Device = section.Key("device").MustString(cfg.Serial.Device)
		cfg.Serial.Baud = section.Key("baud").MustInt(115200)
		cfg.Serial.LocalAddr = byte(section.Key("local_addr").MustUint(0))
		cfg.Serial.PeerAddr = byte(section.Key("peer_addr").MustUint(0))
		cfg.Serial.MaxFrameLen = section.Key("max_frame_len").MustInt(65535)
	}

	return cfg, nil
}
