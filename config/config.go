package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/b3nn0/flightlink/common"
	"github.com/b3nn0/flightlink/flarm"
	"github.com/b3nn0/flightlink/logger"
	toml "github.com/pelletier/go-toml"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Log             logger.Config `yaml:"log" toml:"log"`
	Metrics         MetricsConfig `yaml:"metrics" toml:"metrics"`
	NMEA            NMEAConfig    `yaml:"nmea" toml:"nmea"`
	Traffic         TrafficConfig `yaml:"traffic" toml:"traffic"`
	RefreshInterval time.Duration `yaml:"refresh_interval" toml:"refresh_interval"`
	StatusInterval  time.Duration `yaml:"status_interval" toml:"status_interval"`
	Ports           []Port        `yaml:"ports" toml:"ports"`
}

type MetricsConfig struct {
	Listen string `yaml:"listen" toml:"listen"` // empty disables the endpoint
}

type NMEAConfig struct {
	// Checksum verification, on unless set to false
	Checksum *bool `yaml:"checksum" toml:"checksum"`
}

func (n NMEAConfig) VerifyChecksum() bool {
	return n.Checksum == nil || *n.Checksum
}

type TrafficConfig struct {
	Capacity int           `yaml:"capacity" toml:"capacity"`
	Ghost    time.Duration `yaml:"ghost" toml:"ghost"`
	Stale    time.Duration `yaml:"stale" toml:"stale"`
}

type Port struct {
	Name       string        `yaml:"name" toml:"name"`
	Type       string        `yaml:"type" toml:"type"`
	Device     string        `yaml:"device" toml:"device"`
	Baud       int           `yaml:"baud" toml:"baud"`
	AutoBaud   []int         `yaml:"auto_baud" toml:"auto_baud"`
	RxTimeout  time.Duration `yaml:"rx_timeout" toml:"rx_timeout"`
	Address    string        `yaml:"address" toml:"address"`
	ListenPort int           `yaml:"listen_port" toml:"listen_port"`
	MAC        string        `yaml:"mac" toml:"mac"`
	Driver     string        `yaml:"driver" toml:"driver"`
}

// Load reads path as TOML when it ends in .toml, as YAML otherwise.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		cfg, err := ParseTOML(b)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", path, err)
		}
		return cfg, nil
	}
	cfg, err := Parse(b)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a YAML configuration and applies the defaults.
func Parse(b []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	return cfg.finish()
}

// ParseTOML is Parse for TOML input.
func ParseTOML(b []byte) (Config, error) {
	var cfg Config
	if err := toml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	return cfg.finish()
}

func (cfg Config) finish() (Config, error) {
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 1 * time.Second
	}
	if cfg.StatusInterval <= 0 {
		cfg.StatusInterval = 60 * time.Second
	}
	if cfg.Traffic.Capacity <= 0 {
		cfg.Traffic.Capacity = flarm.MaxTraffic
	}
	if cfg.Traffic.Ghost <= 0 {
		cfg.Traffic.Ghost = flarm.DefaultGhostAfter
	}
	if cfg.Traffic.Stale <= 0 {
		cfg.Traffic.Stale = flarm.DefaultStaleAfter
	}
	if cfg.Traffic.Ghost >= cfg.Traffic.Stale {
		return Config{}, fmt.Errorf("traffic.ghost must be shorter than traffic.stale")
	}

	if len(cfg.Ports) == 0 {
		return Config{}, fmt.Errorf("at least one port is required")
	}
	names := make(map[string]bool, len(cfg.Ports))
	for i := range cfg.Ports {
		p := &cfg.Ports[i]
		if err := p.applyDefaults(i); err != nil {
			return Config{}, err
		}
		if names[p.Name] {
			return Config{}, fmt.Errorf("ports[%d].name %q is used twice", i, p.Name)
		}
		names[p.Name] = true
	}

	return cfg, nil
}

func (p *Port) applyDefaults(i int) error {
	if p.Type == "" {
		p.Type = common.PORT_TYPE_SERIAL
	}
	if p.RxTimeout <= 0 {
		p.RxTimeout = 1 * time.Second
	}
	if p.Driver == "" {
		p.Driver = "Generic"
	}

	switch p.Type {
	case common.PORT_TYPE_SERIAL, common.PORT_TYPE_SERIAL_BUGST:
		if p.Device == "" {
			return fmt.Errorf("ports[%d].device is required for type %s", i, p.Type)
		}
		if p.Baud <= 0 && len(p.AutoBaud) == 0 {
			p.Baud = 9600
		}
		if p.Type == common.PORT_TYPE_SERIAL_BUGST && p.Baud <= 0 {
			return fmt.Errorf("ports[%d].auto_baud is only supported for type serial", i)
		}
	case common.PORT_TYPE_TCP:
		if p.Address == "" {
			return fmt.Errorf("ports[%d].address is required for type tcp", i)
		}
	case common.PORT_TYPE_TCP_SERVER:
		if p.ListenPort == 0 {
			p.ListenPort = common.DEFAULT_TCP_LISTEN_PORT
		}
	case common.PORT_TYPE_BLE:
		if p.MAC == "" {
			return fmt.Errorf("ports[%d].mac is required for type ble", i)
		}
	case common.PORT_TYPE_VIRTUAL:
	default:
		return fmt.Errorf("ports[%d].type %q is unknown", i, p.Type)
	}

	if p.Name == "" {
		p.Name = p.defaultName()
	}
	return nil
}

func (p *Port) defaultName() string {
	switch p.Type {
	case common.PORT_TYPE_TCP:
		return p.Address
	case common.PORT_TYPE_TCP_SERVER:
		return fmt.Sprintf("tcp-server:%d", p.ListenPort)
	case common.PORT_TYPE_BLE:
		return p.MAC
	case common.PORT_TYPE_VIRTUAL:
		return "virtual"
	}
	return p.Device
}
