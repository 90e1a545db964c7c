// Package config loads station settings from defaults, an optional YAML file
// and STATION_* environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const (
	// PathEnvVar names the variable holding an explicit config file path.
	PathEnvVar = "STATION_CONFIG"

	envPrefix = "STATION_"
)

// DefaultPaths are searched when STATION_CONFIG is unset.
var DefaultPaths = []string{"config.yaml", "config.yml", "/etc/groundstation/config.yaml"}

type Config struct {
	Log       LogConfig      `koanf:"log"`
	HTTP      HTTPConfig     `koanf:"http"`
	Discovery ListenerConfig `koanf:"discovery"`
	Telemetry ListenerConfig `koanf:"telemetry"`
	Frames    ListenerConfig `koanf:"frames"`
	Mission   PeerConfig     `koanf:"mission"`
	Actuator  ActuatorConfig `koanf:"actuator"`
	Map       MapConfig      `koanf:"map"`
	Camera    CameraConfig   `koanf:"camera"`
	Tracklog  TracklogConfig `koanf:"tracklog"`
	Events    EventsConfig   `koanf:"events"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

type HTTPConfig struct {
	Address string `koanf:"address"`
}

// ListenerConfig describes one inbound UDP socket.
type ListenerConfig struct {
	Host        string        `koanf:"host"`
	Port        int           `koanf:"port"`
	BufferSize  int           `koanf:"buffer_size"`
	ReadTimeout time.Duration `koanf:"read_timeout"`
}

// Addr returns host:port.
func (l ListenerConfig) Addr() string {
	return net.JoinHostPort(l.Host, fmt.Sprint(l.Port))
}

type PeerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

type ActuatorConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
	// Transport is "udp" or "serial".
	Transport  string `koanf:"transport"`
	SerialPort string `koanf:"serial_port"`
	BaudRate   int    `koanf:"baud_rate"`
}

type MapConfig struct {
	CenterLat         float64       `koanf:"center_lat"`
	CenterLon         float64       `koanf:"center_lon"`
	Zoom              int           `koanf:"zoom"`
	Width             int           `koanf:"width"`
	Height            int           `koanf:"height"`
	TileURL           string        `koanf:"tile_url"`
	TileTimeout       time.Duration `koanf:"tile_timeout"`
	PathCapacity      int           `koanf:"path_capacity"`
	ArrivalThreshold  float64       `koanf:"arrival_threshold"`
	AnimationDuration time.Duration `koanf:"animation_duration"`
	TickInterval      time.Duration `koanf:"tick_interval"`
	Follow            bool          `koanf:"follow"`
}

type CameraConfig struct {
	Player     string   `koanf:"player"`
	PlayerArgs []string `koanf:"player_args"`
}

type TracklogConfig struct {
	Enabled bool   `koanf:"enabled"`
	Dir     string `koanf:"dir"`
	Buffer  int    `koanf:"buffer"`
}

type EventsConfig struct {
	Dir string `koanf:"dir"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Log:  LogConfig{Level: "info", Format: "console"},
		HTTP: HTTPConfig{Address: ":8080"},
		Discovery: ListenerConfig{
			Host:        "0.0.0.0",
			Port:        5000,
			BufferSize:  65535,
			ReadTimeout: time.Second,
		},
		Telemetry: ListenerConfig{
			Host:        "0.0.0.0",
			Port:        5005,
			BufferSize:  4096,
			ReadTimeout: time.Second,
		},
		Frames: ListenerConfig{
			Host:        "0.0.0.0",
			Port:        5007,
			BufferSize:  65536,
			ReadTimeout: time.Second,
		},
		Mission: PeerConfig{Host: "192.168.1.116", Port: 5006},
		Actuator: ActuatorConfig{
			Host:      "192.168.1.177",
			Port:      8888,
			Transport: "udp",
			BaudRate:  115200,
		},
		Map: MapConfig{
			CenterLat:         22.80978657890875,
			CenterLon:         90.41065979003906,
			Zoom:              15,
			Width:             800,
			Height:            600,
			TileTimeout:       10 * time.Second,
			PathCapacity:      100,
			ArrivalThreshold:  5.0,
			AnimationDuration: 800 * time.Millisecond,
			TickInterval:      50 * time.Millisecond,
			Follow:            true,
		},
		Camera: CameraConfig{
			Player:     "ffplay",
			PlayerArgs: []string{"-fflags", "nobuffer", "-flags", "low_delay", "-window_title", "{label}", "{url}"},
		},
		Tracklog: TracklogConfig{Enabled: true, Dir: "data", Buffer: 256},
		Events:   EventsConfig{Dir: "logs"},
	}
}

// Load reads configuration from the first file found in DefaultPaths (or
// STATION_CONFIG) and the environment.
func Load() (*Config, error) {
	return LoadFrom(findConfigFile())
}

// LoadFrom is Load with an explicit file path. An empty path skips the file layer.
func LoadFrom(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := splitSlice(k, "camera.player_args"); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(PathEnvVar); p != "" {
		return p
	}
	for _, p := range DefaultPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// envTransform maps STATION_MAP__TILE_URL to map.tile_url. A single
// underscore stays part of the key name.
func envTransform(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
	if key == "config" {
		return ""
	}
	return strings.ReplaceAll(key, "__", ".")
}

// splitSlice turns a comma separated env value into a list.
func splitSlice(k *koanf.Koanf, path string) error {
	s, ok := k.Get(path).(string)
	if !ok {
		return nil
	}
	var parts []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if err := k.Set(path, parts); err != nil {
		return fmt.Errorf("failed to set %s: %w", path, err)
	}
	return nil
}

// Validate checks ranges and required values.
func (c *Config) Validate() error {
	var errs []error

	for name, l := range map[string]ListenerConfig{
		"discovery": c.Discovery,
		"telemetry": c.Telemetry,
		"frames":    c.Frames,
	} {
		if !validPort(l.Port) {
			errs = append(errs, fmt.Errorf("%s.port %d out of range", name, l.Port))
		}
		if l.BufferSize <= 0 {
			errs = append(errs, fmt.Errorf("%s.buffer_size must be positive", name))
		}
		if l.ReadTimeout <= 0 {
			errs = append(errs, fmt.Errorf("%s.read_timeout must be positive", name))
		}
	}
	if c.Frames.BufferSize < 65536 {
		errs = append(errs, fmt.Errorf("frames.buffer_size must be at least 65536, got %d", c.Frames.BufferSize))
	}

	if !validPort(c.Mission.Port) {
		errs = append(errs, fmt.Errorf("mission.port %d out of range", c.Mission.Port))
	}
	if net.ParseIP(c.Mission.Host) == nil {
		errs = append(errs, fmt.Errorf("mission.host %q is not an IP address", c.Mission.Host))
	}

	switch c.Actuator.Transport {
	case "udp":
		if !validPort(c.Actuator.Port) {
			errs = append(errs, fmt.Errorf("actuator.port %d out of range", c.Actuator.Port))
		}
		if net.ParseIP(c.Actuator.Host) == nil {
			errs = append(errs, fmt.Errorf("actuator.host %q is not an IP address", c.Actuator.Host))
		}
	case "serial":
		if c.Actuator.SerialPort == "" {
			errs = append(errs, errors.New("actuator.serial_port is required for serial transport"))
		}
		if c.Actuator.BaudRate <= 0 {
			errs = append(errs, errors.New("actuator.baud_rate must be positive"))
		}
	default:
		errs = append(errs, fmt.Errorf("actuator.transport %q must be udp or serial", c.Actuator.Transport))
	}

	m := c.Map
	if m.Zoom < 10 || m.Zoom > 19 {
		errs = append(errs, fmt.Errorf("map.zoom %d outside 10..19", m.Zoom))
	}
	if m.CenterLat < -85 || m.CenterLat > 85 || m.CenterLon < -180 || m.CenterLon > 180 {
		errs = append(errs, fmt.Errorf("map center %.6f,%.6f out of range", m.CenterLat, m.CenterLon))
	}
	if m.Width <= 0 || m.Height <= 0 {
		errs = append(errs, errors.New("map.width and map.height must be positive"))
	}
	if m.PathCapacity <= 0 {
		errs = append(errs, errors.New("map.path_capacity must be positive"))
	}
	if m.ArrivalThreshold < 0 {
		errs = append(errs, errors.New("map.arrival_threshold must not be negative"))
	}
	if m.AnimationDuration <= 0 || m.TickInterval <= 0 {
		errs = append(errs, errors.New("map.animation_duration and map.tick_interval must be positive"))
	}

	if c.Tracklog.Enabled && c.Tracklog.Dir == "" {
		errs = append(errs, errors.New("tracklog.dir is required when tracklog is enabled"))
	}

	return errors.Join(errs...)
}

func validPort(p int) bool {
	return p > 0 && p <= 65535
}
