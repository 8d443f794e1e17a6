// Package tuning loads the server's YAML configuration.
package tuning

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"terrasim.io/internal/sim/world"
)

type Tuning struct {
	Server Server         `yaml:"server"`
	World  world.Settings `yaml:"world"`
	Paths  Paths          `yaml:"paths"`
}

type Server struct {
	Port            int     `yaml:"port"`
	DayCycleMinutes float64 `yaml:"day_cycle_minutes"`
	ObserverAddr    string  `yaml:"observer_addr"`
	DataDir         string  `yaml:"data_dir"`
	// IndexDB is the sqlite index path; empty means <data_dir>/index/terrasim.sqlite.
	IndexDB string `yaml:"index_db"`

	RateLimits RateLimits `yaml:"rate_limits"`
}

// RateLimits bound inbound messages per connection.
type RateLimits struct {
	MessagesPerSecond float64 `yaml:"messages_per_second"`
	Burst             int     `yaml:"burst"`
}

// Paths are resolved against the directory of the config file.
type Paths struct {
	Map          string `yaml:"map"`
	Tiles        string `yaml:"tiles"`
	WeatherModel string `yaml:"weather_model"`
}

func Defaults() Tuning {
	return Tuning{
		Server: Server{
			Port:            8183,
			DayCycleMinutes: 5,
			ObserverAddr:    "127.0.0.1:8184",
			DataDir:         "./data",
			RateLimits: RateLimits{
				MessagesPerSecond: 20,
				Burst:             40,
			},
		},
		World: world.DefaultSettings(),
		Paths: Paths{
			Map: "configs/basic/map.json",
		},
	}
}

// Load reads path over Defaults. Relative map paths are made relative to
// the file's directory.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	t.Paths = Paths{}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	dir := filepath.Dir(path)
	t.Paths.Map = resolve(dir, t.Paths.Map)
	t.Paths.Tiles = resolve(dir, t.Paths.Tiles)
	t.Paths.WeatherModel = resolve(dir, t.Paths.WeatherModel)
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return t, nil
}

func resolve(dir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

func (t Tuning) Validate() error {
	if t.Server.Port < 0 || t.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", t.Server.Port)
	}
	if t.Server.DayCycleMinutes <= 0 {
		return fmt.Errorf("server.day_cycle_minutes must be positive, got %v", t.Server.DayCycleMinutes)
	}
	if t.Server.RateLimits.MessagesPerSecond < 0 || t.Server.RateLimits.Burst < 0 {
		return fmt.Errorf("server.rate_limits must not be negative")
	}
	if t.Paths.Map == "" {
		return fmt.Errorf("paths.map is required")
	}
	if err := t.World.Validate(); err != nil {
		return fmt.Errorf("world: %w", err)
	}
	return nil
}

func (t Tuning) DayCycle() time.Duration {
	return time.Duration(t.Server.DayCycleMinutes * float64(time.Minute))
}

func (t Tuning) IndexPath() string {
	if t.Server.IndexDB != "" {
		return t.Server.IndexDB
	}
	return filepath.Join(t.Server.DataDir, "index", "terrasim.sqlite")
}
