package world

import "fmt"

// Settings are the per-world environment parameters.
type Settings struct {
	WeatherEnabled     bool `yaml:"weather_enabled" json:"weather_enabled"`
	DayNightEnabled    bool `yaml:"day_night_enabled" json:"day_night_enabled"`
	BarometricPressure int  `yaml:"barometric_pressure" json:"barometric_pressure"`

	// Dawn, Dusk and LightFadeSpan are in time units of the day.
	Dawn          int `yaml:"dawn" json:"dawn"`
	Dusk          int `yaml:"dusk" json:"dusk"`
	LightFadeSpan int `yaml:"light_fade_span" json:"light_fade_span"`

	DayPartCount int `yaml:"day_part_count" json:"day_part_count"`
	MaxClients   int `yaml:"max_clients" json:"max_clients"`
}

func DefaultSettings() Settings {
	return Settings{
		WeatherEnabled:     true,
		DayNightEnabled:    true,
		BarometricPressure: 70,
		Dawn:               25,
		Dusk:               75,
		LightFadeSpan:      10,
		DayPartCount:       100,
		MaxClients:         3,
	}
}

func (s Settings) Validate() error {
	if s.DayPartCount < 1 {
		return fmt.Errorf("day_part_count must be positive, got %d", s.DayPartCount)
	}
	if s.Dawn < 0 || s.Dusk < s.Dawn || s.Dusk > s.DayPartCount {
		return fmt.Errorf("need 0 <= dawn <= dusk <= day_part_count, got dawn=%d dusk=%d parts=%d",
			s.Dawn, s.Dusk, s.DayPartCount)
	}
	if s.LightFadeSpan < 0 {
		return fmt.Errorf("light_fade_span must not be negative, got %d", s.LightFadeSpan)
	}
	if s.BarometricPressure < 0 || s.BarometricPressure > MaxPressure {
		return fmt.Errorf("barometric_pressure must be in [0,%d], got %d", MaxPressure, s.BarometricPressure)
	}
	if s.MaxClients < 1 {
		return fmt.Errorf("max_clients must be positive, got %d", s.MaxClients)
	}
	return nil
}
