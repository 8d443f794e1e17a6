package world

import "strconv"

type WeatherType int

const (
	Sunny  WeatherType = 0
	Cloudy WeatherType = 1
	Rainy  WeatherType = 2
)

func (w WeatherType) String() string {
	switch w {
	case Sunny:
		return "Sunny"
	case Cloudy:
		return "Cloudy"
	case Rainy:
		return "Rainy"
	default:
		return strconv.Itoa(int(w))
	}
}

// IntensityLevel is a coarse 0..5 scale used for light and humidity.
type IntensityLevel int

const (
	None         IntensityLevel = 0
	VeryLow      IntensityLevel = 1
	Low          IntensityLevel = 2
	Average      IntensityLevel = 3
	AboveAverage IntensityLevel = 4
	Full         IntensityLevel = 5
)

func (l IntensityLevel) String() string {
	switch l {
	case None:
		return "None"
	case VeryLow:
		return "VeryLow"
	case Low:
		return "Low"
	case Average:
		return "Average"
	case AboveAverage:
		return "AboveAverage"
	case Full:
		return "Full"
	default:
		return strconv.Itoa(int(l))
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
