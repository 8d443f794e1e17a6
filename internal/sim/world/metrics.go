package world

// Metrics is a read-only view of world state, safe to read from any
// goroutine. It is refreshed at the end of every successful tick.
type Metrics struct {
	Tick      uint64 `json:"tick"`
	Day       int    `json:"day"`
	TimeOfDay int    `json:"time_of_day"`
	Pressure  int    `json:"pressure"`
	Weather   string `json:"weather"`
	Light     string `json:"light"`
	Agents    int    `json:"agents"`
	Entities  int    `json:"entities"`
}

func (w *World) Metrics() Metrics {
	if w == nil {
		return Metrics{}
	}
	m, _ := w.metrics.Load().(Metrics)
	return m
}

func (w *World) publishMetrics() {
	w.metrics.Store(Metrics{
		Tick:      w.tick,
		Day:       w.day,
		TimeOfDay: w.timeOfDay,
		Pressure:  w.pressure,
		Weather:   w.weather.String(),
		Light:     w.light.String(),
		Agents:    len(w.agents),
		Entities:  len(w.entities),
	})
}
