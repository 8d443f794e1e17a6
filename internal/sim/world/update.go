package world

import (
	"errors"
	"fmt"

	"terrasim.io/internal/sim/grid"
)

// Pressure model constants.
const (
	MaxPressure          = 100
	minPressureStepDelta = 2
	maxPressureStepDelta = 7
	rainThreshold        = 30
	sunnyThreshold       = 60
)

const (
	changeRise = 0
	changeStay = 1
	changeFall = 2
)

// TickResult summarizes one Update for logging.
type TickResult struct {
	Tick      uint64
	Commands  int
	Unhandled int
	Deferred  int
	NewDay    bool
}

// ErrInconsistent marks internal consistency failures that abort a tick.
var ErrInconsistent = errors.New("internal inconsistency")

// Update performs one full tick:
//
//  1. before-update hooks
//  2. advance time of day
//  3. drain pooled commands into agent bindings
//  4. update every client agent (its actuators)
//  5. update every other entity on the map
//  6. advance weather
//  7. recompute light
//  8. run every agent's sensors
//  9. flush deferred mutations, then after-update hooks
//
// An error aborts the rest of the tick.
func (w *World) Update() (TickResult, error) {
	w.tick++
	res := TickResult{Tick: w.tick}
	ctx := &TickContext{World: w, Tick: w.tick}

	for _, fn := range w.beforeUpdate {
		fn(w)
	}

	res.NewDay = w.nextTimeUnit()

	cmds := w.takeCommands()
	res.Commands = len(cmds)
	for _, c := range cmds {
		a, ok := w.agents[c.ClientID]
		if !ok {
			return res, fmt.Errorf("%w: command %q for client %d without agent", ErrInconsistent, c.Action, c.ClientID)
		}
		handled, err := a.PerformAction(ctx, c.Action, c.Arg1, c.Arg2)
		if err != nil {
			return res, err
		}
		if !handled {
			res.Unhandled++
		}
	}

	ids := w.AgentIDs()
	for _, id := range ids {
		if err := w.agents[id].Update(ctx); err != nil {
			return res, err
		}
	}

	var updErr error
	w.grid.Each(func(_ grid.Coord, cell *grid.Cell[NamedObject]) {
		if updErr != nil {
			return
		}
		for _, o := range cell.Objects() {
			if _, isClient := o.(*UserAgent); isClient {
				continue
			}
			if err := o.Update(ctx); err != nil {
				updErr = fmt.Errorf("update %s: %w", o.Name(), err)
				return
			}
		}
	})
	if updErr != nil {
		return res, updErr
	}

	w.updateWeather()
	w.updateLight()

	for _, id := range ids {
		if a, ok := w.agents[id]; ok {
			if err := a.UpdateSensors(ctx); err != nil {
				return res, err
			}
		}
	}

	res.Deferred = w.deferred.Flush()
	for _, fn := range w.afterUpdate {
		fn(w)
	}
	w.publishMetrics()
	return res, nil
}

func (w *World) nextTimeUnit() bool {
	if w.timeOfDay >= w.settings.DayPartCount-1 {
		w.timeOfDay = 0
		w.day++
		for _, fn := range w.newDay {
			fn(w)
		}
		return true
	}
	w.timeOfDay++
	return false
}

func (w *World) updateWeather() {
	if !w.settings.WeatherEnabled || w.weatherModel == nil {
		return
	}
	span := maxPressureStepDelta*2 - minPressureStepDelta*2
	switch w.weatherModel.NextState() {
	case changeRise:
		w.pressure += minPressureStepDelta*2 + w.rng.Intn(span)
	case changeStay:
		sign := 1
		if w.rng.Intn(2) == 0 {
			sign = -1
		}
		w.pressure += sign * (minPressureStepDelta + w.rng.Intn(maxPressureStepDelta-minPressureStepDelta))
	case changeFall:
		w.pressure -= minPressureStepDelta*2 + w.rng.Intn(span)
	}
	w.pressure = clamp(w.pressure, 0, MaxPressure)
	w.weather = weatherFor(w.pressure)
}

func weatherFor(pressure int) WeatherType {
	switch {
	case pressure <= rainThreshold:
		return Rainy
	case pressure < sunnyThreshold:
		return Cloudy
	default:
		return Sunny
	}
}

func (w *World) updateLight() {
	day := Full
	if w.settings.DayNightEnabled {
		day = Daylight(w.settings, w.timeOfDay)
	}
	w.light = IntensityLevel(clamp(int(day)-int(w.weather), int(VeryLow), int(Full)))
}

// Daylight is the light level at time t before weather is applied: VeryLow
// at night, Full between dawn and dusk, stepping through the fade span in
// between.
func Daylight(s Settings, t int) IntensityLevel {
	step := s.LightFadeSpan / 5
	if step < 1 {
		step = 1
	}
	switch {
	case t < s.Dawn:
		return VeryLow
	case t < s.Dawn+s.LightFadeSpan:
		return IntensityLevel(clamp(1+(t-s.Dawn)/step, int(VeryLow), int(Full)))
	case t < s.Dusk:
		return Full
	case t < s.Dusk+s.LightFadeSpan:
		return IntensityLevel(clamp(5-(t-s.Dusk)/step, int(VeryLow), int(Full)))
	default:
		return VeryLow
	}
}
