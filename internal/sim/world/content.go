package world

import (
	"io"
	"math/rand"

	"terrasim.io/internal/sim/markov"
)

// ContentProvider plugs concrete entities, sensors and actuators into the
// server. A provider is bound to the single World its LoadMap returns.
type ContentProvider interface {
	LoadMap(r io.Reader) (*World, error)
	GenerateAgent(id int) (agent *UserAgent, x, y int, err error)
}

// DefaultWeatherModel is the rise/stay/fall chain used when no model file is
// configured. It leans towards keeping the current trend.
func DefaultWeatherModel(rng *rand.Rand) *markov.Model {
	m, err := markov.New([]markov.State{
		{Name: "Rise", TransitionProbabilities: []float64{0.5, 0.4, 0.1}},
		{Name: "Stay", TransitionProbabilities: []float64{0.25, 0.5, 0.25}},
		{Name: "Fall", TransitionProbabilities: []float64{0.1, 0.4, 0.5}},
	}, rng)
	if err != nil {
		panic(err)
	}
	return m
}
