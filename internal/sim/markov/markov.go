// Package markov implements a discrete-time Markov chain over named states.
package markov

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"os"
	"strings"
)

var ErrInvalidModel = errors.New("invalid markov model")

// sumTolerance absorbs float rounding in hand-written tables such as
// 0.1/0.2/0.7.
const sumTolerance = 1e-9

// State is one row of the transition table as stored on disk.
type State struct {
	Name                    string    `json:"Name"`
	TransitionProbabilities []float64 `json:"TransitionProbabilities"`
}

// Model is not safe for concurrent use.
type Model struct {
	states  []State
	current int
	rng     *rand.Rand
}

// New validates states and returns a model positioned on state 0.
// A nil rng gets a time-independent default source seeded with 1.
func New(states []State, rng *rand.Rand) (*Model, error) {
	if err := Validate(states); err != nil {
		return nil, err
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	cp := make([]State, len(states))
	for i, s := range states {
		cp[i] = State{Name: s.Name, TransitionProbabilities: append([]float64(nil), s.TransitionProbabilities...)}
	}
	return &Model{states: cp, rng: rng}, nil
}

// Load decodes a JSON array of states.
func Load(r io.Reader, rng *rand.Rand) (*Model, error) {
	var states []State
	if err := json.NewDecoder(r).Decode(&states); err != nil {
		return nil, fmt.Errorf("markov json: %w", err)
	}
	return New(states, rng)
}

func LoadFile(path string, rng *rand.Rand) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	m, err := Load(f, rng)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Validate rejects empty tables, duplicate names, rows whose length is not
// the state count, negative entries and rows not summing to 1.
func Validate(states []State) error {
	if len(states) == 0 {
		return fmt.Errorf("%w: no states", ErrInvalidModel)
	}
	names := make(map[string]struct{}, len(states))
	for _, s := range states {
		key := strings.ToLower(s.Name)
		if _, dup := names[key]; dup {
			return fmt.Errorf("%w: duplicate state name %q", ErrInvalidModel, s.Name)
		}
		names[key] = struct{}{}

		if len(s.TransitionProbabilities) != len(states) {
			return fmt.Errorf("%w: state %q has %d probabilities, want %d",
				ErrInvalidModel, s.Name, len(s.TransitionProbabilities), len(states))
		}
		sum := 0.0
		for _, p := range s.TransitionProbabilities {
			if p < 0 || math.IsNaN(p) {
				return fmt.Errorf("%w: state %q has negative probability", ErrInvalidModel, s.Name)
			}
			sum += p
		}
		if math.Abs(sum-1) > sumTolerance {
			return fmt.Errorf("%w: transition probabilities of %q sum to %v", ErrInvalidModel, s.Name, sum)
		}
	}
	return nil
}

func (m *Model) Current() int { return m.current }

func (m *Model) CurrentName() string { return m.states[m.current].Name }

func (m *Model) Len() int { return len(m.states) }

func (m *Model) StateNames() []string {
	out := make([]string, len(m.states))
	for i, s := range m.states {
		out[i] = s.Name
	}
	return out
}

// StateIndex finds a state by name, ignoring case.
func (m *Model) StateIndex(name string) (int, bool) {
	for i, s := range m.states {
		if strings.EqualFold(s.Name, name) {
			return i, true
		}
	}
	return 0, false
}

func (m *Model) SetState(id int) error {
	if id < 0 || id >= len(m.states) {
		return fmt.Errorf("state %d out of range [0,%d)", id, len(m.states))
	}
	m.current = id
	return nil
}

// NextState draws r in [0,1) and moves to the first state whose cumulative
// probability reaches r.
func (m *Model) NextState() int {
	r := m.rng.Float64()
	row := m.states[m.current].TransitionProbabilities
	acc := 0.0
	next := -1
	for i, p := range row {
		acc += p
		if acc >= r {
			next = i
			break
		}
	}
	if next < 0 {
		// Rounding left the row a hair under 1; take the last reachable state.
		for i := len(row) - 1; i >= 0; i-- {
			if row[i] > 0 {
				next = i
				break
			}
		}
	}
	m.current = next
	return next
}

// MarshalJSON writes the table in the same shape Load reads.
func (m *Model) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.states)
}
