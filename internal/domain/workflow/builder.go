package workflow

import (
	"fmt"
	"sort"
)

// Builder collects a transition table and builds machines from it
type Builder interface {
	// Configure returns the configuration for transitions leaving state
	Configure(state State) StateConfiguration

	// Build creates a machine positioned at initialState
	Build(initialState State) (StateMachine, error)
}

// StateConfiguration configures transitions for a specific state
type StateConfiguration interface {
	// Permit allows trigger to move the machine to toState
	Permit(trigger Trigger, toState State) StateConfiguration
}

type stateConfig struct {
	transitions map[Trigger]State
}

type builder struct {
	configurations map[State]*stateConfig
}

type stateMachine struct {
	current        State
	configurations map[State]*stateConfig
}

// NewBuilder creates an empty transition table
func NewBuilder() Builder {
	return &builder{
		configurations: make(map[State]*stateConfig),
	}
}

// Configure returns the configuration for state, creating it on first use.
// It panics on an unknown state since tables are built from constants.
func (b *builder) Configure(state State) StateConfiguration {
	if !state.IsValid() {
		panic(fmt.Sprintf("invalid state: %s", state))
	}

	cfg, ok := b.configurations[state]
	if !ok {
		cfg = &stateConfig{transitions: make(map[Trigger]State)}
		b.configurations[state] = cfg
	}
	return cfg
}

// Build creates a machine at initialState. Stored statuses come from the
// database, so an unknown one is an error rather than a panic.
func (b *builder) Build(initialState State) (StateMachine, error) {
	if !initialState.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidState, initialState)
	}

	// Copy so machines never share mutable tables with the builder
	configs := make(map[State]*stateConfig, len(b.configurations))
	for state, cfg := range b.configurations {
		transitions := make(map[Trigger]State, len(cfg.transitions))
		for trigger, to := range cfg.transitions {
			transitions[trigger] = to
		}
		configs[state] = &stateConfig{transitions: transitions}
	}

	return &stateMachine{
		current:        initialState,
		configurations: configs,
	}, nil
}

// Permit allows trigger to move the machine to toState
func (c *stateConfig) Permit(trigger Trigger, toState State) StateConfiguration {
	if !toState.IsValid() {
		panic(fmt.Sprintf("invalid target state: %s", toState))
	}
	c.transitions[trigger] = toState
	return c
}

func (m *stateMachine) State() State {
	return m.current
}

func (m *stateMachine) CanFire(trigger Trigger) bool {
	cfg, ok := m.configurations[m.current]
	if !ok {
		return false
	}
	_, ok = cfg.transitions[trigger]
	return ok
}

func (m *stateMachine) Fire(trigger Trigger) error {
	cfg, ok := m.configurations[m.current]
	if !ok {
		return fmt.Errorf("%w: cannot fire %s from %s (no configuration)", ErrInvalidTransition, trigger, m.current)
	}

	to, ok := cfg.transitions[trigger]
	if !ok {
		return fmt.Errorf("%w: cannot fire %s from %s", ErrInvalidTransition, trigger, m.current)
	}

	m.current = to
	return nil
}

// PermittedTriggers returns the permitted triggers sorted by name
func (m *stateMachine) PermittedTriggers() []Trigger {
	cfg, ok := m.configurations[m.current]
	if !ok {
		return []Trigger{}
	}

	triggers := make([]Trigger, 0, len(cfg.transitions))
	for trigger := range cfg.transitions {
		triggers = append(triggers, trigger)
	}
	sort.Slice(triggers, func(i, j int) bool { return triggers[i] < triggers[j] })
	return triggers
}
