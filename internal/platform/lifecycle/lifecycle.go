// Package lifecycle holds status transition tables for domain entities.
package lifecycle

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrInvalidStatus     = errors.New("invalid status")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Machine is an allowed-transition table keyed by source status. Every status
// that may appear must be a key, including terminal ones with no targets.
type Machine struct {
	initial     string
	transitions map[string]map[string]struct{}
}

// New builds a Machine. initial must be one of the keys of transitions.
func New(initial string, transitions map[string][]string) *Machine {
	m := &Machine{
		initial:     initial,
		transitions: make(map[string]map[string]struct{}, len(transitions)),
	}
	for from, targets := range transitions {
		set := make(map[string]struct{}, len(targets))
		for _, to := range targets {
			set[to] = struct{}{}
		}
		m.transitions[from] = set
	}
	if _, ok := m.transitions[initial]; !ok {
		panic(fmt.Sprintf("lifecycle: initial status %q not in table", initial))
	}
	return m
}

// Initial is the status new entities start in.
func (m *Machine) Initial() string {
	return m.initial
}

// Valid reports whether status belongs to the table.
func (m *Machine) Valid(status string) bool {
	_, ok := m.transitions[status]
	return ok
}

// Allows reports whether from -> to is permitted. Staying in the same valid
// status is always allowed.
func (m *Machine) Allows(from, to string) bool {
	targets, ok := m.transitions[from]
	if !ok || !m.Valid(to) {
		return false
	}
	if from == to {
		return true
	}
	_, ok = targets[to]
	return ok
}

// Terminal reports whether no transition leaves status.
func (m *Machine) Terminal(status string) bool {
	targets, ok := m.transitions[status]
	return ok && len(targets) == 0
}

// Check returns ErrInvalidStatus or ErrInvalidTransition, wrapped with the
// offending statuses.
func (m *Machine) Check(from, to string) error {
	if !m.Valid(to) {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, to)
	}
	if !m.Allows(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// Statuses lists every status in lexical order.
func (m *Machine) Statuses() []string {
	out := make([]string, 0, len(m.transitions))
	for s := range m.transitions {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Next lists the statuses reachable from status in lexical order.
func (m *Machine) Next(status string) []string {
	targets := m.transitions[status]
	out := make([]string, 0, len(targets))
	for s := range targets {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
