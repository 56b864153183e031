// Package intent holds the catalog of offline commands: the intents the
// classifier can recognise, their trigger patterns, the action each one
// performs and the reply templates used when it fires.
package intent

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
)

// ErrUnknownIntent is returned by lookups for ids not in the registry.
var ErrUnknownIntent = errors.New("unknown intent")

// Intent is a named offline command. It is immutable once part of a Registry.
type Intent struct {
	ID        string   `yaml:"id" json:"id"`
	Patterns  []string `yaml:"patterns" json:"patterns"`
	Action    ActionID `yaml:"action" json:"action"`
	Responses []string `yaml:"responses,omitempty" json:"responses,omitempty"`
}

// Seed is one (pattern, intent) training pair derived from the registry.
type Seed struct {
	Text     string
	IntentID string
}

// Registry is an ordered, validated set of intents. Iteration order is
// declaration order and is what the pattern tier walks.
type Registry struct {
	intents []Intent
	byID    map[string]int
}

// NewRegistry validates and normalises intents. Patterns are trimmed and
// lower-cased; empty patterns are dropped.
func NewRegistry(intents []Intent) (*Registry, error) {
	r := &Registry{
		intents: make([]Intent, 0, len(intents)),
		byID:    make(map[string]int, len(intents)),
	}

	for i, in := range intents {
		id := strings.TrimSpace(in.ID)
		if id == "" {
			return nil, fmt.Errorf("intent #%d: empty id", i)
		}
		if _, dup := r.byID[id]; dup {
			return nil, fmt.Errorf("intent %q: duplicate id", id)
		}
		if !in.Action.Valid() {
			return nil, fmt.Errorf("intent %q: %w: %q", id, ErrUnknownAction, in.Action)
		}

		patterns := make([]string, 0, len(in.Patterns))
		for _, p := range in.Patterns {
			p = strings.ToLower(strings.TrimSpace(p))
			if p != "" {
				patterns = append(patterns, p)
			}
		}
		if len(patterns) == 0 {
			return nil, fmt.Errorf("intent %q: at least one pattern is required", id)
		}

		responses := make([]string, 0, len(in.Responses))
		for _, resp := range in.Responses {
			if resp = strings.TrimSpace(resp); resp != "" {
				responses = append(responses, resp)
			}
		}

		r.byID[id] = len(r.intents)
		r.intents = append(r.intents, Intent{
			ID:        id,
			Patterns:  patterns,
			Action:    in.Action,
			Responses: responses,
		})
	}

	return r, nil
}

// Empty returns a registry with no intents.
func Empty() *Registry {
	r, _ := NewRegistry(nil)
	return r
}

// Len returns the number of intents.
func (r *Registry) Len() int {
	return len(r.intents)
}

// Get returns the intent with the given id.
func (r *Registry) Get(id string) (Intent, error) {
	idx, ok := r.byID[id]
	if !ok {
		return Intent{}, fmt.Errorf("%w: %q", ErrUnknownIntent, id)
	}
	return r.intents[idx].clone(), nil
}

// Has reports whether id names an intent in the registry.
func (r *Registry) Has(id string) bool {
	_, ok := r.byID[id]
	return ok
}

// Intents returns a copy of the intents in declaration order.
func (r *Registry) Intents() []Intent {
	out := make([]Intent, len(r.intents))
	for i, in := range r.intents {
		out[i] = in.clone()
	}
	return out
}

// MatchPattern returns the first intent, in declaration order, that has a
// pattern occurring as a substring of the lower-cased text.
func (r *Registry) MatchPattern(text string) (Intent, bool) {
	lower := strings.ToLower(text)
	for _, in := range r.intents {
		for _, p := range in.Patterns {
			if strings.Contains(lower, p) {
				return in.clone(), true
			}
		}
	}
	return Intent{}, false
}

// Seeds returns every (pattern, intent) pair in declaration order.
func (r *Registry) Seeds() []Seed {
	var seeds []Seed
	for _, in := range r.intents {
		for _, p := range in.Patterns {
			seeds = append(seeds, Seed{Text: p, IntentID: in.ID})
		}
	}
	return seeds
}

func (in Intent) clone() Intent {
	out := in
	out.Patterns = append([]string(nil), in.Patterns...)
	out.Responses = append([]string(nil), in.Responses...)
	return out
}

// ═══════════════════════════════════════════════════════════════════════════════
// HOLDER
// ═══════════════════════════════════════════════════════════════════════════════

// Holder publishes the current registry to concurrent readers. The registry
// only changes through an explicit Swap.
type Holder struct {
	current atomic.Pointer[Registry]
}

// NewHolder returns a holder serving r.
func NewHolder(r *Registry) *Holder {
	if r == nil {
		r = Empty()
	}
	h := &Holder{}
	h.current.Store(r)
	return h
}

// Current returns the registry in effect.
func (h *Holder) Current() *Registry {
	return h.current.Load()
}

// Swap installs r and returns the previous registry.
func (h *Holder) Swap(r *Registry) *Registry {
	if r == nil {
		r = Empty()
	}
	return h.current.Swap(r)
}

// Reload reads path and swaps the result in. On error the current registry
// stays in effect.
func (h *Holder) Reload(path string) (*Registry, error) {
	r, err := Load(path)
	if err != nil {
		return nil, err
	}
	h.Swap(r)
	return r, nil
}
