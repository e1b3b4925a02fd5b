// Package connectors implements C9, the pluggable post-processor sinks the
// worker loop fans out to: record-to-disk, RPC, MQTT, report writers, and
// user notification. A failure in one sink never stalls the others.
package connectors

import (
	"log"
	"sync"

	"github.com/sitincloud/owlyshield-predict/model"
)

// Sink is the broadcast interface every post-processor implements, matching
// spec.md §4.9's on_startup/on_timestep/on_kill contract.
type Sink interface {
	Name() string
	OnStartup(cfg map[string]string) error
	OnTimestep(view model.FamilyView, step model.Timestep) error
	OnKill(view model.FamilyView, score float32) error
}

// Broadcaster fans events out to every registered sink, isolating each
// sink's failures so one broken sink never blocks the rest.
type Broadcaster struct {
	mu    sync.Mutex
	sinks []Sink
}

// NewBroadcaster creates an empty fan-out set.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{}
}

// Register adds sink to the fan-out set.
func (b *Broadcaster) Register(sink Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks = append(b.sinks, sink)
}

// Startup calls OnStartup on every sink, logging (not propagating) failures.
func (b *Broadcaster) Startup(cfg map[string]string) {
	for _, s := range b.snapshot() {
		if err := s.OnStartup(cfg); err != nil {
			log.Printf("connector %s: startup: %v", s.Name(), err)
		}
	}
}

// Timestep fans a timestep out to every sink.
func (b *Broadcaster) Timestep(view model.FamilyView, step model.Timestep) {
	for _, s := range b.snapshot() {
		if err := s.OnTimestep(view, step); err != nil {
			log.Printf("connector %s: on_timestep: %v", s.Name(), err)
		}
	}
}

// Kill fans a kill notification out to every sink.
func (b *Broadcaster) Kill(view model.FamilyView, score float32) {
	for _, s := range b.snapshot() {
		if err := s.OnKill(view, score); err != nil {
			log.Printf("connector %s: on_kill: %v", s.Name(), err)
		}
	}
}

func (b *Broadcaster) snapshot() []Sink {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Sink, len(b.sinks))
	copy(out, b.sinks)
	return out
}
