// Package device coordinates device loss and restoration across every
// cache that owns native state.
package device

import (
	"fmt"
	"log/slog"
	"sync"

	"gpu-resource-cache/internal/logging"
	"gpu-resource-cache/internal/resource"
)

// Participant is anything holding native state that must be released
// before the device goes away and rebuilt after it comes back.
type Participant interface {
	PreReset()
	PostReset() error
}

type entry struct {
	name string
	p    Participant
}

// Manager drives the reset protocol. Participants are released in
// reverse registration order and recreated in registration order, so
// later participants may depend on earlier ones (fonts rendered into
// textures, effects sampling surfaces).
type Manager struct {
	log *slog.Logger

	mu    sync.Mutex
	parts []entry
	state resource.State
	// next is the participant PostReset resumes from after a failure.
	next int
}

// New creates a manager with a Resident device.
func New(log *slog.Logger) *Manager {
	return &Manager{log: logging.OrNop(log)}
}

// Register adds p under name. Registering while the device is not
// Resident panics.
func (m *Manager) Register(name string, p Participant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != resource.Resident {
		panic("device: register " + name + " while " + m.state.String())
	}
	m.parts = append(m.parts, entry{name: name, p: p})
}

// State returns the current device state.
func (m *Manager) State() resource.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Participants returns the registered names in registration order.
func (m *Manager) Participants() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, len(m.parts))
	for i, e := range m.parts {
		names[i] = e.name
	}
	return names
}

// Lost releases every participant's native state. It is a no-op unless
// the device is Resident.
func (m *Manager) Lost() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != resource.Resident {
		return
	}
	for i := len(m.parts) - 1; i >= 0; i-- {
		m.parts[i].p.PreReset()
	}
	m.state = resource.Discarded
	m.next = 0
	m.log.Info("device lost", "participants", len(m.parts))
}

// Restored recreates every participant. The first failure stops the pass
// and leaves the device Recreating; calling Restored again resumes with
// the participant that failed.
func (m *Manager) Restored() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == resource.Resident {
		return nil
	}
	m.state = resource.Recreating
	for ; m.next < len(m.parts); m.next++ {
		e := m.parts[m.next]
		if err := e.p.PostReset(); err != nil {
			m.log.Error("device restore failed", "participant", e.name, "err", err)
			return fmt.Errorf("device: restore %s: %w", e.name, err)
		}
	}
	m.state = resource.Resident
	m.next = 0
	m.log.Info("device restored", "participants", len(m.parts))
	return nil
}

// Reset runs a full Lost/Restored cycle, as after a swap-chain resize.
func (m *Manager) Reset() error {
	m.Lost()
	return m.Restored()
}
