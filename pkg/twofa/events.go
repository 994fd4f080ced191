package twofa

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies a two-factor state change.
type EventType string

const (
	EventEnabled                EventType = "2fa_enabled"
	EventDisabled               EventType = "2fa_disabled"
	EventBackupCodesRegenerated EventType = "backup_codes_regenerated"
)

// Event is emitted by the service whenever enrollment state changes, so
// subscribers (UI banners, audit logs) do not need to poll.
type Event struct {
	Type   EventType
	UserID uuid.UUID
	At     time.Time
}

// Subscribe registers a listener for state-change events. Listeners are
// invoked synchronously in registration order.
func (s *TwoFaService) Subscribe(listener func(Event)) {
	s.listenerMutex.Lock()
	defer s.listenerMutex.Unlock()
	s.listeners = append(s.listeners, listener)
}

func (s *TwoFaService) emit(event Event) {
	s.listenerMutex.Lock()
	listeners := make([]func(Event), len(s.listeners))
	copy(listeners, s.listeners)
	s.listenerMutex.Unlock()

	for _, listener := range listeners {
		listener(event)
	}
}
