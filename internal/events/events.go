// Package events is a small in-process pub/sub bus. The plugin loader
// publishes reload events on it so the matcher, tool runner, and API layer
// pick up changes without holding references to the loader.
package events

import "sync"

// Event is a notification published on the bus.
type Event struct {
	Kind     Kind
	PluginID string
}

// Kind names what happened.
type Kind string

const (
	PluginsReloaded Kind = "plugins.reloaded"
	SettingsChanged Kind = "settings.changed"
)

// Handler receives published events. Handlers run synchronously on the
// publisher's goroutine and must not block.
type Handler func(Event)

// Bus fans events out to subscribed handlers.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Kind][]Handler
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[Kind][]Handler)}
}

// Subscribe registers a handler for one event kind.
func (b *Bus) Subscribe(kind Kind, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[kind] = append(b.handlers[kind], h)
}

// Publish delivers the event to every handler subscribed to its kind.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	hs := b.handlers[ev.Kind]
	b.mu.RUnlock()
	for _, h := range hs {
		h(ev)
	}
}
