// Package convo keeps per-plugin conversation history for conversational
// AI plugins. History expires after ten minutes of inactivity; expiry is
// evaluated lazily on every read and write, with an explicit sweep for
// callers running an idle timer.
package convo

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openmaw-ai/openmaw/pkg/models"
)

// DefaultTTL is the inactivity window before a conversation is discarded.
const DefaultTTL = 10 * time.Minute

type conversation struct {
	messages     []models.ChatMessage
	lastActivity time.Time
}

// Manager maps plugin ids to their rolling chat history.
type Manager struct {
	mu    sync.Mutex
	ttl   time.Duration
	convs map[string]*conversation
	now   func() time.Time
}

// NewManager creates a manager with the default TTL.
func NewManager() *Manager {
	return &Manager{
		ttl:   DefaultTTL,
		convs: make(map[string]*conversation),
		now:   time.Now,
	}
}

// expiredLocked reports whether c is past the TTL.
func (m *Manager) expiredLocked(c *conversation) bool {
	return m.now().Sub(c.lastActivity) > m.ttl
}

// Append adds a message to a plugin's history, starting fresh if the
// previous history expired. Stale history is discarded, never extended.
func (m *Manager) Append(pluginID string, msg models.ChatMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.convs[pluginID]
	if !ok || m.expiredLocked(c) {
		c = &conversation{}
		m.convs[pluginID] = c
	}
	c.messages = append(c.messages, msg)
	c.lastActivity = m.now()
}

// Messages returns a snapshot of a plugin's live history. Expired history
// reads as empty.
func (m *Manager) Messages(pluginID string) []models.ChatMessage {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.convs[pluginID]
	if !ok || m.expiredLocked(c) {
		return nil
	}
	out := make([]models.ChatMessage, len(c.messages))
	copy(out, c.messages)
	return out
}

// Clear drops a plugin's history immediately.
func (m *Manager) Clear(pluginID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.convs, pluginID)
}

// PruneMissing drops conversations whose plugin no longer exists, e.g.
// after a reload removed it from disk.
func (m *Manager) PruneMissing(exists func(pluginID string) bool) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id := range m.convs {
		if !exists(id) {
			delete(m.convs, id)
			removed++
		}
	}
	return removed
}

// CleanupExpired removes every expired conversation and returns how many
// were reclaimed. Meant for a periodic idle sweep.
func (m *Manager) CleanupExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, c := range m.convs {
		if m.expiredLocked(c) {
			delete(m.convs, id)
			removed++
		}
	}
	if removed > 0 {
		log.Debug().Int("removed", removed).Msg("swept expired conversations")
	}
	return removed
}
