// Package session owns the conversation identity sent to the intent
// resolver.
package session

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"sync"
	"time"
)

const suffixLen = 7

// Manager holds the active session id and agent selector for one
// conversation. The id is generated lazily and discarded on Reset.
type Manager struct {
	mu      sync.Mutex
	id      string
	agentID string
	newID   func() string
}

// NewManager returns a Manager targeting agentID (empty means the
// resolver's default agent).
func NewManager(agentID string) *Manager {
	return &Manager{agentID: agentID, newID: NewID}
}

// ID returns the active session id, generating one if none exists.
func (m *Manager) ID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.id == "" {
		m.id = m.newID()
	}
	return m.id
}

// Reset discards the current id; the next ID call generates a new one.
// Conversation messages are left to the caller.
func (m *Manager) Reset() {
	m.mu.Lock()
	m.id = ""
	m.mu.Unlock()
}

// Agent returns the agent selector.
func (m *Manager) Agent() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.agentID
}

// SetAgent switches the targeted agent and starts a new session, since a
// session belongs to a single agent.
func (m *Manager) SetAgent(agentID string) {
	m.mu.Lock()
	m.agentID = agentID
	m.id = ""
	m.mu.Unlock()
}

// NewID returns "session-<unix ms>-<7 base36 chars>". It is a continuity
// token, not a credential.
func NewID() string {
	b := make([]byte, suffixLen)
	for i := range b {
		b[i] = strconv.FormatInt(rand.Int64N(36), 36)[0]
	}
	return fmt.Sprintf("session-%d-%s", time.Now().UnixMilli(), b)
}
