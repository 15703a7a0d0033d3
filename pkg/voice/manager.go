package voice

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/cloudgroundcontrol/soundboard-bot/pkg/transport"
	"github.com/labstack/gommon/log"
)

var ErrUnknownGuild = errors.New("no voice session for guild")

// Manager owns one Session per guild, created on first use.
type Manager struct {
	newSession func(guildID string) *Session

	lock     sync.Mutex
	sessions map[string]*Session
}

func NewManager(newSession func(guildID string) *Session) *Manager {
	return &Manager{
		newSession: newSession,
		sessions:   make(map[string]*Session),
	}
}

func (m *Manager) Session(guildID string) *Session {
	m.lock.Lock()
	defer m.lock.Unlock()

	s, ok := m.sessions[guildID]
	if !ok {
		s = m.newSession(guildID)
		m.sessions[guildID] = s
		log.Debugf("created voice session | guild: %s", guildID)
	}
	return s
}

func (m *Manager) Lookup(guildID string) (*Session, bool) {
	m.lock.Lock()
	defer m.lock.Unlock()
	s, ok := m.sessions[guildID]
	return s, ok
}

// Statuses lists every session ordered by guild.
func (m *Manager) Statuses() []Status {
	m.lock.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.lock.Unlock()

	out := make([]Status, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Guild < out[j].Guild })
	return out
}

// Shutdown disconnects every session in parallel.
func (m *Manager) Shutdown() {
	m.lock.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.lock.Unlock()

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			s.Shutdown()
		}(s)
	}
	wg.Wait()
}

// StopRecording stops recording in guildID on behalf of an operator.
func (m *Manager) StopRecording(ctx context.Context, guildID string) (string, error) {
	s, ok := m.Lookup(guildID)
	if !ok {
		return "", ErrUnknownGuild
	}
	return s.StopRecording(ctx, Request{Target: transport.Target{GuildID: guildID}}), nil
}
