package app

import (
	"slices"
	"strings"
	"sync"

	"github.com/dkeye/Chatter/internal/core"
	"github.com/dkeye/Chatter/internal/domain"
	"github.com/rs/zerolog/log"
)

// Directory is the presence index: at most one live session per username.
type Directory struct {
	mu     sync.RWMutex
	byName map[string]*core.Session
	bySID  map[core.SessionID]*core.Session
}

func NewDirectory() *Directory {
	return &Directory{
		byName: make(map[string]*core.Session),
		bySID:  make(map[core.SessionID]*core.Session),
	}
}

// Register claims the session's username. Exactly one of any number of
// concurrent callers for the same username succeeds.
func (d *Directory) Register(s *core.Session) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cur, ok := d.byName[s.Username()]; ok && cur != s {
		log.Warn().Str("module", "app.directory").Str("username", s.Username()).Msg("already online")
		return &domain.AuthError{Reason: domain.AuthAlreadyOnline}
	}
	d.byName[s.Username()] = s
	d.bySID[s.ID()] = s
	log.Info().Str("module", "app.directory").Str("sid", string(s.ID())).Str("username", s.Username()).Msg("registered")
	return nil
}

// Unregister removes s only if the username still maps to it.
func (d *Directory) Unregister(s *core.Session) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.bySID, s.ID())
	if cur, ok := d.byName[s.Username()]; !ok || cur != s {
		return false
	}
	delete(d.byName, s.Username())
	log.Info().Str("module", "app.directory").Str("sid", string(s.ID())).Str("username", s.Username()).Msg("unregistered")
	return true
}

func (d *Directory) Lookup(username string) (*core.Session, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.byName[username]
	return s, ok
}

func (d *Directory) BySID(sid core.SessionID) (*core.Session, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.bySID[sid]
	return s, ok
}

// ListOnline returns presence entries sorted by username.
func (d *Directory) ListOnline() []domain.Presence {
	sessions := d.Sessions()
	out := make([]domain.Presence, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Presence())
	}
	slices.SortFunc(out, func(a, b domain.Presence) int { return strings.Compare(a.Username, b.Username) })
	return out
}

func (d *Directory) Sessions() []*core.Session {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*core.Session, 0, len(d.byName))
	for _, s := range d.byName {
		out = append(out, s)
	}
	return out
}

func (d *Directory) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.byName)
}
