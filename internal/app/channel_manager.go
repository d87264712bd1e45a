package app

import (
	"slices"
	"strings"
	"sync"

	"github.com/dkeye/Chatter/internal/core"
	"github.com/dkeye/Chatter/internal/domain"
	"github.com/rs/zerolog/log"
)

var _ core.ChannelRegistry = (*ChannelManager)(nil)

// ChannelManager lazily creates channels and keeps them for the life of the
// process, empty or not, so history survives until the next joiner.
type ChannelManager struct {
	mu          sync.RWMutex
	channels    map[domain.ChannelName]core.ChannelService
	historySize int
	onCreate    func(count int)
}

func NewChannelManager(historySize int) *ChannelManager {
	return &ChannelManager{
		channels:    make(map[domain.ChannelName]core.ChannelService),
		historySize: historySize,
	}
}

// OnCreate registers a hook called with the new channel count after each creation.
func (m *ChannelManager) OnCreate(fn func(count int)) { m.onCreate = fn }

func (m *ChannelManager) GetOrCreate(name domain.ChannelName) core.ChannelService {
	m.mu.RLock()
	ch, ok := m.channels[name]
	m.mu.RUnlock()
	if ok {
		return ch
	}
	m.mu.Lock()
	if ch, ok = m.channels[name]; ok {
		m.mu.Unlock()
		return ch
	}
	ch = core.NewChannelService(name, m.historySize)
	m.channels[name] = ch
	count := len(m.channels)
	m.mu.Unlock()

	log.Info().Str("module", "app.channels").Str("channel", string(name)).Msg("channel created")
	if m.onCreate != nil {
		m.onCreate(count)
	}
	return ch
}

func (m *ChannelManager) Get(name domain.ChannelName) (core.ChannelService, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.channels[name]
	return ch, ok
}

func (m *ChannelManager) List() []core.ChannelInfo {
	m.mu.RLock()
	out := make([]core.ChannelInfo, 0, len(m.channels))
	chans := make([]core.ChannelService, 0, len(m.channels))
	for _, ch := range m.channels {
		chans = append(chans, ch)
	}
	m.mu.RUnlock()

	for _, ch := range chans {
		out = append(out, core.ChannelInfo{Name: ch.Name(), MemberCount: ch.MemberCount(), LastSeq: ch.LastSequence()})
	}
	slices.SortFunc(out, func(a, b core.ChannelInfo) int { return strings.Compare(string(a.Name), string(b.Name)) })
	return out
}

func (m *ChannelManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.channels)
}
