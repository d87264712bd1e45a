package sfu

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/dkeye/Chatter/internal/core"
	"github.com/dkeye/Chatter/internal/domain"
	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mediaConn mimics the bounded media queue of a real connection.
type mediaConn struct {
	mu    sync.Mutex
	limit int
	media []core.Frame
}

func (c *mediaConn) TrySend(core.Frame) error { return nil }

func (c *mediaConn) TrySendMedia(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.media) >= c.limit {
		return domain.ErrBackpressure
	}
	c.media = append(c.media, f)
	return nil
}

func (c *mediaConn) ForceSendMedia(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.media) >= c.limit {
		c.media = c.media[1:]
	}
	c.media = append(c.media, f)
	return nil
}

func (c *mediaConn) Close() {}

func (c *mediaConn) chunks(t *testing.T) []domain.StreamChunk {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.StreamChunk, 0, len(c.media))
	for _, f := range c.media {
		var ev core.ChunkEvent
		require.NoError(t, json.Unmarshal(f, &ev))
		require.Equal(t, core.EventStreamChunk, ev.Type)
		out = append(out, ev.StreamChunk)
	}
	return out
}

type member struct {
	id   core.SessionID
	name string
	conn *mediaConn
}

func (m *member) ID() core.SessionID            { return m.id }
func (m *member) Username() string              { return m.name }
func (m *member) Signal() core.SignalConnection { return m.conn }

func newMember(name string, limit int) *member {
	return &member{id: core.SessionID("sid-" + name), name: name, conn: &mediaConn{limit: limit}}
}

func audio(seq uint64) domain.StreamChunk {
	return domain.StreamChunk{Sequence: seq, Kind: domain.ChunkAudio, Payload: []byte{byte(seq)}}
}

func TestRelay_OnePublisherPerChannel(t *testing.T) {
	m := NewRelayManager()
	pub := newMember("bao", 10)
	other := newMember("aob", 10)

	_, err := m.StartRelay(context.Background(), "general", pub, []core.MemberSession{pub, other})
	require.NoError(t, err)

	_, err = m.StartRelay(context.Background(), "general", other, nil)
	assert.ErrorIs(t, err, domain.ErrPublisherActive)

	_, err = m.Forward("general", other.ID(), audio(1))
	assert.ErrorIs(t, err, domain.ErrNotPublishing)

	_, err = m.Forward("random", pub.ID(), audio(1))
	assert.ErrorIs(t, err, domain.ErrNoActivePublisher)

	res, err := m.Forward("general", pub.ID(), audio(1))
	require.NoError(t, err)
	assert.Equal(t, 1, res.SentTo)
	assert.Empty(t, pub.conn.chunks(t))
}

func TestRelay_DropLatestYieldsIncreasingSubsequenceWithTerminal(t *testing.T) {
	m := NewRelayManager()
	pub := newMember("bao", 10)
	fast := newMember("fast", 1000)
	slow := newMember("slow", 10)

	_, err := m.StartRelay(context.Background(), "general", pub, []core.MemberSession{fast, slow})
	require.NoError(t, err)

	for seq := uint64(1); seq <= 100; seq++ {
		_, err := m.Forward("general", pub.ID(), audio(seq))
		require.NoError(t, err)
	}
	ch, ok := m.StopRelay(pub.ID())
	require.True(t, ok)
	assert.Equal(t, domain.ChannelName("general"), ch)
	assert.False(t, m.HasRelay("general"))

	fastChunks := fast.conn.chunks(t)
	require.Len(t, fastChunks, 101)
	for i, c := range fastChunks[:100] {
		assert.Equal(t, uint64(i+1), c.Sequence)
		assert.Equal(t, "bao", c.Publisher)
	}

	slowChunks := slow.conn.chunks(t)
	require.Len(t, slowChunks, 10)
	var last uint64
	for _, c := range slowChunks {
		assert.Greater(t, c.Sequence, last)
		last = c.Sequence
	}
	for _, chunks := range [][]domain.StreamChunk{fastChunks, slowChunks} {
		end := chunks[len(chunks)-1]
		assert.Equal(t, domain.ChunkControl, end.Kind)
		assert.True(t, end.End)
		assert.Equal(t, uint64(101), end.Sequence)
	}
}

func TestRelay_StaleAndInvalidChunks(t *testing.T) {
	m := NewRelayManager()
	pub := newMember("bao", 10)
	sub := newMember("aob", 10)
	_, err := m.StartRelay(context.Background(), "general", pub, []core.MemberSession{sub})
	require.NoError(t, err)

	_, err = m.Forward("general", pub.ID(), audio(5))
	require.NoError(t, err)
	res, err := m.Forward("general", pub.ID(), audio(3))
	require.NoError(t, err)
	assert.True(t, res.Stale)

	_, err = m.Forward("general", pub.ID(), domain.StreamChunk{Sequence: 9, Kind: domain.ChunkControl})
	assert.ErrorIs(t, err, domain.ErrBadChunk)

	require.Len(t, sub.conn.chunks(t), 1)
}

func TestRelay_ValidateRTP(t *testing.T) {
	m := NewRelayManager()
	m.ValidateRTP = true
	pub := newMember("bao", 10)
	sub := newMember("aob", 10)
	_, err := m.StartRelay(context.Background(), "general", pub, []core.MemberSession{sub})
	require.NoError(t, err)

	_, err = m.Forward("general", pub.ID(), domain.StreamChunk{Sequence: 1, Kind: domain.ChunkVideo, Payload: []byte{1}})
	assert.ErrorIs(t, err, domain.ErrBadChunk)

	pkt := &rtp.Packet{Header: rtp.Header{Version: 2, PayloadType: 96, SequenceNumber: 7}, Payload: []byte{0xde, 0xad}}
	raw, err := pkt.Marshal()
	require.NoError(t, err)
	_, err = m.Forward("general", pub.ID(), domain.StreamChunk{Sequence: 1, Kind: domain.ChunkVideo, Payload: raw})
	require.NoError(t, err)
}

func TestRelay_MuteAndLateJoinAndLeave(t *testing.T) {
	m := NewRelayManager()
	pub := newMember("bao", 10)
	a := newMember("aob", 10)
	_, err := m.StartRelay(context.Background(), "general", pub, []core.MemberSession{a})
	require.NoError(t, err)

	require.NoError(t, m.SetMuted("general", a.ID(), true))
	_, err = m.Forward("general", pub.ID(), audio(1))
	require.NoError(t, err)

	late := newMember("late", 10)
	publisher, ok := m.AddSubscriber("general", late)
	require.True(t, ok)
	assert.Equal(t, "bao", publisher)

	require.NoError(t, m.SetMuted("general", a.ID(), false))
	_, err = m.Forward("general", pub.ID(), audio(2))
	require.NoError(t, err)

	m.MarkSubscriberDelete("general", late.ID())
	_, err = m.Forward("general", pub.ID(), audio(3))
	require.NoError(t, err)

	aChunks := a.conn.chunks(t)
	require.Len(t, aChunks, 2)
	assert.Equal(t, uint64(2), aChunks[0].Sequence)
	assert.Equal(t, uint64(3), aChunks[1].Sequence)

	lateChunks := late.conn.chunks(t)
	require.Len(t, lateChunks, 1)
	assert.Equal(t, uint64(2), lateChunks[0].Sequence)

	assert.Error(t, m.SetMuted("general", late.ID(), true))
}

type fakeTrack struct {
	packets []*rtp.Packet
}

func (f *fakeTrack) ReadRTP() (*rtp.Packet, interceptor.Attributes, error) {
	if len(f.packets) == 0 {
		return nil, nil, errors.New("EOF")
	}
	p := f.packets[0]
	f.packets = f.packets[1:]
	return p, nil, nil
}

type countObserver struct {
	mu     sync.Mutex
	counts map[string]int
}

func (o *countObserver) ObserveChunks(result string, n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.counts[result] += n
}

func TestRelay_IngestAssignsSequences(t *testing.T) {
	m := NewRelayManager()
	obs := &countObserver{counts: map[string]int{}}
	m.Observer = obs
	pub := newMember("bao", 10)
	sub := newMember("aob", 10)
	relay, err := m.StartRelay(context.Background(), "general", pub, []core.MemberSession{sub})
	require.NoError(t, err)

	track := &fakeTrack{}
	for i := 0; i < 3; i++ {
		track.packets = append(track.packets, &rtp.Packet{
			Header:  rtp.Header{Version: 2, PayloadType: 111, SequenceNumber: uint16(1000 + i)},
			Payload: []byte{byte(i)},
		})
	}
	m.Ingest(context.Background(), relay, domain.ChunkAudio, track)

	chunks := sub.conn.chunks(t)
	require.Len(t, chunks, 3)
	for i, c := range chunks {
		assert.Equal(t, uint64(i+1), c.Sequence)
		var pkt rtp.Packet
		require.NoError(t, pkt.Unmarshal(c.Payload))
		assert.Equal(t, uint16(1000+i), pkt.SequenceNumber)
	}
	assert.Equal(t, 3, obs.counts["forwarded"])
	assert.Equal(t, uint64(3), relay.LastSequence())
}
