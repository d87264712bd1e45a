package sfu

import (
	"context"
	"maps"
	"sync"

	"github.com/dkeye/Chatter/internal/core"
	"github.com/dkeye/Chatter/internal/domain"
	"github.com/pion/rtp"
	"github.com/rs/zerolog"
)

// ForwardResult reports what happened to one chunk.
type ForwardResult struct {
	Sequence uint64
	SentTo   int
	Dropped  int
	Stale    bool
}

// Relay fans one publisher's chunks out to the other members of its channel.
// Subscribers see a strictly increasing subsequence of the publisher's sequence,
// ending with a control chunk when the stream stops.
type Relay struct {
	Channel   domain.ChannelName
	Publisher core.MemberSession

	validateRTP bool
	logger      zerolog.Logger

	mu          sync.RWMutex
	subscribers map[core.SessionID]*Subscriber

	// fwd serializes forwarding so every subscriber observes the same order.
	fwd     sync.Mutex
	lastSeq uint64
	stopped bool

	ctx    context.Context
	cancel context.CancelFunc
}

func NewRelay(ctx context.Context, ch domain.ChannelName, publisher core.MemberSession, validateRTP bool, logger zerolog.Logger) *Relay {
	ctx, cancel := context.WithCancel(ctx)
	return &Relay{
		Channel:     ch,
		Publisher:   publisher,
		validateRTP: validateRTP,
		logger:      logger,
		subscribers: make(map[core.SessionID]*Subscriber),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Context is canceled when the relay stops; ingest loops bind to it.
func (r *Relay) Context() context.Context { return r.ctx }

func (r *Relay) LastSequence() uint64 {
	r.fwd.Lock()
	defer r.fwd.Unlock()
	return r.lastSeq
}

// Forward sends a publisher-sequenced chunk. Stale sequences are discarded.
func (r *Relay) Forward(chunk domain.StreamChunk) (ForwardResult, error) {
	if err := r.check(chunk); err != nil {
		return ForwardResult{}, err
	}
	r.fwd.Lock()
	defer r.fwd.Unlock()
	if r.stopped {
		return ForwardResult{}, &domain.StreamError{Reason: domain.StreamNotPublishing, Channel: r.Channel}
	}
	if chunk.Sequence <= r.lastSeq {
		return ForwardResult{Sequence: chunk.Sequence, Stale: true}, nil
	}
	r.lastSeq = chunk.Sequence
	return r.forwardLocked(chunk), nil
}

// ForwardNext assigns the next sequence itself; used for ingested RTP.
func (r *Relay) ForwardNext(kind domain.ChunkKind, payload []byte) (ForwardResult, error) {
	chunk := domain.StreamChunk{Kind: kind, Payload: payload}
	if err := r.check(chunk); err != nil {
		return ForwardResult{}, err
	}
	r.fwd.Lock()
	defer r.fwd.Unlock()
	if r.stopped {
		return ForwardResult{}, &domain.StreamError{Reason: domain.StreamNotPublishing, Channel: r.Channel}
	}
	r.lastSeq++
	chunk.Sequence = r.lastSeq
	return r.forwardLocked(chunk), nil
}

func (r *Relay) check(chunk domain.StreamChunk) error {
	switch chunk.Kind {
	case domain.ChunkAudio, domain.ChunkVideo:
	default:
		return &domain.StreamError{Reason: domain.StreamBadChunk, Channel: r.Channel}
	}
	if r.validateRTP {
		var pkt rtp.Packet
		if err := pkt.Unmarshal(chunk.Payload); err != nil {
			return &domain.StreamError{Reason: domain.StreamBadChunk, Channel: r.Channel, Err: err}
		}
	}
	return nil
}

func (r *Relay) forwardLocked(chunk domain.StreamChunk) ForwardResult {
	chunk.Channel = r.Channel
	chunk.Publisher = r.Publisher.Username()
	frame := core.Encode(core.NewChunkEvent(chunk))
	res := ForwardResult{Sequence: chunk.Sequence}

	snapshot := r.snapshot()
	dirty := make([]core.SessionID, 0)
	for sid, sub := range snapshot {
		switch sub.State() {
		case SubscriberDelete:
			dirty = append(dirty, sid)
		case SubscriberMuted:
		case SubscriberOk:
			if err := sub.Member.Signal().TrySendMedia(frame); err != nil {
				res.Dropped++
				continue
			}
			res.SentTo++
		}
	}
	if len(dirty) > 0 {
		r.cleanupDeleted(dirty)
	}
	return res
}

func (r *Relay) snapshot() map[core.SessionID]*Subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Clone(r.subscribers)
}

func (r *Relay) cleanupDeleted(dirty []core.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sid := range dirty {
		if sub, ok := r.subscribers[sid]; ok && sub.State() == SubscriberDelete {
			delete(r.subscribers, sid)
		}
	}
}

// stop sends the terminal control chunk to every live subscriber and detaches them.
func (r *Relay) stop() uint64 {
	r.fwd.Lock()
	defer r.fwd.Unlock()
	if r.stopped {
		return r.lastSeq
	}
	r.stopped = true
	r.cancel()

	end := domain.StreamChunk{
		Publisher: r.Publisher.Username(),
		Channel:   r.Channel,
		Sequence:  r.lastSeq + 1,
		Kind:      domain.ChunkControl,
		End:       true,
	}
	frame := core.Encode(core.NewChunkEvent(end))
	for sid, sub := range r.snapshot() {
		if sub.State() == SubscriberDelete {
			continue
		}
		if err := sub.Member.Signal().ForceSendMedia(frame); err != nil {
			r.logger.Debug().Err(err).Str("dst_sid", string(sid)).Msg("terminal chunk not delivered")
		}
	}
	r.markAllDelete()
	return end.Sequence
}

func (r *Relay) markAllDelete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sub := range r.subscribers {
		sub.MarkDelete()
	}
}

func (r *Relay) AddSubscriber(ms core.MemberSession) {
	if ms.ID() == r.Publisher.ID() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if sub, ok := r.subscribers[ms.ID()]; ok && sub.State() != SubscriberDelete {
		return
	}
	r.subscribers[ms.ID()] = NewSubscriber(ms)
}

func (r *Relay) subscriber(sid core.SessionID) (*Subscriber, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sub, ok := r.subscribers[sid]
	return sub, ok
}

func (r *Relay) SubscriberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, sub := range r.subscribers {
		if sub.State() != SubscriberDelete {
			n++
		}
	}
	return n
}
