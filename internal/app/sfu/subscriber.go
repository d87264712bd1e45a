package sfu

import (
	"sync/atomic"

	"github.com/dkeye/Chatter/internal/core"
)

type SubscriberState int32

const (
	SubscriberOk SubscriberState = iota
	SubscriberMuted
	SubscriberDelete
)

// Subscriber is one channel member receiving a stream.
type Subscriber struct {
	Member core.MemberSession
	state  atomic.Int32 // Zero by default (SubscriberOk)
}

func NewSubscriber(ms core.MemberSession) *Subscriber {
	return &Subscriber{Member: ms}
}

func (s *Subscriber) State() SubscriberState {
	return SubscriberState(s.state.Load())
}

func (s *Subscriber) MarkOk() {
	s.state.CompareAndSwap(int32(SubscriberMuted), int32(SubscriberOk))
}

func (s *Subscriber) MarkMuted() {
	s.state.CompareAndSwap(int32(SubscriberOk), int32(SubscriberMuted))
}

// MarkDelete is terminal.
func (s *Subscriber) MarkDelete() {
	s.state.Store(int32(SubscriberDelete))
}
