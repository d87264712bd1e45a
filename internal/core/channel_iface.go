package core

import (
	"github.com/dkeye/Chatter/internal/domain"
)

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SendTo  int
	Dropped []MemberSession
}

func (r *PublishResult) merge(other PublishResult) {
	r.SendTo += other.SendTo
	r.Dropped = append(r.Dropped, other.Dropped...)
}

// JoinResult is the state snapshot handed to a joining member.
type JoinResult struct {
	History []domain.Message
	Members []string
}

// ChannelService is the core-facing API of a channel.
// It owns the membership set and the history but never touches transport resources.
type ChannelService interface {
	Name() domain.ChannelName
	MemberCount() int
	MembersSnapshot() []string
	// EachMember calls fn for every member while membership is held still.
	// fn must not call back into the channel.
	EachMember(fn func(MemberSession))
	IsMember(sid SessionID) bool
	LastSequence() uint64

	Join(ms MemberSession) (JoinResult, PublishResult)
	Leave(sid SessionID) (bool, PublishResult)
	Post(from MemberSession, body string) (domain.Message, PublishResult, error)
	Broadcast(from SessionID, data Frame) PublishResult
	History(since uint64, limit int) []domain.Message
}

type ChannelInfo struct {
	Name        domain.ChannelName `json:"name"`
	MemberCount int                `json:"member_count"`
	LastSeq     uint64             `json:"last_sequence"`
}

// ChannelRegistry owns the set of live channels.
type ChannelRegistry interface {
	GetOrCreate(name domain.ChannelName) ChannelService
	Get(name domain.ChannelName) (ChannelService, bool)
	List() []ChannelInfo
}
