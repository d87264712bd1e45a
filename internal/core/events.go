package core

import (
	"encoding/json"
	"time"

	"github.com/dkeye/Chatter/internal/domain"
	"github.com/rs/zerolog/log"
)

// Outbound event types.
const (
	EventJoined        = "joined"
	EventLeft          = "left"
	EventMessage       = "message"
	EventSent          = "sent"
	EventPresence      = "presence"
	EventUserJoined    = "userJoined"
	EventUserLeft      = "userLeft"
	EventStreamStarted = "streamStarted"
	EventStreamStopped = "streamStopped"
	EventStreamChunk   = "streamChunk"
	EventError         = "error"
)

type JoinedEvent struct {
	Type    string             `json:"type"`
	Channel domain.ChannelName `json:"channel"`
	History []domain.Message   `json:"history"`
	Members []string           `json:"members"`
}

type MemberEvent struct {
	Type     string             `json:"type"`
	Channel  domain.ChannelName `json:"channel"`
	Username string             `json:"username"`
}

type MessageEvent struct {
	Type string `json:"type"`
	domain.Message
}

type SentEvent struct {
	Type      string             `json:"type"`
	Channel   domain.ChannelName `json:"channel"`
	ID        string             `json:"id"`
	Sequence  uint64             `json:"sequence"`
	Timestamp time.Time          `json:"timestamp"`
}

type PresenceEvent struct {
	Type     string             `json:"type"`
	Channel  domain.ChannelName `json:"channel,omitempty"`
	Username string             `json:"username"`
	Status   domain.Status      `json:"status"`
}

type StreamEvent struct {
	Type      string             `json:"type"`
	Channel   domain.ChannelName `json:"channel"`
	Publisher string             `json:"publisher"`
}

type ChunkEvent struct {
	Type string `json:"type"`
	domain.StreamChunk
}

type ErrorEvent struct {
	Type  string `json:"type"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

// Encode marshals an event. A nil frame means the event could not be encoded.
func Encode(v any) Frame {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "core.events").Msg("encode event")
		return nil
	}
	return b
}

func NewErrorEvent(err error) ErrorEvent {
	return ErrorEvent{Type: EventError, Code: domain.CodeOf(err), Error: err.Error()}
}

func NewChunkEvent(c domain.StreamChunk) ChunkEvent {
	return ChunkEvent{Type: EventStreamChunk, StreamChunk: c}
}
