package domain

import "fmt"

type ChunkKind string

const (
	ChunkAudio   ChunkKind = "audio"
	ChunkVideo   ChunkKind = "video"
	ChunkControl ChunkKind = "control"
)

func ParseChunkKind(s string) (ChunkKind, error) {
	switch ChunkKind(s) {
	case ChunkAudio, ChunkVideo, ChunkControl:
		return ChunkKind(s), nil
	default:
		return "", fmt.Errorf("invalid chunk kind %q", s)
	}
}

// StreamChunk is an ephemeral unit of livestream data, never stored.
type StreamChunk struct {
	Publisher string      `json:"publisher"`
	Channel   ChannelName `json:"channel"`
	Sequence  uint64      `json:"sequence"`
	Kind      ChunkKind   `json:"kind"`
	Payload   []byte      `json:"payload,omitempty"`
	End       bool        `json:"end,omitempty"`
}
