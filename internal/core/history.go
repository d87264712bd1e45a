package core

import "github.com/dkeye/Chatter/internal/domain"

// history is a fixed-capacity FIFO of messages. Not safe for concurrent use;
// the owning channel serializes access.
type history struct {
	buf   []domain.Message
	start int
	size  int
}

func newHistory(capacity int) *history {
	if capacity < 0 {
		capacity = 0
	}
	return &history{buf: make([]domain.Message, capacity)}
}

func (h *history) capacity() int { return len(h.buf) }
func (h *history) len() int      { return h.size }

// push appends m, evicting the oldest entry at capacity.
func (h *history) push(m domain.Message) {
	c := len(h.buf)
	if c == 0 {
		return
	}
	if h.size < c {
		h.buf[(h.start+h.size)%c] = m
		h.size++
		return
	}
	h.buf[h.start] = m
	h.start = (h.start + 1) % c
}

func (h *history) at(i int) domain.Message {
	return h.buf[(h.start+i)%len(h.buf)]
}

// slice returns messages oldest to newest.
// With since > 0 it pages forward: up to limit messages with Sequence > since.
// With since == 0 it returns the newest limit messages.
// limit <= 0 means no limit.
func (h *history) slice(since uint64, limit int) []domain.Message {
	first := 0
	if since > 0 {
		for first < h.size && h.at(first).Sequence <= since {
			first++
		}
	}
	n := h.size - first
	if limit > 0 && n > limit {
		if since == 0 {
			first = h.size - limit
		}
		n = limit
	}
	out := make([]domain.Message, 0, n)
	for i := first; i < first+n; i++ {
		out = append(out, h.at(i))
	}
	return out
}
