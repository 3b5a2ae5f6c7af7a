package chatsession

import (
	"sort"

	"activamigos-chat/internal/models"
)

// buffer is the ordered message list of the active room, indexed by id so
// duplicates from reconnect races are dropped.
type buffer struct {
	msgs []models.ChatMessage
	ids  map[int64]struct{}
}

func newBuffer() *buffer {
	return &buffer{ids: make(map[int64]struct{})}
}

// add appends m unless its id is already present. Live messages arrive in
// server order and are never reordered.
func (b *buffer) add(m models.ChatMessage) bool {
	if _, ok := b.ids[m.ID]; ok {
		return false
	}
	b.ids[m.ID] = struct{}{}
	b.msgs = append(b.msgs, m)
	return true
}

// merge folds a history page into the buffer and restores id order.
func (b *buffer) merge(page []models.ChatMessage) int {
	added := 0
	for _, m := range page {
		if b.add(m) {
			added++
		}
	}
	if added > 0 {
		sort.SliceStable(b.msgs, func(i, j int) bool { return b.msgs[i].ID < b.msgs[j].ID })
	}
	return added
}

func (b *buffer) oldestID() int64 {
	if len(b.msgs) == 0 {
		return 0
	}
	return b.msgs[0].ID
}

func (b *buffer) clear() {
	b.msgs = nil
	b.ids = make(map[int64]struct{})
}

func (b *buffer) snapshot() []models.ChatMessage {
	out := make([]models.ChatMessage, len(b.msgs))
	copy(out, b.msgs)
	return out
}
