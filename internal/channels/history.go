package channels

import (
	"sync"

	"github.com/nextlevelbuilder/squabble/internal/bus"
)

// HistoryRecorder keeps the most recent messages per conversation for transports
// whose APIs cannot page history. Each conversation holds at most size entries;
// at most maxConversations conversations are tracked (least recently written evicted).
type HistoryRecorder struct {
	mu               sync.Mutex
	size             int
	maxConversations int
	rings            map[string]*ring
	tick             uint64
}

type ring struct {
	entries []bus.HistoryEntry
	next    int
	full    bool
	touched uint64
}

// NewHistoryRecorder creates a recorder keeping size messages per conversation.
func NewHistoryRecorder(size, maxConversations int) *HistoryRecorder {
	if size <= 0 {
		size = 100
	}
	if maxConversations <= 0 {
		maxConversations = 1000
	}
	return &HistoryRecorder{
		size:             size,
		maxConversations: maxConversations,
		rings:            make(map[string]*ring),
	}
}

// Record appends an entry to a conversation.
func (h *HistoryRecorder) Record(chatID string, e bus.HistoryEntry) {
	if chatID == "" || e.ID == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rings[chatID]
	if !ok {
		if len(h.rings) >= h.maxConversations {
			h.evictOldest()
		}
		r = &ring{entries: make([]bus.HistoryEntry, h.size)}
		h.rings[chatID] = r
	}
	h.tick++
	r.touched = h.tick
	r.entries[r.next] = e
	r.next = (r.next + 1) % h.size
	if r.next == 0 {
		r.full = true
	}
}

// Recent returns up to limit entries, newest first.
func (h *HistoryRecorder) Recent(chatID string, limit int) []bus.HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rings[chatID]
	if !ok {
		return nil
	}
	n := r.next
	if r.full {
		n = h.size
	}
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]bus.HistoryEntry, 0, limit)
	idx := r.next
	for i := 0; i < limit; i++ {
		idx = (idx - 1 + h.size) % h.size
		out = append(out, r.entries[idx])
	}
	return out
}

func (h *HistoryRecorder) evictOldest() {
	var oldestKey string
	var oldest uint64
	for k, r := range h.rings {
		if oldestKey == "" || r.touched < oldest {
			oldestKey, oldest = k, r.touched
		}
	}
	delete(h.rings, oldestKey)
}
