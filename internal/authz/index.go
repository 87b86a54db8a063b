package authz

import "time"

// entry is one cached decision. index is its position in the expiry heap.
type entry struct {
	key       Key
	allowed   bool
	createdAt time.Time
	expiresAt time.Time
	seq       uint64
	index     int
}

// expiryIndex is a container/heap ordered by (expiresAt, seq): the root is
// the entry with the nearest expiry, oldest write first among ties.
type expiryIndex []*entry

func (h expiryIndex) Len() int { return len(h) }

func (h expiryIndex) Less(i, j int) bool {
	if h[i].expiresAt.Equal(h[j].expiresAt) {
		return h[i].seq < h[j].seq
	}
	return h[i].expiresAt.Before(h[j].expiresAt)
}

func (h expiryIndex) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *expiryIndex) Push(x interface{}) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *expiryIndex) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

func (h expiryIndex) peek() *entry {
	if len(h) == 0 {
		return nil
	}
	return h[0]
}
