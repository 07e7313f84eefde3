package funnel

import "sync"

// dedupeWindow remembers the last N processed update IDs per bot so a
// redelivered transport update is acknowledged without re-running steps.
type dedupeWindow struct {
	mu    sync.Mutex
	size  int
	seen  map[string]map[int64]struct{}
	order map[string][]int64
}

func newDedupeWindow(size int) *dedupeWindow {
	if size <= 0 {
		size = 64
	}
	return &dedupeWindow{
		size:  size,
		seen:  make(map[string]map[int64]struct{}),
		order: make(map[string][]int64),
	}
}

// remember records the ID and reports whether it was already present.
func (d *dedupeWindow) remember(botID string, id int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	ids, ok := d.seen[botID]
	if !ok {
		ids = make(map[int64]struct{}, d.size)
		d.seen[botID] = ids
	}
	if _, dup := ids[id]; dup {
		return true
	}

	ids[id] = struct{}{}
	d.order[botID] = append(d.order[botID], id)
	if len(d.order[botID]) > d.size {
		oldest := d.order[botID][0]
		d.order[botID] = d.order[botID][1:]
		delete(ids, oldest)
	}
	return false
}
