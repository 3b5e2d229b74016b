// sim/queue.go
// Copyright(c) 2022-2026 atc contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sim

import (
	"container/heap"
	"log/slog"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

type workItem struct {
	due time.Time
	// seq is both the item's identity and its enqueue order; it is never
	// reused, even across snapshot restores.
	seq   uint64
	fn    func() error
	index int
}

// workQueue is a min-heap ordered by (due, seq).
type workQueue []*workItem

func (q workQueue) Len() int { return len(q) }

func (q workQueue) Less(i, j int) bool {
	if !q[i].due.Equal(q[j].due) {
		return q[i].due.Before(q[j].due)
	}
	return q[i].seq < q[j].seq
}

func (q workQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *workQueue) Push(x any) {
	it := x.(*workItem)
	it.index = len(*q)
	*q = append(*q, it)
}

func (q *workQueue) Pop() any {
	old := *q
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*q = old[:n-1]
	return it
}

// capture returns copies of the pending items; the copies are independent
// of later heap reordering.
func (q workQueue) capture() []workItem {
	items := make([]workItem, len(q))
	for i, it := range q {
		items[i] = workItem{due: it.due, seq: it.seq, fn: it.fn}
	}
	return items
}

func rebuildQueue(items []workItem) (workQueue, map[uint64]*workItem) {
	q := make(workQueue, len(items))
	pending := make(map[uint64]*workItem, len(items))
	for i := range items {
		it := items[i]
		it.index = i
		q[i] = &it
		pending[it.seq] = &it
	}
	heap.Init(&q)
	return q, pending
}

///////////////////////////////////////////////////////////////////////////
// DelayHandle

// DelayHandle identifies a work item scheduled with ScheduleDelay. The zero
// value is valid and refers to nothing.
type DelayHandle struct {
	d  *Domain
	id uint64
}

// Cancel removes the work item from its domain's queue so that its
// callback never runs. Cancel is idempotent and may be called after the
// item has run.
func (h DelayHandle) Cancel() {
	if h.d != nil {
		h.d.cancel(h.id)
	}
}

// Pending reports whether the work item is still queued.
func (h DelayHandle) Pending() bool {
	if h.d == nil {
		return false
	}
	_, ok := h.d.pending[h.id]
	return ok
}

func (h DelayHandle) IsZero() bool {
	return h.d == nil
}

func (h DelayHandle) ID() uint64 {
	return h.id
}

func (h DelayHandle) LogValue() slog.Value {
	return slog.Uint64Value(h.id)
}

func (h DelayHandle) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.EncodeUint(h.id)
}
