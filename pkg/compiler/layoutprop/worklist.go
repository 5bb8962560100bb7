// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package layoutprop

import (
	"fmt"

	"github.com/gammazero/deque"
	"github.com/gomlx/npucompiler/pkg/core/graph"
	"github.com/gomlx/npucompiler/pkg/core/layout"
)

// item of the worklist: a candidate layout arriving at a slot.
type item struct {
	// slot where the candidate arrives. Its node is the target of the item.
	slot graph.SlotRef

	// dir of the walk when the item was created.
	dir graph.Direction

	candidate   layout.Layout
	reshapeType string

	// from is the slot that enqueued the item, or graph.InvalidSlotRef for seeds. The walk never goes back to it.
	from graph.SlotRef
}

func (it item) String() string {
	rt := it.reshapeType
	if rt == "" {
		rt = "-"
	}
	return fmt.Sprintf("%s %s %s rt=%s from %s", it.dir, it.slot, it.candidate, rt, it.from)
}

// worklist is a double-ended queue of items: ordinary items are processed in FIFO order, while urgent items
// (the fan-out of a weight that just took a layout) jump to the front.
type worklist struct {
	queue deque.Deque[item]

	// pushed counts all items ever pushed, for statistics.
	pushed int
}

func (w *worklist) push(it item) {
	w.queue.PushBack(it)
	w.pushed++
}

func (w *worklist) pushFront(it item) {
	w.queue.PushFront(it)
	w.pushed++
}

func (w *worklist) pop() (item, bool) {
	if w.queue.Len() == 0 {
		return item{}, false
	}
	return w.queue.PopFront(), true
}

func (w *worklist) len() int {
	return w.queue.Len()
}
