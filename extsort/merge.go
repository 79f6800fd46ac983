// Copyright 2018 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package extsort

import (
	"container/heap"
)

// cursor is one sorted input of the merge: a spilled run or the in-memory
// remainder.
type cursor interface {
	next(r *Record) (bool, error)
}

type sliceCursor struct {
	records []Record
}

func (c *sliceCursor) next(r *Record) (bool, error) {
	if len(c.records) == 0 {
		return false, nil
	}
	*r = c.records[0]
	c.records = c.records[1:]
	return true, nil
}

type mergeItem struct {
	head   Record
	source cursor
}

type mergeHeap []*mergeItem

func (h mergeHeap) Len() int            { return len(h) }
func (h mergeHeap) Less(i, j int) bool  { return Less(&h[i].head, &h[j].head) }
func (h mergeHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *mergeHeap) Push(x interface{}) { *h = append(*h, x.(*mergeItem)) }
func (h *mergeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// merger yields the records of several sorted cursors in global order.
type merger struct {
	h mergeHeap
}

func newMerger(sources []cursor) (*merger, error) {
	m := &merger{h: make(mergeHeap, 0, len(sources))}
	for _, src := range sources {
		item := &mergeItem{source: src}
		ok, err := src.next(&item.head)
		if err != nil {
			return nil, err
		}
		if ok {
			m.h = append(m.h, item)
		}
	}
	heap.Init(&m.h)
	return m, nil
}

// next stores the smallest remaining record in r.
func (m *merger) next(r *Record) (bool, error) {
	if len(m.h) == 0 {
		return false, nil
	}
	top := m.h[0]
	*r = top.head
	ok, err := top.source.next(&top.head)
	if err != nil {
		return false, err
	}
	if ok {
		heap.Fix(&m.h, 0)
	} else {
		heap.Pop(&m.h)
	}
	return true, nil
}
