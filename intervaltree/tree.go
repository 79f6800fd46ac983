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

// Package intervaltree provides an augmented red-black tree for overlap
// queries over genomic intervals.
//
// Nodes are kept in an arena and referenced by uint32 handles.  Handle 0 is
// reserved as the nil leaf, so the zero value of a child or parent link means
// "none".  Every node additionally tracks the maximum end and minimum start
// over its subtree, which lets a query skip whole subtrees that cannot
// contain an overlapping interval.
package intervaltree

import (
	"github.com/googlegenomics/readtrack/genomics"
)

// Entry is an interval stored in a Tree together with an optional caller
// supplied value.
type Entry struct {
	Interval genomics.Interval
	Value    interface{}
}

type node struct {
	entry Entry
	// max is the largest end and min the smallest start in the subtree
	// rooted at this node.
	max, min            int64
	left, right, parent uint32
	red                 bool
}

// Tree is an insert-only interval tree.  A Tree is not safe for concurrent
// use; callers that share one between goroutines must serialize inserts.
type Tree struct {
	nodes []node
	root  uint32
}

// New returns an empty Tree.
func New() *Tree {
	return &Tree{nodes: make([]node, 1)}
}

// Len returns the number of intervals in the tree.
func (t *Tree) Len() int {
	return len(t.nodes) - 1
}

// Height returns the number of levels in the tree; one node has height 1.
func (t *Tree) Height() int {
	return t.height(t.root)
}

func (t *Tree) height(x uint32) int {
	if x == 0 {
		return 0
	}
	l, r := t.height(t.nodes[x].left), t.height(t.nodes[x].right)
	if l > r {
		return l + 1
	}
	return r + 1
}

// Insert adds iv to the tree.
func (t *Tree) Insert(iv genomics.Interval) {
	t.InsertValue(iv, nil)
}

// InsertValue adds iv to the tree and associates value with it.  Duplicate
// intervals are kept as separate entries.
func (t *Tree) InsertValue(iv genomics.Interval, value interface{}) {
	z := uint32(len(t.nodes))
	t.nodes = append(t.nodes, node{
		entry: Entry{iv, value},
		max:   iv.End(),
		min:   iv.Start(),
		red:   true,
	})

	var parent uint32
	for x := t.root; x != 0; {
		parent = x
		if iv.Start() < t.nodes[x].entry.Interval.Start() {
			x = t.nodes[x].left
		} else {
			x = t.nodes[x].right
		}
	}

	t.nodes[z].parent = parent
	switch {
	case parent == 0:
		t.root = z
	case iv.Start() < t.nodes[parent].entry.Interval.Start():
		t.nodes[parent].left = z
	default:
		t.nodes[parent].right = z
	}
	for p := parent; p != 0; p = t.nodes[p].parent {
		t.update(p)
	}

	t.insertFixup(z)
}

// update recomputes the subtree aggregates of x from its children.
func (t *Tree) update(x uint32) {
	n := &t.nodes[x]
	n.max, n.min = n.entry.Interval.End(), n.entry.Interval.Start()
	for _, c := range [2]uint32{n.left, n.right} {
		if c == 0 {
			continue
		}
		if t.nodes[c].max > n.max {
			n.max = t.nodes[c].max
		}
		if t.nodes[c].min < n.min {
			n.min = t.nodes[c].min
		}
	}
}

func (t *Tree) isRed(x uint32) bool {
	return x != 0 && t.nodes[x].red
}

func (t *Tree) insertFixup(z uint32) {
	for z != t.root && t.isRed(t.nodes[z].parent) {
		p := t.nodes[z].parent
		g := t.nodes[p].parent
		left := p == t.nodes[g].left

		uncle := t.nodes[g].left
		if left {
			uncle = t.nodes[g].right
		}
		if t.isRed(uncle) {
			t.nodes[p].red = false
			t.nodes[uncle].red = false
			t.nodes[g].red = true
			z = g
			continue
		}

		// Rotate an inner grandchild to the outside first.
		if left && z == t.nodes[p].right {
			z = p
			t.rotate(z, true)
		} else if !left && z == t.nodes[p].left {
			z = p
			t.rotate(z, false)
		}
		p = t.nodes[z].parent
		t.nodes[p].red = false
		t.nodes[g].red = true
		t.rotate(g, !left)
	}
	t.nodes[t.root].red = false
}

// rotate performs a tree rotation around pivot.  A left rotation moves pivot
// below its right child:
//
//	  X              Y
//	A   Y    =>    X   C
//	   B C        A B
//
// and a right rotation is its mirror image.
func (t *Tree) rotate(pivot uint32, isLeft bool) {
	nodes := t.nodes

	var child, inner uint32
	if isLeft {
		child = nodes[pivot].right
		inner = nodes[child].left
		nodes[pivot].right = inner
	} else {
		child = nodes[pivot].left
		inner = nodes[child].right
		nodes[pivot].left = inner
	}
	if inner != 0 {
		nodes[inner].parent = pivot
	}

	parent := nodes[pivot].parent
	nodes[child].parent = parent
	switch {
	case parent == 0:
		t.root = child
	case nodes[parent].left == pivot:
		nodes[parent].left = child
	default:
		nodes[parent].right = child
	}

	if isLeft {
		nodes[child].left = pivot
	} else {
		nodes[child].right = pivot
	}
	nodes[pivot].parent = child

	t.update(pivot)
	t.update(child)
}

// Visit calls fn for every stored interval overlapping q, in ascending order
// of start.  Visiting stops early when fn returns false.
func (t *Tree) Visit(q genomics.Interval, fn func(Entry) bool) {
	t.visit(t.root, q, fn)
}

func (t *Tree) visit(x uint32, q genomics.Interval, fn func(Entry) bool) bool {
	if x == 0 {
		return true
	}
	n := &t.nodes[x]
	if n.max < q.Start() || n.min > q.End() {
		return true
	}
	if !t.visit(n.left, q, fn) {
		return false
	}
	if n.entry.Interval.Overlaps(q) && !fn(n.entry) {
		return false
	}
	return t.visit(n.right, q, fn)
}

// FindOverlapping returns every stored interval that shares at least one
// position with q.
func (t *Tree) FindOverlapping(q genomics.Interval) []genomics.Interval {
	var result []genomics.Interval
	t.Visit(q, func(e Entry) bool {
		result = append(result, e.Interval)
		return true
	})
	return result
}

// Overlapping returns the entries, values included, that overlap q.
func (t *Tree) Overlapping(q genomics.Interval) []Entry {
	var result []Entry
	t.Visit(q, func(e Entry) bool {
		result = append(result, e)
		return true
	})
	return result
}
