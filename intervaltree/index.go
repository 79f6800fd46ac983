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

package intervaltree

import (
	"bufio"
	"io"
	"sort"

	"github.com/cockroachdb/errors"

	"github.com/googlegenomics/readtrack/genomics"
)

// maxLineSize bounds the length of a single feature row.
const maxLineSize = 16 << 20

// Index is a set of interval trees, one per chromosome.
type Index struct {
	trees map[string]*Tree
	count int
}

// NewIndex returns an empty Index.
func NewIndex() *Index {
	return &Index{trees: make(map[string]*Tree)}
}

// Insert adds iv on chromosome to the index.
func (idx *Index) Insert(chromosome string, iv genomics.Interval, value interface{}) {
	tree, ok := idx.trees[chromosome]
	if !ok {
		tree = New()
		idx.trees[chromosome] = tree
	}
	tree.InsertValue(iv, value)
	idx.count++
}

// Len returns the number of intervals across all chromosomes.
func (idx *Index) Len() int {
	return idx.count
}

// Chromosomes returns the indexed chromosome names in sorted order.
func (idx *Index) Chromosomes() []string {
	names := make([]string, 0, len(idx.trees))
	for name := range idx.trees {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Overlapping returns the entries on chromosome that overlap q.
func (idx *Index) Overlapping(chromosome string, q genomics.Interval) []Entry {
	tree, ok := idx.trees[chromosome]
	if !ok {
		return nil
	}
	return tree.Overlapping(q)
}

// BuildIndex reads tab-delimited feature rows from r and indexes them by the
// key columns described by cols.  Header and comment lines are skipped.  Each
// entry's Value is the parsed genomics.Feature.
func BuildIndex(r io.Reader, cols genomics.Columns) (*Index, error) {
	idx := NewIndex()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for line := 1; scanner.Scan(); line++ {
		text := scanner.Text()
		if genomics.IsHeader(text) {
			continue
		}
		feature, err := cols.Parse(text)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", line)
		}
		idx.Insert(feature.Chromosome, feature.Interval, feature)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading features")
	}
	return idx, nil
}
