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

// recordOverhead approximates the per-row memory cost beyond its text: the
// Record header, the string headers and the slice slot holding it.
const recordOverhead = 64

// Record is one data row of the input.  Chromosome is a substring of Text,
// so a record costs roughly len(Text) plus recordOverhead bytes.
type Record struct {
	Chromosome string
	Start      int64
	Text       string

	// seq is the position of the row in the input and breaks ties so that
	// the sort is stable across runs.
	seq uint64
}

func (r *Record) size() int64 {
	return int64(len(r.Text)) + recordOverhead
}

// Less orders records by chromosome name, then by numeric start, then by
// input order.
func Less(a, b *Record) bool {
	if a.Chromosome != b.Chromosome {
		return a.Chromosome < b.Chromosome
	}
	if a.Start != b.Start {
		return a.Start < b.Start
	}
	return a.seq < b.seq
}
