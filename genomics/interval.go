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

// Package genomics contains definitions related to genomic coordinates,
// intervals and position-tagged feature rows.
package genomics

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// ErrInvalidInterval is returned when an interval would start after it ends.
var ErrInvalidInterval = errors.New("invalid interval")

// Interval is an immutable, closed range of genomic coordinates.  Both Start
// and End are inclusive.  The zero value is the single base interval [0, 0].
type Interval struct {
	start, end int64
}

// NewInterval returns the interval [start, end] or ErrInvalidInterval when
// start > end.
func NewInterval(start, end int64) (Interval, error) {
	if start > end {
		return Interval{}, errors.Wrapf(ErrInvalidInterval, "start %d > end %d", start, end)
	}
	return Interval{start, end}, nil
}

// MustInterval is like NewInterval but panics on an invalid interval.  It is
// intended for constants and tests.
func MustInterval(start, end int64) Interval {
	iv, err := NewInterval(start, end)
	if err != nil {
		panic(err)
	}
	return iv
}

// Start returns the first position covered by the interval.
func (iv Interval) Start() int64 { return iv.start }

// End returns the last position covered by the interval.
func (iv Interval) End() int64 { return iv.end }

// Len returns the number of positions covered by the interval.
func (iv Interval) Len() int64 { return iv.end - iv.start + 1 }

// Overlaps reports whether iv and other share at least one position.
func (iv Interval) Overlaps(other Interval) bool {
	return iv.start <= other.end && iv.end >= other.start
}

// Contains reports whether pos lies inside iv.
func (iv Interval) Contains(pos int64) bool {
	return iv.start <= pos && pos <= iv.end
}

// Less orders intervals by start, then by end.
func (iv Interval) Less(other Interval) bool {
	if iv.start != other.start {
		return iv.start < other.start
	}
	return iv.end < other.end
}

func (iv Interval) String() string {
	return fmt.Sprintf("[%d, %d]", iv.start, iv.end)
}
