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

package genomics

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// ErrInvalidRegion is returned when a region string cannot be parsed.
var ErrInvalidRegion = errors.New("invalid region")

// maxCoordinate is the end of a region that extends to the end of its
// chromosome.
const maxCoordinate = math.MaxInt64

// Region defines a region of genomic interest on a single chromosome.
// Coordinates are 1-based and inclusive, as written by genome browsers.
type Region struct {
	Chromosome string
	Interval
}

// NewRegion returns the region [start, end] on chromosome.
func NewRegion(chromosome string, start, end int64) (Region, error) {
	if chromosome == "" {
		return Region{}, errors.Wrap(ErrInvalidRegion, "no chromosome specified")
	}
	iv, err := NewInterval(start, end)
	if err != nil {
		return Region{}, errors.Mark(err, ErrInvalidRegion)
	}
	return Region{chromosome, iv}, nil
}

// ParseRegion parses strings of the form "chr1", "chr1:100" and
// "chr1:1,000-2,000".  A bare chromosome name covers the whole chromosome and
// a single position covers only itself.
func ParseRegion(s string) (Region, error) {
	s = strings.TrimSpace(s)
	colon := strings.LastIndexByte(s, ':')
	if colon < 0 {
		return NewRegion(s, 1, maxCoordinate)
	}

	name, span := s[:colon], strings.Replace(s[colon+1:], ",", "", -1)
	if span == "" {
		return Region{}, errors.Wrapf(ErrInvalidRegion, "%q: empty range", s)
	}

	from, to := span, span
	if dash := strings.IndexByte(span, '-'); dash >= 0 {
		from, to = span[:dash], span[dash+1:]
	}

	start, err := strconv.ParseInt(from, 10, 64)
	if err != nil {
		return Region{}, errors.Wrapf(ErrInvalidRegion, "%q: parsing start: %v", s, err)
	}
	end, err := strconv.ParseInt(to, 10, 64)
	if err != nil {
		return Region{}, errors.Wrapf(ErrInvalidRegion, "%q: parsing end: %v", s, err)
	}
	if start < 1 {
		return Region{}, errors.Wrapf(ErrInvalidRegion, "%q: start must be positive", s)
	}
	return NewRegion(name, start, end)
}

func (region Region) String() string {
	return fmt.Sprintf("%s:%d-%d", region.Chromosome, region.Start(), region.End())
}
