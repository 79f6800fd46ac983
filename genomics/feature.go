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
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// ErrMalformedRow is returned when a feature row is missing a key column or
// carries a non-numeric coordinate.
var ErrMalformedRow = errors.New("malformed row")

// Columns locates the key fields of a tab-delimited feature row.  Column
// indices are 0-based.
type Columns struct {
	Chromosome int
	Start      int
	// End is the column holding the last coordinate.  A negative value means
	// the row describes a single position.
	End int
	// HalfOpen is set for 0-based, end-exclusive rows such as BED.
	HalfOpen bool
}

// BEDColumns describes BED-like rows: chrom, chromStart, chromEnd.
var BEDColumns = Columns{Chromosome: 0, Start: 1, End: 2, HalfOpen: true}

// Feature is one position-tagged row of a feature file.  The original row
// text is kept so it can be written back unchanged.
type Feature struct {
	Chromosome string
	Interval
	Text string
}

// IsHeader reports whether line is a header, comment or blank line rather
// than a data row.
func IsHeader(line string) bool {
	return line == "" ||
		strings.HasPrefix(line, "#") ||
		strings.HasPrefix(line, "track") ||
		strings.HasPrefix(line, "browser")
}

// field returns the i-th tab separated field of line without splitting the
// whole row.
func field(line string, i int) (string, bool) {
	for ; i > 0; i-- {
		tab := strings.IndexByte(line, '\t')
		if tab < 0 {
			return "", false
		}
		line = line[tab+1:]
	}
	if tab := strings.IndexByte(line, '\t'); tab >= 0 {
		line = line[:tab]
	}
	return strings.TrimRight(line, "\r"), true
}

func parseCoordinate(line string, column int, what string) (int64, error) {
	s, ok := field(line, column)
	if !ok {
		return 0, errors.Wrapf(ErrMalformedRow, "missing %s column %d", what, column)
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(ErrMalformedRow, "parsing %s %q", what, s)
	}
	return v, nil
}

// Key extracts the sort key (chromosome, start) of line.
func (c Columns) Key(line string) (string, int64, error) {
	chromosome, ok := field(line, c.Chromosome)
	if !ok || chromosome == "" {
		return "", 0, errors.Wrapf(ErrMalformedRow, "missing chromosome column %d", c.Chromosome)
	}
	start, err := parseCoordinate(line, c.Start, "start")
	if err != nil {
		return "", 0, err
	}
	return chromosome, start, nil
}

// Parse extracts a Feature from line.  For half-open rows the end coordinate
// is converted to an inclusive one; zero-length features cover their start
// position.
func (c Columns) Parse(line string) (Feature, error) {
	chromosome, start, err := c.Key(line)
	if err != nil {
		return Feature{}, err
	}

	end := start
	if c.End >= 0 {
		if end, err = parseCoordinate(line, c.End, "end"); err != nil {
			return Feature{}, err
		}
		if c.HalfOpen {
			end--
		}
		if end < start {
			if !c.HalfOpen || end != start-1 {
				return Feature{}, errors.Wrapf(ErrMalformedRow, "end precedes start %d", start)
			}
			end = start
		}
	}
	return Feature{chromosome, Interval{start, end}, line}, nil
}

// Query converts a 1-based inclusive region into the coordinate system of
// rows described by c.
func (c Columns) Query(region Region) Interval {
	if !c.HalfOpen {
		return region.Interval
	}
	end := region.End()
	if end != maxCoordinate {
		end--
	}
	return Interval{region.Start() - 1, end}
}
