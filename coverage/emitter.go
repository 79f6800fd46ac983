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

package coverage

import (
	"bufio"
	"fmt"
	"io"

	"github.com/cockroachdb/errors"

	"github.com/googlegenomics/readtrack/genomics"
	"github.com/googlegenomics/readtrack/sampler"
)

// halfOpen converts an inclusive [start, end] to 0-based half-open bounds.
func halfOpen(start, end int64, zeroBased bool) (int64, int64) {
	if zeroBased {
		return start, end + 1
	}
	return start - 1, end
}

func writeBedGraphRow(w io.Writer, chromosome string, block sampler.CoverageBlock, zeroBased bool) error {
	start, end := halfOpen(block.Start, block.End, zeroBased)
	_, err := fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", chromosome, start, end, block.ElidedCount)
	return err
}

// WriteBedGraph writes blocks as bedGraph rows whose value is the elided
// record count.  bedGraph intervals are 0-based and half-open; set zeroBased
// when the blocks hold 0-based coordinates.
func WriteBedGraph(w io.Writer, chromosome string, blocks []sampler.CoverageBlock, zeroBased bool) error {
	bw := bufio.NewWriter(w)
	for _, block := range blocks {
		if err := writeBedGraphRow(bw, chromosome, block, zeroBased); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Emitter is a sampler sink that writes kept records to Records and coverage
// blocks to Coverage as bedGraph rows.  Either writer may be nil.  When
// Counter is set, kept records and elided blocks are also counted into it;
// elided records are assumed to be as long as the mean kept record.
type Emitter struct {
	Records    io.Writer
	Coverage   io.Writer
	Chromosome string
	ZeroBased  bool
	Counter    *Counter

	kept      int64
	keptBases int64
}

// WriteRecord writes the row text of features and a three column BED row,
// 0-based and half-open, for any other record.
func (e *Emitter) WriteRecord(r sampler.Record) error {
	e.kept++
	e.keptBases += r.End() - r.Start() + 1
	if e.Counter != nil {
		iv, err := genomics.NewInterval(r.Start(), r.End())
		if err != nil {
			return err
		}
		e.Counter.Add(iv)
	}
	if e.Records == nil {
		return nil
	}
	var err error
	switch f := r.(type) {
	case genomics.Feature:
		_, err = io.WriteString(e.Records, f.Text+"\n")
	case *genomics.Feature:
		_, err = io.WriteString(e.Records, f.Text+"\n")
	default:
		start, end := halfOpen(r.Start(), r.End(), e.ZeroBased)
		_, err = fmt.Fprintf(e.Records, "%s\t%d\t%d\n", e.Chromosome, start, end)
	}
	return errors.Wrap(err, "writing record")
}

// WriteCoverage implements sampler.CoverageSink.
func (e *Emitter) WriteCoverage(block sampler.CoverageBlock) error {
	if e.Counter != nil {
		length := int64(1)
		if e.kept > 0 {
			length = e.keptBases / e.kept
		}
		if err := e.Counter.AddBlock(block, length); err != nil {
			return err
		}
	}
	if e.Coverage == nil {
		return nil
	}
	return errors.Wrap(writeBedGraphRow(e.Coverage, e.Chromosome, block, e.ZeroBased), "writing coverage")
}
