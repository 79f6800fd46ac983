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

// Package coverage accumulates read depth over a region and writes it, or
// the coverage blocks produced by a sampler, as bedGraph and wiggle tracks.
package coverage

import (
	"bufio"
	"fmt"
	"io"

	"github.com/cockroachdb/errors"

	"github.com/googlegenomics/readtrack/genomics"
	"github.com/googlegenomics/readtrack/sampler"
)

// MaximumBins bounds the memory used by a single Counter.
const MaximumBins = 1 << 26

// Counter holds the depth of coverage over one region in fixed-size bins.
// Each bin stores the number of covered bases, so At returns the mean depth
// across the bin containing a position.
type Counter struct {
	region  genomics.Region
	binSize int64
	bases   []float64
}

// NewCounter returns an empty Counter for region.
func NewCounter(region genomics.Region, binSize int64) (*Counter, error) {
	if binSize <= 0 {
		return nil, errors.Newf("bin size %d must be positive", binSize)
	}
	n := (region.Len()-1)/binSize + 1
	if region.Len() <= 0 || n > MaximumBins {
		return nil, errors.Newf("region %s needs too many bins of size %d", region, binSize)
	}
	return &Counter{region: region, binSize: binSize, bases: make([]float64, n)}, nil
}

// Region returns the region covered by c.
func (c *Counter) Region() genomics.Region {
	return c.region
}

func (c *Counter) binStart(i int) int64 {
	return c.region.Start() + int64(i)*c.binSize
}

func (c *Counter) binEnd(i int) int64 {
	end := c.binStart(i) + c.binSize - 1
	if end > c.region.End() {
		end = c.region.End()
	}
	return end
}

// spread adds depth to every base of iv that lies within the region.
func (c *Counter) spread(iv genomics.Interval, depth float64) {
	if !iv.Overlaps(c.region.Interval) {
		return
	}
	start, end := iv.Start(), iv.End()
	if start < c.region.Start() {
		start = c.region.Start()
	}
	if end > c.region.End() {
		end = c.region.End()
	}
	for i := int((start - c.region.Start()) / c.binSize); i < len(c.bases); i++ {
		from, to := c.binStart(i), c.binEnd(i)
		if from > end {
			break
		}
		if from < start {
			from = start
		}
		if to > end {
			to = end
		}
		c.bases[i] += float64(to-from+1) * depth
	}
}

// Add counts one record covering iv.
func (c *Counter) Add(iv genomics.Interval) {
	c.spread(iv, 1)
}

// AddBlock accounts for the records elided from a sampled frame, assuming
// each covered recordLength bases.  Their bases are spread evenly across the
// block.
func (c *Counter) AddBlock(block sampler.CoverageBlock, recordLength int64) error {
	iv, err := genomics.NewInterval(block.Start, block.End)
	if err != nil {
		return err
	}
	depth := float64(block.ElidedCount) * float64(recordLength) / float64(iv.Len())
	c.spread(iv, depth)
	return nil
}

func (c *Counter) bin(pos int64) (int, bool) {
	if !c.region.Contains(pos) {
		return 0, false
	}
	return int((pos - c.region.Start()) / c.binSize), true
}

func (c *Counter) depth(i int) float64 {
	return c.bases[i] / float64(c.binEnd(i)-c.binStart(i)+1)
}

// At returns the depth at pos, or zero outside the region.
func (c *Counter) At(pos int64) float64 {
	i, ok := c.bin(pos)
	if !ok {
		return 0
	}
	return c.depth(i)
}

// Mean returns the mean depth over the part of iv inside the region.
func (c *Counter) Mean(iv genomics.Interval) float64 {
	var sum, n float64
	for i := range c.bases {
		from, to := c.binStart(i), c.binEnd(i)
		if from > iv.End() {
			break
		}
		if to < iv.Start() {
			continue
		}
		if from < iv.Start() {
			from = iv.Start()
		}
		if to > iv.End() {
			to = iv.End()
		}
		sum += c.depth(i) * float64(to-from+1)
		n += float64(to - from + 1)
	}
	if n == 0 {
		return 0
	}
	return sum / n
}

// WriteWiggle writes the non-empty bins of c as a variableStep wiggle track.
// Wiggle positions are 1-based; set zeroBased when c holds 0-based
// coordinates.
func (c *Counter) WriteWiggle(w io.Writer, name string, zeroBased bool) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "track type=wiggle_0 name=\"%s\"\n", name)
	fmt.Fprintf(bw, "variableStep chrom=%s span=%d\n", c.region.Chromosome, c.binSize)
	var offset int64
	if zeroBased {
		offset = 1
	}
	for i := range c.bases {
		if c.bases[i] == 0 {
			continue
		}
		fmt.Fprintf(bw, "%d %g\n", c.binStart(i)+offset, c.depth(i))
	}
	return bw.Flush()
}
