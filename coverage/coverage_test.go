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
	"bytes"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/googlegenomics/readtrack/genomics"
	"github.com/googlegenomics/readtrack/sampler"
)

func mustRegion(t *testing.T, chromosome string, start, end int64) genomics.Region {
	t.Helper()
	region, err := genomics.NewRegion(chromosome, start, end)
	require.NoError(t, err)
	return region
}

func TestCounter_MatchesBruteForce(t *testing.T) {
	region := mustRegion(t, "chr1", 100, 300)
	c, err := NewCounter(region, 1)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(5))
	depth := make(map[int64]int)
	for i := 0; i < 200; i++ {
		start := int64(rng.Intn(400))
		iv := genomics.MustInterval(start, start+int64(rng.Intn(50)))
		c.Add(iv)
		for pos := iv.Start(); pos <= iv.End(); pos++ {
			depth[pos]++
		}
	}
	for pos := int64(0); pos < 400; pos++ {
		want := float64(depth[pos])
		if !region.Contains(pos) {
			want = 0
		}
		assert.Equal(t, want, c.At(pos), "position %d", pos)
	}
}

func TestCounter_Bins(t *testing.T) {
	c, err := NewCounter(mustRegion(t, "chr1", 1, 25), 10)
	require.NoError(t, err)
	c.Add(genomics.MustInterval(1, 5))
	c.Add(genomics.MustInterval(21, 40))

	assert.Equal(t, 0.5, c.At(3))
	assert.Equal(t, 0.0, c.At(15))
	// The last bin only spans 21-25.
	assert.Equal(t, 1.0, c.At(25))
	assert.Equal(t, 0.0, c.At(26))
	assert.InDelta(t, 0.5, c.Mean(genomics.MustInterval(1, 10)), 1e-9)
	assert.InDelta(t, (5*0.5+10*0.0+5*1.0)/20, c.Mean(genomics.MustInterval(6, 25)), 1e-9)
	assert.Equal(t, 0.0, c.Mean(genomics.MustInterval(100, 200)))
}

func TestCounter_AddBlock(t *testing.T) {
	c, err := NewCounter(mustRegion(t, "chr1", 1, 100), 1)
	require.NoError(t, err)
	// Four elided records of length 25 over 50 bases add depth 2.
	require.NoError(t, c.AddBlock(sampler.CoverageBlock{Start: 1, End: 50, ElidedCount: 4}, 25))
	assert.Equal(t, 2.0, c.At(1))
	assert.Equal(t, 2.0, c.At(50))
	assert.Equal(t, 0.0, c.At(51))
	assert.Error(t, c.AddBlock(sampler.CoverageBlock{Start: 10, End: 5}, 1))
}

func TestNewCounter_Errors(t *testing.T) {
	_, err := NewCounter(mustRegion(t, "chr1", 1, 100), 0)
	assert.Error(t, err)
	whole, err := genomics.ParseRegion("chr1")
	require.NoError(t, err)
	_, err = NewCounter(whole, 1)
	assert.Error(t, err)
}

func TestCounter_WriteWiggle(t *testing.T) {
	c, err := NewCounter(mustRegion(t, "chr2", 0, 29), 10)
	require.NoError(t, err)
	c.Add(genomics.MustInterval(0, 9))
	c.Add(genomics.MustInterval(25, 29))

	var buf bytes.Buffer
	require.NoError(t, c.WriteWiggle(&buf, "depth", true))
	assert.Equal(t, "track type=wiggle_0 name=\"depth\"\n"+
		"variableStep chrom=chr2 span=10\n"+
		"1 1\n"+
		"21 0.5\n", buf.String())
}

func TestWriteBedGraph(t *testing.T) {
	blocks := []sampler.CoverageBlock{{Start: 1, End: 1000, ElidedCount: 4}, {Start: 2001, End: 2500, ElidedCount: 1}}
	testCases := []struct {
		zeroBased bool
		want      string
	}{
		{false, "chr1\t0\t1000\t4\nchr1\t2000\t2500\t1\n"},
		{true, "chr1\t1\t1001\t4\nchr1\t2001\t2501\t1\n"},
	}
	for _, tc := range testCases {
		var buf bytes.Buffer
		require.NoError(t, WriteBedGraph(&buf, "chr1", blocks, tc.zeroBased))
		assert.Equal(t, tc.want, buf.String())
	}
}

func TestWriteBedGraph_Length(t *testing.T) {
	// A 1-based block [1, 1000] covers exactly 1000 bases.
	var buf bytes.Buffer
	require.NoError(t, WriteBedGraph(&buf, "chr1", []sampler.CoverageBlock{{Start: 1, End: 1000, ElidedCount: 2}}, false))
	var chrom string
	var start, end, count int64
	_, err := fmt.Sscanf(buf.String(), "%s\t%d\t%d\t%d\n", &chrom, &start, &end, &count)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), end-start)
}

type read struct{ start, end int64 }

func (r read) Start() int64 { return r.start }
func (r read) End() int64   { return r.end }

func TestEmitter(t *testing.T) {
	region := mustRegion(t, "chr1", 1, 30)
	counter, err := NewCounter(region, 1)
	require.NoError(t, err)
	var records, cov bytes.Buffer
	e := &Emitter{Records: &records, Coverage: &cov, Chromosome: "chr1", ZeroBased: true, Counter: counter}

	s, err := sampler.New(sampler.Config{
		FrameSize: 10,
		Cap:       1,
		Rand:      rand.New(rand.NewSource(1)),
	}, e)
	require.NoError(t, err)
	f, err := genomics.BEDColumns.Parse("chr1\t0\t2\tfeature")
	require.NoError(t, err)
	require.NoError(t, s.Add(f))
	require.NoError(t, s.Add(read{1, 2}))
	require.NoError(t, s.Add(read{15, 16}))
	require.NoError(t, s.Finish())

	// One of the two records in the first frame is kept.
	lines := bytes.Count(records.Bytes(), []byte("\n"))
	assert.Equal(t, 2, lines)
	assert.Contains(t, records.String(), "chr1\t15\t17\n")
	assert.Equal(t, "chr1\t0\t10\t1\n", cov.String())
	assert.Equal(t, 1.0, counter.At(15))
	assert.True(t, counter.At(5) > 0)
}

func TestEmitter_RecordRow(t *testing.T) {
	testCases := []struct {
		zeroBased bool
		want      string
	}{
		{false, "chr1\t14\t16\n"},
		{true, "chr1\t15\t17\n"},
	}
	for _, tc := range testCases {
		var records bytes.Buffer
		e := &Emitter{Records: &records, Chromosome: "chr1", ZeroBased: tc.zeroBased}
		require.NoError(t, e.WriteRecord(read{15, 16}))
		assert.Equal(t, tc.want, records.String())
	}
}
