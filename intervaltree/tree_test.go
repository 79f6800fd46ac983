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
	"math"
	"math/rand"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/googlegenomics/readtrack/genomics"
)

// checkInvariants verifies the red-black properties and the subtree
// aggregates of every node.
func checkInvariants(t *testing.T, tree *Tree) {
	t.Helper()
	require.False(t, tree.nodes[0].red, "nil handle must stay black")
	if tree.root == 0 {
		return
	}
	require.False(t, tree.nodes[tree.root].red, "root must be black")
	require.Zero(t, tree.nodes[tree.root].parent)

	var walk func(x uint32) (int, int64, int64)
	walk = func(x uint32) (int, int64, int64) {
		if x == 0 {
			return 1, math.MinInt64, math.MaxInt64
		}
		n := tree.nodes[x]
		if n.left != 0 {
			require.Equal(t, x, tree.nodes[n.left].parent)
			require.True(t, tree.nodes[n.left].entry.Interval.Start() <= n.entry.Interval.Start())
		}
		if n.right != 0 {
			require.Equal(t, x, tree.nodes[n.right].parent)
			require.True(t, tree.nodes[n.right].entry.Interval.Start() >= n.entry.Interval.Start())
		}
		if n.red {
			require.False(t, tree.isRed(n.left), "red node with red child")
			require.False(t, tree.isRed(n.right), "red node with red child")
		}
		lh, lmax, lmin := walk(n.left)
		rh, rmax, rmin := walk(n.right)
		require.Equal(t, lh, rh, "black height mismatch")

		max, min := n.entry.Interval.End(), n.entry.Interval.Start()
		for _, v := range []int64{lmax, rmax} {
			if v > max {
				max = v
			}
		}
		for _, v := range []int64{lmin, rmin} {
			if v < min {
				min = v
			}
		}
		require.Equal(t, max, n.max, "stale subtree max")
		require.Equal(t, min, n.min, "stale subtree min")

		if n.red {
			return lh, max, min
		}
		return lh + 1, max, min
	}
	walk(tree.root)
}

func sortIntervals(ivs []genomics.Interval) {
	sort.Slice(ivs, func(i, j int) bool { return ivs[i].Less(ivs[j]) })
}

func TestTree_Empty(t *testing.T) {
	tree := New()
	assert.Equal(t, 0, tree.Len())
	assert.Equal(t, 0, tree.Height())
	assert.Empty(t, tree.FindOverlapping(genomics.MustInterval(0, 100)))
}

func TestTree_FindOverlapping(t *testing.T) {
	tree := New()
	for _, iv := range []genomics.Interval{
		genomics.MustInterval(0, 2),
		genomics.MustInterval(2, 4),
		genomics.MustInterval(1, 6),
		genomics.MustInterval(3, 4),
		genomics.MustInterval(1, 3),
		genomics.MustInterval(4, 6),
		genomics.MustInterval(5, 8),
		genomics.MustInterval(6, 8),
		genomics.MustInterval(5, 7),
		genomics.MustInterval(8, 9),
	} {
		tree.Insert(iv)
	}
	checkInvariants(t, tree)

	testCases := []struct {
		name  string
		query genomics.Interval
		want  string
	}{
		{"middle", genomics.MustInterval(3, 4), "[1, 3] [1, 6] [2, 4] [3, 4] [4, 6]"},
		{"point", genomics.MustInterval(9, 9), "[8, 9]"},
		{"left of all", genomics.MustInterval(-5, -1), ""},
		{"right of all", genomics.MustInterval(10, 20), ""},
		{"everything", genomics.MustInterval(-100, 100),
			"[0, 2] [1, 3] [1, 6] [2, 4] [3, 4] [4, 6] [5, 7] [5, 8] [6, 8] [8, 9]"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := tree.FindOverlapping(tc.query)
			sortIntervals(got)
			var parts []string
			for _, iv := range got {
				parts = append(parts, iv.String())
			}
			assert.Equal(t, tc.want, strings.Join(parts, " "))
		})
	}
}

func TestTree_MatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	testCases := []struct {
		name  string
		count int
		span  int64
		width int64
	}{
		{"dense short", 2000, 10000, 50},
		{"sparse long", 500, 1000000, 20000},
		{"duplicates", 300, 20, 3},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tree := New()
			var all []genomics.Interval
			for i := 0; i < tc.count; i++ {
				start := rng.Int63n(tc.span)
				iv := genomics.MustInterval(start, start+rng.Int63n(tc.width))
				tree.Insert(iv)
				all = append(all, iv)
			}
			checkInvariants(t, tree)
			require.Equal(t, tc.count, tree.Len())

			// A red-black tree never exceeds 2*log2(n+1) levels.
			assert.LessOrEqual(t, float64(tree.Height()), 2*math.Log2(float64(tc.count+1)))

			for q := 0; q < 200; q++ {
				start := rng.Int63n(tc.span)
				query := genomics.MustInterval(start, start+rng.Int63n(2*tc.width))

				var want []genomics.Interval
				for _, iv := range all {
					if iv.Start() <= query.End() && iv.End() >= query.Start() {
						want = append(want, iv)
					}
				}
				got := tree.FindOverlapping(query)
				sortIntervals(want)
				sortIntervals(got)
				require.Equal(t, want, got, "query %v", query)
			}
		})
	}
}

func TestTree_SortedInsertStaysBalanced(t *testing.T) {
	tree := New()
	for i := int64(0); i < 4096; i++ {
		tree.Insert(genomics.MustInterval(i*10, i*10+5))
	}
	checkInvariants(t, tree)
	assert.LessOrEqual(t, tree.Height(), 24)
	assert.Len(t, tree.FindOverlapping(genomics.MustInterval(100, 125)), 3)
}

func TestTree_EqualStarts(t *testing.T) {
	tree := New()
	for i := int64(0); i < 64; i++ {
		tree.Insert(genomics.MustInterval(10, 10+i))
	}
	checkInvariants(t, tree)
	assert.Len(t, tree.FindOverlapping(genomics.MustInterval(70, 80)), 4)
	assert.Len(t, tree.FindOverlapping(genomics.MustInterval(0, 10)), 64)
}

func TestTree_VisitStopsEarly(t *testing.T) {
	tree := New()
	for i := int64(0); i < 100; i++ {
		tree.InsertValue(genomics.MustInterval(i, i+10), i)
	}

	var seen []int64
	tree.Visit(genomics.MustInterval(50, 60), func(e Entry) bool {
		seen = append(seen, e.Value.(int64))
		return len(seen) < 5
	})
	assert.Equal(t, []int64{40, 41, 42, 43, 44}, seen)
}

func TestIndex(t *testing.T) {
	rows := strings.Join([]string{
		"track name=genes",
		"#chrom\tstart\tend",
		"chr1\t100\t200\tA",
		"chr1\t150\t160\tB",
		"chr2\t100\t200\tC",
		"chr1\t300\t400\tD",
		"",
	}, "\n")

	idx, err := BuildIndex(strings.NewReader(rows), genomics.BEDColumns)
	require.NoError(t, err)
	assert.Equal(t, 4, idx.Len())
	assert.Equal(t, []string{"chr1", "chr2"}, idx.Chromosomes())

	region, err := genomics.ParseRegion("chr1:160-350")
	require.NoError(t, err)

	var names []string
	for _, e := range idx.Overlapping(region.Chromosome, genomics.BEDColumns.Query(region)) {
		f := e.Value.(genomics.Feature)
		names = append(names, f.Text[strings.LastIndexByte(f.Text, '\t')+1:])
	}
	assert.Equal(t, []string{"A", "B", "D"}, names)
	assert.Empty(t, idx.Overlapping("chr3", region.Interval))
}

func TestBuildIndex_MalformedRow(t *testing.T) {
	_, err := BuildIndex(strings.NewReader("chr1\t1\t5\nchr1\tx\t9\n"), genomics.BEDColumns)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}
