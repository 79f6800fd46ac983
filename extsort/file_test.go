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

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/lni/goutils/leaktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/googlegenomics/readtrack/internal/vfs"
)

const (
	testInput  = "/work/in.bed"
	testOutput = "/work/out.bed"
	testTemp   = "/work/tmp"
)

func writeTestFile(t *testing.T, fs vfs.IFS, name, content string) {
	t.Helper()
	f, err := fs.Create(name)
	require.NoError(t, err)
	_, err = io.WriteString(f, content)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func readTestFile(t *testing.T, fs vfs.IFS, name string) string {
	t.Helper()
	f, err := fs.Open(name)
	require.NoError(t, err)
	defer f.Close()
	b, err := io.ReadAll(f)
	require.NoError(t, err)
	return string(b)
}

func newTestFS(t *testing.T, input string) vfs.IFS {
	t.Helper()
	fs := vfs.NewMemFS()
	require.NoError(t, fs.MkdirAll("/work", 0755))
	writeTestFile(t, fs, testInput, input)
	return fs
}

// assertClean checks that only the input remains in /work and that no runs
// were left in the temporary directory.
func assertClean(t *testing.T, fs vfs.IFS) {
	t.Helper()
	names, err := fs.List("/work")
	require.NoError(t, err)
	for _, name := range names {
		assert.Contains(t, []string{"in.bed", "tmp"}, name)
	}
	if runs, err := fs.List(testTemp); err == nil {
		assert.Empty(t, runs)
	}
}

func TestSorter_SortFile(t *testing.T) {
	fs := newTestFS(t, "chr2\t500\t600\nchr1\t100\t200\nchr1\t50\t60\n")
	s := newTestSorter(t, Config{FS: fs, TempDir: testTemp, MemoryBudget: 1})
	require.NoError(t, s.SortFile(context.Background(), testInput, testOutput))
	assert.Equal(t, "chr1\t50\t60\nchr1\t100\t200\nchr2\t500\t600\n", readTestFile(t, fs, testOutput))

	names, err := fs.List("/work")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"in.bed", "out.bed", "tmp"}, names)
	runs, err := fs.List(testTemp)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestSorter_SortFile_MissingInput(t *testing.T) {
	fs := vfs.NewMemFS()
	s := newTestSorter(t, Config{FS: fs})
	assert.Error(t, s.SortFile(context.Background(), "/nope.bed", "/out.bed"))
	assert.False(t, vfs.Exists(fs, "/out.bed"))
}

func TestSorter_SortFile_SpillFailure(t *testing.T) {
	for index := int32(0); index < 3; index++ {
		t.Run(fmt.Sprint(index), func(t *testing.T) {
			mem := newTestFS(t, "chr1\t3\t4\nchr1\t2\t3\nchr1\t1\t2\n")
			fs := vfs.Wrap(mem, vfs.OnIndex(index, vfs.OpWrite))
			s := newTestSorter(t, Config{FS: fs, TempDir: testTemp, MemoryBudget: 1})

			err := s.SortFile(context.Background(), testInput, testOutput)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrSpillFailure), "got %v", err)
			assert.False(t, vfs.Exists(mem, testOutput))
			assertClean(t, mem)
		})
	}
}

func TestSorter_SortFile_ExistingOutputUntouched(t *testing.T) {
	fs := newTestFS(t, "chr1\t1\t2\nchr1\tbad\n")
	writeTestFile(t, fs, testOutput, "previous\n")
	s := newTestSorter(t, Config{FS: fs, TempDir: testTemp})
	err := s.SortFile(context.Background(), testInput, testOutput)
	assert.True(t, errors.Is(err, ErrMalformedRecord), "got %v", err)
	assert.Equal(t, "previous\n", readTestFile(t, fs, testOutput))
}

func writeTestRun(t *testing.T, fs vfs.IFS, name string, compression Compression, records []Record) {
	t.Helper()
	f, err := fs.Create(name)
	require.NoError(t, err)
	rw, err := newRunWriter(f, compression)
	require.NoError(t, err)
	for i := range records {
		require.NoError(t, rw.write(&records[i]))
	}
	require.NoError(t, rw.finish())
	require.NoError(t, f.Close())
}

func readTestRun(fs vfs.IFS, name string) ([]Record, error) {
	rr, err := openRun(fs, name)
	if err != nil {
		return nil, err
	}
	defer rr.close()
	var records []Record
	for {
		var r Record
		ok, err := rr.next(&r)
		if err != nil {
			return records, err
		}
		if !ok {
			return records, nil
		}
		records = append(records, r)
	}
}

func TestRun_RoundTrip(t *testing.T) {
	records := []Record{
		{Chromosome: "chr1", Start: 5, Text: "chr1\t5\t6", seq: 3},
		{Chromosome: "chrX", Start: 1 << 40, Text: "chrX\t1099511627776\t1099511627777\tlong", seq: 9},
		{Chromosome: "chrX", Start: 1 << 40, Text: "", seq: 10},
	}
	for _, compression := range []Compression{None, Snappy, LZ4} {
		t.Run(compression.String(), func(t *testing.T) {
			fs := vfs.NewMemFS()
			writeTestRun(t, fs, "run", compression, records)
			got, err := readTestRun(fs, "run")
			require.NoError(t, err)
			assert.Equal(t, records, got)
		})
	}
}

func TestRun_Corruption(t *testing.T) {
	records := []Record{
		{Chromosome: "chr1", Start: 5, Text: "chr1\t5\t6\tAAAA", seq: 1},
		{Chromosome: "chr1", Start: 7, Text: "chr1\t7\t8\tBBBB", seq: 2},
	}
	testCases := []struct {
		name    string
		corrupt func([]byte) []byte
		want    error
	}{
		{"payload", func(b []byte) []byte {
			i := bytes.Index(b, []byte("BBBB"))
			b[i] = 'C'
			return b
		}, errChecksum},
		{"truncated", func(b []byte) []byte { return b[:len(b)-20] }, nil},
		{"magic", func(b []byte) []byte { b[0] = 'X'; return b }, nil},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			fs := vfs.NewMemFS()
			writeTestRun(t, fs, "run", None, records)
			b := []byte(readTestFile(t, fs, "run"))
			writeTestFile(t, fs, "run", string(tc.corrupt(b)))

			_, err := readTestRun(fs, "run")
			require.Error(t, err)
			if tc.want != nil {
				assert.True(t, errors.Is(err, tc.want), "got %v", err)
			}
		})
	}
}

func TestSorter_MergeChecksumFailure(t *testing.T) {
	s := newTestSorter(t, Config{TempDir: testTemp})
	fs := s.cfg.FS
	require.NoError(t, fs.MkdirAll(testTemp, 0755))
	name := fs.PathJoin(testTemp, "run-corrupt")
	writeTestRun(t, fs, name, None, []Record{{Chromosome: "chr1", Start: 1, Text: "chr1\t1\tAAAA"}})
	b := []byte(readTestFile(t, fs, name))
	b[bytes.Index(b, []byte("AAAA"))] = 'B'
	writeTestFile(t, fs, name, string(b))

	s.runs = append(s.runs, name)
	defer s.removeRuns()
	err := s.merge(context.Background(), nil, io.Discard)
	assert.True(t, errors.Is(err, ErrMergeFailure), "got %v", err)
	assert.True(t, errors.Is(err, errChecksum), "got %v", err)
}

func TestJob(t *testing.T) {
	defer leaktest.AfterTest(t)()
	fs := newTestFS(t, strings.Repeat("chr1\t9\t10\nchr1\t1\t2\n", 100))
	s := newTestSorter(t, Config{FS: fs, TempDir: testTemp, MemoryBudget: 256})
	j := s.Start(context.Background(), testInput, testOutput)
	require.NoError(t, j.Wait())
	<-j.Done()
	got := readTestFile(t, fs, testOutput)
	assert.True(t, strings.HasPrefix(got, strings.Repeat("chr1\t1\t2\n", 100)))
	assert.Equal(t, int64(200), s.Stats().Records)
}

func TestJob_Cancel(t *testing.T) {
	defer leaktest.AfterTest(t)()
	fs := newTestFS(t, "chr1\t9\t10\nchr1\t1\t2\n")
	s := newTestSorter(t, Config{FS: fs, TempDir: testTemp})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	j := s.Start(ctx, testInput, testOutput)
	j.Cancel()
	err := j.Wait()
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
	assert.False(t, vfs.Exists(fs, testOutput))
	assertClean(t, fs)
}
