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
	"bufio"
	"context"
	"io"
	"sort"
	"strings"

	"github.com/VictoriaMetrics/metrics"
	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/googlegenomics/readtrack/genomics"
	"github.com/googlegenomics/readtrack/internal/bgzf"
	"github.com/googlegenomics/readtrack/internal/vfs"
)

var (
	// ErrSpillFailure marks I/O errors raised while writing a sorted run.
	ErrSpillFailure = errors.New("spill failure")
	// ErrMergeFailure marks errors raised while merging runs into the
	// output, including run checksum mismatches.
	ErrMergeFailure = errors.New("merge failure")
	// ErrMalformedRecord marks data rows whose key columns cannot be read.
	ErrMalformedRecord = errors.New("malformed record")
)

var (
	runsSpilled   = metrics.GetOrCreateCounter(`readtrack_extsort_runs_spilled_total`)
	bytesSpilled  = metrics.GetOrCreateCounter(`readtrack_extsort_bytes_spilled_total`)
	recordsSorted = metrics.GetOrCreateCounter(`readtrack_extsort_records_sorted_total`)
)

// cancelInterval is the number of rows processed between context checks.
const cancelInterval = 4096

// Stats describes the last sort performed by a Sorter.
type Stats struct {
	Records      int64
	Headers      int64
	Skipped      int64
	Runs         int
	BytesSpilled int64
}

// Sorter is an external sorter.  A Sorter runs one sort at a time and must
// not be shared between goroutines.
type Sorter struct {
	cfg   Config
	buf   []Record
	used  int64
	runs  []string
	stats Stats
}

// New returns a Sorter for cfg.
func New(cfg Config) (*Sorter, error) {
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Sorter{cfg: cfg}, nil
}

// Stats returns the statistics of the most recent sort.
func (s *Sorter) Stats() Stats {
	return s.stats
}

// Run sorts the rows read from in and writes them to out.  The input may be
// plain text or gzip/BGZF compressed.
func (s *Sorter) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	return s.sort(ctx, in, func() (io.Writer, error) { return out, nil })
}

// SortFile sorts the file at inPath into outPath.  The output is written to
// a temporary file in the same directory and renamed into place once
// complete, so outPath is never left holding a partial result.
func (s *Sorter) SortFile(ctx context.Context, inPath, outPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	in, err := s.cfg.FS.Open(inPath)
	if err != nil {
		return errors.Wrapf(err, "opening %s", inPath)
	}
	defer in.Close()
	return s.WriteFile(ctx, in, outPath)
}

// WriteFile sorts the rows read from in into outPath, with the same
// atomicity as SortFile.
func (s *Sorter) WriteFile(ctx context.Context, in io.Reader, outPath string) error {
	fs := s.cfg.FS
	tmp := outPath + ".tmp-" + uuid.New().String()
	var file vfs.File
	open := func() (io.Writer, error) {
		f, err := fs.Create(tmp)
		if err != nil {
			return nil, err
		}
		file = f
		return f, nil
	}

	err := s.sort(ctx, in, open)
	if err == nil {
		if serr := file.Sync(); serr != nil {
			err = errors.Mark(errors.Wrapf(serr, "syncing %s", tmp), ErrMergeFailure)
		}
	}
	if file != nil {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = errors.Mark(errors.Wrapf(cerr, "closing %s", tmp), ErrMergeFailure)
		}
	}
	if err == nil {
		if rerr := fs.Rename(tmp, outPath); rerr != nil {
			err = errors.Mark(errors.Wrapf(rerr, "renaming %s", tmp), ErrMergeFailure)
		}
	}
	if err != nil && file != nil {
		if rerr := fs.Remove(tmp); rerr != nil {
			s.cfg.Logger.Debug("removing partial output", "path", tmp, "error", rerr)
		}
	}
	return err
}

// sort ingests in, spilling as required, then merges into the writer
// returned by open.  open is called only after the last spill.
func (s *Sorter) sort(ctx context.Context, in io.Reader, open func() (io.Writer, error)) error {
	s.stats = Stats{}
	s.buf = s.buf[:0]
	s.used = 0
	defer s.removeRuns()

	input, err := bgzf.NewReader(in)
	if err != nil {
		return errors.Wrap(err, "reading input")
	}
	headers, err := s.ingest(ctx, input)
	if err != nil {
		return err
	}
	out, err := open()
	if err != nil {
		return errors.Mark(errors.Wrap(err, "creating output"), ErrMergeFailure)
	}
	return s.merge(ctx, headers, out)
}

// ingest reads every row of in, returning the leading header lines.  Data
// rows are buffered and spilled as the memory budget requires.
func (s *Sorter) ingest(ctx context.Context, in io.Reader) ([]string, error) {
	var (
		headers []string
		seen    bool
		line    int
	)
	br := bufio.NewReaderSize(in, 64<<10)
	for {
		text, rerr := br.ReadString('\n')
		if rerr != nil && rerr != io.EOF {
			return nil, errors.Wrap(rerr, "reading input")
		}
		if len(text) == 0 && rerr == io.EOF {
			return headers, nil
		}
		line++
		if line%cancelInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		text = strings.TrimSuffix(text, "\n")

		if genomics.IsHeader(text) {
			if seen {
				s.stats.Skipped++
			} else {
				headers = append(headers, text)
				s.stats.Headers++
			}
		} else {
			seen = true
			chromosome, start, err := s.cfg.Columns.Key(text)
			if err != nil {
				return nil, errors.Mark(errors.Wrapf(err, "line %d", line), ErrMalformedRecord)
			}
			r := Record{Chromosome: chromosome, Start: start, Text: text, seq: uint64(line)}
			if len(s.buf) > 0 && s.used+r.size() > s.cfg.MemoryBudget {
				if err := s.spill(); err != nil {
					return nil, err
				}
			}
			s.buf = append(s.buf, r)
			s.used += r.size()
			s.stats.Records++
		}
		if rerr == io.EOF {
			return headers, nil
		}
	}
}

func sortRecords(records []Record) {
	sort.Slice(records, func(i, j int) bool { return Less(&records[i], &records[j]) })
}

// spill sorts the buffered records and writes them to a new run file.
func (s *Sorter) spill() error {
	n := len(s.runs)
	fail := func(err error) error {
		return errors.Mark(errors.Wrapf(err, "spilling run %d", n), ErrSpillFailure)
	}
	fs := s.cfg.FS
	if n == 0 {
		if err := fs.MkdirAll(s.cfg.TempDir, 0755); err != nil {
			return fail(err)
		}
	}
	sortRecords(s.buf)

	name := fs.PathJoin(s.cfg.TempDir, "run-"+uuid.New().String())
	file, err := fs.Create(name)
	if err != nil {
		return fail(err)
	}
	s.runs = append(s.runs, name)
	err = s.writeRun(file)
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fail(err)
	}

	var size int64
	if fi, err := fs.Stat(name); err == nil {
		size = fi.Size()
	}
	s.cfg.Logger.Debug("spilled run",
		"run", n, "records", len(s.buf), "size", humanize.Bytes(uint64(size)))
	runsSpilled.Inc()
	bytesSpilled.Add(int(size))
	s.stats.Runs++
	s.stats.BytesSpilled += size
	s.buf = s.buf[:0]
	s.used = 0
	return nil
}

func (s *Sorter) writeRun(file vfs.File) error {
	rw, err := newRunWriter(file, s.cfg.Compression)
	if err != nil {
		return err
	}
	for i := range s.buf {
		if err := rw.write(&s.buf[i]); err != nil {
			return err
		}
	}
	return rw.finish()
}

// merge writes headers followed by the k-way merge of every run and the
// in-memory remainder.
func (s *Sorter) merge(ctx context.Context, headers []string, out io.Writer) error {
	fail := func(err error) error {
		return errors.Mark(errors.Wrap(err, "merging runs"), ErrMergeFailure)
	}
	sortRecords(s.buf)
	sources := make([]cursor, 0, len(s.runs)+1)
	for _, name := range s.runs {
		rr, err := openRun(s.cfg.FS, name)
		if err != nil {
			return fail(err)
		}
		defer rr.close()
		sources = append(sources, rr)
	}
	sources = append(sources, &sliceCursor{records: s.buf})
	s.cfg.Logger.Debug("merging", "runs", len(s.runs), "buffered", len(s.buf))

	var bw *bgzf.Writer
	w := out
	if s.cfg.BGZF {
		bw = bgzf.NewWriter(out)
		w = bw
	}
	buf := bufio.NewWriterSize(w, 64<<10)
	for _, h := range headers {
		if _, err := buf.WriteString(h + "\n"); err != nil {
			return fail(err)
		}
	}

	m, err := newMerger(sources)
	if err != nil {
		return fail(err)
	}
	var (
		r     Record
		count int64
	)
	for {
		ok, err := m.next(&r)
		if err != nil {
			return fail(err)
		}
		if !ok {
			break
		}
		if _, err := buf.WriteString(r.Text); err != nil {
			return fail(err)
		}
		if err := buf.WriteByte('\n'); err != nil {
			return fail(err)
		}
		count++
		if count%cancelInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
	}
	if err := buf.Flush(); err != nil {
		return fail(err)
	}
	if bw != nil {
		if err := bw.Close(); err != nil {
			return fail(err)
		}
	}
	recordsSorted.Add(int(count))
	return nil
}

func (s *Sorter) removeRuns() {
	for _, name := range s.runs {
		if err := s.cfg.FS.Remove(name); err != nil {
			s.cfg.Logger.Debug("removing run", "path", name, "error", err)
		}
	}
	s.runs = s.runs[:0]
}
