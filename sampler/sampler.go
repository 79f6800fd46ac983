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

// Package sampler downsamples a position-ordered stream of records into
// fixed-size genomic frames, keeping at most a configured number of records
// per frame and reporting what was dropped as coverage blocks.
package sampler

import (
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/cockroachdb/errors"
)

var (
	// ErrInvalidConfig is returned by New for unusable configurations.
	ErrInvalidConfig = errors.New("invalid sampler configuration")
	// ErrOutOfOrder is returned by Add when a record starts before a record
	// that was already added.
	ErrOutOfOrder = errors.New("records out of order")
	// ErrAlreadyFinished is returned by Add and Finish after Finish.
	ErrAlreadyFinished = errors.New("sampler already finished")
	// ErrBeyondTrackEnd is returned by Add for records starting after the
	// configured track end.
	ErrBeyondTrackEnd = errors.New("record beyond track end")
)

var (
	framesClosed     = metrics.GetOrCreateCounter(`readtrack_sampler_frames_total`)
	recordsSeen      = metrics.GetOrCreateCounter(`readtrack_sampler_records_seen_total`)
	recordsForwarded = metrics.GetOrCreateCounter(`readtrack_sampler_records_forwarded_total`)
	recordsElided    = metrics.GetOrCreateCounter(`readtrack_sampler_records_elided_total`)
)

// Record is anything with an inclusive start and end coordinate.
type Record interface {
	Start() int64
	End() int64
}

// Sink receives the records kept by a Sampler.
type Sink interface {
	WriteRecord(Record) error
}

// CoverageSink is implemented by sinks that also want coverage blocks as
// they are produced.
type CoverageSink interface {
	WriteCoverage(CoverageBlock) error
}

// CoverageBlock records that ElidedCount records starting in [Start, End]
// were observed but not forwarded.
type CoverageBlock struct {
	Start, End  int64
	ElidedCount int64
}

// Stats are running totals for a Sampler.
type Stats struct {
	Frames    int64
	Seen      int64
	Forwarded int64
	Elided    int64
}

// Sampler is the common interface of every sampling strategy.
type Sampler interface {
	// Add offers the next record.  Records must arrive in non-decreasing
	// start order.  After a sink error, Add and Finish return that error.
	Add(Record) error
	// Finish closes the last frame.  No records may be added afterwards.
	Finish() error
	// SampledCoverage returns every coverage block emitted so far.
	SampledCoverage() []CoverageBlock
	// KeptRecordCount returns the number of records kept from the current
	// frame, or from the last frame once finished.
	KeptRecordCount() int64
	// Stats returns running totals.
	Stats() Stats
}

// Config configures a Sampler.
type Config struct {
	// FrameSize is the width of each frame in bases.
	FrameSize int64
	// Cap is the maximum number of records kept per frame.
	Cap int64
	// TrackEnd is the last coordinate of the track.  Values <= 0 leave the
	// track unbounded.
	TrackEnd int64
	// CoverageOnly drops every record, reporting each frame's population
	// as a coverage block instead.
	CoverageOnly bool
	// Strategy selects how records are picked.
	Strategy Strategy
	// Rand is the source of randomness.  When nil a source seeded from the
	// current time is used.
	Rand *rand.Rand
}

func (cfg *Config) validate() error {
	if cfg.FrameSize <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "frame size %d must be positive", cfg.FrameSize)
	}
	if cfg.Cap <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "cap %d must be positive", cfg.Cap)
	}
	if _, ok := pickers[cfg.Strategy]; !ok {
		return errors.Wrapf(ErrInvalidConfig, "unknown strategy %d", cfg.Strategy)
	}
	return nil
}

// New returns a Sampler using cfg.Strategy that writes to sink.
func New(cfg Config, sink Sink) (Sampler, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if sink == nil {
		return nil, errors.Wrap(ErrInvalidConfig, "nil sink")
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	s := &sampler{cfg: cfg, sink: sink, picker: pickers[cfg.Strategy](&cfg)}
	s.coverage, _ = sink.(CoverageSink)
	return s, nil
}

// NewReservoir returns a reservoir Sampler.
func NewReservoir(cfg Config, sink Sink) (Sampler, error) {
	cfg.Strategy = Reservoir
	return New(cfg, sink)
}

// NewPassThrough returns a Sampler that forwards every record.
func NewPassThrough(cfg Config, sink Sink) (Sampler, error) {
	cfg.Strategy = PassThrough
	return New(cfg, sink)
}

// NewShuffle returns a Sampler that buffers each frame and picks from it
// without replacement.
func NewShuffle(cfg Config, sink Sink) (Sampler, error) {
	cfg.Strategy = Shuffle
	return New(cfg, sink)
}

type sampler struct {
	cfg      Config
	sink     Sink
	coverage CoverageSink
	picker   picker

	started  bool
	finished bool
	start    int64
	end      int64
	last     int64
	seen     int64

	blocks []CoverageBlock
	stats  Stats
	// err is the first sink failure; once set every call returns it.
	err error
}

func (s *sampler) Add(r Record) error {
	if s.err != nil {
		return s.err
	}
	if s.finished {
		return ErrAlreadyFinished
	}
	start := r.Start()
	if s.cfg.TrackEnd > 0 && start > s.cfg.TrackEnd {
		return errors.Wrapf(ErrBeyondTrackEnd, "start %d, track end %d", start, s.cfg.TrackEnd)
	}
	if !s.started {
		s.started = true
		s.start = start
		s.end = s.frameEnd(start)
	} else if start < s.last {
		return errors.Wrapf(ErrOutOfOrder, "start %d after %d", start, s.last)
	}
	s.last = start

	if start > s.end {
		if err := s.closeFrame(); err != nil {
			return s.fail(err)
		}
		size := s.cfg.FrameSize
		s.start += (start - s.start) / size * size
		s.end = s.frameEnd(s.start)
		s.seen = 0
	}
	s.seen++
	s.stats.Seen++

	if s.cfg.CoverageOnly {
		return nil
	}
	if s.picker.offer(r, s.seen) {
		if err := s.forward(r); err != nil {
			return s.fail(err)
		}
	}
	return nil
}

func (s *sampler) fail(err error) error {
	s.err = err
	return err
}

func (s *sampler) frameEnd(start int64) int64 {
	end := start + s.cfg.FrameSize - 1
	if end < start {
		end = math.MaxInt64
	}
	if s.cfg.TrackEnd > 0 && end > s.cfg.TrackEnd {
		end = s.cfg.TrackEnd
	}
	return end
}

func (s *sampler) forward(r Record) error {
	if err := s.sink.WriteRecord(r); err != nil {
		return errors.Wrap(err, "writing record")
	}
	s.stats.Forwarded++
	return nil
}

// closeFrame flushes the picks of the current frame and emits its coverage
// block, if any.
func (s *sampler) closeFrame() error {
	s.stats.Frames++
	if !s.cfg.CoverageOnly {
		for _, r := range s.picker.flush() {
			if err := s.forward(r); err != nil {
				return err
			}
		}
	}

	var elided int64
	switch {
	case s.cfg.CoverageOnly:
		elided = s.seen
	case s.picker.samples() && s.seen > s.cfg.Cap:
		elided = s.seen - s.cfg.Cap
	default:
		return nil
	}
	block := CoverageBlock{Start: s.start, End: s.end, ElidedCount: elided}
	s.blocks = append(s.blocks, block)
	s.stats.Elided += elided
	if s.coverage != nil {
		if err := s.coverage.WriteCoverage(block); err != nil {
			return errors.Wrap(err, "writing coverage")
		}
	}
	return nil
}

func (s *sampler) Finish() error {
	if s.err != nil {
		return s.err
	}
	if s.finished {
		return ErrAlreadyFinished
	}
	s.finished = true
	if s.started {
		if err := s.closeFrame(); err != nil {
			return s.fail(err)
		}
	}
	framesClosed.Add(int(s.stats.Frames))
	recordsSeen.Add(int(s.stats.Seen))
	recordsForwarded.Add(int(s.stats.Forwarded))
	recordsElided.Add(int(s.stats.Elided))
	return nil
}

func (s *sampler) SampledCoverage() []CoverageBlock {
	return append([]CoverageBlock(nil), s.blocks...)
}

func (s *sampler) KeptRecordCount() int64 {
	switch {
	case s.cfg.CoverageOnly:
		return 0
	case !s.picker.samples() || s.seen < s.cfg.Cap:
		return s.seen
	}
	return s.cfg.Cap
}

func (s *sampler) Stats() Stats {
	return s.stats
}

// slot is a retained record and its arrival position in the frame.
type slot struct {
	seq    int64
	record Record
}

func inArrivalOrder(slots []slot) []Record {
	sort.Slice(slots, func(i, j int) bool { return slots[i].seq < slots[j].seq })
	records := make([]Record, len(slots))
	for i, sl := range slots {
		records[i] = sl.record
	}
	return records
}
