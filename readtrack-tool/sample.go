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

package main

import (
	"bufio"
	"context"
	"io"
	"math"
	"math/rand"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/googlegenomics/readtrack/coverage"
	"github.com/googlegenomics/readtrack/genomics"
	"github.com/googlegenomics/readtrack/internal/bgzf"
	"github.com/googlegenomics/readtrack/sampler"
)

// maximumLineLength bounds the rows read by sample and overlap.
const maximumLineLength = 16 << 20

type sampleOptions struct {
	region       regionFlag
	frameSize    int64
	cap          int64
	strategy     string
	coverageOnly bool
	seed         int64
	endColumn    int
	coveragePath string
	wigPath      string
	binSize      int64
}

func newSampleCommand(a *app) *cobra.Command {
	var opts sampleOptions
	cmd := &cobra.Command{
		Use:   "sample <in>",
		Short: "Downsample the sorted features of one region",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			sc := a.cfg.Sample
			if flags.Changed("frame-size") {
				sc.FrameSize = opts.frameSize
			}
			if flags.Changed("cap") {
				sc.Cap = opts.cap
			}
			if flags.Changed("strategy") {
				sc.Strategy = opts.strategy
			}
			if flags.Changed("coverage-only") {
				sc.CoverageOnly = opts.coverageOnly
			}
			if !opts.region.set {
				return errors.New("--region is required")
			}
			return a.sample(cmd.Context(), sc.Sampler, args[0], &opts)
		},
	}
	flags := cmd.Flags()
	flags.Var(&opts.region, "region", "region to sample, such as chr1:10,000-20,000")
	flags.Int64Var(&opts.frameSize, "frame-size", 0, "frame width in bases")
	flags.Int64Var(&opts.cap, "cap", 0, "maximum records kept per frame")
	flags.StringVar(&opts.strategy, "strategy", "", "sampling strategy (reservoir, passthrough, shuffle)")
	flags.BoolVar(&opts.coverageOnly, "coverage-only", false, "report coverage blocks only")
	flags.Int64Var(&opts.seed, "seed", 0, "random seed (default: time based)")
	flags.IntVar(&opts.endColumn, "end-col", 2, "0-based end column (half-open, as in BED)")
	flags.StringVar(&opts.coveragePath, "coverage", "", "write coverage blocks as bedGraph to this file")
	flags.StringVar(&opts.wigPath, "wig", "", "write depth of coverage as wiggle to this file")
	flags.Int64Var(&opts.binSize, "bin-size", 10, "wiggle bin size")
	return cmd
}

func (a *app) sample(ctx context.Context, newConfig func(int64) (sampler.Config, error), in string, opts *sampleOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cols := a.cfg.Sort.Columns()
	cols.End = opts.endColumn
	query := cols.Query(opts.region.Region)
	region := genomics.Region{Chromosome: opts.region.Chromosome, Interval: query}

	trackEnd := query.End()
	if trackEnd == math.MaxInt64 {
		trackEnd = 0
	}
	cfg, err := newConfig(trackEnd)
	if err != nil {
		return err
	}
	seed := opts.seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	cfg.Rand = rand.New(rand.NewSource(seed))

	emitter := &coverage.Emitter{
		Records:    a.stdout,
		Chromosome: region.Chromosome,
		ZeroBased:  cols.HalfOpen,
	}
	var covFile *os.File
	var covWriter *bufio.Writer
	if opts.coveragePath != "" {
		if covFile, err = os.Create(opts.coveragePath); err != nil {
			return errors.Wrap(err, "creating coverage file")
		}
		defer covFile.Close()
		covWriter = bufio.NewWriter(covFile)
		emitter.Coverage = covWriter
	}
	if opts.wigPath != "" {
		if emitter.Counter, err = coverage.NewCounter(region, opts.binSize); err != nil {
			return err
		}
	}

	s, err := sampler.New(cfg, emitter)
	if err != nil {
		return err
	}
	r, err := a.opener.Open(ctx, in)
	if err != nil {
		return err
	}
	defer r.Close()
	if err := feedSampler(r, cols, region, s); err != nil {
		return err
	}
	if err := s.Finish(); err != nil {
		return err
	}
	if covFile != nil {
		if err := covWriter.Flush(); err != nil {
			return errors.Wrap(err, "writing coverage file")
		}
		if err := covFile.Close(); err != nil {
			return errors.Wrap(err, "writing coverage file")
		}
	}

	if emitter.Counter != nil {
		f, err := os.Create(opts.wigPath)
		if err != nil {
			return errors.Wrap(err, "creating wiggle file")
		}
		if err := emitter.Counter.WriteWiggle(f, region.String(), cols.HalfOpen); err != nil {
			f.Close()
			return errors.Wrap(err, "writing wiggle file")
		}
		if err := f.Close(); err != nil {
			return errors.Wrap(err, "writing wiggle file")
		}
	}

	stats := s.Stats()
	a.logger.Info("sampled", "region", opts.region.String(), "seen", stats.Seen, "forwarded", stats.Forwarded)
	writeSummary(a.stderr, "sample "+opts.region.String(), [][2]interface{}{
		{"frames", stats.Frames},
		{"records seen", stats.Seen},
		{"records kept", stats.Forwarded},
		{"records elided", stats.Elided},
		{"coverage blocks", len(s.SampledCoverage())},
	})
	return nil
}

// feedSampler adds every feature of r that overlaps region to s.
func feedSampler(r io.Reader, cols genomics.Columns, region genomics.Region, s sampler.Sampler) error {
	plain, err := bgzf.NewReader(r)
	if err != nil {
		return err
	}
	scanner := bufio.NewScanner(plain)
	scanner.Buffer(make([]byte, 64<<10), maximumLineLength)
	for line := 1; scanner.Scan(); line++ {
		text := scanner.Text()
		if genomics.IsHeader(text) {
			continue
		}
		f, err := cols.Parse(text)
		if err != nil {
			return errors.Wrapf(err, "line %d", line)
		}
		if f.Chromosome != region.Chromosome || !f.Overlaps(region.Interval) {
			continue
		}
		if err := s.Add(f); err != nil {
			return errors.Wrapf(err, "line %d", line)
		}
	}
	return errors.Wrap(scanner.Err(), "reading input")
}
