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
	"context"
	"log/slog"
	"os"
	"os/signal"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/googlegenomics/readtrack/extsort"
	"github.com/googlegenomics/readtrack/internal/source"
)

func newSortCommand(a *app) *cobra.Command {
	var (
		memory      string
		chromColumn int
		startColumn int
		tempDir     string
		compression string
		bgzip       bool
	)
	cmd := &cobra.Command{
		Use:   "sort <in> <out>",
		Short: "Sort a feature file by chromosome and start",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			sc := a.cfg.Sort
			if flags.Changed("memory") {
				sc.MemoryBudget = memory
			}
			if flags.Changed("chrom-col") {
				sc.ChromColumn = chromColumn
			}
			if flags.Changed("start-col") {
				sc.StartColumn = startColumn
			}
			if flags.Changed("temp-dir") {
				sc.TempDir = tempDir
			}
			if flags.Changed("compression") {
				sc.Compression = compression
			}
			if flags.Changed("bgzip") {
				sc.BGZip = bgzip
			}
			return a.sort(cmd.Context(), sc.Sorter, args[0], args[1])
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&memory, "memory", "", "memory budget, such as 512MiB")
	flags.IntVar(&chromColumn, "chrom-col", 0, "0-based chromosome column")
	flags.IntVar(&startColumn, "start-col", 1, "0-based start column")
	flags.StringVar(&tempDir, "temp-dir", "", "directory for sorted runs")
	flags.StringVar(&compression, "compression", "", "run compression (none, snappy, lz4)")
	flags.BoolVar(&bgzip, "bgzip", false, "BGZF compress the output")
	return cmd
}

func (a *app) sort(ctx context.Context, newConfig func(*slog.Logger) (extsort.Config, error), in, out string) error {
	cfg, err := newConfig(a.logger)
	if err != nil {
		return err
	}
	sorter, err := extsort.New(cfg)
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	if source.IsRemote(in) {
		r, err := a.opener.Open(ctx, in)
		if err != nil {
			return err
		}
		defer r.Close()
		if err := sorter.WriteFile(ctx, r, out); err != nil {
			return err
		}
	} else {
		job := sorter.Start(ctx, in, out)
		if err := job.Wait(); err != nil {
			return err
		}
	}

	stats := sorter.Stats()
	a.logger.Info("sorted", "input", in, "output", out, "records", stats.Records)
	writeSummary(a.stderr, "sort", [][2]interface{}{
		{"records", stats.Records},
		{"header lines", stats.Headers},
		{"skipped lines", stats.Skipped},
		{"runs", stats.Runs},
		{"spilled", humanize.Bytes(uint64(stats.BytesSpilled))},
	})
	return nil
}
