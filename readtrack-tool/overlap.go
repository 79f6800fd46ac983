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
	"io"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/googlegenomics/readtrack/genomics"
	"github.com/googlegenomics/readtrack/internal/bgzf"
	"github.com/googlegenomics/readtrack/intervaltree"
)

func newOverlapCommand(a *app) *cobra.Command {
	var (
		region    regionFlag
		endColumn int
	)
	cmd := &cobra.Command{
		Use:   "overlap <in>",
		Short: "Print the features overlapping a region",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !region.set {
				return errors.New("--region is required")
			}
			cols := a.cfg.Sort.Columns()
			cols.End = endColumn
			return a.overlap(cmd.Context(), args[0], cols, region.Region)
		},
	}
	cmd.Flags().Var(&region, "region", "region to query, such as chr1:10,000-20,000")
	cmd.Flags().IntVar(&endColumn, "end-col", 2, "0-based end column (half-open, as in BED)")
	return cmd
}

func (a *app) overlap(ctx context.Context, in string, cols genomics.Columns, region genomics.Region) error {
	if ctx == nil {
		ctx = context.Background()
	}
	r, err := a.opener.Open(ctx, in)
	if err != nil {
		return err
	}
	defer r.Close()
	plain, err := bgzf.NewReader(r)
	if err != nil {
		return err
	}
	idx, err := intervaltree.BuildIndex(plain, cols)
	if err != nil {
		return errors.Wrapf(err, "indexing %s", in)
	}

	entries := idx.Overlapping(region.Chromosome, cols.Query(region))
	for _, e := range entries {
		if _, err := io.WriteString(a.stdout, e.Value.(genomics.Feature).Text+"\n"); err != nil {
			return err
		}
	}
	a.logger.Debug("queried index", "features", idx.Len(), "chromosomes", len(idx.Chromosomes()))
	writeSummary(a.stderr, "overlap "+region.String(), [][2]interface{}{
		{"features indexed", idx.Len()},
		{"chromosomes", len(idx.Chromosomes())},
		{"overlapping", len(entries)},
	})
	return nil
}
