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

// Package extsort sorts position-tagged text rows that do not fit in memory.
//
// Rows are accumulated up to a memory budget, sorted and spilled to
// temporary run files; at end of input all runs are merged into a single
// output ordered by (chromosome, start), with ties kept in input order.
// Header and comment lines that precede the first data row are copied to the
// top of the output unchanged.
package extsort

import (
	"log/slog"
	"os"

	"github.com/cockroachdb/errors"

	"github.com/googlegenomics/readtrack/genomics"
	"github.com/googlegenomics/readtrack/internal/vfs"
)

// Compression selects how spilled runs are compressed.
type Compression int

const (
	// None writes runs uncompressed.
	None Compression = iota
	// Snappy compresses runs with the snappy framing format.
	Snappy
	// LZ4 compresses runs with the LZ4 frame format.
	LZ4
)

func (c Compression) String() string {
	switch c {
	case None:
		return "none"
	case Snappy:
		return "snappy"
	case LZ4:
		return "lz4"
	}
	return "unknown"
}

// ParseCompression parses the names returned by Compression.String.
func ParseCompression(s string) (Compression, error) {
	for _, c := range []Compression{None, Snappy, LZ4} {
		if c.String() == s {
			return c, nil
		}
	}
	return None, errors.Wrapf(ErrInvalidConfig, "unknown compression %q", s)
}

// DefaultMemoryBudget is used when Config.MemoryBudget is zero.
const DefaultMemoryBudget = 256 << 20

// ErrInvalidConfig is returned by New for unusable configurations.
var ErrInvalidConfig = errors.New("invalid sort configuration")

// Config configures a Sorter.
type Config struct {
	// MemoryBudget is the approximate number of bytes of rows held in memory
	// before a run is spilled.
	MemoryBudget int64
	// Columns locates the chromosome and start of each row.  Only the
	// Chromosome and Start fields are used; the zero value means BED.
	Columns genomics.Columns
	// TempDir receives spilled runs.  It defaults to os.TempDir().
	TempDir string
	// FS is the file system used for runs and for SortFile.  It defaults to
	// the OS file system.
	FS vfs.IFS
	// Compression is applied to spilled runs.
	Compression Compression
	// BGZF compresses the sorted output into BGZF blocks.
	BGZF bool
	// Logger receives debug messages about spills and merges.
	Logger *slog.Logger
}

func (cfg *Config) setDefaults() {
	if cfg.MemoryBudget == 0 {
		cfg.MemoryBudget = DefaultMemoryBudget
	}
	if cfg.Columns == (genomics.Columns{}) {
		cfg.Columns = genomics.BEDColumns
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	if cfg.FS == nil {
		cfg.FS = vfs.DefaultFS
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
}

func (cfg *Config) validate() error {
	if cfg.MemoryBudget < 0 {
		return errors.Wrapf(ErrInvalidConfig, "negative memory budget %d", cfg.MemoryBudget)
	}
	if cfg.Columns.Chromosome < 0 || cfg.Columns.Start < 0 {
		return errors.Wrapf(ErrInvalidConfig, "negative key column (chromosome %d, start %d)",
			cfg.Columns.Chromosome, cfg.Columns.Start)
	}
	if cfg.Columns.Chromosome == cfg.Columns.Start {
		return errors.Wrapf(ErrInvalidConfig, "chromosome and start share column %d", cfg.Columns.Start)
	}
	if cfg.Compression < None || cfg.Compression > LZ4 {
		return errors.Wrapf(ErrInvalidConfig, "unknown compression %d", cfg.Compression)
	}
	return nil
}
