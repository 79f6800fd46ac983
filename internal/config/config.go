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

// Package config loads readtrack-tool settings from defaults, an optional
// YAML file and READTRACK_ environment variables.
package config

import (
	"io"
	"log/slog"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"

	"github.com/googlegenomics/readtrack/extsort"
	"github.com/googlegenomics/readtrack/genomics"
	"github.com/googlegenomics/readtrack/sampler"
)

const envPrefix = "READTRACK"

// Defaults.
const (
	DefaultMemoryBudget = "256MiB"
	DefaultCompression  = "snappy"
	DefaultFrameSize    = 1000
	DefaultCap          = 100
	DefaultStrategy     = "reservoir"
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "text"
)

var (
	// ErrInvalidMemoryBudget is returned for unparseable memory budgets.
	ErrInvalidMemoryBudget = errors.New("invalid memory budget")
	// ErrInvalidColumns is returned when key columns are negative or equal.
	ErrInvalidColumns = errors.New("invalid key columns")
	// ErrInvalidSample is returned for non-positive frame sizes or caps.
	ErrInvalidSample = errors.New("invalid sample settings")
	// ErrInvalidLogging is returned for unknown log levels or formats.
	ErrInvalidLogging = errors.New("invalid logging settings")
)

// Config is the complete tool configuration.
type Config struct {
	Sort    SortConfig    `mapstructure:"sort"`
	Sample  SampleConfig  `mapstructure:"sample"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// SortConfig holds the external sort settings.
type SortConfig struct {
	MemoryBudget string `mapstructure:"memory_budget"`
	TempDir      string `mapstructure:"temp_dir"`
	Compression  string `mapstructure:"compression"`
	ChromColumn  int    `mapstructure:"chrom_column"`
	StartColumn  int    `mapstructure:"start_column"`
	BGZip        bool   `mapstructure:"bgzip"`
}

// SampleConfig holds the downsampling settings.
type SampleConfig struct {
	FrameSize    int64  `mapstructure:"frame_size"`
	Cap          int64  `mapstructure:"cap"`
	Strategy     string `mapstructure:"strategy"`
	CoverageOnly bool   `mapstructure:"coverage_only"`
}

// LoggingConfig selects the log level and handler.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads the configuration.  path may be empty, in which case only
// defaults and the environment are used.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "reading config %s", path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshalling config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "validating config")
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("sort.memory_budget", DefaultMemoryBudget)
	v.SetDefault("sort.temp_dir", "")
	v.SetDefault("sort.compression", DefaultCompression)
	v.SetDefault("sort.chrom_column", genomics.BEDColumns.Chromosome)
	v.SetDefault("sort.start_column", genomics.BEDColumns.Start)
	v.SetDefault("sort.bgzip", false)

	v.SetDefault("sample.frame_size", DefaultFrameSize)
	v.SetDefault("sample.cap", DefaultCap)
	v.SetDefault("sample.strategy", DefaultStrategy)
	v.SetDefault("sample.coverage_only", false)

	v.SetDefault("logging.level", DefaultLogLevel)
	v.SetDefault("logging.format", DefaultLogFormat)
}

// Validate checks every section.
func (c *Config) Validate() error {
	if _, err := c.Sort.MemoryBudgetBytes(); err != nil {
		return err
	}
	if c.Sort.ChromColumn < 0 || c.Sort.StartColumn < 0 || c.Sort.ChromColumn == c.Sort.StartColumn {
		return errors.Wrapf(ErrInvalidColumns, "chromosome %d, start %d", c.Sort.ChromColumn, c.Sort.StartColumn)
	}
	if _, err := extsort.ParseCompression(c.Sort.Compression); err != nil {
		return err
	}
	if c.Sample.FrameSize <= 0 || c.Sample.Cap <= 0 {
		return errors.Wrapf(ErrInvalidSample, "frame size %d, cap %d", c.Sample.FrameSize, c.Sample.Cap)
	}
	if _, err := sampler.ParseStrategy(c.Sample.Strategy); err != nil {
		return err
	}
	if _, err := c.Logging.level(); err != nil {
		return err
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return errors.Wrapf(ErrInvalidLogging, "unknown format %q", c.Logging.Format)
	}
	return nil
}

// MemoryBudgetBytes parses the human readable memory budget, such as
// "512MiB" or "2GB".
func (c SortConfig) MemoryBudgetBytes() (int64, error) {
	n, err := humanize.ParseBytes(c.MemoryBudget)
	if err != nil {
		return 0, errors.Wrapf(ErrInvalidMemoryBudget, "%q: %v", c.MemoryBudget, err)
	}
	if n == 0 || n > 1<<62 {
		return 0, errors.Wrapf(ErrInvalidMemoryBudget, "%q out of range", c.MemoryBudget)
	}
	return int64(n), nil
}

// Columns returns the key columns as genomics.Columns with BED semantics for
// the end column.
func (c SortConfig) Columns() genomics.Columns {
	cols := genomics.BEDColumns
	cols.Chromosome = c.ChromColumn
	cols.Start = c.StartColumn
	return cols
}

// Sorter converts c into an extsort.Config.
func (c SortConfig) Sorter(logger *slog.Logger) (extsort.Config, error) {
	budget, err := c.MemoryBudgetBytes()
	if err != nil {
		return extsort.Config{}, err
	}
	compression, err := extsort.ParseCompression(c.Compression)
	if err != nil {
		return extsort.Config{}, err
	}
	return extsort.Config{
		MemoryBudget: budget,
		Columns:      c.Columns(),
		TempDir:      c.TempDir,
		Compression:  compression,
		BGZF:         c.BGZip,
		Logger:       logger,
	}, nil
}

// Sampler converts c into a sampler.Config.  trackEnd bounds the frames.
func (c SampleConfig) Sampler(trackEnd int64) (sampler.Config, error) {
	strategy, err := sampler.ParseStrategy(c.Strategy)
	if err != nil {
		return sampler.Config{}, err
	}
	return sampler.Config{
		FrameSize:    c.FrameSize,
		Cap:          c.Cap,
		TrackEnd:     trackEnd,
		CoverageOnly: c.CoverageOnly,
		Strategy:     strategy,
	}, nil
}

func (c LoggingConfig) level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return 0, errors.Wrapf(ErrInvalidLogging, "unknown level %q", c.Level)
	}
	return level, nil
}

// Logger returns a logger writing to w.
func (c LoggingConfig) Logger(w io.Writer) (*slog.Logger, error) {
	level, err := c.level()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}
