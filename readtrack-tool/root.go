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
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/VictoriaMetrics/metrics"
	"github.com/cockroachdb/errors"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/profile"
	"github.com/spf13/cobra"

	"github.com/googlegenomics/readtrack/genomics"
	"github.com/googlegenomics/readtrack/internal/config"
	"github.com/googlegenomics/readtrack/internal/source"
)

// app holds the state shared by every command.
type app struct {
	stdout, stderr io.Writer

	configPath  string
	logLevel    string
	logFormat   string
	profileDir  string
	metricsPath string
	token       string

	cfg     *config.Config
	logger  *slog.Logger
	opener  *source.Opener
	profile interface{ Stop() }
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{stdout: stdout, stderr: stderr}
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "readtrack-tool",
		Short: "Sort, downsample and query genomic feature files",
		Long: `readtrack-tool works on tab-delimited feature files such as BED.

Commands:
  sort      external sort by chromosome and start
  sample    downsample the features of one region
  overlap   print the features overlapping one region

Inputs may be local paths or gs://bucket/object names.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.teardown()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "YAML configuration file")
	flags.StringVar(&a.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.StringVar(&a.logFormat, "log-format", "", "log format (text, json)")
	flags.StringVar(&a.profileDir, "profile", "", "write a CPU profile to this directory")
	flags.StringVar(&a.metricsPath, "metrics", "", "write metrics in Prometheus text format to this file (- for stderr)")
	flags.StringVar(&a.token, "token", "", "OAuth2 bearer token for gs:// inputs")

	root.AddCommand(newSortCommand(a), newSampleCommand(a), newOverlapCommand(a))
	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Logging.Format = a.logFormat
	}
	if a.logger, err = cfg.Logging.Logger(a.stderr); err != nil {
		return err
	}
	a.cfg = cfg
	a.opener = source.NewOpener(a.token)

	if a.profileDir != "" {
		a.profile = profile.Start(profile.CPUProfile, profile.ProfilePath(a.profileDir), profile.NoShutdownHook)
	}
	a.logger.Debug("starting", "command", cmd.Name())
	return nil
}

func (a *app) teardown() error {
	if a.profile != nil {
		a.profile.Stop()
	}
	switch a.metricsPath {
	case "":
		return nil
	case "-":
		metrics.WritePrometheus(a.stderr, false)
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(a.metricsPath), 0755); err != nil {
		return errors.Wrap(err, "creating metrics directory")
	}
	f, err := os.Create(a.metricsPath)
	if err != nil {
		return errors.Wrap(err, "creating metrics file")
	}
	metrics.WritePrometheus(f, false)
	return errors.Wrap(f.Close(), "writing metrics")
}

// regionFlag is the value of a --region flag.
type regionFlag struct {
	genomics.Region
	set bool
}

func (r *regionFlag) String() string {
	if !r.set {
		return ""
	}
	return r.Region.String()
}

func (r *regionFlag) Set(s string) error {
	region, err := genomics.ParseRegion(s)
	if err != nil {
		return err
	}
	r.Region, r.set = region, true
	return nil
}

func (r *regionFlag) Type() string { return "region" }

// writeSummary prints rows of name/value pairs as a borderless table.
func writeSummary(w io.Writer, title string, rows [][2]interface{}) {
	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.DrawBorder = false
	tbl.Style().Options.SeparateColumns = false
	tbl.Style().Options.SeparateHeader = false
	tbl.SetTitle(title)
	for _, row := range rows {
		tbl.AppendRow(table.Row{row[0], row[1]})
	}
	tbl.Render()
}
