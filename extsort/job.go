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
	"context"
)

// Job is a SortFile running in the background.
type Job struct {
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Start runs SortFile(ctx, inPath, outPath) on a new goroutine.  The Sorter
// must not be used again until the Job has finished.
func (s *Sorter) Start(ctx context.Context, inPath, outPath string) *Job {
	ctx, cancel := context.WithCancel(ctx)
	j := &Job{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(j.done)
		defer cancel()
		j.err = s.SortFile(ctx, inPath, outPath)
	}()
	return j
}

// Cancel aborts the job.  Any partial output is removed; Wait reports the
// context error unless the job had already completed.
func (j *Job) Cancel() {
	j.cancel()
}

// Done is closed when the job has finished.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Wait blocks until the job has finished and returns its error.
func (j *Job) Wait() error {
	<-j.done
	return j.err
}
