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

package sampler

import (
	"math/rand"

	"github.com/cockroachdb/errors"
)

// Strategy selects how a Sampler picks records within a frame.
type Strategy int

const (
	// Reservoir keeps a uniform sample of at most Cap records per frame
	// using Algorithm R, holding only Cap records in memory.
	Reservoir Strategy = iota
	// PassThrough forwards every record as it arrives.
	PassThrough
	// Shuffle buffers the whole frame and picks Cap records without
	// replacement when the frame closes.
	Shuffle
)

var strategyNames = map[Strategy]string{
	Reservoir:   "reservoir",
	PassThrough: "passthrough",
	Shuffle:     "shuffle",
}

func (s Strategy) String() string {
	if name, ok := strategyNames[s]; ok {
		return name
	}
	return "unknown"
}

// ParseStrategy parses the names returned by Strategy.String.
func ParseStrategy(name string) (Strategy, error) {
	for s, n := range strategyNames {
		if n == name {
			return s, nil
		}
	}
	return 0, errors.Wrapf(ErrInvalidConfig, "unknown strategy %q", name)
}

// picker holds the per-frame selection state of a strategy.
type picker interface {
	// offer presents r, the seen-th record of the frame.  It returns true if
	// r must be forwarded immediately.
	offer(r Record, seen int64) bool
	// flush returns the records picked from the frame in arrival order and
	// resets for the next frame.
	flush() []Record
	// samples reports whether the picker drops records beyond the cap.
	samples() bool
}

var pickers = map[Strategy]func(*Config) picker{
	Reservoir:   newReservoir,
	PassThrough: func(*Config) picker { return passThrough{} },
	Shuffle:     newShuffle,
}

type passThrough struct{}

func (passThrough) offer(Record, int64) bool { return true }
func (passThrough) flush() []Record          { return nil }
func (passThrough) samples() bool            { return false }

type reservoir struct {
	rng   *rand.Rand
	cap   int64
	slots []slot
}

func newReservoir(cfg *Config) picker {
	return &reservoir{rng: cfg.Rand, cap: cfg.Cap}
}

func (p *reservoir) offer(r Record, seen int64) bool {
	if seen <= p.cap {
		p.slots = append(p.slots, slot{seq: seen, record: r})
		return false
	}
	if j := p.rng.Int63n(seen); j < p.cap {
		p.slots[j] = slot{seq: seen, record: r}
	}
	return false
}

func (p *reservoir) flush() []Record {
	records := inArrivalOrder(p.slots)
	p.slots = p.slots[:0]
	return records
}

func (p *reservoir) samples() bool { return true }

type shuffle struct {
	rng   *rand.Rand
	cap   int
	slots []slot
}

func newShuffle(cfg *Config) picker {
	return &shuffle{rng: cfg.Rand, cap: int(cfg.Cap)}
}

func (p *shuffle) offer(r Record, seen int64) bool {
	p.slots = append(p.slots, slot{seq: seen, record: r})
	return false
}

// flush runs a partial Fisher-Yates shuffle that leaves a uniform random
// selection of cap records at the front of the buffer.
func (p *shuffle) flush() []Record {
	n := len(p.slots)
	k := p.cap
	if k > n {
		k = n
	}
	for i := 0; i < k; i++ {
		j := i + p.rng.Intn(n-i)
		p.slots[i], p.slots[j] = p.slots[j], p.slots[i]
	}
	records := inArrivalOrder(p.slots[:k])
	for i := range p.slots {
		p.slots[i] = slot{}
	}
	p.slots = p.slots[:0]
	return records
}

func (p *shuffle) samples() bool { return true }
