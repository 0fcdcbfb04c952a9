// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package timerwheel implements a hierarchical deadline timer wheel:
// O(1) schedule and cancel, and polling bounded by the number of ticks
// advanced plus the number of timers that actually expired.
//
// The wheel has no relation to xring's ring buffers beyond sharing a
// module — it owns no shared byte region and is driven entirely by a
// caller-supplied monotonic clock value passed to Poll.
//
// # Quick Start
//
//	w, err := timerwheel.New(timerwheel.Milliseconds, 0, 1<<20, 1024)
//	id, err := w.Schedule(5 * (1 << 20))
//	n, err := w.Poll(now, func(unit timerwheel.TimeUnit, now, timerID int64) (bool, error) {
//	    fmt.Println("fired", timerID)
//	    return true, nil // true = consume the timer
//	}, 256)
package timerwheel

import (
	"fmt"
)

// TimeUnit names the unit start_time/tick_resolution/now are expressed
// in. The wheel itself is unit-agnostic; TimeUnit is passed through to
// Handler purely so callers sharing one Handler across several wheels
// can tell them apart.
type TimeUnit int8

const (
	Nanoseconds TimeUnit = iota
	Microseconds
	Milliseconds
	Seconds
)

const nullDeadline = int64(-1)

// Handler processes one expired (or still-pending) timer. It returns
// (true, nil) to consume the timer, (false, nil) to leave it in place
// for redelivery on a later Poll, or a non-nil error to abort draining;
// on error the timer is still consumed: bookkeeping commits before the
// error reaches the caller.
type Handler func(unit TimeUnit, now, timerID int64) (bool, error)

// Wheel is a hierarchical deadline timer wheel: a circular array of
// spokes, each holding a growable slice of deadline cells. Not safe for
// concurrent use — callers that schedule from multiple goroutines must
// serialize access externally; the wheel itself never blocks.
type Wheel struct {
	timeUnit                TimeUnit
	startTime               int64
	tickResolution          int64
	ticksPerWheel           int32
	mask                    int32
	initialTickAllocation   int32
	spokes                  [][]int64
	currentTick             int64
	pollIndex               int32
	liveCount               int32
}

// Option configures a Wheel at construction time.
type Option func(*Wheel)

// WithInitialTickAllocation sets the number of deadline cells initially
// allocated per spoke. Must be a positive power of two; defaults to 16.
func WithInitialTickAllocation(n int32) Option {
	return func(w *Wheel) { w.initialTickAllocation = n }
}

// New constructs a Wheel. tickResolution and ticksPerWheel must each be
// a positive power of two, or New returns ErrInvalidArgument.
func New(unit TimeUnit, startTime, tickResolution int64, ticksPerWheel int32, opts ...Option) (*Wheel, error) {
	if tickResolution <= 0 || tickResolution&(tickResolution-1) != 0 {
		return nil, fmt.Errorf("%w: tick_resolution must be a positive power of two, got %d", ErrInvalidArgument, tickResolution)
	}
	if ticksPerWheel <= 0 || ticksPerWheel&(ticksPerWheel-1) != 0 {
		return nil, fmt.Errorf("%w: ticks_per_wheel must be a positive power of two, got %d", ErrInvalidArgument, ticksPerWheel)
	}

	w := &Wheel{
		timeUnit:              unit,
		startTime:             startTime,
		tickResolution:        tickResolution,
		ticksPerWheel:         ticksPerWheel,
		mask:                  ticksPerWheel - 1,
		initialTickAllocation: 16,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.initialTickAllocation <= 0 || w.initialTickAllocation&(w.initialTickAllocation-1) != 0 {
		return nil, fmt.Errorf("%w: initial_tick_allocation must be a positive power of two, got %d", ErrInvalidArgument, w.initialTickAllocation)
	}

	w.spokes = make([][]int64, ticksPerWheel)
	for i := range w.spokes {
		w.spokes[i] = newSpoke(w.initialTickAllocation)
	}
	return w, nil
}

func newSpoke(n int32) []int64 {
	spoke := make([]int64, n)
	for i := range spoke {
		spoke[i] = nullDeadline
	}
	return spoke
}

// CurrentTickTime returns the deadline time the wheel is currently
// positioned at: start_time + current_tick * tick_resolution.
func (w *Wheel) CurrentTickTime() int64 {
	return w.startTime + w.currentTick*w.tickResolution
}

// AdvanceTickTime moves the wheel's current tick forward to the tick
// boundary at or after newTime, without draining any cells. It is a
// no-op if newTime does not advance past CurrentTickTime(); Poll
// advances ticks on its own and does not require this to be called
// first.
func (w *Wheel) AdvanceTickTime(newTime int64) {
	if newTime <= w.CurrentTickTime() {
		return
	}
	ticks := (newTime - w.startTime + w.tickResolution - 1) / w.tickResolution
	if ticks > w.currentTick {
		w.currentTick = ticks
	}
}

// TimerCount returns the number of live (scheduled, not yet cancelled
// or expired) timers.
func (w *Wheel) TimerCount() int32 { return w.liveCount }

// Schedule reserves a cell for deadline d and returns its timer ID.
// d is normalized to at least CurrentTickTime(): a deadline already in
// the past fires on the next Poll at or after now.
func (w *Wheel) Schedule(d int64) (int64, error) {
	if d < w.CurrentTickTime() {
		d = w.CurrentTickTime()
	}
	spokeIndex := int32((d-w.startTime)/w.tickResolution) & w.mask
	spoke := w.spokes[spokeIndex]

	cellIndex := int32(-1)
	for i, deadline := range spoke {
		if deadline == nullDeadline {
			cellIndex = int32(i)
			break
		}
	}
	if cellIndex < 0 {
		grown, err := growSpoke(spoke)
		if err != nil {
			return -1, err
		}
		cellIndex = int32(len(spoke))
		spoke = grown
		w.spokes[spokeIndex] = spoke
	}

	spoke[cellIndex] = d
	w.liveCount++
	return encodeTimerID(spokeIndex, cellIndex), nil
}

// growSpoke doubles a spoke's cell allocation, preserving every
// existing cell's index: the spoke-to-deadline mapping in Schedule
// depends only on which spoke a cell belongs to, never its position
// within the spoke, so growth is a plain append.
func growSpoke(spoke []int64) ([]int64, error) {
	newLen := int32(len(spoke)) * 2
	if newLen <= 0 {
		return nil, fmt.Errorf("%w: spoke cell allocation cannot grow past int32 range", ErrOverflow)
	}
	grown := make([]int64, newLen)
	copy(grown, spoke)
	for i := len(spoke); i < len(grown); i++ {
		grown[i] = nullDeadline
	}
	return grown, nil
}

// Cancel invalidates the cell for timerID. Returns false if timerID is
// out of range or already cancelled/expired.
func (w *Wheel) Cancel(timerID int64) bool {
	spokeIndex, cellIndex := decodeTimerID(timerID)
	if spokeIndex < 0 || spokeIndex >= w.ticksPerWheel {
		return false
	}
	spoke := w.spokes[spokeIndex]
	if cellIndex < 0 || int(cellIndex) >= len(spoke) {
		return false
	}
	if spoke[cellIndex] == nullDeadline {
		return false
	}
	spoke[cellIndex] = nullDeadline
	w.liveCount--
	return true
}

// Poll advances current_tick while CurrentTickTime() <= now, delivering
// expired timers to handler in cell-index order within each tick, up to
// expiryLimit expirations. It returns the number of timers consumed.
//
// If handler returns false for a cell, that cell is left in place and
// Poll stops draining immediately, returning the count reached so far;
// the next Poll call resumes at the same cell. If handler returns an
// error, the cell is still consumed (bookkeeping commits before the
// error propagates), and Poll returns immediately with that error.
func (w *Wheel) Poll(now int64, handler Handler, expiryLimit int) (int, error) {
	count := 0
	for count < expiryLimit {
		if w.CurrentTickTime() > now {
			break
		}
		spokeIndex := int32(w.currentTick & int64(w.mask))
		spoke := w.spokes[spokeIndex]

		drainedSpoke := true
		for i := w.pollIndex; i < int32(len(spoke)); i++ {
			deadline := spoke[i]
			if deadline == nullDeadline || deadline > now {
				continue
			}

			timerID := encodeTimerID(spokeIndex, i)
			expired, err := handler(w.timeUnit, now, timerID)
			if err != nil {
				spoke[i] = nullDeadline
				w.liveCount--
				w.pollIndex = i + 1
				return count, err
			}
			if !expired {
				w.pollIndex = i
				return count, nil
			}

			spoke[i] = nullDeadline
			w.liveCount--
			count++
			w.pollIndex = i + 1
			if count == expiryLimit {
				drainedSpoke = false
				break
			}
		}

		if !drainedSpoke {
			break
		}
		w.pollIndex = 0
		w.currentTick++
	}
	return count, nil
}

// ForEach delivers (deadline, timerID) for every live timer, in
// unspecified order.
func (w *Wheel) ForEach(f func(deadline, timerID int64)) {
	for spokeIndex, spoke := range w.spokes {
		for cellIndex, deadline := range spoke {
			if deadline == nullDeadline {
				continue
			}
			f(deadline, encodeTimerID(int32(spokeIndex), int32(cellIndex)))
		}
	}
}

// Clear cancels every live timer.
func (w *Wheel) Clear() {
	for _, spoke := range w.spokes {
		for i := range spoke {
			spoke[i] = nullDeadline
		}
	}
	w.liveCount = 0
}

// ResetStartTime sets the wheel's start time to newStart and its current
// tick to zero. Returns ErrInvalidState if any timer is currently live.
func (w *Wheel) ResetStartTime(newStart int64) error {
	if w.liveCount != 0 {
		return fmt.Errorf("%w: cannot reset start time with %d live timers", ErrInvalidState, w.liveCount)
	}
	w.startTime = newStart
	w.currentTick = 0
	w.pollIndex = 0
	return nil
}

func encodeTimerID(spokeIndex, cellIndex int32) int64 {
	return int64(uint32(spokeIndex))<<32 | int64(uint32(cellIndex))
}

func decodeTimerID(timerID int64) (spokeIndex, cellIndex int32) {
	return int32(uint32(timerID >> 32)), int32(uint32(timerID))
}
