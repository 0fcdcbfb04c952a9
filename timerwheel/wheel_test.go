// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package timerwheel_test

import (
	"errors"
	"testing"

	"code.hybscloud.com/xring/timerwheel"
)

const tickResolution = 1 << 20
const ticksPerWheel = 1024

func newWheel(t *testing.T) *timerwheel.Wheel {
	t.Helper()
	w, err := timerwheel.New(timerwheel.Milliseconds, 0, tickResolution, ticksPerWheel)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return w
}

// TestNewRejectsNonPowerOfTwoParameters matches the constructor's
// validation contract.
func TestNewRejectsNonPowerOfTwoParameters(t *testing.T) {
	if _, err := timerwheel.New(timerwheel.Milliseconds, 0, 3, ticksPerWheel); !errors.Is(err, timerwheel.ErrInvalidArgument) {
		t.Fatalf("non-pow2 tick_resolution: got %v, want ErrInvalidArgument", err)
	}
	if _, err := timerwheel.New(timerwheel.Milliseconds, 0, tickResolution, 100); !errors.Is(err, timerwheel.ErrInvalidArgument) {
		t.Fatalf("non-pow2 ticks_per_wheel: got %v, want ErrInvalidArgument", err)
	}
}

// TestTimerFireOnTickEdge covers the tick-edge case: a timer scheduled
// at exactly 5 ticks falls in spoke 5 (floor((d-start_time)/tick_resolution)),
// so it fires on the poll whose now first reaches 5*tick_resolution,
// reporting that value.
func TestTimerFireOnTickEdge(t *testing.T) {
	w := newWheel(t)

	id, err := w.Schedule(5 * tickResolution)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	var firedAt int64 = -1
	var firedID int64 = -1
	for k := 0; k <= 6; k++ {
		now := int64(k) * tickResolution
		_, err := w.Poll(now, func(unit timerwheel.TimeUnit, now, timerID int64) (bool, error) {
			firedAt = now
			firedID = timerID
			return true, nil
		}, 16)
		if err != nil {
			t.Fatalf("Poll(k=%d): %v", k, err)
		}
	}

	if firedID != id {
		t.Fatalf("fired timer id: got %d, want %d", firedID, id)
	}
	if firedAt != 5*tickResolution {
		t.Fatalf("fired at: got %d, want %d", firedAt, 5*tickResolution)
	}
}

// TestTimerCancellation: cancel succeeds once, fails the second time,
// and no expiry is ever delivered afterward.
func TestTimerCancellation(t *testing.T) {
	w := newWheel(t)

	id, err := w.Schedule(63 * tickResolution)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	if _, err := w.Poll(16*tickResolution, noopHandler, 16); err != nil {
		t.Fatalf("Poll: %v", err)
	}

	if !w.Cancel(id) {
		t.Fatal("first Cancel: got false, want true")
	}
	if w.Cancel(id) {
		t.Fatal("second Cancel: got true, want false")
	}

	expired := 0
	for k := 17; k*tickResolution <= 128*tickResolution; k++ {
		n, err := w.Poll(int64(k)*tickResolution, func(timerwheel.TimeUnit, int64, int64) (bool, error) {
			expired++
			return true, nil
		}, 16)
		if err != nil {
			t.Fatalf("Poll(k=%d): %v", k, err)
		}
		_ = n
	}
	if expired != 0 {
		t.Fatalf("expirations after cancel: got %d, want 0", expired)
	}
}

// TestTimerMultipleInSameTickFireInCellOrder matches the ordering
// guarantee for same-tick expirations.
func TestTimerMultipleInSameTickFireInCellOrder(t *testing.T) {
	w := newWheel(t)

	var ids []int64
	for range 5 {
		id, err := w.Schedule(3 * tickResolution)
		if err != nil {
			t.Fatalf("Schedule: %v", err)
		}
		ids = append(ids, id)
	}

	var order []int64
	_, err := w.Poll(3*tickResolution, func(unit timerwheel.TimeUnit, now, timerID int64) (bool, error) {
		order = append(order, timerID)
		return true, nil
	}, 16)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}

	if len(order) != len(ids) {
		t.Fatalf("expired count: got %d, want %d", len(order), len(ids))
	}
	for i, id := range ids {
		if order[i] != id {
			t.Fatalf("expiry order[%d]: got %d, want %d", i, order[i], id)
		}
	}
}

// TestPollHandlerFalseRedeliversSameCell: a handler returning false
// leaves the cell in place for the next Poll call.
func TestPollHandlerFalseRedeliversSameCell(t *testing.T) {
	w := newWheel(t)

	id, err := w.Schedule(1 * tickResolution)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	calls := 0
	n, err := w.Poll(1*tickResolution, func(timerwheel.TimeUnit, int64, int64) (bool, error) {
		calls++
		return false, nil
	}, 16)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if n != 0 {
		t.Fatalf("expired count: got %d, want 0", n)
	}
	if calls != 1 {
		t.Fatalf("handler calls: got %d, want 1", calls)
	}

	if !w.Cancel(id) {
		t.Fatal("Cancel of the left-in-place timer should still succeed")
	}
}

// TestPollHandlerErrorStillConsumesCell matches the error propagation
// policy: bookkeeping commits before the handler's error reaches the
// caller.
func TestPollHandlerErrorStillConsumesCell(t *testing.T) {
	w := newWheel(t)

	id, err := w.Schedule(1 * tickResolution)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	boom := errors.New("boom")
	_, err = w.Poll(1*tickResolution, func(timerwheel.TimeUnit, int64, int64) (bool, error) {
		return true, boom
	}, 16)
	if !errors.Is(err, boom) {
		t.Fatalf("Poll error: got %v, want boom", err)
	}
	if w.TimerCount() != 0 {
		t.Fatalf("TimerCount after handler error: got %d, want 0", w.TimerCount())
	}
	if w.Cancel(id) {
		t.Fatal("Cancel of an already-consumed (errored) timer should fail")
	}
}

// TestForEachEnumeratesLiveTimers matches the enumeration round-trip
// property.
func TestForEachEnumeratesLiveTimers(t *testing.T) {
	w := newWheel(t)

	scheduled := map[int64]int64{}
	for _, d := range []int64{1 * tickResolution, 40 * tickResolution, 900 * tickResolution} {
		id, err := w.Schedule(d)
		if err != nil {
			t.Fatalf("Schedule(%d): %v", d, err)
		}
		scheduled[id] = d
	}

	seen := map[int64]int64{}
	w.ForEach(func(deadline, timerID int64) {
		seen[timerID] = deadline
	})

	if len(seen) != len(scheduled) {
		t.Fatalf("ForEach count: got %d, want %d", len(seen), len(scheduled))
	}
	for id, deadline := range scheduled {
		if seen[id] != deadline {
			t.Fatalf("ForEach[%d]: got %d, want %d", id, seen[id], deadline)
		}
	}
}

// TestClearRemovesAllLiveTimers matches Clear's idempotence.
func TestClearRemovesAllLiveTimers(t *testing.T) {
	w := newWheel(t)
	for _, d := range []int64{1 * tickResolution, 2 * tickResolution, 3 * tickResolution} {
		if _, err := w.Schedule(d); err != nil {
			t.Fatalf("Schedule(%d): %v", d, err)
		}
	}

	w.Clear()
	if w.TimerCount() != 0 {
		t.Fatalf("TimerCount after Clear: got %d, want 0", w.TimerCount())
	}

	w.Clear() // idempotent
	if w.TimerCount() != 0 {
		t.Fatalf("TimerCount after second Clear: got %d, want 0", w.TimerCount())
	}
}

// TestResetStartTimeFailsWhileTimersLive matches the live-timer guard.
func TestResetStartTimeFailsWhileTimersLive(t *testing.T) {
	w := newWheel(t)
	if _, err := w.Schedule(1 * tickResolution); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	if err := w.ResetStartTime(100); !errors.Is(err, timerwheel.ErrInvalidState) {
		t.Fatalf("ResetStartTime with live timer: got %v, want ErrInvalidState", err)
	}

	w.Clear()
	if err := w.ResetStartTime(100); err != nil {
		t.Fatalf("ResetStartTime after Clear: %v", err)
	}
	if w.CurrentTickTime() != 100 {
		t.Fatalf("CurrentTickTime after reset: got %d, want 100", w.CurrentTickTime())
	}
}

// TestScheduleGrowsSpokeBeyondInitialAllocation exercises the in-place
// doubling growth when a spoke's initial cell allocation is exhausted.
func TestScheduleGrowsSpokeBeyondInitialAllocation(t *testing.T) {
	w, err := timerwheel.New(timerwheel.Milliseconds, 0, tickResolution, ticksPerWheel, timerwheel.WithInitialTickAllocation(2))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var ids []int64
	for range 10 {
		id, err := w.Schedule(7 * tickResolution)
		if err != nil {
			t.Fatalf("Schedule: %v", err)
		}
		ids = append(ids, id)
	}

	expired := 0
	_, err = w.Poll(7*tickResolution, func(timerwheel.TimeUnit, int64, int64) (bool, error) {
		expired++
		return true, nil
	}, 100)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if expired != len(ids) {
		t.Fatalf("expired: got %d, want %d", expired, len(ids))
	}
}

// TestDeadlineInPastFiresOnNextPoll matches the edge case for
// already-past deadlines.
func TestDeadlineInPastFiresOnNextPoll(t *testing.T) {
	w := newWheel(t)
	if err := w.ResetStartTime(0); err != nil {
		t.Fatalf("ResetStartTime: %v", err)
	}
	w.AdvanceTickTime(10 * tickResolution)

	id, err := w.Schedule(1) // already in the past relative to current tick time
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	var firedID int64 = -1
	_, err = w.Poll(10*tickResolution, func(unit timerwheel.TimeUnit, now, timerID int64) (bool, error) {
		firedID = timerID
		return true, nil
	}, 16)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if firedID != id {
		t.Fatalf("fired id: got %d, want %d", firedID, id)
	}
}

func noopHandler(timerwheel.TimeUnit, int64, int64) (bool, error) { return true, nil }
