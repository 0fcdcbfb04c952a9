// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package timerwheel

import "errors"

// ErrInvalidArgument indicates a non-positive or non-power-of-two
// tick_resolution, ticks_per_wheel, or initial_tick_allocation.
var ErrInvalidArgument = errors.New("timerwheel: invalid argument")

// ErrInvalidState indicates ResetStartTime was called while timers are
// still live.
var ErrInvalidState = errors.New("timerwheel: invalid state")

// ErrOverflow indicates a spoke's cell allocation could not grow
// further (doubling it would exceed the int32 range of cell indices).
var ErrOverflow = errors.New("timerwheel: overflow")
