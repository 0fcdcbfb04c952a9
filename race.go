// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build race

package xring

// RaceEnabled is true when the race detector is active.
// Used by tests to skip concurrent tests whose correctness depends on
// memory-ordering proofs the race detector cannot verify and flags as
// false positives (e.g. the head-cache relaxed-store/plain-load pairing
// in MPSC's claim loop).
const RaceEnabled = true
