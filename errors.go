// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package xring

import (
	"errors"

	"code.hybscloud.com/iox"
)

// ErrInsufficientCapacity indicates a claim could not proceed because the
// ring buffer has no room for the message right now. TryClaim returns it;
// Write reports the same condition as (false, nil) instead.
//
// It is a control flow signal, not a failure: the caller should retry
// with backoff rather than propagate it. This is an alias for
// [iox.ErrWouldBlock] for ecosystem consistency — insufficient capacity
// and would-block are the same signal.
//
// Example:
//
//	backoff := iox.Backoff{}
//	for {
//	    index, err := q.TryClaim(typeID, int32(len(payload)))
//	    if err == nil {
//	        copy(q.Payload(index), payload)
//	        q.Commit(index)
//	        backoff.Reset()
//	        break
//	    }
//	    if xring.IsInsufficientCapacity(err) {
//	        backoff.Wait()
//	        continue
//	    }
//	    return err // Unexpected error
//	}
var ErrInsufficientCapacity = iox.ErrWouldBlock

// ErrInvalidArgument indicates a caller-supplied parameter violated a
// precondition: a type ID below 1 or a message length outside
// [0, capacity/8]. Commit, Abort and Payload do not range-check their
// index argument.
var ErrInvalidArgument = errors.New("xring: invalid argument")

// ErrInvalidState indicates an operation was attempted in a state that
// forbids it: committing or aborting an already-finalized claim, or a
// backing buffer whose data region is not a positive power of two or
// whose base address is unaligned.
var ErrInvalidState = errors.New("xring: invalid state")

// ErrOverflow is not returned by any operation in this package; the
// timer wheel reports spoke growth failure with timerwheel.ErrOverflow.
var ErrOverflow = errors.New("xring: overflow")

// ErrUnableToKeepUp is returned by CopyReceiver.Receive when the
// receiver was lapped while locating the message, or the transmitter
// overwrote the message before the post-copy validation.
var ErrUnableToKeepUp = errors.New("xring: broadcast receiver unable to keep up")

// IsInsufficientCapacity reports whether err indicates the ring buffer
// had no room. Delegates to [iox.IsWouldBlock] for wrapped error support.
func IsInsufficientCapacity(err error) bool {
	return iox.IsWouldBlock(err)
}

// IsSemantic reports whether err is a control flow signal, not a failure.
// Delegates to [iox.IsSemantic].
func IsSemantic(err error) bool {
	return iox.IsSemantic(err)
}

// IsNonFailure reports whether err represents a non-failure condition.
// Delegates to [iox.IsNonFailure].
func IsNonFailure(err error) bool {
	return iox.IsNonFailure(err)
}
