// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package xring provides lock-free, byte-region-backed message-passing
// ring buffers: MPSC (many producers, one consumer), SPSC (one producer,
// one consumer) and a lossy one-to-many broadcast buffer. Records are
// variable-length and typed; the region backing them may be ordinary
// process memory or a memory-mapped shared-memory segment, since every
// access goes through [code.hybscloud.com/xring/buffer.Atomic] rather
// than assuming a Go-managed slice of typed values.
//
// See [code.hybscloud.com/xring/timerwheel] for the companion O(1)
// hierarchical deadline timer wheel, an independent component that
// shares no code with the ring buffers.
//
// # Quick Start
//
// MPSC — many producers, one consumer:
//
//	buf := buffer.New(1024 + ringTrailerLength) // capacity must be pow2 + trailer
//	q, err := xring.NewMPSC(buf)
//	ok, err := q.Write(typeID, payload)
//	n, err := q.Read(func(typeID int32, buf *buffer.Atomic, offset, length int32) error {
//	    handle(typeID, buf.Slice(offset, length))
//	    return nil
//	}, 64)
//
// SPSC is the same shape with [xring.NewSPSC], for the single-producer
// fast path that needs no CAS on the tail.
//
// Broadcast — one transmitter, many independent lossy receivers:
//
//	tx, err := xring.NewTransmitter(buf)
//	rx, err := xring.NewReceiver(buf)
//	err = tx.Transmit(typeID, payload)
//	if rx.ReceiveNext() {
//	    use(rx.TypeID(), buf.Slice(rx.Offset(), rx.Length()))
//	    if !rx.Validate() {
//	        // the transmitter overwrote this record while we were reading it
//	    }
//	}
//
// # Capacity
//
// A ring buffer's backing [buffer.Atomic] must be sized as a
// power-of-two data region plus a fixed trailer of cache-line-padded
// counters (see record.go); NewMPSC/NewSPSC/NewTransmitter/NewReceiver
// return [ErrInvalidState] otherwise. The maximum message length is
// capacity/8.
//
// # Error Handling
//
// [ErrInsufficientCapacity] (an alias of [code.hybscloud.com/iox.ErrWouldBlock])
// is a control-flow signal, not a failure — TryClaim returns it when the
// ring has no room right now, and Write reports the same condition as
// (false, nil):
//
//	backoff := iox.Backoff{}
//	for {
//	    ok, err := q.Write(typeID, payload)
//	    if err != nil {
//	        return err // malformed call, not a capacity signal
//	    }
//	    if ok {
//	        backoff.Reset()
//	        break
//	    }
//	    backoff.Wait()
//	}
//
// [IsInsufficientCapacity], [IsSemantic] and [IsNonFailure] delegate to
// the equivalent [code.hybscloud.com/iox] classifiers.
//
// # Thread Safety
//
//   - MPSC: any number of producer goroutines, exactly one consumer goroutine.
//   - SPSC: exactly one producer goroutine, exactly one consumer goroutine.
//   - Broadcast: exactly one transmitter goroutine; any number of independent
//     receiver goroutines, each owning its own [Receiver] or [CopyReceiver].
//
// Violating these constraints causes data corruption, not merely a race
// detector finding — these algorithms synchronize through acquire/release
// memory ordering on individual counters, which the race detector cannot
// observe (see [RaceEnabled]).
//
// # Dependencies
//
// This package uses [code.hybscloud.com/iox] for semantic errors,
// [code.hybscloud.com/atomix] for the atomic primitives underlying
// [code.hybscloud.com/xring/buffer.Atomic], and [code.hybscloud.com/spin]
// for CAS backoff in MPSC's claim loop.
package xring
