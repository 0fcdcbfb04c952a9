// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package xring

import (
	"fmt"

	"code.hybscloud.com/spin"
	"code.hybscloud.com/xring/buffer"
)

// MPSC is a lock-free many-producers/one-consumer ring buffer of
// variable-length, typed records over a shared byte region.
//
// Producers claim space with a CAS loop on the trailer's tail counter
// (claimCapacity below); the sole consumer drains records in tail
// order. Grounded on other_examples' aeron-go ManyToOneRingBuffer port,
// translated onto [buffer.Atomic] and the atomix/spin idiom.
type MPSC struct {
	buf                    *buffer.Atomic
	capacity               int32
	maxMsgLength           int32
	tailPositionIndex      int32
	headPositionIndex      int32
	headCachePositionIndex int32
	correlationIDIndex     int32
	consumerHeartbeatIndex int32
}

// NewMPSC wraps buf as an MPSC ring buffer. buf's capacity must equal a
// power-of-two data region plus the trailer (see ringTrailerLength).
func NewMPSC(buf *buffer.Atomic) (*MPSC, error) {
	capacity := buf.Capacity() - ringTrailerLength
	if capacity <= 0 || !isPowerOfTwo(capacity) {
		return nil, fmt.Errorf("%w: data region (capacity=%d) must be a power of two", ErrInvalidState, capacity)
	}
	if err := buf.VerifyAlignment(Alignment); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	return &MPSC{
		buf:                    buf,
		capacity:               capacity,
		maxMsgLength:           capacity / 8,
		tailPositionIndex:      capacity + tailPositionOffset,
		headPositionIndex:      capacity + headPositionOffset,
		headCachePositionIndex: capacity + headCachePositionOffset,
		correlationIDIndex:     capacity + correlationCounterOffset,
		consumerHeartbeatIndex: capacity + consumerHeartbeatOffset,
	}, nil
}

// Capacity returns the usable data region size in bytes.
func (q *MPSC) Capacity() int32 { return q.capacity }

// NextCorrelationID atomically post-increments the trailer's
// correlation-id counter and returns its prior value.
func (q *MPSC) NextCorrelationID() int64 {
	return q.buf.GetAndAddInt64(q.correlationIDIndex, 1)
}

// SetConsumerHeartbeatTime records the consumer's last-seen liveness
// time, for external stuck-producer detection.
func (q *MPSC) SetConsumerHeartbeatTime(t int64) {
	q.buf.PutInt64Ordered(q.consumerHeartbeatIndex, t)
}

// ConsumerHeartbeatTime reads the last recorded consumer heartbeat.
func (q *MPSC) ConsumerHeartbeatTime() int64 {
	return q.buf.GetInt64Volatile(q.consumerHeartbeatIndex)
}

// ProducerPosition returns the current tail position.
func (q *MPSC) ProducerPosition() int64 {
	return q.buf.GetInt64Volatile(q.tailPositionIndex)
}

// ConsumerPosition returns the current head position.
func (q *MPSC) ConsumerPosition() int64 {
	return q.buf.GetInt64Volatile(q.headPositionIndex)
}

// Size returns the number of unread bytes, computed via a
// head-tail-head double read so a concurrent claim can't produce a
// stale result.
func (q *MPSC) Size() int64 {
	for {
		before := q.buf.GetInt64Volatile(q.headPositionIndex)
		tail := q.buf.GetInt64Volatile(q.tailPositionIndex)
		after := q.buf.GetInt64Volatile(q.headPositionIndex)
		if before == after {
			return tail - after
		}
	}
}

// claimCapacity reserves requiredCapacity (already Alignment-aligned)
// bytes for a producer and returns the record offset to write at, or
// -1 if there isn't room.
func (q *MPSC) claimCapacity(requiredCapacity int32) int32 {
	mask := q.capacity - 1
	headCache := q.buf.GetInt64(q.headCachePositionIndex)

	var tail int64
	var tailIndex int32
	var padding int32

	sw := spin.Wait{}
	for {
		tail = q.buf.GetInt64Volatile(q.tailPositionIndex)
		available := q.capacity - int32(tail-headCache)

		if requiredCapacity > available {
			headCache = q.buf.GetInt64Volatile(q.headPositionIndex)
			if requiredCapacity > q.capacity-int32(tail-headCache) {
				return -1
			}
			q.buf.PutInt64(q.headCachePositionIndex, headCache)
		}

		padding = 0
		tailIndex = int32(tail & int64(mask))
		toEnd := q.capacity - tailIndex

		if requiredCapacity > toEnd {
			headIndex := int32(headCache & int64(mask))
			if requiredCapacity > headIndex {
				headCache = q.buf.GetInt64Volatile(q.headPositionIndex)
				headIndex = int32(headCache & int64(mask))
				if requiredCapacity > headIndex {
					return -1
				}
				q.buf.PutInt64(q.headCachePositionIndex, headCache)
			}
			padding = toEnd
		}

		if q.buf.CompareAndSetInt64(q.tailPositionIndex, tail, tail+int64(requiredCapacity)+int64(padding)) {
			break
		}
		sw.Once()
	}

	if padding != 0 {
		q.buf.PutInt32Ordered(TypeOffset(tailIndex), PaddingTypeID)
		q.buf.PutInt32Ordered(LengthOffset(tailIndex), padding)
		tailIndex = 0
	}

	return tailIndex
}

// TryClaim reserves space for a length-byte payload and pre-writes a
// claimed (negative-length) header. The caller must then fill the
// slice returned by Payload and finish with Commit or Abort. Returns
// ErrInsufficientCapacity if there isn't room.
func (q *MPSC) TryClaim(typeID, length int32) (int32, error) {
	if err := checkTypeID(typeID); err != nil {
		return -1, err
	}
	if err := checkMsgLength(length, q.maxMsgLength); err != nil {
		return -1, err
	}

	recordLength := length + HeaderLength
	required := AlignInt32(recordLength, Alignment)
	index := q.claimCapacity(required)
	if index < 0 {
		return -1, ErrInsufficientCapacity
	}

	q.buf.PutInt32(TypeOffset(index), typeID)
	q.buf.PutInt32Ordered(LengthOffset(index), -recordLength)
	return index, nil
}

// Payload returns a zero-copy view of the payload region of the record
// claimed at index, for the caller to fill after TryClaim.
func (q *MPSC) Payload(index int32) []byte {
	length := -q.buf.GetInt32(LengthOffset(index))
	return q.buf.Slice(PayloadOffset(index), length-HeaderLength)
}

// Commit finalizes a claimed record, making it visible to the consumer.
// Returns ErrInvalidState if the record at index was not a live claim.
func (q *MPSC) Commit(index int32) error {
	length := q.buf.GetInt32(LengthOffset(index))
	if length >= 0 {
		return fmt.Errorf("%w: record at %d already committed or aborted", ErrInvalidState, index)
	}
	q.buf.PutInt32Ordered(LengthOffset(index), -length)
	return nil
}

// Abort converts a claimed record into a padding record so the
// consumer skips it. Returns ErrInvalidState if the record at index
// was not a live claim.
func (q *MPSC) Abort(index int32) error {
	length := q.buf.GetInt32(LengthOffset(index))
	if length >= 0 {
		return fmt.Errorf("%w: record at %d already committed or aborted", ErrInvalidState, index)
	}
	q.buf.PutInt32(TypeOffset(index), PaddingTypeID)
	q.buf.PutInt32Ordered(LengthOffset(index), -length)
	return nil
}

// Write atomically reserves space and publishes a message in one call.
// Returns (false, nil) if there isn't room, (false, err) if typeID or
// length is invalid, and (true, nil) on success.
func (q *MPSC) Write(typeID int32, src []byte) (bool, error) {
	if err := checkTypeID(typeID); err != nil {
		return false, err
	}
	if err := checkMsgLength(int32(len(src)), q.maxMsgLength); err != nil {
		return false, err
	}

	recordLength := int32(len(src)) + HeaderLength
	required := AlignInt32(recordLength, Alignment)
	index := q.claimCapacity(required)
	if index < 0 {
		return false, nil
	}

	q.buf.PutInt32(TypeOffset(index), typeID)
	q.buf.PutInt32Ordered(LengthOffset(index), -recordLength)
	q.buf.PutBytes(PayloadOffset(index), src)
	q.buf.PutInt32Ordered(LengthOffset(index), recordLength)
	return true, nil
}

// Handler processes one delivered message. buf is the ring's backing
// region; offset/length locate the payload (not including the header).
// A Handler may return an error to abort the current Read early; the
// ring buffer's bookkeeping (head advance, zeroed bytes) is updated
// before the error is returned to the caller.
type Handler func(typeID int32, buf *buffer.Atomic, offset, length int32) error

// Read drains up to limit non-padding messages, invoking handler for
// each. It returns the number of messages delivered. If handler
// returns an error, Read stops, finishes its bookkeeping for the bytes
// already scanned, and returns that error.
func (q *MPSC) Read(handler Handler, limit int) (int, error) {
	head := q.buf.GetInt64(q.headPositionIndex)
	headIndex := int32(head & int64(q.capacity-1))
	maxBlockLength := q.capacity - headIndex
	var bytesRead int32
	messagesRead := 0

	var handlerErr error
	for messagesRead < limit && bytesRead < maxBlockLength {
		recordIndex := headIndex + bytesRead
		length := q.buf.GetInt32Volatile(LengthOffset(recordIndex))
		if length <= 0 {
			break
		}

		bytesRead += AlignInt32(length, Alignment)

		typeID := q.buf.GetInt32(TypeOffset(recordIndex))
		if typeID == PaddingTypeID {
			continue
		}

		messagesRead++
		if err := handler(typeID, q.buf, PayloadOffset(recordIndex), length-HeaderLength); err != nil {
			handlerErr = err
			break
		}
	}

	if bytesRead != 0 {
		q.buf.SetMemory(headIndex, bytesRead, 0)
		q.buf.PutInt64Ordered(q.headPositionIndex, head+int64(bytesRead))
	}

	return messagesRead, handlerErr
}

// Unblock performs consumer-side recovery of a producer that crashed
// mid-publication, converting the gap at head into a padding record so
// the consumer can proceed. It is conservative by design: a racing
// producer that is about to publish must never be corrupted by Unblock,
// so Unblock refuses to act whenever a second read of the candidate cell
// shows it changed since the first read.
func (q *MPSC) Unblock() bool {
	mask := q.capacity - 1
	head := q.buf.GetInt64(q.headPositionIndex)
	headIndex := int32(head & int64(mask))

	length := q.buf.GetInt32Volatile(LengthOffset(headIndex))
	if length < 0 {
		// Staged but unpublished: convert to a published padding record.
		q.buf.PutInt32(TypeOffset(headIndex), PaddingTypeID)
		q.buf.PutInt32Ordered(LengthOffset(headIndex), -length)
		return true
	}
	if length != 0 {
		return false
	}

	// Scan forward by one alignment; only act if that cell's length is
	// stable across two reads and the region in between is all zero.
	nextIndex := headIndex + Alignment
	if nextIndex >= q.capacity {
		nextIndex = 0
	}

	before := q.buf.GetInt32Volatile(LengthOffset(nextIndex))
	if before == 0 {
		return false
	}
	if !allZero(q.buf, headIndex, Alignment) {
		return false
	}
	after := q.buf.GetInt32Volatile(LengthOffset(nextIndex))
	if after != before {
		// A producer mutated the candidate cell mid-scan: back off.
		return false
	}

	tail := q.buf.GetInt64Volatile(q.tailPositionIndex)
	if int32(tail-head)-Alignment < Alignment {
		return false
	}

	// The zeroed gap runs from head up to the candidate cell: one alignment.
	q.buf.PutInt32(TypeOffset(headIndex), PaddingTypeID)
	q.buf.PutInt32Ordered(LengthOffset(headIndex), Alignment)
	return true
}

func allZero(buf *buffer.Atomic, offset, length int32) bool {
	for i := int32(0); i < length; i++ {
		if buf.GetByte(offset+i) != 0 {
			return false
		}
	}
	return true
}
