// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package xring

import (
	"fmt"

	"code.hybscloud.com/xring/buffer"
)

// SPSC is a single-producer/single-consumer ring buffer with the same
// record format as MPSC but simpler coordination: the tail is a plain
// store (no CAS needed — there's only one producer) and the head cache
// is written only by that producer.
type SPSC struct {
	buf                    *buffer.Atomic
	capacity               int32
	maxMsgLength           int32
	tailPositionIndex      int32
	headPositionIndex      int32
	headCachePositionIndex int32
	correlationIDIndex     int32
	consumerHeartbeatIndex int32
}

// NewSPSC wraps buf as an SPSC ring buffer. buf's capacity must equal a
// power-of-two data region plus the trailer (see ringTrailerLength).
func NewSPSC(buf *buffer.Atomic) (*SPSC, error) {
	capacity := buf.Capacity() - ringTrailerLength
	if capacity <= 0 || !isPowerOfTwo(capacity) {
		return nil, fmt.Errorf("%w: data region (capacity=%d) must be a power of two", ErrInvalidState, capacity)
	}
	if err := buf.VerifyAlignment(Alignment); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	return &SPSC{
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
func (q *SPSC) Capacity() int32 { return q.capacity }

// NextCorrelationID atomically post-increments the trailer's
// correlation-id counter and returns its prior value.
func (q *SPSC) NextCorrelationID() int64 {
	return q.buf.GetAndAddInt64(q.correlationIDIndex, 1)
}

// SetConsumerHeartbeatTime records the consumer's last-seen liveness time.
func (q *SPSC) SetConsumerHeartbeatTime(t int64) {
	q.buf.PutInt64Ordered(q.consumerHeartbeatIndex, t)
}

// ConsumerHeartbeatTime reads the last recorded consumer heartbeat.
func (q *SPSC) ConsumerHeartbeatTime() int64 {
	return q.buf.GetInt64Volatile(q.consumerHeartbeatIndex)
}

// ProducerPosition returns the current tail position.
func (q *SPSC) ProducerPosition() int64 {
	return q.buf.GetInt64Volatile(q.tailPositionIndex)
}

// ConsumerPosition returns the current head position.
func (q *SPSC) ConsumerPosition() int64 {
	return q.buf.GetInt64Volatile(q.headPositionIndex)
}

// Size returns the number of unread bytes, via a head-tail-head double
// read for consistency with a concurrent producer claim.
func (q *SPSC) Size() int64 {
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
// bytes. Unlike MPSC there is a single producer, so the tail update at
// the end of Write/TryClaim is a plain store, never a CAS.
func (q *SPSC) claimCapacity(requiredCapacity int32) (tail int64, tailIndex, padding int32, ok bool) {
	mask := q.capacity - 1
	tail = q.buf.GetInt64(q.tailPositionIndex)
	headCache := q.buf.GetInt64(q.headCachePositionIndex)

	available := q.capacity - int32(tail-headCache)
	if requiredCapacity > available {
		headCache = q.buf.GetInt64Volatile(q.headPositionIndex)
		if requiredCapacity > q.capacity-int32(tail-headCache) {
			return 0, 0, 0, false
		}
		q.buf.PutInt64(q.headCachePositionIndex, headCache)
	}

	tailIndex = int32(tail & int64(mask))
	toEnd := q.capacity - tailIndex
	if requiredCapacity > toEnd {
		headIndex := int32(headCache & int64(mask))
		if requiredCapacity > headIndex {
			headCache = q.buf.GetInt64Volatile(q.headPositionIndex)
			headIndex = int32(headCache & int64(mask))
			if requiredCapacity > headIndex {
				return 0, 0, 0, false
			}
			q.buf.PutInt64(q.headCachePositionIndex, headCache)
		}
		padding = toEnd
	}

	return tail, tailIndex, padding, true
}

// finishClaim writes a padding record if one was needed, pre-zeroes the
// header immediately following the new record when that header lies in
// free space (not when the new record fills the ring up to an unread
// record), so the consumer's next acquire-load observes a clean slot,
// and plain-stores the new tail.
func (q *SPSC) finishClaim(tail int64, tailIndex, padding, requiredCapacity int32) int32 {
	if padding != 0 {
		q.buf.PutInt32Ordered(TypeOffset(tailIndex), PaddingTypeID)
		q.buf.PutInt32Ordered(LengthOffset(tailIndex), padding)
		tailIndex = 0
	}

	newTail := tail + int64(requiredCapacity) + int64(padding)
	nextHeader := tailIndex + requiredCapacity
	if nextHeader < q.capacity && newTail-q.buf.GetInt64Volatile(q.headPositionIndex) < int64(q.capacity) {
		q.buf.SetMemory(nextHeader, HeaderLength, 0)
	}

	q.buf.PutInt64(q.tailPositionIndex, newTail)
	return tailIndex
}

// TryClaim reserves space for a length-byte payload and pre-writes a
// claimed (negative-length) header. Returns ErrInsufficientCapacity if
// there isn't room.
func (q *SPSC) TryClaim(typeID, length int32) (int32, error) {
	if err := checkTypeID(typeID); err != nil {
		return -1, err
	}
	if err := checkMsgLength(length, q.maxMsgLength); err != nil {
		return -1, err
	}

	recordLength := length + HeaderLength
	required := AlignInt32(recordLength, Alignment)
	tail, tailIndex, padding, ok := q.claimCapacity(required)
	if !ok {
		return -1, ErrInsufficientCapacity
	}
	index := q.finishClaim(tail, tailIndex, padding, required)

	q.buf.PutInt32(TypeOffset(index), typeID)
	q.buf.PutInt32Ordered(LengthOffset(index), -recordLength)
	return index, nil
}

// Payload returns a zero-copy view of the payload region of the record
// claimed at index, for the caller to fill after TryClaim.
func (q *SPSC) Payload(index int32) []byte {
	length := -q.buf.GetInt32(LengthOffset(index))
	return q.buf.Slice(PayloadOffset(index), length-HeaderLength)
}

// Commit finalizes a claimed record, making it visible to the consumer.
func (q *SPSC) Commit(index int32) error {
	length := q.buf.GetInt32(LengthOffset(index))
	if length >= 0 {
		return fmt.Errorf("%w: record at %d already committed or aborted", ErrInvalidState, index)
	}
	q.buf.PutInt32Ordered(LengthOffset(index), -length)
	return nil
}

// Abort converts a claimed record into a padding record.
func (q *SPSC) Abort(index int32) error {
	length := q.buf.GetInt32(LengthOffset(index))
	if length >= 0 {
		return fmt.Errorf("%w: record at %d already committed or aborted", ErrInvalidState, index)
	}
	q.buf.PutInt32(TypeOffset(index), PaddingTypeID)
	q.buf.PutInt32Ordered(LengthOffset(index), -length)
	return nil
}

// Write atomically reserves space and publishes a message. Returns
// (false, nil) if there isn't room, (false, err) if typeID or length is
// invalid, and (true, nil) on success.
func (q *SPSC) Write(typeID int32, src []byte) (bool, error) {
	if err := checkTypeID(typeID); err != nil {
		return false, err
	}
	if err := checkMsgLength(int32(len(src)), q.maxMsgLength); err != nil {
		return false, err
	}

	recordLength := int32(len(src)) + HeaderLength
	required := AlignInt32(recordLength, Alignment)
	tail, tailIndex, padding, ok := q.claimCapacity(required)
	if !ok {
		return false, nil
	}
	index := q.finishClaim(tail, tailIndex, padding, required)

	q.buf.PutInt32(TypeOffset(index), typeID)
	q.buf.PutBytes(PayloadOffset(index), src)
	q.buf.PutInt32Ordered(LengthOffset(index), recordLength)
	return true, nil
}

// Read drains up to limit non-padding messages in strict FIFO order,
// invoking handler for each. See MPSC.Read for the bookkeeping and
// error-propagation contract, which SPSC shares in full.
func (q *SPSC) Read(handler Handler, limit int) (int, error) {
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

// Unblock always returns false: with a single producer there is no
// concurrent claimant to recover from, so the recovery path SPSC
// inherits from the record format is unreachable by construction.
func (q *SPSC) Unblock() bool {
	return false
}
