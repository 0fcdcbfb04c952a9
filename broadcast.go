// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package xring

import (
	"fmt"

	"code.hybscloud.com/xring/buffer"
)

// Transmitter is the single writer of a broadcast buffer: a lossy
// one-to-many stream with no coordination with its receivers. A slow or
// absent receiver never blocks the transmitter; receivers that fall too
// far behind are lapped and jump forward, losing intermediate messages.
type Transmitter struct {
	buf             *buffer.Atomic
	capacity        int32
	maxMsgLength    int32
	tailIntentIndex int32
	tailIndex       int32
	latestIndex     int32
	tail            int64
}

// NewTransmitter wraps buf as a broadcast buffer's transmitter side.
// buf's capacity must equal a power-of-two data region plus the
// broadcast trailer (see broadcastTrailerLength).
func NewTransmitter(buf *buffer.Atomic) (*Transmitter, error) {
	capacity := buf.Capacity() - broadcastTrailerLength
	if capacity <= 0 || !isPowerOfTwo(capacity) {
		return nil, fmt.Errorf("%w: data region (capacity=%d) must be a power of two", ErrInvalidState, capacity)
	}
	if err := buf.VerifyAlignment(Alignment); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	return &Transmitter{
		buf:             buf,
		capacity:        capacity,
		maxMsgLength:    capacity / 8,
		tailIntentIndex: capacity + tailIntentCounterOffset,
		tailIndex:       capacity + tailCounterOffset,
		latestIndex:     capacity + latestCounterOffset,
	}, nil
}

// Capacity returns the usable data region size in bytes.
func (t *Transmitter) Capacity() int32 { return t.capacity }

// Transmit publishes a message to every current and future receiver.
// There is no capacity check against outstanding receivers: a message
// always fits because the buffer wraps and overwrites the oldest data,
// which is exactly what makes receivers lossy.
//
// Publication order: the intended new tail is released first
// (tail_intent), then the record is written, then latest, then tail —
// so a receiver that observes tail has always already observed a
// consistent latest and tail_intent.
func (t *Transmitter) Transmit(typeID int32, src []byte) error {
	if err := checkTypeID(typeID); err != nil {
		return err
	}
	if err := checkMsgLength(int32(len(src)), t.maxMsgLength); err != nil {
		return err
	}

	recordLength := int32(len(src)) + HeaderLength
	aligned := AlignInt32(recordLength, Alignment)

	tail := t.tail
	index := int32(tail & int64(t.capacity-1))
	var padding int32
	if toEnd := t.capacity - index; aligned > toEnd {
		padding = toEnd
	}
	newTail := tail + int64(aligned) + int64(padding)

	t.buf.PutInt64Ordered(t.tailIntentIndex, newTail)

	if padding != 0 {
		t.buf.PutInt32(TypeOffset(index), PaddingTypeID)
		t.buf.PutInt32(LengthOffset(index), padding)
		index = 0
	}

	t.buf.PutInt32(TypeOffset(index), typeID)
	t.buf.PutBytes(PayloadOffset(index), src)
	t.buf.PutInt32(LengthOffset(index), recordLength)

	t.buf.PutInt64Ordered(t.latestIndex, newTail-int64(aligned))
	t.buf.PutInt64Ordered(t.tailIndex, newTail)

	t.tail = newTail
	return nil
}

// Receiver polls a broadcast buffer independently of the transmitter
// and of every other receiver. It is lossy: if the transmitter
// overwrites the record the receiver was about to read, the receiver
// jumps forward to the current latest record and LappedCount increments.
type Receiver struct {
	buf             *buffer.Atomic
	capacity        int32
	tailIndex       int32
	tailIntentIndex int32
	latestIndex     int32

	cursor      int64
	nextRecord  int64
	lappedCount int64

	recordOffset int32
	recordLength int32
	recordTypeID int32
}

// NewReceiver wraps buf as a broadcast buffer's receiver side, starting
// from the current latest published record.
func NewReceiver(buf *buffer.Atomic) (*Receiver, error) {
	capacity := buf.Capacity() - broadcastTrailerLength
	if capacity <= 0 || !isPowerOfTwo(capacity) {
		return nil, fmt.Errorf("%w: data region (capacity=%d) must be a power of two", ErrInvalidState, capacity)
	}
	if err := buf.VerifyAlignment(Alignment); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	r := &Receiver{
		buf:             buf,
		capacity:        capacity,
		tailIndex:       capacity + tailCounterOffset,
		tailIntentIndex: capacity + tailIntentCounterOffset,
		latestIndex:     capacity + latestCounterOffset,
	}
	latest := buf.GetInt64Volatile(r.latestIndex)
	r.cursor = latest
	r.nextRecord = latest
	return r, nil
}

// LappedCount returns the number of times this receiver has been
// overwritten by the transmitter and jumped forward to catch up.
func (r *Receiver) LappedCount() int64 { return r.lappedCount }

// TypeID returns the type ID of the message exposed by the most recent
// successful ReceiveNext.
func (r *Receiver) TypeID() int32 { return r.recordTypeID }

// Offset returns the payload byte offset of the message exposed by the
// most recent successful ReceiveNext.
func (r *Receiver) Offset() int32 { return PayloadOffset(r.recordOffset) }

// Length returns the payload length of the message exposed by the most
// recent successful ReceiveNext.
func (r *Receiver) Length() int32 { return r.recordLength }

// ReceiveNext advances to the next message, returning false if the
// transmitter has published nothing new. It skips padding records
// transparently and resynchronizes to the transmitter's latest record
// whenever this receiver has been lapped.
func (r *Receiver) ReceiveNext() bool {
	mask := int64(r.capacity - 1)
	for {
		tail := r.buf.GetInt64Volatile(r.tailIndex)
		cursor := r.nextRecord
		if tail <= cursor {
			return false
		}

		recordOffset := int32(cursor & mask)
		if !r.validateAt(cursor) {
			cursor = r.buf.GetInt64Volatile(r.latestIndex)
			r.nextRecord = cursor
			recordOffset = int32(cursor & mask)
		}
		r.cursor = cursor

		length := r.buf.GetInt32Volatile(LengthOffset(recordOffset))
		aligned := AlignInt32(length, Alignment)
		r.nextRecord = cursor + int64(aligned)

		typeID := r.buf.GetInt32(TypeOffset(recordOffset))
		if typeID == PaddingTypeID {
			continue
		}

		r.recordOffset = recordOffset
		r.recordLength = length - HeaderLength
		r.recordTypeID = typeID
		return true
	}
}

// validateAt reports whether cursor is still within the transmitter's
// intended publication window, incrementing lappedCount on failure.
func (r *Receiver) validateAt(cursor int64) bool {
	tailIntent := r.buf.GetInt64Volatile(r.tailIntentIndex)
	if cursor+int64(r.capacity) > tailIntent {
		return true
	}
	r.lappedCount++
	return false
}

// Validate re-checks that the message exposed by the last ReceiveNext
// has not since been overwritten by the transmitter. Call this after
// consuming (or copying) the exposed payload; a false result means the
// data the caller just read may be torn.
func (r *Receiver) Validate() bool {
	tailIntent := r.buf.GetInt64Volatile(r.tailIntentIndex)
	return r.cursor+int64(r.capacity) > tailIntent
}

// CopyReceiver wraps a Receiver and copies each message into an
// internal scratch buffer before re-validating, so the caller always
// sees either a consistent message or ErrUnableToKeepUp — never a torn
// read racing the transmitter's overwrite.
type CopyReceiver struct {
	receiver *Receiver
	scratch  []byte
	typeID   int32
	length   int32
}

// NewCopyReceiver wraps receiver with a scratch buffer sized to hold
// the largest message the underlying broadcast buffer can carry.
func NewCopyReceiver(receiver *Receiver, maxMsgLength int32) *CopyReceiver {
	return &CopyReceiver{
		receiver: receiver,
		scratch:  make([]byte, maxMsgLength),
	}
}

// Receive copies the next message, if any, into the internal scratch
// buffer. It returns (false, nil) when there is nothing new to receive,
// and (false, ErrUnableToKeepUp) when the receiver was lapped while
// locating the message or the transmitter overwrote the message before
// the post-copy validation.
func (c *CopyReceiver) Receive() (bool, error) {
	lappedBefore := c.receiver.LappedCount()
	if !c.receiver.ReceiveNext() {
		return false, nil
	}

	length := c.receiver.Length()
	payload := c.receiver.buf.Slice(c.receiver.Offset(), length)
	copy(c.scratch, payload)

	if !c.receiver.Validate() || c.receiver.LappedCount() != lappedBefore {
		return false, ErrUnableToKeepUp
	}

	c.typeID = c.receiver.TypeID()
	c.length = length
	return true, nil
}

// TypeID returns the type ID of the message copied by the most recent
// successful Receive.
func (c *CopyReceiver) TypeID() int32 { return c.typeID }

// Payload returns the message copied by the most recent successful
// Receive. The returned slice is owned by the CopyReceiver and is
// overwritten by the next call to Receive.
func (c *CopyReceiver) Payload() []byte { return c.scratch[:c.length] }
