// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package xring

import "fmt"

// Record layout constants shared by MPSC, SPSC and the broadcast buffer.
//
// A record is a header followed by a payload, aligned to Alignment bytes:
//
//	bytes [0,4)  length (total record length, including the header)
//	bytes [4,8)  type ID (PaddingTypeID marks a padding record)
//	bytes [8,len) payload
//
// A record mid-publication has a negative length; the absolute value is
// the final length once published. Grounded on the claim/commit protocol
// of other_examples' aeron-go ManyToOneRingBuffer port.
const (
	Alignment     = 8
	HeaderLength  = 8
	PaddingTypeID = int32(-1)

	cacheLineLength = 128
)

// LengthOffset returns the byte offset of the length field of the
// record starting at recordOffset.
func LengthOffset(recordOffset int32) int32 { return recordOffset }

// TypeOffset returns the byte offset of the type-ID field.
func TypeOffset(recordOffset int32) int32 { return recordOffset + 4 }

// PayloadOffset returns the byte offset of the payload.
func PayloadOffset(recordOffset int32) int32 { return recordOffset + HeaderLength }

// AlignInt32 rounds value up to the next multiple of alignment.
// alignment must be a power of two.
func AlignInt32(value, alignment int32) int32 {
	return (value + alignment - 1) &^ (alignment - 1)
}

// trailer offsets (B/C — MPSC and SPSC share this layout). Each counter
// gets its own cache line to avoid false sharing between producer(s) and
// the consumer, matching a struct-padding-style false-sharing strategy
// generalized to byte offsets instead of struct fields.
const (
	tailPositionOffset       = cacheLineLength * 0
	headPositionOffset       = cacheLineLength * 2
	headCachePositionOffset  = cacheLineLength * 4
	correlationCounterOffset = cacheLineLength * 6
	consumerHeartbeatOffset  = cacheLineLength * 8
	ringTrailerLength        = cacheLineLength * 10
)

// broadcast trailer offsets (D).
const (
	tailIntentCounterOffset = cacheLineLength * 0
	tailCounterOffset       = cacheLineLength * 2
	latestCounterOffset     = cacheLineLength * 4
	broadcastTrailerLength  = cacheLineLength * 6
)

// checkTypeID validates a message type ID: type_id >= 1.
func checkTypeID(typeID int32) error {
	if typeID < 1 {
		return fmt.Errorf("%w: type id must be >= 1, got %d", ErrInvalidArgument, typeID)
	}
	return nil
}

// checkMsgLength validates a message length against capacity/8.
func checkMsgLength(length, maxMsgLength int32) error {
	if length < 0 {
		return fmt.Errorf("%w: length must be >= 0, got %d", ErrInvalidArgument, length)
	}
	if length > maxMsgLength {
		return fmt.Errorf("%w: length %d exceeds max message length %d", ErrInvalidArgument, length, maxMsgLength)
	}
	return nil
}

// isPowerOfTwo reports whether n is a positive power of two.
func isPowerOfTwo(n int32) bool {
	return n > 0 && n&(n-1) == 0
}
