// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package buffer

import (
	"fmt"
	"unsafe"

	"code.hybscloud.com/atomix"
)

// Atomic is a byte-addressable view over a region of memory.
//
// It never allocates beyond its backing slice and never blocks. All
// methods index by byte offset; the caller is responsible for keeping
// offsets within Capacity() and respecting the alignment required by
// the accessor (4 bytes for the Int32 family, 8 bytes for the Int64
// family).
type Atomic struct {
	data []byte
}

// New allocates a new, zeroed Atomic region of the given size.
func New(size int32) *Atomic {
	return &Atomic{data: make([]byte, size)}
}

// Wrap views an existing slice as an Atomic region, without copying.
// Use this to back a ring or broadcast buffer with memory obtained
// from elsewhere (e.g. a memory-mapped file).
func Wrap(data []byte) *Atomic {
	return &Atomic{data: data}
}

// Capacity returns the size of the region in bytes.
func (a *Atomic) Capacity() int32 {
	return int32(len(a.data))
}

// VerifyAlignment reports an error if the region's base address is not
// aligned to alignment bytes. alignment must be a power of two.
//
// This only checks &data[0]; it says nothing about any individual
// offset passed to ptr32/ptr64 later. Callers of the Int32 family must
// keep their own offsets 4-byte aligned and callers of the Int64
// family 8-byte aligned — the unsafe.Pointer reinterpret-cast those
// accessors do is only valid at an aligned address.
func (a *Atomic) VerifyAlignment(alignment int32) error {
	if len(a.data) == 0 {
		return nil
	}
	addr := uintptr(unsafe.Pointer(&a.data[0]))
	if addr&uintptr(alignment-1) != 0 {
		return fmt.Errorf("buffer: base address 0x%x not aligned to %d bytes", addr, alignment)
	}
	return nil
}

func (a *Atomic) ptr32(offset int32) *atomix.Int32 {
	return (*atomix.Int32)(unsafe.Pointer(&a.data[offset]))
}

func (a *Atomic) ptr64(offset int32) *atomix.Int64 {
	return (*atomix.Int64)(unsafe.Pointer(&a.data[offset]))
}

// --- Plain access -----------------------------------------------------

// GetByte reads a single byte with no ordering guarantee.
func (a *Atomic) GetByte(offset int32) byte {
	return a.data[offset]
}

// PutByte writes a single byte with no ordering guarantee.
func (a *Atomic) PutByte(offset int32, v byte) {
	a.data[offset] = v
}

// GetInt32 reads a 4-byte little-endian-native int32, plain (relaxed).
func (a *Atomic) GetInt32(offset int32) int32 {
	return a.ptr32(offset).LoadRelaxed()
}

// PutInt32 writes a plain (relaxed) int32.
func (a *Atomic) PutInt32(offset int32, v int32) {
	a.ptr32(offset).StoreRelaxed(v)
}

// GetInt64 reads a plain (relaxed) int64.
func (a *Atomic) GetInt64(offset int32) int64 {
	return a.ptr64(offset).LoadRelaxed()
}

// PutInt64 writes a plain (relaxed) int64.
func (a *Atomic) PutInt64(offset int32, v int64) {
	a.ptr64(offset).StoreRelaxed(v)
}

// GetBytes copies length bytes starting at offset into dst.
func (a *Atomic) GetBytes(offset int32, dst []byte) {
	copy(dst, a.data[offset:offset+int32(len(dst))])
}

// PutBytes copies src into the region starting at offset.
func (a *Atomic) PutBytes(offset int32, src []byte) {
	copy(a.data[offset:offset+int32(len(src))], src)
}

// Slice returns a zero-copy view of length bytes starting at offset.
// Callers must not retain it past the validity of the claimed record.
func (a *Atomic) Slice(offset, length int32) []byte {
	return a.data[offset : offset+length]
}

// SetMemory fills length bytes starting at offset with value.
func (a *Atomic) SetMemory(offset, length int32, value byte) {
	region := a.data[offset : offset+length]
	for i := range region {
		region[i] = value
	}
}

// --- Volatile / ordered access -----------------------------------------
//
// GetInt32Volatile/GetInt64Volatile are acquire-loads. PutInt32Ordered/
// PutInt64Ordered and PutInt32Volatile/PutInt64Volatile are both
// release-stores: Go's memory model, unlike the JVM's, does not expose a
// distinct cheaper "ordered" store versus a full "volatile" store, so
// this port collapses the two to the one release-store primitive atomix
// provides. Record publication and trailer-position updates only ever
// need the release side of that pair.

// GetInt32Volatile is an acquire-load.
func (a *Atomic) GetInt32Volatile(offset int32) int32 {
	return a.ptr32(offset).LoadAcquire()
}

// PutInt32Volatile is a release-store.
func (a *Atomic) PutInt32Volatile(offset int32, v int32) {
	a.ptr32(offset).StoreRelease(v)
}

// PutInt32Ordered is a release-store.
func (a *Atomic) PutInt32Ordered(offset int32, v int32) {
	a.ptr32(offset).StoreRelease(v)
}

// GetInt64Volatile is an acquire-load.
func (a *Atomic) GetInt64Volatile(offset int32) int64 {
	return a.ptr64(offset).LoadAcquire()
}

// PutInt64Volatile is a release-store.
func (a *Atomic) PutInt64Volatile(offset int32, v int64) {
	a.ptr64(offset).StoreRelease(v)
}

// PutInt64Ordered is a release-store.
func (a *Atomic) PutInt64Ordered(offset int32, v int64) {
	a.ptr64(offset).StoreRelease(v)
}

// --- Read-modify-write ---------------------------------------------------

// CompareAndSetInt64 performs an acquire-release CAS.
func (a *Atomic) CompareAndSetInt64(offset int32, expected, update int64) bool {
	return a.ptr64(offset).CompareAndSwapAcqRel(expected, update)
}

// CompareAndSetInt32 performs an acquire-release CAS.
func (a *Atomic) CompareAndSetInt32(offset int32, expected, update int32) bool {
	return a.ptr32(offset).CompareAndSwapAcqRel(expected, update)
}

// GetAndAddInt64 atomically adds delta and returns the prior value.
func (a *Atomic) GetAndAddInt64(offset int32, delta int64) int64 {
	return a.ptr64(offset).AddAcqRel(delta) - delta
}
