// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package buffer provides a byte-addressable atomic memory region.
//
// Atomic is a typed view over a contiguous []byte that supports plain,
// volatile (acquire/release), and read-modify-write access at arbitrary
// byte offsets. It is the substrate the xring package is built on: ring
// buffer and broadcast buffer record headers and trailer counters are
// all just offsets into an Atomic. xring/timerwheel is independent and
// does not use it — it has no shared byte region to speak of.
//
// Atomic never allocates beyond its backing slice and never blocks.
// Offsets are the caller's responsibility: there is no bounds-checked
// "safe" mode, matching the ring buffer components that use it, which
// validate offsets once at the call boundary rather than per access.
package buffer
