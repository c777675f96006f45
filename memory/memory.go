// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package memory is the write boundary of the trap engine.  All code and
// dispatch table mutation goes through Memory.Apply.
package memory

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var byteOrder = binary.LittleEndian

// ErrUnmapped is returned for accesses outside of known memory.
var ErrUnmapped = errors.New("address is not mapped")

// Patch replaces len(Bytes) bytes at Addr.
type Patch struct {
	Addr  uint64
	Bytes []byte
}

// End address (exclusive).
func (p Patch) End() uint64 {
	return p.Addr + uint64(len(p.Bytes))
}

// Overlaps reports whether the patches touch a common byte.
func (p Patch) Overlaps(q Patch) bool {
	return p.Addr < q.End() && q.Addr < p.End()
}

func (p Patch) String() string {
	return fmt.Sprintf("patch 0x%x..0x%x % x", p.Addr, p.End(), p.Bytes)
}

// Uint32Patch encodes a little-endian 32-bit value.
func Uint32Patch(addr uint64, value uint32) Patch {
	b := make([]byte, 4)
	byteOrder.PutUint32(b, value)
	return Patch{addr, b}
}

// WordPatch encodes a little-endian value of 4 or 8 bytes.
func WordPatch(addr uint64, value uint64, size int) Patch {
	b := make([]byte, size)
	switch size {
	case 4:
		byteOrder.PutUint32(b, uint32(value))

	case 8:
		byteOrder.PutUint64(b, value)

	default:
		panic(fmt.Errorf("unsupported word size: %d", size))
	}
	return Patch{addr, b}
}

// Memory of a process or a machine running generated code.
//
// Apply must either write all bytes of the patch or none of them, and the
// written bytes must be visible to the next instruction fetch of the faulting
// thread.
type Memory interface {
	ReadAt(b []byte, addr uint64) error
	Apply(p Patch) error
}

func ReadUint8(m Memory, addr uint64) (uint8, error) {
	var b [1]byte
	if err := m.ReadAt(b[:], addr); err != nil {
		return 0, err
	}
	return b[0], nil
}

func ReadUint32(m Memory, addr uint64) (uint32, error) {
	var b [4]byte
	if err := m.ReadAt(b[:], addr); err != nil {
		return 0, err
	}
	return byteOrder.Uint32(b[:]), nil
}

// ReadWord reads a little-endian value of 4 or 8 bytes.
func ReadWord(m Memory, addr uint64, size int) (uint64, error) {
	var b [8]byte
	switch size {
	case 4, 8:
	default:
		return 0, fmt.Errorf("unsupported word size: %d", size)
	}
	if err := m.ReadAt(b[:size], addr); err != nil {
		return 0, err
	}
	if size == 4 {
		return uint64(byteOrder.Uint32(b[:])), nil
	}
	return byteOrder.Uint64(b[:]), nil
}
