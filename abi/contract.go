// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package abi describes the byte layout shared by the code generator and the
// trap engine.
package abi

import (
	"fmt"
)

// Reg is a general-purpose register in x86 encoding order.
type Reg uint8

const (
	RegAX = Reg(iota)
	RegCX
	RegDX
	RegBX
	RegSP
	RegBP
	RegSI
	RegDI

	NumRegs
)

func (r Reg) String() string {
	switch r {
	case RegAX:
		return "ax"

	case RegCX:
		return "cx"

	case RegDX:
		return "dx"

	case RegBX:
		return "bx"

	case RegSP:
		return "sp"

	case RegBP:
		return "bp"

	case RegSI:
		return "si"

	case RegDI:
		return "di"

	default:
		return fmt.Sprintf("reg%d", uint8(r))
	}
}

// Carrier identifies a register role used to pass a dispatch table base
// across the trap boundary.
type Carrier int

const (
	MethodTable    = Carrier(iota) // Class dispatch table.
	InterfaceTable                 // Interface dispatch table.

	NumCarriers
)

func (c Carrier) String() string {
	switch c {
	case MethodTable:
		return "method table"

	case InterfaceTable:
		return "interface table"

	default:
		return fmt.Sprintf("carrier %d", int(c))
	}
}

// Contract is a versioned layout agreement with a code generator.
//
// Static call site (CallLen bytes, starting at the site address):
//
//	+0  opcode slot (overwritten with CallOpcode)
//	+1  CallSentinel, little-endian (overwritten with rel32 displacement)
//
// The trap is raised CallSkew bytes into the site.
//
// Static field access: a zero 32-bit placeholder at FieldOffset from the
// faulting instruction.
//
// Dispatch stub: an indirect call through [carrier + disp8].  The return
// address minus OriginSkew is the stub address, and the byte just before the
// return address is the slot offset.
type Contract struct {
	Version int

	WordSize int // Dispatch slot and stack word size in bytes.

	CallSkew     uint64
	CallSentinel uint32
	CallOpcode   byte
	CallLen      int

	FieldOffset uint64

	OriginSkew uint64

	Carriers [NumCarriers]Reg
}

// V1 is the i386 layout.
var V1 = Contract{
	Version:      1,
	WordSize:     4,
	CallSkew:     2,
	CallSentinel: 0x90ffff90,
	CallOpcode:   0xe8,
	CallLen:      5,
	FieldOffset:  2,
	OriginSkew:   3,
	Carriers: [NumCarriers]Reg{
		MethodTable:    RegAX,
		InterfaceTable: RegBX,
	},
}

// V2 keeps the V1 byte layout with 64-bit dispatch slots.
var V2 = Contract{
	Version:      2,
	WordSize:     8,
	CallSkew:     2,
	CallSentinel: 0x90ffff90,
	CallOpcode:   0xe8,
	CallLen:      5,
	FieldOffset:  2,
	OriginSkew:   3,
	Carriers: [NumCarriers]Reg{
		MethodTable:    RegAX,
		InterfaceTable: RegBX,
	},
}

// Validate checks that the contract can be used for patching.
func (c *Contract) Validate() error {
	switch c.WordSize {
	case 4, 8:
	default:
		return fmt.Errorf("abi: unsupported word size: %d", c.WordSize)
	}

	if c.CallLen != 5 {
		return fmt.Errorf("abi: call length must be 5 (opcode and rel32): %d", c.CallLen)
	}

	if c.CallSkew == 0 || c.CallSkew >= uint64(c.CallLen) {
		return fmt.Errorf("abi: call skew is outside of the call site: %d", c.CallSkew)
	}

	if c.OriginSkew == 0 {
		return fmt.Errorf("abi: origin skew must be nonzero")
	}

	for i, r := range c.Carriers {
		if r >= NumRegs || r == RegSP {
			return fmt.Errorf("abi: invalid %s carrier register: %s", Carrier(i), r)
		}
	}

	if c.Carriers[MethodTable] == c.Carriers[InterfaceTable] {
		return fmt.Errorf("abi: carriers share register %s", c.Carriers[MethodTable])
	}

	return nil
}

func (c *Contract) String() string {
	return fmt.Sprintf("v%d/%d-bit", c.Version, c.WordSize*8)
}
