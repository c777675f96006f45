// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ucontext

import (
	"fmt"

	"github.com/tsavola/lazylink/abi"
)

// Linux i386 mcontext_t general register indexes.
const (
	reg32GS = iota
	reg32FS
	reg32ES
	reg32DS
	reg32EDI
	reg32ESI
	reg32EBP
	reg32ESP
	reg32EBX
	reg32EDX
	reg32ECX
	reg32EAX
	reg32TRAPNO
	reg32ERR
	reg32EIP
	reg32CS
	reg32EFL
	reg32UESP
	reg32SS

	NumGregs32
)

// Linux amd64 mcontext_t general register indexes.
const (
	reg64R8 = iota
	reg64R9
	reg64R10
	reg64R11
	reg64R12
	reg64R13
	reg64R14
	reg64R15
	reg64RDI
	reg64RSI
	reg64RBP
	reg64RBX
	reg64RDX
	reg64RAX
	reg64RCX
	reg64RSP
	reg64RIP
	reg64EFL
	reg64CSGSFS
	reg64ERR
	reg64TRAPNO
	reg64OLDMASK
	reg64CR2

	NumGregs64
)

var gregs32 = [abi.NumRegs]int{
	abi.RegAX: reg32EAX,
	abi.RegCX: reg32ECX,
	abi.RegDX: reg32EDX,
	abi.RegBX: reg32EBX,
	abi.RegSP: reg32ESP,
	abi.RegBP: reg32EBP,
	abi.RegSI: reg32ESI,
	abi.RegDI: reg32EDI,
}

var gregs64 = [abi.NumRegs]int{
	abi.RegAX: reg64RAX,
	abi.RegCX: reg64RCX,
	abi.RegDX: reg64RDX,
	abi.RegBX: reg64RBX,
	abi.RegSP: reg64RSP,
	abi.RegBP: reg64RBP,
	abi.RegSI: reg64RSI,
	abi.RegDI: reg64RDI,
}

// MContext32 is the general register part of a Linux i386 mcontext_t.
type MContext32 struct {
	Gregs [NumGregs32]uint32
}

// ParseMContext32 decodes a raw little-endian gregs record.
func ParseMContext32(b []byte) (*MContext32, error) {
	mc := new(MContext32)
	if len(b) < len(mc.Gregs)*4 {
		return nil, fmt.Errorf("i386 mcontext record is too short: %d bytes", len(b))
	}
	for i := range mc.Gregs {
		mc.Gregs[i] = byteOrder.Uint32(b[i*4:])
	}
	return mc, nil
}

// Bytes encodes the gregs record.
func (mc *MContext32) Bytes() []byte {
	b := make([]byte, len(mc.Gregs)*4)
	for i, x := range mc.Gregs {
		byteOrder.PutUint32(b[i*4:], x)
	}
	return b
}

func (mc *MContext32) IP() uint64           { return uint64(mc.Gregs[reg32EIP]) }
func (mc *MContext32) SP() uint64           { return uint64(mc.Gregs[reg32ESP]) }
func (mc *MContext32) Reg(r abi.Reg) uint64 { return uint64(mc.Gregs[gregs32[r]]) }
func (mc *MContext32) SetIP(addr uint64)    { mc.Gregs[reg32EIP] = uint32(addr) }

// SetReg is for constructing contexts.
func (mc *MContext32) SetReg(r abi.Reg, value uint64) { mc.Gregs[gregs32[r]] = uint32(value) }

// MContext64 is the general register part of a Linux amd64 mcontext_t.
type MContext64 struct {
	Gregs [NumGregs64]uint64
}

// ParseMContext64 decodes a raw little-endian gregs record.
func ParseMContext64(b []byte) (*MContext64, error) {
	mc := new(MContext64)
	if len(b) < len(mc.Gregs)*8 {
		return nil, fmt.Errorf("amd64 mcontext record is too short: %d bytes", len(b))
	}
	for i := range mc.Gregs {
		mc.Gregs[i] = byteOrder.Uint64(b[i*8:])
	}
	return mc, nil
}

// Bytes encodes the gregs record.
func (mc *MContext64) Bytes() []byte {
	b := make([]byte, len(mc.Gregs)*8)
	for i, x := range mc.Gregs {
		byteOrder.PutUint64(b[i*8:], x)
	}
	return b
}

func (mc *MContext64) IP() uint64           { return mc.Gregs[reg64RIP] }
func (mc *MContext64) SP() uint64           { return mc.Gregs[reg64RSP] }
func (mc *MContext64) Reg(r abi.Reg) uint64 { return mc.Gregs[gregs64[r]] }
func (mc *MContext64) SetIP(addr uint64)    { mc.Gregs[reg64RIP] = addr }

// SetReg is for constructing contexts.
func (mc *MContext64) SetReg(r abi.Reg, value uint64) { mc.Gregs[gregs64[r]] = value }

// Regs is a plain register file, used by emulated fault delivery.
type Regs struct {
	PC  uint64
	GPR [abi.NumRegs]uint64
}

func (r *Regs) IP() uint64                   { return r.PC }
func (r *Regs) SP() uint64                   { return r.GPR[abi.RegSP] }
func (r *Regs) Reg(reg abi.Reg) uint64       { return r.GPR[reg] }
func (r *Regs) SetIP(addr uint64)            { r.PC = addr }
func (r *Regs) SetReg(reg abi.Reg, x uint64) { r.GPR[reg] = x }
