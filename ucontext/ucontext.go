// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ucontext decodes interrupted machine state delivered with a fault.
package ucontext

import (
	"encoding/binary"

	"github.com/tsavola/lazylink/abi"
	"github.com/tsavola/lazylink/errors"
	"github.com/tsavola/lazylink/memory"
	"github.com/tsavola/lazylink/trap"
)

var byteOrder = binary.LittleEndian

// Context is the register state of an interrupted thread.  SetIP determines
// where execution resumes.
type Context interface {
	IP() uint64
	SP() uint64
	Reg(r abi.Reg) uint64
	SetIP(addr uint64)
}

// Decode a fault.  The word at the top of the stack is read only for invalid
// memory access faults, since static call traps don't involve the stack.
func Decode(class trap.Class, ctx Context, mem memory.Memory, c *abi.Contract) (ev trap.Event, err error) {
	ev = trap.Event{
		Class: class,
		IP:    ctx.IP(),
		SP:    ctx.SP(),
	}

	for i, r := range c.Carriers {
		ev.Carriers[i] = ctx.Reg(r)
	}

	if class != trap.InvalidAccess {
		return
	}

	ev.ReturnAddr, err = memory.ReadWord(mem, ev.SP, c.WordSize)
	if err != nil {
		err = errors.Access(err, "reading return address at 0x%x", ev.SP)
		return
	}

	ev.StackOrigin = ev.ReturnAddr - c.OriginSkew
	return
}
