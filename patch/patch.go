// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package patch rewrites unresolved sites in place.
//
// Each protocol performs one consistency check, one resolution query, one
// write and one resumption decision.  Nothing is written if the check or the
// query result is rejected.
package patch

import (
	"encoding/binary"
	"math"

	"github.com/tliron/commonlog"
	"import.name/pan"

	"github.com/tsavola/lazylink/abi"
	"github.com/tsavola/lazylink/errors"
	"github.com/tsavola/lazylink/handle"
	"github.com/tsavola/lazylink/internal/debug"
	"github.com/tsavola/lazylink/memory"
	"github.com/tsavola/lazylink/trap"
)

var log = commonlog.GetLogger("lazylink.patch")

var byteOrder = binary.LittleEndian

// Resolver is the resolution part of an authority.
type Resolver interface {
	// ResolveMethodEntry returns the absolute entry address of the method
	// called at origin.  tableBase is the receiver's class dispatch table, or
	// zero for static calls.
	ResolveMethodEntry(origin, tableBase uint64) uint64

	// ResolveStaticFieldAddress returns the absolute address of the field
	// accessed by the instruction at fault.
	ResolveStaticFieldAddress(fault, trapHandle uint64) uint64
}

// Patcher applies patch protocols to one memory.
type Patcher struct {
	Contract *abi.Contract
	Resolver Resolver
	Memory   memory.Memory
	Handles  *handle.Table

	// Tolerant accepts sites which are already in the patched state, and
	// resumes them without writing.  It is used when faults may be
	// delivered concurrently.
	Tolerant bool
}

// Result of handling one site.
type Result struct {
	Kind   trap.Kind
	Site   uint64       // Site address, or the dispatch table slot.
	Resume uint64       // Where execution continues.
	Patch  memory.Patch // Zero if the site had already been patched.
}

// Apply the protocol of the given site kind.
func (p *Patcher) Apply(kind trap.Kind, ev *trap.Event) (res Result, err error) {
	defer func() {
		if err = pan.Error(recover()); err != nil {
			res = Result{Kind: kind}
		}
	}()

	switch kind {
	case trap.StaticCall:
		res = p.staticCall(ev)

	case trap.VirtualDispatch:
		res = p.dispatch(kind, abi.MethodTable, ev)

	case trap.InterfaceDispatch:
		res = p.dispatch(kind, abi.InterfaceTable, ev)

	case trap.StaticField:
		res = p.staticField(ev)

	default:
		pan.Panic(&errors.UnclassifiedTrap{Code: int(kind), IP: ev.IP, Origin: ev.StackOrigin})
	}

	res.Kind = kind

	if debug.Enabled {
		debug.Printf("patch: %s site 0x%x: %s, resume at 0x%x", kind, res.Site, res.Patch, res.Resume)
	}
	return
}

func (p *Patcher) staticCall(ev *trap.Event) Result {
	c := p.Contract
	site := ev.IP - c.CallSkew

	if observed := p.read32(trap.StaticCall, site+1); observed != c.CallSentinel {
		if p.Tolerant && p.read8(trap.StaticCall, site) == c.CallOpcode {
			return Result{Site: site, Resume: site}
		}
		pan.Panic(&errors.SentinelMismatch{Kind: trap.StaticCall, Addr: site, Expected: c.CallSentinel, Observed: observed})
	}

	target := p.Resolver.ResolveMethodEntry(site, 0)

	disp := int64(target) - int64(site+uint64(c.CallLen))
	if disp < math.MinInt32 || disp > math.MaxInt32 {
		pan.Panic(&errors.DisplacementRange{Kind: trap.StaticCall, Addr: site, Value: disp})
	}

	b := make([]byte, c.CallLen)
	b[0] = c.CallOpcode
	byteOrder.PutUint32(b[1:], uint32(int32(disp)))

	patch := memory.Patch{Addr: site, Bytes: b}
	p.apply(trap.StaticCall, patch)

	return Result{Site: site, Resume: site, Patch: patch}
}

// dispatch patches a table slot.  The stub has called through the slot, so
// the resolved method is entered directly with the stub's return address on
// the stack.
func (p *Patcher) dispatch(kind trap.Kind, carrier abi.Carrier, ev *trap.Event) Result {
	c := p.Contract

	if ev.IP != 0 {
		log.Warningf("%s trap at 0x%x (origin 0x%x): instruction pointer is not zero", kind, ev.IP, ev.StackOrigin)
	}

	slot := p.slot(kind, carrier, ev)

	if p.Tolerant {
		if current := p.readWord(kind, slot); current != 0 {
			return Result{Site: slot, Resume: current}
		}
	}

	target := p.Resolver.ResolveMethodEntry(ev.StackOrigin, ev.Carriers[abi.MethodTable])
	if c.WordSize == 4 && target > math.MaxUint32 {
		pan.Panic(&errors.DisplacementRange{Kind: kind, Addr: slot, Value: int64(target)})
	}

	patch := memory.WordPatch(slot, target, c.WordSize)
	p.apply(kind, patch)

	return Result{Site: slot, Resume: target, Patch: patch}
}

// slot address is the table base in the carrier register plus the offset
// encoded in the stub's call instruction.
func (p *Patcher) slot(kind trap.Kind, carrier abi.Carrier, ev *trap.Event) uint64 {
	offset := p.read8(kind, ev.ReturnAddr-1)
	return ev.Carriers[carrier] + uint64(offset)
}

// staticField patches an absolute address operand.  The faulting instruction
// is executed again.
func (p *Patcher) staticField(ev *trap.Event) Result {
	c := p.Contract
	site := ev.IP
	placeholder := site + c.FieldOffset

	if observed := p.read32(trap.StaticField, placeholder); observed != 0 {
		if p.Tolerant {
			return Result{Site: site, Resume: site}
		}
		pan.Panic(&errors.SentinelMismatch{Kind: trap.StaticField, Addr: site, Expected: 0, Observed: observed})
	}

	var trapHandle uint64
	if p.Handles != nil {
		trapHandle = uint64(p.Handles.TrapMap())
	}

	addr := p.Resolver.ResolveStaticFieldAddress(site, trapHandle)
	if addr > math.MaxUint32 {
		pan.Panic(&errors.DisplacementRange{Kind: trap.StaticField, Addr: site, Value: int64(addr)})
	}

	patch := memory.Uint32Patch(placeholder, uint32(addr))
	p.apply(trap.StaticField, patch)

	return Result{Site: site, Resume: site, Patch: patch}
}

func (p *Patcher) read8(kind trap.Kind, addr uint64) uint8 {
	x, err := memory.ReadUint8(p.Memory, addr)
	if err != nil {
		pan.Panic(errors.Access(err, "%s: reading byte at 0x%x", kind, addr))
	}
	return x
}

func (p *Patcher) read32(kind trap.Kind, addr uint64) uint32 {
	x, err := memory.ReadUint32(p.Memory, addr)
	if err != nil {
		pan.Panic(errors.Access(err, "%s: reading placeholder at 0x%x", kind, addr))
	}
	return x
}

// Site returns the address which the protocol of the given kind would patch:
// the call site or field access instruction, or the dispatch table slot.
// Faults with the same kind and site are handled identically.
func (p *Patcher) Site(kind trap.Kind, ev *trap.Event) (addr uint64, err error) {
	defer func() { err = pan.Error(recover()) }()

	switch kind {
	case trap.StaticCall:
		addr = ev.IP - p.Contract.CallSkew

	case trap.VirtualDispatch:
		addr = p.slot(kind, abi.MethodTable, ev)

	case trap.InterfaceDispatch:
		addr = p.slot(kind, abi.InterfaceTable, ev)

	case trap.StaticField:
		addr = ev.IP

	default:
		pan.Panic(&errors.UnclassifiedTrap{Code: int(kind), IP: ev.IP, Origin: ev.StackOrigin})
	}
	return
}

func (p *Patcher) readWord(kind trap.Kind, addr uint64) uint64 {
	x, err := memory.ReadWord(p.Memory, addr, p.Contract.WordSize)
	if err != nil {
		pan.Panic(errors.Access(err, "%s: reading slot at 0x%x", kind, addr))
	}
	return x
}

func (p *Patcher) apply(kind trap.Kind, patch memory.Patch) {
	if err := p.Memory.Apply(patch); err != nil {
		pan.Panic(errors.Access(err, "%s: writing 0x%x", kind, patch.Addr))
	}
}
