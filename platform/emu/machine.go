// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build unicorn

// Package emu runs generated x86 code in the unicorn emulator, delivering
// invalid instruction and unmapped access stops as faults.
package emu

import (
	"errors"
	"fmt"

	"github.com/tliron/commonlog"
	uc "github.com/unicorn-engine/unicorn/bindings/go/unicorn"
	"golang.org/x/xerrors"

	"github.com/tsavola/lazylink"
	"github.com/tsavola/lazylink/abi"
	"github.com/tsavola/lazylink/memory"
	"github.com/tsavola/lazylink/trap"
	"github.com/tsavola/lazylink/ucontext"
)

var log = commonlog.GetLogger("lazylink.emu")

const pageSize = 0x1000

// DefaultMaxFaults bounds the number of deliveries during one Run.
const DefaultMaxFaults = 1 << 16

var ErrFaultLimit = errors.New("fault limit exceeded")

var regs32 = [abi.NumRegs]int{
	abi.RegAX: uc.X86_REG_EAX,
	abi.RegCX: uc.X86_REG_ECX,
	abi.RegDX: uc.X86_REG_EDX,
	abi.RegBX: uc.X86_REG_EBX,
	abi.RegSP: uc.X86_REG_ESP,
	abi.RegBP: uc.X86_REG_EBP,
	abi.RegSI: uc.X86_REG_ESI,
	abi.RegDI: uc.X86_REG_EDI,
}

var regs64 = [abi.NumRegs]int{
	abi.RegAX: uc.X86_REG_RAX,
	abi.RegCX: uc.X86_REG_RCX,
	abi.RegDX: uc.X86_REG_RDX,
	abi.RegBX: uc.X86_REG_RBX,
	abi.RegSP: uc.X86_REG_RSP,
	abi.RegBP: uc.X86_REG_RBP,
	abi.RegSI: uc.X86_REG_RSI,
	abi.RegDI: uc.X86_REG_RDI,
}

// Machine is a single emulated thread with its memory.  Page zero is never
// mapped.
type Machine struct {
	MaxFaults int // Defaults to DefaultMaxFaults.
	Faults    int // Deliveries during the latest Run.

	mu       uc.Unicorn
	regs     *[abi.NumRegs]int
	pc       int
	pages    map[uint64]bool
	handlers [trap.NumClasses]lazylink.Handler
	aborted  error
}

// New machine for the contract's word size.
func New(c *abi.Contract) (m *Machine, err error) {
	m = &Machine{pages: make(map[uint64]bool)}

	mode := uc.MODE_32
	m.regs = &regs32
	m.pc = uc.X86_REG_EIP
	if c.WordSize == 8 {
		mode = uc.MODE_64
		m.regs = &regs64
		m.pc = uc.X86_REG_RIP
	}

	m.mu, err = uc.NewUnicorn(uc.ARCH_X86, mode)
	if err != nil {
		m = nil
	}
	return
}

func (m *Machine) Close() error {
	return m.mu.Close()
}

// Map memory.  The range is extended to page boundaries; already mapped pages
// are kept.
func (m *Machine) Map(addr, size uint64) error {
	start := addr &^ (pageSize - 1)
	end := (addr + size + pageSize - 1) &^ (pageSize - 1)
	if start == 0 {
		return fmt.Errorf("page zero must stay unmapped")
	}

	for page := start; page < end; page += pageSize {
		if m.pages[page] {
			continue
		}
		if err := m.mu.MemMap(page, pageSize); err != nil {
			return xerrors.Errorf("mapping page 0x%x: %w", page, err)
		}
		m.pages[page] = true
	}
	return nil
}

func (m *Machine) ReadAt(b []byte, addr uint64) error {
	data, err := m.mu.MemRead(addr, uint64(len(b)))
	if err != nil {
		return xerrors.Errorf("0x%x: %v: %w", addr, err, memory.ErrUnmapped)
	}
	copy(b, data)
	return nil
}

// Apply writes through the emulator, which invalidates translated code.
func (m *Machine) Apply(p memory.Patch) error {
	if err := m.ReadAt(make([]byte, len(p.Bytes)), p.Addr); err != nil {
		return err
	}
	return m.mu.MemWrite(p.Addr, p.Bytes)
}

func (m *Machine) Reg(r abi.Reg) (uint64, error) {
	return m.mu.RegRead(m.regs[r])
}

func (m *Machine) SetReg(r abi.Reg, value uint64) error {
	return m.mu.RegWrite(m.regs[r], value)
}

// InstallHandler implements lazylink.Platform.  Handlers stay installed and
// may be delivered repeatedly, so the flags are only checked.
func (m *Machine) InstallHandler(class trap.Class, flags lazylink.Flags, h lazylink.Handler) error {
	if class < 0 || class >= trap.NumClasses {
		return fmt.Errorf("unknown fault class: %d", class)
	}
	if flags&lazylink.Rearm == 0 {
		return fmt.Errorf("%s handler must be rearmed", class)
	}
	m.handlers[class] = h
	return nil
}

// Abort stops the current Run with the error.  It can be used as
// lazylink.Engine.Abort.
func (m *Machine) Abort(err error) {
	m.aborted = err
}

// Run from begin until the instruction pointer reaches until.
func (m *Machine) Run(begin, until uint64) (err error) {
	maxFaults := m.MaxFaults
	if maxFaults == 0 {
		maxFaults = DefaultMaxFaults
	}

	m.Faults = 0
	m.aborted = nil
	pc := begin

	for {
		err = m.mu.Start(pc, until)
		if err == nil {
			return
		}

		class, ok := faultClass(err)
		if !ok {
			return
		}

		h := m.handlers[class]
		if h == nil {
			return xerrors.Errorf("unhandled %s: %w", class, err)
		}

		if m.Faults >= maxFaults {
			return ErrFaultLimit
		}
		m.Faults++

		ctx, err := m.context()
		if err != nil {
			return err
		}

		if log.AllowLevel(commonlog.Debug) {
			log.Debugf("%s at 0x%x", class, ctx.IP())
		}

		h(ctx)

		if m.aborted != nil {
			return m.aborted
		}

		pc = ctx.IP()
		if err := m.mu.RegWrite(m.pc, pc); err != nil {
			return err
		}
	}
}

func (m *Machine) context() (*ucontext.Regs, error) {
	ctx := new(ucontext.Regs)

	pc, err := m.mu.RegRead(m.pc)
	if err != nil {
		return nil, err
	}
	ctx.SetIP(pc)

	for r := abi.Reg(0); r < abi.NumRegs; r++ {
		x, err := m.mu.RegRead(m.regs[r])
		if err != nil {
			return nil, err
		}
		ctx.SetReg(r, x)
	}

	return ctx, nil
}

func faultClass(err error) (trap.Class, bool) {
	var e uc.UcError
	if !xerrors.As(err, &e) {
		return 0, false
	}

	switch e {
	case uc.ERR_INSN_INVALID:
		return trap.IllegalInstruction, true

	case uc.ERR_FETCH_UNMAPPED, uc.ERR_READ_UNMAPPED, uc.ERR_WRITE_UNMAPPED:
		return trap.InvalidAccess, true

	default:
		return 0, false
	}
}
