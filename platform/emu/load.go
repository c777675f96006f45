// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build unicorn

package emu

import (
	"github.com/tsavola/lazylink/abi"
	"github.com/tsavola/lazylink/linkmap"
)

// Load maps the program's segments and stack, and sets its initial registers.
func (m *Machine) Load(p *linkmap.Program) error {
	for i := range p.Segments {
		seg := &p.Segments[i]

		data, err := seg.Bytes()
		if err != nil {
			return err
		}
		if len(data) == 0 {
			continue
		}

		if err := m.Map(seg.Addr, uint64(len(data))); err != nil {
			return err
		}
		if err := m.mu.MemWrite(seg.Addr, data); err != nil {
			return err
		}
	}

	if p.StackSize > 0 {
		if err := m.Map(p.Stack-p.StackSize, p.StackSize); err != nil {
			return err
		}
	}

	for r := abi.Reg(0); r < abi.NumRegs; r++ {
		x := p.Register(r)
		if r == abi.RegSP {
			x = p.Stack
		}
		if err := m.SetReg(r, x); err != nil {
			return err
		}
	}

	return nil
}
