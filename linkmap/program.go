// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package linkmap

import (
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/xerrors"

	"github.com/tsavola/lazylink/abi"
)

// Program describes memory and initial registers for running code:
//
//	[program]
//	contract = 1
//	entry = 0x1000
//	end = 0x1040
//	stack = 0x80000
//	stack_size = 0x1000
//	registers = { ax = 0x3000, bx = 0x5000 }
//
//	[[program.segment]]
//	addr = 0x1000
//	size = 0x1000
//	text = "90 90 ff ff 90 c3"
//
// Segment text is hexadecimal; whitespace is ignored.
type Program struct {
	Contract  int               `toml:"contract"`
	Entry     uint64            `toml:"entry"`
	End       uint64            `toml:"end"`
	Stack     uint64            `toml:"stack"` // Initial stack pointer.
	StackSize uint64            `toml:"stack_size"`
	Registers map[string]uint64 `toml:"registers"`
	Segments  []Segment         `toml:"segment"`
}

type Segment struct {
	Addr uint64 `toml:"addr"`
	Size uint64 `toml:"size"`
	Text string `toml:"text"`
}

// Bytes of the segment, padded to its size.
func (s *Segment) Bytes() ([]byte, error) {
	text, err := hex.DecodeString(strings.Join(strings.Fields(s.Text), ""))
	if err != nil {
		return nil, xerrors.Errorf("segment at 0x%x: %w", s.Addr, err)
	}

	size := s.Size
	if size == 0 {
		size = uint64(len(text))
	}
	if uint64(len(text)) > size {
		return nil, fmt.Errorf("segment at 0x%x: %d bytes of text exceed size %d", s.Addr, len(text), size)
	}

	b := make([]byte, size)
	copy(b, text)
	return b, nil
}

// Register looks up an initial register value by name ("ax", "bx", ...).
func (p *Program) Register(r abi.Reg) uint64 {
	return p.Registers[r.String()]
}

func (p *Program) check() error {
	switch p.Contract {
	case 0, 1, 2:
	default:
		return fmt.Errorf("unknown contract version: %d", p.Contract)
	}

	for name := range p.Registers {
		found := false
		for r := abi.Reg(0); r < abi.NumRegs; r++ {
			if r.String() == name {
				found = true
			}
		}
		if !found || name == abi.RegSP.String() {
			return fmt.Errorf("invalid initial register: %q", name)
		}
	}

	for i := range p.Segments {
		if _, err := p.Segments[i].Bytes(); err != nil {
			return err
		}
	}

	return nil
}
