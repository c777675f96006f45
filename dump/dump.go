// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build cgo

// Package dump disassembles code around sites.
package dump

import (
	"fmt"
	"io"
	"strings"

	"github.com/bnagy/gapstone"

	"github.com/tsavola/lazylink/abi"
	"github.com/tsavola/lazylink/memory"
)

const csSyntax = gapstone.CS_OPT_SYNTAX_ATT

func csMode(c *abi.Contract) int {
	if c.WordSize == 8 {
		return gapstone.CS_MODE_64
	}
	return gapstone.CS_MODE_32
}

// Text writes one instruction per line.  Undecodable bytes (such as an
// unresolved call sentinel) end the listing with a data line.
func Text(w io.Writer, text []byte, addr uint64, c *abi.Contract) (err error) {
	engine, err := gapstone.New(gapstone.CS_ARCH_X86, csMode(c))
	if err != nil {
		return
	}
	defer engine.Close()

	if err = engine.SetOption(gapstone.CS_OPT_SYNTAX, csSyntax); err != nil {
		return
	}

	insns, err := engine.Disasm(text, addr, 0)
	if err != nil && len(insns) == 0 {
		// Capstone fails if the first instruction is invalid.
		insns = nil
		err = nil
	}
	if err != nil {
		return
	}

	var offset int

	for _, insn := range insns {
		fmt.Fprintf(w, "%08x\t%s\n", insn.Address, strings.TrimSpace(fmt.Sprintf("%s\t%s", insn.Mnemonic, insn.OpStr)))
		offset += int(insn.Size)
	}

	if offset < len(text) {
		fmt.Fprintf(w, "%08x\t.byte\t% x\n", addr+uint64(offset), text[offset:])
	}
	return
}

// Region reads memory and disassembles it.
func Region(w io.Writer, mem memory.Memory, addr uint64, size int, c *abi.Contract) error {
	b := make([]byte, size)
	if err := mem.ReadAt(b, addr); err != nil {
		return err
	}
	return Text(w, b, addr, c)
}
