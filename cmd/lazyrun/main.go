// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build unicorn

// Program lazyrun runs a link map's program in an emulator, linking its sites
// on first use.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/tsavola/lazylink"
	"github.com/tsavola/lazylink/abi"
	"github.com/tsavola/lazylink/dump"
	"github.com/tsavola/lazylink/handle"
	"github.com/tsavola/lazylink/linkmap"
	"github.com/tsavola/lazylink/memory"
	"github.com/tsavola/lazylink/platform/emu"
	"github.com/tsavola/lazylink/trap"
)

var log = commonlog.GetLogger("lazyrun")

const callTail = 8

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] mapfile\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}

	var (
		verbose   = 0
		dumpText  = false
		maxFaults = emu.DefaultMaxFaults
		serialize = false
	)

	flag.IntVar(&verbose, "v", verbose, "verbosity level (0-4)")
	flag.BoolVar(&dumpText, "dumptext", dumpText, "disassemble the patched sites to stdout")
	flag.IntVar(&maxFaults, "faults", maxFaults, "maximum number of faults per run")
	flag.BoolVar(&serialize, "serialize", serialize, "collapse concurrent faults on the same site")
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	commonlog.Configure(verbose, nil)

	if err := run(flag.Arg(0), dumpText, maxFaults, serialize); err != nil {
		log.Criticalf("%v", err)
		os.Exit(1)
	}
}

func run(filename string, dumpText bool, maxFaults int, serialize bool) error {
	lm, err := linkmap.Load(filename)
	if err != nil {
		return err
	}
	if lm.Program == nil {
		return fmt.Errorf("%s: no program", filename)
	}
	p := lm.Program

	contract := lm.Contract()

	m, err := emu.New(contract)
	if err != nil {
		return err
	}
	defer m.Close()
	m.MaxFaults = maxFaults

	if err := m.Load(p); err != nil {
		return err
	}

	handles := new(handle.Table)
	lm.Populate(handles)

	mem := &memory.Journal{Memory: m}

	e := &lazylink.Engine{
		Contract:  contract,
		Authority: lm,
		Memory:    mem,
		Handles:   handles,
		Abort:     m.Abort,
		Serialize: serialize,
	}

	if err := lazylink.Install(m, e); err != nil {
		return err
	}

	if err := m.Run(p.Entry, p.End); err != nil {
		return err
	}

	s := e.Stats()
	for _, k := range trap.Kinds {
		fmt.Printf("%-18s %d\n", k, s.Patched[k])
	}
	fmt.Printf("%-18s %d\n", "faults", m.Faults)

	for r := abi.Reg(0); r < abi.NumRegs; r++ {
		x, err := m.Reg(r)
		if err != nil {
			return err
		}
		fmt.Printf("%-18s 0x%x\n", r, x)
	}

	if dumpText {
		for _, patch := range mem.Patches {
			fmt.Printf("\n%s\n", patch)

			// Dispatch slots and field placeholders are data.
			if len(patch.Bytes) != contract.CallLen || patch.Bytes[0] != contract.CallOpcode {
				continue
			}

			// Include the instruction which follows the call.
			if err := dump.Region(os.Stdout, m, patch.Addr, len(patch.Bytes)+callTail, contract); err != nil {
				return err
			}
		}
	}

	return nil
}
