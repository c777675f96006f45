// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build unicorn

package emu

import (
	"bytes"
	"strings"
	"testing"

	"github.com/tsavola/lazylink"
	"github.com/tsavola/lazylink/abi"
	"github.com/tsavola/lazylink/handle"
	"github.com/tsavola/lazylink/linkmap"
	"github.com/tsavola/lazylink/memory"
	"github.com/tsavola/lazylink/trap"
)

// Static call to 0x1100, virtual call through slot 0x3008 to 0x1200, and load
// of the static field at 0x6000.
const program = `
[handles]
trap = 0x7000

[[trap]]
addr = 0x100a
kind = "virtual"

[[trap]]
addr = 0x100d
kind = "field"

[[method]]
origin = 0x1000
entry = 0x1100

[[method]]
origin = 0x100a
entry = 0x1200

[[field]]
site = 0x100d
addr = 0x6000

[program]
contract = 1
entry = 0x1000
end = 0x1013
stack = 0x80000
stack_size = 0x1000

[[program.segment]]
addr = 0x1000
text = """
90 90 ff ff 90
b8 00 30 00 00
ff 50 08
8b 05 00 00 00 00
"""

[[program.segment]]
addr = 0x1100
text = "b9 01 00 00 00 c3"

[[program.segment]]
addr = 0x1200
text = "ba 02 00 00 00 c3"

[[program.segment]]
addr = 0x3000
size = 0x10

[[program.segment]]
addr = 0x6000
text = "2a 00 00 00"
`

func newMachine(t *testing.T) (*Machine, *lazylink.Engine, *linkmap.Map) {
	t.Helper()

	lm, err := linkmap.Decode(strings.NewReader(program))
	if err != nil {
		t.Fatal(err)
	}

	m, err := New(lm.Contract())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { m.Close() })

	if err := m.Load(lm.Program); err != nil {
		t.Fatal(err)
	}

	tab := new(handle.Table)
	lm.Populate(tab)

	e := &lazylink.Engine{
		Contract:  lm.Contract(),
		Authority: lm,
		Memory:    m,
		Handles:   tab,
		Abort:     m.Abort,
	}
	if err := lazylink.Install(m, e); err != nil {
		t.Fatal(err)
	}

	return m, e, lm
}

func TestRun(t *testing.T) {
	m, e, lm := newMachine(t)
	p := lm.Program

	if err := m.Run(p.Entry, p.End); err != nil {
		t.Fatal(err)
	}
	if m.Faults != 3 {
		t.Errorf("faults: %d", m.Faults)
	}

	for r, value := range map[abi.Reg]uint64{
		abi.RegAX: 0x2a,
		abi.RegCX: 1,
		abi.RegDX: 2,
	} {
		if x, err := m.Reg(r); err != nil || x != value {
			t.Errorf("%s: 0x%x %v", r, x, err)
		}
	}

	call := make([]byte, 5)
	if err := m.ReadAt(call, 0x1000); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(call, []byte{0xe8, 0xfb, 0x00, 0x00, 0x00}) {
		t.Errorf("call: % x", call)
	}
	if x, _ := memory.ReadUint32(m, 0x3008); x != 0x1200 {
		t.Errorf("slot: 0x%x", x)
	}
	if x, _ := memory.ReadUint32(m, 0x100f); x != 0x6000 {
		t.Errorf("field: 0x%x", x)
	}

	s := e.Stats()
	for _, k := range []trap.Kind{trap.StaticCall, trap.VirtualDispatch, trap.StaticField} {
		if s.Patched[k] != 1 {
			t.Errorf("%s: %d", k, s.Patched[k])
		}
	}

	// Linked code doesn't fault again.
	if err := m.SetReg(abi.RegSP, p.Stack); err != nil {
		t.Fatal(err)
	}
	if err := m.Run(p.Entry, p.End); err != nil {
		t.Fatal(err)
	}
	if m.Faults != 0 {
		t.Errorf("faults after linking: %d", m.Faults)
	}
}

func TestRunAbort(t *testing.T) {
	m, e, lm := newMachine(t)

	// FF FE is still an invalid instruction, but the sentinel is broken.
	if err := m.mu.MemWrite(0x1003, []byte{0xfe}); err != nil {
		t.Fatal(err)
	}

	if err := m.Run(lm.Program.Entry, lm.Program.End); err == nil {
		t.Fatal("no error")
	}
	if m.Faults != 1 {
		t.Errorf("faults: %d", m.Faults)
	}
	if e.Stats().Fatal != 1 {
		t.Error(e.Stats())
	}

	b := make([]byte, 5)
	if err := m.ReadAt(b, 0x1000); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(b, []byte{0x90, 0x90, 0xff, 0xfe, 0x90}) {
		t.Errorf("site modified: % x", b)
	}
}

func TestMapPageZero(t *testing.T) {
	m, err := New(&abi.V1)
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	if err := m.Map(0x10, 0x10); err == nil {
		t.Error("page zero mapped")
	}
}
