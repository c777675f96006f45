// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ucontext

import (
	"testing"

	"github.com/tsavola/lazylink/abi"
	"github.com/tsavola/lazylink/memory"
	"github.com/tsavola/lazylink/trap"
	"golang.org/x/xerrors"
)

func TestMContext32Layout(t *testing.T) {
	var mc MContext32
	mc.Gregs[14] = 0x1002 // REG_EIP
	mc.Gregs[7] = 0x8000  // REG_ESP
	mc.Gregs[11] = 0x3000 // REG_EAX
	mc.Gregs[8] = 0x5000  // REG_EBX

	parsed, err := ParseMContext32(mc.Bytes())
	if err != nil {
		t.Fatal(err)
	}

	if parsed.IP() != 0x1002 || parsed.SP() != 0x8000 {
		t.Errorf("ip 0x%x sp 0x%x", parsed.IP(), parsed.SP())
	}
	if parsed.Reg(abi.RegAX) != 0x3000 || parsed.Reg(abi.RegBX) != 0x5000 {
		t.Errorf("ax 0x%x bx 0x%x", parsed.Reg(abi.RegAX), parsed.Reg(abi.RegBX))
	}

	parsed.SetIP(0x4050)
	if parsed.Gregs[14] != 0x4050 {
		t.Error(parsed.Gregs)
	}

	if _, err := ParseMContext32(make([]byte, NumGregs32*4-1)); err == nil {
		t.Error("short record accepted")
	}
}

func TestMContext64Layout(t *testing.T) {
	var mc MContext64
	mc.SetReg(abi.RegAX, 0xaaaa)
	mc.SetReg(abi.RegBX, 0xbbbb)
	mc.SetReg(abi.RegSP, 0x7ff0)
	mc.SetIP(0x401000)

	if mc.Gregs[13] != 0xaaaa || mc.Gregs[11] != 0xbbbb || mc.Gregs[15] != 0x7ff0 || mc.Gregs[16] != 0x401000 {
		t.Error(mc.Gregs)
	}

	parsed, err := ParseMContext64(mc.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if *parsed != mc {
		t.Error(parsed.Gregs)
	}

	if _, err := ParseMContext64(make([]byte, 8)); err == nil {
		t.Error("short record accepted")
	}
}

func TestDecodeInvalidAccess(t *testing.T) {
	var img memory.Image
	stack := img.Alloc(0x8000, 16)
	stack[0] = 0x23 // Return address 0x1023.
	stack[1] = 0x10

	ctx := new(Regs)
	ctx.SetIP(0)
	ctx.SetReg(abi.RegSP, 0x8000)
	ctx.SetReg(abi.RegAX, 0x3000)
	ctx.SetReg(abi.RegBX, 0x5000)

	ev, err := Decode(trap.InvalidAccess, ctx, &img, &abi.V1)
	if err != nil {
		t.Fatal(err)
	}

	expect := trap.Event{
		Class:       trap.InvalidAccess,
		SP:          0x8000,
		Carriers:    [abi.NumCarriers]uint64{0x3000, 0x5000},
		ReturnAddr:  0x1023,
		StackOrigin: 0x1020,
	}
	if ev != expect {
		t.Errorf("%+v", ev)
	}
}

func TestDecodeWordSize(t *testing.T) {
	var img memory.Image
	stack := img.Alloc(0x8000, 8)
	copy(stack, []byte{0x10, 0x20, 0x30, 0x40, 0x01, 0, 0, 0})

	ctx := &Regs{}
	ctx.SetReg(abi.RegSP, 0x8000)

	ev, err := Decode(trap.InvalidAccess, ctx, &img, &abi.V2)
	if err != nil {
		t.Fatal(err)
	}
	if ev.ReturnAddr != 0x0140302010 || ev.StackOrigin != 0x014030200d {
		t.Errorf("0x%x 0x%x", ev.ReturnAddr, ev.StackOrigin)
	}
}

func TestDecodeIllegalInstructionSkipsStack(t *testing.T) {
	var img memory.Image

	mc := new(MContext32)
	mc.SetIP(0x1002)
	mc.SetReg(abi.RegSP, 0xdead0000)

	ev, err := Decode(trap.IllegalInstruction, mc, &img, &abi.V1)
	if err != nil {
		t.Fatal(err)
	}
	if ev.IP != 0x1002 || ev.ReturnAddr != 0 {
		t.Errorf("%+v", ev)
	}
}

func TestDecodeBadStack(t *testing.T) {
	var img memory.Image

	ctx := &Regs{}
	ctx.SetReg(abi.RegSP, 0x8000)

	_, err := Decode(trap.InvalidAccess, ctx, &img, &abi.V1)
	if !xerrors.Is(err, memory.ErrUnmapped) {
		t.Error(err)
	}
}
