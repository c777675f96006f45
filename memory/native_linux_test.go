// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package memory

import (
	"os"
	"testing"

	"golang.org/x/sys/unix"
	"golang.org/x/xerrors"
)

func TestNativeReadOnlyText(t *testing.T) {
	n := NewNative()
	defer n.Close()

	size := os.Getpagesize() * 2
	text, err := n.Map(size, unix.PROT_READ, 0)
	if err != nil {
		t.Fatal(err)
	}

	// Straddle the page boundary.
	addr := Addr(text) + uint64(os.Getpagesize()) - 2

	if err := n.Apply(Patch{addr, []byte{0xe8, 1, 2, 3, 4}}); err != nil {
		t.Fatal(err)
	}

	x, err := ReadUint8(n, addr)
	if err != nil || x != 0xe8 {
		t.Errorf("0x%x %v", x, err)
	}
	y, err := ReadUint32(n, addr+1)
	if err != nil || y != 0x04030201 {
		t.Errorf("0x%x %v", y, err)
	}

	// Protection was restored.
	if err := unix.Mprotect(text, unix.PROT_READ); err != nil {
		t.Fatal(err)
	}
}

func TestNativeWritableTable(t *testing.T) {
	n := NewNative()
	defer n.Close()

	table, err := n.Map(os.Getpagesize(), unix.PROT_READ|unix.PROT_WRITE, 0)
	if err != nil {
		t.Fatal(err)
	}

	if err := n.Apply(WordPatch(Addr(table)+8, 0x4050, 8)); err != nil {
		t.Fatal(err)
	}
	if table[8] != 0x50 || table[9] != 0x40 {
		t.Errorf("% x", table[:16])
	}
}

func TestNativeUnmapped(t *testing.T) {
	n := NewNative()
	defer n.Close()

	mem, err := n.Map(os.Getpagesize(), unix.PROT_READ|unix.PROT_WRITE, 0)
	if err != nil {
		t.Fatal(err)
	}

	end := Addr(mem) + uint64(len(mem))
	if err := n.Apply(Uint32Patch(end-2, 0)); !xerrors.Is(err, ErrUnmapped) {
		t.Error(err)
	}
	if _, err := ReadUint8(n, end); !xerrors.Is(err, ErrUnmapped) {
		t.Error(err)
	}
}

func TestNativeRegister(t *testing.T) {
	mem, err := unix.Mmap(-1, 0, os.Getpagesize(), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		t.Fatal(err)
	}
	defer unix.Munmap(mem)

	n := NewNative()
	n.Register(mem, unix.PROT_READ|unix.PROT_WRITE)

	if err := n.Apply(Uint32Patch(Addr(mem), 0xdeadbeef)); err != nil {
		t.Fatal(err)
	}
	if err := n.Close(); err != nil {
		t.Fatal(err)
	}
	if mem[0] != 0xef {
		t.Error(mem[0])
	}
}
