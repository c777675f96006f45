// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build cgo && linux && (386 || amd64)

// Package native delivers faults of generated code running in the current
// process.
//
// The SIGILL and SIGSEGV handlers claim only faults whose instruction pointer
// is within an owned text region, or whose top of stack holds a return
// address into one.  Other faults are passed to the previously installed
// handlers, so the Go runtime keeps handling its own.  Generated code must be
// entered with Process.Call.
package native

/*
#include "handler.h"
*/
import "C"

import (
	"sync/atomic"
	"syscall"
	"unsafe"

	"golang.org/x/xerrors"

	"github.com/tsavola/lazylink"
	"github.com/tsavola/lazylink/memory"
	"github.com/tsavola/lazylink/trap"
)

var handlers [trap.NumClasses]atomic.Pointer[lazylink.Handler]

// Process implements lazylink.Platform.  Signal dispositions are process-wide,
// so all Process values are equivalent.
type Process struct{}

func (Process) InstallHandler(class trap.Class, flags lazylink.Flags, h lazylink.Handler) error {
	if class < 0 || class >= trap.NumClasses {
		return xerrors.Errorf("unknown fault class: %d", class)
	}

	handlers[class].Store(&h)

	if e := C.lazylink_install(C.int(class), cbool(flags&lazylink.Rearm), cbool(flags&lazylink.Restart), cbool(flags&lazylink.NoDefer)); e != 0 {
		return xerrors.Errorf("installing %s handler: %w", class, syscall.Errno(e))
	}
	return nil
}

// Own a text region.  Faults raised by its code are delivered to the
// installed handlers.
func (Process) Own(text []byte) error {
	if len(text) == 0 {
		return nil
	}

	start := memory.Addr(text)
	if e := C.lazylink_own(C.uintptr_t(start), C.uintptr_t(start+uint64(len(text)))); e != 0 {
		return xerrors.Errorf("owning text at 0x%x: %w", start, syscall.Errno(e))
	}
	return nil
}

// Call generated code at entry without arguments, on the current thread.
func (Process) Call(entry uint64) {
	C.lazylink_call(C.uintptr_t(entry))
}

//export lazylinkDeliver
func lazylinkDeliver(class C.int, gregs unsafe.Pointer) {
	if h := handlers[class].Load(); h != nil {
		(*h)(wrapContext(gregs))
	}
}

func cbool(x lazylink.Flags) C.int {
	if x != 0 {
		return 1
	}
	return 0
}

// Memory of the process.  Writes are confined to the regions of the embedded
// Native memory.  Reads outside them access the process directly; they are
// made by the engine only at addresses taken from a faulting context, such as
// the stack pointer.
type Memory struct {
	*memory.Native
}

func (m Memory) ReadAt(b []byte, addr uint64) error {
	err := m.Native.ReadAt(b, addr)
	if xerrors.Is(err, memory.ErrUnmapped) && addr != 0 && len(b) > 0 {
		copy(b, unsafe.Slice((*byte)(unsafe.Pointer(uintptr(addr))), len(b)))
		err = nil
	}
	return err
}
