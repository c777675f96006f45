// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package handle holds opaque table pointers supplied by a resolution
// authority.
//
// A Table is populated once at startup, before any managed code runs, and is
// only read afterwards.  The ordering is the host's responsibility: the table
// has no synchronization and performs no validation.
package handle

import (
	"fmt"
)

type Name int

const (
	Method = Name(iota)
	Trap
	Class
	Virtual
	Strings
	Interfaces
	InterfaceMethod

	NumNames
)

func (n Name) String() string {
	switch n {
	case Method:
		return "method"

	case Trap:
		return "trap"

	case Class:
		return "class"

	case Virtual:
		return "virtual"

	case Strings:
		return "strings"

	case Interfaces:
		return "interfaces"

	case InterfaceMethod:
		return "interfacemethod"

	default:
		return fmt.Sprintf("handle %d", int(n))
	}
}

// Table of raw, non-owned pointers.  The zero value is empty.
type Table struct {
	ptrs [NumNames]uintptr
}

// Set overwrites the slot silently.  Unknown names are ignored.
func (t *Table) Set(name Name, ptr uintptr) {
	if name >= 0 && name < NumNames {
		t.ptrs[name] = ptr
	}
}

// Get returns the last stored pointer, or 0.
func (t *Table) Get(name Name) uintptr {
	if name >= 0 && name < NumNames {
		return t.ptrs[name]
	}
	return 0
}

func (t *Table) SetMethodMap(ptr uintptr)          { t.Set(Method, ptr) }
func (t *Table) SetTrapMap(ptr uintptr)            { t.Set(Trap, ptr) }
func (t *Table) SetClassMap(ptr uintptr)           { t.Set(Class, ptr) }
func (t *Table) SetVirtualMap(ptr uintptr)         { t.Set(Virtual, ptr) }
func (t *Table) SetStringsMap(ptr uintptr)         { t.Set(Strings, ptr) }
func (t *Table) SetInterfacesMap(ptr uintptr)      { t.Set(Interfaces, ptr) }
func (t *Table) SetInterfaceMethodMap(ptr uintptr) { t.Set(InterfaceMethod, ptr) }

func (t *Table) MethodMap() uintptr          { return t.Get(Method) }
func (t *Table) TrapMap() uintptr            { return t.Get(Trap) }
func (t *Table) ClassMap() uintptr           { return t.Get(Class) }
func (t *Table) VirtualMap() uintptr         { return t.Get(Virtual) }
func (t *Table) StringsMap() uintptr         { return t.Get(Strings) }
func (t *Table) InterfacesMap() uintptr      { return t.Get(Interfaces) }
func (t *Table) InterfaceMethodMap() uintptr { return t.Get(InterfaceMethod) }
