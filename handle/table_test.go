// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package handle

import (
	"testing"
)

func TestNamedPairs(t *testing.T) {
	var tab Table

	pairs := []struct {
		name Name
		set  func(uintptr)
		get  func() uintptr
	}{
		{Method, tab.SetMethodMap, tab.MethodMap},
		{Trap, tab.SetTrapMap, tab.TrapMap},
		{Class, tab.SetClassMap, tab.ClassMap},
		{Virtual, tab.SetVirtualMap, tab.VirtualMap},
		{Strings, tab.SetStringsMap, tab.StringsMap},
		{Interfaces, tab.SetInterfacesMap, tab.InterfacesMap},
		{InterfaceMethod, tab.SetInterfaceMethodMap, tab.InterfaceMethodMap},
	}

	for _, p := range pairs {
		if ptr := p.get(); ptr != 0 {
			t.Errorf("%s: unset slot is 0x%x", p.name, ptr)
		}
	}

	for i, p := range pairs {
		p.set(uintptr(0x1000 * (i + 1)))
	}

	for i, p := range pairs {
		if ptr := p.get(); ptr != uintptr(0x1000*(i+1)) {
			t.Errorf("%s: 0x%x", p.name, ptr)
		}
		if ptr := tab.Get(p.name); ptr != p.get() {
			t.Errorf("%s: Get differs: 0x%x", p.name, ptr)
		}
	}
}

func TestOverwrite(t *testing.T) {
	var tab Table

	tab.SetTrapMap(1)
	tab.SetTrapMap(2)
	if ptr := tab.TrapMap(); ptr != 2 {
		t.Error(ptr)
	}
	if ptr := tab.ClassMap(); ptr != 0 {
		t.Error(ptr)
	}
}

func TestUnknownName(t *testing.T) {
	var tab Table

	tab.Set(NumNames, 1)
	tab.Set(-1, 1)
	if ptr := tab.Get(NumNames); ptr != 0 {
		t.Error(ptr)
	}
	if s := Name(99).String(); s != "handle 99" {
		t.Error(s)
	}
	if s := InterfaceMethod.String(); s != "interfacemethod" {
		t.Error(s)
	}
}
