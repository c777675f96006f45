// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package classify

import (
	"testing"

	"github.com/tsavola/lazylink/errors"
	"github.com/tsavola/lazylink/trap"
	"golang.org/x/xerrors"
)

type classifier struct {
	code    int
	queries [][2]uint64
}

func (c *classifier) ClassifyTrap(ip, origin uint64) int {
	c.queries = append(c.queries, [2]uint64{ip, origin})
	return c.code
}

func TestIllegalInstruction(t *testing.T) {
	c := &classifier{code: 0}

	k, err := Kind(c, &trap.Event{Class: trap.IllegalInstruction, IP: 0x1002})
	if err != nil || k != trap.StaticCall {
		t.Error(k, err)
	}
	if len(c.queries) != 0 {
		t.Error(c.queries)
	}
}

func TestInvalidAccess(t *testing.T) {
	for _, x := range []struct {
		code int
		kind trap.Kind
	}{
		{1, trap.VirtualDispatch},
		{2, trap.StaticField},
		{4, trap.InterfaceDispatch},
	} {
		c := &classifier{code: x.code}

		k, err := Kind(c, &trap.Event{Class: trap.InvalidAccess, IP: 0x10, StackOrigin: 0x20})
		if err != nil || k != x.kind {
			t.Errorf("code %d: %v %v", x.code, k, err)
		}
		if len(c.queries) != 1 || c.queries[0] != [2]uint64{0x10, 0x20} {
			t.Errorf("code %d: %v", x.code, c.queries)
		}
	}
}

func TestUnclassified(t *testing.T) {
	for _, code := range []int{0, 3, 5, 7, 8, -1, 1 << 20} {
		_, err := Kind(&classifier{code: code}, &trap.Event{Class: trap.InvalidAccess, IP: 0x10})

		var e *errors.UnclassifiedTrap
		if !xerrors.As(err, &e) || e.Code != code || e.IP != 0x10 {
			t.Errorf("code %d: %v", code, err)
		}
	}
}

func TestUnknownClass(t *testing.T) {
	_, err := Kind(&classifier{code: 1}, &trap.Event{Class: trap.NumClasses})

	var e *errors.UnclassifiedTrap
	if !xerrors.As(err, &e) {
		t.Error(err)
	}
}

func FuzzKind(f *testing.F) {
	f.Add(0, uint64(0), uint64(0))
	f.Add(1, uint64(0), uint64(0x1020))
	f.Add(6, uint64(0x1000), uint64(0))

	f.Fuzz(func(t *testing.T, code int, ip, origin uint64) {
		k, err := Kind(&classifier{code: code}, &trap.Event{Class: trap.InvalidAccess, IP: ip, StackOrigin: origin})

		switch code {
		case 1, 2, 4:
			if err != nil || int(k) != code {
				t.Errorf("code %d: %v %v", code, k, err)
			}

		default:
			if err == nil || k != trap.Unclassified {
				t.Errorf("code %d: %v", code, k)
			}
		}
	})
}
