// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package errors

import (
	"io"
	"testing"

	"github.com/tsavola/lazylink/trap"
	"golang.org/x/xerrors"
)

type fatalError interface {
	error
	Fatal() bool
}

func TestFatal(t *testing.T) {
	for _, err := range []error{
		&SentinelMismatch{trap.StaticCall, 0x1000, 0x90ffff90, 0},
		&UnclassifiedTrap{0, 0x1000, 0x2000},
		&DisplacementRange{trap.StaticField, 0x1000, 1 << 40},
		Access(io.EOF, "read"),
	} {
		f, ok := err.(fatalError)
		if !ok || !f.Fatal() {
			t.Errorf("%v is not fatal", err)
		}
	}
}

func TestAccessUnwrap(t *testing.T) {
	wrapped := xerrors.Errorf("handling: %w", Access(io.ErrUnexpectedEOF, "read at 0x%x", 0x10))
	if !xerrors.Is(wrapped, io.ErrUnexpectedEOF) {
		t.Error(wrapped)
	}
	if s := Access(io.EOF, "read at 0x%x", 0x10).Error(); s != "read at 0x10: EOF" {
		t.Error(s)
	}
}

func TestSentinelMismatchAs(t *testing.T) {
	wrapped := xerrors.Errorf("patch: %w", &SentinelMismatch{Kind: trap.StaticField, Addr: 0x42, Observed: 1})

	var e *SentinelMismatch
	if !xerrors.As(wrapped, &e) {
		t.Fatal(wrapped)
	}
	if e.Addr != 0x42 || e.Kind != trap.StaticField {
		t.Error(e)
	}
}
