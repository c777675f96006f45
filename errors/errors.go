// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package errors defines the fatal trap handling errors.
//
// Every error returned by the engine implements the following interface:
//
//	interface {
//	    Fatal() bool
//	}
//
// The instruction stream cannot be safely continued after any of them: a trap
// registrar terminates the process.
package errors

import (
	"fmt"

	"github.com/tsavola/lazylink/trap"
)

// SentinelMismatch means that a placeholder didn't contain the unresolved
// pattern.  Either the site was already patched, or the code generator
// violated the layout contract.
type SentinelMismatch struct {
	Kind     trap.Kind
	Addr     uint64
	Expected uint32
	Observed uint32
}

func (e *SentinelMismatch) Error() string {
	return fmt.Sprintf("%s site at 0x%x: placeholder is 0x%08x, expected 0x%08x", e.Kind, e.Addr, e.Observed, e.Expected)
}

func (*SentinelMismatch) Fatal() bool { return true }

// UnclassifiedTrap means that the classification query returned an
// unrecognized code.
type UnclassifiedTrap struct {
	Code   int
	IP     uint64
	Origin uint64
}

func (e *UnclassifiedTrap) Error() string {
	return fmt.Sprintf("unclassified trap at 0x%x (origin 0x%x): code %d", e.IP, e.Origin, e.Code)
}

func (*UnclassifiedTrap) Fatal() bool { return true }

// DisplacementRange means that a resolved value doesn't fit in the space
// reserved for it.
type DisplacementRange struct {
	Kind  trap.Kind
	Addr  uint64
	Value int64
}

func (e *DisplacementRange) Error() string {
	return fmt.Sprintf("%s site at 0x%x: value 0x%x does not fit in 32 bits", e.Kind, e.Addr, e.Value)
}

func (*DisplacementRange) Fatal() bool { return true }

type accessError struct {
	text  string
	cause error
}

// Access wraps a memory read or write failure.
func Access(cause error, format string, args ...interface{}) error {
	return &accessError{fmt.Sprintf(format, args...), cause}
}

func (e *accessError) Error() string { return e.text + ": " + e.cause.Error() }
func (e *accessError) Unwrap() error { return e.cause }
func (*accessError) Fatal() bool     { return true }
