// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build cgo && linux

package native

import (
	"unsafe"

	"github.com/tsavola/lazylink/ucontext"
)

// wrapContext views the kernel's gregs array in place, so that the resume
// address is written to the interrupted context.
func wrapContext(gregs unsafe.Pointer) ucontext.Context {
	return (*ucontext.MContext64)(gregs)
}
