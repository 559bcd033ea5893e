//go:build darwin || freebsd || linux

package jit

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/ebitengine/purego"

	"github.com/sarchlab/rvjit/emu"
)

const dynamicLoading = true

// library is a block loaded from a shared object.
type library struct {
	name   string
	handle uintptr
	fn     uintptr
}

func openLibrary(path, name string) (*library, error) {
	handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_LOCAL)
	if err != nil {
		return nil, fmt.Errorf("%w: dlopen %s: %w", ErrLoad, path, err)
	}

	fn, err := purego.Dlsym(handle, name)
	if err != nil {
		_ = purego.Dlclose(handle)
		return nil, fmt.Errorf("%w: dlsym %s: %w", ErrLoad, name, err)
	}

	return &library{name: name, handle: handle, fn: fn}, nil
}

func (l *library) Name() string {
	return l.name
}

func (l *library) Invoke(state *emu.State, ram []byte, pc uint32) (uint32, error) {
	r1, _, _ := purego.SyscallN(l.fn,
		uintptr(unsafe.Pointer(state)),
		uintptr(unsafe.Pointer(unsafe.SliceData(ram))),
		uintptr(pc),
	)
	runtime.KeepAlive(state)
	runtime.KeepAlive(ram)
	return uint32(r1), nil
}

func (l *library) close() error {
	if l.handle == 0 {
		return nil
	}
	err := purego.Dlclose(l.handle)
	l.handle = 0
	l.fn = 0
	if err != nil {
		return fmt.Errorf("%w: dlclose %s: %w", ErrLoad, l.name, err)
	}
	return nil
}
