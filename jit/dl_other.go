//go:build !(darwin || freebsd || linux)

package jit

import "github.com/sarchlab/rvjit/emu"

const dynamicLoading = false

type library struct {
	name string
}

func openLibrary(_, name string) (*library, error) {
	return nil, ErrUnsupported
}

func (l *library) Name() string {
	return l.name
}

func (l *library) Invoke(_ *emu.State, _ []byte, pc uint32) (uint32, error) {
	return pc, ErrUnsupported
}

func (l *library) close() error {
	return nil
}
