package jit

import "errors"

var (
	// ErrEmptyBlock means the instruction at the entry pc cannot be
	// translated, so no block exists for it.
	ErrEmptyBlock = errors.New("jit: no translatable instructions at block entry")

	// ErrBuild means an external build step failed.
	ErrBuild = errors.New("jit: build failed")

	// ErrLoad means a built artifact could not be loaded or resolved.
	ErrLoad = errors.New("jit: load failed")

	// ErrResource means the host could not provide a work directory, file
	// or process.
	ErrResource = errors.New("jit: host resource failure")

	// ErrUntranslatable is returned for a pc whose translation failed
	// earlier. The first failure is wrapped alongside it.
	ErrUntranslatable = errors.New("jit: pc marked untranslatable")

	// ErrFault means a block would have accessed memory outside RAM or
	// at a misaligned address.
	ErrFault = errors.New("jit: block memory fault")

	// ErrUnsupported means the backend cannot build on this host.
	ErrUnsupported = errors.New("jit: backend unsupported")
)
