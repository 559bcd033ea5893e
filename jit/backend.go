package jit

import "github.com/sarchlab/rvjit/emu"

// Artifact is the output of a build.
type Artifact struct {
	// Name is the exported function name.
	Name string

	// Dir is the per-block work directory. Empty for in-process backends.
	Dir string

	// Path is the loadable object.
	Path string

	program *program
}

// Func is a loaded compiled block.
type Func interface {
	Name() string

	// Invoke runs the block against state and the RAM image and returns
	// pc. An error wrapping ErrFault means the block declined to run and
	// left state and RAM untouched.
	Invoke(state *emu.State, ram []byte, pc uint32) (uint32, error)
}

// Backend turns IR text into callable blocks.
type Backend interface {
	Build(name, source string) (Artifact, error)
	Load(artifact Artifact) (Func, error)
	Unload(fn Func) error

	// Purge removes on-disk artifacts of the named block.
	Purge(name string) error
}

// Nop is a backend that refuses every build.
type Nop struct{}

func (Nop) Build(string, string) (Artifact, error) {
	return Artifact{}, ErrUnsupported
}

func (Nop) Load(Artifact) (Func, error) {
	return nil, ErrUnsupported
}

func (Nop) Unload(Func) error { return nil }

func (Nop) Purge(string) error { return nil }
