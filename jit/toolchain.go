package jit

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
)

// Default external tools.
const (
	DefaultIRCompiler = "qbe"
	DefaultAssembler  = "cc"
)

// Toolchain is the native backend. Each block is built in its own
// directory, <work dir>/<name>/, as <name>.ssa -> <name>.s -> <name>.so and
// loaded with the platform dynamic loader.
type Toolchain struct {
	workDir    string
	compiler   string
	assembler  string
	logger     *slog.Logger
	ownWorkDir bool

	mu sync.Mutex
}

// ToolchainOption configures a Toolchain.
type ToolchainOption func(*Toolchain)

// WithWorkDir sets the parent directory of per-block work directories. By
// default a temporary directory is created on first build.
func WithWorkDir(dir string) ToolchainOption {
	return func(t *Toolchain) {
		t.workDir = dir
	}
}

// WithTools sets the IR compiler and assembler commands.
func WithTools(compiler, assembler string) ToolchainOption {
	return func(t *Toolchain) {
		t.compiler = compiler
		t.assembler = assembler
	}
}

// WithToolchainLogger sets the logger for build commands.
func WithToolchainLogger(logger *slog.Logger) ToolchainOption {
	return func(t *Toolchain) {
		t.logger = logger
	}
}

// NewToolchain creates a native backend.
func NewToolchain(opts ...ToolchainOption) *Toolchain {
	t := &Toolchain{
		compiler:  DefaultIRCompiler,
		assembler: DefaultAssembler,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Available reports whether both tools resolve on PATH and the host can
// load shared objects.
func (t *Toolchain) Available() error {
	if !dynamicLoading {
		return ErrUnsupported
	}
	for _, tool := range []string{t.compiler, t.assembler} {
		if _, err := exec.LookPath(tool); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrResource, tool, err)
		}
	}
	return nil
}

// WorkDir returns the parent work directory, creating a temporary one if
// none was configured.
func (t *Toolchain) WorkDir() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.workDir != "" {
		return t.workDir, nil
	}

	dir, err := os.MkdirTemp("", "rvjit-")
	if err != nil {
		return "", fmt.Errorf("%w: creating work directory: %w", ErrResource, err)
	}
	t.workDir = dir
	t.ownWorkDir = true

	return dir, nil
}

// Build writes source and runs the IR compiler and the assembler.
func (t *Toolchain) Build(name, source string) (Artifact, error) {
	if !dynamicLoading {
		return Artifact{}, ErrUnsupported
	}

	parent, err := t.WorkDir()
	if err != nil {
		return Artifact{}, err
	}

	dir := filepath.Join(parent, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Artifact{}, fmt.Errorf("%w: %w", ErrResource, err)
	}

	ssa := filepath.Join(dir, name+".ssa")
	asm := filepath.Join(dir, name+".s")
	so := filepath.Join(dir, name+".so")

	if err := os.WriteFile(ssa, []byte(source), 0o644); err != nil {
		return Artifact{}, fmt.Errorf("%w: %w", ErrResource, err)
	}

	if err := t.run(t.compiler, "-o", asm, ssa); err != nil {
		return Artifact{}, err
	}
	if err := t.run(t.assembler, "-fPIC", "-shared", asm, "-o", so); err != nil {
		return Artifact{}, err
	}

	return Artifact{Name: name, Dir: dir, Path: so}, nil
}

// run executes a tool with explicit arguments. A tool that runs and fails
// is a build error; a tool that cannot be started is a resource error.
func (t *Toolchain) run(tool string, args ...string) error {
	var output bytes.Buffer

	cmd := exec.Command(tool, args...)
	cmd.Stdout = &output
	cmd.Stderr = &output

	t.logger.Debug("running build tool", "tool", tool, "args", args)

	err := cmd.Run()
	if err == nil {
		return nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return fmt.Errorf("%w: %s exited with %d: %s",
			ErrBuild, tool, exitErr.ExitCode(), bytes.TrimSpace(output.Bytes()))
	}
	return fmt.Errorf("%w: running %s: %w", ErrResource, tool, err)
}

// Load opens the shared object and resolves the block function.
func (t *Toolchain) Load(artifact Artifact) (Func, error) {
	if _, err := os.Stat(artifact.Path); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoad, err)
	}
	lib, err := openLibrary(artifact.Path, artifact.Name)
	if err != nil {
		return nil, err
	}
	return lib, nil
}

// Unload closes the library. Files stay on disk.
func (t *Toolchain) Unload(fn Func) error {
	lib, ok := fn.(*library)
	if !ok {
		return fmt.Errorf("%w: %s was not loaded by this backend", ErrLoad, fn.Name())
	}
	return lib.close()
}

// Purge removes the work directory of the named block.
func (t *Toolchain) Purge(name string) error {
	t.mu.Lock()
	parent := t.workDir
	t.mu.Unlock()

	if parent == "" {
		return nil
	}
	return os.RemoveAll(filepath.Join(parent, name))
}

// Close removes the temporary work directory if the toolchain created it.
func (t *Toolchain) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.ownWorkDir {
		return nil
	}
	err := os.RemoveAll(t.workDir)
	t.workDir = ""
	t.ownWorkDir = false
	return err
}
