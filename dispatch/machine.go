package dispatch

import (
	"fmt"
	"log/slog"

	"github.com/sarchlab/rvjit/config"
	"github.com/sarchlab/rvjit/emu"
	"github.com/sarchlab/rvjit/jit"
)

// Open builds a machine, its RAM and a translation engine from cfg. The
// qbe backend falls back to the in-process evaluator when the tools are
// missing.
func Open(cfg *config.Config, hooks emu.Hooks, logger *slog.Logger) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if hooks == nil {
		hooks = emu.NopHooks{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	ram, err := emu.NewRAM(cfg.RAMSize)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate guest RAM: %w", err)
	}

	machine := emu.NewEmulator(ram,
		emu.WithHooks(hooks),
		emu.WithRAMBase(cfg.RAMBase),
		emu.WithMMIOWindow(cfg.MMIOStart, cfg.MMIOEnd),
		emu.WithFailOnAllFaults(cfg.FailOnAllFaults),
	)

	opts := []SessionOption{
		WithSessionLogger(logger),
		WithTimeDivisor(cfg.TimeDivisor),
		WithFixedUpdate(cfg.FixedUpdate),
	}

	if backend := newBackend(&cfg.JIT, logger); backend != nil {
		translator := jit.NewTranslator(
			jit.WithMaxInstructions(cfg.JIT.MaxBlockInstructions),
			jit.WithRAMBase(cfg.RAMBase),
			jit.WithRAMSize(cfg.RAMSize),
			jit.WithMemoryAccess(cfg.JIT.AllowMemory),
		)
		engine := jit.NewEngine(machine.Bus(), translator, backend,
			jit.WithLogger(logger),
			jit.WithKeepArtifacts(cfg.JIT.KeepArtifacts),
		)
		opts = append(opts,
			WithEngine(engine),
			WithHotTracker(NewHotTracker(cfg.JIT.HotSets, cfg.JIT.HotWays, cfg.JIT.HotThreshold)),
			WithAsyncTranslation(cfg.JIT.Async),
		)
	}

	s := NewSession(machine, opts...)
	s.ram = ram

	return s, nil
}

func newBackend(cfg *config.JITConfig, logger *slog.Logger) jit.Backend {
	if !cfg.Enabled {
		return nil
	}

	switch cfg.Backend {
	case config.BackendQBE:
		toolchain := jit.NewToolchain(
			jit.WithWorkDir(cfg.WorkDir),
			jit.WithTools(cfg.IRCompiler, cfg.Assembler),
			jit.WithToolchainLogger(logger),
		)
		if err := toolchain.Available(); err != nil {
			logger.Warn("native toolchain unavailable, using the IR evaluator", "err", err)
			return jit.NewEvaluator()
		}
		return toolchain
	case config.BackendEval:
		return jit.NewEvaluator()
	default:
		return nil
	}
}
