// Package main provides the rvjit command, which boots an RV32IMA guest
// image on the hybrid interpreter and block JIT.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime/pprof"

	"github.com/sarchlab/rvjit/config"
	"github.com/sarchlab/rvjit/dispatch"
	"github.com/sarchlab/rvjit/loader"
)

// SYSCON commands.
const (
	sysconPoweroff uint32 = 0x5555
	sysconRestart  uint32 = 0x7777
	sysconFail     uint32 = 0x3333
)

var (
	configPath    = flag.String("config", "", "Path to a JSON or YAML configuration file")
	backend       = flag.String("jit", "", "JIT backend: qbe, eval or none (overrides the config)")
	failOnFault   = flag.Bool("d", false, "Abort on the first guest fault instead of trapping")
	fixedUpdate   = flag.Bool("l", false, "Derive guest time from the cycle counter")
	timeDivisor   = flag.Uint64("t", 0, "Slow the guest timer down by this factor")
	keepArtifacts = flag.Bool("keep", false, "Keep compiled block artifacts on disk")
	showStats     = flag.Bool("stats", false, "Print execution statistics on exit")
	verbose       = flag.Bool("v", false, "Verbose output")
	cpuProfile    = flag.String("cpuprofile", "", "Write a CPU profile to file")
	memProfile    = flag.String("memprofile", "", "Write a memory profile to file on exit")
)

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: rvjit [options] <image>\n")
		fmt.Fprintf(os.Stderr, "\nThe image is an ELF32 RISC-V executable or a flat binary loaded at the RAM base.\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	os.Exit(profile(func() int {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		code, err := run(ctx, cfg, flag.Arg(0), os.Stdout, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		return code
	}))
}

// profile runs fn with the requested profiles enabled.
func profile(fn func() int) int {
	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating CPU profile: %v\n", err)
			return 1
		}
		defer func() { _ = f.Close() }()

		if err := pprof.StartCPUProfile(f); err != nil {
			fmt.Fprintf(os.Stderr, "Error starting CPU profile: %v\n", err)
			return 1
		}
		defer pprof.StopCPUProfile()
	}

	code := fn()

	if *memProfile != "" {
		f, err := os.Create(*memProfile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating memory profile: %v\n", err)
			return code
		}
		defer func() { _ = f.Close() }()

		if err := pprof.WriteHeapProfile(f); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing memory profile: %v\n", err)
		}
	}

	return code
}

// loadConfig reads the config file, if any, and applies flag overrides.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			return nil, err
		}
	}

	if *backend != "" {
		cfg.JIT.Backend = *backend
	}
	if *failOnFault {
		cfg.FailOnAllFaults = true
	}
	if *fixedUpdate {
		cfg.FixedUpdate = true
	}
	if *timeDivisor != 0 {
		cfg.TimeDivisor = *timeDivisor
	}
	if *keepArtifacts {
		cfg.JIT.KeepArtifacts = true
	}

	return cfg, cfg.Validate()
}

// run boots the image and returns the process exit status.
func run(ctx context.Context, cfg *config.Config, imagePath string, out io.Writer, logger *slog.Logger) (int, error) {
	prog, err := loader.LoadImage(imagePath, cfg.RAMBase)
	if err != nil {
		return 0, fmt.Errorf("loading image: %w", err)
	}

	logger.Debug("image loaded",
		"path", imagePath,
		"entry", fmt.Sprintf("0x%08x", prog.EntryPoint),
		"segments", len(prog.Segments))

	session, err := dispatch.Open(cfg, newConsole(out, cfg.RAMBase, logger), logger)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err := session.Close(); err != nil {
			logger.Warn("closing session", "err", err)
		}
	}()

	for {
		machine := session.Machine()
		if err := prog.Place(machine.RAM(), cfg.RAMBase); err != nil {
			return 0, err
		}
		machine.Reset(prog.EntryPoint, 0)

		code, err := session.Run(ctx, dispatch.NewSystemClock(), cfg.InstructionsPerStep)
		if err != nil {
			return 0, err
		}

		if code == sysconRestart {
			logger.Info("guest requested restart")
			continue
		}

		if *showStats || *verbose {
			printStats(os.Stderr, session)
		}
		return exitStatus(code), nil
	}
}

// exitStatus maps a SYSCON write to a process exit status.
func exitStatus(code uint32) int {
	switch {
	case code == sysconPoweroff:
		return 0
	case code&0xFFFF == sysconFail:
		return int(code >> 16)
	default:
		return int(code & 0xFF)
	}
}

func printStats(w io.Writer, session *dispatch.Session) {
	stats := session.Stats()
	machine := session.Machine()

	fmt.Fprintf(w, "\n=== Execution Statistics ===\n")
	fmt.Fprintf(w, "Instructions:      %d\n", machine.InstructionCount())
	fmt.Fprintf(w, "  interpreted:     %d\n", stats.Interpreted)
	fmt.Fprintf(w, "  compiled:        %d\n", stats.Compiled)
	fmt.Fprintf(w, "Cycles:            %d\n", machine.State().Cycle())
	fmt.Fprintf(w, "Block invocations: %d\n", stats.Blocks)
	fmt.Fprintf(w, "Blocks built:      %d\n", stats.JIT.Builds)
	fmt.Fprintf(w, "Cache entries:     %d\n", stats.JIT.Entries)
	fmt.Fprintf(w, "Refusals:          %d\n", stats.JIT.Refusals)
	fmt.Fprintf(w, "Build failures:    %d\n", stats.JIT.Failures)
}
