// Package dispatch runs a guest by mixing compiled blocks with the
// interpreter.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sarchlab/rvjit/emu"
	"github.com/sarchlab/rvjit/jit"
)

// Stats counts how the instructions of a session were retired.
type Stats struct {
	// Interpreted is the number of instructions run by the interpreter.
	Interpreted uint64

	// Compiled is the number of instructions retired by compiled blocks.
	Compiled uint64

	// Blocks is the number of compiled block invocations.
	Blocks uint64

	// JIT holds the translation cache counters.
	JIT jit.Stats
}

// Session owns a machine and, optionally, a translation engine. It is not
// safe for concurrent use.
type Session struct {
	machine *emu.Emulator
	engine  *jit.Engine
	hot     *HotTracker
	logger  *slog.Logger

	async       bool
	timeDivisor uint64
	fixedUpdate bool

	// Released by Close
	ram *emu.RAM

	stats Stats
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithEngine enables compiled blocks.
func WithEngine(engine *jit.Engine) SessionOption {
	return func(s *Session) {
		s.engine = engine
	}
}

// WithHotTracker decides which pcs get translated. Without one, every pc
// the interpreter reaches is a candidate on its first visit.
func WithHotTracker(hot *HotTracker) SessionOption {
	return func(s *Session) {
		s.hot = hot
	}
}

// WithAsyncTranslation builds blocks in the background.
func WithAsyncTranslation(async bool) SessionOption {
	return func(s *Session) {
		s.async = async
	}
}

// WithSessionLogger sets the logger.
func WithSessionLogger(logger *slog.Logger) SessionOption {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithTimeDivisor slows the guest timer down by divisor.
func WithTimeDivisor(divisor uint64) SessionOption {
	return func(s *Session) {
		if divisor > 0 {
			s.timeDivisor = divisor
		}
	}
}

// WithFixedUpdate derives guest time from the cycle counter.
func WithFixedUpdate(fixed bool) SessionOption {
	return func(s *Session) {
		s.fixedUpdate = fixed
	}
}

// NewSession creates a session that runs machine.
func NewSession(machine *emu.Emulator, opts ...SessionOption) *Session {
	s := &Session{
		machine:     machine,
		logger:      slog.Default(),
		timeDivisor: 1,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.hot == nil {
		s.hot = NewHotTracker(1, 1, 1)
	}
	return s
}

// Machine returns the emulator.
func (s *Session) Machine() *emu.Emulator {
	return s.machine
}

// Engine returns the translation engine, or nil when running interpreted.
func (s *Session) Engine() *jit.Engine {
	return s.engine
}

// Step advances the timer by elapsedUs, services interrupts and retires up
// to count instructions. A cached block runs only if it fits in the
// remaining budget, so step boundaries match the interpreter's.
func (s *Session) Step(elapsedUs uint32, count int) emu.StepResult {
	if result := s.machine.Poll(elapsedUs); result.Done() {
		return result
	}

	state := s.machine.State()
	for remaining := count; remaining > 0; {
		if s.engine != nil {
			pc := state.PC
			if entry, ok := s.engine.Lookup(pc); ok && entry.Count <= remaining {
				if s.invoke(entry) {
					remaining -= entry.Count
					continue
				}
			} else if s.hot.Touch(pc) && s.translate(pc) {
				continue
			}
		}

		result := s.machine.ExecuteOne()
		s.stats.Interpreted++
		remaining--
		if result.Done() {
			return result
		}
	}

	return emu.StepResult{}
}

// invoke runs a cached block and retires its instructions. A block that
// declines is discarded and the pc is left to the interpreter.
func (s *Session) invoke(entry *jit.Entry) bool {
	if _, err := entry.Invoke(s.machine.State(), s.machine.RAM().Bytes()); err != nil {
		pc := fmt.Sprintf("0x%08x", entry.PC)
		s.logger.Debug("block declined, interpreting", "pc", pc, "err", err)
		if err := s.engine.Discard(entry.PC, err); err != nil {
			s.logger.Warn("discarding block", "pc", pc, "err", err)
		}
		return false
	}

	s.machine.Advance(entry.Count)
	s.stats.Blocks++
	s.stats.Compiled += uint64(entry.Count)
	return true
}

// translate requests a block at pc and reports whether it is ready.
func (s *Session) translate(pc uint32) bool {
	if s.async {
		if err := s.engine.TranslateAsync(pc); err != nil {
			s.logRefusal(pc, err)
		}
		return false
	}

	if _, err := s.engine.Translate(pc); err != nil {
		s.logRefusal(pc, err)
		return false
	}
	return true
}

func (s *Session) logRefusal(pc uint32, err error) {
	if errors.Is(err, jit.ErrEmptyBlock) || errors.Is(err, jit.ErrUntranslatable) {
		s.logger.Debug("interpreting", "pc", fmt.Sprintf("0x%08x", pc), "reason", err)
	}
}

// Run steps until the guest exits, the step fails or ctx is cancelled. It
// returns the SYSCON exit code.
func (s *Session) Run(ctx context.Context, clock Clock, instructionsPerStep int) (uint32, error) {
	last := s.now(clock)
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		current := s.now(clock)
		elapsed := uint32(current - last)
		last = current

		result := s.Step(elapsed, instructionsPerStep)
		switch {
		case result.Err != nil:
			return 0, fmt.Errorf("emulation aborted: %w", result.Err)
		case result.Exited:
			s.logger.Debug("guest exited", "code", fmt.Sprintf("0x%x", result.ExitCode))
			return result.ExitCode, nil
		case result.WaitingForInterrupt:
			if s.fixedUpdate {
				s.machine.State().AddCycles(uint32(instructionsPerStep))
			} else {
				clock.Idle()
			}
		}
	}
}

func (s *Session) now(clock Clock) uint64 {
	if s.fixedUpdate {
		return s.machine.State().Cycle() / s.timeDivisor
	}
	return clock.Microseconds() / s.timeDivisor
}

// Stats returns the retirement counters.
func (s *Session) Stats() Stats {
	stats := s.stats
	if s.engine != nil {
		stats.JIT = s.engine.Stats()
	}
	return stats
}

// Close releases compiled blocks and any RAM the session allocated.
func (s *Session) Close() error {
	var err error
	if s.engine != nil {
		err = s.engine.Close()
	}
	if s.ram != nil {
		err = errors.Join(err, s.ram.Close())
	}
	return err
}
