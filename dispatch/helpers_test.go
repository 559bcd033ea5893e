package dispatch_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rvjit/emu"
	"github.com/sarchlab/rvjit/insts"
)

const (
	ramBase = emu.DefaultRAMBase
	ramSize = 64 * 1024

	exitCode = 0x5555
)

func newMachine() *emu.Emulator {
	ram, err := emu.NewRAM(ramSize)
	Expect(err).NotTo(HaveOccurred())
	DeferCleanup(ram.Close)
	return emu.NewEmulator(ram)
}

func loadAt(e *emu.Emulator, offset uint32, words ...uint32) {
	for i, w := range words {
		e.RAM().Write32(offset+uint32(4*i), w)
	}
}

// exitSequence stores x9 = 0x5555 to SYSCON.
func exitSequence() []uint32 {
	return []uint32{
		insts.Lui(8, int32(emu.SysconAddr)),
		insts.Lui(9, 0x5000),
		insts.Addi(9, 9, 0x555),
		insts.Sw(9, 8, 0),
	}
}

// loadLoopProgram loads a counted ALU loop, an ecall whose handler returns
// past it, and an exit.
func loadLoopProgram(e *emu.Emulator) {
	loadAt(e, 0,
		insts.Addi(1, 0, 0),
		insts.Addi(2, 0, 10),
		insts.Auipc(5, 0),
		insts.Addi(5, 5, 0xF8), // mtvec = base+0x100
		insts.Csrrw(0, emu.CSRMtvec, 5),
		insts.Addi(1, 1, 3), // 0x14
		insts.Xori(3, 1, 0x55),
		insts.Add(4, 4, 3),
		insts.Slli(6, 4, 2),
		insts.Addi(2, 2, -1),
		insts.Bne(2, 0, -20),
		insts.Ecall(),
		insts.Addi(7, 7, 1),
	)
	loadAt(e, 0x34, exitSequence()...)

	loadAt(e, 0x100,
		insts.Csrrs(10, emu.CSRMepc, 0),
		insts.Addi(10, 10, 4),
		insts.Csrrw(0, emu.CSRMepc, 10),
		insts.Addi(11, 11, 1),
		insts.Mret(),
	)
}

// loadMemoryProgram loads a loop that reads and writes guest RAM.
func loadMemoryProgram(e *emu.Emulator) {
	loadAt(e, 0,
		insts.Auipc(12, 0),
		insts.Addi(12, 12, 0x400),
		insts.Addi(2, 0, 5),
		insts.Lw(3, 12, 0), // 0x0c
		insts.Addi(3, 3, 7),
		insts.Sw(3, 12, 0),
		insts.Sb(3, 12, 5),
		insts.Lbu(4, 12, 5),
		insts.Addi(2, 2, -1),
		insts.Bne(2, 0, -24),
	)
	loadAt(e, 0x28, exitSequence()...)
}

// loadDeviceProgram loads a loop that writes a UART through a pointer
// kept in guest RAM, so the device address is only known at run time.
func loadDeviceProgram(e *emu.Emulator) {
	loadAt(e, 0,
		insts.Auipc(12, 0),
		insts.Addi(12, 12, 0x400),
		insts.Lui(13, 0x10000000),
		insts.Sw(13, 12, 0),
		insts.Addi(2, 0, 3),
		insts.Lw(5, 12, 0), // 0x14
		insts.Addi(6, 6, 0x41),
		insts.Sb(6, 5, 0),
		insts.Addi(2, 2, -1),
		insts.Bne(2, 0, -16),
	)
	loadAt(e, 0x28, exitSequence()...)
}

type stepper interface {
	Step(elapsedUs uint32, count int) emu.StepResult
}

// runToExit steps until the guest exits and returns the exit result.
func runToExit(s stepper, budget int) emu.StepResult {
	for i := 0; i < 100000; i++ {
		result := s.Step(0, budget)
		Expect(result.Err).NotTo(HaveOccurred())
		if result.Exited {
			return result
		}
	}
	Fail("guest did not exit")
	return emu.StepResult{}
}

func expectSameMachine(got, want *emu.Emulator) {
	g, w := got.State(), want.State()
	Expect(g.Regs).To(Equal(w.Regs))
	Expect(g.PC).To(Equal(w.PC))
	Expect(g.Cycle()).To(Equal(w.Cycle()))
	Expect(g.Mepc).To(Equal(w.Mepc))
	Expect(g.Mcause).To(Equal(w.Mcause))
	Expect(g.Mstatus).To(Equal(w.Mstatus))
	Expect(got.InstructionCount()).To(Equal(want.InstructionCount()))
	Expect(got.RAM().Bytes()).To(Equal(want.RAM().Bytes()))
}

// fakeClock advances by tick on every reading.
type fakeClock struct {
	now   uint64
	tick  uint64
	idles int
}

func (c *fakeClock) Microseconds() uint64 {
	c.now += c.tick
	return c.now
}

func (c *fakeClock) Idle() {
	c.idles++
}
