package emu_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rvjit/emu"
	"github.com/sarchlab/rvjit/insts"
)

var _ = Describe("Emulator", func() {
	var (
		ram   *emu.RAM
		hooks *recordingHooks
		e     *emu.Emulator
		s     *emu.State
	)

	BeforeEach(func() {
		ram = newRAM()
		hooks = newRecordingHooks()
		e = emu.NewEmulator(ram, emu.WithHooks(hooks))
		s = e.State()
	})

	Describe("NewEmulator", func() {
		It("should start in machine mode at the RAM base", func() {
			Expect(s.PC).To(Equal(ramBase))
			Expect(s.Privilege()).To(Equal(emu.PrivilegeMachine))
			Expect(e.RAMBase()).To(Equal(ramBase))
			Expect(e.Bus()).NotTo(BeNil())
		})
	})

	Describe("Reset", func() {
		It("should clear registers and pass the device tree pointer in a1", func() {
			s.WriteReg(5, 99)
			s.SetPrivilege(emu.PrivilegeUser)

			e.Reset(ramBase+0x100, 0x80F00000)

			Expect(s.PC).To(Equal(ramBase + 0x100))
			Expect(s.ReadReg(5)).To(BeZero())
			Expect(s.ReadReg(10)).To(BeZero())
			Expect(s.ReadReg(11)).To(Equal(uint32(0x80F00000)))
			Expect(s.Privilege()).To(Equal(emu.PrivilegeMachine))
			Expect(e.InstructionCount()).To(BeZero())
		})
	})

	Describe("Step", func() {
		Context("integer instructions", func() {
			It("should execute ADDI then ADD", func() {
				loadWords(ram, 0, 0x00500093, 0x00108133)

				result := e.Step(0, 2)

				Expect(result.Done()).To(BeFalse())
				Expect(s.ReadReg(1)).To(Equal(uint32(5)))
				Expect(s.ReadReg(2)).To(Equal(uint32(10)))
				Expect(s.PC).To(Equal(ramBase + 8))
				Expect(s.Cycle()).To(Equal(uint64(2)))
				Expect(e.InstructionCount()).To(Equal(uint64(2)))
			})

			It("should discard writes to x0", func() {
				loadWords(ram, 0, insts.Addi(0, 0, 5), insts.Add(1, 0, 0))

				e.Step(0, 2)

				Expect(s.ReadReg(0)).To(BeZero())
				Expect(s.Regs[0]).To(BeZero())
				Expect(s.ReadReg(1)).To(BeZero())
			})

			It("should execute LUI and AUIPC", func() {
				loadWords(ram, 0, insts.Lui(1, 0x12345000), insts.Auipc(2, 0x1000))

				e.Step(0, 2)

				Expect(s.ReadReg(1)).To(Equal(uint32(0x12345000)))
				Expect(s.ReadReg(2)).To(Equal(ramBase + 4 + 0x1000))
			})

			It("should shift arithmetically with SRAI", func() {
				s.WriteReg(1, 0x80000000)
				loadWords(ram, 0, insts.Srai(2, 1, 4), insts.Srli(3, 1, 4))

				e.Step(0, 2)

				Expect(s.ReadReg(2)).To(Equal(uint32(0xF8000000)))
				Expect(s.ReadReg(3)).To(Equal(uint32(0x08000000)))
			})

			It("should apply divide sentinels", func() {
				s.WriteReg(1, 7)
				loadWords(ram, 0, insts.Div(2, 1, 0), insts.Remu(3, 1, 0))

				e.Step(0, 2)

				Expect(s.ReadReg(2)).To(Equal(uint32(0xFFFFFFFF)))
				Expect(s.ReadReg(3)).To(Equal(uint32(7)))
			})
		})

		Context("memory instructions", func() {
			BeforeEach(func() {
				s.WriteReg(1, ramBase+0x1000)
			})

			It("should round-trip a word through RAM", func() {
				s.WriteReg(2, 0xDEADBEEF)
				loadWords(ram, 0, insts.Sw(2, 1, 8), insts.Lw(3, 1, 8))

				e.Step(0, 2)

				Expect(s.ReadReg(3)).To(Equal(uint32(0xDEADBEEF)))
				Expect(ram.Read32(0x1008)).To(Equal(uint32(0xDEADBEEF)))
			})

			It("should sign and zero extend narrow loads", func() {
				ram.Write32(0x1000, 0x000080FF)
				loadWords(ram, 0,
					insts.Lb(2, 1, 0),
					insts.Lbu(3, 1, 0),
					insts.Lh(4, 1, 0),
					insts.Lhu(5, 1, 0),
				)

				e.Step(0, 4)

				Expect(s.ReadReg(2)).To(Equal(uint32(0xFFFFFFFF)))
				Expect(s.ReadReg(3)).To(Equal(uint32(0xFF)))
				Expect(s.ReadReg(4)).To(Equal(uint32(0xFFFF80FF)))
				Expect(s.ReadReg(5)).To(Equal(uint32(0x80FF)))
			})

			It("should store narrow values", func() {
				s.WriteReg(2, 0x11223344)
				loadWords(ram, 0, insts.Sb(2, 1, 0), insts.Sh(2, 1, 2))

				e.Step(0, 2)

				Expect(ram.Read32(0x1000)).To(Equal(uint32(0x33440044)))
			})
		})

		Context("control transfer", func() {
			It("should take a backward branch", func() {
				loadWords(ram, 0,
					insts.Addi(1, 0, 3),
					insts.Addi(1, 1, -1),
					insts.Bne(1, 0, -4),
					insts.Addi(2, 0, 1),
				)

				e.Step(0, 8)

				Expect(s.ReadReg(1)).To(BeZero())
				Expect(s.ReadReg(2)).To(Equal(uint32(1)))
				Expect(s.PC).To(Equal(ramBase + 16))
			})

			It("should link and jump with JAL", func() {
				loadWords(ram, 0, insts.Jal(1, 16))

				e.Step(0, 1)

				Expect(s.ReadReg(1)).To(Equal(ramBase + 4))
				Expect(s.PC).To(Equal(ramBase + 16))
			})

			It("should clear the low target bit with JALR", func() {
				s.WriteReg(5, ramBase+0x41)
				loadWords(ram, 0, insts.Jalr(1, 5, 0))

				e.Step(0, 1)

				Expect(s.PC).To(Equal(ramBase + 0x40))
				Expect(s.ReadReg(1)).To(Equal(ramBase + 4))
			})

			It("should read rs1 before linking when rd equals rs1", func() {
				s.WriteReg(1, ramBase+0x80)
				loadWords(ram, 0, insts.Jalr(1, 1, 0))

				e.Step(0, 1)

				Expect(s.PC).To(Equal(ramBase + 0x80))
				Expect(s.ReadReg(1)).To(Equal(ramBase + 4))
			})
		})

		Context("MMIO", func() {
			It("should serve the CLINT timer from processor state", func() {
				s.SetTimer(0x0000000500000007)
				s.WriteReg(1, emu.CLINTTimerLow)
				loadWords(ram, 0, insts.Lw(2, 1, 0), insts.Lw(3, 1, 4))

				e.Step(0, 2)

				Expect(s.ReadReg(2)).To(Equal(uint32(7)))
				Expect(s.ReadReg(3)).To(Equal(uint32(5)))
				Expect(hooks.loads).To(BeEmpty())
			})

			It("should write the CLINT timer match", func() {
				s.WriteReg(1, emu.CLINTTimerMatchLow)
				s.WriteReg(2, 1234)
				loadWords(ram, 0, insts.Sw(2, 1, 0), insts.Sw(0, 1, 4))

				e.Step(0, 2)

				Expect(s.TimerMatch()).To(Equal(uint64(1234)))
			})

			It("should forward other MMIO loads to the host", func() {
				hooks.loadValue = 0x60
				s.WriteReg(1, 0x10000005)
				loadWords(ram, 0, insts.Lbu(2, 1, 0))

				e.Step(0, 1)

				Expect(hooks.loads).To(ConsistOf(uint32(0x10000005)))
				Expect(s.ReadReg(2)).To(Equal(uint32(0x60)))
			})

			It("should let the host intercept stores", func() {
				hooks.intercept = true
				s.WriteReg(1, emu.CLINTTimerMatchLow)
				s.WriteReg(2, 99)
				loadWords(ram, 0, insts.Sw(2, 1, 0))

				e.Step(0, 1)

				Expect(hooks.stores).To(HaveKeyWithValue(emu.CLINTTimerMatchLow, uint32(99)))
				Expect(s.TimerMatch()).To(BeZero())
			})

			It("should end the step on a SYSCON store", func() {
				s.WriteReg(1, emu.SysconAddr)
				s.WriteReg(2, 0x5555)
				loadWords(ram, 0, insts.Sw(2, 1, 0), insts.Addi(3, 0, 1))

				result := e.Step(0, 10)

				Expect(result.Exited).To(BeTrue())
				Expect(result.ExitCode).To(Equal(uint32(0x5555)))
				Expect(s.PC).To(Equal(ramBase + 4))
				Expect(s.ReadReg(3)).To(BeZero())
			})
		})

		Context("CSRs", func() {
			It("should swap mtvec with CSRRW", func() {
				s.WriteReg(6, ramBase+0x200)
				loadWords(ram, 0, insts.Csrrw(5, emu.CSRMtvec, 6), insts.Csrrs(7, emu.CSRMtvec, 0))

				e.Step(0, 2)

				Expect(s.Mtvec).To(Equal(ramBase + 0x200))
				Expect(s.ReadReg(5)).To(BeZero())
				Expect(s.ReadReg(7)).To(Equal(ramBase + 0x200))
			})

			It("should set and clear bits", func() {
				s.Mie = 0xF0
				loadWords(ram, 0, insts.Csrrsi(0, emu.CSRMie, 1), insts.Csrrci(1, emu.CSRMie, 0x10))

				e.Step(0, 2)

				Expect(s.ReadReg(1)).To(Equal(uint32(0xF1)))
				Expect(s.Mie).To(Equal(uint32(0xE1)))
			})

			It("should return the fixed identification values", func() {
				loadWords(ram, 0,
					insts.Csrrs(1, emu.CSRMisa, 0),
					insts.Csrrs(2, emu.CSRMvendorid, 0),
					insts.Csrrw(0, emu.CSRMisa, 0),
				)

				e.Step(0, 3)

				Expect(s.ReadReg(1)).To(Equal(uint32(0x40401101)))
				Expect(s.ReadReg(2)).To(Equal(uint32(0xFF0FF0FF)))
			})

			It("should read the cycle counter", func() {
				loadWords(ram, 0, insts.Addi(0, 0, 0), insts.Csrrs(1, emu.CSRCycle, 0))

				e.Step(0, 2)

				Expect(s.ReadReg(1)).To(Equal(uint32(2)))
			})

			It("should route unknown CSRs to the host", func() {
				hooks.csrs[0x7C0] = 42
				s.WriteReg(2, 7)
				loadWords(ram, 0, insts.Csrrw(1, 0x7C0, 2))

				e.Step(0, 1)

				Expect(s.ReadReg(1)).To(Equal(uint32(42)))
				Expect(hooks.csrs).To(HaveKeyWithValue(uint16(0x7C0), uint32(7)))
			})
		})

		Context("WFI", func() {
			It("should park the hart until the timer fires", func() {
				loadWords(ram, 0, insts.Wfi(), insts.Addi(1, 0, 1))

				result := e.Step(0, 10)
				Expect(result.WaitingForInterrupt).To(BeTrue())
				Expect(s.PC).To(Equal(ramBase + 4))
				Expect(s.Mstatus & emu.MstatusMIE).NotTo(BeZero())

				result = e.Step(10, 10)
				Expect(result.WaitingForInterrupt).To(BeTrue())
				Expect(s.ReadReg(1)).To(BeZero())

				s.SetTimerMatch(20)
				result = e.Step(10, 1)
				Expect(s.WaitingForInterrupt()).To(BeFalse())
				Expect(result.Trapped).To(BeFalse())
				Expect(s.ReadReg(1)).To(Equal(uint32(1)))
			})
		})
	})

	Describe("Advance", func() {
		It("should move pc and count retired instructions", func() {
			s.Cyclel = 0xFFFFFFFF

			e.Advance(3)

			Expect(s.PC).To(Equal(ramBase + 12))
			Expect(s.Cycle()).To(Equal(uint64(0x100000002)))
			Expect(e.InstructionCount()).To(Equal(uint64(3)))
		})
	})

	Describe("exiting", func() {
		It("should stop with the SYSCON exit code across steps", func() {
			s.WriteReg(1, emu.SysconAddr)
			loadWords(ram, 0,
				insts.Addi(2, 0, 3),
				insts.Addi(2, 2, -1),
				insts.Bne(2, 0, -4),
				insts.Addi(2, 0, 0x77),
				insts.Sw(2, 1, 0),
			)

			var result emu.StepResult
			for steps := 0; steps < 10 && !result.Exited; steps++ {
				result = e.Step(5, 2)
				Expect(result.Err).NotTo(HaveOccurred())
			}

			Expect(result.Exited).To(BeTrue())
			Expect(result.ExitCode).To(Equal(uint32(0x77)))
			Expect(s.Timer()).To(BeNumerically(">", 0))
		})

		It("should surface faults when failing on all faults", func() {
			e = emu.NewEmulator(ram, emu.WithFailOnAllFaults(true))

			result := e.Step(0, 1)

			var fault *emu.FaultError
			Expect(errors.As(result.Err, &fault)).To(BeTrue())
			Expect(fault.Cause).To(Equal(emu.CauseIllegalInstruction))
		})
	})
})
