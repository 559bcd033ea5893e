package jit_test

import (
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rvjit/emu"
	"github.com/sarchlab/rvjit/insts"
	"github.com/sarchlab/rvjit/jit"
)

var _ = Describe("Translator", func() {
	const pc = uint32(0x80000000)

	var translator *jit.Translator

	BeforeEach(func() {
		translator = jit.NewTranslator()
	})

	It("should emit the block function signature", func() {
		block, ok := translator.Translate(pc, []uint32{0x00500093})

		Expect(ok).To(BeTrue())
		Expect(block.Name).To(Equal("pc_80000000"))
		Expect(block.Count).To(Equal(1))
		Expect(block.Source).To(ContainSubstring(
			"export function w $pc_80000000(l %state, l %ram, w %pc_in) {"))
		Expect(block.Source).To(ContainSubstring("\tret %pc_in\n"))
		Expect(strings.HasSuffix(block.Source, "}\n")).To(BeTrue())
	})

	It("should load registers on first read and store written ones", func() {
		block, ok := translator.Translate(pc, []uint32{
			insts.Add(3, 1, 2),
			insts.Add(3, 3, 1),
		})

		Expect(ok).To(BeTrue())
		Expect(strings.Count(block.Source, "=w loadw")).To(Equal(2))
		Expect(block.Source).To(ContainSubstring("add %state, 4\n"))
		Expect(block.Source).To(ContainSubstring("add %state, 8\n"))
		Expect(block.Source).To(ContainSubstring("%x3 =w add %x1, %x2"))
		Expect(block.Source).To(ContainSubstring("%x3 =w add %x3, %x1"))
		Expect(strings.Count(block.Source, "storew %x3")).To(Equal(1))
		Expect(block.Source).NotTo(ContainSubstring("storew %x1"))
	})

	It("should read x0 as zero and drop writes to it", func() {
		block, ok := translator.Translate(pc, []uint32{insts.Addi(0, 0, 7)})

		Expect(ok).To(BeTrue())
		Expect(block.Source).To(ContainSubstring("# x0 <- add 0, 7 (ignored)"))
		Expect(block.Source).NotTo(ContainSubstring("%x0"))
		Expect(block.Source).NotTo(ContainSubstring("storew"))
	})

	It("should use QBE comparison opcodes", func() {
		block, _ := translator.Translate(pc, []uint32{
			insts.Slti(1, 2, -1),
			insts.Sltu(3, 4, 5),
		})

		Expect(block.Source).To(ContainSubstring("csltw %x2, -1"))
		Expect(block.Source).To(ContainSubstring("cultw %x4, %x5"))
	})

	It("should stop at the first instruction it cannot translate", func() {
		block, ok := translator.Translate(pc, []uint32{
			insts.Addi(1, 0, 1),
			insts.Lui(2, 0x1000),
			insts.Beq(1, 2, 8),
			insts.Addi(1, 1, 1),
		})

		Expect(ok).To(BeTrue())
		Expect(block.Count).To(Equal(2))
	})

	DescribeTable("refused leading instructions",
		func(word uint32) {
			block, ok := translator.Translate(pc, []uint32{word, insts.Addi(1, 0, 1)})

			Expect(ok).To(BeFalse())
			Expect(block).To(BeNil())
		},
		Entry("branch", insts.Beq(1, 2, 8)),
		Entry("JAL", insts.Jal(1, 8)),
		Entry("JALR", insts.Jalr(0, 1, 0)),
		Entry("AUIPC", insts.Auipc(1, 0x1000)),
		Entry("SRA", insts.Sra(1, 2, 3)),
		Entry("SRAI", insts.Srai(1, 2, 3)),
		Entry("MUL", insts.Mul(1, 2, 3)),
		Entry("DIV", insts.Div(1, 2, 3)),
		Entry("ECALL", insts.Ecall()),
		Entry("CSRRW", insts.Csrrw(1, 0x300, 2)),
		Entry("FENCE", insts.Fence()),
		Entry("LR.W", insts.LrW(1, 2)),
		Entry("AMOADD.W", insts.AmoaddW(1, 2, 3)),
		Entry("load without memory access", insts.Lw(1, 2, 0)),
		Entry("store without memory access", insts.Sw(1, 2, 0)),
		Entry("unknown encoding", uint32(0xFFFFFFFF)),
	)

	It("should refuse an empty word list", func() {
		_, ok := translator.Translate(pc, nil)
		Expect(ok).To(BeFalse())
	})

	It("should honor the block length limit", func() {
		translator = jit.NewTranslator(jit.WithMaxInstructions(3))
		words := []uint32{
			insts.Addi(1, 1, 1), insts.Addi(1, 1, 1), insts.Addi(1, 1, 1), insts.Addi(1, 1, 1),
		}

		block, ok := translator.Translate(pc, words)

		Expect(ok).To(BeTrue())
		Expect(block.Count).To(Equal(3))
	})

	It("should be deterministic", func() {
		words := []uint32{
			insts.Lui(5, 0x12345000),
			insts.Addi(6, 5, 0x678),
			insts.Xor(7, 6, 5),
			insts.Slli(8, 7, 3),
		}

		first, _ := translator.Translate(pc, words)
		second, _ := jit.NewTranslator().Translate(pc, words)

		Expect(second.Source).To(Equal(first.Source))
	})

	Context("with memory access", func() {
		BeforeEach(func() {
			translator = jit.NewTranslator(jit.WithMemoryAccess(true))
		})

		It("should index RAM relative to the RAM base", func() {
			block, ok := translator.Translate(pc, []uint32{
				insts.Lw(2, 1, 8),
				insts.Sb(2, 1, -1),
			})

			Expect(ok).To(BeTrue())
			Expect(block.Count).To(Equal(2))
			// 8 - 0x80000000 as a signed word.
			Expect(block.Source).To(ContainSubstring("add %x1, -2147483640"))
			Expect(block.Source).To(ContainSubstring("=l extuw"))
			Expect(block.Source).To(ContainSubstring("=l add %ram, "))
			Expect(block.Source).To(ContainSubstring("%x2 =w loadw %t"))
			Expect(block.Source).To(ContainSubstring("storeb %x2, %t"))
		})

		DescribeTable("accesses through constant addresses",
			func(count int, words []uint32) {
				translator = jit.NewTranslator(jit.WithMemoryAccess(true), jit.WithRAMSize(0x1000))

				block, ok := translator.Translate(pc, words)

				Expect(ok).To(BeTrue())
				Expect(block.Count).To(Equal(count))
			},
			Entry("stops before a SYSCON store", 3, []uint32{
				insts.Lui(8, int32(emu.SysconAddr)),
				insts.Lui(9, 0x5000),
				insts.Addi(9, 9, 0x555),
				insts.Sw(9, 8, 0),
			}),
			Entry("stops before a UART store", 1, []uint32{
				insts.Lui(15, 0x10000000),
				insts.Sb(10, 15, 0),
			}),
			Entry("keeps a RAM store built from LUI and ADDI", 3, []uint32{
				insts.Lui(5, -2147483648),
				insts.Addi(5, 5, 0x10),
				insts.Sw(6, 5, 0),
			}),
			Entry("follows constants through register arithmetic", 4, []uint32{
				insts.Lui(5, -2147483648),
				insts.Addi(6, 0, 0x20),
				insts.Or(5, 5, 6),
				insts.Lw(7, 5, 4),
			}),
			Entry("stops before a misaligned constant address", 1, []uint32{
				insts.Lui(5, -2147483648),
				insts.Lw(6, 5, 2),
			}),
			Entry("stops before an address past the end of RAM", 1, []uint32{
				insts.Lui(5, -0x7FFFF000),
				insts.Sb(6, 5, 0),
			}),
			Entry("stops before an address below RAM", 1, []uint32{
				insts.Addi(5, 0, 0x100),
				insts.Lw(6, 5, 0),
			}),
			Entry("forgets a constant overwritten by a load", 3, []uint32{
				insts.Lui(5, int32(emu.SysconAddr)),
				insts.Lw(5, 10, 0),
				insts.Sw(6, 5, 0),
			}),
		)

		It("should sign extend narrow loads", func() {
			block, _ := translator.Translate(pc, []uint32{insts.Lb(1, 2, 0), insts.Lhu(3, 2, 0)})

			Expect(block.Source).To(ContainSubstring("loadsb"))
			Expect(block.Source).To(ContainSubstring("loaduh"))
		})
	})
})
