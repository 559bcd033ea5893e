package insts_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rvjit/insts"
)

var _ = Describe("Insts Package", func() {
	It("should have an Instruction type", func() {
		var i insts.Instruction
		Expect(i).To(BeZero())
	})

	It("should have a Decoder type", func() {
		decoder := insts.NewDecoder()
		Expect(decoder).ToNot(BeNil())
	})

	It("should name every operation", func() {
		Expect(insts.OpADDI.String()).To(Equal("ADDI"))
		Expect(insts.OpAMOMAXUW.String()).To(Equal("AMOMAXU.W"))
		Expect(insts.Op(0xFFFF).String()).To(Equal("UNKNOWN"))
	})
})
