package config_test

import (
	"errors"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rvjit/config"
)

var _ = Describe("Config", func() {
	var dir string

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
	})

	Describe("Default", func() {
		It("should validate", func() {
			Expect(config.Default().Validate()).To(Succeed())
		})

		It("should describe the standard memory map", func() {
			c := config.Default()

			Expect(c.RAMBase).To(Equal(uint32(0x80000000)))
			Expect(c.MMIOStart).To(Equal(uint32(0x10000000)))
			Expect(c.MMIOEnd).To(Equal(uint32(0x12000000)))
			Expect(c.JIT.Backend).To(Equal(config.BackendQBE))
			Expect(c.JIT.AllowMemory).To(BeFalse())
		})
	})

	Describe("Save and Load", func() {
		It("should round-trip JSON", func() {
			c := config.Default()
			c.RAMSize = 1 << 20
			c.JIT.Backend = config.BackendEval
			c.JIT.Async = true
			path := filepath.Join(dir, "machine.json")

			Expect(c.Save(path)).To(Succeed())
			loaded, err := config.Load(path)

			Expect(err).NotTo(HaveOccurred())
			Expect(loaded).To(Equal(c))
		})

		It("should round-trip YAML", func() {
			c := config.Default()
			c.FailOnAllFaults = true
			c.JIT.HotThreshold = 3
			path := filepath.Join(dir, "machine.yaml")

			Expect(c.Save(path)).To(Succeed())
			loaded, err := config.Load(path)

			Expect(err).NotTo(HaveOccurred())
			Expect(loaded).To(Equal(c))
		})

		It("should keep defaults for missing fields", func() {
			path := filepath.Join(dir, "partial.yml")
			Expect(os.WriteFile(path, []byte("ram_size: 4096\njit:\n  backend: none\n"), 0o644)).To(Succeed())

			loaded, err := config.Load(path)

			Expect(err).NotTo(HaveOccurred())
			Expect(loaded.RAMSize).To(Equal(uint32(4096)))
			Expect(loaded.JIT.Backend).To(Equal(config.BackendNone))
			Expect(loaded.JIT.MaxBlockInstructions).To(Equal(64))
			Expect(loaded.InstructionsPerStep).To(Equal(1024))
		})

		It("should report missing and malformed files", func() {
			_, err := config.Load(filepath.Join(dir, "missing.json"))
			Expect(err).To(HaveOccurred())

			path := filepath.Join(dir, "bad.json")
			Expect(os.WriteFile(path, []byte("{"), 0o644)).To(Succeed())
			_, err = config.Load(path)
			Expect(err).To(HaveOccurred())
		})
	})

	DescribeTable("Validate rejects",
		func(mutate func(c *config.Config)) {
			c := config.Default()
			mutate(c)

			err := c.Validate()

			Expect(errors.Is(err, config.ErrInvalid)).To(BeTrue())
		},
		Entry("zero RAM", func(c *config.Config) { c.RAMSize = 0 }),
		Entry("unaligned RAM size", func(c *config.Config) { c.RAMSize = 4097 }),
		Entry("RAM larger than the reservation field", func(c *config.Config) { c.RAMSize = 0x20000004 }),
		Entry("RAM past 4 GiB", func(c *config.Config) { c.RAMBase, c.RAMSize = 0xF0000000, 0x20000000 }),
		Entry("inverted MMIO window", func(c *config.Config) { c.MMIOStart, c.MMIOEnd = 2, 1 }),
		Entry("MMIO overlapping RAM", func(c *config.Config) { c.MMIOStart, c.MMIOEnd = 0x80001000, 0x80002000 }),
		Entry("zero step budget", func(c *config.Config) { c.InstructionsPerStep = 0 }),
		Entry("zero time divisor", func(c *config.Config) { c.TimeDivisor = 0 }),
		Entry("unknown backend", func(c *config.Config) { c.JIT.Backend = "llvm" }),
		Entry("missing compiler", func(c *config.Config) { c.JIT.IRCompiler = "" }),
		Entry("zero block length", func(c *config.Config) { c.JIT.MaxBlockInstructions = 0 }),
		Entry("zero hot threshold", func(c *config.Config) { c.JIT.HotThreshold = 0 }),
		Entry("empty hot tracker", func(c *config.Config) { c.JIT.HotWays = 0 }),
	)

	It("should clone independently", func() {
		c := config.Default()
		clone := c.Clone()

		clone.JIT.Backend = config.BackendNone
		clone.RAMSize = 8

		Expect(c.JIT.Backend).To(Equal(config.BackendQBE))
		Expect(c.RAMSize).To(Equal(uint32(64 * 1024 * 1024)))
	})
})
