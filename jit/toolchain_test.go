package jit_test

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rvjit/emu"
	"github.com/sarchlab/rvjit/insts"
	"github.com/sarchlab/rvjit/jit"
)

const trivialBlock = "export function w $pc_80000000(l %state, l %ram, w %pc_in) {\n" +
	"@start\n\tret %pc_in\n}\n"

var _ = Describe("Toolchain", func() {
	var workDir string

	BeforeEach(func() {
		workDir = GinkgoT().TempDir()
	})

	It("should lay out the per-block work directory", func() {
		if _, err := exec.LookPath("true"); err != nil {
			Skip("true is not on PATH")
		}
		toolchain := jit.NewToolchain(jit.WithWorkDir(workDir), jit.WithTools("true", "true"))

		artifact, err := toolchain.Build("pc_80000000", trivialBlock)
		if errors.Is(err, jit.ErrUnsupported) {
			Skip("dynamic loading is not supported on this platform")
		}
		Expect(err).NotTo(HaveOccurred())

		Expect(artifact.Dir).To(Equal(filepath.Join(workDir, "pc_80000000")))
		Expect(artifact.Path).To(Equal(filepath.Join(workDir, "pc_80000000", "pc_80000000.so")))
		source, err := os.ReadFile(filepath.Join(artifact.Dir, "pc_80000000.ssa"))
		Expect(err).NotTo(HaveOccurred())
		Expect(string(source)).To(Equal(trivialBlock))

		_, err = toolchain.Load(artifact)
		Expect(errors.Is(err, jit.ErrLoad)).To(BeTrue())

		Expect(toolchain.Purge("pc_80000000")).To(Succeed())
		Expect(artifact.Dir).NotTo(BeADirectory())
	})

	It("should report a failing tool as a build error", func() {
		if _, err := exec.LookPath("false"); err != nil {
			Skip("false is not on PATH")
		}
		toolchain := jit.NewToolchain(jit.WithWorkDir(workDir), jit.WithTools("false", "true"))

		_, err := toolchain.Build("pc_80000000", trivialBlock)
		if errors.Is(err, jit.ErrUnsupported) {
			Skip("dynamic loading is not supported on this platform")
		}

		Expect(errors.Is(err, jit.ErrBuild)).To(BeTrue())
	})

	It("should report a missing tool as a resource error", func() {
		toolchain := jit.NewToolchain(jit.WithWorkDir(workDir), jit.WithTools("rvjit-no-such-tool", "cc"))

		_, err := toolchain.Build("pc_80000000", trivialBlock)
		if errors.Is(err, jit.ErrUnsupported) {
			Skip("dynamic loading is not supported on this platform")
		}

		Expect(errors.Is(err, jit.ErrResource)).To(BeTrue())
		Expect(toolchain.Available()).NotTo(Succeed())
	})

	It("should create and remove a temporary work directory", func() {
		toolchain := jit.NewToolchain()

		dir, err := toolchain.WorkDir()
		Expect(err).NotTo(HaveOccurred())
		Expect(dir).To(BeADirectory())

		Expect(toolchain.Close()).To(Succeed())
		Expect(dir).NotTo(BeADirectory())
	})

	Describe("native blocks", func() {
		var toolchain *jit.Toolchain

		BeforeEach(func() {
			toolchain = jit.NewToolchain(jit.WithWorkDir(workDir))
			if err := toolchain.Available(); err != nil {
				Skip("native toolchain unavailable: " + err.Error())
			}
		})

		It("should match the interpreter", func() {
			interpreted := newEmulator()
			compiled := newEmulator()
			seed(interpreted, compiled)
			words := []uint32{
				insts.Addi(1, 0, 5),
				insts.Add(2, 1, 1),
				insts.Slti(3, 2, 11),
				insts.Sltu(4, 0, 2),
				insts.Slli(5, 2, 28),
				insts.Srl(6, 5, 4),
				insts.Sw(6, 10, 4),
				insts.Lbu(7, 10, 7),
			}
			loadWords(interpreted, words...)
			loadWords(compiled, words...)

			block := runCompiled(compiled, jit.NewTranslator(jit.WithMemoryAccess(true)), toolchain)
			Expect(block.Count).To(Equal(len(words)))

			interpreted.Step(0, len(words))

			expectSameMachine(compiled, interpreted)
			Expect(compiled.State().ReadReg(2)).To(Equal(uint32(10)))
		})

		It("should fail to load a library without the symbol", func() {
			artifact, err := toolchain.Build("pc_80000000", trivialBlock)
			Expect(err).NotTo(HaveOccurred())

			artifact.Name = "pc_80000004"
			_, err = toolchain.Load(artifact)

			Expect(errors.Is(err, jit.ErrLoad)).To(BeTrue())
		})

		It("should run through the engine", func() {
			machine := newEmulator()
			loadWords(machine, insts.Lui(1, 0x7000), insts.Ori(1, 1, 0x123))
			engine := jit.NewEngine(machine.Bus(), jit.NewTranslator(), toolchain)
			DeferCleanup(engine.Close)

			entry, err := engine.Translate(emu.DefaultRAMBase)
			Expect(err).NotTo(HaveOccurred())

			_, err = entry.Invoke(machine.State(), machine.RAM().Bytes())
			Expect(err).NotTo(HaveOccurred())

			Expect(machine.State().ReadReg(1)).To(Equal(uint32(0x7123)))
		})
	})
})
