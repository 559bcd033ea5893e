// Package insts provides RV32IMA instruction definitions and decoding.
//
// This package implements decoding of RISC-V machine code into structured
// instruction representations. It supports:
//   - RV32I: LUI, AUIPC, JAL, JALR, branches, loads, stores, ALU (register and immediate)
//   - RV32M: MUL, MULH, MULHSU, MULHU, DIV, DIVU, REM, REMU
//   - RV32A: LR.W, SC.W and the AMO*.W family
//   - Zicsr and the machine-mode SYSTEM instructions (ECALL, EBREAK, MRET, WFI)
//
// Usage:
//
//	decoder := insts.NewDecoder()
//	inst := decoder.Decode(0x00500093) // ADDI x1, x0, 5
//	fmt.Printf("Op: %v, Rd: %d, Rs1: %d, Imm: %d\n", inst.Op, inst.Rd, inst.Rs1, inst.Imm)
package insts
