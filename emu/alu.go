// Package emu provides functional RV32IMA emulation.
package emu

import "math"

// ALU implements RV32I integer and RV32M multiply/divide operations.
type ALU struct {
	state *State
}

// NewALU creates a new ALU connected to the given processor state.
func NewALU(state *State) *ALU {
	return &ALU{state: state}
}

// Execute performs a register-register operation: rd = rs1 op rs2.
func (a *ALU) Execute(op func(x, y uint32) uint32, rd, rs1, rs2 uint8) {
	a.state.WriteReg(rd, op(a.state.ReadReg(rs1), a.state.ReadReg(rs2)))
}

// ExecuteImm performs a register-immediate operation: rd = rs1 op imm.
func (a *ALU) ExecuteImm(op func(x, y uint32) uint32, rd, rs1 uint8, imm int32) {
	a.state.WriteReg(rd, op(a.state.ReadReg(rs1), uint32(imm)))
}

// LUI loads the upper immediate: rd = imm.
func (a *ALU) LUI(rd uint8, imm int32) {
	a.state.WriteReg(rd, uint32(imm))
}

// AUIPC adds the upper immediate to pc: rd = pc + imm.
func (a *ALU) AUIPC(rd uint8, pc uint32, imm int32) {
	a.state.WriteReg(rd, pc+uint32(imm))
}

// Add returns x + y with wraparound.
func Add(x, y uint32) uint32 { return x + y }

// Sub returns x - y with wraparound.
func Sub(x, y uint32) uint32 { return x - y }

// Sll shifts left by the low five bits of y.
func Sll(x, y uint32) uint32 { return x << (y & 0x1F) }

// Srl shifts right logically by the low five bits of y.
func Srl(x, y uint32) uint32 { return x >> (y & 0x1F) }

// Sra shifts right arithmetically by the low five bits of y.
func Sra(x, y uint32) uint32 { return uint32(int32(x) >> (y & 0x1F)) }

// Slt returns 1 if x < y as signed values.
func Slt(x, y uint32) uint32 { return boolToWord(int32(x) < int32(y)) }

// Sltu returns 1 if x < y as unsigned values.
func Sltu(x, y uint32) uint32 { return boolToWord(x < y) }

func Xor(x, y uint32) uint32 { return x ^ y }
func Or(x, y uint32) uint32  { return x | y }
func And(x, y uint32) uint32 { return x & y }

// Mul returns the low 32 bits of x * y.
func Mul(x, y uint32) uint32 { return x * y }

// Mulh returns the high 32 bits of the signed product.
func Mulh(x, y uint32) uint32 {
	return uint32(uint64(int64(int32(x))*int64(int32(y))) >> 32)
}

// Mulhsu returns the high 32 bits of signed x times unsigned y.
func Mulhsu(x, y uint32) uint32 {
	return uint32(uint64(int64(int32(x))*int64(y)) >> 32)
}

// Mulhu returns the high 32 bits of the unsigned product.
func Mulhu(x, y uint32) uint32 {
	return uint32((uint64(x) * uint64(y)) >> 32)
}

// Div is signed division. x/0 = -1 and MinInt32/-1 = MinInt32.
func Div(x, y uint32) uint32 {
	if y == 0 {
		return math.MaxUint32
	}
	if int32(x) == math.MinInt32 && int32(y) == -1 {
		return x
	}
	return uint32(int32(x) / int32(y))
}

// Divu is unsigned division. x/0 = 0xFFFFFFFF.
func Divu(x, y uint32) uint32 {
	if y == 0 {
		return math.MaxUint32
	}
	return x / y
}

// Rem is the signed remainder. x%0 = x and MinInt32%-1 = 0.
func Rem(x, y uint32) uint32 {
	if y == 0 {
		return x
	}
	if int32(x) == math.MinInt32 && int32(y) == -1 {
		return 0
	}
	return uint32(int32(x) % int32(y))
}

// Remu is the unsigned remainder. x%0 = x.
func Remu(x, y uint32) uint32 {
	if y == 0 {
		return x
	}
	return x % y
}

func boolToWord(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
