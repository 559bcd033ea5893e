// Package emu provides functional RV32IMA emulation.
package emu

import "github.com/sarchlab/rvjit/insts"

// BranchUnit implements control transfer instructions. Each method returns
// the next pc.
type BranchUnit struct {
	state *State
}

// NewBranchUnit creates a new BranchUnit connected to the given processor state.
func NewBranchUnit(state *State) *BranchUnit {
	return &BranchUnit{state: state}
}

// JAL jumps pc-relative and links: rd = pc + 4.
func (b *BranchUnit) JAL(rd uint8, pc uint32, offset int32) uint32 {
	b.state.WriteReg(rd, pc+4)
	return pc + uint32(offset)
}

// JALR jumps to (rs1 + imm) with the low bit cleared and links: rd = pc + 4.
func (b *BranchUnit) JALR(rd, rs1 uint8, pc uint32, imm int32) uint32 {
	target := (b.state.ReadReg(rs1) + uint32(imm)) &^ 1
	b.state.WriteReg(rd, pc+4)
	return target
}

// Branch evaluates a conditional branch.
func (b *BranchUnit) Branch(op insts.Op, rs1, rs2 uint8, pc uint32, offset int32) uint32 {
	if b.CheckCondition(op, b.state.ReadReg(rs1), b.state.ReadReg(rs2)) {
		return pc + uint32(offset)
	}
	return pc + 4
}

// CheckCondition evaluates the comparison of a conditional branch.
func (b *BranchUnit) CheckCondition(op insts.Op, x, y uint32) bool {
	switch op {
	case insts.OpBEQ:
		return x == y
	case insts.OpBNE:
		return x != y
	case insts.OpBLT:
		return int32(x) < int32(y)
	case insts.OpBGE:
		return int32(x) >= int32(y)
	case insts.OpBLTU:
		return x < y
	case insts.OpBGEU:
		return x >= y
	default:
		return false
	}
}
