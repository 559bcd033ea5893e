// Package emu provides functional RV32IMA emulation.
package emu

import "github.com/sarchlab/rvjit/insts"

// LoadStoreUnit implements RV32I loads and stores through the bus.
type LoadStoreUnit struct {
	state *State
	bus   *Bus
}

// NewLoadStoreUnit creates a new LoadStoreUnit connected to the given
// processor state and bus.
func NewLoadStoreUnit(state *State, bus *Bus) *LoadStoreUnit {
	return &LoadStoreUnit{
		state: state,
		bus:   bus,
	}
}

// Load performs rd = mem[rs1 + imm]. rd is left untouched on a fault.
func (lsu *LoadStoreUnit) Load(op insts.Op, rd, rs1 uint8, imm int32) *Fault {
	addr := lsu.state.ReadReg(rs1) + uint32(imm)
	width, signed := loadShape(op)

	value, fault := lsu.bus.Load(addr, width, signed)
	if fault != nil {
		return fault
	}

	lsu.state.WriteReg(rd, value)
	return nil
}

// Store performs mem[rs1 + imm] = rs2.
func (lsu *LoadStoreUnit) Store(op insts.Op, rs1, rs2 uint8, imm int32) (*Fault, StoreEffect) {
	addr := lsu.state.ReadReg(rs1) + uint32(imm)
	return lsu.bus.Store(addr, StoreWidth(op), lsu.state.ReadReg(rs2))
}

func loadShape(op insts.Op) (width uint32, signed bool) {
	switch op {
	case insts.OpLB:
		return 1, true
	case insts.OpLH:
		return 2, true
	case insts.OpLBU:
		return 1, false
	case insts.OpLHU:
		return 2, false
	default:
		return 4, false
	}
}

// StoreWidth returns the access width in bytes of a store op.
func StoreWidth(op insts.Op) uint32 {
	switch op {
	case insts.OpSB:
		return 1
	case insts.OpSH:
		return 2
	default:
		return 4
	}
}
