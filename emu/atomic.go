package emu

import "github.com/sarchlab/rvjit/insts"

// AtomicUnit implements the RV32A word operations. Atomics only target RAM
// and are atomic with respect to the single instruction stream.
type AtomicUnit struct {
	state *State
	bus   *Bus
}

// NewAtomicUnit creates a new AtomicUnit.
func NewAtomicUnit(state *State, bus *Bus) *AtomicUnit {
	return &AtomicUnit{state: state, bus: bus}
}

// Execute runs one LR/SC/AMO instruction.
func (u *AtomicUnit) Execute(inst *insts.Instruction) *Fault {
	addr := u.state.ReadReg(inst.Rs1)
	src := u.state.ReadReg(inst.Rs2)

	offset, fault := u.bus.ramWord(addr)
	if fault != nil {
		return fault
	}
	ram := u.bus.ram

	switch inst.Op {
	case insts.OpLRW:
		u.state.WriteReg(inst.Rd, ram.Read32(offset))
		u.state.reserve(offset)
		return nil
	case insts.OpSCW:
		if !u.state.reserved(offset) {
			u.state.WriteReg(inst.Rd, 1)
			return nil
		}
		ram.Write32(offset, src)
		u.state.WriteReg(inst.Rd, 0)
		return nil
	}

	old := ram.Read32(offset)
	ram.Write32(offset, amo(inst.Op, old, src))
	u.state.WriteReg(inst.Rd, old)

	return nil
}

func amo(op insts.Op, old, src uint32) uint32 {
	switch op {
	case insts.OpAMOSWAPW:
		return src
	case insts.OpAMOADDW:
		return old + src
	case insts.OpAMOXORW:
		return old ^ src
	case insts.OpAMOANDW:
		return old & src
	case insts.OpAMOORW:
		return old | src
	case insts.OpAMOMINW:
		if int32(src) < int32(old) {
			return src
		}
		return old
	case insts.OpAMOMAXW:
		if int32(src) > int32(old) {
			return src
		}
		return old
	case insts.OpAMOMINUW:
		return min(old, src)
	case insts.OpAMOMAXUW:
		return max(old, src)
	default:
		return old
	}
}
