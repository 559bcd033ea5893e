package emu

import "github.com/sarchlab/rvjit/insts"

// CSR numbers implemented by the core.
const (
	CSRMstatus   uint16 = 0x300
	CSRMisa      uint16 = 0x301
	CSRMie       uint16 = 0x304
	CSRMtvec     uint16 = 0x305
	CSRMscratch  uint16 = 0x340
	CSRMepc      uint16 = 0x341
	CSRMcause    uint16 = 0x342
	CSRMtval     uint16 = 0x343
	CSRMip       uint16 = 0x344
	CSRCycle     uint16 = 0xC00
	CSRCycleh    uint16 = 0xC80
	CSRMvendorid uint16 = 0xF11
)

// Read-only identification values.
const (
	MisaValue      uint32 = 0x40401101 // RV32 with A, I, M and U
	MvendoridValue uint32 = 0xFF0FF0FF
)

// SystemUnit implements Zicsr and the machine-mode SYSTEM instructions.
type SystemUnit struct {
	state *State
	ram   *RAM
	hooks Hooks
}

// NewSystemUnit creates a new SystemUnit.
func NewSystemUnit(state *State, ram *RAM, hooks Hooks) *SystemUnit {
	return &SystemUnit{state: state, ram: ram, hooks: hooks}
}

// ReadCSR returns the value of a CSR.
func (u *SystemUnit) ReadCSR(csr uint16) uint32 {
	s := u.state
	switch csr {
	case CSRMstatus:
		return s.Mstatus
	case CSRMisa:
		return MisaValue
	case CSRMie:
		return s.Mie
	case CSRMtvec:
		return s.Mtvec
	case CSRMscratch:
		return s.Mscratch
	case CSRMepc:
		return s.Mepc
	case CSRMcause:
		return s.Mcause
	case CSRMtval:
		return s.Mtval
	case CSRMip:
		return s.Mip
	case CSRCycle:
		return s.Cyclel
	case CSRCycleh:
		return s.Cycleh
	case CSRMvendorid:
		return MvendoridValue
	default:
		return u.hooks.CSRRead(u.ram.Bytes(), csr)
	}
}

// WriteCSR writes a CSR. Writes to read-only CSRs are ignored.
func (u *SystemUnit) WriteCSR(csr uint16, value uint32) {
	s := u.state
	switch csr {
	case CSRMstatus:
		s.Mstatus = value
	case CSRMie:
		s.Mie = value
	case CSRMtvec:
		s.Mtvec = value
	case CSRMscratch:
		s.Mscratch = value
	case CSRMepc:
		s.Mepc = value
	case CSRMcause:
		s.Mcause = value
	case CSRMtval:
		s.Mtval = value
	case CSRMip:
		s.Mip = value
	case CSRMisa, CSRCycle, CSRCycleh, CSRMvendorid:
	default:
		u.hooks.CSRWrite(u.ram.Bytes(), csr, value)
	}
}

// ExecuteCSR runs one CSR read-modify-write instruction.
func (u *SystemUnit) ExecuteCSR(inst *insts.Instruction) {
	old := u.ReadCSR(inst.CSR)

	src := uint32(inst.Rs1)
	if inst.Funct3 < 4 {
		src = u.state.ReadReg(inst.Rs1)
	}

	switch inst.Op {
	case insts.OpCSRRW, insts.OpCSRRWI:
		u.WriteCSR(inst.CSR, src)
	case insts.OpCSRRS, insts.OpCSRRSI:
		if inst.Rs1 != 0 {
			u.WriteCSR(inst.CSR, old|src)
		}
	case insts.OpCSRRC, insts.OpCSRRCI:
		if inst.Rs1 != 0 {
			u.WriteCSR(inst.CSR, old&^src)
		}
	}

	u.state.WriteReg(inst.Rd, old)
}
