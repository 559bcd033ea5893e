package emu

import "fmt"

// Trap causes written to mcause.
const (
	CauseInstructionAddressMisaligned uint32 = 0
	CauseInstructionAccessFault       uint32 = 1
	CauseIllegalInstruction           uint32 = 2
	CauseBreakpoint                   uint32 = 3
	CauseLoadAddressMisaligned        uint32 = 4
	CauseLoadAccessFault              uint32 = 5
	CauseStoreAddressMisaligned       uint32 = 6
	CauseStoreAccessFault             uint32 = 7
	CauseEcallFromUser                uint32 = 8
	CauseEcallFromMachine             uint32 = 11

	CauseMachineTimerInterrupt uint32 = 0x80000007
)

var causeNames = map[uint32]string{
	CauseInstructionAddressMisaligned: "instruction address misaligned",
	CauseInstructionAccessFault:       "instruction access fault",
	CauseIllegalInstruction:           "illegal instruction",
	CauseBreakpoint:                   "breakpoint",
	CauseLoadAddressMisaligned:        "load address misaligned",
	CauseLoadAccessFault:              "load access fault",
	CauseStoreAddressMisaligned:       "store/AMO address misaligned",
	CauseStoreAccessFault:             "store/AMO access fault",
	CauseEcallFromUser:                "environment call from U-mode",
	CauseEcallFromMachine:             "environment call from M-mode",
	CauseMachineTimerInterrupt:        "machine timer interrupt",
}

// CauseName returns a readable name for an mcause value.
func CauseName(cause uint32) string {
	if name, ok := causeNames[cause]; ok {
		return name
	}
	return fmt.Sprintf("cause 0x%X", cause)
}

// FaultError is returned in StepResult.Err when the emulator fails on all
// faults. PC still points at the faulting instruction.
type FaultError struct {
	Cause uint32
	PC    uint32
	Inst  uint32
	Value uint32
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("%s at PC=0x%08X (inst=0x%08X, tval=0x%08X)",
		CauseName(e.Cause), e.PC, e.Inst, e.Value)
}

// raise handles a synchronous exception raised by the instruction at pc.
func (e *Emulator) raise(f *Fault, inst uint32) StepResult {
	if e.failOnAllFaults {
		return StepResult{Err: &FaultError{
			Cause: f.Cause,
			PC:    e.state.PC,
			Inst:  inst,
			Value: f.Value,
		}}
	}

	e.hooks.Exception(inst, f.Cause)
	e.deliver(f.Cause, f.Value)

	return StepResult{Trapped: true, Cause: f.Cause}
}

// deliver enters the machine-mode trap handler. mepc takes the current pc.
func (e *Emulator) deliver(cause, tval uint32) {
	s := e.state

	s.Mcause = cause
	s.Mtval = tval
	s.Mepc = s.PC

	// MPIE <- MIE, MPP <- privilege, MIE <- 0.
	s.Mstatus = (s.Mstatus&MstatusMIE)<<4 | s.Privilege()<<mppShift
	s.SetPrivilege(PrivilegeMachine)

	s.PC = s.Mtvec
}

// mret returns from a machine-mode trap handler.
func (e *Emulator) mret() {
	s := e.state

	previous := (s.Mstatus >> mppShift) & privilegeMask
	s.Mstatus = (s.Mstatus&MstatusMPIE)>>4 | s.Privilege()<<mppShift | MstatusMPIE
	s.SetPrivilege(previous)

	s.PC = s.Mepc
}
