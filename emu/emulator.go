// Package emu provides functional RV32IMA emulation.
package emu

import "github.com/sarchlab/rvjit/insts"

// StepResult represents the result of a call to Step.
type StepResult struct {
	// WaitingForInterrupt is true if the hart is parked in WFI.
	WaitingForInterrupt bool

	// Trapped is true if a trap or interrupt was delivered. Cause holds mcause.
	Trapped bool
	Cause   uint32

	// Exited is true if the guest wrote to SYSCON.
	Exited bool

	// ExitCode is the value written to SYSCON if Exited is true.
	ExitCode uint32

	// Err is set if the step aborted. With fail-on-all-faults enabled it
	// holds a *FaultError.
	Err error
}

// Done reports whether the step ended for any reason other than running
// out of instruction budget.
func (r StepResult) Done() bool {
	return r.WaitingForInterrupt || r.Trapped || r.Exited || r.Err != nil
}

// Emulator interprets RV32IMA instructions against a flat RAM image.
type Emulator struct {
	state   *State
	ram     *RAM
	bus     *Bus
	decoder *insts.Decoder
	hooks   Hooks

	// Execution units
	alu        *ALU
	lsu        *LoadStoreUnit
	branchUnit *BranchUnit
	atomicUnit *AtomicUnit
	systemUnit *SystemUnit

	// Memory map
	ramBase   uint32
	mmioStart uint32
	mmioEnd   uint32

	failOnAllFaults bool

	// Execution state
	instructionCount uint64
}

// EmulatorOption is a functional option for configuring the Emulator.
type EmulatorOption func(*Emulator)

// WithHooks sets the host hooks.
func WithHooks(hooks Hooks) EmulatorOption {
	return func(e *Emulator) {
		e.hooks = hooks
	}
}

// WithRAMBase sets the guest physical address of RAM offset 0.
func WithRAMBase(base uint32) EmulatorOption {
	return func(e *Emulator) {
		e.ramBase = base
	}
}

// WithMMIOWindow sets the [start, end) range routed to devices.
func WithMMIOWindow(start, end uint32) EmulatorOption {
	return func(e *Emulator) {
		e.mmioStart = start
		e.mmioEnd = end
	}
}

// WithFailOnAllFaults makes every synchronous exception abort the step with
// a *FaultError instead of entering the guest trap handler.
func WithFailOnAllFaults(enabled bool) EmulatorOption {
	return func(e *Emulator) {
		e.failOnAllFaults = enabled
	}
}

// WithState uses an existing processor state.
func WithState(state *State) EmulatorOption {
	return func(e *Emulator) {
		e.state = state
	}
}

// NewEmulator creates a new RV32IMA emulator over ram. The hart starts in
// machine mode with pc at the RAM base.
func NewEmulator(ram *RAM, opts ...EmulatorOption) *Emulator {
	e := &Emulator{
		ram:       ram,
		decoder:   insts.NewDecoder(),
		hooks:     NopHooks{},
		ramBase:   DefaultRAMBase,
		mmioStart: DefaultMMIOStart,
		mmioEnd:   DefaultMMIOEnd,
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.state == nil {
		e.state = &State{PC: e.ramBase}
		e.state.SetPrivilege(PrivilegeMachine)
	}

	// Create execution units
	e.bus = NewBus(ram, e.ramBase, e.mmioStart, e.mmioEnd, e.state, e.hooks)
	e.alu = NewALU(e.state)
	e.lsu = NewLoadStoreUnit(e.state, e.bus)
	e.branchUnit = NewBranchUnit(e.state)
	e.atomicUnit = NewAtomicUnit(e.state, e.bus)
	e.systemUnit = NewSystemUnit(e.state, ram, e.hooks)

	return e
}

// State returns the processor state.
func (e *Emulator) State() *State {
	return e.state
}

// RAM returns the guest memory image.
func (e *Emulator) RAM() *RAM {
	return e.ram
}

// Bus returns the memory bus.
func (e *Emulator) Bus() *Bus {
	return e.bus
}

// RAMBase returns the guest physical address of RAM offset 0.
func (e *Emulator) RAMBase() uint32 {
	return e.ramBase
}

// InstructionCount returns the number of instructions executed, including
// those retired by compiled blocks through Advance.
func (e *Emulator) InstructionCount() uint64 {
	return e.instructionCount
}

// Reset clears the registers and enters machine mode at entry. a0 holds
// the hart id (0) and a1 the device tree pointer.
func (e *Emulator) Reset(entry, dtb uint32) {
	*e.state = State{PC: entry}
	e.state.SetPrivilege(PrivilegeMachine)
	e.state.WriteReg(10, 0)
	e.state.WriteReg(11, dtb)
	e.instructionCount = 0
}

// Step advances the timer by elapsedUs, services interrupts and then
// executes up to count instructions.
func (e *Emulator) Step(elapsedUs uint32, count int) StepResult {
	if result := e.Poll(elapsedUs); result.Done() {
		return result
	}

	for i := 0; i < count; i++ {
		if result := e.ExecuteOne(); result.Done() {
			return result
		}
	}

	return StepResult{}
}

// Poll runs the per-step prologue: timer update, WFI check and timer
// interrupt delivery. A result with Done set means no instruction may run
// in this step.
func (e *Emulator) Poll(elapsedUs uint32) StepResult {
	s := e.state

	s.AdvanceTimer(elapsedUs)
	if s.TimerInterruptDue() {
		s.Extraflags &^= flagWFI
		s.Mip |= MipMTIP
	} else {
		s.Mip &^= MipMTIP
	}

	if s.WaitingForInterrupt() {
		return StepResult{WaitingForInterrupt: true}
	}

	if s.Mip&MipMTIP != 0 && s.Mie&MieMTIE != 0 && s.Mstatus&MstatusMIE != 0 {
		e.deliver(CauseMachineTimerInterrupt, 0)
		return StepResult{Trapped: true, Cause: CauseMachineTimerInterrupt}
	}

	return StepResult{}
}

// Advance retires n instructions executed outside the interpreter: pc
// moves forward by 4n and the cycle counter by n.
func (e *Emulator) Advance(n int) {
	e.state.PC += 4 * uint32(n)
	e.state.AddCycles(uint32(n))
	e.instructionCount += uint64(n)
}

// ExecuteOne fetches, decodes and executes the instruction at pc.
func (e *Emulator) ExecuteOne() StepResult {
	s := e.state

	s.AddCycles(1)
	e.instructionCount++

	word, fault := e.bus.Fetch(s.PC)
	if fault != nil {
		return e.raise(fault, 0)
	}

	inst := e.decoder.Decode(word)
	return e.execute(&inst)
}

// execute dispatches a decoded instruction and updates pc.
func (e *Emulator) execute(inst *insts.Instruction) StepResult {
	s := e.state
	pc := s.PC
	next := pc + 4

	switch inst.Opcode {
	case insts.OpcodeLUI:
		e.alu.LUI(inst.Rd, inst.Imm)

	case insts.OpcodeAUIPC:
		e.alu.AUIPC(inst.Rd, pc, inst.Imm)

	case insts.OpcodeJAL:
		next = e.branchUnit.JAL(inst.Rd, pc, inst.Imm)

	case insts.OpcodeJALR:
		if inst.Op != insts.OpJALR {
			return e.illegal(inst)
		}
		next = e.branchUnit.JALR(inst.Rd, inst.Rs1, pc, inst.Imm)

	case insts.OpcodeBranch:
		if inst.Op == insts.OpUnknown {
			return e.illegal(inst)
		}
		next = e.branchUnit.Branch(inst.Op, inst.Rs1, inst.Rs2, pc, inst.Imm)

	case insts.OpcodeLoad:
		if inst.Op == insts.OpUnknown {
			return e.illegal(inst)
		}
		if fault := e.lsu.Load(inst.Op, inst.Rd, inst.Rs1, inst.Imm); fault != nil {
			return e.raise(fault, inst.Word)
		}

	case insts.OpcodeStore:
		if inst.Op == insts.OpUnknown {
			return e.illegal(inst)
		}
		fault, effect := e.lsu.Store(inst.Op, inst.Rs1, inst.Rs2, inst.Imm)
		if fault != nil {
			return e.raise(fault, inst.Word)
		}
		if effect.Exit {
			s.PC = next
			return StepResult{Exited: true, ExitCode: effect.Code}
		}

	case insts.OpcodeOpImm, insts.OpcodeOp:
		op, ok := aluOps[inst.Op]
		if !ok {
			return e.illegal(inst)
		}
		if inst.Opcode == insts.OpcodeOpImm {
			e.alu.ExecuteImm(op, inst.Rd, inst.Rs1, inst.Imm)
		} else {
			e.alu.Execute(op, inst.Rd, inst.Rs1, inst.Rs2)
		}

	case insts.OpcodeMiscMem:
		if inst.Op == insts.OpUnknown {
			return e.illegal(inst)
		}

	case insts.OpcodeAMO:
		if inst.Op == insts.OpUnknown {
			return e.illegal(inst)
		}
		if fault := e.atomicUnit.Execute(inst); fault != nil {
			return e.raise(fault, inst.Word)
		}

	case insts.OpcodeSystem:
		return e.executeSystem(inst)

	default:
		return e.illegal(inst)
	}

	s.PC = next
	return StepResult{}
}

// executeSystem handles CSR access and the privileged SYSTEM instructions.
func (e *Emulator) executeSystem(inst *insts.Instruction) StepResult {
	s := e.state

	switch inst.Op {
	case insts.OpCSRRW, insts.OpCSRRS, insts.OpCSRRC,
		insts.OpCSRRWI, insts.OpCSRRSI, insts.OpCSRRCI:
		e.systemUnit.ExecuteCSR(inst)
		s.PC += 4
		return StepResult{}

	case insts.OpECALL:
		cause := CauseEcallFromUser
		if s.Privilege() == PrivilegeMachine {
			cause = CauseEcallFromMachine
		}
		return e.raise(&Fault{Cause: cause, Value: s.PC}, inst.Word)

	case insts.OpEBREAK:
		return e.raise(&Fault{Cause: CauseBreakpoint, Value: s.PC}, inst.Word)

	case insts.OpMRET:
		e.mret()
		return StepResult{}

	case insts.OpWFI:
		s.Mstatus |= MstatusMIE
		s.Extraflags |= flagWFI
		s.PC += 4
		return StepResult{WaitingForInterrupt: true}

	default:
		return e.illegal(inst)
	}
}

func (e *Emulator) illegal(inst *insts.Instruction) StepResult {
	return e.raise(&Fault{Cause: CauseIllegalInstruction, Value: inst.Word}, inst.Word)
}

var aluOps = map[insts.Op]func(x, y uint32) uint32{
	insts.OpADDI:  Add,
	insts.OpSLTI:  Slt,
	insts.OpSLTIU: Sltu,
	insts.OpXORI:  Xor,
	insts.OpORI:   Or,
	insts.OpANDI:  And,
	insts.OpSLLI:  Sll,
	insts.OpSRLI:  Srl,
	insts.OpSRAI:  Sra,

	insts.OpADD:  Add,
	insts.OpSUB:  Sub,
	insts.OpSLL:  Sll,
	insts.OpSLT:  Slt,
	insts.OpSLTU: Sltu,
	insts.OpXOR:  Xor,
	insts.OpSRL:  Srl,
	insts.OpSRA:  Sra,
	insts.OpOR:   Or,
	insts.OpAND:  And,

	insts.OpMUL:    Mul,
	insts.OpMULH:   Mulh,
	insts.OpMULHSU: Mulhsu,
	insts.OpMULHU:  Mulhu,
	insts.OpDIV:    Div,
	insts.OpDIVU:   Divu,
	insts.OpREM:    Rem,
	insts.OpREMU:   Remu,
}
