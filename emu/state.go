// Package emu provides functional RV32IMA emulation.
package emu

// Privilege levels held in Extraflags bits [1:0].
const (
	PrivilegeUser    uint32 = 0
	PrivilegeMachine uint32 = 3
)

// Extraflags layout.
const (
	privilegeMask    uint32 = 0x3
	flagWFI          uint32 = 1 << 2
	reservationShift        = 3
)

// MaxRAMSize is the largest RAM whose offsets fit the reservation field of
// Extraflags.
const MaxRAMSize uint32 = 1 << (32 - reservationShift)

// Machine-mode CSR bits used by the core.
const (
	MstatusMIE  uint32 = 1 << 3
	MstatusMPIE uint32 = 1 << 7
	mppShift           = 11

	MieMTIE uint32 = 1 << 7
	MipMTIP uint32 = 1 << 7
)

// State is the architectural state of one RV32IMA hart.
//
// The field order and widths match the C layout compiled blocks are built
// against: 32 registers first, then pc and the CSRs, every field a 32-bit
// word. Do not reorder.
//
// The three 64-bit counters (cycle, timer, timer match) are stored as
// low/high pairs. The pair always holds (high<<32)|low; carries out of the
// low half propagate into the high half.
type State struct {
	// Regs holds x0-x31. Regs[0] is never written and always reads as 0.
	Regs [32]uint32

	PC      uint32
	Mstatus uint32
	Cyclel  uint32
	Cycleh  uint32

	Timerl      uint32
	Timerh      uint32
	Timermatchl uint32
	Timermatchh uint32

	Mscratch uint32
	Mtvec    uint32
	Mie      uint32
	Mip      uint32

	Mepc   uint32
	Mtval  uint32
	Mcause uint32

	// Extraflags: bits [1:0] privilege, bit 2 WFI latch, bits [31:3] the
	// LR/SC reservation (RAM offset).
	Extraflags uint32
}

// ReadReg reads a register value. Register 0 returns 0.
func (s *State) ReadReg(reg uint8) uint32 {
	if reg == 0 || reg >= 32 {
		return 0
	}
	return s.Regs[reg]
}

// WriteReg writes a value to a register. Writes to register 0 are ignored.
func (s *State) WriteReg(reg uint8, value uint32) {
	if reg == 0 || reg >= 32 {
		return
	}
	s.Regs[reg] = value
}

// Cycle returns the 64-bit cycle counter.
func (s *State) Cycle() uint64 {
	return uint64(s.Cycleh)<<32 | uint64(s.Cyclel)
}

// SetCycle sets the 64-bit cycle counter.
func (s *State) SetCycle(v uint64) {
	s.Cyclel = uint32(v)
	s.Cycleh = uint32(v >> 32)
}

// AddCycles advances the cycle counter by n with carry into the high half.
func (s *State) AddCycles(n uint32) {
	low := s.Cyclel + n
	if low < s.Cyclel {
		s.Cycleh++
	}
	s.Cyclel = low
}

// Timer returns the 64-bit timer counter.
func (s *State) Timer() uint64 {
	return uint64(s.Timerh)<<32 | uint64(s.Timerl)
}

// SetTimer sets the 64-bit timer counter.
func (s *State) SetTimer(v uint64) {
	s.Timerl = uint32(v)
	s.Timerh = uint32(v >> 32)
}

// AdvanceTimer adds us microseconds to the timer with carry into the high half.
func (s *State) AdvanceTimer(us uint32) {
	low := s.Timerl + us
	if low < s.Timerl {
		s.Timerh++
	}
	s.Timerl = low
}

// TimerMatch returns the 64-bit timer compare value.
func (s *State) TimerMatch() uint64 {
	return uint64(s.Timermatchh)<<32 | uint64(s.Timermatchl)
}

// SetTimerMatch sets the 64-bit timer compare value.
func (s *State) SetTimerMatch(v uint64) {
	s.Timermatchl = uint32(v)
	s.Timermatchh = uint32(v >> 32)
}

// TimerInterruptDue reports whether the timer has reached a non-zero match value.
func (s *State) TimerInterruptDue() bool {
	match := s.TimerMatch()
	return match != 0 && s.Timer() >= match
}

// Privilege returns the current privilege level.
func (s *State) Privilege() uint32 {
	return s.Extraflags & privilegeMask
}

// SetPrivilege sets the current privilege level.
func (s *State) SetPrivilege(level uint32) {
	s.Extraflags = (s.Extraflags &^ privilegeMask) | (level & privilegeMask)
}

// WaitingForInterrupt reports whether the WFI latch is set.
func (s *State) WaitingForInterrupt() bool {
	return s.Extraflags&flagWFI != 0
}

// reserve records an LR.W reservation for the given RAM offset.
func (s *State) reserve(offset uint32) {
	s.Extraflags = (s.Extraflags & 0x7) | (offset << reservationShift)
}

// reserved reports whether offset matches the current reservation.
func (s *State) reserved(offset uint32) bool {
	return s.Extraflags>>reservationShift == offset&0x1FFFFFFF
}
