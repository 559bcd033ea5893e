package emu

import "encoding/binary"

// Default guest physical memory map.
const (
	DefaultRAMBase   uint32 = 0x80000000
	DefaultRAMSize   uint32 = 64 << 20
	DefaultMMIOStart uint32 = 0x10000000
	DefaultMMIOEnd   uint32 = 0x12000000
)

// Built-in device registers.
const (
	CLINTTimerLow       uint32 = 0x1100BFF8
	CLINTTimerHigh      uint32 = 0x1100BFFC
	CLINTTimerMatchLow  uint32 = 0x11004000
	CLINTTimerMatchHigh uint32 = 0x11004004
	SysconAddr          uint32 = 0x11100000
)

// Fault describes a failed bus access. Value is what the trap reports in
// mtval.
type Fault struct {
	Cause uint32
	Value uint32
}

// StoreEffect reports side effects of a store the core must act on.
type StoreEffect struct {
	// Exit is set when the store hit SYSCON. Code is the stored value.
	Exit bool
	Code uint32
}

// Bus routes guest physical accesses to RAM or the MMIO window.
type Bus struct {
	ram       *RAM
	base      uint32
	mmioStart uint32
	mmioEnd   uint32
	state     *State
	hooks     Hooks
}

// NewBus creates a bus over ram mapped at base. The state backs the CLINT
// registers.
func NewBus(ram *RAM, base, mmioStart, mmioEnd uint32, state *State, hooks Hooks) *Bus {
	if hooks == nil {
		hooks = NopHooks{}
	}
	return &Bus{
		ram:       ram,
		base:      base,
		mmioStart: mmioStart,
		mmioEnd:   mmioEnd,
		state:     state,
		hooks:     hooks,
	}
}

// Base returns the guest physical address of RAM offset 0.
func (b *Bus) Base() uint32 {
	return b.base
}

// RAM returns the backing image.
func (b *Bus) RAM() *RAM {
	return b.ram
}

// Offset converts a guest address into a RAM offset. It reports false
// unless all width bytes lie inside RAM.
func (b *Bus) Offset(addr uint32, width uint32) (uint32, bool) {
	offset := addr - b.base
	size := b.ram.Size()
	if size < width || offset > size-width {
		return 0, false
	}
	return offset, true
}

func (b *Bus) isMMIO(addr uint32) bool {
	return addr >= b.mmioStart && addr < b.mmioEnd
}

// Fetch reads the instruction word at pc.
func (b *Bus) Fetch(pc uint32) (uint32, *Fault) {
	offset, ok := b.Offset(pc, 4)
	if !ok {
		return 0, &Fault{Cause: CauseInstructionAccessFault, Value: pc}
	}
	if pc&3 != 0 {
		return 0, &Fault{Cause: CauseInstructionAddressMisaligned, Value: pc}
	}
	return b.ram.Read32(offset), nil
}

// Load reads width bytes (1, 2 or 4) at addr. Narrow loads are sign
// extended when signed is set and zero extended otherwise.
func (b *Bus) Load(addr, width uint32, signed bool) (uint32, *Fault) {
	if offset, ok := b.Offset(addr, width); ok {
		if addr&(width-1) != 0 {
			return 0, &Fault{Cause: CauseLoadAddressMisaligned, Value: addr}
		}
		return extend(b.readRAM(offset, width), width, signed), nil
	}

	if !b.isMMIO(addr) {
		return 0, &Fault{Cause: CauseLoadAccessFault, Value: addr}
	}

	switch addr {
	case CLINTTimerLow:
		return b.state.Timerl, nil
	case CLINTTimerHigh:
		return b.state.Timerh, nil
	}
	return b.hooks.ControlLoad(addr), nil
}

// Store writes the low width bytes of value at addr.
func (b *Bus) Store(addr, width, value uint32) (*Fault, StoreEffect) {
	if offset, ok := b.Offset(addr, width); ok {
		if addr&(width-1) != 0 {
			return &Fault{Cause: CauseStoreAddressMisaligned, Value: addr}, StoreEffect{}
		}
		b.writeRAM(offset, width, value)
		return nil, StoreEffect{}
	}

	if !b.isMMIO(addr) {
		return &Fault{Cause: CauseStoreAccessFault, Value: addr}, StoreEffect{}
	}

	if b.hooks.ControlStore(addr, value) {
		return nil, StoreEffect{}
	}

	switch addr {
	case CLINTTimerMatchLow:
		b.state.Timermatchl = value
	case CLINTTimerMatchHigh:
		b.state.Timermatchh = value
	case SysconAddr:
		return nil, StoreEffect{Exit: true, Code: value}
	}
	return nil, StoreEffect{}
}

// ramWord resolves a word-aligned RAM address for an atomic access.
func (b *Bus) ramWord(addr uint32) (uint32, *Fault) {
	offset, ok := b.Offset(addr, 4)
	if !ok {
		return 0, &Fault{Cause: CauseStoreAccessFault, Value: addr}
	}
	if addr&3 != 0 {
		return 0, &Fault{Cause: CauseStoreAddressMisaligned, Value: addr}
	}
	return offset, nil
}

func (b *Bus) readRAM(offset, width uint32) uint32 {
	data := b.ram.data
	switch width {
	case 1:
		return uint32(data[offset])
	case 2:
		return uint32(binary.LittleEndian.Uint16(data[offset:]))
	default:
		return binary.LittleEndian.Uint32(data[offset:])
	}
}

func (b *Bus) writeRAM(offset, width, value uint32) {
	data := b.ram.data
	switch width {
	case 1:
		data[offset] = byte(value)
	case 2:
		binary.LittleEndian.PutUint16(data[offset:], uint16(value))
	default:
		binary.LittleEndian.PutUint32(data[offset:], value)
	}
}

func extend(value, width uint32, signed bool) uint32 {
	switch {
	case !signed || width == 4:
		return value
	case width == 1:
		return uint32(int32(int8(value)))
	default:
		return uint32(int32(int16(value)))
	}
}
