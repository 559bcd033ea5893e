// Package jit translates straight-line RV32 instruction runs into QBE IR,
// builds them into native functions and caches the results per entry pc.
//
// A compiled block has the C signature
//
//	uint32_t pc_XXXXXXXX(struct state *state, uint8_t *ram, uint32_t pc_in);
//
// and always returns pc_in. Blocks contain no control transfer, so the
// caller retires Count instructions by advancing pc itself.
package jit

import (
	"github.com/sarchlab/rvjit/emu"
	"github.com/sarchlab/rvjit/insts"
)

// DefaultMaxBlockInstructions bounds the length of a translated block.
const DefaultMaxBlockInstructions = 64

// Block is the translation of a run of instructions starting at PC.
type Block struct {
	PC     uint32
	Name   string
	Source string
	Count  int
}

// Translator lowers instruction words to QBE IR text.
type Translator struct {
	decoder         *insts.Decoder
	ramBase         uint32
	ramSize         uint32
	maxInstructions int
	allowMemory     bool
}

// TranslatorOption configures a Translator.
type TranslatorOption func(*Translator)

// WithMaxInstructions caps the number of instructions per block.
func WithMaxInstructions(n int) TranslatorOption {
	return func(t *Translator) {
		t.maxInstructions = n
	}
}

// WithRAMBase sets the guest address of RAM offset 0.
func WithRAMBase(base uint32) TranslatorOption {
	return func(t *Translator) {
		t.ramBase = base
	}
}

// WithRAMSize sets the guest RAM size.
func WithRAMSize(size uint32) TranslatorOption {
	return func(t *Translator) {
		t.ramSize = size
	}
}

// WithMemoryAccess enables translation of loads and stores. A block ends
// before any access whose address is known at translation time and falls
// outside RAM or is misaligned. Accesses through other registers are
// compiled unchecked.
func WithMemoryAccess(allow bool) TranslatorOption {
	return func(t *Translator) {
		t.allowMemory = allow
	}
}

// NewTranslator creates a Translator.
func NewTranslator(opts ...TranslatorOption) *Translator {
	t := &Translator{
		decoder:         insts.NewDecoder(),
		ramBase:         emu.DefaultRAMBase,
		ramSize:         emu.DefaultRAMSize,
		maxInstructions: DefaultMaxBlockInstructions,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// MaxInstructions returns the block length limit.
func (t *Translator) MaxInstructions() int {
	return t.maxInstructions
}

var arithmetic = map[insts.Op]string{
	insts.OpADD:   "add",
	insts.OpADDI:  "add",
	insts.OpSUB:   "sub",
	insts.OpXOR:   "xor",
	insts.OpXORI:  "xor",
	insts.OpOR:    "or",
	insts.OpORI:   "or",
	insts.OpAND:   "and",
	insts.OpANDI:  "and",
	insts.OpSLL:   "shl",
	insts.OpSLLI:  "shl",
	insts.OpSRL:   "shr",
	insts.OpSRLI:  "shr",
	insts.OpSLT:   "csltw",
	insts.OpSLTI:  "csltw",
	insts.OpSLTU:  "cultw",
	insts.OpSLTIU: "cultw",
}

var loads = map[insts.Op]string{
	insts.OpLB:  "loadsb",
	insts.OpLH:  "loadsh",
	insts.OpLW:  "loadw",
	insts.OpLBU: "loadub",
	insts.OpLHU: "loaduh",
}

var stores = map[insts.Op]string{
	insts.OpSB: "storeb",
	insts.OpSH: "storeh",
	insts.OpSW: "storew",
}

var widths = map[insts.Op]uint32{
	insts.OpLB: 1, insts.OpLBU: 1, insts.OpSB: 1,
	insts.OpLH: 2, insts.OpLHU: 2, insts.OpSH: 2,
	insts.OpLW: 4, insts.OpSW: 4,
}

// folds evaluates arithmetic instructions on translate-time constants.
var folds = map[insts.Op]func(x, y uint32) uint32{
	insts.OpADD:   emu.Add,
	insts.OpADDI:  emu.Add,
	insts.OpSUB:   emu.Sub,
	insts.OpXOR:   emu.Xor,
	insts.OpXORI:  emu.Xor,
	insts.OpOR:    emu.Or,
	insts.OpORI:   emu.Or,
	insts.OpAND:   emu.And,
	insts.OpANDI:  emu.And,
	insts.OpSLL:   emu.Sll,
	insts.OpSLLI:  emu.Sll,
	insts.OpSRL:   emu.Srl,
	insts.OpSRLI:  emu.Srl,
	insts.OpSLT:   emu.Slt,
	insts.OpSLTI:  emu.Slt,
	insts.OpSLTU:  emu.Sltu,
	insts.OpSLTIU: emu.Sltu,
}

// constants tracks registers whose value is known while translating a
// block, as after LUI or LUI+ADDI.
type constants struct {
	known [32]bool
	value [32]uint32
}

func (c *constants) get(r uint8) (uint32, bool) {
	if r == 0 {
		return 0, true
	}
	return c.value[r], c.known[r]
}

func (c *constants) set(r uint8, v uint32, known bool) {
	if r != 0 {
		c.value[r], c.known[r] = v, known
	}
}

func (c *constants) update(inst *insts.Instruction) {
	if inst.Op == insts.OpLUI {
		c.set(inst.Rd, uint32(inst.Imm), true)
		return
	}

	if fold, ok := folds[inst.Op]; ok {
		x, xKnown := c.get(inst.Rs1)
		y, yKnown := uint32(inst.Imm), true
		if inst.Format == insts.FormatR {
			y, yKnown = c.get(inst.Rs2)
		}
		c.set(inst.Rd, fold(x, y), xKnown && yKnown)
		return
	}

	if _, ok := loads[inst.Op]; ok {
		c.set(inst.Rd, 0, false)
	}
}

// Translatable reports whether inst can appear in a compiled block.
func (t *Translator) Translatable(inst *insts.Instruction) bool {
	if inst.Op == insts.OpLUI {
		return true
	}
	if _, ok := arithmetic[inst.Op]; ok {
		return true
	}
	if !t.allowMemory {
		return false
	}
	_, isLoad := loads[inst.Op]
	_, isStore := stores[inst.Op]
	return isLoad || isStore
}

// addressable reports whether a load or store may be compiled given the
// registers known so far. A constant address must be an aligned RAM
// address.
func (t *Translator) addressable(inst *insts.Instruction, known *constants) bool {
	width, ok := widths[inst.Op]
	if !ok {
		return true
	}
	base, ok := known.get(inst.Rs1)
	if !ok {
		return true
	}

	addr := base + uint32(inst.Imm)
	if addr < t.ramBase || addr%width != 0 {
		return false
	}
	return uint64(addr-t.ramBase)+uint64(width) <= uint64(t.ramSize)
}

// Translate lowers the longest translatable prefix of words, which hold
// the instructions at pc, pc+4, and so on. It reports false when the first
// instruction is not translatable.
func (t *Translator) Translate(pc uint32, words []uint32) (*Block, bool) {
	name := FunctionName(pc)
	fn := newFunction(name)

	var known constants
	count := 0
	for _, word := range words {
		if count == t.maxInstructions {
			break
		}

		inst := t.decoder.Decode(word)
		if !t.Translatable(&inst) || !t.addressable(&inst, &known) {
			break
		}

		fn.comment("%08x: %08x %s", pc+uint32(4*count), word, inst.Op)
		t.lower(fn, &inst)
		known.update(&inst)
		count++
	}

	if count == 0 {
		return nil, false
	}

	return &Block{
		PC:     pc,
		Name:   name,
		Source: fn.finish(pc, count),
		Count:  count,
	}, true
}

func (t *Translator) lower(fn *function, inst *insts.Instruction) {
	if inst.Op == insts.OpLUI {
		fn.write(inst.Rd, "copy "+itoa(inst.Imm))
		return
	}

	if op, ok := arithmetic[inst.Op]; ok {
		x := fn.read(inst.Rs1)
		y := itoa(inst.Imm)
		if inst.Format == insts.FormatR {
			y = fn.read(inst.Rs2)
		}
		fn.write(inst.Rd, op+" "+x+", "+y)
		return
	}

	if op, ok := loads[inst.Op]; ok {
		ptr := fn.guestPointer(inst.Rs1, inst.Imm, t.ramBase)
		fn.write(inst.Rd, op+" "+ptr)
		return
	}

	op := stores[inst.Op]
	value := fn.read(inst.Rs2)
	ptr := fn.guestPointer(inst.Rs1, inst.Imm, t.ramBase)
	fn.line("%s %s, %s", op, value, ptr)
}
