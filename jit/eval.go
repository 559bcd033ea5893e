package jit

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"unsafe"

	"github.com/sarchlab/rvjit/emu"
)

// Evaluator is an in-process backend. It parses the IR subset the
// translator emits and interprets it directly against the state and RAM,
// so it needs no external tools.
type Evaluator struct{}

// NewEvaluator creates an Evaluator.
func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// Build parses source.
func (e *Evaluator) Build(name, source string) (Artifact, error) {
	prog, err := parseProgram(source)
	if err != nil {
		return Artifact{}, fmt.Errorf("%w: %s: %w", ErrBuild, name, err)
	}
	return Artifact{Name: name, program: prog}, nil
}

// Load resolves the function named by the artifact.
func (e *Evaluator) Load(artifact Artifact) (Func, error) {
	if artifact.program == nil {
		return nil, fmt.Errorf("%w: %s: artifact was not built by the evaluator", ErrLoad, artifact.Name)
	}
	if artifact.program.name != artifact.Name {
		return nil, fmt.Errorf("%w: symbol %s not found", ErrLoad, artifact.Name)
	}
	return artifact.program, nil
}

func (e *Evaluator) Unload(Func) error { return nil }

func (e *Evaluator) Purge(string) error { return nil }

type opcode uint8

const (
	opCopy opcode = iota
	opAdd
	opSub
	opXor
	opOr
	opAnd
	opShl
	opShr
	opSar
	opCsltw
	opCultw
	opExtuw
	opLoadw
	opLoadsh
	opLoaduh
	opLoadsb
	opLoadub
	opStorew
	opStoreh
	opStoreb
	opRet
)

var opcodes = map[string]opcode{
	"copy":   opCopy,
	"add":    opAdd,
	"sub":    opSub,
	"xor":    opXor,
	"or":     opOr,
	"and":    opAnd,
	"shl":    opShl,
	"shr":    opShr,
	"sar":    opSar,
	"csltw":  opCsltw,
	"cultw":  opCultw,
	"extuw":  opExtuw,
	"loadw":  opLoadw,
	"loadsh": opLoadsh,
	"loaduh": opLoaduh,
	"loadsb": opLoadsb,
	"loadub": opLoadub,
	"storew": opStorew,
	"storeh": opStoreh,
	"storeb": opStoreb,
	"ret":    opRet,
}

var operandCount = map[opcode]int{
	opCopy: 1, opExtuw: 1, opRet: 1,
	opLoadw: 1, opLoadsh: 1, opLoaduh: 1, opLoadsb: 1, opLoadub: 1,
}

type operand struct {
	temp  int // slot index, or -1 for a constant
	value uint64
}

type instruction struct {
	op   opcode
	dst  int
	long bool
	args []operand
}

// program is a parsed function. Slots 0-2 hold the parameters.
type program struct {
	name  string
	slots int
	code  []instruction
}

// Virtual base addresses of the two memory regions a program can touch.
const (
	stateBase uint64 = 1 << 40
	ramBase   uint64 = 2 << 40
)

func parseProgram(source string) (*program, error) {
	p := &program{}
	slots := map[string]int{paramState: 0, paramRAM: 1, paramPC: 2}

	slot := func(name string) int {
		if i, ok := slots[name]; ok {
			return i
		}
		slots[name] = len(slots)
		return slots[name]
	}

	parseOperand := func(text string) (operand, error) {
		if strings.HasPrefix(text, "%") {
			if _, ok := slots[text]; !ok {
				return operand{}, fmt.Errorf("use of undefined temporary %s", text)
			}
			return operand{temp: slots[text]}, nil
		}
		v, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return operand{}, fmt.Errorf("bad constant %q", text)
		}
		return operand{temp: -1, value: uint64(v)}, nil
	}

	returned := false
	for n, raw := range strings.Split(source, "\n") {
		line := strings.TrimSpace(raw)
		switch {
		case line == "", strings.HasPrefix(line, "#"), line == "@start", line == "}":
			continue
		case strings.HasPrefix(line, "export function"):
			start := strings.Index(line, "$")
			end := strings.Index(line, "(")
			if start < 0 || end < start {
				return nil, fmt.Errorf("line %d: malformed function header", n+1)
			}
			p.name = line[start+1 : end]
			continue
		}

		var inst instruction
		var fields string
		dst := ""
		if lhs, rhs, ok := strings.Cut(line, "="); ok {
			dst = strings.TrimSpace(lhs)
			rhs = strings.TrimSpace(rhs)
			if len(rhs) < 2 || (rhs[0] != 'w' && rhs[0] != 'l') {
				return nil, fmt.Errorf("line %d: missing result type", n+1)
			}
			inst.long = rhs[0] == 'l'
			fields = strings.TrimSpace(rhs[1:])
		} else {
			fields = line
		}

		mnemonic, rest, _ := strings.Cut(fields, " ")
		op, ok := opcodes[mnemonic]
		if !ok {
			return nil, fmt.Errorf("line %d: unsupported instruction %q", n+1, mnemonic)
		}
		inst.op = op

		for _, arg := range strings.Split(rest, ",") {
			o, err := parseOperand(strings.TrimSpace(arg))
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", n+1, err)
			}
			inst.args = append(inst.args, o)
		}

		want, ok := operandCount[op]
		if !ok {
			want = 2
		}
		if len(inst.args) != want {
			return nil, fmt.Errorf("line %d: %s takes %d operands", n+1, mnemonic, want)
		}

		isStore := op == opStorew || op == opStoreh || op == opStoreb
		switch {
		case op == opRet:
			returned = true
		case isStore && dst != "":
			return nil, fmt.Errorf("line %d: store has a result", n+1)
		case !isStore && dst == "":
			return nil, fmt.Errorf("line %d: missing result", n+1)
		case !isStore:
			inst.dst = slot(dst)
		}

		p.code = append(p.code, inst)
	}

	if p.name == "" {
		return nil, fmt.Errorf("no function header")
	}
	if !returned {
		return nil, fmt.Errorf("function %s does not return", p.name)
	}

	p.slots = len(slots)
	return p, nil
}

func (p *program) Name() string {
	return p.name
}

// undo records the bytes a store overwrote.
type undo struct {
	dst []byte
	old [4]byte
}

// Invoke interprets the program. An access outside the state and RAM, or
// a misaligned RAM access, rolls back every store made so far and returns
// an error wrapping ErrFault.
func (p *program) Invoke(state *emu.State, ram []byte, pc uint32) (uint32, error) {
	stateBytes := unsafe.Slice((*byte)(unsafe.Pointer(state)), unsafe.Sizeof(*state))

	regs := make([]uint64, p.slots)
	regs[0] = stateBase
	regs[1] = ramBase
	regs[2] = uint64(pc)

	value := func(o operand) uint64 {
		if o.temp < 0 {
			return o.value
		}
		return regs[o.temp]
	}

	var fault uint64
	memory := func(addr uint64, size uint64) []byte {
		switch {
		case addr >= stateBase && addr+size <= stateBase+uint64(len(stateBytes)):
			return stateBytes[addr-stateBase : addr-stateBase+size]
		case addr >= ramBase && addr+size <= ramBase+uint64(len(ram)) && (addr-ramBase)%size == 0:
			return ram[addr-ramBase : addr-ramBase+size]
		}
		fault = addr
		return nil
	}

	var stores []undo
	store := func(addr uint64, size uint64) []byte {
		dst := memory(addr, size)
		if dst != nil {
			u := undo{dst: dst}
			copy(u.old[:], dst)
			stores = append(stores, u)
		}
		return dst
	}

	rollback := func() (uint32, error) {
		for i := len(stores) - 1; i >= 0; i-- {
			copy(stores[i].dst, stores[i].old[:])
		}
		return pc, fmt.Errorf("%w: %s accessed RAM offset 0x%x", ErrFault, p.name, fault-ramBase)
	}

	for _, inst := range p.code {
		var x, y uint64
		x = value(inst.args[0])
		if len(inst.args) > 1 {
			y = value(inst.args[1])
		}

		var r uint64
		switch inst.op {
		case opCopy:
			r = x
		case opAdd:
			r = x + y
		case opSub:
			r = x - y
		case opXor:
			r = x ^ y
		case opOr:
			r = x | y
		case opAnd:
			r = x & y
		case opShl:
			r = x << (y & 31)
		case opShr:
			r = uint64(uint32(x) >> (y & 31))
		case opSar:
			r = uint64(uint32(int32(x) >> (y & 31)))
		case opCsltw:
			r = boolToUint(int32(x) < int32(y))
		case opCultw:
			r = boolToUint(uint32(x) < uint32(y))
		case opExtuw:
			r = uint64(uint32(x))
		case opLoadw, opLoadsh, opLoaduh, opLoadsb, opLoadub:
			src := memory(x, accessSize[inst.op])
			if src == nil {
				return rollback()
			}
			r = load(inst.op, src)
		case opStorew, opStoreh, opStoreb:
			dst := store(y, accessSize[inst.op])
			if dst == nil {
				return rollback()
			}
			put(dst, x)
			continue
		case opRet:
			return uint32(x), nil
		}

		if !inst.long {
			r = uint64(uint32(r))
		}
		regs[inst.dst] = r
	}

	return pc, nil
}

// accessSize is the access width of each memory opcode.
var accessSize = map[opcode]uint64{
	opLoadw: 4, opLoadsh: 2, opLoaduh: 2, opLoadsb: 1, opLoadub: 1,
	opStorew: 4, opStoreh: 2, opStoreb: 1,
}

func load(op opcode, src []byte) uint64 {
	switch op {
	case opLoadw:
		return uint64(binary.LittleEndian.Uint32(src))
	case opLoadsh:
		return uint64(uint32(int32(int16(binary.LittleEndian.Uint16(src)))))
	case opLoaduh:
		return uint64(binary.LittleEndian.Uint16(src))
	case opLoadsb:
		return uint64(uint32(int32(int8(src[0]))))
	default:
		return uint64(src[0])
	}
}

// put stores the low len(dst) bytes of v little-endian.
func put(dst []byte, v uint64) {
	for i := range dst {
		dst[i] = byte(v >> (8 * i))
	}
}

func boolToUint(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
