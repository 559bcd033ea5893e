package jit

import (
	"fmt"
	"strconv"
	"strings"
	"unsafe"

	"github.com/sarchlab/rvjit/emu"
)

// Parameter names of every generated function.
const (
	paramState = "%state"
	paramRAM   = "%ram"
	paramPC    = "%pc_in"
)

// FunctionName returns the exported symbol of the block entered at pc.
func FunctionName(pc uint32) string {
	return fmt.Sprintf("pc_%08x", pc)
}

func itoa(v int32) string {
	return strconv.FormatInt(int64(v), 10)
}

// regOffset is the byte offset of register r inside emu.State.
func regOffset(r uint8) int {
	return int(unsafe.Offsetof(emu.State{}.Regs)) + 4*int(r)
}

// function accumulates the body of one QBE function. Architectural
// registers live in %x1..%x31; they are loaded from the state on first
// read and stored back in ascending order before returning.
type function struct {
	name  string
	body  strings.Builder
	temps int

	live  [32]bool
	dirty [32]bool
}

func newFunction(name string) *function {
	return &function{name: name}
}

func (f *function) temp() string {
	f.temps++
	return fmt.Sprintf("%%t%d", f.temps)
}

func (f *function) line(format string, args ...any) {
	f.body.WriteByte('\t')
	fmt.Fprintf(&f.body, format, args...)
	f.body.WriteByte('\n')
}

func (f *function) comment(format string, args ...any) {
	f.line("# "+format, args...)
}

// read returns the operand holding register r.
func (f *function) read(r uint8) string {
	if r == 0 {
		return "0"
	}
	name := fmt.Sprintf("%%x%d", r)
	if !f.live[r] {
		addr := f.temp()
		f.line("%s =l add %s, %d", addr, paramState, regOffset(r))
		f.line("%s =w loadw %s", name, addr)
		f.live[r] = true
	}
	return name
}

// write assigns the w-typed expression to register r.
func (f *function) write(r uint8, expr string) {
	if r == 0 {
		f.comment("x0 <- %s (ignored)", expr)
		return
	}
	f.line("%%x%d =w %s", r, expr)
	f.live[r] = true
	f.dirty[r] = true
}

// guestPointer computes the host address of guest address rs1+imm.
func (f *function) guestPointer(rs1 uint8, imm int32, ramBase uint32) string {
	offset := f.temp()
	f.line("%s =w add %s, %d", offset, f.read(rs1), int32(uint32(imm)-ramBase))
	wide := f.temp()
	f.line("%s =l extuw %s", wide, offset)
	ptr := f.temp()
	f.line("%s =l add %s, %s", ptr, paramRAM, wide)
	return ptr
}

// finish stores every written register back and returns the whole
// function text.
func (f *function) finish(pc uint32, count int) string {
	for r := uint8(1); r < 32; r++ {
		if !f.dirty[r] {
			continue
		}
		addr := f.temp()
		f.line("%s =l add %s, %d", addr, paramState, regOffset(r))
		f.line("storew %%x%d, %s", r, addr)
	}
	f.line("ret %s", paramPC)

	var out strings.Builder
	fmt.Fprintf(&out, "# block 0x%08x, %d instructions\n", pc, count)
	fmt.Fprintf(&out, "export function w $%s(l %s, l %s, w %s) {\n",
		f.name, paramState, paramRAM, paramPC)
	out.WriteString("@start\n")
	out.WriteString(f.body.String())
	out.WriteString("}\n")
	return out.String()
}
