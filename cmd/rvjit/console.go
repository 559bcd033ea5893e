package main

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"

	"github.com/sarchlab/rvjit/emu"
)

// UART registers of the 8250-style console.
const (
	uartData   uint32 = 0x10000000
	uartStatus uint32 = 0x10000005

	// Transmitter empty and holding register empty, no input pending.
	uartIdle uint32 = 0x60
)

// Debug CSRs guests use to print without a UART driver.
const (
	csrPrintDecimal uint16 = 0x136
	csrPrintHex     uint16 = 0x137
	csrPrintString  uint16 = 0x138
	csrPrintChar    uint16 = 0x139
	csrReadChar     uint16 = 0x140
)

// console is an output-only UART plus the debug CSRs.
type console struct {
	out     io.Writer
	ramBase uint32
	logger  *slog.Logger
}

func newConsole(out io.Writer, ramBase uint32, logger *slog.Logger) *console {
	return &console{out: out, ramBase: ramBase, logger: logger}
}

func (c *console) ControlLoad(addr uint32) uint32 {
	if addr == uartStatus {
		return uartIdle
	}
	return 0
}

func (c *console) ControlStore(addr, value uint32) bool {
	if addr != uartData {
		return false
	}
	_, _ = c.out.Write([]byte{byte(value)})
	return true
}

func (c *console) CSRRead(_ []byte, csr uint16) uint32 {
	if csr == csrReadChar {
		return 0xFFFFFFFF
	}
	return 0
}

func (c *console) CSRWrite(image []byte, csr uint16, value uint32) {
	switch csr {
	case csrPrintDecimal:
		fmt.Fprintf(c.out, "%d", value)
	case csrPrintHex:
		fmt.Fprintf(c.out, "%08x", value)
	case csrPrintString:
		c.printString(image, value)
	case csrPrintChar:
		_, _ = c.out.Write([]byte{byte(value)})
	}
}

// printString writes the NUL-terminated guest string at addr.
func (c *console) printString(image []byte, addr uint32) {
	offset := addr - c.ramBase
	if addr < c.ramBase || uint64(offset) >= uint64(len(image)) {
		c.logger.Warn("print string outside RAM", "addr", fmt.Sprintf("0x%08x", addr))
		return
	}

	s := image[offset:]
	if end := bytes.IndexByte(s, 0); end >= 0 {
		s = s[:end]
	}
	_, _ = c.out.Write(s)
}

func (c *console) Exception(inst, cause uint32) {
	c.logger.Debug("guest exception",
		"cause", emu.CauseName(cause), "inst", fmt.Sprintf("0x%08x", inst))
}
