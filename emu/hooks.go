package emu

// Hooks is the set of host capabilities the core calls out to.
//
// ControlStore sees every store inside the MMIO window before the built-in
// devices do. Returning true means the store was fully handled and CLINT
// and SYSCON never see it. ControlLoad serves MMIO loads other than the
// CLINT timer registers.
//
// CSRRead and CSRWrite serve CSR numbers the core does not implement. They
// receive the guest RAM image so a host can implement debug CSRs that read
// guest memory.
//
// Exception is called before a trap is delivered, and only when the
// emulator is not configured to fail on all faults.
type Hooks interface {
	ControlLoad(addr uint32) uint32
	ControlStore(addr, value uint32) bool
	CSRRead(image []byte, csr uint16) uint32
	CSRWrite(image []byte, csr uint16, value uint32)
	Exception(inst, cause uint32)
}

// NopHooks implements Hooks with no devices attached. Loads read 0, stores
// are not intercepted, and unknown CSRs read 0 and ignore writes.
type NopHooks struct{}

func (NopHooks) ControlLoad(uint32) uint32        { return 0 }
func (NopHooks) ControlStore(uint32, uint32) bool { return false }
func (NopHooks) CSRRead([]byte, uint16) uint32    { return 0 }
func (NopHooks) CSRWrite([]byte, uint16, uint32)  {}
func (NopHooks) Exception(uint32, uint32)         {}
