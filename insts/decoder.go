// Package insts provides RV32IMA instruction definitions and decoding.
package insts

// Op represents an RV32IMA operation.
type Op uint16

// RV32IMA operations.
const (
	OpUnknown Op = iota

	// RV32I upper immediates and jumps
	OpLUI
	OpAUIPC
	OpJAL
	OpJALR

	// Branches
	OpBEQ
	OpBNE
	OpBLT
	OpBGE
	OpBLTU
	OpBGEU

	// Loads and stores
	OpLB
	OpLH
	OpLW
	OpLBU
	OpLHU
	OpSB
	OpSH
	OpSW

	// Register-immediate ALU
	OpADDI
	OpSLTI
	OpSLTIU
	OpXORI
	OpORI
	OpANDI
	OpSLLI
	OpSRLI
	OpSRAI

	// Register-register ALU
	OpADD
	OpSUB
	OpSLL
	OpSLT
	OpSLTU
	OpXOR
	OpSRL
	OpSRA
	OpOR
	OpAND

	// RV32M
	OpMUL
	OpMULH
	OpMULHSU
	OpMULHU
	OpDIV
	OpDIVU
	OpREM
	OpREMU

	// Fences and SYSTEM
	OpFENCE
	OpFENCEI
	OpECALL
	OpEBREAK
	OpMRET
	OpWFI
	OpCSRRW
	OpCSRRS
	OpCSRRC
	OpCSRRWI
	OpCSRRSI
	OpCSRRCI

	// RV32A
	OpLRW
	OpSCW
	OpAMOSWAPW
	OpAMOADDW
	OpAMOXORW
	OpAMOANDW
	OpAMOORW
	OpAMOMINW
	OpAMOMAXW
	OpAMOMINUW
	OpAMOMAXUW

	numOps
)

var opNames = [numOps]string{
	OpUnknown:  "UNKNOWN",
	OpLUI:      "LUI",
	OpAUIPC:    "AUIPC",
	OpJAL:      "JAL",
	OpJALR:     "JALR",
	OpBEQ:      "BEQ",
	OpBNE:      "BNE",
	OpBLT:      "BLT",
	OpBGE:      "BGE",
	OpBLTU:     "BLTU",
	OpBGEU:     "BGEU",
	OpLB:       "LB",
	OpLH:       "LH",
	OpLW:       "LW",
	OpLBU:      "LBU",
	OpLHU:      "LHU",
	OpSB:       "SB",
	OpSH:       "SH",
	OpSW:       "SW",
	OpADDI:     "ADDI",
	OpSLTI:     "SLTI",
	OpSLTIU:    "SLTIU",
	OpXORI:     "XORI",
	OpORI:      "ORI",
	OpANDI:     "ANDI",
	OpSLLI:     "SLLI",
	OpSRLI:     "SRLI",
	OpSRAI:     "SRAI",
	OpADD:      "ADD",
	OpSUB:      "SUB",
	OpSLL:      "SLL",
	OpSLT:      "SLT",
	OpSLTU:     "SLTU",
	OpXOR:      "XOR",
	OpSRL:      "SRL",
	OpSRA:      "SRA",
	OpOR:       "OR",
	OpAND:      "AND",
	OpMUL:      "MUL",
	OpMULH:     "MULH",
	OpMULHSU:   "MULHSU",
	OpMULHU:    "MULHU",
	OpDIV:      "DIV",
	OpDIVU:     "DIVU",
	OpREM:      "REM",
	OpREMU:     "REMU",
	OpFENCE:    "FENCE",
	OpFENCEI:   "FENCE.I",
	OpECALL:    "ECALL",
	OpEBREAK:   "EBREAK",
	OpMRET:     "MRET",
	OpWFI:      "WFI",
	OpCSRRW:    "CSRRW",
	OpCSRRS:    "CSRRS",
	OpCSRRC:    "CSRRC",
	OpCSRRWI:   "CSRRWI",
	OpCSRRSI:   "CSRRSI",
	OpCSRRCI:   "CSRRCI",
	OpLRW:      "LR.W",
	OpSCW:      "SC.W",
	OpAMOSWAPW: "AMOSWAP.W",
	OpAMOADDW:  "AMOADD.W",
	OpAMOXORW:  "AMOXOR.W",
	OpAMOANDW:  "AMOAND.W",
	OpAMOORW:   "AMOOR.W",
	OpAMOMINW:  "AMOMIN.W",
	OpAMOMAXW:  "AMOMAX.W",
	OpAMOMINUW: "AMOMINU.W",
	OpAMOMAXUW: "AMOMAXU.W",
}

// String returns the assembler mnemonic of the operation.
func (o Op) String() string {
	if o >= numOps {
		return "UNKNOWN"
	}
	return opNames[o]
}

// Format represents an instruction encoding format.
type Format uint8

// Instruction formats.
const (
	FormatUnknown Format = iota
	FormatR              // register-register
	FormatI              // register-immediate, loads, JALR, SYSTEM
	FormatS              // stores
	FormatB              // conditional branches
	FormatU              // LUI, AUIPC
	FormatJ              // JAL
)

// Major opcodes (bits [6:0]).
const (
	OpcodeLoad    uint8 = 0x03
	OpcodeMiscMem uint8 = 0x0F
	OpcodeOpImm   uint8 = 0x13
	OpcodeAUIPC   uint8 = 0x17
	OpcodeStore   uint8 = 0x23
	OpcodeAMO     uint8 = 0x2F
	OpcodeOp      uint8 = 0x33
	OpcodeLUI     uint8 = 0x37
	OpcodeBranch  uint8 = 0x63
	OpcodeJALR    uint8 = 0x67
	OpcodeJAL     uint8 = 0x6F
	OpcodeSystem  uint8 = 0x73
)

// Instruction represents a decoded RV32IMA instruction.
type Instruction struct {
	Word   uint32 // Raw instruction word
	Op     Op     // Resolved operation
	Format Format // Encoding format

	Opcode uint8 // bits [6:0]
	Rd     uint8 // bits [11:7]
	Funct3 uint8 // bits [14:12]
	Rs1    uint8 // bits [19:15]; the zero-extended immediate for CSR*I
	Rs2    uint8 // bits [24:20]
	Funct7 uint8 // bits [31:25]

	// Imm is the sign-extended, format-specific immediate. For shift
	// immediates it holds the shift amount only.
	Imm int32

	// CSR is the unsigned 12-bit CSR number for SYSTEM instructions.
	CSR uint16
}

// ImmI extracts the I-type immediate: bits [31:20], sign-extended.
func ImmI(word uint32) int32 {
	return int32(word) >> 20
}

// ImmS extracts the S-type immediate: bits [31:25] and [11:7], sign-extended.
func ImmS(word uint32) int32 {
	v := int32(((word >> 25) << 5) | ((word >> 7) & 0x1F))
	return (v << 20) >> 20
}

// ImmB extracts the B-type immediate, sign-extended, in bytes.
func ImmB(word uint32) int32 {
	v := ((word >> 31) << 12) |
		(((word >> 7) & 0x1) << 11) |
		(((word >> 25) & 0x3F) << 5) |
		(((word >> 8) & 0xF) << 1)
	return (int32(v) << 19) >> 19
}

// ImmU extracts the U-type immediate: bits [31:12] in place, low 12 bits zero.
func ImmU(word uint32) int32 {
	return int32(word & 0xFFFFF000)
}

// ImmJ extracts the J-type immediate, sign-extended, in bytes.
func ImmJ(word uint32) int32 {
	v := ((word >> 31) << 20) |
		(((word >> 12) & 0xFF) << 12) |
		(((word >> 20) & 0x1) << 11) |
		(((word >> 21) & 0x3FF) << 1)
	return (int32(v) << 11) >> 11
}

// Decoder decodes RV32IMA machine code into instructions.
type Decoder struct{}

// NewDecoder creates a new RV32IMA instruction decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode decodes a 32-bit instruction word. Encodings that are not part of
// RV32IMA decode to OpUnknown with the raw fields still filled in.
func (d *Decoder) Decode(word uint32) Instruction {
	inst := Instruction{
		Word:   word,
		Opcode: uint8(word & 0x7F),
		Rd:     uint8((word >> 7) & 0x1F),
		Funct3: uint8((word >> 12) & 0x7),
		Rs1:    uint8((word >> 15) & 0x1F),
		Rs2:    uint8((word >> 20) & 0x1F),
		Funct7: uint8(word >> 25),
	}

	switch inst.Opcode {
	case OpcodeLUI:
		inst.Format = FormatU
		inst.Op = OpLUI
		inst.Imm = ImmU(word)
	case OpcodeAUIPC:
		inst.Format = FormatU
		inst.Op = OpAUIPC
		inst.Imm = ImmU(word)
	case OpcodeJAL:
		inst.Format = FormatJ
		inst.Op = OpJAL
		inst.Imm = ImmJ(word)
	case OpcodeJALR:
		inst.Format = FormatI
		inst.Imm = ImmI(word)
		if inst.Funct3 == 0 {
			inst.Op = OpJALR
		}
	case OpcodeBranch:
		d.decodeBranch(&inst)
	case OpcodeLoad:
		d.decodeLoad(&inst)
	case OpcodeStore:
		d.decodeStore(&inst)
	case OpcodeOpImm:
		d.decodeOpImm(&inst)
	case OpcodeOp:
		d.decodeOp(&inst)
	case OpcodeMiscMem:
		inst.Format = FormatI
		switch inst.Funct3 {
		case 0:
			inst.Op = OpFENCE
		case 1:
			inst.Op = OpFENCEI
		}
	case OpcodeSystem:
		d.decodeSystem(&inst)
	case OpcodeAMO:
		d.decodeAMO(&inst)
	}

	return inst
}

// decodeBranch decodes BEQ/BNE/BLT/BGE/BLTU/BGEU.
// Format: imm[12|10:5] | rs2 | rs1 | funct3 | imm[4:1|11] | 1100011
func (d *Decoder) decodeBranch(inst *Instruction) {
	inst.Format = FormatB
	inst.Imm = ImmB(inst.Word)

	switch inst.Funct3 {
	case 0b000:
		inst.Op = OpBEQ
	case 0b001:
		inst.Op = OpBNE
	case 0b100:
		inst.Op = OpBLT
	case 0b101:
		inst.Op = OpBGE
	case 0b110:
		inst.Op = OpBLTU
	case 0b111:
		inst.Op = OpBGEU
	}
}

// decodeLoad decodes LB/LH/LW/LBU/LHU.
func (d *Decoder) decodeLoad(inst *Instruction) {
	inst.Format = FormatI
	inst.Imm = ImmI(inst.Word)

	switch inst.Funct3 {
	case 0b000:
		inst.Op = OpLB
	case 0b001:
		inst.Op = OpLH
	case 0b010:
		inst.Op = OpLW
	case 0b100:
		inst.Op = OpLBU
	case 0b101:
		inst.Op = OpLHU
	}
}

// decodeStore decodes SB/SH/SW.
func (d *Decoder) decodeStore(inst *Instruction) {
	inst.Format = FormatS
	inst.Imm = ImmS(inst.Word)

	switch inst.Funct3 {
	case 0b000:
		inst.Op = OpSB
	case 0b001:
		inst.Op = OpSH
	case 0b010:
		inst.Op = OpSW
	}
}

// decodeOpImm decodes register-immediate ALU instructions.
// Shift immediates carry the shift amount in Imm and must have a valid
// funct7 (0 for SLLI/SRLI, 0b0100000 for SRAI).
func (d *Decoder) decodeOpImm(inst *Instruction) {
	inst.Format = FormatI
	inst.Imm = ImmI(inst.Word)

	switch inst.Funct3 {
	case 0b000:
		inst.Op = OpADDI
	case 0b010:
		inst.Op = OpSLTI
	case 0b011:
		inst.Op = OpSLTIU
	case 0b100:
		inst.Op = OpXORI
	case 0b110:
		inst.Op = OpORI
	case 0b111:
		inst.Op = OpANDI
	case 0b001:
		inst.Imm = int32(inst.Rs2)
		if inst.Funct7 == 0 {
			inst.Op = OpSLLI
		}
	case 0b101:
		inst.Imm = int32(inst.Rs2)
		switch inst.Funct7 {
		case 0b0000000:
			inst.Op = OpSRLI
		case 0b0100000:
			inst.Op = OpSRAI
		}
	}
}

var (
	opBase = [8]Op{OpADD, OpSLL, OpSLT, OpSLTU, OpXOR, OpSRL, OpOR, OpAND}
	opMul  = [8]Op{OpMUL, OpMULH, OpMULHSU, OpMULHU, OpDIV, OpDIVU, OpREM, OpREMU}
)

// decodeOp decodes register-register ALU and RV32M instructions.
func (d *Decoder) decodeOp(inst *Instruction) {
	inst.Format = FormatR

	switch inst.Funct7 {
	case 0b0000000:
		inst.Op = opBase[inst.Funct3]
	case 0b0000001:
		inst.Op = opMul[inst.Funct3]
	case 0b0100000:
		switch inst.Funct3 {
		case 0b000:
			inst.Op = OpSUB
		case 0b101:
			inst.Op = OpSRA
		}
	}
}

// decodeSystem decodes ECALL/EBREAK/MRET/WFI and the Zicsr instructions.
func (d *Decoder) decodeSystem(inst *Instruction) {
	inst.Format = FormatI
	inst.CSR = uint16(inst.Word >> 20)
	inst.Imm = ImmI(inst.Word)

	switch inst.Funct3 {
	case 0b000:
		switch inst.CSR {
		case 0x000:
			inst.Op = OpECALL
		case 0x001:
			inst.Op = OpEBREAK
		case 0x302:
			inst.Op = OpMRET
		case 0x105:
			inst.Op = OpWFI
		}
	case 0b001:
		inst.Op = OpCSRRW
	case 0b010:
		inst.Op = OpCSRRS
	case 0b011:
		inst.Op = OpCSRRC
	case 0b101:
		inst.Op = OpCSRRWI
	case 0b110:
		inst.Op = OpCSRRSI
	case 0b111:
		inst.Op = OpCSRRCI
	}
}

// decodeAMO decodes the RV32A word instructions.
// Format: funct5 | aq | rl | rs2 | rs1 | 010 | rd | 0101111
func (d *Decoder) decodeAMO(inst *Instruction) {
	inst.Format = FormatR
	if inst.Funct3 != 0b010 {
		return
	}

	switch inst.Funct7 >> 2 {
	case 0b00010:
		if inst.Rs2 == 0 {
			inst.Op = OpLRW
		}
	case 0b00011:
		inst.Op = OpSCW
	case 0b00001:
		inst.Op = OpAMOSWAPW
	case 0b00000:
		inst.Op = OpAMOADDW
	case 0b00100:
		inst.Op = OpAMOXORW
	case 0b01100:
		inst.Op = OpAMOANDW
	case 0b01000:
		inst.Op = OpAMOORW
	case 0b10000:
		inst.Op = OpAMOMINW
	case 0b10100:
		inst.Op = OpAMOMAXW
	case 0b11000:
		inst.Op = OpAMOMINUW
	case 0b11100:
		inst.Op = OpAMOMAXUW
	}
}
