package insts

// Encoders for the base formats. Register indices are masked to 5 bits and
// immediates are truncated to the width their format carries.

// EncodeR builds an R-type word.
func EncodeR(opcode, rd, funct3, rs1, rs2, funct7 uint8) uint32 {
	return uint32(funct7&0x7F)<<25 | uint32(rs2&0x1F)<<20 | uint32(rs1&0x1F)<<15 |
		uint32(funct3&0x7)<<12 | uint32(rd&0x1F)<<7 | uint32(opcode&0x7F)
}

// EncodeI builds an I-type word.
func EncodeI(opcode, rd, funct3, rs1 uint8, imm int32) uint32 {
	return (uint32(imm)&0xFFF)<<20 | uint32(rs1&0x1F)<<15 |
		uint32(funct3&0x7)<<12 | uint32(rd&0x1F)<<7 | uint32(opcode&0x7F)
}

// EncodeS builds an S-type word.
func EncodeS(opcode, funct3, rs1, rs2 uint8, imm int32) uint32 {
	u := uint32(imm)
	return ((u>>5)&0x7F)<<25 | uint32(rs2&0x1F)<<20 | uint32(rs1&0x1F)<<15 |
		uint32(funct3&0x7)<<12 | (u&0x1F)<<7 | uint32(opcode&0x7F)
}

// EncodeB builds a B-type word. The offset is in bytes and must be even.
func EncodeB(funct3, rs1, rs2 uint8, offset int32) uint32 {
	u := uint32(offset)
	return ((u>>12)&0x1)<<31 | ((u>>5)&0x3F)<<25 | uint32(rs2&0x1F)<<20 |
		uint32(rs1&0x1F)<<15 | uint32(funct3&0x7)<<12 | ((u>>1)&0xF)<<8 |
		((u>>11)&0x1)<<7 | uint32(OpcodeBranch)
}

// EncodeU builds a U-type word from the upper 20 bits of imm.
func EncodeU(opcode, rd uint8, imm int32) uint32 {
	return uint32(imm)&0xFFFFF000 | uint32(rd&0x1F)<<7 | uint32(opcode&0x7F)
}

// EncodeJ builds a J-type word. The offset is in bytes and must be even.
func EncodeJ(rd uint8, offset int32) uint32 {
	u := uint32(offset)
	return ((u>>20)&0x1)<<31 | ((u>>1)&0x3FF)<<21 | ((u>>11)&0x1)<<20 |
		((u>>12)&0xFF)<<12 | uint32(rd&0x1F)<<7 | uint32(OpcodeJAL)
}

func Lui(rd uint8, imm int32) uint32    { return EncodeU(OpcodeLUI, rd, imm) }
func Auipc(rd uint8, imm int32) uint32  { return EncodeU(OpcodeAUIPC, rd, imm) }
func Jal(rd uint8, offset int32) uint32 { return EncodeJ(rd, offset) }

func Jalr(rd, rs1 uint8, imm int32) uint32 { return EncodeI(OpcodeJALR, rd, 0, rs1, imm) }

func Beq(rs1, rs2 uint8, offset int32) uint32  { return EncodeB(0b000, rs1, rs2, offset) }
func Bne(rs1, rs2 uint8, offset int32) uint32  { return EncodeB(0b001, rs1, rs2, offset) }
func Blt(rs1, rs2 uint8, offset int32) uint32  { return EncodeB(0b100, rs1, rs2, offset) }
func Bge(rs1, rs2 uint8, offset int32) uint32  { return EncodeB(0b101, rs1, rs2, offset) }
func Bltu(rs1, rs2 uint8, offset int32) uint32 { return EncodeB(0b110, rs1, rs2, offset) }
func Bgeu(rs1, rs2 uint8, offset int32) uint32 { return EncodeB(0b111, rs1, rs2, offset) }

func Lb(rd, rs1 uint8, imm int32) uint32  { return EncodeI(OpcodeLoad, rd, 0b000, rs1, imm) }
func Lh(rd, rs1 uint8, imm int32) uint32  { return EncodeI(OpcodeLoad, rd, 0b001, rs1, imm) }
func Lw(rd, rs1 uint8, imm int32) uint32  { return EncodeI(OpcodeLoad, rd, 0b010, rs1, imm) }
func Lbu(rd, rs1 uint8, imm int32) uint32 { return EncodeI(OpcodeLoad, rd, 0b100, rs1, imm) }
func Lhu(rd, rs1 uint8, imm int32) uint32 { return EncodeI(OpcodeLoad, rd, 0b101, rs1, imm) }

func Sb(rs2, rs1 uint8, imm int32) uint32 { return EncodeS(OpcodeStore, 0b000, rs1, rs2, imm) }
func Sh(rs2, rs1 uint8, imm int32) uint32 { return EncodeS(OpcodeStore, 0b001, rs1, rs2, imm) }
func Sw(rs2, rs1 uint8, imm int32) uint32 { return EncodeS(OpcodeStore, 0b010, rs1, rs2, imm) }

func Addi(rd, rs1 uint8, imm int32) uint32  { return EncodeI(OpcodeOpImm, rd, 0b000, rs1, imm) }
func Slti(rd, rs1 uint8, imm int32) uint32  { return EncodeI(OpcodeOpImm, rd, 0b010, rs1, imm) }
func Sltiu(rd, rs1 uint8, imm int32) uint32 { return EncodeI(OpcodeOpImm, rd, 0b011, rs1, imm) }
func Xori(rd, rs1 uint8, imm int32) uint32  { return EncodeI(OpcodeOpImm, rd, 0b100, rs1, imm) }
func Ori(rd, rs1 uint8, imm int32) uint32   { return EncodeI(OpcodeOpImm, rd, 0b110, rs1, imm) }
func Andi(rd, rs1 uint8, imm int32) uint32  { return EncodeI(OpcodeOpImm, rd, 0b111, rs1, imm) }

func Slli(rd, rs1, shamt uint8) uint32 { return EncodeR(OpcodeOpImm, rd, 0b001, rs1, shamt, 0) }
func Srli(rd, rs1, shamt uint8) uint32 { return EncodeR(OpcodeOpImm, rd, 0b101, rs1, shamt, 0) }
func Srai(rd, rs1, shamt uint8) uint32 { return EncodeR(OpcodeOpImm, rd, 0b101, rs1, shamt, 0x20) }

func Add(rd, rs1, rs2 uint8) uint32  { return EncodeR(OpcodeOp, rd, 0b000, rs1, rs2, 0) }
func Sub(rd, rs1, rs2 uint8) uint32  { return EncodeR(OpcodeOp, rd, 0b000, rs1, rs2, 0x20) }
func Sll(rd, rs1, rs2 uint8) uint32  { return EncodeR(OpcodeOp, rd, 0b001, rs1, rs2, 0) }
func Slt(rd, rs1, rs2 uint8) uint32  { return EncodeR(OpcodeOp, rd, 0b010, rs1, rs2, 0) }
func Sltu(rd, rs1, rs2 uint8) uint32 { return EncodeR(OpcodeOp, rd, 0b011, rs1, rs2, 0) }
func Xor(rd, rs1, rs2 uint8) uint32  { return EncodeR(OpcodeOp, rd, 0b100, rs1, rs2, 0) }
func Srl(rd, rs1, rs2 uint8) uint32  { return EncodeR(OpcodeOp, rd, 0b101, rs1, rs2, 0) }
func Sra(rd, rs1, rs2 uint8) uint32  { return EncodeR(OpcodeOp, rd, 0b101, rs1, rs2, 0x20) }
func Or(rd, rs1, rs2 uint8) uint32   { return EncodeR(OpcodeOp, rd, 0b110, rs1, rs2, 0) }
func And(rd, rs1, rs2 uint8) uint32  { return EncodeR(OpcodeOp, rd, 0b111, rs1, rs2, 0) }

func Mul(rd, rs1, rs2 uint8) uint32    { return EncodeR(OpcodeOp, rd, 0b000, rs1, rs2, 1) }
func Mulh(rd, rs1, rs2 uint8) uint32   { return EncodeR(OpcodeOp, rd, 0b001, rs1, rs2, 1) }
func Mulhsu(rd, rs1, rs2 uint8) uint32 { return EncodeR(OpcodeOp, rd, 0b010, rs1, rs2, 1) }
func Mulhu(rd, rs1, rs2 uint8) uint32  { return EncodeR(OpcodeOp, rd, 0b011, rs1, rs2, 1) }
func Div(rd, rs1, rs2 uint8) uint32    { return EncodeR(OpcodeOp, rd, 0b100, rs1, rs2, 1) }
func Divu(rd, rs1, rs2 uint8) uint32   { return EncodeR(OpcodeOp, rd, 0b101, rs1, rs2, 1) }
func Rem(rd, rs1, rs2 uint8) uint32    { return EncodeR(OpcodeOp, rd, 0b110, rs1, rs2, 1) }
func Remu(rd, rs1, rs2 uint8) uint32   { return EncodeR(OpcodeOp, rd, 0b111, rs1, rs2, 1) }

func Fence() uint32  { return EncodeI(OpcodeMiscMem, 0, 0b000, 0, 0x0FF) }
func Ecall() uint32  { return EncodeI(OpcodeSystem, 0, 0, 0, 0x000) }
func Ebreak() uint32 { return EncodeI(OpcodeSystem, 0, 0, 0, 0x001) }
func Mret() uint32   { return EncodeI(OpcodeSystem, 0, 0, 0, 0x302) }
func Wfi() uint32    { return EncodeI(OpcodeSystem, 0, 0, 0, 0x105) }

func Csrrw(rd uint8, csr uint16, rs1 uint8) uint32 {
	return EncodeI(OpcodeSystem, rd, 0b001, rs1, int32(csr))
}

func Csrrs(rd uint8, csr uint16, rs1 uint8) uint32 {
	return EncodeI(OpcodeSystem, rd, 0b010, rs1, int32(csr))
}

func Csrrc(rd uint8, csr uint16, rs1 uint8) uint32 {
	return EncodeI(OpcodeSystem, rd, 0b011, rs1, int32(csr))
}

func Csrrwi(rd uint8, csr uint16, uimm uint8) uint32 {
	return EncodeI(OpcodeSystem, rd, 0b101, uimm, int32(csr))
}

func Csrrsi(rd uint8, csr uint16, uimm uint8) uint32 {
	return EncodeI(OpcodeSystem, rd, 0b110, uimm, int32(csr))
}

func Csrrci(rd uint8, csr uint16, uimm uint8) uint32 {
	return EncodeI(OpcodeSystem, rd, 0b111, uimm, int32(csr))
}

// Amo builds an RV32A word instruction from its funct5 selector.
func Amo(funct5, rd, rs1, rs2 uint8) uint32 {
	return EncodeR(OpcodeAMO, rd, 0b010, rs1, rs2, funct5<<2)
}

func LrW(rd, rs1 uint8) uint32           { return Amo(0b00010, rd, rs1, 0) }
func ScW(rd, rs1, rs2 uint8) uint32      { return Amo(0b00011, rd, rs1, rs2) }
func AmoswapW(rd, rs1, rs2 uint8) uint32 { return Amo(0b00001, rd, rs1, rs2) }
func AmoaddW(rd, rs1, rs2 uint8) uint32  { return Amo(0b00000, rd, rs1, rs2) }
func AmoxorW(rd, rs1, rs2 uint8) uint32  { return Amo(0b00100, rd, rs1, rs2) }
func AmoandW(rd, rs1, rs2 uint8) uint32  { return Amo(0b01100, rd, rs1, rs2) }
func AmoorW(rd, rs1, rs2 uint8) uint32   { return Amo(0b01000, rd, rs1, rs2) }
func AmominW(rd, rs1, rs2 uint8) uint32  { return Amo(0b10000, rd, rs1, rs2) }
func AmomaxW(rd, rs1, rs2 uint8) uint32  { return Amo(0b10100, rd, rs1, rs2) }
func AmominuW(rd, rs1, rs2 uint8) uint32 { return Amo(0b11000, rd, rs1, rs2) }
func AmomaxuW(rd, rs1, rs2 uint8) uint32 { return Amo(0b11100, rd, rs1, rs2) }
