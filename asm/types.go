package asm

import "github.com/atlas8/atlasasm/isa"

// Operand is the tagged value described in spec §3: either a literal
// immediate or a reference to a label/constant that the encoder must
// resolve (locally) or relocate (across files).
type Operand struct {
	IsLabel bool
	Imm     int32
	Label   string
}

// Pos records where an instruction landed: its 0-based byte offset within
// the section that will emit it. The parser does not fill in Line; it is
// always 0.
type Pos struct {
	Offset uint32
	Line   int
}

// Instruction is implemented by each of the eight parsed instruction
// shapes (spec §3's ParsedInstruction, expressed here as one interface
// with a variant struct per format rather than a single flattened struct,
// since the formats share almost no fields).
type Instruction interface {
	Format() isa.Format
	pos() Pos
}

// InstrA is an A-type instruction: `mnem rd, rs`. IsNop marks the one
// instance the parser itself produces by expanding the virtual `nop`
// mnemonic (spec §4.2); it is the sole case where rd=r0 on an
// otherwise-write-producing op is legal (spec §4.3).
type InstrA struct {
	Pos
	Op     isa.AluOp
	Rd, Rs byte
	IsNop  bool
}

func (i InstrA) Format() isa.Format { return isa.FormatA }
func (i InstrA) pos() Pos           { return i.Pos }

// InstrI is an I-type instruction: `mnem rd, Operand`.
type InstrI struct {
	Pos
	Op      isa.ImmOp
	Rd      byte
	Operand Operand
}

func (i InstrI) Format() isa.Format { return isa.FormatI }
func (i InstrI) pos() Pos           { return i.Pos }

// InstrM is an M-type instruction: `mnem r, [rb]` / `[rb, offset]` /
// `[rb, spr]`. Offset carries the raw signed value from the source
// (either an in-range displacement or one of the three SPR selector
// literals); range and selector validation happens in the encoder.
type InstrM struct {
	Pos
	Op     isa.MemOp
	R, Rb  byte
	Offset int32
}

func (i InstrM) Format() isa.Format { return isa.FormatM }
func (i InstrM) pos() Pos           { return i.Pos }

// InstrBI is a BI-type instruction: `mnem Operand`, addressed absolutely
// (an unsigned immediate or a label) or relatively (a signed immediate).
type InstrBI struct {
	Pos
	Cond    isa.BranchCond
	Abs     bool
	Operand Operand
}

func (i InstrBI) Format() isa.Format { return isa.FormatBI }
func (i InstrBI) pos() Pos           { return i.Pos }

// InstrBR is a BR-type instruction: a branch mnemonic given a register
// pair operand instead of an address.
type InstrBR struct {
	Pos
	Cond           isa.BranchCond
	RsHigh, RsLow  byte
}

func (i InstrBR) Format() isa.Format { return isa.FormatBR }
func (i InstrBR) pos() Pos           { return i.Pos }

// InstrS is an S-type instruction: push/pop take a single register;
// subsp/addsp take either an 8-bit immediate or a register.
type InstrS struct {
	Pos
	Op       isa.StackOp
	Reg      byte
	IsReg    bool // for subsp/addsp: operand is a register, not an immediate
	Imm8     byte
}

func (i InstrS) Format() isa.Format { return isa.FormatS }
func (i InstrS) pos() Pos           { return i.Pos }

// InstrP is a P-type instruction: `peek rd, Operand` / `poke rs, Operand`.
type InstrP struct {
	Pos
	Op      isa.PortOp
	Reg     byte
	Operand Operand
}

func (i InstrP) Format() isa.Format { return isa.FormatP }
func (i InstrP) pos() Pos           { return i.Pos }

// InstrX is an X-type instruction. Only sysc carries an operand, and it is
// a plain 8-bit immediate (never a label).
type InstrX struct {
	Pos
	Op      isa.XOp
	HasImm  bool
	Imm8    byte
}

func (i InstrX) Format() isa.Format { return isa.FormatX }
func (i InstrX) pos() Pos           { return i.Pos }

// ParsedItem is one ordered entry within a section: an instruction or a
// run of literal data. There is no section-change item; which section an
// item belongs to is given by the ItemsBySection list it lands in.
type ParsedItem interface {
	isParsedItem()
}

// ItemInstruction wraps a parsed instruction.
type ItemInstruction struct {
	Instr Instruction
}

func (ItemInstruction) isParsedItem() {}

// ItemData is raw byte data from .byte/.word/.ascii.
type ItemData struct {
	Offset uint32
	Bytes  []byte
}

func (ItemData) isParsedItem() {}
