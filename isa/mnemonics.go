package isa

import "strings"

// Info describes everything the parser and encoder need to know about a
// mnemonic: which word shape it takes and which family-specific opcode
// value it carries within that shape.
type Info struct {
	Format Format
	Op     byte // meaning depends on Format: AluOp, ImmOp, MemOp, BranchCond, StackOp, PortOp, or XOp
}

// mnemonics is the single source of truth mapping a lowercase mnemonic to
// its instruction shape and opcode, mirroring the opcode/name table the
// reference assembler builds from its own per-architecture opcode list,
// generalized here from decode-by-opcode-byte (256 slots) to
// lookup-by-mnemonic, since nothing in this component ever decodes an
// Atlas-8 word back into a mnemonic.
var mnemonics = map[string]Info{
	// A-type
	"add":  {FormatA, byte(ADD)},
	"addc": {FormatA, byte(ADDC)},
	"sub":  {FormatA, byte(SUB)},
	"subc": {FormatA, byte(SUBC)},
	"and":  {FormatA, byte(AND)},
	"or":   {FormatA, byte(OR)},
	"xor":  {FormatA, byte(XOR)},
	"not":  {FormatA, byte(NOT)},
	"shl":  {FormatA, byte(SHL)},
	"shr":  {FormatA, byte(SHR)},
	"rol":  {FormatA, byte(ROL)},
	"ror":  {FormatA, byte(ROR)},
	"cmp":  {FormatA, byte(CMP)},
	"tst":  {FormatA, byte(TST)},
	"mov":  {FormatA, byte(MOV)},
	"neg":  {FormatA, byte(NEG)},

	// I-type
	"ldi":  {FormatI, byte(LDI)},
	"addi": {FormatI, byte(ADDI)},
	"subi": {FormatI, byte(SUBI)},
	"andi": {FormatI, byte(ANDI)},
	"ori":  {FormatI, byte(ORI)},

	// M-type
	"ld": {FormatM, byte(LD)},
	"st": {FormatM, byte(ST)},

	// BI/BR-type (disambiguated by the parser, not the mnemonic)
	"br":  {FormatBI, byte(CondAL)},
	"beq": {FormatBI, byte(CondEQ)},
	"bne": {FormatBI, byte(CondNE)},
	"bcs": {FormatBI, byte(CondCS)},
	"bcc": {FormatBI, byte(CondCC)},
	"bmi": {FormatBI, byte(CondMI)},
	"bpl": {FormatBI, byte(CondPL)},
	"bov": {FormatBI, byte(CondOV)},

	// S-type
	"push":  {FormatS, byte(PUSH)},
	"pop":   {FormatS, byte(POP)},
	"subsp": {FormatS, byte(SUBSP)},
	"addsp": {FormatS, byte(ADDSP)},

	// P-type
	"peek": {FormatP, byte(PEEK)},
	"poke": {FormatP, byte(POKE)},

	// X-type
	"sysc":    {FormatX, byte(SYSC)},
	"eret":    {FormatX, byte(ERET)},
	"halt":    {FormatX, byte(HALT)},
	"icinv":   {FormatX, byte(ICINV)},
	"dcinv":   {FormatX, byte(DCINV)},
	"dcclean": {FormatX, byte(DCCLEAN)},
	"flush":   {FormatX, byte(FLUSH)},

	// Virtual mnemonics, expanded by the parser before encoding.
	"nop": {FormatVirtual, 0},
	"inc": {FormatVirtual, 1},
	"dec": {FormatVirtual, 2},
}

// Lookup returns the Info for a mnemonic, case-insensitively, and reports
// whether it was recognized.
func Lookup(mnemonic string) (Info, bool) {
	info, ok := mnemonics[strings.ToLower(mnemonic)]
	return info, ok
}
