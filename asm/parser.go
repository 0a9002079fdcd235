package asm

import (
	"github.com/atlas8/atlasasm/isa"
)

// ParseResult is everything the parser hands off to the encoder: the
// ordered item list per section, the file's local symbol table, and the
// export/import sets the encoder needs to tell local resolution apart from
// a relocation (spec §4.2/§4.3).
type ParseResult struct {
	ItemsBySection map[string][]ParsedItem
	SectionOrder   []string
	Symbols        *SymbolTable
	Exports        map[string]bool
	Imports        map[string]bool
}

// Parser consumes a token stream and produces a ParseResult. It keeps at
// most one token of lookahead, buffered in pending. Every method that
// consumes a token goes through next or peek — nothing calls the
// underlying lexer directly — so a token that was pushed back by peek can
// never be silently skipped by a later direct advance (spec §9's
// lookahead-bug warning).
type Parser struct {
	lex     *Lexer
	pending *Token
	lastPos Token // most recently consumed token, for EOF diagnostics

	curSection string
	pos        map[string]uint32
	sectionSeq []string
	seenSec    map[string]bool

	items   map[string][]ParsedItem
	symbols *SymbolTable
	exports map[string]bool
	imports map[string]bool
}

// NewParser creates a Parser over src.
func NewParser(src string) *Parser {
	p := &Parser{
		lex:        NewLexer(src),
		curSection: ".text",
		pos:        make(map[string]uint32),
		seenSec:    make(map[string]bool),
		items:      make(map[string][]ParsedItem),
		symbols:    NewSymbolTable(),
		exports:    make(map[string]bool),
		imports:    make(map[string]bool),
	}
	p.noteSection(".text")
	return p
}

func (p *Parser) noteSection(name string) {
	if !p.seenSec[name] {
		p.seenSec[name] = true
		p.sectionSeq = append(p.sectionSeq, name)
	}
}

// next returns the next token, draining pending first.
func (p *Parser) next() (Token, error) {
	if p.pending != nil {
		t := *p.pending
		p.pending = nil
		p.lastPos = t
		return t, nil
	}
	t, err := p.lex.Next()
	if err != nil {
		return Token{}, p.lexErr(err)
	}
	p.lastPos = t
	return t, nil
}

// peek returns the next token without consuming it.
func (p *Parser) peek() (Token, error) {
	if p.pending == nil {
		t, err := p.lex.Next()
		if err != nil {
			return Token{}, p.lexErr(err)
		}
		p.pending = &t
	}
	return *p.pending, nil
}

func (p *Parser) lexErr(err error) error {
	le, ok := err.(*LexError)
	if !ok {
		return err
	}
	return &ParseError{Line: le.Line, Col: le.Col, Kind: PEUnexpectedToken, Detail: le.Error()}
}

func (p *Parser) curPos() uint32 { return p.pos[p.curSection] }

func (p *Parser) advancePos(n uint32) { p.pos[p.curSection] += n }

func (p *Parser) appendItem(item ParsedItem) {
	p.items[p.curSection] = append(p.items[p.curSection], item)
}

// Parse runs the parser to completion and returns its result, or the
// first error encountered (spec §7: the first error in a phase aborts
// that phase).
func (p *Parser) Parse() (*ParseResult, error) {
	for {
		tok, err := p.next()
		if err != nil {
			return nil, err
		}

		switch tok.Kind {
		case TokEOF:
			return &ParseResult{
				ItemsBySection: p.items,
				SectionOrder:   p.sectionSeq,
				Symbols:        p.symbols,
				Exports:        p.exports,
				Imports:        p.imports,
			}, nil

		case TokNewline:
			continue

		case TokDirective:
			if err := p.handleDirective(tok); err != nil {
				return nil, placeAt(err, tok)
			}

		case TokIdentifier:
			if err := p.handleLabel(tok); err != nil {
				return nil, placeAt(err, tok)
			}

		case TokMnemonic:
			if err := p.handleInstruction(tok); err != nil {
				return nil, err
			}

		default:
			return nil, unexpected(tok, "directive, label definition, or mnemonic")
		}
	}
}

// placeAt gives a position-less ParseError (the symbol table's
// duplicate-symbol errors) the position of tok.
func placeAt(err error, tok Token) error {
	if pe, ok := err.(*ParseError); ok && pe.Line == 0 {
		pe.Line, pe.Col = tok.Line, tok.Col
	}
	return err
}

// handleLabel processes `name:` for either a position label, or — when
// immediately followed by `.imm` — a `.abs` constant definition (spec
// §4.2's `NAME: .imm VALUE` form).
func (p *Parser) handleLabel(nameTok Token) error {
	colon, err := p.next()
	if err != nil {
		return err
	}
	if colon.Kind != TokColon {
		return unexpected(colon, "':'")
	}

	next, err := p.peek()
	if err != nil {
		return err
	}
	if next.Kind == TokDirective && next.Str == "imm" {
		p.next() // consume the directive
		valTok, err := p.next()
		if err != nil {
			return err
		}
		if valTok.Kind != TokImmediate {
			return unexpected(valTok, "immediate value after .imm")
		}
		if err := p.symbols.DefineConstant(nameTok.Str, uint32(uint16(valTok.Imm))); err != nil {
			return err
		}
		return p.expectLineEnd()
	}

	return p.symbols.DefineLabel(nameTok.Str, p.curSection, p.curPos())
}

func (p *Parser) expectLineEnd() error {
	tok, err := p.next()
	if err != nil {
		return err
	}
	if tok.Kind != TokNewline && tok.Kind != TokEOF {
		return unexpected(tok, "end of line")
	}
	return nil
}

func (p *Parser) expectIdentifier() (Token, error) {
	tok, err := p.next()
	if err != nil {
		return Token{}, err
	}
	if tok.Kind != TokIdentifier {
		return Token{}, unexpected(tok, "identifier")
	}
	return tok, nil
}

func (p *Parser) handleDirective(tok Token) error {
	switch tok.Str {
	case "global", "export":
		name, err := p.expectIdentifier()
		if err != nil {
			return err
		}
		p.exports[name.Str] = true
		return p.expectLineEnd()

	case "import":
		name, err := p.expectIdentifier()
		if err != nil {
			return err
		}
		if err := p.symbols.DefineImport(name.Str); err != nil {
			return err
		}
		p.imports[name.Str] = true
		return p.expectLineEnd()

	case "text":
		p.curSection = ".text"
		p.noteSection(".text")
		return p.expectLineEnd()

	case "data":
		p.curSection = ".data"
		p.noteSection(".data")
		return p.expectLineEnd()

	case "bss":
		p.curSection = ".bss"
		p.noteSection(".bss")
		return p.expectLineEnd()

	case "section":
		name, err := p.expectIdentifier()
		if err != nil {
			return err
		}
		p.curSection = "." + name.Str
		p.noteSection(p.curSection)
		return p.expectLineEnd()

	case "byte":
		return p.handleByteDirective()

	case "word":
		return p.handleWordDirective()

	case "ascii":
		return p.handleAsciiDirective()

	case "imm":
		// Only valid as `NAME: .imm VALUE`; reaching it bare is an error.
		return unexpected(tok, "a label before '.imm'")

	default:
		return unexpected(tok, "a known directive")
	}
}

func (p *Parser) handleByteDirective() error {
	var bytes []byte
	for {
		tok, err := p.next()
		if err != nil {
			return err
		}
		if tok.Kind != TokImmediate {
			return unexpected(tok, "byte value")
		}
		if tok.Imm < 0 || tok.Imm > 0xff {
			return &ParseError{Line: tok.Line, Col: tok.Col, Kind: PEInvalidOperand, Detail: "byte value out of range 0..255"}
		}
		bytes = append(bytes, byte(tok.Imm))

		next, err := p.next()
		if err != nil {
			return err
		}
		if next.Kind == TokComma {
			continue
		}
		if next.Kind == TokNewline || next.Kind == TokEOF {
			break
		}
		return unexpected(next, "',' or end of line")
	}

	p.appendItem(ItemData{Offset: p.curPos(), Bytes: bytes})
	p.advancePos(uint32(len(bytes)))
	return nil
}

func (p *Parser) handleWordDirective() error {
	tok, err := p.next()
	if err != nil {
		return err
	}
	if tok.Kind != TokImmediate {
		return unexpected(tok, "word value")
	}
	v := uint16(tok.Imm)
	bytes := []byte{byte(v >> 8), byte(v)}
	p.appendItem(ItemData{Offset: p.curPos(), Bytes: bytes})
	p.advancePos(2)
	return p.expectLineEnd()
}

func (p *Parser) handleAsciiDirective() error {
	tok, err := p.next()
	if err != nil {
		return err
	}
	if tok.Kind != tokString {
		return unexpected(tok, "string literal")
	}
	bytes := []byte(tok.Str)
	p.appendItem(ItemData{Offset: p.curPos(), Bytes: bytes})
	p.advancePos(uint32(len(bytes)))
	return p.expectLineEnd()
}

func (p *Parser) expectRegister() (byte, error) {
	tok, err := p.next()
	if err != nil {
		return 0, err
	}
	if tok.Kind != TokRegister {
		return 0, unexpected(tok, "register")
	}
	return tok.Reg, nil
}

func (p *Parser) expectComma() error {
	tok, err := p.next()
	if err != nil {
		return err
	}
	if tok.Kind != TokComma {
		return unexpected(tok, "','")
	}
	return nil
}

// expectOperand parses the shared Immediate|Label operand shape used by
// I-, P-, and BI-type instructions.
func (p *Parser) expectOperand() (Operand, error) {
	tok, err := p.next()
	if err != nil {
		return Operand{}, err
	}
	switch tok.Kind {
	case TokImmediate:
		return Operand{Imm: tok.Imm}, nil
	case TokIdentifier:
		return Operand{IsLabel: true, Label: tok.Str}, nil
	default:
		return Operand{}, unexpected(tok, "immediate or label")
	}
}

func (p *Parser) handleInstruction(tok Token) error {
	info, ok := isa.Lookup(tok.Str)
	if !ok {
		return unexpected(tok, "a known mnemonic")
	}

	offset := p.curPos()
	var instr Instruction
	var err error

	switch info.Format {
	case isa.FormatA:
		instr, err = p.parseA(offset, isa.AluOp(info.Op))
	case isa.FormatI:
		instr, err = p.parseI(offset, isa.ImmOp(info.Op))
	case isa.FormatM:
		instr, err = p.parseM(offset, isa.MemOp(info.Op))
	case isa.FormatBI, isa.FormatBR:
		instr, err = p.parseBranch(offset, isa.BranchCond(info.Op))
	case isa.FormatS:
		instr, err = p.parseS(offset, isa.StackOp(info.Op))
	case isa.FormatP:
		instr, err = p.parseP(offset, isa.PortOp(info.Op))
	case isa.FormatX:
		instr, err = p.parseX(offset, isa.XOp(info.Op))
	case isa.FormatVirtual:
		instr, err = p.parseVirtual(offset, tok)
	default:
		return unexpected(tok, "a recognized instruction format")
	}
	if err != nil {
		return err
	}

	p.appendItem(ItemInstruction{Instr: instr})
	p.advancePos(2)
	return nil
}

func (p *Parser) parseA(offset uint32, op isa.AluOp) (Instruction, error) {
	rd, err := p.expectRegister()
	if err != nil {
		return nil, err
	}
	if err := p.expectComma(); err != nil {
		return nil, err
	}
	rs, err := p.expectRegister()
	if err != nil {
		return nil, err
	}
	if err := p.expectLineEnd(); err != nil {
		return nil, err
	}
	return InstrA{Pos: Pos{Offset: offset}, Op: op, Rd: rd, Rs: rs}, nil
}

func (p *Parser) parseI(offset uint32, op isa.ImmOp) (Instruction, error) {
	rd, err := p.expectRegister()
	if err != nil {
		return nil, err
	}
	if err := p.expectComma(); err != nil {
		return nil, err
	}
	operand, err := p.expectOperand()
	if err != nil {
		return nil, err
	}
	if err := p.expectLineEnd(); err != nil {
		return nil, err
	}
	return InstrI{Pos: Pos{Offset: offset}, Op: op, Rd: rd, Operand: operand}, nil
}

func (p *Parser) parseM(offset uint32, op isa.MemOp) (Instruction, error) {
	r, err := p.expectRegister()
	if err != nil {
		return nil, err
	}
	if err := p.expectComma(); err != nil {
		return nil, err
	}

	open, err := p.next()
	if err != nil {
		return nil, err
	}
	if open.Kind != TokLBracket {
		return nil, &ParseError{Line: open.Line, Col: open.Col, Kind: PEMalformedAddressing, Detail: "expected '[' after base register"}
	}

	rb, err := p.expectRegister()
	if err != nil {
		return nil, err
	}

	next, err := p.next()
	if err != nil {
		return nil, err
	}

	var offsetVal int32
	switch next.Kind {
	case TokRBracket:
		instr := InstrM{Pos: Pos{Offset: offset}, Op: op, R: r, Rb: rb, Offset: 0}
		if err := p.expectLineEnd(); err != nil {
			return nil, err
		}
		return instr, nil
	case TokComma:
		// fall through to read the offset below
	default:
		return nil, &ParseError{Line: next.Line, Col: next.Col, Kind: PEMalformedAddressing, Detail: "expected ',' or ']'"}
	}

	immTok, err := p.next()
	if err != nil {
		return nil, err
	}
	if immTok.Kind != TokImmediate {
		return nil, &ParseError{Line: immTok.Line, Col: immTok.Col, Kind: PEMalformedAddressing, Detail: "expected offset or SPR selector"}
	}
	offsetVal = immTok.Imm

	close, err := p.next()
	if err != nil {
		return nil, err
	}
	if close.Kind != TokRBracket {
		return nil, &ParseError{Line: close.Line, Col: close.Col, Kind: PEMalformedAddressing, Detail: "expected ']'"}
	}

	if err := p.expectLineEnd(); err != nil {
		return nil, err
	}

	return InstrM{Pos: Pos{Offset: offset}, Op: op, R: r, Rb: rb, Offset: offsetVal}, nil
}

// parseBranch parses a BI- or BR-type instruction body. The two share a
// mnemonic set and are disambiguated by what follows it: an immediate or
// label (BI) versus a register pair (BR). An immediate operand's sign
// decides absolute vs. relative addressing: an unsigned literal is an
// absolute address, a signed literal (`+2`, `-2`) is a relative offset
// (spec §4.2/§4.3); a label operand is always absolute.
func (p *Parser) parseBranch(offset uint32, cond isa.BranchCond) (Instruction, error) {
	tok, err := p.peek()
	if err != nil {
		return nil, err
	}

	switch tok.Kind {
	case TokImmediate:
		p.next()
		if err := p.expectLineEnd(); err != nil {
			return nil, err
		}
		return InstrBI{Pos: Pos{Offset: offset}, Cond: cond, Abs: !tok.Signed, Operand: Operand{Imm: tok.Imm}}, nil

	case TokIdentifier:
		p.next()
		if err := p.expectLineEnd(); err != nil {
			return nil, err
		}
		return InstrBI{Pos: Pos{Offset: offset}, Cond: cond, Abs: true, Operand: Operand{IsLabel: true, Label: tok.Str}}, nil

	case TokRegister:
		p.next()
		rHigh := tok.Reg
		if err := p.expectComma(); err != nil {
			return nil, err
		}
		rLow, err := p.expectRegister()
		if err != nil {
			return nil, err
		}
		if err := p.expectLineEnd(); err != nil {
			return nil, err
		}
		return InstrBR{Pos: Pos{Offset: offset}, Cond: cond, RsHigh: rHigh, RsLow: rLow}, nil

	default:
		p.next()
		return nil, unexpected(tok, "immediate, label, or register")
	}
}

func (p *Parser) parseS(offset uint32, op isa.StackOp) (Instruction, error) {
	switch op {
	case isa.PUSH, isa.POP:
		reg, err := p.expectRegister()
		if err != nil {
			return nil, err
		}
		if err := p.expectLineEnd(); err != nil {
			return nil, err
		}
		return InstrS{Pos: Pos{Offset: offset}, Op: op, Reg: reg}, nil

	default: // SUBSP, ADDSP
		tok, err := p.next()
		if err != nil {
			return nil, err
		}
		var instr InstrS
		instr.Pos = Pos{Offset: offset}
		instr.Op = op
		switch tok.Kind {
		case TokRegister:
			instr.IsReg = true
			instr.Reg = tok.Reg
		case TokImmediate:
			if tok.Imm < 0 || tok.Imm > 0xff {
				return nil, &ParseError{Line: tok.Line, Col: tok.Col, Kind: PEInvalidOperand, Detail: "immediate out of range 0..255"}
			}
			instr.Imm8 = byte(tok.Imm)
		default:
			return nil, unexpected(tok, "immediate or register")
		}
		if err := p.expectLineEnd(); err != nil {
			return nil, err
		}
		return instr, nil
	}
}

func (p *Parser) parseP(offset uint32, op isa.PortOp) (Instruction, error) {
	reg, err := p.expectRegister()
	if err != nil {
		return nil, err
	}
	if err := p.expectComma(); err != nil {
		return nil, err
	}
	operand, err := p.expectOperand()
	if err != nil {
		return nil, err
	}
	if err := p.expectLineEnd(); err != nil {
		return nil, err
	}
	return InstrP{Pos: Pos{Offset: offset}, Op: op, Reg: reg, Operand: operand}, nil
}

func (p *Parser) parseX(offset uint32, op isa.XOp) (Instruction, error) {
	tok, err := p.peek()
	if err != nil {
		return nil, err
	}
	if tok.Kind == TokNewline || tok.Kind == TokEOF {
		return InstrX{Pos: Pos{Offset: offset}, Op: op}, nil
	}
	if op != isa.SYSC {
		// Only sysc takes an operand; any operand on the rest is an error.
		p.next()
		return nil, unexpected(tok, "end of line")
	}
	if tok.Kind != TokImmediate {
		p.next()
		return nil, unexpected(tok, "immediate or end of line")
	}
	p.next()
	if tok.Imm < 0 || tok.Imm > 0xff {
		return nil, &ParseError{Line: tok.Line, Col: tok.Col, Kind: PEInvalidOperand, Detail: "sysc operand out of range 0..255"}
	}
	if err := p.expectLineEnd(); err != nil {
		return nil, err
	}
	return InstrX{Pos: Pos{Offset: offset}, Op: op, HasImm: true, Imm8: byte(tok.Imm)}, nil
}

// parseVirtual expands nop/inc/dec into their real encoded form, per
// spec §4.2.
func (p *Parser) parseVirtual(offset uint32, tok Token) (Instruction, error) {
	switch tok.Str {
	case "nop":
		if err := p.expectLineEnd(); err != nil {
			return nil, err
		}
		return InstrA{Pos: Pos{Offset: offset}, Op: isa.ADD, Rd: 0, Rs: 0, IsNop: true}, nil

	case "inc":
		rd, err := p.expectRegister()
		if err != nil {
			return nil, err
		}
		if err := p.expectLineEnd(); err != nil {
			return nil, err
		}
		return InstrI{Pos: Pos{Offset: offset}, Op: isa.ADDI, Rd: rd, Operand: Operand{Imm: 1}}, nil

	case "dec":
		rd, err := p.expectRegister()
		if err != nil {
			return nil, err
		}
		if err := p.expectLineEnd(); err != nil {
			return nil, err
		}
		return InstrI{Pos: Pos{Offset: offset}, Op: isa.SUBI, Rd: rd, Operand: Operand{Imm: 1}}, nil

	default:
		return nil, unexpected(tok, "a known virtual mnemonic")
	}
}
