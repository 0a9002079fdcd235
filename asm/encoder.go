package asm

import (
	"fmt"

	"github.com/atlas8/atlasasm/isa"
	"github.com/atlas8/atlasasm/obj"
)

// EncodeErrorKind classifies why the encoder rejected an instruction, per
// spec §7.
type EncodeErrorKind int

const (
	EEZeroRegisterWrite EncodeErrorKind = iota
	EEImmediateOverflow
	EEOffsetOutOfRange
	EEInvalidSPR
	EEUnsupported
)

func (k EncodeErrorKind) String() string {
	switch k {
	case EEZeroRegisterWrite:
		return "write to r0"
	case EEImmediateOverflow:
		return "immediate overflow"
	case EEOffsetOutOfRange:
		return "M-type offset out of range"
	case EEInvalidSPR:
		return "invalid SPR selector"
	case EEUnsupported:
		return "unsupported instruction/operand combination"
	default:
		return "encode error"
	}
}

// EncodeError reports an encoder failure at a specific byte offset within
// the section being emitted.
type EncodeError struct {
	Kind    EncodeErrorKind
	Offset  uint32
	Section string
	Detail  string
}

func (e *EncodeError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s+0x%x: %s: %s", e.Section, e.Offset, e.Kind, e.Detail)
	}
	return fmt.Sprintf("%s+0x%x: %s", e.Section, e.Offset, e.Kind)
}

// Encoder walks a ParseResult's items and produces an obj.File: section
// bytes with every same-file label or constant reference substituted in
// place, and a relocation for every reference the encoder could not
// resolve locally (spec §4.3).
type Encoder struct {
	result *ParseResult
	file   *obj.File
}

// NewEncoder creates an Encoder over a completed parse.
func NewEncoder(result *ParseResult) *Encoder {
	return &Encoder{result: result, file: obj.New()}
}

// Encode runs the encoder to completion, returning the resulting object
// file or the first EncodeError encountered.
func (e *Encoder) Encode() (*obj.File, error) {
	for _, section := range e.result.SectionOrder {
		if section == ".abs" {
			continue // a virtual section; never materialized (spec §4.5)
		}
		if err := e.encodeSection(section); err != nil {
			return nil, err
		}
	}
	e.buildSymbols()
	return e.file, nil
}

func (e *Encoder) encodeSection(section string) error {
	var buf []byte
	for _, item := range e.result.ItemsBySection[section] {
		switch it := item.(type) {
		case ItemData:
			buf = append(buf, it.Bytes...)
		case ItemInstruction:
			word, err := e.encodeInstruction(section, uint32(len(buf)), it.Instr)
			if err != nil {
				return err
			}
			buf = append(buf, byte(word>>8), byte(word))
		}
	}
	if buf == nil {
		buf = []byte{}
	}
	e.file.SectionOrder = append(e.file.SectionOrder, section)
	e.file.Sections[section] = buf
	return nil
}

// resolved is what local resolution produces for an Operand: either a
// concrete immediate value or a relocation against an external/unresolved
// name.
type resolved struct {
	value   int32
	isReloc bool
	symbol  string
}

// resolve performs local resolution of op (spec §4.3): a label or
// constant defined in this file's symbol table is substituted directly;
// anything else (an import, or simply undefined — which the encoder does
// not distinguish from an import, matching the spec's resolution rule)
// becomes a relocation with addend 0.
func (e *Encoder) resolve(op Operand) resolved {
	if !op.IsLabel {
		return resolved{value: op.Imm}
	}
	if sym, ok := e.result.Symbols.Lookup(op.Label); ok && sym.Kind != SymImport {
		return resolved{value: int32(sym.Value)}
	}
	return resolved{isReloc: true, symbol: op.Label}
}

func (e *Encoder) addRelocation(section string, offset uint32, symbol string) {
	e.file.Relocations = append(e.file.Relocations, obj.Relocation{
		Offset:  offset,
		Symbol:  symbol,
		Addend:  0,
		Section: section,
	})
}

func (e *Encoder) encodeInstruction(section string, offset uint32, instr Instruction) (uint16, error) {
	switch in := instr.(type) {
	case InstrA:
		return e.encodeA(section, offset, in)
	case InstrI:
		return e.encodeI(section, offset, in)
	case InstrM:
		return e.encodeM(section, offset, in)
	case InstrBI:
		return e.encodeBI(section, offset, in)
	case InstrBR:
		// A register-pair branch target is always absolute.
		return isa.EncodeBR(true, in.Cond, in.RsHigh, in.RsLow), nil
	case InstrS:
		return e.encodeS(section, offset, in)
	case InstrP:
		return e.encodeP(section, offset, in)
	case InstrX:
		return e.encodeX(section, offset, in)
	default:
		return 0, &EncodeError{Kind: EEUnsupported, Offset: offset, Section: section}
	}
}

// isWritingR0 reports whether an A-type op writes its destination
// register; every such op rejects rd=r0 except cmp and tst, which never
// write rd (and nop, handled separately via InstrA.IsNop).
func isWritingR0(op isa.AluOp) bool {
	return op != isa.CMP && op != isa.TST
}

func (e *Encoder) encodeA(section string, offset uint32, in InstrA) (uint16, error) {
	if in.Rd == 0 && isWritingR0(in.Op) && !in.IsNop {
		return 0, &EncodeError{Kind: EEZeroRegisterWrite, Offset: offset, Section: section}
	}
	return isa.EncodeA(in.Rd, in.Rs, in.Op), nil
}

func fitsU8(v int32) bool { return v >= 0 && v <= 0xff }

func (e *Encoder) encodeI(section string, offset uint32, in InstrI) (uint16, error) {
	if in.Rd == 0 {
		return 0, &EncodeError{Kind: EEZeroRegisterWrite, Offset: offset, Section: section}
	}
	r := e.resolve(in.Operand)
	if r.isReloc {
		e.addRelocation(section, offset, r.symbol)
		return isa.EncodeI(in.Op, in.Rd, 0), nil
	}
	if !fitsU8(r.value) {
		return 0, &EncodeError{Kind: EEImmediateOverflow, Offset: offset, Section: section}
	}
	return isa.EncodeI(in.Op, in.Rd, byte(r.value)), nil
}

func (e *Encoder) encodeM(section string, offset uint32, in InstrM) (uint16, error) {
	// st writes to memory, not to r: r0 is a legal source for st.
	if in.Op != isa.ST && in.R == 0 {
		return 0, &EncodeError{Kind: EEZeroRegisterWrite, Offset: offset, Section: section}
	}

	var field byte
	switch {
	case in.Offset >= -5 && in.Offset <= 7:
		field = byte(int8(in.Offset)) & 0xf
	default:
		// An SPR selector (-6/-7/-8) is stored as its own 4-bit
		// two's-complement value, which no in-range offset uses.
		if _, ok := isa.SPRRegister(int(in.Offset)); !ok {
			return 0, &EncodeError{Kind: EEOffsetOutOfRange, Offset: offset, Section: section}
		}
		field = byte(int8(in.Offset)) & 0xf
	}
	return isa.EncodeM(in.Op, in.R, in.Rb, field), nil
}

func (e *Encoder) encodeBI(section string, offset uint32, in InstrBI) (uint16, error) {
	r := e.resolve(in.Operand)
	if r.isReloc {
		e.addRelocation(section, offset, r.symbol)
		return isa.EncodeBI(in.Abs, in.Cond, 0), nil
	}
	// An absolute address is an unsigned byte; a relative offset is
	// signed and two's-complement-truncated into the byte, so its legal
	// range is narrower. byte(r.value) truncates a negative int32 into
	// its two's-complement low byte.
	if in.Abs {
		if r.value < 0 || r.value > 0xff {
			return 0, &EncodeError{Kind: EEImmediateOverflow, Offset: offset, Section: section}
		}
	} else if r.value < -128 || r.value > 127 {
		return 0, &EncodeError{Kind: EEImmediateOverflow, Offset: offset, Section: section}
	}
	return isa.EncodeBI(in.Abs, in.Cond, byte(r.value)), nil
}

func (e *Encoder) encodeS(section string, offset uint32, in InstrS) (uint16, error) {
	switch in.Op {
	case isa.PUSH:
		// push reads rs; r0 is legal (pushing a literal zero is useful).
		return isa.EncodeS(in.Op, in.Reg), nil
	case isa.POP:
		if in.Reg == 0 {
			return 0, &EncodeError{Kind: EEZeroRegisterWrite, Offset: offset, Section: section}
		}
		return isa.EncodeS(in.Op, in.Reg), nil
	default: // subsp, addsp
		if in.IsReg {
			return isa.EncodeS(in.Op, in.Reg), nil
		}
		return isa.EncodeS(in.Op, in.Imm8), nil
	}
}

func (e *Encoder) encodeP(section string, offset uint32, in InstrP) (uint16, error) {
	if in.Op == isa.PEEK && in.Reg == 0 {
		return 0, &EncodeError{Kind: EEZeroRegisterWrite, Offset: offset, Section: section}
	}
	r := e.resolve(in.Operand)
	if r.isReloc {
		e.addRelocation(section, offset, r.symbol)
		return isa.EncodeP(in.Op, in.Reg, 0), nil
	}
	if !fitsU8(r.value) {
		return 0, &EncodeError{Kind: EEImmediateOverflow, Offset: offset, Section: section}
	}
	return isa.EncodeP(in.Op, in.Reg, byte(r.value)), nil
}

func (e *Encoder) encodeX(section string, offset uint32, in InstrX) (uint16, error) {
	if in.HasImm {
		return isa.EncodeX(in.Op, in.Imm8), nil
	}
	return isa.EncodeX(in.Op, 0), nil
}

// buildSymbols translates the parser's local symbol table plus export set
// into the object file's ordered symbol list, per spec §4.4: exported
// labels/constants become Global, imports are Global with value 0 and no
// section, and everything else stays Local.
func (e *Encoder) buildSymbols() {
	for _, name := range e.result.Symbols.Names() {
		sym, _ := e.result.Symbols.Lookup(name)
		binding := obj.Local
		if e.result.Exports[name] {
			binding = obj.Global
		}

		switch sym.Kind {
		case SymImport:
			e.file.Symbols = append(e.file.Symbols, obj.Symbol{
				Name:       name,
				HasSection: false,
				Binding:    obj.Global,
			})
		default: // SymLabel, SymConstant
			e.file.Symbols = append(e.file.Symbols, obj.Symbol{
				Name:       name,
				Value:      sym.Value,
				HasSection: true,
				Section:    sym.Section,
				Binding:    binding,
			})
		}
	}
}
