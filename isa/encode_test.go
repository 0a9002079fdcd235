package isa

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncodeAAllDestinationsAndOpcodes(t *testing.T) {
	// spec §9: the A-type destination register must land in [11:8], never
	// bleeding into the type-identifier nibble. Exercise every destination
	// and every opcode.
	for rd := byte(0); rd < 16; rd++ {
		for op := AluOp(0); op < 16; op++ {
			word := EncodeA(rd, 0, op)
			assert.Equal(t, uint16(0), word&0xF000, "type nibble must stay zero")
			assert.Equal(t, uint16(rd), (word>>8)&0xf, "rd")
			assert.Equal(t, uint16(op), word&0xf, "op")
		}
	}
}

func TestEncodeIOpcodeNibble(t *testing.T) {
	assert.Equal(t, byte(0x1), LDI.Opcode())
	assert.Equal(t, byte(0x5), ORI.Opcode())

	word := EncodeI(LDI, 3, 0x80)
	assert.Equal(t, uint16(0x1380), word)
}

func TestEncodeMOffsetField(t *testing.T) {
	word := EncodeM(LD, 1, 2, 0xD) // -3 as a 4-bit two's complement value
	assert.Equal(t, uint16(0x6120|0xD), word)
}

func TestEncodeBIAbsoluteBit(t *testing.T) {
	absolute := EncodeBI(true, CondAL, 0x86)
	relative := EncodeBI(false, CondAL, 0x86)
	assert.Equal(t, uint16(0x8886), absolute)
	assert.Equal(t, uint16(0x8086), relative)
}

func TestPortOpDistinctTopNibbles(t *testing.T) {
	// spec §9: peek and poke must not share a top nibble with an op bit.
	assert.Equal(t, byte(0b1011), PEEK.Opcode())
	assert.Equal(t, byte(0b1100), POKE.Opcode())
	assert.NotEqual(t, PEEK.Opcode(), POKE.Opcode())
}

func TestEncodeXTopNibble(t *testing.T) {
	word := EncodeX(HALT, 0)
	assert.Equal(t, uint16(0xD000|uint16(HALT)<<8), word)
}

func TestRegisterAliases(t *testing.T) {
	cases := map[string]byte{"sp": 12, "tr": 10, "pc": 14}
	for name, want := range cases {
		got, ok := RegisterAlias(name)
		assert.True(t, ok)
		assert.Equal(t, want, got)
	}
	_, ok := RegisterAlias("r3")
	assert.False(t, ok)
}

func TestSPRRegister(t *testing.T) {
	reg, ok := SPRRegister(SPRTR)
	assert.True(t, ok)
	assert.Equal(t, byte(10), reg)

	_, ok = SPRRegister(-1)
	assert.False(t, ok)
}

func TestLookupCaseInsensitive(t *testing.T) {
	info, ok := Lookup("LDI")
	assert.True(t, ok)
	assert.Equal(t, FormatI, info.Format)

	_, ok = Lookup("nonsense")
	assert.False(t, ok)
}
