package asm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// checkASM assembles source and asserts that its .text section's encoded
// bytes match expectedHex, a run of hex byte pairs (spaces between pairs
// are optional).
func checkASM(t *testing.T, source, expectedHex string) {
	t.Helper()
	file, err := Assemble(source, "test.asm")
	if !assert.NoError(t, err) {
		return
	}
	assert.Equal(t, parseHexBytes(expectedHex), file.Sections[".text"])
}

// checkASMError assembles source and asserts that it fails.
func checkASMError(t *testing.T, source string) {
	t.Helper()
	_, err := Assemble(source, "test.asm")
	assert.Error(t, err)
}

func TestAssembleRejectsLdiR0(t *testing.T) {
	checkASMError(t, "ldi r0, 0x10\n")
}

func TestAssembleAllowsCmpR0(t *testing.T) {
	checkASM(t, "cmp r0, r0\n", "000C")
}

func TestAssembleLocalConstantSubstitution(t *testing.T) {
	file, err := Assemble("PORT: .imm 0x80\nldi r3, PORT\n", "test.asm")
	if !assert.NoError(t, err) {
		return
	}
	assert.Equal(t, []byte{0x13, 0x80}, file.Sections[".text"])
	assert.Empty(t, file.Relocations)
}

func TestAssembleNop(t *testing.T) {
	checkASM(t, "nop\n", "0000")
}

func TestAssembleIncDec(t *testing.T) {
	file, err := Assemble("inc r1\ndec r1\n", "test.asm")
	if !assert.NoError(t, err) {
		return
	}
	// addi r1, 1 -> opcode 0010, rd=1, imm8=1 -> 0x2101
	// subi r1, 1 -> opcode 0011, rd=1, imm8=1 -> 0x3101
	assert.Equal(t, []byte{0x21, 0x01, 0x31, 0x01}, file.Sections[".text"])
}

func TestAssembleImportProducesRelocation(t *testing.T) {
	file, err := Assemble(".import multiply\nbr multiply\n", "main.asm")
	if !assert.NoError(t, err) {
		return
	}
	assert.Equal(t, []byte{0x88, 0x00}, file.Sections[".text"])
	if assert.Len(t, file.Relocations, 1) {
		rel := file.Relocations[0]
		assert.Equal(t, "multiply", rel.Symbol)
		assert.Equal(t, uint32(0), rel.Offset)
		assert.Equal(t, ".text", rel.Section)
		assert.Equal(t, int32(0), rel.Addend)
	}
}

func TestAssembleExportedLabelIsGlobal(t *testing.T) {
	file, err := Assemble(".export multiply\nmultiply: add r1, r2\n", "math.asm")
	if !assert.NoError(t, err) {
		return
	}
	var found bool
	for _, sym := range file.Symbols {
		if sym.Name == "multiply" {
			found = true
			assert.Equal(t, uint32(0), sym.Value)
			assert.Equal(t, ".text", sym.Section)
		}
	}
	assert.True(t, found)
}

func TestAssembleByteWordAscii(t *testing.T) {
	file, err := Assemble(".byte 1, 2, 3\n.word 0x1234\n.ascii \"hi\"\n", "test.asm")
	if !assert.NoError(t, err) {
		return
	}
	assert.Equal(t, []byte{1, 2, 3, 0x12, 0x34, 'h', 'i'}, file.Sections[".text"])
}

func TestAssembleMTypeBracketForms(t *testing.T) {
	checkASM(t, "ld r1, [r2]\n", "6120")
	checkASM(t, "ld r1, [r2, 3]\n", "6123")
	checkASM(t, "st r1, [r2, -5]\n", "712B")
}

func TestAssembleMTypeSPRSelector(t *testing.T) {
	// -6/-7/-8 select TR/SP/PC and are stored as the selector literal's own
	// two's-complement nibble (A/9/8), distinct from every in-range offset.
	checkASM(t, "ld r1, [r2, -6]\n", "612A")
	checkASM(t, "ld r1, [r2, -7]\n", "6129")
	checkASM(t, "ld r1, [r2, -8]\n", "6128")
}

func TestAssembleMTypeOffsetOutOfRangeFails(t *testing.T) {
	checkASMError(t, "ld r1, [r2, 9]\n")
}

func TestAssembleBranchNegativeRelativeOffset(t *testing.T) {
	// br -2 -> relative (signed literal), two's-complement byte 0xFE.
	checkASM(t, "br -2\n", "80FE")
}

func TestAssembleBranchUnsignedImmediateIsAbsolute(t *testing.T) {
	// br 2 -> unsigned literal, absolute addressing (abs bit set).
	checkASM(t, "br 2\n", "8802")
}

func TestAssembleBranchRegisterForm(t *testing.T) {
	// br r3, r4 -> abs=1, cond=AL(0), rs_low=r4 in [7:4], rs_high=r3 in [3:0]
	checkASM(t, "br r3, r4\n", "9843")
}

func TestAssemblePushPop(t *testing.T) {
	checkASM(t, "push r5\npop r6\n", "A005A106")
}

func TestAssemblePopR0Fails(t *testing.T) {
	checkASMError(t, "pop r0\n")
}

func TestAssembleSubspAddspImmediateAndRegister(t *testing.T) {
	checkASM(t, "subsp 4\naddsp r2\n", "A204A302")
}

func TestAssemblePeekPoke(t *testing.T) {
	checkASM(t, "peek r1, 0x10\npoke r2, 0x20\n", "B110C220")
}

func TestAssemblePeekR0Fails(t *testing.T) {
	checkASMError(t, "peek r0, 0x10\n")
}

func TestAssembleXType(t *testing.T) {
	checkASM(t, "sysc 5\nhalt\n", "D005D200")
}

func TestAssembleSectionSwitching(t *testing.T) {
	file, err := Assemble(".data\n.byte 9\n.text\nnop\n", "test.asm")
	if !assert.NoError(t, err) {
		return
	}
	assert.Equal(t, []byte{9}, file.Sections[".data"])
	assert.Equal(t, []byte{0, 0}, file.Sections[".text"])
}

func TestAssembleDuplicateLabelFails(t *testing.T) {
	checkASMError(t, "x:\nx:\nnop\n")
}

func TestAssembleUnknownMnemonicFails(t *testing.T) {
	checkASMError(t, "frobnicate r1, r2\n")
}

func TestAssembleImmediateOverflowFails(t *testing.T) {
	checkASMError(t, "ldi r1, 0x100\n")
}

func TestAssembleBranchRelativeOffsetOutOfRangeFails(t *testing.T) {
	checkASMError(t, "br +200\n")
	checkASMError(t, "br -200\n")
}
