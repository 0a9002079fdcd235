package link

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/atlas8/atlasasm/asm"
	"github.com/atlas8/atlasasm/obj"
)

func mustAssemble(t *testing.T, source, name string) *obj.File {
	t.Helper()
	f, err := asm.Assemble(source, name)
	if !assert.NoError(t, err) {
		t.FailNow()
	}
	return f
}

func TestLinkCrossFileBranch(t *testing.T) {
	// main.o's .text is 0x86 bytes before math.o's .text begins; pad it
	// out with .byte filler standing in for a longer real body.
	filler := ""
	for i := 0; i < 0x84; i++ {
		filler += ".byte 0\n"
	}
	main := mustAssemble(t, ".import multiply\n"+filler+"br multiply\n", "main.asm")
	math := mustAssemble(t, ".export multiply\nmultiply: add r1, r2\n", "math.asm")

	assert.Equal(t, 0x86, len(main.Sections[".text"]))

	out, err := Link([]Input{{Name: "main.o", File: main}, {Name: "math.o", File: math}})
	if !assert.NoError(t, err) {
		return
	}

	assert.Equal(t, byte(0x88), out[0x84])
	assert.Equal(t, byte(0x86), out[0x85])
}

func TestLinkDuplicateGlobalFails(t *testing.T) {
	a := mustAssemble(t, ".export foo\nfoo: nop\n", "a.asm")
	b := mustAssemble(t, ".export foo\nfoo: nop\n", "b.asm")

	_, err := Link([]Input{{Name: "a.o", File: a}, {Name: "b.o", File: b}})
	if assert.Error(t, err) {
		var linkErr *LinkError
		assert.ErrorAs(t, err, &linkErr)
		assert.Equal(t, LEDuplicateSymbol, linkErr.Kind)
	}
}

func TestLinkImmediateOverflowFails(t *testing.T) {
	filler := ""
	for i := 0; i < 0x150; i++ {
		filler += ".byte 0\n"
	}
	main := mustAssemble(t, ".import far\nbr far\n", "main.asm")
	far := mustAssemble(t, filler+".export far\nfar: nop\n", "far.asm")

	_, err := Link([]Input{{Name: "main.o", File: main}, {Name: "far.o", File: far}})
	if assert.Error(t, err) {
		var linkErr *LinkError
		assert.ErrorAs(t, err, &linkErr)
		assert.Equal(t, LEImmediateOverflow, linkErr.Kind)
	}
}

func TestLinkUnresolvedSymbolFails(t *testing.T) {
	main := mustAssemble(t, ".import ghost\nbr ghost\n", "main.asm")

	_, err := Link([]Input{{Name: "main.o", File: main}})
	if assert.Error(t, err) {
		var linkErr *LinkError
		assert.ErrorAs(t, err, &linkErr)
		assert.Equal(t, LEUnresolvedSymbol, linkErr.Kind)
	}
}

func TestLinkLocalSymbolsDoNotCollideAcrossFiles(t *testing.T) {
	// Each file gives its own "loop" a different local offset; a correct
	// implementation resolves each "br loop" against its own file's
	// symbol, never the other file's, even though both share the name
	// and neither is exported.
	a := mustAssemble(t, "br loop\nloop: nop\n", "a.asm") // loop @ offset 2
	b := mustAssemble(t, "loop: nop\nbr loop\n", "b.asm") // loop @ offset 0

	out, err := Link([]Input{{Name: "a.o", File: a}, {Name: "b.o", File: b}})
	if !assert.NoError(t, err) {
		return
	}
	assert.Equal(t, []byte{0x88, 0x02, 0x00, 0x00, 0x00, 0x00, 0x88, 0x00}, out)
}

func TestLinkSectionOrderTextFirstThenLexicographic(t *testing.T) {
	f := mustAssemble(t, "nop\n.section zzz\n.byte 1\n.section aaa\n.byte 2\n", "x.asm")
	out, err := Link([]Input{{Name: "x.o", File: f}})
	if !assert.NoError(t, err) {
		return
	}
	// .text (nop -> 2 bytes) first, then .aaa, then .zzz, regardless of
	// the order the sections were first written in the source.
	assert.Equal(t, []byte{0, 0, 2, 1}, out)
}
