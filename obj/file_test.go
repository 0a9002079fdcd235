package obj

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func sampleFile() *File {
	f := New()
	f.SectionOrder = []string{".text", ".data"}
	f.Sections[".text"] = []byte{0x88, 0x00, 0x21, 0x01}
	f.Sections[".data"] = []byte{0xde, 0xad}
	f.Symbols = []Symbol{
		{Name: "multiply", HasSection: false, Binding: Global},
		{Name: "loop", Value: 4, HasSection: true, Section: ".text", Binding: Local},
		{Name: "PORT", Value: 0x80, HasSection: true, Section: ".abs", Binding: Global},
	}
	f.Relocations = []Relocation{
		{Offset: 0, Symbol: "multiply", Addend: 0, Section: ".text"},
	}
	return f
}

func TestFileRoundTrip(t *testing.T) {
	want := sampleFile()

	var buf bytes.Buffer
	_, err := want.WriteTo(&buf)
	assert.NoError(t, err)

	got := New()
	_, err = got.ReadFrom(&buf)
	assert.NoError(t, err)

	assert.Equal(t, want.Version, got.Version)
	assert.Equal(t, want.SectionOrder, got.SectionOrder)
	assert.Equal(t, want.Sections, got.Sections)
	assert.Equal(t, want.Symbols, got.Symbols)
	assert.Equal(t, want.Relocations, got.Relocations)
}

func TestFileRoundTripEmpty(t *testing.T) {
	want := New()

	var buf bytes.Buffer
	_, err := want.WriteTo(&buf)
	assert.NoError(t, err)

	got := New()
	_, err = got.ReadFrom(&buf)
	assert.NoError(t, err)
	assert.Equal(t, want.Version, got.Version)
	assert.Empty(t, got.SectionOrder)
	assert.Empty(t, got.Symbols)
	assert.Empty(t, got.Relocations)
}

func TestReadFromBadMagic(t *testing.T) {
	buf := bytes.NewBufferString("XXXX")
	var f File
	_, err := f.ReadFrom(buf)
	if assert.Error(t, err) {
		var ioErr *IoError
		assert.ErrorAs(t, err, &ioErr)
		assert.Equal(t, BadMagic, ioErr.Kind)
	}
}

func TestReadFromTruncated(t *testing.T) {
	buf := bytes.NewBufferString("ATOB")
	var f File
	_, err := f.ReadFrom(buf)
	if assert.Error(t, err) {
		var ioErr *IoError
		assert.ErrorAs(t, err, &ioErr)
		assert.Equal(t, Truncated, ioErr.Kind)
	}
}

func TestReadFromUnsupportedVersion(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(magic[:])
	writeU32(&buf, 2)
	writeU32(&buf, 0)
	writeU32(&buf, 0)
	writeU32(&buf, 0)

	var f File
	_, err := f.ReadFrom(&buf)
	if assert.Error(t, err) {
		var ioErr *IoError
		assert.ErrorAs(t, err, &ioErr)
		assert.Equal(t, UnsupportedVersion, ioErr.Kind)
	}
}
