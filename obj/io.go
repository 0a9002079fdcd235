package obj

import (
	"bytes"
	"encoding/binary"
	"io"
)

var magic = [4]byte{'A', 'T', 'O', 'B'}

// WriteTo serializes f as an ATOB stream, per spec §4.4. Every multi-byte
// integer is little-endian, distinct from the big-endian instruction
// words the sections carry.
func (f *File) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer

	buf.Write(magic[:])
	writeU32(&buf, f.Version)
	writeU32(&buf, uint32(len(f.SectionOrder)))
	writeU32(&buf, uint32(len(f.Symbols)))
	writeU32(&buf, uint32(len(f.Relocations)))

	for _, name := range f.SectionOrder {
		data := f.Sections[name]
		writeString(&buf, name)
		writeU32(&buf, 0) // start, reserved
		writeU32(&buf, uint32(len(data)))
		buf.Write(data)
	}

	for _, sym := range f.Symbols {
		writeString(&buf, sym.Name)
		writeU32(&buf, sym.Value)
		if sym.HasSection {
			buf.WriteByte(1)
			writeString(&buf, sym.Section)
		} else {
			buf.WriteByte(0)
		}
		buf.WriteByte(byte(sym.Binding))
	}

	for _, rel := range f.Relocations {
		writeU32(&buf, rel.Offset)
		writeString(&buf, rel.Symbol)
		writeU32(&buf, uint32(rel.Addend))
		writeString(&buf, rel.Section)
	}

	n, err := w.Write(buf.Bytes())
	return int64(n), err
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeString(buf *bytes.Buffer, s string) {
	writeU32(buf, uint32(len(s)))
	buf.WriteString(s)
}

// ReadFrom deserializes an ATOB stream into f, replacing its contents.
func (f *File) ReadFrom(r io.Reader) (int64, error) {
	br := &byteReader{r: r}

	var gotMagic [4]byte
	if !br.read(gotMagic[:]) {
		return br.n, &IoError{Kind: Truncated, Detail: "magic"}
	}
	if gotMagic != magic {
		return br.n, &IoError{Kind: BadMagic}
	}

	version, ok := br.u32()
	if !ok {
		return br.n, &IoError{Kind: Truncated, Detail: "version"}
	}
	if version != CurrentVersion {
		return br.n, &IoError{Kind: UnsupportedVersion}
	}

	sectionCount, ok := br.u32()
	if !ok {
		return br.n, &IoError{Kind: Truncated, Detail: "section_count"}
	}
	symbolCount, ok := br.u32()
	if !ok {
		return br.n, &IoError{Kind: Truncated, Detail: "symbol_count"}
	}
	relocationCount, ok := br.u32()
	if !ok {
		return br.n, &IoError{Kind: Truncated, Detail: "relocation_count"}
	}

	sectionOrder := make([]string, 0, sectionCount)
	sections := make(map[string][]byte, sectionCount)
	for i := uint32(0); i < sectionCount; i++ {
		name, ok := br.str()
		if !ok {
			return br.n, &IoError{Kind: Truncated, Detail: "section name"}
		}
		if _, ok := br.u32(); !ok { // start, reserved
			return br.n, &IoError{Kind: Truncated, Detail: "section start"}
		}
		dataLen, ok := br.u32()
		if !ok {
			return br.n, &IoError{Kind: Truncated, Detail: "section data_length"}
		}
		data := make([]byte, dataLen)
		if !br.read(data) {
			return br.n, &IoError{Kind: Truncated, Detail: "section data"}
		}
		sectionOrder = append(sectionOrder, name)
		sections[name] = data
	}

	symbols := make([]Symbol, 0, symbolCount)
	for i := uint32(0); i < symbolCount; i++ {
		name, ok := br.str()
		if !ok {
			return br.n, &IoError{Kind: Truncated, Detail: "symbol name"}
		}
		value, ok := br.u32()
		if !ok {
			return br.n, &IoError{Kind: Truncated, Detail: "symbol value"}
		}
		hasSection, ok := br.u8()
		if !ok {
			return br.n, &IoError{Kind: Truncated, Detail: "symbol has_section"}
		}
		var section string
		if hasSection != 0 {
			section, ok = br.str()
			if !ok {
				return br.n, &IoError{Kind: Truncated, Detail: "symbol section"}
			}
		}
		binding, ok := br.u8()
		if !ok {
			return br.n, &IoError{Kind: Truncated, Detail: "symbol binding"}
		}
		symbols = append(symbols, Symbol{
			Name:       name,
			Value:      value,
			HasSection: hasSection != 0,
			Section:    section,
			Binding:    Binding(binding),
		})
	}

	relocations := make([]Relocation, 0, relocationCount)
	for i := uint32(0); i < relocationCount; i++ {
		offset, ok := br.u32()
		if !ok {
			return br.n, &IoError{Kind: Truncated, Detail: "relocation offset"}
		}
		symbol, ok := br.str()
		if !ok {
			return br.n, &IoError{Kind: Truncated, Detail: "relocation symbol"}
		}
		addend, ok := br.u32()
		if !ok {
			return br.n, &IoError{Kind: Truncated, Detail: "relocation addend"}
		}
		section, ok := br.str()
		if !ok {
			return br.n, &IoError{Kind: Truncated, Detail: "relocation section"}
		}
		relocations = append(relocations, Relocation{
			Offset:  offset,
			Symbol:  symbol,
			Addend:  int32(addend),
			Section: section,
		})
	}

	f.Version = version
	f.SectionOrder = sectionOrder
	f.Sections = sections
	f.Symbols = symbols
	f.Relocations = relocations
	return br.n, nil
}

// byteReader is a small cursor over an io.Reader that tracks how many
// bytes it has consumed, so ReadFrom can report that count the way
// io.ReaderFrom implementations conventionally do.
type byteReader struct {
	r io.Reader
	n int64
}

func (b *byteReader) read(p []byte) bool {
	if len(p) == 0 {
		return true
	}
	n, err := io.ReadFull(b.r, p)
	b.n += int64(n)
	return err == nil
}

func (b *byteReader) u8() (byte, bool) {
	var buf [1]byte
	if !b.read(buf[:]) {
		return 0, false
	}
	return buf[0], true
}

func (b *byteReader) u32() (uint32, bool) {
	var buf [4]byte
	if !b.read(buf[:]) {
		return 0, false
	}
	return binary.LittleEndian.Uint32(buf[:]), true
}

func (b *byteReader) str() (string, bool) {
	n, ok := b.u32()
	if !ok {
		return "", false
	}
	data := make([]byte, n)
	if !b.read(data) {
		return "", false
	}
	return string(data), true
}
