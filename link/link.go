// Package link implements the Atlas-8 linker: it merges the sections of
// an ordered list of assembled object files, builds a global symbol
// table, patches every relocation, and hands the merged bytes to an
// output writer (spec §4.5).
package link

import (
	"fmt"
	"sort"

	"github.com/atlas8/atlasasm/obj"
)

// LinkErrorKind classifies why linking failed, per spec §7.
type LinkErrorKind int

const (
	LEDuplicateSymbol LinkErrorKind = iota
	LEUnresolvedSymbol
	LEImmediateOverflow
	LERelocationOutOfBounds
)

func (k LinkErrorKind) String() string {
	switch k {
	case LEDuplicateSymbol:
		return "duplicate global symbol"
	case LEUnresolvedSymbol:
		return "unresolved symbol"
	case LEImmediateOverflow:
		return "immediate overflow"
	case LERelocationOutOfBounds:
		return "relocation points outside its section"
	default:
		return "link error"
	}
}

// LinkError reports a linker failure, identified by the file and symbol
// involved where applicable (spec §7).
type LinkError struct {
	Kind        LinkErrorKind
	Name        string
	FileA, FileB string
	Value       int32
}

func (e *LinkError) Error() string {
	switch e.Kind {
	case LEDuplicateSymbol:
		return fmt.Sprintf("%s: %q defined in %s and %s", e.Kind, e.Name, e.FileA, e.FileB)
	case LEUnresolvedSymbol:
		return fmt.Sprintf("%s: %q referenced in %s", e.Kind, e.Name, e.FileA)
	case LEImmediateOverflow:
		return fmt.Sprintf("%s: %q resolves to 0x%x", e.Kind, e.Name, e.Value)
	default:
		return e.Kind.String()
	}
}

// Input pairs an object file with a name used for diagnostics (typically
// the path it was read from).
type Input struct {
	Name string
	File *obj.File
}

// globalSym is an entry in the linker's merged global symbol table: a
// fully resolved, section-relative-no-more address.
type globalSym struct {
	address    int32
	definedIn  string
}

// Context carries all of the linker's working state through its stages.
// Exposed as a type (rather than kept as locals within one function) so
// each stage can be tested independently, matching the pattern the
// reference linker's own context struct uses.
type Context struct {
	Inputs []Input

	MergedSections map[string][]byte
	SectionOrder   []string
	sectionBase    map[string]map[string]uint32 // [file][section] -> base offset

	Globals map[string]globalSym
	locals  map[string]map[string]obj.Symbol // [file][name] -> symbol, Local only
}

// NewContext builds a Context over inputs, ready to run through
// mergeSections, buildGlobalSymbolTable, and applyRelocations in order.
func NewContext(inputs []Input) *Context {
	return &Context{
		Inputs:         inputs,
		MergedSections: make(map[string][]byte),
		sectionBase:    make(map[string]map[string]uint32),
		Globals:        make(map[string]globalSym),
		locals:         make(map[string]map[string]obj.Symbol),
	}
}

// Link runs every stage and returns the final merged, patched byte
// stream in output order (spec §4.5's "Emit output").
func Link(inputs []Input) ([]byte, error) {
	ctx := NewContext(inputs)
	ctx.mergeSections()
	if err := ctx.buildGlobalSymbolTable(); err != nil {
		return nil, err
	}
	if err := ctx.applyRelocations(); err != nil {
		return nil, err
	}
	return ctx.emit(), nil
}

// mergeSections appends every input's section bytes, in input order, into
// a growing per-section buffer, recording each file's base offset within
// that section as it goes.
func (c *Context) mergeSections() {
	order := []string{}
	seen := map[string]bool{}
	note := func(name string) {
		if !seen[name] {
			seen[name] = true
			order = append(order, name)
		}
	}

	for _, in := range c.Inputs {
		c.sectionBase[in.Name] = make(map[string]uint32)
		for _, name := range in.File.SectionOrder {
			note(name)
			data := in.File.Sections[name]
			c.sectionBase[in.Name][name] = uint32(len(c.MergedSections[name]))
			c.MergedSections[name] = append(c.MergedSections[name], data...)
		}
	}
	c.SectionOrder = order
}

// buildGlobalSymbolTable implements spec §4.5's "Build global symbol
// table" stage: imports are skipped, `.abs` constants register at their
// literal value, defined labels register at their merged address, and a
// Global name defined in two files aborts with DuplicateSymbol.
func (c *Context) buildGlobalSymbolTable() error {
	definedBy := make(map[string]string)

	for _, in := range c.Inputs {
		c.locals[in.Name] = make(map[string]obj.Symbol)
		for _, sym := range in.File.Symbols {
			if !sym.HasSection {
				continue // import: undefined here
			}
			c.locals[in.Name][sym.Name] = sym

			var address int32
			if sym.Section == ".abs" {
				address = int32(sym.Value)
			} else {
				address = int32(c.sectionBase[in.Name][sym.Section] + sym.Value)
			}

			if sym.Binding != obj.Global {
				continue
			}

			if prevFile, exists := definedBy[sym.Name]; exists {
				return &LinkError{Kind: LEDuplicateSymbol, Name: sym.Name, FileA: prevFile, FileB: in.Name}
			}
			definedBy[sym.Name] = in.Name
			c.Globals[sym.Name] = globalSym{address: address, definedIn: in.Name}
		}
	}
	return nil
}

// applyRelocations implements spec §4.5's "Apply relocations" stage.
func (c *Context) applyRelocations() error {
	for _, in := range c.Inputs {
		for _, rel := range in.File.Relocations {
			base, ok := c.sectionBase[in.Name][rel.Section]
			if !ok {
				return &LinkError{Kind: LERelocationOutOfBounds, Name: rel.Symbol, FileA: in.Name}
			}
			patchOffset := base + rel.Offset

			address, err := c.resolveSymbol(in.Name, rel.Symbol)
			if err != nil {
				return err
			}

			final := address + rel.Addend
			if final < 0 || final > 0xff {
				return &LinkError{Kind: LEImmediateOverflow, Name: rel.Symbol, FileA: in.Name, Value: final}
			}

			merged := c.MergedSections[rel.Section]
			if int(patchOffset)+1 >= len(merged) {
				return &LinkError{Kind: LERelocationOutOfBounds, Name: rel.Symbol, FileA: in.Name}
			}
			merged[patchOffset+1] = byte(final)
		}
	}
	return nil
}

// resolveSymbol implements the Local-before-Global search spec §4.5 and
// §9 require: a relocation is resolved against its own file's Local
// symbols first, so same-named Local symbols in different files never
// collide, and only falls through to the global table afterward.
func (c *Context) resolveSymbol(file, name string) (int32, error) {
	if sym, ok := c.locals[file][name]; ok && sym.Binding != obj.Global {
		if sym.Section == ".abs" {
			return int32(sym.Value), nil
		}
		return int32(c.sectionBase[file][sym.Section] + sym.Value), nil
	}
	if g, ok := c.Globals[name]; ok {
		return g.address, nil
	}
	return 0, &LinkError{Kind: LEUnresolvedSymbol, Name: name, FileA: file}
}

// emit implements spec §4.5's "Emit output": `.text` first, then every
// remaining section in lexicographic order.
func (c *Context) emit() []byte {
	rest := make([]string, 0, len(c.SectionOrder))
	for _, name := range c.SectionOrder {
		if name != ".text" {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)

	order := rest
	if _, ok := c.MergedSections[".text"]; ok {
		order = append([]string{".text"}, rest...)
	}

	var out []byte
	for _, name := range order {
		out = append(out, c.MergedSections[name]...)
	}
	return out
}
