package asm

import "github.com/atlas8/atlasasm/obj"

// AssembleError wraps whichever phase failed, along with the source name
// it failed against, so a caller driving multiple files can report which
// one broke.
type AssembleError struct {
	Source string
	Err    error
}

func (e *AssembleError) Error() string {
	return e.Source + ": " + e.Err.Error()
}

func (e *AssembleError) Unwrap() error { return e.Err }

// Assemble runs the full lex -> parse -> encode pipeline over sourceText
// and returns the resulting object file, or the first error any phase
// produced (spec §6's assembler entry point).
func Assemble(sourceText, sourceName string) (*obj.File, error) {
	result, err := NewParser(sourceText).Parse()
	if err != nil {
		return nil, &AssembleError{Source: sourceName, Err: err}
	}

	file, err := NewEncoder(result).Encode()
	if err != nil {
		return nil, &AssembleError{Source: sourceName, Err: err}
	}

	return file, nil
}
