// Command atlas is the assembler and linker front end for Atlas-8 object
// files: it assembles .asm sources into .o files and links .o files into
// a raw binary or Intel HEX image.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/beevik/cmd"

	"github.com/atlas8/atlasasm/asm"
	"github.com/atlas8/atlasasm/link"
	"github.com/atlas8/atlasasm/obj"
	"github.com/atlas8/atlasasm/output"
)

var cmds *cmd.Tree

func init() {
	root := cmd.NewTree(cmd.TreeDescriptor{Name: "atlas"})
	root.AddCommand(cmd.CommandDescriptor{
		Name:        "asm",
		Brief:       "Assemble a source file into an object file",
		Description: "Assemble a single Atlas-8 source file and write the resulting object file to disk.",
		Usage:       "asm <input.asm> <output.o>",
		Data:        cmdAsm,
	})
	root.AddCommand(cmd.CommandDescriptor{
		Name:        "ld",
		Brief:       "Link object files into a binary or Intel HEX image",
		Description: "Link one or more Atlas-8 object files and write the linked image to disk." +
			" The output format is chosen by the -o file's extension (.hex selects Intel HEX, anything else is raw binary).",
		Usage: "ld <input.o>... -o <output.{bin,hex}>",
		Data:  cmdLd,
	})
	cmds = root
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	node, args, err := cmds.Lookup(strings.Join(os.Args[1:], " "))
	switch {
	case err == cmd.ErrNotFound:
		fmt.Fprintf(os.Stderr, "ERROR: unknown command %q\n", os.Args[1])
		printUsage()
		os.Exit(1)
	case err == cmd.ErrAmbiguous:
		fmt.Fprintf(os.Stderr, "ERROR: ambiguous command %q\n", os.Args[1])
		os.Exit(1)
	case err != nil:
		exitOnError(err)
	}

	command := node.(*cmd.Command)
	handler := command.Data.(func([]string, string) error)
	if err := handler(args, command.Usage); err != nil {
		exitOnError(err)
	}
}

func cmdAsm(args []string, usage string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: %s", usage)
	}
	inputPath, outputPath := args[0], args[1]

	source, err := os.ReadFile(inputPath)
	if err != nil {
		return fmt.Errorf("reading %s: %w", inputPath, err)
	}

	file, err := asm.Assemble(string(source), inputPath)
	if err != nil {
		return err
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", outputPath, err)
	}
	defer out.Close()

	if _, err := file.WriteTo(out); err != nil {
		return fmt.Errorf("writing %s: %w", outputPath, err)
	}
	return nil
}

func cmdLd(args []string, usage string) error {
	var inputPaths []string
	var outputPath string
	for i := 0; i < len(args); i++ {
		if args[i] == "-o" {
			if i+1 >= len(args) {
				return fmt.Errorf("usage: %s", usage)
			}
			outputPath = args[i+1]
			i++
			continue
		}
		inputPaths = append(inputPaths, args[i])
	}
	if len(inputPaths) == 0 || outputPath == "" {
		return fmt.Errorf("usage: %s", usage)
	}

	var inputs []link.Input
	for _, path := range inputPaths {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("opening %s: %w", path, err)
		}
		objFile := obj.New()
		_, err = objFile.ReadFrom(f)
		f.Close()
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		inputs = append(inputs, link.Input{Name: path, File: objFile})
	}

	image, err := link.Link(inputs)
	if err != nil {
		return err
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", outputPath, err)
	}
	defer out.Close()

	format := output.FormatFromExtension(extOf(outputPath))
	if err := output.Write(out, image, format); err != nil {
		return fmt.Errorf("writing %s: %w", outputPath, err)
	}
	return nil
}

func extOf(path string) string {
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		return path[i:]
	}
	return ""
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "Usage: atlas asm <input.asm> <output.o>")
	fmt.Fprintln(os.Stderr, "       atlas ld <input.o>... -o <output.{bin,hex}>")
}

func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
	os.Exit(1)
}
