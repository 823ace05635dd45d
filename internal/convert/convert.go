// Package convert wires the ELF reader, consolidator, intermediate ELF
// writer and LE encoder into the single-file conversion pipeline spec §5
// describes: read, consolidate, re-materialize, fix up, write.
package convert

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ceionia/elf2le/internal/align"
	"github.com/ceionia/elf2le/internal/consolidate"
	"github.com/ceionia/elf2le/internal/elfwrite"
	"github.com/ceionia/elf2le/internal/lefixup"
	"github.com/ceionia/elf2le/internal/lestub"
	"github.com/ceionia/elf2le/internal/lewrite"
	"github.com/ceionia/elf2le/internal/objfile"
)

// Options configures one conversion run.
type Options struct {
	// OutDir is the directory the intermediate ELF and final executable
	// are written to. Defaults to the current directory.
	OutDir string

	// StubProfile names the embedded LE stub template to use.
	StubProfile string

	// LoaderVersion, if set, is checked against the stub profile's
	// version constraint before conversion proceeds.
	LoaderVersion string

	// Strict promotes unsupported or unresolvable relocations from a
	// warning to a fatal error.
	Strict bool
}

// Result reports what a conversion produced, for CLI output.
type Result struct {
	IntermediatePath string
	ExecutablePath   string
	Stats            *lewrite.Stats
}

// File converts the ELF relocatable object at inputPath into an LE
// executable, writing "<base>.elf" and "<base>.exe" into opts.OutDir, where
// <base> is inputPath's file name without its extension. The fixed names
// "new.elf" and "a.exe" are not used.
func File(logger *slog.Logger, inputPath string, opts Options) (*Result, error) {
	outDir := opts.OutDir
	if outDir == "" {
		outDir = "."
	}

	base := baseNameFor(inputPath)
	intermediatePath := filepath.Join(outDir, base+".elf")
	executablePath := filepath.Join(outDir, base+".exe")

	input, err := os.Open(inputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open input file: %w", err)
	}
	defer input.Close()

	original, err := objfile.Read(input)
	if err != nil {
		return nil, fmt.Errorf("failed to read ELF input: %w", err)
	}

	logger.Debug("parsed input object", "sections", len(original.Sections), "symbols", len(original.Symbols))

	text, data, layout := consolidate.Sections(logger, original)
	symbols := consolidate.RelocateSymbols(logger, original, layout)
	relocations, skipped := consolidate.RewriteRelocations(logger, original, layout, symbols)

	if opts.Strict && skipped > 0 {
		return nil, fmt.Errorf("strict mode: %d relocation(s) were unsupported or unresolvable", skipped)
	}

	if err := writeIntermediate(intermediatePath, text, data, symbols, relocations); err != nil {
		return nil, err
	}

	logger.Info("wrote intermediate ELF", "path", intermediatePath)

	intermediateFile, err := os.Open(intermediatePath)
	if err != nil {
		return nil, fmt.Errorf("failed to reopen intermediate ELF: %w", err)
	}
	defer intermediateFile.Close()

	intermediate, err := objfile.Read(intermediateFile)
	if err != nil {
		return nil, fmt.Errorf("failed to re-read intermediate ELF: %w", err)
	}

	textSection, ok := intermediate.SectionByName(".text")
	if !ok {
		return nil, fmt.Errorf("intermediate ELF has no .text section")
	}

	dataSection, ok := intermediate.SectionByName(".data")
	if !ok {
		return nil, fmt.Errorf("intermediate ELF has no .data section")
	}

	textPages := pagesFor(uint64(len(textSection.Data)))
	dataPages := pagesFor(uint64(len(dataSection.Data)))

	logger.Info("laid out LE objects",
		"textSize", len(textSection.Data), "textPages", textPages,
		"dataSize", len(dataSection.Data), "dataPages", dataPages,
	)

	fixups, err := lefixup.Encode(logger, intermediate, textPages, dataPages)
	if err != nil {
		return nil, fmt.Errorf("failed to encode fixups: %w", err)
	}

	stub, err := lestub.Load(opts.StubProfile, opts.LoaderVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to load stub profile %q: %w", opts.StubProfile, err)
	}

	out, err := os.OpenFile(executablePath, os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create output executable: %w", err)
	}
	defer out.Close()

	stats, err := lewrite.WriteExecutable(logger, out, stub, textPages, dataPages, fixups, textSection.Data, dataSection.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to write LE executable: %w", err)
	}

	return &Result{
		IntermediatePath: intermediatePath,
		ExecutablePath:   executablePath,
		Stats:            stats,
	}, nil
}

func writeIntermediate(path string, text, data []byte, symbols map[string]*consolidate.Symbol, relocations []consolidate.Relocation) error {
	out, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create intermediate ELF: %w", err)
	}
	defer out.Close()

	if err := elfwrite.Write(out, text, data, symbols, relocations); err != nil {
		return fmt.Errorf("failed to write intermediate ELF: %w", err)
	}

	return nil
}

func pagesFor(size uint64) uint32 {
	return uint32(align.Address(size, 0x1000) / 0x1000)
}

func baseNameFor(inputPath string) string {
	name := filepath.Base(inputPath)
	ext := filepath.Ext(name)

	return name[:len(name)-len(ext)]
}
