// Package lefixup builds the LE fixup page table and fixup record stream
// (C5) from the relocations of a re-parsed consolidated object: one fixup
// record per relocation, plus a page-indexed offset table a loader walks
// to find the records for a given page.
package lefixup

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"log/slog"
	"slices"

	"github.com/ceionia/elf2le/internal/iometa"
	"github.com/ceionia/elf2le/internal/objfile"
	"github.com/lunixbochs/struc"
)

const pageSize = 0x1000

// Fixup record types. A record's low nibble says how the target address is
// recovered; the loader applies it identically for Relative and
// PltRelative sources, since both are encoded as a 32-bit code-segment
// reference once fixed up.
const (
	recordTypeAbsolute = 0x07
	recordTypeRelative = 0x08

	// flagTargetOffset32 marks that a record's target offset field is
	// 32-bit rather than 16-bit. The loader needs this whenever the target
	// symbol's address doesn't fit in 16 bits.
	flagTargetOffset32 = 0x10

	dwordThreshold = 0x10000
)

// Result is the encoded fixup section: the page offset table (one entry
// per object page, plus an initial 0 and a final terminator) and the flat
// fixup record stream it indexes into.
type Result struct {
	PageOffsets []uint32
	Records     []byte
}

// Encode walks the relocations attached to f's ".text" and ".data"
// sections, in source-offset order, and produces the fixup page table and
// record stream a LE loader expects. numTextPages and numDataPages are the
// page counts of the corresponding LE objects.
func Encode(logger *slog.Logger, f *objfile.File, numTextPages, numDataPages uint32) (*Result, error) {
	text, ok := f.SectionByName(".text")
	if !ok {
		return nil, fmt.Errorf("consolidated object has no .text section")
	}

	data, ok := f.SectionByName(".data")
	if !ok {
		return nil, fmt.Errorf("consolidated object has no .data section")
	}

	var records bytes.Buffer
	recordIdx := uint32(0)
	pageOffsets := []uint32{0}

	if err := encodeSection(logger, f, text, numTextPages, &records, &recordIdx, &pageOffsets); err != nil {
		return nil, fmt.Errorf("failed to encode .text relocations: %w", err)
	}

	if err := encodeSection(logger, f, data, numDataPages, &records, &recordIdx, &pageOffsets); err != nil {
		return nil, fmt.Errorf("failed to encode .data relocations: %w", err)
	}

	pageOffsets = append(pageOffsets, recordIdx)

	logger.Debug("encoded fixup records", "bytes", recordIdx)

	return &Result{PageOffsets: pageOffsets, Records: records.Bytes()}, nil
}

func encodeSection(logger *slog.Logger, f *objfile.File, section *objfile.Section, numPages uint32, records *bytes.Buffer, recordIdx *uint32, pageOffsets *[]uint32) error {
	relocs := sortedBySourceOffset(section.Relocations)
	currentPage := uint32(0)

	for _, reloc := range relocs {
		if reloc.TargetSymbolIndex >= len(f.Symbols) {
			logger.Warn("skipping relocation with out-of-range symbol index", "section", section.Name)
			continue
		}

		symbol := f.Symbols[reloc.TargetSymbolIndex]
		if !symbol.HasSection {
			logger.Warn("skipping relocation targeting a symbol with no resolvable section",
				"section", section.Name, "symbol", symbol.Name)
			continue
		}

		targetObject := uint8(1)
		if symbol.SectionIndex != 1 {
			targetObject = 2
		}

		recordType, ok := recordTypeFor(reloc.Kind)
		if !ok {
			logger.Warn("skipping relocation of unrecognized kind", "section", section.Name)
			continue
		}

		dwordOffset := symbol.Value >= dwordThreshold

		addend := uint32(0)
		if reloc.HasImplicitAddend && reloc.Kind == objfile.RelocAbsolute {
			end := int(reloc.SourceOffset) + 4
			if end > len(section.Data) {
				return fmt.Errorf("relocation at offset 0x%x reads past end of %s", reloc.SourceOffset, section.Name)
			}

			addend = binary.LittleEndian.Uint32(section.Data[reloc.SourceOffset:end])
		}

		targetOffset := uint32(symbol.Value) + addend

		page := uint32(reloc.SourceOffset) / pageSize
		srcInPage := uint16(uint32(reloc.SourceOffset) % pageSize)

		if err := writeRecord(records, recordType, dwordOffset, srcInPage, targetObject, targetOffset); err != nil {
			return fmt.Errorf("failed to write fixup record: %w", err)
		}

		for page > currentPage {
			*pageOffsets = append(*pageOffsets, *recordIdx)
			currentPage++

			logger.Debug("fixup page rollover", "recordOffset", *recordIdx, "page", currentPage)
		}

		*recordIdx += 7
		if dwordOffset {
			*recordIdx += 2
		}
	}

	for currentPage < numPages {
		*pageOffsets = append(*pageOffsets, *recordIdx)
		currentPage++
	}

	return nil
}

func recordTypeFor(kind objfile.RelocationKind) (byte, bool) {
	switch kind {
	case objfile.RelocAbsolute:
		return recordTypeAbsolute, true
	case objfile.RelocRelative, objfile.RelocPLTRelative:
		return recordTypeRelative, true
	default:
		return 0, false
	}
}

func writeRecord(w *bytes.Buffer, recordType byte, dwordOffset bool, srcInPage uint16, targetObject uint8, targetOffset uint32) error {
	cw := &iometa.CountingWriter{Writer: w}
	opts := &struc.Options{Order: binary.LittleEndian}

	flags := byte(0)
	if dwordOffset {
		flags = flagTargetOffset32
	}

	if err := struc.PackWithOptions(cw, recordType, opts); err != nil {
		return err
	}

	if err := struc.PackWithOptions(cw, flags, opts); err != nil {
		return err
	}

	if err := struc.PackWithOptions(cw, srcInPage, opts); err != nil {
		return err
	}

	if err := struc.PackWithOptions(cw, targetObject, opts); err != nil {
		return err
	}

	if dwordOffset {
		return struc.PackWithOptions(cw, targetOffset, opts)
	}

	return struc.PackWithOptions(cw, uint16(targetOffset), opts)
}

func sortedBySourceOffset(relocs []objfile.Relocation) []objfile.Relocation {
	out := make([]objfile.Relocation, len(relocs))
	copy(out, relocs)

	slices.SortFunc(out, func(a, b objfile.Relocation) int {
		switch {
		case a.SourceOffset < b.SourceOffset:
			return -1
		case a.SourceOffset > b.SourceOffset:
			return 1
		default:
			return 0
		}
	})

	return out
}
