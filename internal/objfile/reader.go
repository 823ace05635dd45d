package objfile

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

var (
	ErrUnsupportedMachine = errors.New("unsupported ELF machine type (only i386 is supported)")
	errBadSymbolIndex     = errors.New("relocation symbol index out of range")
)

// Read parses an i386 ELF relocatable object into the flat objfile model.
func Read(r io.ReaderAt) (*File, error) {
	elfFile, err := elf.NewFile(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ELF file: %w", err)
	}

	if elfFile.Machine != elf.EM_386 {
		return nil, ErrUnsupportedMachine
	}

	sections := make([]*Section, 0, len(elfFile.Sections))
	for index, section := range elfFile.Sections {
		converted, err := convertSection(section, index)
		if err != nil {
			return nil, fmt.Errorf("failed to read section '%s': %w", section.Name, err)
		}

		sections = append(sections, converted)
	}

	symbols, err := convertSymbols(elfFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read symbol table: %w", err)
	}

	if err := attachRelocations(elfFile, sections, symbols); err != nil {
		return nil, fmt.Errorf("failed to read relocations: %w", err)
	}

	return &File{Sections: sections, Symbols: symbols}, nil
}

func convertSection(section *elf.Section, index int) (*Section, error) {
	kind := classifySection(section)

	var data []byte
	if kind != SectionUninitializedData && section.Type == elf.SHT_PROGBITS {
		d, err := section.Data()
		if err != nil {
			return nil, fmt.Errorf("failed to read section data: %w", err)
		}

		data = d
	}

	return &Section{
		Name:      section.Name,
		Kind:      kind,
		Size:      section.Size,
		Data:      data,
		Addralign: section.Addralign,
		Index:     index,
	}, nil
}

func classifySection(section *elf.Section) SectionKind {
	alloc := section.Flags&elf.SHF_ALLOC != 0

	switch {
	case !alloc:
		return SectionOther
	case section.Type == elf.SHT_NOBITS:
		return SectionUninitializedData
	case section.Flags&elf.SHF_EXECINSTR != 0:
		return SectionText
	case section.Flags&elf.SHF_WRITE != 0:
		return SectionData
	case section.Type == elf.SHT_PROGBITS:
		return SectionReadOnlyData
	default:
		return SectionOther
	}
}

func convertSymbols(elfFile *elf.File) ([]*Symbol, error) {
	// elf.File.Symbols() omits the reserved null symbol at index 0, but
	// relocations reference symbols by their raw symbol table index, so
	// keep that index meaningful by reinserting it.
	symbols := []*Symbol{{Name: "", Kind: SymOther}}

	raw, err := elfFile.Symbols()
	if err != nil {
		if errors.Is(err, elf.ErrNoSymbols) {
			return symbols, nil
		}

		return nil, fmt.Errorf("failed to read symbols: %w", err)
	}

	for _, symb := range raw {
		converted := &Symbol{
			Name:  symb.Name,
			Kind:  classifySymbol(symb),
			Value: symb.Value,
			Size:  symb.Size,
		}

		switch symb.Section {
		case elf.SHN_UNDEF:
			// No section; the value is kept as the symbol table records
			// it and the symbol stays undefined.
		case elf.SHN_ABS:
			converted.Absolute = true
		default:
			converted.HasSection = true
			converted.SectionIndex = int(symb.Section)
		}

		symbols = append(symbols, converted)
	}

	return symbols, nil
}

func classifySymbol(symb elf.Symbol) SymbolKind {
	switch elf.ST_TYPE(symb.Info) {
	case elf.STT_FUNC:
		return SymText
	case elf.STT_OBJECT, elf.STT_COMMON, elf.STT_TLS:
		return SymData
	case elf.STT_SECTION:
		return SymSection
	case elf.STT_NOTYPE:
		return SymLabel
	default:
		return SymOther
	}
}

func attachRelocations(elfFile *elf.File, sections []*Section, symbols []*Symbol) error {
	sectionsByIndex := make(map[int]*Section, len(sections))
	for _, s := range sections {
		sectionsByIndex[s.Index] = s
	}

	for _, relSection := range elfFile.Sections {
		if relSection.Type != elf.SHT_REL && relSection.Type != elf.SHT_RELA {
			continue
		}

		target, ok := sectionsByIndex[int(relSection.Info)]
		if !ok {
			continue
		}

		relocs, err := readRelocationEntries(relSection, len(symbols))
		if err != nil {
			return fmt.Errorf("failed to read relocation section '%s': %w", relSection.Name, err)
		}

		target.Relocations = append(target.Relocations, relocs...)
	}

	return nil
}

func readRelocationEntries(section *elf.Section, numSymbols int) ([]Relocation, error) {
	data, err := io.ReadAll(section.Open())
	if err != nil {
		return nil, fmt.Errorf("failed to read relocation section data: %w", err)
	}

	hasAddend := section.Type == elf.SHT_RELA
	entrySize := 8
	if hasAddend {
		entrySize = 12
	}

	if section.Entsize != 0 {
		entrySize = int(section.Entsize)
	}

	numEntries := len(data) / entrySize
	relocs := make([]Relocation, 0, numEntries)

	reader := bytes.NewReader(data)
	for i := 0; i < numEntries; i++ {
		var offset uint64
		var info uint32
		var addend int64

		if hasAddend {
			var entry elf.Rela32
			if err := binary.Read(reader, binary.LittleEndian, &entry); err != nil {
				return nil, fmt.Errorf("failed to decode Rela32 entry %d: %w", i, err)
			}

			offset = uint64(entry.Off)
			info = entry.Info
			addend = int64(entry.Addend)
		} else {
			var entry elf.Rel32
			if err := binary.Read(reader, binary.LittleEndian, &entry); err != nil {
				return nil, fmt.Errorf("failed to decode Rel32 entry %d: %w", i, err)
			}

			offset = uint64(entry.Off)
			info = entry.Info
		}

		symbolIndex := int(elf.R_SYM32(info))
		if symbolIndex >= numSymbols {
			return nil, fmt.Errorf("%w: %d >= %d", errBadSymbolIndex, symbolIndex, numSymbols)
		}

		kind, size := classifyRelocationType(elf.R_TYPE32(info))

		relocs = append(relocs, Relocation{
			SourceOffset:      offset,
			Kind:              kind,
			Size:              size,
			HasImplicitAddend: !hasAddend,
			Addend:            addend,
			TargetSymbolIndex: symbolIndex,
		})
	}

	return relocs, nil
}

func classifyRelocationType(typ uint32) (RelocationKind, uint8) {
	switch elf.R_386(typ) {
	case elf.R_386_32:
		return RelocAbsolute, 32
	case elf.R_386_PC32:
		return RelocRelative, 32
	case elf.R_386_PLT32:
		return RelocPLTRelative, 32
	default:
		return RelocUnsupported, 0
	}
}
