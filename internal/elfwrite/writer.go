// Package elfwrite serializes a consolidated text/data image, its symbol
// table and its rewritten relocations back into a real ELF32 LSB i386
// relocatable object. The converter re-reads this file through
// internal/objfile before encoding LE fixups, so that the fixup encoder
// always works from the same flat model the rest of the pipeline does,
// rather than from two subtly different in-memory representations.
package elfwrite

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"github.com/ceionia/elf2le/internal/consolidate"
	"github.com/ceionia/elf2le/internal/objfile"
)

// Section header indices of the fixed section layout of every object this
// package writes.
const (
	shNull = iota
	shText
	shData
	shSymtab
	shStrtab
	shRelText
	shRelData
	shShstrtab
	shCount
)

// Write serializes the consolidated image to w as an ELF32 relocatable
// i386 object. symbols is keyed by name, as produced by
// consolidate.RelocateSymbols; relocations is the flat list produced by
// consolidate.RewriteRelocations.
func Write(w io.Writer, text, data []byte, symbols map[string]*consolidate.Symbol, relocations []consolidate.Relocation) error {
	shstrtab := newStringTable()
	strtab := newStringTable()

	sectionNames := [shCount]uint32{
		shText:     shstrtab.add(".text"),
		shData:     shstrtab.add(".data"),
		shSymtab:   shstrtab.add(".symtab"),
		shStrtab:   shstrtab.add(".strtab"),
		shRelText:  shstrtab.add(".rel.text"),
		shRelData:  shstrtab.add(".rel.data"),
		shShstrtab: shstrtab.add(".shstrtab"),
	}

	symtabBytes, symbolIndex := buildSymtab(symbols, strtab)
	relTextBytes, relDataBytes, err := buildRelocations(relocations, symbolIndex)
	if err != nil {
		return err
	}

	sections := [shCount][]byte{
		shNull:     nil,
		shText:     text,
		shData:     data,
		shSymtab:   symtabBytes,
		shStrtab:   strtab.bytes(),
		shRelText:  relTextBytes,
		shRelData:  relDataBytes,
		shShstrtab: shstrtab.bytes(),
	}

	// sh_info of .symtab must be the index of the first non-local symbol.
	// Every symbol this package emits is local (the intermediate object is
	// never linked against), so that index is the total symbol count.
	numSymbols := uint32(len(symbols)) + 1

	headers := make([]elf.Section32, shCount)
	headers[shNull] = elf.Section32{}
	headers[shText] = elf.Section32{
		Name: sectionNames[shText], Type: uint32(elf.SHT_PROGBITS),
		Flags: uint32(elf.SHF_ALLOC | elf.SHF_EXECINSTR), Addralign: 4,
	}
	headers[shData] = elf.Section32{
		Name: sectionNames[shData], Type: uint32(elf.SHT_PROGBITS),
		Flags: uint32(elf.SHF_ALLOC | elf.SHF_WRITE), Addralign: 4,
	}
	headers[shSymtab] = elf.Section32{
		Name: sectionNames[shSymtab], Type: uint32(elf.SHT_SYMTAB),
		Link: shStrtab, Info: numSymbols, Addralign: 4, Entsize: 16,
	}
	headers[shStrtab] = elf.Section32{
		Name: sectionNames[shStrtab], Type: uint32(elf.SHT_STRTAB), Addralign: 1,
	}
	headers[shRelText] = elf.Section32{
		Name: sectionNames[shRelText], Type: uint32(elf.SHT_REL),
		Link: shSymtab, Info: shText, Addralign: 4, Entsize: 8,
	}
	headers[shRelData] = elf.Section32{
		Name: sectionNames[shRelData], Type: uint32(elf.SHT_REL),
		Link: shSymtab, Info: shData, Addralign: 4, Entsize: 8,
	}
	headers[shShstrtab] = elf.Section32{
		Name: sectionNames[shShstrtab], Type: uint32(elf.SHT_STRTAB), Addralign: 1,
	}

	const ehsize = 52
	const shentsize = 40

	offset := uint32(ehsize)
	for i := 1; i < shCount; i++ {
		if len(sections[i]) == 0 {
			continue
		}

		headers[i].Off = offset
		headers[i].Size = uint32(len(sections[i]))
		offset += uint32(len(sections[i]))
	}

	shoff := offset

	header := elf.Header32{
		Type:      uint16(elf.ET_REL),
		Machine:   uint16(elf.EM_386),
		Version:   uint32(elf.EV_CURRENT),
		Shoff:     shoff,
		Ehsize:    ehsize,
		Shentsize: shentsize,
		Shnum:     shCount,
		Shstrndx:  shShstrtab,
	}

	copy(header.Ident[:], elf.ELFMAG)
	header.Ident[elf.EI_CLASS] = byte(elf.ELFCLASS32)
	header.Ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	header.Ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)
	header.Ident[elf.EI_OSABI] = byte(elf.ELFOSABI_NONE)

	if err := binary.Write(w, binary.LittleEndian, &header); err != nil {
		return fmt.Errorf("failed to write ELF header: %w", err)
	}

	for i := 1; i < shCount; i++ {
		if _, err := w.Write(sections[i]); err != nil {
			return fmt.Errorf("failed to write section %d body: %w", i, err)
		}
	}

	for i := range headers {
		if err := binary.Write(w, binary.LittleEndian, &headers[i]); err != nil {
			return fmt.Errorf("failed to write section header %d: %w", i, err)
		}
	}

	return nil
}

func buildSymtab(symbols map[string]*consolidate.Symbol, strtab *stringTable) ([]byte, map[string]uint32) {
	names := make([]string, 0, len(symbols))
	for name := range symbols {
		names = append(names, name)
	}

	sort.Strings(names)

	var buf bytes.Buffer
	index := make(map[string]uint32, len(names)+1)

	// Index 0 is the reserved null symbol.
	binary.Write(&buf, binary.LittleEndian, &elf.Sym32{})

	for i, name := range names {
		symb := symbols[name]

		shndx := uint16(elf.SHN_ABS)
		if !symb.Absolute {
			if symb.Object == consolidate.ObjectText {
				shndx = shText
			} else {
				shndx = shData
			}
		}

		sym := elf.Sym32{
			Name:  strtab.add(name),
			Value: uint32(symb.Value),
			Size:  uint32(symb.Size),
			Info:  byte(elf.ST_INFO(elf.STB_LOCAL, symbolType(symb.Kind))),
			Shndx: shndx,
		}

		binary.Write(&buf, binary.LittleEndian, &sym)

		index[name] = uint32(i + 1)
	}

	return buf.Bytes(), index
}

func symbolType(kind objfile.SymbolKind) elf.SymType {
	switch kind {
	case objfile.SymText:
		return elf.STT_FUNC
	case objfile.SymData:
		return elf.STT_OBJECT
	case objfile.SymSection:
		return elf.STT_SECTION
	default:
		return elf.STT_NOTYPE
	}
}

func buildRelocations(relocations []consolidate.Relocation, symbolIndex map[string]uint32) ([]byte, []byte, error) {
	var text, data bytes.Buffer

	for _, reloc := range relocations {
		symIdx, ok := symbolIndex[reloc.TargetSymbol]
		if !ok {
			return nil, nil, fmt.Errorf("relocation targets unknown symbol %q", reloc.TargetSymbol)
		}

		rtype, err := relocationType(reloc)
		if err != nil {
			return nil, nil, err
		}

		entry := elf.Rel32{
			Off:  uint32(reloc.Offset),
			Info: elf.R_INFO32(symIdx, uint32(rtype)),
		}

		dst := &data
		if reloc.Object == consolidate.ObjectText {
			dst = &text
		}

		if err := binary.Write(dst, binary.LittleEndian, &entry); err != nil {
			return nil, nil, fmt.Errorf("failed to write relocation entry: %w", err)
		}
	}

	return text.Bytes(), data.Bytes(), nil
}

func relocationType(reloc consolidate.Relocation) (elf.R_386, error) {
	switch reloc.Kind {
	case objfile.RelocAbsolute:
		return elf.R_386_32, nil
	case objfile.RelocRelative:
		return elf.R_386_PC32, nil
	case objfile.RelocPLTRelative:
		return elf.R_386_PLT32, nil
	default:
		return 0, fmt.Errorf("cannot encode relocation kind %d", reloc.Kind)
	}
}
