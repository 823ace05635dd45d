// Package objfile adapts debug/elf into the flat section/symbol/relocation
// model the rest of elf2le operates on, so that section consolidation,
// symbol relocation and fixup encoding never need to know how an ELF file
// is actually laid out on disk.
package objfile

// SectionKind classifies an ELF section the way elf2le cares about it,
// collapsing everything the converter doesn't understand into SectionOther.
type SectionKind int

const (
	SectionText SectionKind = iota
	SectionData
	SectionReadOnlyData
	SectionUninitializedData
	SectionOther
)

func (k SectionKind) String() string {
	switch k {
	case SectionText:
		return "text"
	case SectionData:
		return "data"
	case SectionReadOnlyData:
		return "rodata"
	case SectionUninitializedData:
		return "bss"
	default:
		return "other"
	}
}

// SymbolKind mirrors the ELF symbol type, narrowed to what the consolidator
// and relocation rewriter distinguish between.
type SymbolKind int

const (
	SymText SymbolKind = iota
	SymData
	SymSection
	SymLabel
	SymOther
)

// RelocationKind is the relocation's addressing mode, independent of the
// specific machine-encoded relocation type it came from.
type RelocationKind int

const (
	RelocAbsolute RelocationKind = iota
	RelocRelative
	RelocPLTRelative
	RelocUnsupported
)

// Relocation describes one relocation against a section, in the section's
// own coordinate space (SourceOffset is relative to the start of the
// section it was read from).
type Relocation struct {
	SourceOffset      uint64
	Kind              RelocationKind
	Size              uint8
	HasImplicitAddend bool
	Addend            int64

	// TargetSymbolIndex indexes File.Symbols. It always resolves (index 0
	// is the reserved undefined symbol, mirroring the ELF symbol table),
	// so a relocation's target is resolved by looking up that symbol.
	TargetSymbolIndex int
}

// Section is a section of the input ELF, already classified and with its
// relocations parsed and attached.
type Section struct {
	Name        string
	Kind        SectionKind
	Size        uint64
	Data        []byte // nil for SectionUninitializedData
	Addralign   uint64
	Relocations []Relocation

	// Index is the section's index in the ELF section header table. It is
	// stable identity for a section independent of its (possibly
	// duplicated) name.
	Index int
}

// Symbol is an ELF symbol with its containing section already resolved to
// an index into File.Sections, where applicable.
type Symbol struct {
	Name  string
	Kind  SymbolKind
	Value uint64
	Size  uint64

	// HasSection is false for undefined (SHN_UNDEF) and absolute
	// (SHN_ABS) symbols.
	HasSection   bool
	SectionIndex int
	Absolute     bool
}

// File is the whole of an ELF relocatable object, reduced to what elf2le
// needs: sections (with relocations) and symbols.
type File struct {
	Sections []*Section
	Symbols  []*Symbol
}

// SectionByIndex looks up a section by its ELF section header index.
func (f *File) SectionByIndex(index int) (*Section, bool) {
	for _, s := range f.Sections {
		if s.Index == index {
			return s, true
		}
	}

	return nil, false
}

// SectionByName returns the first section with the given name. Consumers
// that need to disambiguate duplicate names should use SectionByIndex.
func (f *File) SectionByName(name string) (*Section, bool) {
	for _, s := range f.Sections {
		if s.Name == name {
			return s, true
		}
	}

	return nil, false
}
