package consolidate

import (
	"log/slog"

	"github.com/ceionia/elf2le/internal/objfile"
)

// Relocation is an input relocation rewritten so that its source offset is
// relative to the start of the consolidated object it now lives in, and
// its target points at a name in the consolidated symbol table (C4).
type Relocation struct {
	Offset            uint64
	Object            ObjectKind
	Kind              objfile.RelocationKind
	Size              uint8
	HasImplicitAddend bool
	Addend            int64
	TargetSymbol      string
}

// RewriteRelocations walks every relocation in every consolidated section
// and re-targets it at the consolidated symbol table built by
// RelocateSymbols. A relocation whose target cannot be resolved (neither
// the target symbol's own name, nor its containing section's name, appears
// in symbols) is skipped with a warning rather than aborting the whole
// conversion, per the reference implementation's tolerance for malformed
// input.
//
// Every ELF REL/RELA relocation already names a symbol table entry, so
// (unlike an object-file *writer*, which must also support relocations
// targeting a section or an absolute value directly) there is no
// "non-symbol target" case to special-case here.
// RewriteRelocations also returns the number of relocations it skipped, so
// callers running in strict mode can turn that into a fatal error.
func RewriteRelocations(logger *slog.Logger, f *objfile.File, layout *Layout, symbols map[string]*Symbol) ([]Relocation, int) {
	var out []Relocation

	skipped := 0

	for _, section := range f.Sections {
		base, object, ok := layout.BaseByIndex(section.Index)
		if !ok || len(section.Relocations) == 0 {
			continue
		}

		for _, reloc := range section.Relocations {
			if reloc.Kind == objfile.RelocUnsupported || reloc.Size != 32 {
				logger.Warn("skipping unsupported relocation",
					"section", section.Name,
					"offset", reloc.SourceOffset,
					"size", reloc.Size,
				)

				skipped++
				continue
			}

			targetName, ok := resolveTarget(f, reloc, symbols)
			if !ok {
				logger.Warn("skipping relocation with unresolvable target",
					"section", section.Name,
					"offset", reloc.SourceOffset,
				)

				skipped++
				continue
			}

			out = append(out, Relocation{
				Offset:            base + reloc.SourceOffset,
				Object:            object,
				Kind:              reloc.Kind,
				Size:              reloc.Size,
				HasImplicitAddend: reloc.HasImplicitAddend,
				Addend:            reloc.Addend,
				TargetSymbol:      targetName,
			})
		}
	}

	return out, skipped
}

func resolveTarget(f *objfile.File, reloc objfile.Relocation, symbols map[string]*Symbol) (string, bool) {
	if reloc.TargetSymbolIndex >= len(f.Symbols) {
		return "", false
	}

	oldSymbol := f.Symbols[reloc.TargetSymbolIndex]

	if oldSymbol.Name != "" {
		if _, ok := symbols[oldSymbol.Name]; ok {
			return oldSymbol.Name, true
		}
	}

	if !oldSymbol.HasSection {
		return "", false
	}

	oldSection, ok := f.SectionByIndex(oldSymbol.SectionIndex)
	if !ok {
		return "", false
	}

	if _, ok := symbols[oldSection.Name]; ok {
		return oldSection.Name, true
	}

	return "", false
}
