package consolidate

import (
	"fmt"
	"log/slog"

	"github.com/ceionia/elf2le/internal/objfile"
)

// Symbol is an ELF symbol rewritten into the consolidated object's
// coordinate space (C3).
type Symbol struct {
	Name     string
	Kind     objfile.SymbolKind
	Value    uint64
	Size     uint64
	Object   ObjectKind
	Absolute bool
}

// RelocateSymbols rewrites every Text/Data symbol's address to
// base-of-containing-section + original address, and synthesizes one
// section symbol per surviving input section so that relocations which
// target "the section" (rather than a specific symbol) can still resolve.
//
// The returned map is keyed by name; per spec, a later symbol of the same
// name overwrites an earlier one.
func RelocateSymbols(logger *slog.Logger, f *objfile.File, layout *Layout) map[string]*Symbol {
	symbols := make(map[string]*Symbol)

	for _, section := range f.Sections {
		base, object, ok := layout.BaseByIndex(section.Index)
		if !ok {
			continue
		}

		kind := objfile.SymText
		if object == ObjectData {
			kind = objfile.SymData
		}

		symbols[section.Name] = &Symbol{
			Name:   section.Name,
			Kind:   kind,
			Value:  base,
			Object: object,
		}
	}

	for _, symb := range f.Symbols {
		if symb.Kind != objfile.SymText && symb.Kind != objfile.SymData {
			continue
		}

		consolidated := &Symbol{
			Name: symb.Name,
			Kind: symb.Kind,
			Size: symb.Size,
		}

		switch {
		case symb.HasSection:
			section, ok := f.SectionByIndex(symb.SectionIndex)
			if !ok {
				logger.Debug("skipping symbol with unresolvable section index",
					"symbol", symb.Name,
					"sectionIndex", symb.SectionIndex,
				)

				continue
			}

			base, object, ok := layout.BaseByIndex(section.Index)
			if !ok {
				logger.Debug("skipping symbol whose section was excluded from consolidation",
					"symbol", symb.Name,
					"section", section.Name,
				)

				continue
			}

			consolidated.Value = base + symb.Value
			consolidated.Object = object
		case symb.Absolute:
			consolidated.Value = symb.Value
			consolidated.Absolute = true
		default:
			consolidated.Value = symb.Value
		}

		symbols[symb.Name] = consolidated

		logger.Debug("relocated symbol",
			"symbol", symb.Name,
			"value", fmt.Sprintf("0x%x", consolidated.Value),
			"object", consolidated.Object.String(),
		)
	}

	return symbols
}
