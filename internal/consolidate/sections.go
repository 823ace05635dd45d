package consolidate

import (
	"bytes"
	"log/slog"

	"github.com/ceionia/elf2le/internal/iometa"
	"github.com/ceionia/elf2le/internal/objfile"
)

// Sections concatenates every input section of a supported kind into the
// two consolidated byte arrays (C2). ".text.start", if present, is always
// placed first in .text at offset 0, since it is the LE entry point.
//
// Sections are laid out with no inter-section padding: LE loaders page
// objects on 0x1000 boundaries regardless, so byte-level alignment between
// consolidated sections buys nothing.
func Sections(logger *slog.Logger, f *objfile.File) ([]byte, []byte, *Layout) {
	layout := &Layout{
		baseByIndex:   make(map[int]uint64),
		objectByIndex: make(map[int]ObjectKind),
		baseByName:    make(map[string]uint64),
		objectByName:  make(map[string]ObjectKind),
	}

	text := make([]byte, 0)
	data := make([]byte, 0)

	if start, ok := f.SectionByName(textStartSection); ok {
		layout.record(start, ObjectText, 0)
		text = append(text, start.Data...)
	}

	for _, section := range f.Sections {
		if section.Name == textStartSection {
			continue
		}

		switch section.Kind {
		case objfile.SectionText:
			layout.record(section, ObjectText, uint64(len(text)))
			text = append(text, section.Data...)
		case objfile.SectionData, objfile.SectionReadOnlyData:
			layout.record(section, ObjectData, uint64(len(data)))
			data = append(data, section.Data...)
		case objfile.SectionUninitializedData:
			layout.record(section, ObjectData, uint64(len(data)))

			var zeros bytes.Buffer
			if err := iometa.WriteZeros(&zeros, int(section.Size)); err != nil {
				logger.Debug("failed to zero-fill bss section", "section", section.Name, "error", err)
			}

			data = append(data, zeros.Bytes()...)
		default:
			logger.Debug("excluding section from consolidated image",
				"section", section.Name,
				"kind", section.Kind.String(),
			)
		}
	}

	layout.TextSize = uint64(len(text))
	layout.DataSize = uint64(len(data))

	return text, data, layout
}
