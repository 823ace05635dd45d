package consolidate

import (
	"bytes"
	"io"
	"log/slog"
	"testing"

	"github.com/ceionia/elf2le/internal/objfile"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSectionsPlacesTextStartFirst(t *testing.T) {
	f := &objfile.File{
		Sections: []*objfile.Section{
			{Name: ".text", Kind: objfile.SectionText, Data: []byte{0xAA, 0xAA}, Index: 1},
			{Name: ".text.start", Kind: objfile.SectionText, Data: []byte{0xEE}, Index: 2},
		},
	}

	text, _, layout := Sections(discardLogger(), f)

	if !bytes.Equal(text, []byte{0xEE, 0xAA, 0xAA}) {
		t.Fatalf("expected .text.start first, got % x", text)
	}

	base, object, ok := layout.BaseByIndex(2)
	if !ok || base != 0 || object != ObjectText {
		t.Fatalf("expected .text.start at base 0 in .text, got base=%d object=%v ok=%v", base, object, ok)
	}

	base, _, ok = layout.BaseByIndex(1)
	if !ok || base != 1 {
		t.Fatalf("expected .text at base 1, got base=%d ok=%v", base, ok)
	}
}

func TestSectionsConcatenatesByKind(t *testing.T) {
	f := &objfile.File{
		Sections: []*objfile.Section{
			{Name: ".text", Kind: objfile.SectionText, Data: []byte{1, 2}, Index: 1},
			{Name: ".rodata", Kind: objfile.SectionReadOnlyData, Data: []byte{3, 4, 5}, Index: 2},
			{Name: ".data", Kind: objfile.SectionData, Data: []byte{6}, Index: 3},
			{Name: ".bss", Kind: objfile.SectionUninitializedData, Size: 4, Index: 4},
			{Name: ".comment", Kind: objfile.SectionOther, Data: []byte{9, 9}, Index: 5},
		},
	}

	text, data, layout := Sections(discardLogger(), f)

	if !bytes.Equal(text, []byte{1, 2}) {
		t.Fatalf("unexpected text: % x", text)
	}

	want := []byte{3, 4, 5, 6, 0, 0, 0, 0}
	if !bytes.Equal(data, want) {
		t.Fatalf("unexpected data: % x, want % x", data, want)
	}

	if layout.TextSize != 2 || layout.DataSize != 8 {
		t.Fatalf("unexpected layout sizes: text=%d data=%d", layout.TextSize, layout.DataSize)
	}

	if _, _, ok := layout.BaseByIndex(5); ok {
		t.Fatal("expected excluded section to have no layout entry")
	}
}
