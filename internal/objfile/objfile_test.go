package objfile

import "testing"

func TestFileSectionByIndex(t *testing.T) {
	f := &File{
		Sections: []*Section{
			{Name: ".text", Index: 1},
			{Name: ".data", Index: 2},
		},
	}

	section, ok := f.SectionByIndex(2)
	if !ok {
		t.Fatal("expected section at index 2 to be found")
	}

	if section.Name != ".data" {
		t.Fatalf("expected .data, got %s", section.Name)
	}

	if _, ok := f.SectionByIndex(99); ok {
		t.Fatal("expected lookup of unknown index to fail")
	}
}

func TestFileSectionByName(t *testing.T) {
	f := &File{
		Sections: []*Section{
			{Name: ".text", Index: 1},
			{Name: ".text", Index: 3},
		},
	}

	section, ok := f.SectionByName(".text")
	if !ok {
		t.Fatal("expected .text to be found")
	}

	// SectionByName resolves to the first occurrence; callers needing to
	// disambiguate duplicate names must use SectionByIndex.
	if section.Index != 1 {
		t.Fatalf("expected first occurrence (index 1), got index %d", section.Index)
	}

	if _, ok := f.SectionByName(".bss"); ok {
		t.Fatal("expected lookup of unknown name to fail")
	}
}

func TestSectionKindString(t *testing.T) {
	cases := map[SectionKind]string{
		SectionText:              "text",
		SectionData:              "data",
		SectionReadOnlyData:      "rodata",
		SectionUninitializedData: "bss",
		SectionOther:             "other",
	}

	for kind, want := range cases {
		if got := kind.String(); got != want {
			t.Errorf("SectionKind(%d).String() = %q, want %q", kind, got, want)
		}
	}
}
