// Package consolidate implements the section consolidator, symbol
// relocator and relocation rewriter (C2-C4): it takes the flat ELF model
// from internal/objfile and produces the two-object (.text/.data) layout,
// with symbols and relocations rewritten into the consolidated coordinate
// space.
package consolidate

import "github.com/ceionia/elf2le/internal/objfile"

// ObjectKind identifies which of the two consolidated LE objects
// (text/code or data) something belongs to.
type ObjectKind int

const (
	ObjectText ObjectKind = iota
	ObjectData
)

func (k ObjectKind) String() string {
	if k == ObjectText {
		return ".text"
	}

	return ".data"
}

const textStartSection = ".text.start"

// Layout records where each input section landed within the consolidated
// .text/.data byte arrays.
type Layout struct {
	TextSize uint64
	DataSize uint64

	baseByIndex   map[int]uint64
	objectByIndex map[int]ObjectKind

	// baseByName and objectByName key the same placements by section
	// name. Per the duplicate-section-names open question, the later
	// occurrence of a name wins here; baseByIndex is always unambiguous
	// and is used wherever the section identity is already known. The
	// relocation rewriter does not read these maps: its section-name
	// fallback goes through the section symbols RelocateSymbols
	// synthesizes.
	baseByName   map[string]uint64
	objectByName map[string]ObjectKind
}

// BaseByIndex returns the new base offset of the section with the given
// ELF section index, within whatever object it was placed into.
func (l *Layout) BaseByIndex(index int) (uint64, ObjectKind, bool) {
	base, ok := l.baseByIndex[index]
	if !ok {
		return 0, 0, false
	}

	return base, l.objectByIndex[index], true
}

// BaseByName is the name-keyed lookup described above.
func (l *Layout) BaseByName(name string) (uint64, ObjectKind, bool) {
	base, ok := l.baseByName[name]
	if !ok {
		return 0, 0, false
	}

	return base, l.objectByName[name], true
}

func (l *Layout) record(section *objfile.Section, object ObjectKind, base uint64) {
	l.baseByIndex[section.Index] = base
	l.objectByIndex[section.Index] = object
	l.baseByName[section.Name] = base
	l.objectByName[section.Name] = object
}
