package convert

import (
	"bytes"
	"debug/elf"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/ceionia/elf2le/internal/consolidate"
	"github.com/ceionia/elf2le/internal/elfwrite"
	"github.com/ceionia/elf2le/internal/objfile"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeSyntheticInput builds a tiny, genuinely parsable ELF32 i386
// relocatable object (one text symbol, one data symbol, one absolute
// relocation referencing it) via internal/elfwrite, the same way
// internal/elfwrite's own tests do, and writes it to dir/in.o.
func writeSyntheticInput(t *testing.T, dir string) string {
	t.Helper()

	symbols := map[string]*consolidate.Symbol{
		"_start": {Name: "_start", Kind: objfile.SymText, Value: 0, Object: consolidate.ObjectText},
		"msg":    {Name: "msg", Kind: objfile.SymData, Value: 0, Object: consolidate.ObjectData},
	}

	relocations := []consolidate.Relocation{
		{Offset: 1, Object: consolidate.ObjectText, Kind: objfile.RelocAbsolute, Size: 32, TargetSymbol: "msg"},
	}

	var buf bytes.Buffer
	text := []byte{0xE8, 0, 0, 0, 0}
	data := []byte("hi\x00")
	if err := elfwrite.Write(&buf, text, data, symbols, relocations); err != nil {
		t.Fatalf("failed to build synthetic input object: %v", err)
	}

	path := filepath.Join(dir, "in.o")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("failed to write synthetic input object: %v", err)
	}

	return path
}

func TestFileEndToEnd(t *testing.T) {
	dir := t.TempDir()
	inputPath := writeSyntheticInput(t, dir)

	result, err := File(discardLogger(), inputPath, Options{OutDir: dir, StubProfile: "os2"})
	if err != nil {
		t.Fatalf("File failed: %v", err)
	}

	if result.Stats.TextPages != 1 || result.Stats.DataPages != 1 {
		t.Fatalf("unexpected page counts: %+v", result.Stats)
	}

	intermediate, err := os.ReadFile(result.IntermediatePath)
	if err != nil {
		t.Fatalf("failed to read intermediate ELF: %v", err)
	}

	elfFile, err := elf.NewFile(bytes.NewReader(intermediate))
	if err != nil {
		t.Fatalf("intermediate output is not a valid ELF file: %v", err)
	}

	if elfFile.Machine != elf.EM_386 {
		t.Fatalf("expected EM_386 intermediate ELF, got %v", elfFile.Machine)
	}

	executable, err := os.ReadFile(result.ExecutablePath)
	if err != nil {
		t.Fatalf("failed to read LE executable: %v", err)
	}

	if !bytes.Equal(executable[:2], []byte("MZ")) {
		t.Fatalf("expected MZ magic at the start of the executable, got % x", executable[:2])
	}

	if !bytes.Equal(executable[0x80:0x82], []byte("LE")) {
		t.Fatalf("expected LE magic at the conventional header offset, got % x", executable[0x80:0x82])
	}

	if int64(len(executable)) != result.Stats.TotalSize {
		t.Fatalf("executable file length %d does not match reported total size %d", len(executable), result.Stats.TotalSize)
	}
}

func TestFileWithoutRelocationsSucceeds(t *testing.T) {
	dir := t.TempDir()

	symbols := map[string]*consolidate.Symbol{
		"_start": {Name: "_start", Kind: objfile.SymText, Value: 0, Object: consolidate.ObjectText},
	}

	var buf bytes.Buffer
	if err := elfwrite.Write(&buf, []byte{0x90}, nil, symbols, nil); err != nil {
		t.Fatalf("failed to build synthetic input object: %v", err)
	}

	path := filepath.Join(dir, "in.o")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("failed to write synthetic input object: %v", err)
	}

	if _, err := File(discardLogger(), path, Options{OutDir: dir, StubProfile: "os2", Strict: true}); err != nil {
		t.Fatalf("expected strict conversion of a relocation-free object to succeed, got: %v", err)
	}
}

func TestPagesFor(t *testing.T) {
	cases := []struct {
		size uint64
		want uint32
	}{
		{0, 0},
		{1, 1},
		{0x1000, 1},
		{0x1001, 2},
		{0x2000, 2},
	}

	for _, c := range cases {
		if got := pagesFor(c.size); got != c.want {
			t.Errorf("pagesFor(0x%x) = %d, want %d", c.size, got, c.want)
		}
	}
}

func TestBaseNameFor(t *testing.T) {
	cases := map[string]string{
		"/tmp/foo.o":    "foo",
		"bar.elf":       "bar",
		"baz":           "baz",
		"./dir/qux.obj": "qux",
	}

	for input, want := range cases {
		if got := baseNameFor(input); got != want {
			t.Errorf("baseNameFor(%q) = %q, want %q", input, got, want)
		}
	}
}
