package lefixup

import (
	"encoding/binary"
	"io"
	"log/slog"
	"testing"

	"github.com/ceionia/elf2le/internal/objfile"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEncodeSingleAbsoluteRelocation(t *testing.T) {
	textData := make([]byte, 0x10)
	binary.LittleEndian.PutUint32(textData[0x4:], 0x50) // implicit addend baked into the instruction

	f := &objfile.File{
		Sections: []*objfile.Section{
			{Name: ".text", Index: 1, Data: textData, Relocations: []objfile.Relocation{
				{SourceOffset: 0x4, Kind: objfile.RelocAbsolute, Size: 32, HasImplicitAddend: true, TargetSymbolIndex: 1},
			}},
			{Name: ".data", Index: 2, Data: make([]byte, 0x10)},
		},
		Symbols: []*objfile.Symbol{
			{Name: ""},
			{Name: "target", HasSection: true, SectionIndex: 2, Value: 0x200},
		},
	}

	result, err := Encode(discardLogger(), f, 1, 1)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	if len(result.Records) != 7 {
		t.Fatalf("expected a single 7-byte record (16-bit target offset), got %d bytes", len(result.Records))
	}

	rec := result.Records
	if rec[0] != recordTypeAbsolute {
		t.Errorf("expected record type 0x07, got 0x%02x", rec[0])
	}

	if rec[1] != 0 {
		t.Errorf("expected no dword-offset flag, got 0x%02x", rec[1])
	}

	srcInPage := binary.LittleEndian.Uint16(rec[2:4])
	if srcInPage != 0x4 {
		t.Errorf("expected source offset 0x4, got 0x%x", srcInPage)
	}

	if rec[4] != 2 {
		t.Errorf("expected target object 2 (.data), got %d", rec[4])
	}

	targetOffset := binary.LittleEndian.Uint16(rec[5:7])
	if targetOffset != 0x250 {
		t.Errorf("expected target offset 0x250 (0x200 symbol + 0x50 addend), got 0x%x", targetOffset)
	}

	// One entry per page of each object, plus the leading 0 and a final
	// terminator: 1 (initial) + 1 (text) + 1 (data) + 1 (terminator).
	if len(result.PageOffsets) != 4 {
		t.Fatalf("expected 4 page offset entries, got %d: %v", len(result.PageOffsets), result.PageOffsets)
	}

	if result.PageOffsets[0] != 0 {
		t.Errorf("expected page offset table to start at 0, got %d", result.PageOffsets[0])
	}

	if last := result.PageOffsets[len(result.PageOffsets)-1]; last != 7 {
		t.Errorf("expected terminator entry to equal total record bytes (7), got %d", last)
	}
}

func TestEncodeUsesDwordOffsetAboveThreshold(t *testing.T) {
	textData := make([]byte, 0x10)

	f := &objfile.File{
		Sections: []*objfile.Section{
			{Name: ".text", Index: 1, Data: textData, Relocations: []objfile.Relocation{
				{SourceOffset: 0x0, Kind: objfile.RelocRelative, Size: 32, TargetSymbolIndex: 1},
			}},
			{Name: ".data", Index: 2, Data: make([]byte, 0x10)},
		},
		Symbols: []*objfile.Symbol{
			{Name: ""},
			{Name: "far", HasSection: true, SectionIndex: 1, Value: 0x20000},
		},
	}

	result, err := Encode(discardLogger(), f, 1, 1)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	if len(result.Records) != 9 {
		t.Fatalf("expected a 9-byte record (32-bit target offset), got %d bytes", len(result.Records))
	}

	if result.Records[0] != recordTypeRelative {
		t.Errorf("expected record type 0x08, got 0x%02x", result.Records[0])
	}

	if result.Records[1] != flagTargetOffset32 {
		t.Errorf("expected dword-offset flag set, got 0x%02x", result.Records[1])
	}

	targetOffset := binary.LittleEndian.Uint32(result.Records[5:9])
	if targetOffset != 0x20000 {
		t.Errorf("expected target offset 0x20000, got 0x%x", targetOffset)
	}
}

func TestEncodeSkipsRelocationWithNoResolvableSection(t *testing.T) {
	f := &objfile.File{
		Sections: []*objfile.Section{
			{Name: ".text", Index: 1, Data: make([]byte, 0x10), Relocations: []objfile.Relocation{
				{SourceOffset: 0x0, Kind: objfile.RelocAbsolute, Size: 32, TargetSymbolIndex: 1},
			}},
			{Name: ".data", Index: 2, Data: make([]byte, 0x10)},
		},
		Symbols: []*objfile.Symbol{
			{Name: ""},
			{Name: "undefined"},
		},
	}

	result, err := Encode(discardLogger(), f, 1, 1)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	if len(result.Records) != 0 {
		t.Fatalf("expected no records, got %d bytes", len(result.Records))
	}
}
