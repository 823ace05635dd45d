// Package lewrite assembles the final LE executable (C6): a stub template,
// patched in place with the object table, page table and fixup section
// layout, followed by the text and data pages themselves.
package lewrite

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/ceionia/elf2le/internal/iometa"
	"github.com/ceionia/elf2le/internal/lefixup"
	"github.com/lunixbochs/struc"
)

// Layout offsets. The off* header field offsets are relative to the start of
// the LE header (H = headerOffset); the table and object entry offsets are
// absolute file offsets.
const (
	headerOffset = 0x80

	offPageCount         = 0x14
	offFixupSectionLen   = 0x30
	offResourceTableOff  = 0x50
	offResourceTableCnt  = 0x54
	offResidentNameTable = 0x58
	offEntryTableOffset  = 0x5C
	offFixupPageTable    = 0x68
	offFixupRecordTable  = 0x6C
	offDataPagesOffset   = 0x80

	objectTableOffset = headerOffset + 0xC4
	pageTableOffset   = headerOffset + 0xF4

	object1Entry = objectTableOffset
	object2Entry = objectTableOffset + 0x18

	// offPageMapIndex and offPageMapEntries are offsets within a single
	// 0x18-byte object table entry.
	offPageMapIndex   = 0xC
	offPageMapEntries = 0x10

	stubFileSize = 0x2000
	pageSize     = 0x1000
)

// Stats summarizes the executable lewrite produced, for CLI reporting.
type Stats struct {
	TextPages       uint32
	DataPages       uint32
	FixupBytes      uint32
	DataPagesOffset uint32
	TotalSize       int64
}

// WriteExecutable writes the stub, LE header, fixup section and text/data
// pages to w, which must support both sequential writes (for the
// variable-length tables) and absolute writes (for header fields computed
// only once those tables exist).
func WriteExecutable(logger *slog.Logger, w *os.File, stub []byte, textPages, dataPages uint32, fixups *lefixup.Result, text, data []byte) (*Stats, error) {
	if _, err := w.Write(stub); err != nil {
		return nil, fmt.Errorf("failed to write stub: %w", err)
	}

	if err := w.Truncate(stubFileSize); err != nil {
		return nil, fmt.Errorf("failed to reserve stub space: %w", err)
	}

	overlay := &iometa.OverlayWriter{Dest: w, Base: headerOffset}

	if err := overlayU32(overlay, offPageCount, textPages+dataPages); err != nil {
		return nil, err
	}

	if err := writeObjectTableEntries(overlay, textPages, dataPages); err != nil {
		return nil, err
	}

	if _, err := w.Seek(pageTableOffset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to seek to page table: %w", err)
	}

	if err := writePageTable(w, textPages+dataPages); err != nil {
		return nil, err
	}

	nameTableOffset, err := w.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("failed to read stream position: %w", err)
	}

	if err := writeResidentNameTable(w); err != nil {
		return nil, err
	}

	fixupPageTableOffset, err := w.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("failed to read stream position: %w", err)
	}

	for _, offset := range fixups.PageOffsets {
		if err := binary.Write(w, binary.LittleEndian, offset); err != nil {
			return nil, fmt.Errorf("failed to write fixup page table entry: %w", err)
		}
	}

	fixupRecordTableOffset, err := w.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("failed to read stream position: %w", err)
	}

	if _, err := w.Write(fixups.Records); err != nil {
		return nil, fmt.Errorf("failed to write fixup records: %w", err)
	}

	fixupSectionLen := uint32(len(fixups.PageOffsets))*4 + uint32(len(fixups.Records))
	if err := overlayU32(overlay, offFixupSectionLen, fixupSectionLen); err != nil {
		return nil, err
	}

	if err := overlayU32(overlay, offResourceTableOff, uint32(nameTableOffset)); err != nil {
		return nil, err
	}

	if err := overlayU32(overlay, offResourceTableCnt, 0); err != nil {
		return nil, err
	}

	if err := overlayU32(overlay, offResidentNameTable, uint32(nameTableOffset)); err != nil {
		return nil, err
	}

	if err := overlayU32(overlay, offEntryTableOffset, uint32(nameTableOffset)+8); err != nil {
		return nil, err
	}

	if err := overlayU32(overlay, offFixupPageTable, uint32(fixupPageTableOffset)-headerOffset); err != nil {
		return nil, err
	}

	if err := overlayU32(overlay, offFixupRecordTable, uint32(fixupRecordTableOffset)-headerOffset); err != nil {
		return nil, err
	}

	dataPagesOffsetPos, err := w.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("failed to read stream position: %w", err)
	}

	dataPagesOffset := uint32(dataPagesOffsetPos)
	if err := overlayU32(overlay, offDataPagesOffset, dataPagesOffset); err != nil {
		return nil, err
	}

	if _, err := w.WriteAt(text, int64(dataPagesOffset)); err != nil {
		return nil, fmt.Errorf("failed to write text pages: %w", err)
	}

	dataLoc := int64(textPages)*pageSize + int64(dataPagesOffset)
	if _, err := w.WriteAt(data, dataLoc); err != nil {
		return nil, fmt.Errorf("failed to write data pages: %w", err)
	}

	info, err := w.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat output file: %w", err)
	}

	stats := &Stats{
		TextPages:       textPages,
		DataPages:       dataPages,
		FixupBytes:      uint32(len(fixups.Records)),
		DataPagesOffset: dataPagesOffset,
		TotalSize:       info.Size(),
	}

	logger.Debug("wrote LE executable",
		"dataPagesOffset", fmt.Sprintf("0x%x", dataPagesOffset),
		"totalSize", stats.TotalSize,
	)

	return stats, nil
}

func writeObjectTableEntries(overlay *iometa.OverlayWriter, textPages, dataPages uint32) error {
	if err := overlayFieldAt(overlay, object1Entry+offPageMapIndex-headerOffset, uint32(1)); err != nil {
		return err
	}

	if err := overlayFieldAt(overlay, object1Entry+offPageMapEntries-headerOffset, textPages); err != nil {
		return err
	}

	if err := overlayFieldAt(overlay, object2Entry+offPageMapIndex-headerOffset, textPages+1); err != nil {
		return err
	}

	return overlayFieldAt(overlay, object2Entry+offPageMapEntries-headerOffset, dataPages)
}

func writePageTable(w io.Writer, numPages uint32) error {
	for pageIdx := uint32(1); pageIdx <= numPages; pageIdx++ {
		if err := binary.Write(w, binary.BigEndian, pageIdx<<8); err != nil {
			return fmt.Errorf("failed to write page table entry %d: %w", pageIdx, err)
		}
	}

	return nil
}

func writeResidentNameTable(w io.Writer) error {
	if _, err := w.Write([]byte("\x05ELFLE\x00\x00")); err != nil {
		return fmt.Errorf("failed to write resident name table: %w", err)
	}

	if _, err := w.Write([]byte{0, 0}); err != nil {
		return fmt.Errorf("failed to write entry table: %w", err)
	}

	return nil
}

func overlayU32(overlay *iometa.OverlayWriter, offset int64, value uint32) error {
	return overlayFieldAt(overlay, offset, value)
}

func overlayFieldAt(overlay *iometa.OverlayWriter, offset int64, value uint32) error {
	var buf bytes.Buffer
	if err := struc.PackWithOptions(&buf, value, &struc.Options{Order: binary.LittleEndian}); err != nil {
		return fmt.Errorf("failed to pack header field at offset 0x%x: %w", offset, err)
	}

	return overlay.WriteAt(buf.Bytes(), offset)
}
