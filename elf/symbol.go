package elf

import (
	"fmt"

	"github.com/ianlancetaylor/demangle"
)

// Symbol is one dynamic symbol table entry with its name resolved through
// the table's linked string table.
type Symbol struct {
	Name          string
	DemangledName string // human readable c++ / rust name
	NameIndex     uint32

	Value        uint64
	Size         uint64
	Type         SymbolType
	Binding      SymbolBinding
	Visibility   SymbolVisibility
	SectionIndex SectionIndex
}

func (symbol Symbol) PrettyName() string {
	if symbol.DemangledName != "" {
		return symbol.DemangledName
	}

	return symbol.Name
}

func (symbol Symbol) IsUndefined() bool {
	return symbol.SectionIndex == SectionIndexUndefined
}

func (symbol Symbol) String() string {
	return fmt.Sprintf(
		"%s value=%#x size=%d %s %s %s ndx=%s",
		symbol.PrettyName(),
		symbol.Value,
		symbol.Size,
		symbol.Type,
		symbol.Binding,
		symbol.Visibility,
		symbol.SectionIndex)
}

// Elf32_Sym / Elf64_Sym, decoded.
type symbolEntry struct {
	NameIndex    uint32
	Info         byte
	Other        byte
	SectionIndex SectionIndex
	Value        uint64
	Size         uint64

	Type    SymbolType
	Binding SymbolBinding
}

func (entry symbolEntry) isNull() bool {
	return entry.NameIndex == 0 &&
		entry.Info == 0 &&
		entry.Other == 0 &&
		entry.SectionIndex == 0 &&
		entry.Value == 0 &&
		entry.Size == 0
}

func (img *Image) readSymbolEntry(offset uint64) (symbolEntry, error) {
	dec, err := img.decoderAt(offset, img.Class.symbolEntrySize())
	if err != nil {
		return symbolEntry{}, err
	}

	entry := symbolEntry{}
	entry.NameIndex = dec.u32()
	if img.Class == Class32 {
		entry.Value = uint64(dec.u32())
		entry.Size = uint64(dec.u32())
		entry.Info = dec.u8()
		entry.Other = dec.u8()
		entry.SectionIndex = SectionIndex(dec.u16())
	} else {
		entry.Info = dec.u8()
		entry.Other = dec.u8()
		entry.SectionIndex = SectionIndex(dec.u16())
		entry.Value = dec.u64()
		entry.Size = dec.u64()
	}

	entry.Type = SymbolInfoToType(entry.Info)
	entry.Binding = SymbolInfoToBinding(entry.Info)
	return entry, nil
}

// readClamped returns as much of [offset, offset+size) as lies within the
// image.
func (img *Image) readClamped(offset uint64, size uint64) []byte {
	if offset >= img.Size() {
		return nil
	}

	size = min(size, img.Size()-offset)
	content, err := img.ReadAt(offset, size)
	if err != nil {
		return nil
	}
	return content
}

type symbolDecoder struct {
	*Image

	demangle  bool
	anomalies []error
}

func (d *symbolDecoder) noteAnomaly(format string, args ...any) {
	d.anomalies = append(d.anomalies, fmt.Errorf(format, args...))
}

// findDynamicSymbolTable returns the index of the first SHT_DYNSYM section.
func findDynamicSymbolTable(sections []Section) (int, bool) {
	for idx, section := range sections {
		if section.Type == SectionTypeDynamicSymbolTable {
			return idx, true
		}
	}
	return 0, false
}

// Decode reads the symbol table at sections[tableIdx].  Entries that extend
// past the end of the file are dropped; an unresolvable string table leaves
// names empty.
func (d *symbolDecoder) Decode(sections []Section, tableIdx int) []Symbol {
	table := sections[tableIdx]

	entrySize := d.Class.symbolEntrySize()
	if table.EntrySize != 0 && table.EntrySize != entrySize {
		d.noteAnomaly(
			"unexpected %s symbol entry size: %d",
			d.Class,
			table.EntrySize)
	}

	content := d.readClamped(table.Offset, table.Size)
	if uint64(len(content)) < table.Size {
		d.noteAnomaly(
			"symbol table %s truncated (%d of %d bytes readable)",
			table.Name,
			len(content),
			table.Size)
	}

	names := StringTable{}
	link := int(table.Link)
	if link > 0 && link < len(sections) &&
		sections[link].Type == SectionTypeStringTable {

		strtab := sections[link]
		names = NewStringTable(d.readClamped(strtab.Offset, strtab.Size))
	} else {
		d.noteAnomaly(
			"symbol table %s does not link to a string table (link=%d)",
			table.Name,
			table.Link)
	}

	count := uint64(len(content)) / entrySize
	symbols := make([]Symbol, 0, count)
	for idx := uint64(0); idx < count; idx++ {
		entry, err := d.readSymbolEntry(table.Offset + idx*entrySize)
		if err != nil {
			d.noteAnomaly("symbol %d unreadable: %w", idx, err)
			break
		}

		symbol := Symbol{
			Name:         names.Get(entry.NameIndex),
			NameIndex:    entry.NameIndex,
			Value:        entry.Value,
			Size:         entry.Size,
			Type:         entry.Type,
			Binding:      entry.Binding,
			Visibility:   SymbolOtherToVisibility(entry.Other),
			SectionIndex: entry.SectionIndex,
		}

		if d.demangle && symbol.Name != "" {
			val, err := demangle.ToString(symbol.Name)
			if err == nil {
				symbol.DemangledName = val
			}
		}

		symbols = append(symbols, symbol)
	}

	return symbols
}
