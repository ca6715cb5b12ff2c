// Package elftest synthesizes small elf images for tests, including
// deliberately damaged ones.
package elftest

import (
	"encoding/binary"
	"sort"

	"github.com/pattyshack/relf/elf"
)

// Builder lays out an elf image: the file header at offset 0, the program
// header table right after it, caller placed content, then the section name
// table and the section header table at the end of the file.
type Builder struct {
	Class    elf.Class
	Encoding elf.DataEncoding

	FileType elf.FileType
	Machine  elf.MachineArchitecture
	Entry    uint64

	segments []elf.Segment
	sections []elf.Section
	regions  []region

	// When false, no section header table (or .shstrtab) is emitted.
	withSections bool
}

type region struct {
	offset  uint64
	content []byte
}

func New(class elf.Class, encoding elf.DataEncoding) *Builder {
	return &Builder{
		Class:    class,
		Encoding: encoding,
		FileType: elf.FileTypeExecutable,
		Machine:  elf.MachineArchitectureX86_64,
	}
}

func (b *Builder) ByteOrder() binary.ByteOrder {
	if b.Encoding == elf.DataEncodingTwosComplementBigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

func (b *Builder) HeaderSize() uint64 {
	if b.Class == elf.Class32 {
		return elf.Elf32HeaderSize
	}
	return elf.Elf64HeaderSize
}

func (b *Builder) programHeaderEntrySize() uint64 {
	if b.Class == elf.Class32 {
		return elf.Elf32ProgramHeaderEntrySize
	}
	return elf.Elf64ProgramHeaderEntrySize
}

func (b *Builder) sectionHeaderEntrySize() uint64 {
	if b.Class == elf.Class32 {
		return elf.Elf32SectionHeaderEntrySize
	}
	return elf.Elf64SectionHeaderEntrySize
}

// ContentStart is the first offset after the program header table for
// the given number of segments.
func (b *Builder) ContentStart(numSegments int) uint64 {
	return b.HeaderSize() + uint64(numSegments)*b.programHeaderEntrySize()
}

func (b *Builder) AddSegment(segment elf.Segment) {
	b.segments = append(b.segments, segment)
}

// AddSection appends a section and returns its index.  Index 0 is the
// implicit SHT_NULL section, so the first added section has index 1.
func (b *Builder) AddSection(section elf.Section) uint32 {
	b.withSections = true
	b.sections = append(b.sections, section)
	return uint32(len(b.sections))
}

// WithSectionTable forces a section header table (NULL + .shstrtab) even if
// no section was added.
func (b *Builder) WithSectionTable() {
	b.withSections = true
}

// Place copies content into the image at offset.
func (b *Builder) Place(offset uint64, content []byte) {
	b.regions = append(
		b.regions,
		region{
			offset:  offset,
			content: content,
		})
}

type writer struct {
	binary.ByteOrder
	elf.Class

	content []byte
	pos     uint64
}

func (w *writer) seek(pos uint64) {
	w.pos = pos
}

func (w *writer) bytes(data []byte) {
	copy(w.content[w.pos:], data)
	w.pos += uint64(len(data))
}

func (w *writer) u8(val byte) {
	w.content[w.pos] = val
	w.pos += 1
}

func (w *writer) u16(val uint16) {
	w.PutUint16(w.content[w.pos:], val)
	w.pos += 2
}

func (w *writer) u32(val uint32) {
	w.PutUint32(w.content[w.pos:], val)
	w.pos += 4
}

func (w *writer) u64(val uint64) {
	w.PutUint64(w.content[w.pos:], val)
	w.pos += 8
}

func (w *writer) word(val uint64) {
	if w.Class == elf.Class32 {
		w.u32(uint32(val))
	} else {
		w.u64(val)
	}
}

func align(val uint64, to uint64) uint64 {
	return (val + to - 1) / to * to
}

// Bytes lays out and encodes the image.
func (b *Builder) Bytes() []byte {
	phoff := uint64(0)
	if len(b.segments) > 0 {
		phoff = b.HeaderSize()
	}

	end := b.ContentStart(len(b.segments))
	for _, r := range b.regions {
		end = max(end, r.offset+uint64(len(r.content)))
	}

	var names StringTable
	sections := []elf.Section{}
	shoff := uint64(0)
	shstrndx := uint16(0)
	if b.withSections {
		names = NewStringTable()
		sections = append(sections, elf.Section{Type: elf.SectionTypeNull})
		for _, section := range b.sections {
			section.NameIndex = names.Add(section.Name)
			sections = append(sections, section)
		}

		shstrtab := elf.Section{
			Type:      elf.SectionTypeStringTable,
			NameIndex: names.Add(".shstrtab"),
			Alignment: 1,
		}
		shstrtab.Offset = end
		shstrtab.Size = uint64(len(names.Bytes()))
		shstrndx = uint16(len(sections))
		sections = append(sections, shstrtab)

		end += shstrtab.Size
		shoff = align(end, 8)
		end = shoff + uint64(len(sections))*b.sectionHeaderEntrySize()
	}

	w := &writer{
		ByteOrder: b.ByteOrder(),
		Class:     b.Class,
		content:   make([]byte, end),
	}

	// e_ident
	w.bytes(elf.IdentifierMagic)
	w.u8(byte(b.Class))
	w.u8(byte(b.Encoding))
	w.u8(1) // EI_VERSION
	w.u8(byte(elf.OperatingSystemABIUnixSystemV))
	w.seek(elf.ElfIdentifierSize)

	w.u16(uint16(b.FileType))
	w.u16(uint16(b.Machine))
	w.u32(1) // e_version
	w.word(b.Entry)
	w.word(phoff)
	w.word(shoff)
	w.u32(0) // e_flags
	w.u16(uint16(b.HeaderSize()))
	w.u16(uint16(b.programHeaderEntrySize()))
	w.u16(uint16(len(b.segments)))
	w.u16(uint16(b.sectionHeaderEntrySize()))
	w.u16(uint16(len(sections)))
	w.u16(shstrndx)

	w.seek(phoff)
	for _, segment := range b.segments {
		w.u32(uint32(segment.Type))
		if b.Class == elf.Class64 {
			w.u32(uint32(segment.Flags))
		}
		w.word(segment.Offset)
		w.word(segment.VirtualAddress)
		w.word(segment.PhysicalAddress)
		w.word(segment.FileSize)
		w.word(segment.MemorySize)
		if b.Class == elf.Class32 {
			w.u32(uint32(segment.Flags))
		}
		w.word(segment.Alignment)
	}

	regions := append([]region{}, b.regions...)
	sort.SliceStable(regions, func(i int, j int) bool {
		return regions[i].offset < regions[j].offset
	})
	for _, r := range regions {
		w.seek(r.offset)
		w.bytes(r.content)
	}

	if b.withSections {
		w.seek(sections[shstrndx].Offset)
		w.bytes(names.Bytes())

		w.seek(shoff)
		for _, section := range sections {
			w.u32(section.NameIndex)
			w.u32(uint32(section.Type))
			w.word(uint64(section.Flags))
			w.word(section.Address)
			w.word(section.Offset)
			w.word(section.Size)
			w.u32(section.Link)
			w.u32(section.Info)
			w.word(section.Alignment)
			w.word(section.EntrySize)
		}
	}

	return w.content
}

// StringTable accumulates a NUL separated string table whose first byte is
// the empty string.
type StringTable struct {
	content []byte
	offsets map[string]uint32
}

func NewStringTable() StringTable {
	return StringTable{
		content: []byte{0},
		offsets: map[string]uint32{"": 0},
	}
}

func (table *StringTable) Add(s string) uint32 {
	offset, ok := table.offsets[s]
	if ok {
		return offset
	}

	offset = uint32(len(table.content))
	table.content = append(table.content, s...)
	table.content = append(table.content, 0)
	table.offsets[s] = offset
	return offset
}

func (table StringTable) Bytes() []byte {
	return table.content
}

// SymbolSpec describes one symbol table entry to encode.
type SymbolSpec struct {
	NameIndex    uint32
	Value        uint64
	Size         uint64
	Type         elf.SymbolType
	Binding      elf.SymbolBinding
	Visibility   elf.SymbolVisibility
	SectionIndex elf.SectionIndex
}

func (b *Builder) SymbolEntrySize() uint64 {
	if b.Class == elf.Class32 {
		return elf.Elf32SymbolEntrySize
	}
	return elf.Elf64SymbolEntrySize
}

// EncodeSymbols encodes symbols (the caller includes the leading null
// symbol).
func (b *Builder) EncodeSymbols(symbols []SymbolSpec) []byte {
	w := &writer{
		ByteOrder: b.ByteOrder(),
		Class:     b.Class,
		content:   make([]byte, uint64(len(symbols))*b.SymbolEntrySize()),
	}

	for _, sym := range symbols {
		info := byte(sym.Binding)<<4 | byte(sym.Type)&0xf
		w.u32(sym.NameIndex)
		if b.Class == elf.Class32 {
			w.u32(uint32(sym.Value))
			w.u32(uint32(sym.Size))
			w.u8(info)
			w.u8(byte(sym.Visibility))
			w.u16(uint16(sym.SectionIndex))
		} else {
			w.u8(info)
			w.u8(byte(sym.Visibility))
			w.u16(uint16(sym.SectionIndex))
			w.u64(sym.Value)
			w.u64(sym.Size)
		}
	}

	return w.content
}

type DynamicEntry struct {
	Tag   elf.DynamicTag
	Value uint64
}

func (b *Builder) DynamicEntrySize() uint64 {
	if b.Class == elf.Class32 {
		return elf.Elf32DynamicEntrySize
	}
	return elf.Elf64DynamicEntrySize
}

// EncodeDynamic encodes entries followed by a DT_NULL terminator.
func (b *Builder) EncodeDynamic(entries []DynamicEntry) []byte {
	entries = append(entries, DynamicEntry{Tag: elf.DynamicNull})
	w := &writer{
		ByteOrder: b.ByteOrder(),
		Class:     b.Class,
		content:   make([]byte, uint64(len(entries))*b.DynamicEntrySize()),
	}

	for _, entry := range entries {
		w.word(uint64(entry.Tag))
		w.word(entry.Value)
	}

	return w.content
}

// EncodeSysvHash encodes a DT_HASH table with a single bucket chaining all
// nchain symbols.  Only the header matters for symbol counting.
func (b *Builder) EncodeSysvHash(nchain uint32) []byte {
	w := &writer{
		ByteOrder: b.ByteOrder(),
		Class:     b.Class,
		content:   make([]byte, (2+1+uint64(nchain))*4),
	}

	w.u32(1)
	w.u32(nchain)
	if nchain > 1 {
		w.u32(nchain - 1)
	} else {
		w.u32(0)
	}
	for i := uint32(0); i < nchain; i++ {
		if i == 0 {
			w.u32(0)
		} else {
			w.u32(i - 1)
		}
	}

	return w.content
}

// EncodeGNUHash encodes a DT_GNU_HASH table with one bucket chaining symbols
// 1 .. nsyms-1.  The hash values are not real; only the bucket / chain walk
// used for symbol counting is meaningful.
func (b *Builder) EncodeGNUHash(nsyms uint32) []byte {
	wordSize := uint64(8)
	if b.Class == elf.Class32 {
		wordSize = 4
	}

	chains := uint64(0)
	if nsyms > 1 {
		chains = uint64(nsyms - 1)
	}

	w := &writer{
		ByteOrder: b.ByteOrder(),
		Class:     b.Class,
		content:   make([]byte, 16+wordSize+4+chains*4),
	}

	w.u32(1) // nbuckets
	w.u32(1) // symoffset
	w.u32(1) // bloom size
	w.u32(6) // bloom shift
	w.word(^uint64(0))

	if nsyms > 1 {
		w.u32(1)
	} else {
		w.u32(0)
	}

	for i := uint64(1); i <= chains; i++ {
		value := uint32(i << 1)
		if i == chains {
			value |= 1
		}
		w.u32(value)
	}

	return w.content
}
