package elftest

import (
	"encoding/binary"

	"github.com/pattyshack/relf/elf"
)

const (
	TextBaseAddress = 0x400000
	DataBaseAddress = 0x600000

	Interpreter = "/lib64/ld-linux-x86-64.so.2"
)

// Minimal returns a 64-bit little endian executable with three sections
// (NULL, .text, .shstrtab) and two segments (PT_LOAD, PT_GNU_STACK).
func Minimal() []byte {
	b := New(elf.Class64, elf.DataEncodingTwosComplementLittleEndian)

	textOffset := b.ContentStart(2)
	textSize := uint64(0x20)
	b.Entry = TextBaseAddress + textOffset

	b.AddSegment(elf.Segment{
		Type:            elf.ProgramLoadable,
		Flags:           elf.ProgramFlagReadableBit | elf.ProgramFlagExecutableBit,
		Offset:          0,
		VirtualAddress:  TextBaseAddress,
		PhysicalAddress: TextBaseAddress,
		FileSize:        textOffset + textSize,
		MemorySize:      textOffset + textSize,
		Alignment:       0x1000,
	})
	b.AddSegment(elf.Segment{
		Type:      elf.ProgramGNUStack,
		Flags:     elf.ProgramFlagReadableBit | elf.ProgramFlagWritableBit,
		Alignment: 0x10,
	})

	b.AddSection(elf.Section{
		Name: ".text",
		Type: elf.SectionTypeProgramDefinedInfo,
		Flags: elf.SectionOccupiesMemory |
			elf.SectionContainsInstructions,
		Address:   TextBaseAddress + textOffset,
		Offset:    textOffset,
		Size:      textSize,
		Alignment: 16,
	})

	text := make([]byte, textSize)
	for i := range text {
		text[i] = 0x90 // nop
	}
	b.Place(textOffset, text)

	return b.Bytes()
}

// DynamicSymbol describes one symbol in the Dynamic fixture.
type DynamicSymbol struct {
	Name    string
	Type    elf.SymbolType
	Binding elf.SymbolBinding
	Defined bool // defined in .text when true, undefined otherwise
}

var DefaultDynamicSymbols = []DynamicSymbol{
	{Name: "puts", Type: elf.SymbolTypeFunction, Binding: elf.SymbolBindingGlobal},
	{
		Name:    "_ZN3foo3barEv",
		Type:    elf.SymbolTypeFunction,
		Binding: elf.SymbolBindingGlobal,
		Defined: true,
	},
	{
		Name:    "counter",
		Type:    elf.SymbolTypeObject,
		Binding: elf.SymbolBindingGlobal,
		Defined: true,
	},
	{Name: "__gmon_start__", Type: elf.SymbolTypeNone, Binding: elf.SymbolBindingWeak},
}

type DynamicOptions struct {
	Class    elf.Class
	Encoding elf.DataEncoding

	// Omit DT_HASH so the symbol count must come from the dynsym / dynstr
	// gap.
	NoHash bool

	// Emit DT_GNU_HASH (and .gnu.hash) instead of DT_HASH.
	GNUHash bool

	Symbols []DynamicSymbol
}

// Dynamic is a dynamically linked executable together with the facts tests
// assert on.
type Dynamic struct {
	Content []byte

	// Section indices in the native section table.
	InterpIndex  uint32
	HashIndex    uint32
	DynsymIndex  uint32
	DynstrIndex  uint32
	TextIndex    uint32
	DynamicIndex uint32
	DataIndex    uint32
	BssIndex     uint32

	NumSections int
	NumSegments int

	// Includes the leading null symbol.
	NumSymbols int
	Symbols    []DynamicSymbol

	TextAddress uint64
	TextOffset  uint64
	TextSize    uint64
	DataAddress uint64
}

// NewDynamic builds a dynamically linked executable with .interp, .hash,
// .dynsym, .dynstr, .text, .dynamic, .data and .bss, mapped by two PT_LOAD
// segments plus PT_INTERP, PT_DYNAMIC and PT_GNU_STACK.
func NewDynamic(opts DynamicOptions) *Dynamic {
	if opts.Class == elf.ClassNone {
		opts.Class = elf.Class64
	}
	if opts.Encoding == elf.DataEncodingNone {
		opts.Encoding = elf.DataEncodingTwosComplementLittleEndian
	}
	if opts.Symbols == nil {
		opts.Symbols = DefaultDynamicSymbols
	}

	b := New(opts.Class, opts.Encoding)
	wordSize := uint64(8)
	if opts.Class == elf.Class32 {
		wordSize = 4
		b.Machine = elf.MachineArchitectureX86
	}

	const numSegments = 5
	fixture := &Dynamic{
		NumSegments: numSegments,
		NumSymbols:  len(opts.Symbols) + 1,
		Symbols:     opts.Symbols,
	}

	// Read-only / executable image.
	interpOffset := b.ContentStart(numSegments)
	interp := append([]byte(Interpreter), 0)

	hash := b.EncodeSysvHash(uint32(fixture.NumSymbols))
	hashName := ".hash"
	hashType := elf.SectionTypeSymbolHashTable
	hashTag := elf.DynamicHash
	hashEntrySize := uint64(4)
	if opts.GNUHash {
		hash = b.EncodeGNUHash(uint32(fixture.NumSymbols))
		hashName = ".gnu.hash"
		hashType = elf.SectionTypeGNUHash
		hashTag = elf.DynamicGNUHash
		hashEntrySize = 0
	}
	hashOffset := align(interpOffset+uint64(len(interp)), 8)

	dynsymOffset := align(hashOffset+uint64(len(hash)), 8)
	if opts.NoHash {
		dynsymOffset = align(interpOffset+uint64(len(interp)), 8)
	}
	dynsymSize := uint64(fixture.NumSymbols) * b.SymbolEntrySize()

	dynstr := NewStringTable()
	dynstrOffset := dynsymOffset + dynsymSize

	// Section indices (0 is NULL).
	fixture.InterpIndex = 1
	nextIndex := uint32(2)
	if !opts.NoHash {
		fixture.HashIndex = nextIndex
		nextIndex += 1
	}
	fixture.DynsymIndex = nextIndex
	fixture.DynstrIndex = nextIndex + 1
	fixture.TextIndex = nextIndex + 2
	fixture.DynamicIndex = nextIndex + 3
	fixture.DataIndex = nextIndex + 4
	fixture.BssIndex = nextIndex + 5

	symbols := []SymbolSpec{{}}
	for _, sym := range opts.Symbols {
		spec := SymbolSpec{
			NameIndex: dynstr.Add(sym.Name),
			Type:      sym.Type,
			Binding:   sym.Binding,
		}
		if sym.Defined {
			spec.SectionIndex = elf.SectionIndex(fixture.TextIndex)
		}
		symbols = append(symbols, spec)
	}

	dynstrSize := uint64(len(dynstr.Bytes()))
	fixture.TextOffset = align(dynstrOffset+dynstrSize, 16)
	fixture.TextSize = 0x40
	fixture.TextAddress = TextBaseAddress + fixture.TextOffset

	// Patch symbol values now that .text is placed.
	for i := 1; i < len(symbols); i++ {
		if symbols[i].SectionIndex != elf.SectionIndexUndefined {
			symbols[i].Value = fixture.TextAddress + uint64(i)*4
			symbols[i].Size = 4
		}
	}

	textSegmentSize := fixture.TextOffset + fixture.TextSize

	// Writable image.
	dataSegmentOffset := align(textSegmentSize, 16)
	dataSegmentAddress := DataBaseAddress + dataSegmentOffset

	dynamicEntries := []DynamicEntry{
		{Tag: elf.DynamicStringTable, Value: TextBaseAddress + dynstrOffset},
		{Tag: elf.DynamicSymbolTable, Value: TextBaseAddress + dynsymOffset},
		{Tag: elf.DynamicStringSize, Value: dynstrSize},
		{Tag: elf.DynamicSymbolEntSize, Value: b.SymbolEntrySize()},
	}
	if !opts.NoHash {
		dynamicEntries = append(
			[]DynamicEntry{
				{Tag: hashTag, Value: TextBaseAddress + hashOffset},
			},
			dynamicEntries...)
	}
	dynamic := b.EncodeDynamic(dynamicEntries)

	dataOffset := dataSegmentOffset + uint64(len(dynamic))
	dataSize := uint64(0x20)
	bssSize := uint64(0x30)
	fixture.DataAddress = DataBaseAddress + dataOffset

	dataSegmentFileSize := dataOffset + dataSize - dataSegmentOffset

	b.Entry = fixture.TextAddress
	b.AddSegment(elf.Segment{
		Type:            elf.ProgramInterpreterPath,
		Flags:           elf.ProgramFlagReadableBit,
		Offset:          interpOffset,
		VirtualAddress:  TextBaseAddress + interpOffset,
		PhysicalAddress: TextBaseAddress + interpOffset,
		FileSize:        uint64(len(interp)),
		MemorySize:      uint64(len(interp)),
		Alignment:       1,
	})
	b.AddSegment(elf.Segment{
		Type:            elf.ProgramLoadable,
		Flags:           elf.ProgramFlagReadableBit | elf.ProgramFlagExecutableBit,
		Offset:          0,
		VirtualAddress:  TextBaseAddress,
		PhysicalAddress: TextBaseAddress,
		FileSize:        textSegmentSize,
		MemorySize:      textSegmentSize,
		Alignment:       0x1000,
	})
	b.AddSegment(elf.Segment{
		Type:            elf.ProgramLoadable,
		Flags:           elf.ProgramFlagReadableBit | elf.ProgramFlagWritableBit,
		Offset:          dataSegmentOffset,
		VirtualAddress:  dataSegmentAddress,
		PhysicalAddress: dataSegmentAddress,
		FileSize:        dataSegmentFileSize,
		MemorySize:      dataSegmentFileSize + bssSize,
		Alignment:       0x1000,
	})
	b.AddSegment(elf.Segment{
		Type:            elf.ProgramDynamicLinking,
		Flags:           elf.ProgramFlagReadableBit | elf.ProgramFlagWritableBit,
		Offset:          dataSegmentOffset,
		VirtualAddress:  dataSegmentAddress,
		PhysicalAddress: dataSegmentAddress,
		FileSize:        uint64(len(dynamic)),
		MemorySize:      uint64(len(dynamic)),
		Alignment:       wordSize,
	})
	b.AddSegment(elf.Segment{
		Type:      elf.ProgramGNUStack,
		Flags:     elf.ProgramFlagReadableBit | elf.ProgramFlagWritableBit,
		Alignment: 0x10,
	})

	b.AddSection(elf.Section{
		Name:      ".interp",
		Type:      elf.SectionTypeProgramDefinedInfo,
		Flags:     elf.SectionOccupiesMemory,
		Address:   TextBaseAddress + interpOffset,
		Offset:    interpOffset,
		Size:      uint64(len(interp)),
		Alignment: 1,
	})
	if !opts.NoHash {
		b.AddSection(elf.Section{
			Name:      hashName,
			Type:      hashType,
			Flags:     elf.SectionOccupiesMemory,
			Address:   TextBaseAddress + hashOffset,
			Offset:    hashOffset,
			Size:      uint64(len(hash)),
			Link:      fixture.DynsymIndex,
			Alignment: wordSize,
			EntrySize: hashEntrySize,
		})
	}
	b.AddSection(elf.Section{
		Name:      ".dynsym",
		Type:      elf.SectionTypeDynamicSymbolTable,
		Flags:     elf.SectionOccupiesMemory,
		Address:   TextBaseAddress + dynsymOffset,
		Offset:    dynsymOffset,
		Size:      dynsymSize,
		Link:      fixture.DynstrIndex,
		Info:      1,
		Alignment: wordSize,
		EntrySize: b.SymbolEntrySize(),
	})
	b.AddSection(elf.Section{
		Name:      ".dynstr",
		Type:      elf.SectionTypeStringTable,
		Flags:     elf.SectionOccupiesMemory,
		Address:   TextBaseAddress + dynstrOffset,
		Offset:    dynstrOffset,
		Size:      dynstrSize,
		Alignment: 1,
	})
	b.AddSection(elf.Section{
		Name: ".text",
		Type: elf.SectionTypeProgramDefinedInfo,
		Flags: elf.SectionOccupiesMemory |
			elf.SectionContainsInstructions,
		Address:   fixture.TextAddress,
		Offset:    fixture.TextOffset,
		Size:      fixture.TextSize,
		Alignment: 16,
	})
	b.AddSection(elf.Section{
		Name: ".dynamic",
		Type: elf.SectionTypeDynamic,
		Flags: elf.SectionOccupiesMemory |
			elf.SectionContainsWritableData,
		Address:   dataSegmentAddress,
		Offset:    dataSegmentOffset,
		Size:      uint64(len(dynamic)),
		Link:      fixture.DynstrIndex,
		Alignment: wordSize,
		EntrySize: b.DynamicEntrySize(),
	})
	b.AddSection(elf.Section{
		Name: ".data",
		Type: elf.SectionTypeProgramDefinedInfo,
		Flags: elf.SectionOccupiesMemory |
			elf.SectionContainsWritableData,
		Address:   fixture.DataAddress,
		Offset:    dataOffset,
		Size:      dataSize,
		Alignment: 8,
	})
	b.AddSection(elf.Section{
		Name: ".bss",
		Type: elf.SectionTypeNoSpace,
		Flags: elf.SectionOccupiesMemory |
			elf.SectionContainsWritableData,
		Address:   fixture.DataAddress + dataSize,
		Offset:    dataOffset + dataSize,
		Size:      bssSize,
		Alignment: 8,
	})

	b.Place(interpOffset, interp)
	if !opts.NoHash {
		b.Place(hashOffset, hash)
	}
	b.Place(dynsymOffset, b.EncodeSymbols(symbols))
	b.Place(dynstrOffset, dynstr.Bytes())
	text := make([]byte, fixture.TextSize)
	for i := range text {
		text[i] = 0xcc // int3
	}
	b.Place(fixture.TextOffset, text)
	b.Place(dataSegmentOffset, dynamic)
	b.Place(dataOffset, make([]byte, dataSize))

	fixture.Content = b.Bytes()
	fixture.NumSections = int(fixture.BssIndex) + 2 // + NULL ... .shstrtab
	return fixture
}

type headerLayout struct {
	binary.ByteOrder

	phoff int
	shoff int
	phnum int
	shnum int
	word  int
}

func layoutOf(content []byte) headerLayout {
	var order binary.ByteOrder = binary.LittleEndian
	if elf.DataEncoding(content[5]) == elf.DataEncodingTwosComplementBigEndian {
		order = binary.BigEndian
	}

	if elf.Class(content[4]) == elf.Class32 {
		return headerLayout{
			ByteOrder: order,
			phoff:     0x1c,
			shoff:     0x20,
			phnum:     0x2c,
			shnum:     0x30,
			word:      4,
		}
	}

	return headerLayout{
		ByteOrder: order,
		phoff:     0x20,
		shoff:     0x28,
		phnum:     0x38,
		shnum:     0x3c,
		word:      8,
	}
}

func (layout headerLayout) putWord(content []byte, pos int, val uint64) {
	if layout.word == 4 {
		layout.PutUint32(content[pos:], uint32(val))
	} else {
		layout.PutUint64(content[pos:], val)
	}
}

func (layout headerLayout) getWord(content []byte, pos int) uint64 {
	if layout.word == 4 {
		return uint64(layout.Uint32(content[pos:]))
	}
	return layout.Uint64(content[pos:])
}

func clone(content []byte) []byte {
	return append([]byte{}, content...)
}

// SectionHeaderOffset returns e_shoff.
func SectionHeaderOffset(content []byte) uint64 {
	layout := layoutOf(content)
	return layout.getWord(content, layout.shoff)
}

// WithSectionHeaderOffset returns a copy of content with e_shoff replaced.
func WithSectionHeaderOffset(content []byte, offset uint64) []byte {
	result := clone(content)
	layout := layoutOf(result)
	layout.putWord(result, layout.shoff, offset)
	return result
}

// WithSectionHeaderCount returns a copy of content with e_shnum replaced.
func WithSectionHeaderCount(content []byte, count uint16) []byte {
	result := clone(content)
	layout := layoutOf(result)
	layout.PutUint16(result[layout.shnum:], count)
	return result
}

// WithProgramHeaderOffset returns a copy of content with e_phoff replaced.
func WithProgramHeaderOffset(content []byte, offset uint64) []byte {
	result := clone(content)
	layout := layoutOf(result)
	layout.putWord(result, layout.phoff, offset)
	return result
}

// StripSectionHeaders returns a copy of content with the trailing section
// header table cut off and e_shoff / e_shnum / e_shstrndx cleared, the way
// sstrip-like tools leave a binary.
func StripSectionHeaders(content []byte) []byte {
	layout := layoutOf(content)
	shoff := layout.getWord(content, layout.shoff)

	result := clone(content[:shoff])
	layout.putWord(result, layout.shoff, 0)
	layout.PutUint16(result[layout.shnum:], 0)
	layout.PutUint16(result[layout.shnum+2:], 0)
	return result
}

// WithSectionType returns a copy of content with the index-th section
// header's sh_type replaced.
func WithSectionType(
	content []byte,
	index int,
	sectionType elf.SectionType,
) []byte {
	result := clone(content)
	layout := layoutOf(result)

	entrySize := elf.Elf64SectionHeaderEntrySize
	if layout.word == 4 {
		entrySize = elf.Elf32SectionHeaderEntrySize
	}

	pos := int(layout.getWord(result, layout.shoff)) + index*entrySize + 4
	layout.PutUint32(result[pos:], uint32(sectionType))
	return result
}
