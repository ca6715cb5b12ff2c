// Based on linux's man page, elf.h, golang's debug/elf package,
// and the elf 1.2 spec.
package elf

import (
	"fmt"
)

var (
	// EI_MAG0 - EI_MAG3
	IdentifierMagic = []byte{
		0x7f, // ELFMAG0
		'E',  // ELFMAG1
		'L',  // ELFMAG2
		'F',  // ELFMAG3
	}
)

const (
	MaxNumProgramHeaderEntries = 0xffff // PN_XNUM
	MaxNumSectionHeaderEntries = 0xff00 // SHN_LORESERVE

	ElfIdentifierSize = 16

	Elf32HeaderSize             = 52
	Elf32SectionHeaderEntrySize = 40
	Elf32ProgramHeaderEntrySize = 32
	Elf32SymbolEntrySize        = 16
	Elf32DynamicEntrySize       = 8

	Elf64HeaderSize             = 64
	Elf64SectionHeaderEntrySize = 64
	Elf64ProgramHeaderEntrySize = 56
	Elf64SymbolEntrySize        = 24
	Elf64DynamicEntrySize       = 16

	// e_ident byte offsets
	identClassOffset   = 4
	identDataOffset    = 5
	identVersionOffset = 6
	identOSABIOffset   = 7
)

// EI_CLASS
type Class byte

const (
	ClassNone = Class(0) // ELFCLASSNONE
	Class32   = Class(1) // ELFCLASS32
	Class64   = Class(2) // ELFCLASS64
)

func (class Class) Known() bool {
	return class == Class32 || class == Class64
}

func (class Class) String() string {
	switch class {
	case ClassNone:
		return "ELFCLASSNONE"
	case Class32:
		return "ELF32"
	case Class64:
		return "ELF64"
	default:
		return fmt.Sprintf("ClassUnknown(%d)", class)
	}
}

// Per-class record sizes.  Only valid for known classes.
func (class Class) headerSize() uint64 {
	if class == Class32 {
		return Elf32HeaderSize
	}
	return Elf64HeaderSize
}

func (class Class) wordSize() uint64 {
	if class == Class32 {
		return 4
	}
	return 8
}

func (class Class) sectionHeaderEntrySize() uint64 {
	if class == Class32 {
		return Elf32SectionHeaderEntrySize
	}
	return Elf64SectionHeaderEntrySize
}

func (class Class) programHeaderEntrySize() uint64 {
	if class == Class32 {
		return Elf32ProgramHeaderEntrySize
	}
	return Elf64ProgramHeaderEntrySize
}

func (class Class) symbolEntrySize() uint64 {
	if class == Class32 {
		return Elf32SymbolEntrySize
	}
	return Elf64SymbolEntrySize
}

func (class Class) dynamicEntrySize() uint64 {
	if class == Class32 {
		return Elf32DynamicEntrySize
	}
	return Elf64DynamicEntrySize
}

// EI_DATA
type DataEncoding byte

const (
	DataEncodingNone                       = DataEncoding(0) // ELFDATANONE
	DataEncodingTwosComplementLittleEndian = DataEncoding(1) // ELFDATA2LSB
	DataEncodingTwosComplementBigEndian    = DataEncoding(2) // ELFDATA2MSB
)

func (encoding DataEncoding) Known() bool {
	return encoding == DataEncodingTwosComplementLittleEndian ||
		encoding == DataEncodingTwosComplementBigEndian
}

func (encoding DataEncoding) String() string {
	switch encoding {
	case DataEncodingNone:
		return "ELFDATANONE"
	case DataEncodingTwosComplementLittleEndian:
		return "2's complement, little endian"
	case DataEncodingTwosComplementBigEndian:
		return "2's complement, big endian"
	default:
		return fmt.Sprintf("DataEncodingUnknown(%d)", encoding)
	}
}

// EI_OSABI
// NOTE: golang's debug/elf.OSABI defines a more complete list
type OperatingSystemABI byte

const (
	OperatingSystemABIUnixSystemV = OperatingSystemABI(0)  // ELFOSABI_NONE
	OperatingSystemABINetBSD      = OperatingSystemABI(2)  // ELFOSABI_NETBSD
	OperatingSystemABILinux       = OperatingSystemABI(3)  // ELFOSABI_LINUX
	OperatingSystemABIFreeBSD     = OperatingSystemABI(9)  // ELFOSABI_FREEBSD
	OperatingSystemABIOpenBSD     = OperatingSystemABI(12) // ELFOSABI_OPENBSD
)

func (osAbi OperatingSystemABI) String() string {
	switch osAbi {
	case OperatingSystemABIUnixSystemV:
		return "UNIX - System V"
	case OperatingSystemABINetBSD:
		return "UNIX - NetBSD"
	case OperatingSystemABILinux:
		return "UNIX - GNU"
	case OperatingSystemABIFreeBSD:
		return "UNIX - FreeBSD"
	case OperatingSystemABIOpenBSD:
		return "UNIX - OpenBSD"
	default:
		return fmt.Sprintf("OperatingSystemABIUnknown(%d)", osAbi)
	}
}

// e_type
type FileType uint16

const (
	FileTypeNone         = FileType(0) // ET_NONE
	FileTypeRelocatable  = FileType(1) // ET_REL
	FileTypeExecutable   = FileType(2) // ET_EXEC
	FileTypeSharedObject = FileType(3) // ET_DYN
	FileTypeCore         = FileType(4) // ET_CORE
)

func (ft FileType) String() string {
	switch ft {
	case FileTypeNone:
		return "ET_NONE"
	case FileTypeRelocatable:
		return "ET_REL"
	case FileTypeExecutable:
		return "ET_EXEC"
	case FileTypeSharedObject:
		return "ET_DYN"
	case FileTypeCore:
		return "ET_CORE"
	default:
		return fmt.Sprintf("FileTypeUnknown(%d)", ft)
	}
}

// e_machine
// NOTE: golang's debug/elf.Machine defines a more complete list of machine
// types.
type MachineArchitecture uint16

const (
	MachineArchitectureNone    = MachineArchitecture(0)   // EM_NONE
	MachineArchitectureX86     = MachineArchitecture(3)   // EM_386
	MachineArchitectureMIPS    = MachineArchitecture(8)   // EM_MIPS
	MachineArchitecturePPC     = MachineArchitecture(20)  // EM_PPC
	MachineArchitecturePPC64   = MachineArchitecture(21)  // EM_PPC64
	MachineArchitectureARM     = MachineArchitecture(40)  // EM_ARM
	MachineArchitectureX86_64  = MachineArchitecture(62)  // EM_X86_64
	MachineArchitectureAArch64 = MachineArchitecture(183) // EM_AARCH64
	MachineArchitectureRISCV   = MachineArchitecture(243) // EM_RISCV
)

func (arch MachineArchitecture) String() string {
	switch arch {
	case MachineArchitectureNone:
		return "EM_NONE"
	case MachineArchitectureX86:
		return "x86"
	case MachineArchitectureMIPS:
		return "MIPS"
	case MachineArchitecturePPC:
		return "PowerPC"
	case MachineArchitecturePPC64:
		return "PowerPC64"
	case MachineArchitectureARM:
		return "ARM"
	case MachineArchitectureX86_64:
		return "x86-64"
	case MachineArchitectureAArch64:
		return "AArch64"
	case MachineArchitectureRISCV:
		return "RISC-V"
	default:
		return fmt.Sprintf("MachineArchitectureUnknown(%d)", arch)
	}
}

// p_type
type ProgramType uint32

// see debug/elf for a more complete list
const (
	ProgramNull            = ProgramType(0)          // PT_NULL
	ProgramLoadable        = ProgramType(1)          // PT_LOAD
	ProgramDynamicLinking  = ProgramType(2)          // PT_DYNAMIC
	ProgramInterpreterPath = ProgramType(3)          // PT_INTERP
	ProgramNote            = ProgramType(4)          // PT_NOTE
	ProgramShlib           = ProgramType(5)          // PT_SHLIB
	ProgramHeaderInfo      = ProgramType(6)          // PT_PHDR
	ProgramTLS             = ProgramType(7)          // PT_TLS
	ProgramGNUEHFrame      = ProgramType(0x6474e550) // PT_GNU_EH_FRAME
	ProgramGNUStack        = ProgramType(0x6474e551) // PT_GNU_STACK
	ProgramGNURelro        = ProgramType(0x6474e552) // PT_GNU_RELRO
	ProgramGNUProperty     = ProgramType(0x6474e553) // PT_GNU_PROPERTY
)

var programTypeNames = map[ProgramType]string{
	ProgramNull:            "PT_NULL",
	ProgramLoadable:        "PT_LOAD",
	ProgramDynamicLinking:  "PT_DYNAMIC",
	ProgramInterpreterPath: "PT_INTERP",
	ProgramNote:            "PT_NOTE",
	ProgramShlib:           "PT_SHLIB",
	ProgramHeaderInfo:      "PT_PHDR",
	ProgramTLS:             "PT_TLS",
	ProgramGNUEHFrame:      "PT_GNU_EH_FRAME",
	ProgramGNUStack:        "PT_GNU_STACK",
	ProgramGNURelro:        "PT_GNU_RELRO",
	ProgramGNUProperty:     "PT_GNU_PROPERTY",
}

func (segType ProgramType) Known() bool {
	_, ok := programTypeNames[segType]
	return ok
}

func (segType ProgramType) String() string {
	name, ok := programTypeNames[segType]
	if ok {
		return name
	}

	switch {
	case segType >= 0x60000000 && segType <= 0x6fffffff:
		return fmt.Sprintf("PT_LOOS+%#x", uint32(segType-0x60000000))
	case segType >= 0x70000000 && segType <= 0x7fffffff:
		return fmt.Sprintf("PT_LOPROC+%#x", uint32(segType-0x70000000))
	default:
		return fmt.Sprintf("ProgramUnknown(%d)", uint32(segType))
	}
}

// p_flags
type ProgramFlags uint32

const (
	ProgramFlagExecutableBit = ProgramFlags(0x1)
	ProgramFlagWritableBit   = ProgramFlags(0x2)
	ProgramFlagReadableBit   = ProgramFlags(0x4)

	programFlagPermissionMask = ProgramFlags(0x7)
)

func (bits ProgramFlags) Readable() bool {
	return bits&ProgramFlagReadableBit != 0
}

func (bits ProgramFlags) Writable() bool {
	return bits&ProgramFlagWritableBit != 0
}

func (bits ProgramFlags) Executable() bool {
	return bits&ProgramFlagExecutableBit != 0
}

func (bits ProgramFlags) String() string {
	if bits > programFlagPermissionMask {
		return fmt.Sprintf("%#x", uint32(bits))
	}

	rwx := []byte{'-', '-', '-'}
	if bits.Readable() {
		rwx[0] = 'r'
	}

	if bits.Writable() {
		rwx[1] = 'w'
	}

	if bits.Executable() {
		rwx[2] = 'x'
	}

	return string(rwx)
}

// sh_type
type SectionType uint32

const (
	SectionTypeNull                  = SectionType(0)          // SHT_NULL
	SectionTypeProgramDefinedInfo    = SectionType(1)          // SHT_PROGBITS
	SectionTypeSymbolTable           = SectionType(2)          // SHT_SYMTAB
	SectionTypeStringTable           = SectionType(3)          // SHT_STRTAB
	SectionTypeRelocationWithAddends = SectionType(4)          // SHT_RELA
	SectionTypeSymbolHashTable       = SectionType(5)          // SHT_HASH
	SectionTypeDynamic               = SectionType(6)          // SHT_DYNAMIC
	SectionTypeNote                  = SectionType(7)          // SHT_NOTE
	SectionTypeNoSpace               = SectionType(8)          // SHT_NOBITS
	SectionTypeRelocationNoAddends   = SectionType(9)          // SHT_REL
	SectionTypeShlib                 = SectionType(10)         // SHT_SHLIB
	SectionTypeDynamicSymbolTable    = SectionType(11)         // SHT_DYNSYM
	SectionTypeInitArray             = SectionType(14)         // SHT_INIT_ARRAY
	SectionTypeFiniArray             = SectionType(15)         // SHT_FINI_ARRAY
	SectionTypePreinitArray          = SectionType(16)         // SHT_PREINIT_ARRAY
	SectionTypeGroup                 = SectionType(17)         // SHT_GROUP
	SectionTypeSymbolTableIndex      = SectionType(18)         // SHT_SYMTAB_SHNDX
	SectionTypeGNUHash               = SectionType(0x6ffffff6) // SHT_GNU_HASH
	SectionTypeGNUVersionDefinition  = SectionType(0x6ffffffd) // SHT_GNU_verdef
	SectionTypeGNUVersionNeeded      = SectionType(0x6ffffffe) // SHT_GNU_verneed
	SectionTypeGNUVersionSymbol      = SectionType(0x6fffffff) // SHT_GNU_versym
)

var sectionTypeNames = map[SectionType]string{
	SectionTypeNull:                  "NULL",
	SectionTypeProgramDefinedInfo:    "PROGBITS",
	SectionTypeSymbolTable:           "SYMTAB",
	SectionTypeStringTable:           "STRTAB",
	SectionTypeRelocationWithAddends: "RELA",
	SectionTypeSymbolHashTable:       "HASH",
	SectionTypeDynamic:               "DYNAMIC",
	SectionTypeNote:                  "NOTE",
	SectionTypeNoSpace:               "NOBITS",
	SectionTypeRelocationNoAddends:   "REL",
	SectionTypeShlib:                 "SHLIB",
	SectionTypeDynamicSymbolTable:    "DYNSYM",
	SectionTypeInitArray:             "INIT_ARRAY",
	SectionTypeFiniArray:             "FINI_ARRAY",
	SectionTypePreinitArray:          "PREINIT_ARRAY",
	SectionTypeGroup:                 "GROUP",
	SectionTypeSymbolTableIndex:      "SYMTAB_SHNDX",
	SectionTypeGNUHash:               "GNU_HASH",
	SectionTypeGNUVersionDefinition:  "VERDEF",
	SectionTypeGNUVersionNeeded:      "VERNEED",
	SectionTypeGNUVersionSymbol:      "VERSYM",
}

func (stype SectionType) Known() bool {
	_, ok := sectionTypeNames[stype]
	return ok
}

func (stype SectionType) String() string {
	name, ok := sectionTypeNames[stype]
	if ok {
		return name
	}
	return fmt.Sprintf("SectionTypeUnknown(%#x)", uint32(stype))
}

// sh_flags
type SectionFlags uint64

const (
	SectionContainsWritableData         = SectionFlags(0x1)   // SHF_WRITE
	SectionOccupiesMemory               = SectionFlags(0x2)   // SHF_ALLOC
	SectionContainsInstructions         = SectionFlags(0x4)   // SHF_EXECINSTR
	SectionMayBeMerged                  = SectionFlags(0x10)  // SHF_MERGE
	SectionContainsStrings              = SectionFlags(0x20)  // SHF_STRINGS
	SectionInfoHoldsSectionIndex        = SectionFlags(0x40)  // SHF_INFO_LINK
	SectionRequiresSpecialOrdering      = SectionFlags(0x80)  // SHF_LINK_ORDER
	SectionRequiresOsSpecificProcessing = SectionFlags(0x100) // SHF_OS_NONCONFORMING
	SectionIsGroupMember                = SectionFlags(0x200) // SHF_GROUP
	SectionContainsTLSData              = SectionFlags(0x400) // SHF_TLS
	SectionIsCompressed                 = SectionFlags(0x800) // SHF_COMPRESSED
)

func (flags SectionFlags) Allocated() bool {
	return flags&SectionOccupiesMemory != 0
}

func (flags SectionFlags) Executable() bool {
	return flags&SectionContainsInstructions != 0
}

func (flags SectionFlags) Writable() bool {
	return flags&SectionContainsWritableData != 0
}

// AXW returns the three column flag summary used by section listings.
func (flags SectionFlags) AXW() string {
	result := []byte{' ', ' ', ' '}
	if flags.Allocated() {
		result[0] = 'A'
	}
	if flags.Executable() {
		result[1] = 'X'
	}
	if flags.Writable() {
		result[2] = 'W'
	}
	return string(result)
}

func (flags SectionFlags) String() string {
	result := make([]byte, 11)
	for i := 0; i < 11; i++ {
		result[i] = '-'
	}

	if flags&SectionContainsWritableData != 0 {
		result[0] = 'w'
	}
	if flags&SectionOccupiesMemory != 0 {
		result[1] = 'a'
	}
	if flags&SectionContainsInstructions != 0 {
		result[2] = 'x'
	}
	if flags&SectionMayBeMerged != 0 {
		result[3] = 'm'
	}
	if flags&SectionContainsStrings != 0 {
		result[4] = 's'
	}
	if flags&SectionInfoHoldsSectionIndex != 0 {
		result[5] = 'i'
	}
	if flags&SectionRequiresSpecialOrdering != 0 {
		result[6] = 'l'
	}
	if flags&SectionRequiresOsSpecificProcessing != 0 {
		result[7] = 'o'
	}
	if flags&SectionIsGroupMember != 0 {
		result[8] = 'g'
	}
	if flags&SectionContainsTLSData != 0 {
		result[9] = 't'
	}
	if flags&SectionIsCompressed != 0 {
		result[10] = 'c'
	}

	return string(result)
}

// The bottom 4 bits of st_info
type SymbolType byte

func SymbolInfoToType(info byte) SymbolType {
	return SymbolType(info & 0xf)
}

const (
	SymbolTypeNone                     = SymbolType(0)  // STT_NOTYPE
	SymbolTypeObject                   = SymbolType(1)  // STT_OBJECT
	SymbolTypeFunction                 = SymbolType(2)  // STT_FUNC
	SymbolTypeSection                  = SymbolType(3)  // STT_SECTION
	SymbolTypeSourceFile               = SymbolType(4)  // STT_FILE
	SymbolTypeUninitializedCommonBlock = SymbolType(5)  // STT_COMMON
	SymbolTypeTLSObject                = SymbolType(6)  // STT_TLS
	SymbolTypeIndirectFunction         = SymbolType(10) // STT_GNU_IFUNC
)

func (st SymbolType) Known() bool {
	return st <= SymbolTypeTLSObject || st == SymbolTypeIndirectFunction
}

func (st SymbolType) String() string {
	switch st {
	case SymbolTypeNone:
		return "NOTYPE"
	case SymbolTypeObject:
		return "OBJECT"
	case SymbolTypeFunction:
		return "FUNC"
	case SymbolTypeSection:
		return "SECTION"
	case SymbolTypeSourceFile:
		return "FILE"
	case SymbolTypeUninitializedCommonBlock:
		return "COMMON"
	case SymbolTypeTLSObject:
		return "TLS"
	case SymbolTypeIndirectFunction:
		return "IFUNC"
	default:
		return fmt.Sprintf("SymbolTypeUnknown(%d)", st)
	}
}

// The top 4 bits of st_info
type SymbolBinding byte

func SymbolInfoToBinding(info byte) SymbolBinding {
	return SymbolBinding(info >> 4)
}

const (
	SymbolBindingLocal  = SymbolBinding(0)  // STB_LOCAL
	SymbolBindingGlobal = SymbolBinding(1)  // STB_GLOBAL
	SymbolBindingWeak   = SymbolBinding(2)  // STB_WEAK
	SymbolBindingUnique = SymbolBinding(10) // STB_GNU_UNIQUE
)

func (sb SymbolBinding) Known() bool {
	return sb <= SymbolBindingWeak || sb == SymbolBindingUnique
}

func (sb SymbolBinding) String() string {
	switch sb {
	case SymbolBindingLocal:
		return "LOCAL"
	case SymbolBindingGlobal:
		return "GLOBAL"
	case SymbolBindingWeak:
		return "WEAK"
	case SymbolBindingUnique:
		return "UNIQUE"
	default:
		return fmt.Sprintf("SymbolBindingUnknown(%d)", sb)
	}
}

// The bottom 2 bits of st_other
type SymbolVisibility byte

func SymbolOtherToVisibility(other byte) SymbolVisibility {
	return SymbolVisibility(other & 0x3)
}

const (
	SymbolVisibilityDefault   = SymbolVisibility(0) // STV_DEFAULT
	SymbolVisibilityInternal  = SymbolVisibility(1) // STV_INTERNAL
	SymbolVisibilityHidden    = SymbolVisibility(2) // STV_HIDDEN
	SymbolVisibilityProtected = SymbolVisibility(3) // STV_PROTECTED
)

func (vis SymbolVisibility) String() string {
	switch vis {
	case SymbolVisibilityDefault:
		return "DEFAULT"
	case SymbolVisibilityInternal:
		return "INTERNAL"
	case SymbolVisibilityHidden:
		return "HIDDEN"
	case SymbolVisibilityProtected:
		return "PROTECTED"
	default:
		return fmt.Sprintf("SymbolVisibilityUnknown(%d)", vis)
	}
}

// st_shndx
type SectionIndex uint16

const (
	SectionIndexUndefined = SectionIndex(0)      // SHN_UNDEF
	SectionIndexLoReserve = SectionIndex(0xff00) // SHN_LORESERVE
	SectionIndexAbsolute  = SectionIndex(0xfff1) // SHN_ABS
	SectionIndexCommon    = SectionIndex(0xfff2) // SHN_COMMON
	SectionIndexExtended  = SectionIndex(0xffff) // SHN_XINDEX
)

// Reserved reports whether the index is one of the special sentinels rather
// than a reference into the section sequence.
func (idx SectionIndex) Reserved() bool {
	return idx == SectionIndexUndefined || idx >= SectionIndexLoReserve
}

func (idx SectionIndex) String() string {
	switch idx {
	case SectionIndexUndefined:
		return "UND"
	case SectionIndexAbsolute:
		return "ABS"
	case SectionIndexCommon:
		return "COM"
	case SectionIndexExtended:
		return "XINDEX"
	default:
		return fmt.Sprintf("%d", uint16(idx))
	}
}

// d_tag values needed to locate the dynamic symbol table and its
// companions.
type DynamicTag int64

const (
	DynamicNull          = DynamicTag(0)          // DT_NULL
	DynamicPLTRelSize    = DynamicTag(2)          // DT_PLTRELSZ
	DynamicHash          = DynamicTag(4)          // DT_HASH
	DynamicStringTable   = DynamicTag(5)          // DT_STRTAB
	DynamicSymbolTable   = DynamicTag(6)          // DT_SYMTAB
	DynamicRela          = DynamicTag(7)          // DT_RELA
	DynamicRelaSize      = DynamicTag(8)          // DT_RELASZ
	DynamicRelaEntSize   = DynamicTag(9)          // DT_RELAENT
	DynamicStringSize    = DynamicTag(10)         // DT_STRSZ
	DynamicSymbolEntSize = DynamicTag(11)         // DT_SYMENT
	DynamicRel           = DynamicTag(17)         // DT_REL
	DynamicRelSize       = DynamicTag(18)         // DT_RELSZ
	DynamicRelEntSize    = DynamicTag(19)         // DT_RELENT
	DynamicPLTRel        = DynamicTag(20)         // DT_PLTREL
	DynamicJmpRel        = DynamicTag(23)         // DT_JMPREL
	DynamicInitArray     = DynamicTag(25)         // DT_INIT_ARRAY
	DynamicFiniArray     = DynamicTag(26)         // DT_FINI_ARRAY
	DynamicInitArraySize = DynamicTag(27)         // DT_INIT_ARRAYSZ
	DynamicFiniArraySize = DynamicTag(28)         // DT_FINI_ARRAYSZ
	DynamicGNUHash       = DynamicTag(0x6ffffef5) // DT_GNU_HASH
)

// Decoded, class independent header records.

// Elf32_Ehdr / Elf64_Ehdr
type ElfHeader struct {
	Class
	DataEncoding
	OperatingSystemABI
	ABIVersion byte

	FileType
	MachineArchitecture
	FormatVersion           uint32 // e_version
	EntryPointAddress       uint64 // e_entry
	ProgramHeaderOffset     uint64 // e_phoff
	SectionHeaderOffset     uint64 // e_shoff
	ArchitectureFlags       uint32 // e_flags
	ElfHeaderSize           uint16 // e_ehsize
	ProgramHeaderEntrySize  uint16 // e_phentsize
	NumProgramHeaderEntries uint16 // e_phnum
	SectionHeaderEntrySize  uint16 // e_shentsize
	NumSectionHeaderEntries uint16 // e_shnum
	SectionStringTableIndex uint16 // e_shstrndx
}

func (header ElfHeader) String() string {
	return fmt.Sprintf(
		"%s %s %s %s entry=%#x phoff=%#x phnum=%d shoff=%#x shnum=%d shstrndx=%d",
		header.Class,
		header.DataEncoding,
		header.FileType,
		header.MachineArchitecture,
		header.EntryPointAddress,
		header.ProgramHeaderOffset,
		header.NumProgramHeaderEntries,
		header.SectionHeaderOffset,
		header.NumSectionHeaderEntries,
		header.SectionStringTableIndex)
}
