package elf

import (
	"bytes"
	"fmt"
)

// Provenance records whether a record was read directly from on-disk headers
// or synthesized by reconstruction.
type Provenance byte

const (
	ProvenanceNative        = Provenance(0)
	ProvenanceReconstructed = Provenance(1)
)

func (p Provenance) String() string {
	switch p {
	case ProvenanceNative:
		return "native"
	case ProvenanceReconstructed:
		return "reconstructed"
	default:
		return fmt.Sprintf("ProvenanceUnknown(%d)", p)
	}
}

// TableStatus is the provenance of a whole record table.  It is assigned
// exactly once while the File is built.
type TableStatus byte

const (
	TableAbsent        = TableStatus(0)
	TableNative        = TableStatus(1)
	TableReconstructed = TableStatus(2)
)

func (status TableStatus) String() string {
	switch status {
	case TableAbsent:
		return "absent"
	case TableNative:
		return "native"
	case TableReconstructed:
		return "reconstructed"
	default:
		return fmt.Sprintf("TableStatusUnknown(%d)", status)
	}
}

// Section is one section header record, either decoded from the section
// header table or synthesized by the reconstructor.  Name is empty when no
// reliable name is known.
type Section struct {
	Name      string
	NameIndex uint32 // sh_name; zero for reconstructed sections

	Type      SectionType
	Flags     SectionFlags
	Address   uint64
	Offset    uint64
	Size      uint64
	EntrySize uint64

	// Link is an index into the same section sequence.  It may not resolve;
	// consumers display the raw number in that case.
	Link      uint32
	Info      uint32
	Alignment uint64

	Provenance
}

// HasFileContent reports whether the section occupies bytes in the file.
func (section Section) HasFileContent() bool {
	return section.Type != SectionTypeNoSpace &&
		section.Type != SectionTypeNull &&
		section.Size > 0
}

func (section Section) ContainsAddress(address uint64) bool {
	return section.Flags.Allocated() &&
		section.Address <= address &&
		address-section.Address < section.Size
}

func (section Section) String() string {
	return fmt.Sprintf(
		"%s %s addr=%#x off=%#x size=%#x entsize=%#x flags=%s link=%d info=%d "+
			"align=%d (%s)",
		section.Name,
		section.Type,
		section.Address,
		section.Offset,
		section.Size,
		section.EntrySize,
		section.Flags.AXW(),
		section.Link,
		section.Info,
		section.Alignment,
		section.Provenance)
}

// StringTable is a view over a string table section's bytes.
type StringTable struct {
	Content []byte
}

func NewStringTable(content []byte) StringTable {
	return StringTable{
		Content: content,
	}
}

// Get returns the NUL terminated string starting at index, or the empty
// string when index is out of range or the string is unterminated.
func (table StringTable) Get(index uint32) string {
	if index >= uint32(len(table.Content)) {
		return ""
	}

	chunk := table.Content[index:]
	end := bytes.IndexByte(chunk, 0)
	if end == -1 {
		return ""
	}

	return string(chunk[:end])
}

func (table StringTable) NumEntries() int {
	if len(table.Content) == 0 {
		return 0
	}

	count := 0
	for _, b := range table.Content[1:] {
		if b == 0 {
			count += 1
		}
	}
	return count
}

// Segment is one program header record.
type Segment struct {
	Type            ProgramType  // p_type
	Flags           ProgramFlags // p_flags
	Offset          uint64       // p_offset
	VirtualAddress  uint64       // p_vaddr
	PhysicalAddress uint64       // p_paddr
	FileSize        uint64       // p_filesz
	MemorySize      uint64       // p_memsz
	Alignment       uint64       // p_align
}

func (segment Segment) IsLoadable() bool {
	return segment.Type == ProgramLoadable
}

// FileOffsetOf translates a virtual address within the segment's file
// backed portion into a file offset.
func (segment Segment) FileOffsetOf(address uint64) (uint64, bool) {
	if address < segment.VirtualAddress {
		return 0, false
	}

	delta := address - segment.VirtualAddress
	if delta >= segment.FileSize {
		return 0, false
	}

	return segment.Offset + delta, true
}

func (segment Segment) String() string {
	return fmt.Sprintf(
		"%s %s off=%#x vaddr=%#x paddr=%#x filesz=%#x memsz=%#x align=%#x",
		segment.Type,
		segment.Flags,
		segment.Offset,
		segment.VirtualAddress,
		segment.PhysicalAddress,
		segment.FileSize,
		segment.MemorySize,
		segment.Alignment)
}
