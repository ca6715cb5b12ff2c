package elf

import (
	"fmt"
)

// TableSet is the result of parsing the section and program header tables
// directly from their on-disk locations.
type TableSet struct {
	Sections      []Section
	SectionStatus TableStatus

	// Why the section table was rejected.  nil when SectionStatus is native.
	SectionAbsentReason error

	Segments      []Segment
	SegmentStatus TableStatus

	anomalies []error
}

func (tables *TableSet) noteAnomaly(format string, args ...any) {
	tables.anomalies = append(tables.anomalies, fmt.Errorf(format, args...))
}

// ParseTables decodes the section and program header tables.  A table that
// fails a bounds or consistency check is reported as absent.  The only
// error is ErrTruncated, returned when the section header table starts
// within the file but its declared extent does not fit.
func ParseTables(img *Image) (*TableSet, error) {
	tables := &TableSet{}

	err := tables.parseSectionHeaders(img)
	if err != nil {
		return nil, err
	}

	tables.parseProgramHeaders(img)
	return tables, nil
}

func (tables *TableSet) rejectSections(format string, args ...any) {
	tables.Sections = []Section{}
	tables.SectionStatus = TableAbsent
	tables.SectionAbsentReason = fmt.Errorf(format, args...)
}

func (tables *TableSet) parseSectionHeaders(img *Image) error {
	offset := img.SectionHeaderOffset
	entrySize := img.Class.sectionHeaderEntrySize()

	if offset == 0 {
		tables.rejectSections("no section header table (e_shoff is zero)")
		return nil
	}

	if uint64(img.SectionHeaderEntrySize) != entrySize {
		tables.rejectSections(
			"unexpected %s section header entry size: %d",
			img.Class,
			img.SectionHeaderEntrySize)
		return nil
	}

	if offset >= img.Size() {
		tables.rejectSections(
			"out of bound section header offset (%#x >= %#x)",
			offset,
			img.Size())
		return nil
	}

	count := uint64(img.NumSectionHeaderEntries)
	if count == 0 {
		// Extended section numbering.  The real count lives in section 0's
		// sh_size.
		first, err := readSectionHeader(img, offset)
		if err != nil || first.Size == 0 {
			tables.rejectSections("no section header entries (e_shnum is zero)")
			return nil
		}

		count = first.Size
	}

	if count > (img.Size()-offset)/entrySize {
		return newLoadError(
			ErrTruncated,
			"section header table extends past end of file "+
				"(offset=%#x count=%d entsize=%d size=%#x)",
			offset,
			count,
			entrySize,
			img.Size())
	}

	sections := make([]Section, 0, count)
	for idx := uint64(0); idx < count; idx++ {
		section, err := readSectionHeader(img, offset+idx*entrySize)
		if err != nil {
			// unreachable given the extent check above.
			return newLoadError(ErrTruncated, "section header %d: %w", idx, err)
		}

		sections = append(sections, section)
	}

	// A table whose entries mostly point outside the file is garbage (e.g.,
	// overwritten by a packer), not a degraded table.
	outOfBound := 0
	withContent := 0
	for _, section := range sections {
		if !section.HasFileContent() {
			continue
		}

		withContent += 1
		_, err := img.ReadAt(section.Offset, section.Size)
		if err != nil {
			outOfBound += 1
		}
	}

	if withContent > 0 && outOfBound*2 > withContent {
		tables.rejectSections(
			"section header table is inconsistent "+
				"(%d of %d sections lie outside the file)",
			outOfBound,
			withContent)
		return nil
	}

	if len(sections) > 0 && sections[0].Type != SectionTypeNull {
		tables.noteAnomaly(
			"section 0 is not SHT_NULL (%s)",
			sections[0].Type)
	}

	tables.bindSectionNames(img, sections)

	tables.Sections = sections
	tables.SectionStatus = TableNative
	return nil
}

func readSectionHeader(img *Image, offset uint64) (Section, error) {
	dec, err := img.decoderAt(offset, img.Class.sectionHeaderEntrySize())
	if err != nil {
		return Section{}, err
	}

	section := Section{
		Provenance: ProvenanceNative,
	}

	section.NameIndex = dec.u32()
	section.Type = SectionType(dec.u32())
	section.Flags = SectionFlags(dec.word())
	section.Address = dec.word()
	section.Offset = dec.word()
	section.Size = dec.word()
	section.Link = dec.u32()
	section.Info = dec.u32()
	section.Alignment = dec.word()
	section.EntrySize = dec.word()

	return section, nil
}

func (tables *TableSet) bindSectionNames(img *Image, sections []Section) {
	idx := uint64(img.SectionStringTableIndex)
	if idx == uint64(SectionIndexUndefined) {
		tables.noteAnomaly("no section name string table (e_shstrndx is zero)")
		return
	}

	if idx == uint64(SectionIndexExtended) && len(sections) > 0 {
		idx = uint64(sections[0].Link)
	}

	if idx >= uint64(len(sections)) {
		tables.noteAnomaly(
			"section name index out of bound (%d >= %d)",
			idx,
			len(sections))
		return
	}

	names := sections[idx]
	if names.Type != SectionTypeStringTable {
		tables.noteAnomaly(
			"section name index (%d) does not point to a string table (%s)",
			idx,
			names.Type)
		return
	}

	content, err := img.ReadAt(names.Offset, names.Size)
	if err != nil {
		tables.noteAnomaly("section name string table unreadable: %w", err)
		return
	}

	table := NewStringTable(content)
	for i := range sections {
		sections[i].Name = table.Get(sections[i].NameIndex)
	}
}

func (tables *TableSet) parseProgramHeaders(img *Image) {
	tables.Segments = []Segment{}
	tables.SegmentStatus = TableAbsent

	offset := img.ProgramHeaderOffset
	entrySize := img.Class.programHeaderEntrySize()
	count := uint64(img.NumProgramHeaderEntries)

	if offset == 0 || count == 0 {
		return
	}

	if uint64(img.ProgramHeaderEntrySize) != entrySize {
		tables.noteAnomaly(
			"unexpected %s program header entry size: %d",
			img.Class,
			img.ProgramHeaderEntrySize)
		return
	}

	if count == MaxNumProgramHeaderEntries &&
		tables.SectionStatus == TableNative &&
		len(tables.Sections) > 0 {

		count = uint64(tables.Sections[0].Info)
	}

	if offset >= img.Size() || count > (img.Size()-offset)/entrySize {
		tables.noteAnomaly(
			"program header table out of bound "+
				"(offset=%#x count=%d entsize=%d size=%#x)",
			offset,
			count,
			entrySize,
			img.Size())
		return
	}

	segments := make([]Segment, 0, count)
	for idx := uint64(0); idx < count; idx++ {
		segment, err := readProgramHeader(img, offset+idx*entrySize)
		if err != nil {
			tables.noteAnomaly("program header %d: %w", idx, err)
			return
		}

		segments = append(segments, segment)
	}

	tables.Segments = segments
	tables.SegmentStatus = TableNative
}

func readProgramHeader(img *Image, offset uint64) (Segment, error) {
	dec, err := img.decoderAt(offset, img.Class.programHeaderEntrySize())
	if err != nil {
		return Segment{}, err
	}

	segment := Segment{}
	segment.Type = ProgramType(dec.u32())

	// NOTE: p_flags moved to the second field in Elf64_Phdr.
	if img.Class == Class64 {
		segment.Flags = ProgramFlags(dec.u32())
	}

	segment.Offset = dec.word()
	segment.VirtualAddress = dec.word()
	segment.PhysicalAddress = dec.word()
	segment.FileSize = dec.word()
	segment.MemorySize = dec.word()

	if img.Class == Class32 {
		segment.Flags = ProgramFlags(dec.u32())
	}

	segment.Alignment = dec.word()

	return segment, nil
}
