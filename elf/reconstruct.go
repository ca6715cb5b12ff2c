package elf

import (
	"fmt"
	"sort"

	"github.com/samber/lo"
)

const (
	DefaultStringScanWindow = 64 * 1024
	DefaultMinScanStrings   = 4

	gnuHashHeaderSize = 16
)

// Roles identify synthetic sections while links are still being wired.
const (
	roleNull    = "null"
	roleDynStr  = "dynstr"
	roleDynSym  = "dynsym"
	roleDynamic = "dynamic"
	roleHash    = "hash"
	roleGNUHash = "gnu.hash"
	roleRelaDyn = "rela.dyn"
	roleRelaPLT = "rela.plt"
	roleScanStr = "scanned.strtab"
	roleNoLinks = ""
)

type synthetic struct {
	Section

	role     string
	linkRole string
}

// reconstructor synthesizes a best-effort section list from the program
// headers when the section header table is absent.  Every failure it runs
// into degrades the output instead of aborting.
type reconstructor struct {
	*Image

	loads    []Segment
	segments []Segment

	scanWindow uint64
	minStrings int

	sections  []*synthetic
	dynamic   map[DynamicTag]uint64
	anomalies []error
}

func newReconstructor(
	img *Image,
	segments []Segment,
	opts *options,
) *reconstructor {
	return &reconstructor{
		Image:    img,
		segments: segments,
		loads: lo.Filter(segments, func(seg Segment, _ int) bool {
			return seg.IsLoadable()
		}),
		scanWindow: opts.scanWindow,
		minStrings: opts.minStrings,
		dynamic:    map[DynamicTag]uint64{},
	}
}

func (r *reconstructor) noteAnomaly(format string, args ...any) {
	r.anomalies = append(r.anomalies, fmt.Errorf(format, args...))
}

func (r *reconstructor) add(role string, linkRole string, section Section) {
	section.Provenance = ProvenanceReconstructed
	r.sections = append(
		r.sections,
		&synthetic{
			Section:  section,
			role:     role,
			linkRole: linkRole,
		})
}

func (r *reconstructor) hasRole(role string) bool {
	for _, section := range r.sections {
		if section.role == role {
			return true
		}
	}
	return false
}

// addressToOffset translates a virtual address through the PT_LOAD mapping.
func (r *reconstructor) addressToOffset(address uint64) (uint64, bool) {
	for _, seg := range r.loads {
		offset, ok := seg.FileOffsetOf(address)
		if ok {
			return offset, true
		}
	}
	return 0, false
}

// Reconstruct runs the full pipeline and returns the ordered section list.
// The list is empty (not nil) when no loadable segment exists.
func (r *reconstructor) Reconstruct() []Section {
	if len(r.loads) == 0 {
		r.noteAnomaly("no loadable segments to reconstruct sections from")
		return []Section{}
	}

	r.add(roleNull, roleNoLinks, Section{Type: SectionTypeNull})

	r.seedFromLoadSegments()
	r.seedFromAuxiliarySegments()
	r.seedFromDynamic()

	if !r.hasRole(roleDynStr) {
		r.seedFromStringScan()
	}

	return r.finalize()
}

// ReconstructDynamic recovers only the sections reachable through
// PT_DYNAMIC (.dynsym, .dynstr, hash and relocation tables).
func (r *reconstructor) ReconstructDynamic() []Section {
	if len(r.loads) == 0 {
		return []Section{}
	}

	r.add(roleNull, roleNoLinks, Section{Type: SectionTypeNull})
	r.seedFromDynamic()
	return r.finalize()
}

// seedFromLoadSegments creates one section per PT_LOAD named by its
// permission combination.
func (r *reconstructor) seedFromLoadSegments() {
	for _, seg := range r.loads {
		flags := SectionOccupiesMemory
		if seg.Flags.Writable() {
			flags |= SectionContainsWritableData
		}
		if seg.Flags.Executable() {
			flags |= SectionContainsInstructions
		}

		name := ".load"
		switch {
		case seg.Flags.Executable():
			name = ".text"
		case seg.Flags.Writable():
			name = ".data"
		case seg.Flags.Readable():
			name = ".rodata"
		}

		if seg.FileSize > 0 {
			r.add(roleNoLinks, roleNoLinks, Section{
				Name:      name,
				Type:      SectionTypeProgramDefinedInfo,
				Flags:     flags,
				Address:   seg.VirtualAddress,
				Offset:    seg.Offset,
				Size:      seg.FileSize,
				Alignment: seg.Alignment,
			})
		}

		if seg.Flags.Writable() && seg.MemorySize > seg.FileSize {
			r.add(roleNoLinks, roleNoLinks, Section{
				Name:      ".bss",
				Type:      SectionTypeNoSpace,
				Flags:     flags,
				Address:   seg.VirtualAddress + seg.FileSize,
				Offset:    seg.Offset + seg.FileSize,
				Size:      seg.MemorySize - seg.FileSize,
				Alignment: seg.Alignment,
			})
		}
	}
}

// seedFromAuxiliarySegments maps the non-loadable segments with a
// conventional one-to-one section counterpart.
func (r *reconstructor) seedFromAuxiliarySegments() {
	for _, seg := range r.segments {
		base := Section{
			Flags:     SectionOccupiesMemory,
			Address:   seg.VirtualAddress,
			Offset:    seg.Offset,
			Size:      seg.FileSize,
			Alignment: seg.Alignment,
		}

		switch seg.Type {
		case ProgramInterpreterPath:
			base.Name = ".interp"
			base.Type = SectionTypeProgramDefinedInfo
			r.add(roleNoLinks, roleNoLinks, base)
		case ProgramDynamicLinking:
			base.Name = ".dynamic"
			base.Type = SectionTypeDynamic
			base.Flags |= SectionContainsWritableData
			base.EntrySize = r.Class.dynamicEntrySize()
			r.add(roleDynamic, roleDynStr, base)
		case ProgramNote:
			base.Name = ".note"
			base.Type = SectionTypeNote
			r.add(roleNoLinks, roleNoLinks, base)
		case ProgramGNUEHFrame:
			base.Name = ".eh_frame_hdr"
			base.Type = SectionTypeProgramDefinedInfo
			r.add(roleNoLinks, roleNoLinks, base)
		case ProgramTLS:
			base.Flags |= SectionContainsWritableData | SectionContainsTLSData
			if seg.FileSize > 0 {
				tdata := base
				tdata.Name = ".tdata"
				tdata.Type = SectionTypeProgramDefinedInfo
				r.add(roleNoLinks, roleNoLinks, tdata)
			}
			if seg.MemorySize > seg.FileSize {
				tbss := base
				tbss.Name = ".tbss"
				tbss.Type = SectionTypeNoSpace
				tbss.Address += seg.FileSize
				tbss.Offset += seg.FileSize
				tbss.Size = seg.MemorySize - seg.FileSize
				r.add(roleNoLinks, roleNoLinks, tbss)
			}
		}
	}
}

// readDynamic collects the first value of every tag in the PT_DYNAMIC array.
func (r *reconstructor) readDynamic() bool {
	var dynSeg *Segment
	for idx, seg := range r.segments {
		if seg.Type == ProgramDynamicLinking {
			dynSeg = &r.segments[idx]
			break
		}
	}

	if dynSeg == nil {
		return false
	}

	entrySize := r.Class.dynamicEntrySize()
	count := dynSeg.FileSize / entrySize
	for idx := uint64(0); idx < count; idx++ {
		dec, err := r.decoderAt(dynSeg.Offset+idx*entrySize, entrySize)
		if err != nil {
			r.noteAnomaly("dynamic entry %d unreadable: %w", idx, err)
			break
		}

		tag := DynamicTag(dec.sword())
		value := dec.word()
		if tag == DynamicNull {
			break
		}

		_, ok := r.dynamic[tag]
		if !ok {
			r.dynamic[tag] = value
		}
	}

	return len(r.dynamic) > 0
}

func (r *reconstructor) seedFromDynamic() {
	if !r.readDynamic() {
		return
	}

	dynstrOffset, hasDynStr := r.addDynamicRegion(
		DynamicStringTable,
		DynamicStringSize,
		0,
		roleDynStr,
		roleNoLinks,
		Section{
			Name:      ".dynstr",
			Type:      SectionTypeStringTable,
			Flags:     SectionOccupiesMemory,
			Alignment: 1,
		})

	symbolEntrySize := r.Class.symbolEntrySize()
	if size, ok := r.dynamic[DynamicSymbolEntSize]; ok && size > 0 {
		symbolEntrySize = size
	}

	nchain, hashSize, hasHash := r.sysvHashInfo()
	gnuCount, gnuSize, hasGNUHash := r.gnuHashInfo()

	if symtab, ok := r.dynamic[DynamicSymbolTable]; ok {
		offset, ok := r.addressToOffset(symtab)
		if !ok {
			r.noteAnomaly("DT_SYMTAB (%#x) is not file backed", symtab)
		} else {
			count := uint64(0)
			switch {
			case hasHash:
				count = nchain
			case hasGNUHash:
				count = gnuCount
			case hasDynStr && dynstrOffset > offset:
				// The dynamic string table conventionally follows the dynamic
				// symbol table.
				count = (dynstrOffset - offset) / symbolEntrySize
			default:
				r.noteAnomaly("unable to determine dynamic symbol count")
			}

			available := uint64(0)
			if offset < r.Size() {
				available = (r.Size() - offset) / symbolEntrySize
			}
			if count > available {
				r.noteAnomaly(
					"dynamic symbol count %d clamped to %d (table extends past "+
						"end of file)",
					count,
					available)
				count = available
			}

			r.add(roleDynSym, roleDynStr, Section{
				Name:      ".dynsym",
				Type:      SectionTypeDynamicSymbolTable,
				Flags:     SectionOccupiesMemory,
				Address:   symtab,
				Offset:    offset,
				Size:      count * symbolEntrySize,
				EntrySize: symbolEntrySize,
				Alignment: r.Class.wordSize(),
			})
		}
	}

	if hasHash {
		r.addDynamicRegion(
			DynamicHash,
			0,
			hashSize,
			roleHash,
			roleDynSym,
			Section{
				Name:      ".hash",
				Type:      SectionTypeSymbolHashTable,
				Flags:     SectionOccupiesMemory,
				EntrySize: 4,
				Alignment: r.Class.wordSize(),
			})
	}

	if hasGNUHash {
		r.addDynamicRegion(
			DynamicGNUHash,
			0,
			gnuSize,
			roleGNUHash,
			roleDynSym,
			Section{
				Name:      ".gnu.hash",
				Type:      SectionTypeGNUHash,
				Flags:     SectionOccupiesMemory,
				Alignment: r.Class.wordSize(),
			})
	}

	r.addDynamicRegion(
		DynamicRela,
		DynamicRelaSize,
		0,
		roleRelaDyn,
		roleDynSym,
		Section{
			Name:      ".rela.dyn",
			Type:      SectionTypeRelocationWithAddends,
			Flags:     SectionOccupiesMemory,
			EntrySize: r.dynamic[DynamicRelaEntSize],
			Alignment: r.Class.wordSize(),
		})

	r.addDynamicRegion(
		DynamicRel,
		DynamicRelSize,
		0,
		roleRelaDyn,
		roleDynSym,
		Section{
			Name:      ".rel.dyn",
			Type:      SectionTypeRelocationNoAddends,
			Flags:     SectionOccupiesMemory,
			EntrySize: r.dynamic[DynamicRelEntSize],
			Alignment: r.Class.wordSize(),
		})

	pltRel := Section{
		Name:      ".rel.plt",
		Type:      SectionTypeRelocationNoAddends,
		Flags:     SectionOccupiesMemory | SectionInfoHoldsSectionIndex,
		EntrySize: r.dynamic[DynamicRelEntSize],
		Alignment: r.Class.wordSize(),
	}
	if DynamicTag(r.dynamic[DynamicPLTRel]) == DynamicRela {
		pltRel.Name = ".rela.plt"
		pltRel.Type = SectionTypeRelocationWithAddends
		pltRel.EntrySize = r.dynamic[DynamicRelaEntSize]
	}
	r.addDynamicRegion(
		DynamicJmpRel,
		DynamicPLTRelSize,
		0,
		roleRelaPLT,
		roleDynSym,
		pltRel)

	r.addDynamicRegion(
		DynamicInitArray,
		DynamicInitArraySize,
		0,
		roleNoLinks,
		roleNoLinks,
		Section{
			Name:      ".init_array",
			Type:      SectionTypeInitArray,
			Flags:     SectionOccupiesMemory | SectionContainsWritableData,
			EntrySize: r.Class.wordSize(),
			Alignment: r.Class.wordSize(),
		})

	r.addDynamicRegion(
		DynamicFiniArray,
		DynamicFiniArraySize,
		0,
		roleNoLinks,
		roleNoLinks,
		Section{
			Name:      ".fini_array",
			Type:      SectionTypeFiniArray,
			Flags:     SectionOccupiesMemory | SectionContainsWritableData,
			EntrySize: r.Class.wordSize(),
			Alignment: r.Class.wordSize(),
		})
}

// addDynamicRegion adds a section located by an address tag and sized by
// either a size tag or an explicit size.  It returns the section's file
// offset.
func (r *reconstructor) addDynamicRegion(
	addressTag DynamicTag,
	sizeTag DynamicTag,
	size uint64,
	role string,
	linkRole string,
	section Section,
) (
	uint64,
	bool,
) {
	address, ok := r.dynamic[addressTag]
	if !ok {
		return 0, false
	}

	if sizeTag != DynamicNull {
		size, ok = r.dynamic[sizeTag]
		if !ok {
			r.noteAnomaly("dynamic tag %#x has no matching size tag", addressTag)
			return 0, false
		}
	}

	offset, ok := r.addressToOffset(address)
	if !ok {
		r.noteAnomaly(
			"dynamic tag %#x address (%#x) is not file backed",
			addressTag,
			address)
		return 0, false
	}

	if _, err := r.ReadAt(offset, size); err != nil {
		r.noteAnomaly("dynamic tag %#x region unreadable: %w", addressTag, err)
		return 0, false
	}

	section.Address = address
	section.Offset = offset
	section.Size = size
	r.add(role, linkRole, section)
	return offset, true
}

// sysvHashInfo returns DT_HASH's nchain (== number of dynamic symbols) and
// the table's size.
func (r *reconstructor) sysvHashInfo() (uint64, uint64, bool) {
	address, ok := r.dynamic[DynamicHash]
	if !ok {
		return 0, 0, false
	}

	offset, ok := r.addressToOffset(address)
	if !ok {
		return 0, 0, false
	}

	dec, err := r.decoderAt(offset, 8)
	if err != nil {
		r.noteAnomaly("DT_HASH header unreadable: %w", err)
		return 0, 0, false
	}

	nbucket := uint64(dec.u32())
	nchain := uint64(dec.u32())
	return nchain, (2 + nbucket + nchain) * 4, true
}

// gnuHashInfo walks DT_GNU_HASH's buckets and chains to find the number of
// dynamic symbols, and returns the table's size.
func (r *reconstructor) gnuHashInfo() (uint64, uint64, bool) {
	address, ok := r.dynamic[DynamicGNUHash]
	if !ok {
		return 0, 0, false
	}

	offset, ok := r.addressToOffset(address)
	if !ok {
		return 0, 0, false
	}

	dec, err := r.decoderAt(offset, gnuHashHeaderSize)
	if err != nil {
		r.noteAnomaly("DT_GNU_HASH header unreadable: %w", err)
		return 0, 0, false
	}

	nbuckets := uint64(dec.u32())
	symOffset := uint64(dec.u32())
	bloomSize := uint64(dec.u32())
	_ = dec.u32() // bloom shift

	bucketsOffset := offset + gnuHashHeaderSize + bloomSize*r.Class.wordSize()
	buckets, err := r.decoderAt(bucketsOffset, nbuckets*4)
	if err != nil {
		r.noteAnomaly("DT_GNU_HASH buckets unreadable: %w", err)
		return 0, 0, false
	}

	maxBucket := uint64(0)
	for i := uint64(0); i < nbuckets; i++ {
		maxBucket = max(maxBucket, uint64(buckets.u32()))
	}

	chainsOffset := bucketsOffset + nbuckets*4
	count := symOffset
	if maxBucket >= symOffset {
		idx := maxBucket
		for {
			chain, err := r.decoderAt(chainsOffset+(idx-symOffset)*4, 4)
			if err != nil {
				r.noteAnomaly("DT_GNU_HASH chain unreadable: %w", err)
				return 0, 0, false
			}

			idx += 1
			if chain.u32()&1 != 0 {
				break
			}
		}
		count = idx
	}

	size := chainsOffset - offset + (count-symOffset)*4
	return count, size, true
}

func isScanByte(b byte) bool {
	return b == 0 || (b >= 0x20 && b < 0x7f)
}

// seedFromStringScan looks for a string table near the end of each file
// backed loadable region: a NUL led run of printable or NUL bytes holding at
// least minStrings strings.  A plausible symbol table immediately preceding
// the detected string table is linked to it.
func (r *reconstructor) seedFromStringScan() {
	type candidate struct {
		segment Segment
		offset  uint64
		size    uint64
		strings int
	}

	var best *candidate
	for _, seg := range r.loads {
		window := min(r.scanWindow, seg.FileSize)
		if window == 0 {
			continue
		}

		start := seg.Offset + seg.FileSize - window
		content, err := r.ReadAt(start, window)
		if err != nil {
			r.noteAnomaly("string scan window unreadable: %w", err)
			continue
		}

		for pos := 0; pos < len(content); {
			if !isScanByte(content[pos]) {
				pos += 1
				continue
			}

			runStart := pos
			for pos < len(content) && isScanByte(content[pos]) {
				pos += 1
			}
			run := content[runStart:pos]

			// trim to [first NUL, last NUL]
			first := -1
			last := -1
			for i, b := range run {
				if b == 0 {
					if first == -1 {
						first = i
					}
					last = i
				}
			}
			if first == -1 || last == first {
				continue
			}

			// A string table starts with exactly one NUL.  Padding (or the
			// zeroed tail of a preceding symbol entry) is not part of it.
			for first < last && run[first+1] == 0 {
				first += 1
			}

			strings := 0
			for i := first; i < last; i++ {
				if run[i] == 0 && run[i+1] != 0 {
					strings += 1
				}
			}

			if strings < r.minStrings {
				continue
			}

			if best == nil || strings >= best.strings {
				best = &candidate{
					segment: seg,
					offset:  start + uint64(runStart+first),
					size:    uint64(last - first + 1),
					strings: strings,
				}
			}
		}
	}

	if best == nil {
		r.noteAnomaly("string table scan found no candidate")
		return
	}

	address := best.segment.VirtualAddress + (best.offset - best.segment.Offset)
	strtab := Section{
		Name:      ".strtab",
		Type:      SectionTypeStringTable,
		Flags:     SectionOccupiesMemory,
		Address:   address,
		Offset:    best.offset,
		Size:      best.size,
		Alignment: 1,
	}

	symtab, ok := r.scanSymbolTable(best.segment, strtab)
	if ok {
		strtab.Name = ".dynstr"
		r.add(roleDynStr, roleNoLinks, strtab)
		r.add(roleDynSym, roleDynStr, symtab)
		return
	}

	r.add(roleScanStr, roleNoLinks, strtab)
}

// scanSymbolTable walks backward from the string table one symbol entry at a
// time while entries look like symbols naming strings in strtab.  The run
// must begin with the all zero null symbol.
func (r *reconstructor) scanSymbolTable(
	seg Segment,
	strtab Section,
) (
	Section,
	bool,
) {
	entrySize := r.Class.symbolEntrySize()
	end := strtab.Offset
	if end < seg.Offset+entrySize {
		return Section{}, false
	}

	start := end
	for start >= seg.Offset+entrySize {
		entry, err := r.readSymbolEntry(start - entrySize)
		if err != nil {
			break
		}

		if entry.NameIndex >= uint32(strtab.Size) ||
			!entry.Type.Known() ||
			!entry.Binding.Known() {
			break
		}

		start -= entrySize
		if entry.isNull() {
			break
		}
	}

	count := (end - start) / entrySize
	if count < 2 {
		return Section{}, false
	}

	first, err := r.readSymbolEntry(start)
	if err != nil || !first.isNull() {
		return Section{}, false
	}

	return Section{
		Name:      ".dynsym",
		Type:      SectionTypeDynamicSymbolTable,
		Flags:     SectionOccupiesMemory,
		Address:   seg.VirtualAddress + (start - seg.Offset),
		Offset:    start,
		Size:      end - start,
		EntrySize: entrySize,
		Alignment: r.Class.wordSize(),
	}, true
}

// finalize orders the synthetic sections by file offset (the null section
// stays first) and resolves link roles into indices.
func (r *reconstructor) finalize() []Section {
	sort.SliceStable(r.sections, func(i int, j int) bool {
		a := r.sections[i]
		b := r.sections[j]
		if (a.role == roleNull) != (b.role == roleNull) {
			return a.role == roleNull
		}
		if a.Offset != b.Offset {
			return a.Offset < b.Offset
		}
		return a.Address < b.Address
	})

	indices := map[string]int{}
	for idx, section := range r.sections {
		if section.role == roleNoLinks {
			continue
		}

		_, ok := indices[section.role]
		if !ok {
			indices[section.role] = idx
		}
	}

	result := make([]Section, 0, len(r.sections))
	for _, section := range r.sections {
		if section.linkRole != roleNoLinks {
			idx, ok := indices[section.linkRole]
			if ok {
				section.Link = uint32(idx)
			} else {
				r.noteAnomaly(
					"unable to resolve link for %s (%s)",
					section.Name,
					section.linkRole)
			}
		}

		result = append(result, section.Section)
	}

	return result
}
