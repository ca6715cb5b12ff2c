package report

import (
	"fmt"

	"github.com/pattyshack/relf/elf"
)

type document struct {
	Header         *headerRecord `yaml:"header,omitempty"`
	Sections       *sectionTable `yaml:"sections,omitempty"`
	Segments       *segmentTable `yaml:"segments,omitempty"`
	DynamicSymbols *symbolTable  `yaml:"dynamic_symbols,omitempty"`
}

type headerRecord struct {
	Path        string `yaml:"path,omitempty"`
	Class       string `yaml:"class"`
	Data        string `yaml:"data"`
	OSABI       string `yaml:"os_abi"`
	Type        string `yaml:"type"`
	Machine     string `yaml:"machine"`
	Entry       string `yaml:"entry"`
	PHOff       string `yaml:"phoff"`
	PHNum       uint16 `yaml:"phnum"`
	SHOff       string `yaml:"shoff"`
	SHNum       uint16 `yaml:"shnum"`
	SHStrNdx    uint16 `yaml:"shstrndx"`
	Size        uint64 `yaml:"size"`
	Digest      string `yaml:"digest"`
	Interpreter string `yaml:"interpreter,omitempty"`
}

func newHeaderRecord(file *elf.File) *headerRecord {
	interp, _ := file.Interpreter()
	return &headerRecord{
		Path:        file.Path(),
		Class:       file.Class.String(),
		Data:        file.DataEncoding.String(),
		OSABI:       file.OperatingSystemABI.String(),
		Type:        file.FileType.String(),
		Machine:     file.MachineArchitecture.String(),
		Entry:       fmt.Sprintf("%#x", file.EntryPointAddress),
		PHOff:       fmt.Sprintf("%#x", file.ProgramHeaderOffset),
		PHNum:       file.NumProgramHeaderEntries,
		SHOff:       fmt.Sprintf("%#x", file.SectionHeaderOffset),
		SHNum:       file.NumSectionHeaderEntries,
		SHStrNdx:    file.SectionStringTableIndex,
		Size:        file.Size(),
		Digest:      fmt.Sprintf("%016x", file.Digest()),
		Interpreter: interp,
	}
}

type sectionRecord struct {
	Index      int    `yaml:"index"`
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Address    string `yaml:"address"`
	Offset     string `yaml:"offset"`
	Size       uint64 `yaml:"size"`
	EntrySize  uint64 `yaml:"entsize"`
	Flags      string `yaml:"flags"`
	Link       string `yaml:"link"`
	Info       uint32 `yaml:"info"`
	Alignment  uint64 `yaml:"align"`
	Provenance string `yaml:"provenance"`
}

func newSectionRecord(file *elf.File, idx int, section elf.Section) sectionRecord {
	return sectionRecord{
		Index:      idx,
		Name:       section.Name,
		Type:       section.Type.String(),
		Address:    fmt.Sprintf("%#x", section.Address),
		Offset:     fmt.Sprintf("%#x", section.Offset),
		Size:       section.Size,
		EntrySize:  section.EntrySize,
		Flags:      section.Flags.String(),
		Link:       linkString(file, section),
		Info:       section.Info,
		Alignment:  section.Alignment,
		Provenance: section.Provenance.String(),
	}
}

type sectionTable struct {
	Status       string          `yaml:"status"`
	AbsentReason string          `yaml:"absent_reason,omitempty"`
	Entries      []sectionRecord `yaml:"entries"`
}

func newSectionTable(file *elf.File) *sectionTable {
	table := &sectionTable{
		Status:  file.SectionTableStatus().String(),
		Entries: make([]sectionRecord, 0, file.SectionCount()),
	}

	reason := file.SectionAbsentReason()
	if reason != nil {
		table.AbsentReason = reason.Error()
	}

	for idx, section := range file.Sections().All() {
		table.Entries = append(
			table.Entries,
			newSectionRecord(file, idx, section))
	}

	return table
}

type segmentRecord struct {
	Type            string `yaml:"type"`
	Flags           string `yaml:"flags"`
	Offset          string `yaml:"offset"`
	VirtualAddress  string `yaml:"vaddr"`
	PhysicalAddress string `yaml:"paddr"`
	FileSize        uint64 `yaml:"filesz"`
	MemorySize      uint64 `yaml:"memsz"`
	Alignment       uint64 `yaml:"align"`
}

type segmentTable struct {
	Status  string          `yaml:"status"`
	Entries []segmentRecord `yaml:"entries"`
}

func newSegmentTable(file *elf.File) *segmentTable {
	table := &segmentTable{
		Status:  file.SegmentTableStatus().String(),
		Entries: make([]segmentRecord, 0, file.SegmentCount()),
	}

	for _, segment := range file.Segments().All() {
		table.Entries = append(table.Entries, segmentRecord{
			Type:            segment.Type.String(),
			Flags:           segment.Flags.String(),
			Offset:          fmt.Sprintf("%#x", segment.Offset),
			VirtualAddress:  fmt.Sprintf("%#x", segment.VirtualAddress),
			PhysicalAddress: fmt.Sprintf("%#x", segment.PhysicalAddress),
			FileSize:        segment.FileSize,
			MemorySize:      segment.MemorySize,
			Alignment:       segment.Alignment,
		})
	}

	return table
}

type symbolRecord struct {
	Index      int    `yaml:"index"`
	Name       string `yaml:"name"`
	Demangled  string `yaml:"demangled,omitempty"`
	Value      string `yaml:"value"`
	Size       uint64 `yaml:"size"`
	Type       string `yaml:"type"`
	Binding    string `yaml:"bind"`
	Visibility string `yaml:"visibility"`
	Section    string `yaml:"section"`
}

type symbolTable struct {
	Status  string         `yaml:"status"`
	Entries []symbolRecord `yaml:"entries"`
}

func newSymbolTable(file *elf.File) *symbolTable {
	table := &symbolTable{
		Status:  file.DynamicSymbolTableStatus().String(),
		Entries: make([]symbolRecord, 0, file.DynamicSymbolCount()),
	}

	for idx, symbol := range file.DynamicSymbols().All() {
		table.Entries = append(table.Entries, symbolRecord{
			Index:      idx,
			Name:       symbol.Name,
			Demangled:  symbol.DemangledName,
			Value:      fmt.Sprintf("%#x", symbol.Value),
			Size:       symbol.Size,
			Type:       symbol.Type.String(),
			Binding:    symbol.Binding.String(),
			Visibility: symbol.Visibility.String(),
			Section:    symbolSectionString(file, symbol),
		})
	}

	return table
}

type statusRecord struct {
	Sections       string   `yaml:"sections"`
	AbsentReason   string   `yaml:"absent_reason,omitempty"`
	Segments       string   `yaml:"segments"`
	DynamicSymbols string   `yaml:"dynamic_symbols"`
	Anomalies      []string `yaml:"anomalies,omitempty"`
}

func newStatusRecord(file *elf.File) statusRecord {
	record := statusRecord{
		Sections:       file.SectionTableStatus().String(),
		Segments:       file.SegmentTableStatus().String(),
		DynamicSymbols: file.DynamicSymbolTableStatus().String(),
		Anomalies:      anomalyList(file),
	}

	reason := file.SectionAbsentReason()
	if reason != nil {
		record.AbsentReason = reason.Error()
	}

	return record
}
