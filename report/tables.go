package report

import (
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/pattyshack/relf/elf"
)

const (
	sectionsBanner      = "*** Section Headers:"
	reconstructedBanner = "[+] Reconstructing Section Headers:"
	segmentsBanner      = "[+] Program Headers:"
	symbolsBanner       = "[+] Dynamic Symbols:"
)

func hex(file *elf.File, value uint64) string {
	if file.Class == elf.Class32 {
		return fmt.Sprintf("%08x", value)
	}
	return fmt.Sprintf("%016x", value)
}

// linkString resolves a link field to the linked section's name, falling
// back to the raw index.
func linkString(file *elf.File, section elf.Section) string {
	name, ok := file.LinkName(section)
	if ok {
		return name
	}
	return fmt.Sprintf("%d", section.Link)
}

func symbolSectionString(file *elf.File, symbol elf.Symbol) string {
	name, ok := file.SymbolSectionName(symbol)
	if ok {
		return name
	}
	return symbol.SectionIndex.String()
}

func (p *Printer) Header(file *elf.File) error {
	if p.format == FormatYAML {
		return p.encode(newHeaderRecord(file))
	}

	p.banner.Fprintln(p.out, "[+] ELF Header:")

	rows := [][]string{
		{"Class", file.Class.String()},
		{"Data", file.DataEncoding.String()},
		{"OS/ABI", file.OperatingSystemABI.String()},
		{"Type", file.FileType.String()},
		{"Machine", file.MachineArchitecture.String()},
		{"Entry point", fmt.Sprintf("%#x", file.EntryPointAddress)},
		{
			"Program headers",
			fmt.Sprintf(
				"%d at offset %#x",
				file.NumProgramHeaderEntries,
				file.ProgramHeaderOffset),
		},
		{
			"Section headers",
			fmt.Sprintf(
				"%d at offset %#x",
				file.NumSectionHeaderEntries,
				file.SectionHeaderOffset),
		},
		{"Section name index", fmt.Sprintf("%d", file.SectionStringTableIndex)},
		{
			"File size",
			fmt.Sprintf("%s (%d bytes)", humanize.Bytes(file.Size()), file.Size()),
		},
		{"Digest (xxhash64)", fmt.Sprintf("%016x", file.Digest())},
	}

	interp, ok := file.Interpreter()
	if ok {
		rows = append(rows, []string{"Interpreter", interp})
	}

	table := p.newTable([]string{"Field", "Value"})
	table.AppendBulk(rows)
	table.Render()
	return nil
}

func (p *Printer) Sections(file *elf.File) error {
	if p.format == FormatYAML {
		return p.encode(newSectionTable(file))
	}

	switch file.SectionTableStatus() {
	case elf.TableNative:
		p.banner.Fprintln(p.out, sectionsBanner)
	default:
		p.warning.Fprintln(p.out, reconstructedBanner)
	}

	table := p.newTable([]string{
		"[Nr]",
		"Name",
		"Type",
		"Address",
		"Offset",
		"Size",
		"EntSize",
		"Flags",
		"Link",
		"Info",
		"Align",
	})

	it := file.Sections()
	for {
		section, ok := it.Next()
		if !ok {
			break
		}

		table.Append([]string{
			fmt.Sprintf("[%2d]", it.Index()),
			section.Name,
			section.Type.String(),
			hex(file, section.Address),
			fmt.Sprintf("%08x", section.Offset),
			hex(file, section.Size),
			hex(file, section.EntrySize),
			section.Flags.AXW(),
			linkString(file, section),
			fmt.Sprintf("%d", section.Info),
			fmt.Sprintf("%x", section.Alignment),
		})
	}
	table.Render()

	if file.SectionCount() == 0 {
		p.warning.Fprintln(p.out, "no sections could be recovered")
	}
	return nil
}

// Section prints every field of one section.
func (p *Printer) Section(file *elf.File, index uint64) error {
	section, err := file.SectionByIndex(index)
	if err != nil {
		return err
	}

	if p.format == FormatYAML {
		return p.encode(newSectionRecord(file, int(index), section))
	}

	p.banner.Fprintf(p.out, "[+] Section [%d] %s:\n", index, section.Name)

	table := p.newTable([]string{"Field", "Value"})
	table.AppendBulk([][]string{
		{"Name", section.Name},
		{"Type", section.Type.String()},
		{"Flags", section.Flags.String()},
		{"Address", fmt.Sprintf("%#x", section.Address)},
		{"Offset", fmt.Sprintf("%#x", section.Offset)},
		{
			"Size",
			fmt.Sprintf("%#x (%s)", section.Size, humanize.Bytes(section.Size)),
		},
		{"EntSize", fmt.Sprintf("%#x", section.EntrySize)},
		{"Link", linkString(file, section)},
		{"Info", fmt.Sprintf("%d", section.Info)},
		{"Align", fmt.Sprintf("%#x", section.Alignment)},
		{"Provenance", section.Provenance.String()},
	})
	table.Render()
	return nil
}

func (p *Printer) Segments(file *elf.File) error {
	if p.format == FormatYAML {
		return p.encode(newSegmentTable(file))
	}

	if file.SegmentTableStatus() == elf.TableAbsent {
		p.warning.Fprintln(p.out, "[-] No Program Headers")
		return nil
	}

	p.banner.Fprintln(p.out, segmentsBanner)

	table := p.newTable([]string{
		"Type",
		"Offset",
		"VirtAddr",
		"PhysAddr",
		"FileSiz",
		"MemSiz",
		"Flags",
		"Align",
	})

	for _, segment := range file.Segments().All() {
		table.Append([]string{
			segment.Type.String(),
			fmt.Sprintf("%#08x", segment.Offset),
			fmt.Sprintf("%#x", segment.VirtualAddress),
			fmt.Sprintf("%#x", segment.PhysicalAddress),
			fmt.Sprintf("%#x", segment.FileSize),
			fmt.Sprintf("%#x", segment.MemorySize),
			segment.Flags.String(),
			fmt.Sprintf("%#x", segment.Alignment),
		})
	}
	table.Render()

	interp, ok := file.Interpreter()
	if ok {
		fmt.Fprintf(p.out, "[Requesting program interpreter: %s]\n", interp)
	}
	return nil
}

func (p *Printer) DynamicSymbols(file *elf.File) error {
	if p.format == FormatYAML {
		return p.encode(newSymbolTable(file))
	}

	switch file.DynamicSymbolTableStatus() {
	case elf.TableAbsent:
		p.warning.Fprintln(p.out, "[-] No Dynamic Symbols")
		return nil
	case elf.TableReconstructed:
		p.warning.Fprintln(p.out, symbolsBanner+" (reconstructed)")
	default:
		p.banner.Fprintln(p.out, symbolsBanner)
	}

	table := p.newTable([]string{
		"Num",
		"Value",
		"Size",
		"Type",
		"Bind",
		"Vis",
		"Ndx",
		"Name",
	})

	for idx, symbol := range file.DynamicSymbols().All() {
		table.Append([]string{
			fmt.Sprintf("%d:", idx),
			hex(file, symbol.Value),
			fmt.Sprintf("%d", symbol.Size),
			symbol.Type.String(),
			symbol.Binding.String(),
			symbol.Visibility.String(),
			symbolSectionString(file, symbol),
			symbol.PrettyName(),
		})
	}
	table.Render()
	return nil
}
