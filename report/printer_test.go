package report_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/pattyshack/gt/testing/expect"
	"github.com/pattyshack/gt/testing/suite"
	"gopkg.in/yaml.v3"

	"github.com/pattyshack/relf/elf"
	"github.com/pattyshack/relf/elf/elftest"
	"github.com/pattyshack/relf/report"
)

type PrinterSuite struct{}

func TestPrinter(t *testing.T) {
	suite.RunTests(t, &PrinterSuite{})
}

func open(t *testing.T, strip bool) *elf.File {
	content := elftest.NewDynamic(elftest.DynamicOptions{}).Content
	if strip {
		content = elftest.StripSectionHeaders(content)
	}

	file, err := elf.OpenBytes(content)
	expect.Nil(t, err)
	return file
}

func lineContaining(output string, needle string) string {
	for _, line := range strings.Split(output, "\n") {
		if strings.Contains(line, needle) {
			return line
		}
	}
	return ""
}

func (PrinterSuite) TestParseFormat(t *testing.T) {
	format, err := report.ParseFormat("yaml")
	expect.Nil(t, err)
	expect.Equal(t, report.FormatYAML, format)

	_, err = report.ParseFormat("json")
	expect.Error(t, err, "unsupported output format")
}

func (PrinterSuite) TestNativeSections(t *testing.T) {
	buffer := &bytes.Buffer{}
	printer := report.NewPrinter(buffer, report.FormatTable, false)

	err := printer.Sections(open(t, false))
	expect.Nil(t, err)

	output := buffer.String()
	expect.True(t, strings.HasPrefix(output, "*** Section Headers:\n"))
	expect.False(t, strings.Contains(output, "Reconstructing"))

	dynsym := lineContaining(output, ".dynsym")
	expect.True(t, strings.Contains(dynsym, "DYNSYM"))
	expect.True(t, strings.Contains(dynsym, ".dynstr"))
	expect.True(t, strings.Contains(dynsym, "A  "))

	text := lineContaining(output, ".text")
	expect.True(t, strings.Contains(text, "AX "))

	expect.False(t, strings.Contains(output, "\x1b["))
}

func (PrinterSuite) TestReconstructedSections(t *testing.T) {
	buffer := &bytes.Buffer{}
	printer := report.NewPrinter(buffer, report.FormatTable, false)

	err := printer.Sections(open(t, true))
	expect.Nil(t, err)

	output := buffer.String()
	expect.True(
		t,
		strings.HasPrefix(output, "[+] Reconstructing Section Headers:\n"))
	expect.True(t, strings.Contains(lineContaining(output, ".dynsym"), ".dynstr"))
}

func (PrinterSuite) TestUnresolvedLinkShowsRawIndex(t *testing.T) {
	b := elftest.New(elf.Class64, elf.DataEncodingTwosComplementLittleEndian)
	start := b.ContentStart(0)
	b.Place(start, make([]byte, 16))
	b.AddSection(elf.Section{
		Name:   ".dangling",
		Type:   elf.SectionTypeProgramDefinedInfo,
		Offset: start,
		Size:   16,
		Link:   4242,
	})

	file, err := elf.OpenBytes(b.Bytes())
	expect.Nil(t, err)

	buffer := &bytes.Buffer{}
	err = report.NewPrinter(buffer, report.FormatTable, false).Sections(file)
	expect.Nil(t, err)
	expect.True(
		t,
		strings.Contains(lineContaining(buffer.String(), ".dangling"), "4242"))
}

func (PrinterSuite) TestSegments(t *testing.T) {
	buffer := &bytes.Buffer{}
	printer := report.NewPrinter(buffer, report.FormatTable, false)

	err := printer.Segments(open(t, false))
	expect.Nil(t, err)

	output := buffer.String()
	expect.True(t, strings.HasPrefix(output, "[+] Program Headers:\n"))
	expect.True(t, strings.Contains(output, "PT_LOAD"))
	expect.True(t, strings.Contains(output, "PT_GNU_STACK"))
	expect.True(t, strings.Contains(lineContaining(output, "PT_DYNAMIC"), "rw-"))
	expect.True(
		t,
		strings.Contains(
			output,
			"[Requesting program interpreter: "+elftest.Interpreter+"]"))
}

func (PrinterSuite) TestDynamicSymbols(t *testing.T) {
	buffer := &bytes.Buffer{}
	printer := report.NewPrinter(buffer, report.FormatTable, false)

	err := printer.DynamicSymbols(open(t, false))
	expect.Nil(t, err)

	output := buffer.String()
	expect.True(t, strings.HasPrefix(output, "[+] Dynamic Symbols:\n"))
	expect.True(t, strings.Contains(lineContaining(output, "puts"), "UND"))
	expect.True(t, strings.Contains(lineContaining(output, "foo::bar()"), ".text"))
	expect.True(t, strings.Contains(lineContaining(output, "counter"), "OBJECT"))
	expect.True(t, strings.Contains(lineContaining(output, "__gmon_start__"), "WEAK"))
}

func (PrinterSuite) TestNoDynamicSymbols(t *testing.T) {
	file, err := elf.OpenBytes(elftest.Minimal())
	expect.Nil(t, err)

	buffer := &bytes.Buffer{}
	err = report.NewPrinter(buffer, report.FormatTable, false).DynamicSymbols(file)
	expect.Nil(t, err)
	expect.Equal(t, "[-] No Dynamic Symbols\n", buffer.String())
}

func (PrinterSuite) TestHeader(t *testing.T) {
	file := open(t, false)

	buffer := &bytes.Buffer{}
	err := report.NewPrinter(buffer, report.FormatTable, false).Header(file)
	expect.Nil(t, err)

	output := buffer.String()
	expect.True(t, strings.Contains(lineContaining(output, "Class"), "ELF64"))
	expect.True(t, strings.Contains(lineContaining(output, "Type"), "ET_EXEC"))
	expect.True(t, strings.Contains(output, elftest.Interpreter))
	expect.True(t, strings.Contains(lineContaining(output, "File size"), "bytes"))
}

func (PrinterSuite) TestSection(t *testing.T) {
	file := open(t, false)

	buffer := &bytes.Buffer{}
	printer := report.NewPrinter(buffer, report.FormatTable, false)

	dynsym, ok := file.SectionByName(".dynsym")
	expect.True(t, ok)

	err := printer.Section(file, 3)
	expect.Nil(t, err)

	output := buffer.String()
	expect.True(t, strings.HasPrefix(output, "[+] Section [3] "+dynsym.Name))
	expect.True(t, strings.Contains(lineContaining(output, "Link"), ".dynstr"))
	expect.True(t, strings.Contains(lineContaining(output, "Provenance"), "native"))

	err = printer.Section(file, 100)
	expect.True(t, errors.Is(err, elf.ErrIndexOutOfRange))
}

func (PrinterSuite) TestStatus(t *testing.T) {
	content := elftest.WithSectionHeaderOffset(elftest.Minimal(), 0)
	content[6] = 2 // EI_VERSION

	file, err := elf.OpenBytes(content)
	expect.Nil(t, err)

	buffer := &bytes.Buffer{}
	err = report.NewPrinter(buffer, report.FormatTable, false).Status(file)
	expect.Nil(t, err)

	output := buffer.String()
	expect.True(t, strings.Contains(lineContaining(output, "sections"), "reconstructed"))
	expect.True(t, strings.Contains(lineContaining(output, "segments"), "native"))
	expect.True(t, strings.Contains(output, "e_shoff is zero"))
	expect.True(t, strings.Contains(output, "unexpected identifier version: 2"))
}

type yamlDocument struct {
	Header struct {
		Class       string `yaml:"class"`
		Interpreter string `yaml:"interpreter"`
	} `yaml:"header"`

	Sections struct {
		Status       string `yaml:"status"`
		AbsentReason string `yaml:"absent_reason"`
		Entries      []struct {
			Name       string `yaml:"name"`
			Link       string `yaml:"link"`
			Provenance string `yaml:"provenance"`
		} `yaml:"entries"`
	} `yaml:"sections"`

	Segments struct {
		Status  string `yaml:"status"`
		Entries []struct {
			Type string `yaml:"type"`
		} `yaml:"entries"`
	} `yaml:"segments"`

	DynamicSymbols struct {
		Status  string `yaml:"status"`
		Entries []struct {
			Name      string `yaml:"name"`
			Demangled string `yaml:"demangled"`
			Section   string `yaml:"section"`
		} `yaml:"entries"`
	} `yaml:"dynamic_symbols"`
}

func (PrinterSuite) TestYAMLReport(t *testing.T) {
	buffer := &bytes.Buffer{}
	printer := report.NewPrinter(buffer, report.FormatYAML, true)

	err := printer.Report(
		open(t, true),
		report.Selection{
			Header:         true,
			Sections:       true,
			Segments:       true,
			DynamicSymbols: true,
		})
	expect.Nil(t, err)

	// color never leaks into yaml
	expect.False(t, strings.Contains(buffer.String(), "\x1b["))

	doc := yamlDocument{}
	err = yaml.Unmarshal(buffer.Bytes(), &doc)
	expect.Nil(t, err)

	expect.Equal(t, "ELF64", doc.Header.Class)
	expect.Equal(t, elftest.Interpreter, doc.Header.Interpreter)

	expect.Equal(t, "reconstructed", doc.Sections.Status)
	expect.True(t, strings.Contains(doc.Sections.AbsentReason, "e_shoff"))
	expect.Equal(t, 9, len(doc.Sections.Entries))
	expect.Equal(t, ".dynsym", doc.Sections.Entries[4].Name)
	expect.Equal(t, ".dynstr", doc.Sections.Entries[4].Link)
	expect.Equal(t, "reconstructed", doc.Sections.Entries[4].Provenance)

	expect.Equal(t, "native", doc.Segments.Status)
	expect.Equal(t, "PT_INTERP", doc.Segments.Entries[0].Type)

	expect.Equal(t, "reconstructed", doc.DynamicSymbols.Status)
	expect.Equal(t, 5, len(doc.DynamicSymbols.Entries))
	expect.Equal(t, "_ZN3foo3barEv", doc.DynamicSymbols.Entries[2].Name)
	expect.Equal(t, "foo::bar()", doc.DynamicSymbols.Entries[2].Demangled)
	expect.Equal(t, ".text", doc.DynamicSymbols.Entries[2].Section)
}

func (PrinterSuite) TestTableReport(t *testing.T) {
	buffer := &bytes.Buffer{}
	printer := report.NewPrinter(buffer, report.FormatTable, true)

	err := printer.Report(
		open(t, false),
		report.Selection{Sections: true, Segments: true})
	expect.Nil(t, err)

	output := buffer.String()
	expect.True(t, strings.Contains(output, "Section Headers:"))
	expect.True(t, strings.Contains(output, "Program Headers:"))
	expect.False(t, strings.Contains(output, "Dynamic Symbols"))
	expect.True(t, strings.Contains(output, "\x1b["))
}
