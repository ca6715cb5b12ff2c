package elf_test

import (
	"errors"
	"testing"

	"github.com/pattyshack/gt/testing/expect"
	"github.com/pattyshack/gt/testing/suite"

	"github.com/pattyshack/relf/elf"
	"github.com/pattyshack/relf/elf/elftest"
)

type FileSuite struct{}

func TestFile(t *testing.T) {
	suite.RunTests(t, &FileSuite{})
}

func sectionNames(file *elf.File) []string {
	names := []string{}
	for _, section := range file.Sections().All() {
		names = append(names, section.Name)
	}
	return names
}

func symbolNames(file *elf.File) []string {
	names := []string{}
	for _, symbol := range file.DynamicSymbols().All() {
		names = append(names, symbol.Name)
	}
	return names
}

func (FileSuite) TestMinimal(t *testing.T) {
	file, err := elf.OpenBytes(elftest.Minimal())
	expect.Nil(t, err)
	defer file.Close()

	expect.Equal(t, elf.TableNative, file.SectionTableStatus())
	expect.Equal(t, elf.TableNative, file.SegmentTableStatus())
	expect.Equal(t, elf.TableAbsent, file.DynamicSymbolTableStatus())
	expect.Nil(t, file.SectionAbsentReason())
	expect.Nil(t, file.Anomalies())

	expect.Equal(t, 3, file.SectionCount())
	expect.Equal(t, 2, file.SegmentCount())
	expect.Equal(t, 0, file.DynamicSymbolCount())
	expect.Equal(t, []string{"", ".text", ".shstrtab"}, sectionNames(file))

	_, ok := file.Interpreter()
	expect.False(t, ok)
}

func (FileSuite) TestNativeDynamic(t *testing.T) {
	dynamic := elftest.NewDynamic(elftest.DynamicOptions{})
	file, err := elf.OpenBytes(dynamic.Content)
	expect.Nil(t, err)

	expect.Equal(t, elf.TableNative, file.SectionTableStatus())
	expect.Equal(t, elf.TableNative, file.DynamicSymbolTableStatus())
	expect.Equal(t, dynamic.NumSections, file.SectionCount())
	expect.Equal(t, dynamic.NumSegments, file.SegmentCount())
	expect.Nil(t, file.Anomalies())

	expect.Equal(
		t,
		[]string{
			"",
			".interp",
			".hash",
			".dynsym",
			".dynstr",
			".text",
			".dynamic",
			".data",
			".bss",
			".shstrtab",
		},
		sectionNames(file))

	expect.Equal(
		t,
		[]string{"", "puts", "_ZN3foo3barEv", "counter", "__gmon_start__"},
		symbolNames(file))

	interp, ok := file.Interpreter()
	expect.True(t, ok)
	expect.Equal(t, elftest.Interpreter, interp)
}

func (FileSuite) TestDynamicSymbolFields(t *testing.T) {
	dynamic := elftest.NewDynamic(elftest.DynamicOptions{})
	file, err := elf.OpenBytes(dynamic.Content)
	expect.Nil(t, err)

	symbols := []elf.Symbol{}
	for _, symbol := range file.DynamicSymbols().All() {
		symbols = append(symbols, symbol)
	}
	expect.Equal(t, dynamic.NumSymbols, len(symbols))

	null := symbols[0]
	expect.Equal(t, "", null.Name)
	expect.Equal(t, elf.SymbolTypeNone, null.Type)
	expect.True(t, null.IsUndefined())

	puts := symbols[1]
	expect.Equal(t, "puts", puts.Name)
	expect.Equal(t, "puts", puts.PrettyName())
	expect.Equal(t, elf.SymbolTypeFunction, puts.Type)
	expect.Equal(t, elf.SymbolBindingGlobal, puts.Binding)
	expect.True(t, puts.IsUndefined())

	_, ok := file.SymbolSectionName(puts)
	expect.False(t, ok)

	bar := symbols[2]
	expect.Equal(t, "_ZN3foo3barEv", bar.Name)
	expect.Equal(t, "foo::bar()", bar.DemangledName)
	expect.Equal(t, "foo::bar()", bar.PrettyName())
	expect.Equal(t, elf.SectionIndex(dynamic.TextIndex), bar.SectionIndex)
	expect.Equal(t, dynamic.TextAddress+8, bar.Value)
	expect.Equal(t, uint64(4), bar.Size)

	name, ok := file.SymbolSectionName(bar)
	expect.True(t, ok)
	expect.Equal(t, ".text", name)

	gmon := symbols[4]
	expect.Equal(t, elf.SymbolBindingWeak, gmon.Binding)
	expect.Equal(t, elf.SymbolVisibilityDefault, gmon.Visibility)
}

func (FileSuite) TestWithoutDemangle(t *testing.T) {
	dynamic := elftest.NewDynamic(elftest.DynamicOptions{})
	file, err := elf.OpenBytes(dynamic.Content, elf.WithDemangle(false))
	expect.Nil(t, err)

	symbol := file.DynamicSymbols()
	symbol.Next()
	symbol.Next()
	bar, ok := symbol.Next()
	expect.True(t, ok)
	expect.Equal(t, "", bar.DemangledName)
	expect.Equal(t, "_ZN3foo3barEv", bar.PrettyName())
}

func (FileSuite) TestLinkName(t *testing.T) {
	dynamic := elftest.NewDynamic(elftest.DynamicOptions{})
	file, err := elf.OpenBytes(dynamic.Content)
	expect.Nil(t, err)

	dynsym, ok := file.SectionByName(".dynsym")
	expect.True(t, ok)

	name, ok := file.LinkName(dynsym)
	expect.True(t, ok)
	expect.Equal(t, ".dynstr", name)

	text, ok := file.SectionByName(".text")
	expect.True(t, ok)

	// link 0 resolves to the unnamed null section
	_, ok = file.LinkName(text)
	expect.False(t, ok)

	dangling := dynsym
	dangling.Link = 99
	_, ok = file.LinkName(dangling)
	expect.False(t, ok)

	_, ok = file.SectionByName(".symtab")
	expect.False(t, ok)
}

func (FileSuite) TestSectionByIndex(t *testing.T) {
	dynamic := elftest.NewDynamic(elftest.DynamicOptions{})
	file, err := elf.OpenBytes(dynamic.Content)
	expect.Nil(t, err)

	it := file.Sections()
	for {
		section, ok := it.Next()
		if !ok {
			break
		}

		byIndex, err := file.SectionByIndex(uint64(it.Index()))
		expect.Nil(t, err)
		expect.Equal(t, section, byIndex)
	}

	count := uint64(file.SectionCount())
	_, err = file.SectionByIndex(count)
	expect.Error(t, err, "section index out of range")
	expect.True(t, errors.Is(err, elf.ErrIndexOutOfRange))

	_, err = file.SectionByIndex(^uint64(0))
	expect.True(t, errors.Is(err, elf.ErrIndexOutOfRange))
}

func (FileSuite) TestTruncatedSectionTable(t *testing.T) {
	content := elftest.WithSectionHeaderCount(elftest.Minimal(), 1000)

	file, err := elf.OpenBytes(content)
	expect.Nil(t, file)
	expect.True(t, errors.Is(err, elf.ErrTruncated))
}

func (FileSuite) TestNotAnELF(t *testing.T) {
	file, err := elf.OpenBytes([]byte("MZ\x90\x00 this is a pe file, not an elf file"))
	expect.Nil(t, file)
	expect.True(t, errors.Is(err, elf.ErrNotAnELF))
}

func (FileSuite) TestMissingDynamicSymbolSection(t *testing.T) {
	dynamic := elftest.NewDynamic(elftest.DynamicOptions{})
	content := elftest.WithSectionType(
		dynamic.Content,
		int(dynamic.DynsymIndex),
		elf.SectionTypeProgramDefinedInfo)

	file, err := elf.OpenBytes(content)
	expect.Nil(t, err)

	// the section table itself is still trusted
	expect.Equal(t, elf.TableNative, file.SectionTableStatus())

	// while the dynamic symbols are recovered through PT_DYNAMIC
	expect.Equal(t, elf.TableReconstructed, file.DynamicSymbolTableStatus())
	expect.Equal(
		t,
		[]string{"", "puts", "_ZN3foo3barEv", "counter", "__gmon_start__"},
		symbolNames(file))
}

func (FileSuite) TestAnomaliesAreCollected(t *testing.T) {
	content := elftest.Minimal()
	content[6] = 9 // EI_VERSION

	file, err := elf.OpenBytes(content)
	expect.Nil(t, err)

	anomalies := file.Anomalies()
	expect.NotNil(t, anomalies)
	expect.Error(t, anomalies, "unexpected identifier version: 9")
}
