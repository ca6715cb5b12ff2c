package shell

import (
	"bytes"
	"strings"
	"testing"

	"github.com/pattyshack/gt/testing/expect"
	"github.com/pattyshack/gt/testing/suite"
	"github.com/spf13/afero"

	"github.com/pattyshack/relf"
	"github.com/pattyshack/relf/elf/elftest"
	"github.com/pattyshack/relf/report"
)

type ShellSuite struct{}

func TestShell(t *testing.T) {
	suite.RunTests(t, &ShellSuite{})
}

func newShell(t *testing.T) (*Shell, *bytes.Buffer) {
	fs := afero.NewMemMapFs()
	content := elftest.NewDynamic(elftest.DynamicOptions{}).Content
	err := afero.WriteFile(fs, "dynamic", content, 0o755)
	expect.Nil(t, err)

	session, err := relf.Open(fs, "dynamic", relf.DefaultConfig(), nil)
	expect.Nil(t, err)

	buffer := &bytes.Buffer{}
	printer := report.NewPrinter(buffer, report.FormatTable, false)
	return New(session, printer, buffer), buffer
}

func (ShellSuite) TestLookup(t *testing.T) {
	cmd, ok := lookup("section")
	expect.True(t, ok)
	expect.Equal(t, "section", cmd.name)

	cmd, ok = lookup("s")
	expect.True(t, ok)
	expect.Equal(t, "sections", cmd.name)

	cmd, ok = lookup("seg")
	expect.True(t, ok)
	expect.Equal(t, "segments", cmd.name)

	cmd, ok = lookup("q")
	expect.True(t, ok)
	expect.Equal(t, "quit", cmd.name)

	_, ok = lookup("disassemble")
	expect.False(t, ok)
}

func (ShellSuite) TestSections(t *testing.T) {
	shell, buffer := newShell(t)

	done, err := shell.Execute("sections")
	expect.Nil(t, err)
	expect.False(t, done)
	expect.True(t, strings.HasPrefix(buffer.String(), "*** Section Headers:"))
	expect.True(t, strings.Contains(buffer.String(), ".dynsym"))
}

func (ShellSuite) TestEmptyLineRepeats(t *testing.T) {
	shell, buffer := newShell(t)

	_, err := shell.Execute("dyn")
	expect.Nil(t, err)
	first := buffer.String()
	expect.True(t, strings.Contains(first, "foo::bar()"))

	buffer.Reset()
	_, err = shell.Execute("   ")
	expect.Nil(t, err)
	expect.Equal(t, first, buffer.String())
}

func (ShellSuite) TestSection(t *testing.T) {
	shell, buffer := newShell(t)

	_, err := shell.Execute("section 0x3")
	expect.Nil(t, err)
	expect.True(t, strings.HasPrefix(buffer.String(), "[+] Section [3] .dynsym:"))

	buffer.Reset()
	_, err = shell.Execute("section 77")
	expect.Nil(t, err)
	expect.True(t, strings.Contains(buffer.String(), "section index out of range"))

	buffer.Reset()
	_, err = shell.Execute("section foo")
	expect.Nil(t, err)
	expect.Equal(t, "invalid section index: foo\n", buffer.String())

	buffer.Reset()
	_, err = shell.Execute("section")
	expect.Nil(t, err)
	expect.Equal(t, "usage: section <index>\n", buffer.String())
}

func (ShellSuite) TestInvalidCommand(t *testing.T) {
	shell, buffer := newShell(t)

	done, err := shell.Execute("continue")
	expect.Nil(t, err)
	expect.False(t, done)
	expect.Equal(t, "invalid command: continue\n", buffer.String())
}

func (ShellSuite) TestHelpAndQuit(t *testing.T) {
	shell, buffer := newShell(t)

	done, err := shell.Execute("help")
	expect.Nil(t, err)
	expect.False(t, done)
	for _, cmd := range commands {
		expect.True(t, strings.Contains(buffer.String(), cmd.name))
	}

	done, err = shell.Execute("quit")
	expect.Nil(t, err)
	expect.True(t, done)
}

func (ShellSuite) TestStatusAndHeader(t *testing.T) {
	shell, buffer := newShell(t)

	_, err := shell.Execute("status")
	expect.Nil(t, err)
	expect.True(t, strings.Contains(buffer.String(), "dynamic symbols"))

	buffer.Reset()
	_, err = shell.Execute("header")
	expect.Nil(t, err)
	expect.True(t, strings.Contains(buffer.String(), "ET_EXEC"))
}
