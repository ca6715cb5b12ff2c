package relf

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/pattyshack/gt/testing/expect"
	"github.com/pattyshack/gt/testing/suite"
	"github.com/spf13/afero"

	"github.com/pattyshack/relf/elf"
	"github.com/pattyshack/relf/elf/elftest"
)

func strippedDynamic() []byte {
	return elftest.StripSectionHeaders(
		elftest.NewDynamic(elftest.DynamicOptions{}).Content)
}

func memFsWith(t *testing.T, path string, content []byte) afero.Fs {
	fs := afero.NewMemMapFs()
	err := afero.WriteFile(fs, path, content, 0o755)
	expect.Nil(t, err)
	return fs
}

type SessionSuite struct{}

func TestSession(t *testing.T) {
	suite.RunTests(t, &SessionSuite{})
}

func (SessionSuite) TestOpenFromMemory(t *testing.T) {
	fs := memFsWith(t, "/bin/minimal", elftest.Minimal())

	session, err := Open(fs, "/bin/minimal", DefaultConfig(), nil)
	expect.Nil(t, err)
	defer session.Close()

	expect.Equal(t, "/bin/minimal", session.Path)
	expect.Equal(t, elf.TableNative, session.SectionTableStatus())
	expect.Equal(t, 3, session.SectionCount())
}

func (SessionSuite) TestConfigReachesLoader(t *testing.T) {
	fs := memFsWith(t, "stripped", strippedDynamic())

	cfg := DefaultConfig()
	cfg.Demangle = false

	session, err := Open(fs, "stripped", cfg, nil)
	expect.Nil(t, err)
	defer session.Close()

	expect.Equal(t, elf.TableReconstructed, session.SectionTableStatus())
	for _, symbol := range session.DynamicSymbols().All() {
		expect.Equal(t, "", symbol.DemangledName)
	}
}

func (SessionSuite) TestNotAnELF(t *testing.T) {
	fs := memFsWith(t, "notes.txt", []byte("just some text, definitely not elf"))

	_, err := Open(fs, "notes.txt", DefaultConfig(), nil)
	expect.Error(t, err, "notes.txt: not an elf file")
	expect.True(t, errors.Is(err, elf.ErrNotAnELF))
}

func (SessionSuite) TestTruncated(t *testing.T) {
	content := elftest.WithSectionHeaderCount(elftest.Minimal(), 512)
	fs := memFsWith(t, "truncated", content)

	_, err := Open(fs, "truncated", DefaultConfig(), nil)
	expect.Error(t, err, "truncated: truncated elf file")
	expect.True(t, errors.Is(err, elf.ErrTruncated))
}

func (SessionSuite) TestMissingFile(t *testing.T) {
	_, err := Open(afero.NewMemMapFs(), "missing", DefaultConfig(), nil)
	expect.Error(t, err, "failed to open missing")
}

func (SessionSuite) TestOpenFromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stripped")
	err := os.WriteFile(path, strippedDynamic(), 0o755)
	expect.Nil(t, err)

	session, err := Open(afero.NewOsFs(), path, DefaultConfig(), nil)
	expect.Nil(t, err)
	defer session.Close()

	expect.Equal(t, elf.TableReconstructed, session.SectionTableStatus())
	expect.Equal(t, 5, session.DynamicSymbolCount())
}

func (SessionSuite) TestOpenTestBinary(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("test binary is not an elf file")
	}

	path, err := os.Executable()
	expect.Nil(t, err)

	session, err := Open(afero.NewOsFs(), path, DefaultConfig(), nil)
	expect.Nil(t, err)
	defer session.Close()

	expect.Equal(t, elf.TableNative, session.SectionTableStatus())
	expect.Equal(t, elf.TableNative, session.SegmentTableStatus())

	text, ok := session.SectionByName(".text")
	expect.True(t, ok)
	expect.Equal(t, elf.SectionTypeProgramDefinedInfo, text.Type)
	expect.True(t, text.Flags.Executable())
}
