package elf_test

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/pattyshack/gt/testing/expect"
	"github.com/pattyshack/gt/testing/suite"

	"github.com/pattyshack/relf/elf"
	"github.com/pattyshack/relf/elf/elftest"
)

type ImageSuite struct{}

func TestImage(t *testing.T) {
	suite.RunTests(t, &ImageSuite{})
}

func (ImageSuite) TestEmptyFile(t *testing.T) {
	_, err := elf.LoadBytes(nil)
	expect.Error(t, err, "not an elf file")
	expect.True(t, errors.Is(err, elf.ErrNotAnELF))
}

func (ImageSuite) TestBadMagic(t *testing.T) {
	content := elftest.Minimal()
	content[1] = 'Z'

	_, err := elf.LoadBytes(content)
	expect.Error(t, err, "invalid elf magic number")
	expect.True(t, errors.Is(err, elf.ErrNotAnELF))
}

func (ImageSuite) TestShellScript(t *testing.T) {
	_, err := elf.LoadBytes([]byte("#!/bin/sh\necho hello world\n"))
	expect.True(t, errors.Is(err, elf.ErrNotAnELF))
}

func (ImageSuite) TestUnknownClass(t *testing.T) {
	content := elftest.Minimal()
	content[4] = 7

	_, err := elf.LoadBytes(content)
	expect.Error(t, err, "unsupported elf class")
	expect.True(t, errors.Is(err, elf.ErrNotAnELF))
}

func (ImageSuite) TestUnknownEncoding(t *testing.T) {
	content := elftest.Minimal()
	content[5] = 3

	_, err := elf.LoadBytes(content)
	expect.Error(t, err, "unsupported data encoding")
	expect.True(t, errors.Is(err, elf.ErrNotAnELF))
}

func (ImageSuite) TestTruncatedHeader(t *testing.T) {
	content := elftest.Minimal()[:elf.Elf64HeaderSize-1]

	_, err := elf.LoadBytes(content)
	expect.Error(t, err, "truncated elf file")
	expect.True(t, errors.Is(err, elf.ErrTruncated))
	expect.False(t, errors.Is(err, elf.ErrNotAnELF))

	loadErr := &elf.LoadError{}
	expect.True(t, errors.As(err, &loadErr))
	expect.Equal(t, elf.ErrTruncated, loadErr.Kind)
}

func (ImageSuite) TestHeaderFields(t *testing.T) {
	img, err := elf.LoadBytes(elftest.Minimal())
	expect.Nil(t, err)

	expect.Equal(t, elf.Class64, img.Class)
	expect.Equal(t, elf.DataEncodingTwosComplementLittleEndian, img.DataEncoding)
	expect.Equal(t, elf.FileTypeExecutable, img.FileType)
	expect.Equal(t, elf.MachineArchitectureX86_64, img.MachineArchitecture)
	expect.Equal(t, uint16(elf.Elf64HeaderSize), img.ElfHeaderSize)
	expect.Equal(t, uint16(2), img.NumProgramHeaderEntries)
	expect.Equal(t, uint16(3), img.NumSectionHeaderEntries)
	expect.Equal(t, 0, len(img.Anomalies()))
}

func (ImageSuite) TestReadAt(t *testing.T) {
	content := elftest.Minimal()
	img, err := elf.LoadBytes(content)
	expect.Nil(t, err)

	chunk, err := img.ReadAt(0, 4)
	expect.Nil(t, err)
	expect.Equal(t, []byte("\x7fELF"), chunk)

	size := img.Size()
	chunk, err = img.ReadAt(size-1, 1)
	expect.Nil(t, err)
	expect.Equal(t, 1, len(chunk))

	chunk, err = img.ReadAt(size, 0)
	expect.Nil(t, err)
	expect.Equal(t, 0, len(chunk))

	_, err = img.ReadAt(size-1, 2)
	expect.Error(t, err, "out of bounds read")
	expect.True(t, errors.Is(err, elf.ErrOutOfBounds))

	_, err = img.ReadAt(size+1, 0)
	expect.True(t, errors.Is(err, elf.ErrOutOfBounds))

	// offset + length overflows uint64
	_, err = img.ReadAt(8, ^uint64(0))
	expect.True(t, errors.Is(err, elf.ErrOutOfBounds))
}

func (ImageSuite) TestReadString(t *testing.T) {
	dynamic := elftest.NewDynamic(elftest.DynamicOptions{})
	img, err := elf.LoadBytes(dynamic.Content)
	expect.Nil(t, err)

	file, err := elf.NewFile(img)
	expect.Nil(t, err)

	interp, err := file.SectionByIndex(uint64(dynamic.InterpIndex))
	expect.Nil(t, err)

	path, err := img.ReadString(interp.Offset, interp.Size)
	expect.Nil(t, err)
	expect.Equal(t, elftest.Interpreter, path)

	// limit cuts off the terminator
	_, err = img.ReadString(interp.Offset, 4)
	expect.Error(t, err, "unterminated string")

	_, err = img.ReadString(img.Size(), 10)
	expect.True(t, errors.Is(err, elf.ErrOutOfBounds))
}

func (ImageSuite) TestDigest(t *testing.T) {
	a, err := elf.LoadBytes(elftest.Minimal())
	expect.Nil(t, err)

	b, err := elf.LoadReader(bytes.NewReader(elftest.Minimal()))
	expect.Nil(t, err)

	expect.Equal(t, a.Digest(), b.Digest())

	modified := elftest.Minimal()
	modified[len(modified)-1] ^= 0xff
	c, err := elf.LoadBytes(modified)
	expect.Nil(t, err)
	expect.NotEqual(t, a.Digest(), c.Digest())
}

func (ImageSuite) TestLoadFromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "minimal")
	err := os.WriteFile(path, elftest.Minimal(), 0o644)
	expect.Nil(t, err)

	img, err := elf.Load(path)
	expect.Nil(t, err)
	expect.Equal(t, path, img.Path())
	expect.Equal(t, uint64(len(elftest.Minimal())), img.Size())

	chunk, err := img.ReadAt(1, 3)
	expect.Nil(t, err)
	expect.Equal(t, "ELF", string(chunk))

	expect.Nil(t, img.Close())
	expect.Nil(t, img.Close())
}

func (ImageSuite) TestLoadErrorCarriesPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "script.sh")
	err := os.WriteFile(path, []byte("#!/bin/sh\n# not an elf file at all\n"), 0o755)
	expect.Nil(t, err)

	_, err = elf.Open(path)
	expect.Error(t, err, path+": not an elf file")
	expect.True(t, errors.Is(err, elf.ErrNotAnELF))
}

func (ImageSuite) TestLoadMissingFile(t *testing.T) {
	_, err := elf.Load(filepath.Join(t.TempDir(), "missing"))
	expect.Error(t, err, "failed to open")
	expect.False(t, errors.Is(err, elf.ErrNotAnELF))
}
