package elf

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
)

// Image is the validated, read-only byte view over an elf file.  All
// structural parsing reads through ReadAt, which bounds checks every access.
type Image struct {
	ElfHeader
	binary.ByteOrder

	path    string
	content []byte
	release func() error

	// Identifier / header fields that are unusual but do not prevent
	// interpretation.
	anomalies []error
}

// Load maps the file at path (read-only) and validates its elf identifier
// and header.
func Load(path string) (*Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	content, release, err := mapFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	img, err := newImage(content, release)
	if err != nil {
		if release != nil {
			_ = release()
		}

		loadErr, ok := err.(*LoadError)
		if ok {
			loadErr.Path = path
		}
		return nil, err
	}

	img.path = path
	return img, nil
}

// LoadReader reads the entire reader into memory and validates it.
func LoadReader(reader io.Reader) (*Image, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read elf file: %w", err)
	}

	return LoadBytes(content)
}

// LoadBytes validates content in place.  The caller must not modify content
// afterward.
func LoadBytes(content []byte) (*Image, error) {
	return newImage(content, nil)
}

func newImage(content []byte, release func() error) (*Image, error) {
	img := &Image{
		content: content,
		release: release,
	}

	err := img.parseIdentifier()
	if err != nil {
		return nil, err
	}

	err = img.parseHeader()
	if err != nil {
		return nil, err
	}

	return img, nil
}

// Close releases the backing mapping, if any.  The image (and any model
// built on it) must not be used afterward.
func (img *Image) Close() error {
	if img.release == nil {
		return nil
	}

	release := img.release
	img.release = nil
	img.content = nil
	return release()
}

func (img *Image) Path() string {
	return img.path
}

func (img *Image) Size() uint64 {
	return uint64(len(img.content))
}

// Digest is the xxhash64 fingerprint of the image's bytes.
func (img *Image) Digest() uint64 {
	return xxhash.Sum64(img.content)
}

// ReadAt returns a read-only view of length bytes starting at offset.
func (img *Image) ReadAt(offset uint64, length uint64) ([]byte, error) {
	size := uint64(len(img.content))
	if offset > size || length > size-offset {
		return nil, outOfBounds(offset, length, len(img.content))
	}

	return img.content[offset : offset+length : offset+length], nil
}

// ReadString returns the NUL terminated string starting at offset, limited
// to the bytes within [offset, offset+limit).
func (img *Image) ReadString(offset uint64, limit uint64) (string, error) {
	size := uint64(len(img.content))
	if offset >= size {
		return "", outOfBounds(offset, 1, len(img.content))
	}

	if limit > size-offset {
		limit = size - offset
	}

	chunk, err := img.ReadAt(offset, limit)
	if err != nil {
		return "", err
	}

	end := bytes.IndexByte(chunk, 0)
	if end == -1 {
		return "", fmt.Errorf(
			"%w: unterminated string at %#x",
			ErrOutOfBounds,
			offset)
	}

	return string(chunk[:end]), nil
}

func (img *Image) decoderAt(offset uint64, length uint64) (*decoder, error) {
	chunk, err := img.ReadAt(offset, length)
	if err != nil {
		return nil, err
	}

	return &decoder{
		ByteOrder: img.ByteOrder,
		Class:     img.Class,
		content:   chunk,
	}, nil
}

func (img *Image) Anomalies() []error {
	return img.anomalies
}

func (img *Image) noteAnomaly(format string, args ...any) {
	img.anomalies = append(img.anomalies, fmt.Errorf(format, args...))
}

func (img *Image) parseIdentifier() error {
	// NOTE: identifier (e_ident) has no endian-ness.  We must parse identifier
	// to determine the elf file's endian-ness (including the elf header).
	if len(img.content) < ElfIdentifierSize {
		return newLoadError(
			ErrNotAnELF,
			"file too small for elf identifier (%d bytes)",
			len(img.content))
	}

	ident := img.content[:ElfIdentifierSize]
	if !bytes.Equal(ident[:len(IdentifierMagic)], IdentifierMagic) {
		return newLoadError(ErrNotAnELF, "invalid elf magic number")
	}

	img.Class = Class(ident[identClassOffset])
	if !img.Class.Known() {
		return newLoadError(ErrNotAnELF, "unsupported elf class: %s", img.Class)
	}

	img.DataEncoding = DataEncoding(ident[identDataOffset])
	switch img.DataEncoding {
	case DataEncodingTwosComplementLittleEndian:
		img.ByteOrder = binary.LittleEndian
	case DataEncodingTwosComplementBigEndian:
		img.ByteOrder = binary.BigEndian
	default:
		return newLoadError(
			ErrNotAnELF,
			"unsupported data encoding: %s",
			img.DataEncoding)
	}

	if ident[identVersionOffset] != 1 {
		img.noteAnomaly(
			"unexpected identifier version: %d",
			ident[identVersionOffset])
	}

	img.OperatingSystemABI = OperatingSystemABI(ident[identOSABIOffset])
	img.ABIVersion = ident[identOSABIOffset+1]

	return nil
}

func (img *Image) parseHeader() error {
	headerSize := img.Class.headerSize()
	dec, err := img.decoderAt(0, headerSize)
	if err != nil {
		return newLoadError(
			ErrTruncated,
			"file too small for %s header (%d < %d)",
			img.Class,
			len(img.content),
			headerSize)
	}

	dec.skip(ElfIdentifierSize)
	img.FileType = FileType(dec.u16())
	img.MachineArchitecture = MachineArchitecture(dec.u16())
	img.FormatVersion = dec.u32()
	img.EntryPointAddress = dec.word()
	img.ProgramHeaderOffset = dec.word()
	img.SectionHeaderOffset = dec.word()
	img.ArchitectureFlags = dec.u32()
	img.ElfHeaderSize = dec.u16()
	img.ProgramHeaderEntrySize = dec.u16()
	img.NumProgramHeaderEntries = dec.u16()
	img.SectionHeaderEntrySize = dec.u16()
	img.NumSectionHeaderEntries = dec.u16()
	img.SectionStringTableIndex = dec.u16()

	if uint64(img.ElfHeaderSize) > img.Size() {
		return newLoadError(
			ErrTruncated,
			"declared header size exceeds file size (%d > %d)",
			img.ElfHeaderSize,
			len(img.content))
	}

	if uint64(img.ElfHeaderSize) != headerSize {
		img.noteAnomaly(
			"unexpected %s header size: %d",
			img.Class,
			img.ElfHeaderSize)
	}

	if img.FormatVersion != 1 {
		img.noteAnomaly("unsupported format version: %d", img.FormatVersion)
	}

	return nil
}
