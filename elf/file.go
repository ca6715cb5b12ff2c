package elf

import (
	"fmt"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/hashicorp/go-multierror"
)

// File is the structural model: the resolved (native or reconstructed)
// sections, the segments and the dynamic symbols of one image, plus the
// provenance of each table.  A File is immutable once Open returns and is
// safe for concurrent readers.
type File struct {
	*Image

	sections []Section
	segments []Segment
	symbols  []Symbol

	sectionStatus TableStatus
	segmentStatus TableStatus
	symbolStatus  TableStatus

	// Why the on-disk section header table was not used.
	sectionAbsentReason error

	anomalies *multierror.Error
}

// Open loads the file at path in forensics mode.  Only ErrNotAnELF and
// ErrTruncated abort; every other inconsistency degrades the affected
// records and is reported through Anomalies.
func Open(path string, opts ...Option) (*File, error) {
	img, err := Load(path)
	if err != nil {
		return nil, err
	}

	file, err := NewFile(img, opts...)
	if err != nil {
		_ = img.Close()

		loadErr, ok := err.(*LoadError)
		if ok {
			loadErr.Path = path
		}
		return nil, err
	}

	return file, nil
}

// OpenBytes is Open over an in-memory image.
func OpenBytes(content []byte, opts ...Option) (*File, error) {
	img, err := LoadBytes(content)
	if err != nil {
		return nil, err
	}

	return NewFile(img, opts...)
}

// NewFile builds the structural model over an already validated image.  The
// File takes ownership of img.
func NewFile(img *Image, opts ...Option) (*File, error) {
	cfg := defaultOptions()
	for _, opt := range opts {
		opt(cfg)
	}

	builder := &fileBuilder{
		File: File{
			Image: img,
		},
		logger: cfg.logger,
	}

	err := builder.build(cfg)
	if err != nil {
		return nil, err
	}

	return &builder.File, nil
}

type fileBuilder struct {
	File

	logger log.Logger
}

func (b *fileBuilder) addAnomalies(stage string, errs []error) {
	for _, err := range errs {
		err = fmt.Errorf("%s: %w", stage, err)
		level.Debug(b.logger).Log("msg", "anomaly", "err", err)
		b.anomalies = multierror.Append(b.anomalies, err)
	}
}

func (b *fileBuilder) build(opts *options) error {
	b.addAnomalies("header", b.Image.anomalies)

	tables, err := ParseTables(b.Image)
	if err != nil {
		return err
	}
	b.addAnomalies("tables", tables.anomalies)

	b.segments = tables.Segments
	b.segmentStatus = tables.SegmentStatus

	if tables.SectionStatus == TableNative {
		b.sections = tables.Sections
		b.sectionStatus = TableNative
	} else {
		b.sectionAbsentReason = tables.SectionAbsentReason
		level.Warn(b.logger).Log(
			"msg", "section header table unusable; reconstructing",
			"reason", tables.SectionAbsentReason)

		r := newReconstructor(b.Image, b.segments, opts)
		b.sections = r.Reconstruct()
		b.sectionStatus = TableReconstructed
		b.addAnomalies("reconstruct", r.anomalies)

		level.Debug(b.logger).Log(
			"msg", "reconstructed section headers",
			"sections", len(b.sections))
	}

	b.buildDynamicSymbols(opts)
	return nil
}

func (b *fileBuilder) buildDynamicSymbols(opts *options) {
	decoder := &symbolDecoder{
		Image:    b.Image,
		demangle: opts.demangle,
	}

	tableIdx, ok := findDynamicSymbolTable(b.sections)
	if ok {
		b.symbols = decoder.Decode(b.sections, tableIdx)
		if b.sectionStatus == TableNative {
			b.symbolStatus = TableNative
		} else {
			b.symbolStatus = TableReconstructed
		}
		b.addAnomalies("dynsym", decoder.anomalies)
		return
	}

	if b.sectionStatus == TableNative {
		// The section table may be intact yet missing .dynsym (e.g., hand
		// stripped).  Recover the table from PT_DYNAMIC instead.
		r := newReconstructor(b.Image, b.segments, opts)
		recovered := r.ReconstructDynamic()

		tableIdx, ok = findDynamicSymbolTable(recovered)
		if ok {
			b.symbols = decoder.Decode(recovered, tableIdx)
			b.symbolStatus = TableReconstructed
			b.addAnomalies("dynsym", r.anomalies)
			b.addAnomalies("dynsym", decoder.anomalies)
			return
		}
	}

	b.symbols = []Symbol{}
	b.symbolStatus = TableAbsent
}

func (file *File) Close() error {
	return file.Image.Close()
}

func (file *File) SectionTableStatus() TableStatus {
	return file.sectionStatus
}

func (file *File) SegmentTableStatus() TableStatus {
	return file.segmentStatus
}

func (file *File) DynamicSymbolTableStatus() TableStatus {
	return file.symbolStatus
}

// SectionAbsentReason explains why the on-disk section header table was
// replaced by a reconstruction.  nil when the table is native.
func (file *File) SectionAbsentReason() error {
	return file.sectionAbsentReason
}

// Anomalies returns every locally recovered inconsistency found while
// building the model, or nil.
func (file *File) Anomalies() error {
	return file.anomalies.ErrorOrNil()
}

func (file *File) SectionCount() int {
	return len(file.sections)
}

func (file *File) SegmentCount() int {
	return len(file.segments)
}

func (file *File) DynamicSymbolCount() int {
	return len(file.symbols)
}

// SectionByIndex returns the index-th section (native or reconstructed).
// Callers resolving link fields should treat ErrIndexOutOfRange as "display
// the raw index".
func (file *File) SectionByIndex(index uint64) (Section, error) {
	if index >= uint64(len(file.sections)) {
		return Section{}, indexOutOfRange(index, len(file.sections))
	}

	return file.sections[index], nil
}

func (file *File) SectionByName(name string) (Section, bool) {
	for _, section := range file.sections {
		if section.Name == name {
			return section, true
		}
	}

	return Section{}, false
}

// LinkName resolves section's link field to the linked section's name.
func (file *File) LinkName(section Section) (string, bool) {
	return file.sectionName(uint64(section.Link))
}

// SymbolSectionName resolves symbol's st_shndx to a section name.  Reserved
// indices (UND, ABS, COM) never resolve.  st_shndx refers to the original
// section table, so a reconstructed table is searched by the symbol's
// address instead.
func (file *File) SymbolSectionName(symbol Symbol) (string, bool) {
	if symbol.SectionIndex.Reserved() {
		return "", false
	}

	if file.sectionStatus == TableNative {
		name, ok := file.sectionName(uint64(symbol.SectionIndex))
		if ok {
			return name, true
		}
	}

	return file.sectionNameByAddress(symbol.Value)
}

// sectionNameByAddress returns the name of the smallest named section
// containing address.
func (file *File) sectionNameByAddress(address uint64) (string, bool) {
	var found *Section
	for idx := range file.sections {
		section := &file.sections[idx]
		if section.Name == "" || !section.ContainsAddress(address) {
			continue
		}

		if found == nil || section.Size < found.Size {
			found = section
		}
	}

	if found == nil {
		return "", false
	}
	return found.Name, true
}

func (file *File) sectionName(index uint64) (string, bool) {
	section, err := file.SectionByIndex(index)
	if err != nil || section.Name == "" {
		return "", false
	}

	return section.Name, true
}

// Interpreter returns the PT_INTERP path, if any.
func (file *File) Interpreter() (string, bool) {
	for _, segment := range file.segments {
		if segment.Type != ProgramInterpreterPath {
			continue
		}

		path, err := file.ReadString(segment.Offset, segment.FileSize)
		if err != nil {
			return "", false
		}
		return path, true
	}

	return "", false
}

func (file *File) Sections() *Iterator[Section] {
	return newIterator(file.sections)
}

func (file *File) Segments() *Iterator[Segment] {
	return newIterator(file.segments)
}

func (file *File) DynamicSymbols() *Iterator[Symbol] {
	return newIterator(file.symbols)
}
