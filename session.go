package relf

import (
	"errors"
	"fmt"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/spf13/afero"

	"github.com/pattyshack/relf/elf"
)

// Session is one inspected file together with the settings it was opened
// with.
type Session struct {
	Path   string
	Config Config

	*elf.File

	logger log.Logger
}

// Open loads path from fs.  Files on the os filesystem are memory mapped;
// any other filesystem is read into memory.
func Open(
	fs afero.Fs,
	path string,
	cfg Config,
	logger log.Logger,
) (
	*Session,
	error,
) {
	if logger == nil {
		logger = log.NewNopLogger()
	}

	file, err := openFile(fs, path, cfg.ElfOptions(logger))
	if err != nil {
		level.Debug(logger).Log("msg", "failed to open", "path", path, "err", err)
		return nil, err
	}

	level.Debug(logger).Log(
		"msg", "opened",
		"path", path,
		"class", file.Class,
		"sections", file.SectionTableStatus(),
		"segments", file.SegmentTableStatus(),
		"dynsyms", file.DynamicSymbolTableStatus())

	if file.SectionTableStatus() == elf.TableReconstructed {
		level.Info(logger).Log(
			"msg", "section headers reconstructed",
			"path", path,
			"sections", file.SectionCount())
	}

	return &Session{
		Path:   path,
		Config: cfg,
		File:   file,
		logger: logger,
	}, nil
}

func openFile(fs afero.Fs, path string, opts []elf.Option) (*elf.File, error) {
	if _, ok := fs.(*afero.OsFs); ok {
		return elf.Open(path, opts...)
	}

	reader, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer reader.Close()

	img, err := elf.LoadReader(reader)
	if err == nil {
		var file *elf.File
		file, err = elf.NewFile(img, opts...)
		if err == nil {
			return file, nil
		}
	}

	loadErr := &elf.LoadError{}
	if errors.As(err, &loadErr) {
		loadErr.Path = path
	}
	return nil, err
}

func (session *Session) Logger() log.Logger {
	return session.logger
}

func (session *Session) Close() error {
	return session.File.Close()
}
