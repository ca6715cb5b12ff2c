package relf

import (
	"bytes"
	"fmt"
	"io"

	"github.com/go-kit/log"
	"github.com/mattn/go-isatty"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/pattyshack/relf/elf"
	"github.com/pattyshack/relf/report"
)

const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

type ReconstructionConfig struct {
	// Trailing bytes of each loadable segment scanned for a string table.
	ScanWindow uint64 `yaml:"scan_window"`

	// Minimum number of strings a scanned run must hold.
	MinStrings int `yaml:"min_strings"`
}

// Config holds the settings shared by the cli and the interactive shell.
// Command line flags override values loaded from file.
type Config struct {
	Output   string `yaml:"output"`
	Color    string `yaml:"color"`
	Demangle bool   `yaml:"demangle"`

	Reconstruction ReconstructionConfig `yaml:"reconstruction"`
}

func DefaultConfig() Config {
	return Config{
		Output:   string(report.FormatTable),
		Color:    ColorAuto,
		Demangle: true,
		Reconstruction: ReconstructionConfig{
			ScanWindow: elf.DefaultStringScanWindow,
			MinStrings: elf.DefaultMinScanStrings,
		},
	}
}

// LoadConfig reads a yaml config file from fs.  Fields missing from the file
// keep their default values; unknown fields are rejected.
func LoadConfig(fs afero.Fs, path string) (Config, error) {
	content, err := afero.ReadFile(fs, path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg := DefaultConfig()

	decoder := yaml.NewDecoder(bytes.NewReader(content))
	decoder.KnownFields(true)
	err = decoder.Decode(&cfg)
	if err != nil && err != io.EOF {
		return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	err = cfg.Validate()
	if err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

func (cfg Config) Validate() error {
	_, err := report.ParseFormat(cfg.Output)
	if err != nil {
		return err
	}

	switch cfg.Color {
	case ColorAuto, ColorAlways, ColorNever:
	default:
		return fmt.Errorf("unsupported color mode: %q", cfg.Color)
	}

	if cfg.Reconstruction.MinStrings < 0 {
		return fmt.Errorf(
			"negative reconstruction.min_strings: %d",
			cfg.Reconstruction.MinStrings)
	}

	return nil
}

func (cfg Config) Format() report.Format {
	return report.Format(cfg.Output)
}

// UseColor decides whether output written to fd is colorized.
func (cfg Config) UseColor(fd uintptr) bool {
	switch cfg.Color {
	case ColorAlways:
		return true
	case ColorNever:
		return false
	default:
		return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
	}
}

func (cfg Config) ElfOptions(logger log.Logger) []elf.Option {
	return []elf.Option{
		elf.WithLogger(logger),
		elf.WithDemangle(cfg.Demangle),
		elf.WithStringScanWindow(cfg.Reconstruction.ScanWindow),
		elf.WithMinScanStrings(cfg.Reconstruction.MinStrings),
	}
}
