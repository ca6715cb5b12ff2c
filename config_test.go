package relf

import (
	"bytes"
	"strings"
	"testing"

	"github.com/pattyshack/gt/testing/expect"
	"github.com/pattyshack/gt/testing/suite"
	"github.com/spf13/afero"

	"github.com/pattyshack/relf/report"
)

type ConfigSuite struct{}

func TestConfig(t *testing.T) {
	suite.RunTests(t, &ConfigSuite{})
}

func writeFile(t *testing.T, fs afero.Fs, path string, content string) {
	err := afero.WriteFile(fs, path, []byte(content), 0o644)
	expect.Nil(t, err)
}

func (ConfigSuite) TestDefaults(t *testing.T) {
	cfg := DefaultConfig()
	expect.Nil(t, cfg.Validate())
	expect.Equal(t, report.FormatTable, cfg.Format())
	expect.Equal(t, ColorAuto, cfg.Color)
	expect.True(t, cfg.Demangle)
	expect.Equal(t, uint64(64*1024), cfg.Reconstruction.ScanWindow)
	expect.Equal(t, 4, cfg.Reconstruction.MinStrings)
}

func (ConfigSuite) TestLoadPartial(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(
		t,
		fs,
		"/etc/relf.yaml",
		"output: yaml\n"+
			"reconstruction:\n"+
			"  min_strings: 8\n")

	cfg, err := LoadConfig(fs, "/etc/relf.yaml")
	expect.Nil(t, err)
	expect.Equal(t, report.FormatYAML, cfg.Format())
	expect.Equal(t, 8, cfg.Reconstruction.MinStrings)

	// untouched fields keep their defaults
	expect.Equal(t, ColorAuto, cfg.Color)
	expect.True(t, cfg.Demangle)
	expect.Equal(t, uint64(64*1024), cfg.Reconstruction.ScanWindow)
}

func (ConfigSuite) TestLoadEmpty(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "empty.yaml", "")

	cfg, err := LoadConfig(fs, "empty.yaml")
	expect.Nil(t, err)
	expect.Equal(t, DefaultConfig(), cfg)
}

func (ConfigSuite) TestLoadMissing(t *testing.T) {
	_, err := LoadConfig(afero.NewMemMapFs(), "missing.yaml")
	expect.Error(t, err, "failed to read config missing.yaml")
}

func (ConfigSuite) TestUnknownField(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "bad.yaml", "colour: never\n")

	_, err := LoadConfig(fs, "bad.yaml")
	expect.Error(t, err, "failed to parse config bad.yaml")
}

func (ConfigSuite) TestInvalidValues(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "format.yaml", "output: json\n")
	writeFile(t, fs, "color.yaml", "color: sometimes\n")

	_, err := LoadConfig(fs, "format.yaml")
	expect.Error(t, err, "unsupported output format")

	_, err = LoadConfig(fs, "color.yaml")
	expect.Error(t, err, "unsupported color mode")
}

func (ConfigSuite) TestUseColor(t *testing.T) {
	cfg := DefaultConfig()

	cfg.Color = ColorAlways
	expect.True(t, cfg.UseColor(^uintptr(0)))

	cfg.Color = ColorNever
	expect.False(t, cfg.UseColor(^uintptr(0)))

	// an invalid descriptor is never a terminal
	cfg.Color = ColorAuto
	expect.False(t, cfg.UseColor(^uintptr(0)))
}

func (ConfigSuite) TestLoggerLevels(t *testing.T) {
	buffer := &bytes.Buffer{}
	logger := NewLogger(buffer, false)

	session, err := Open(
		memFsWith(t, "stripped", strippedDynamic()),
		"stripped",
		DefaultConfig(),
		logger)
	expect.Nil(t, err)
	defer session.Close()

	output := buffer.String()
	expect.True(t, strings.Contains(output, "section headers reconstructed"))
	expect.False(t, strings.Contains(output, "level=debug"))

	buffer.Reset()
	session, err = Open(
		memFsWith(t, "stripped", strippedDynamic()),
		"stripped",
		DefaultConfig(),
		NewLogger(buffer, true))
	expect.Nil(t, err)
	defer session.Close()

	expect.True(t, strings.Contains(buffer.String(), "level=debug"))
}
