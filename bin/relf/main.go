package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/go-kit/log/level"
	"github.com/spf13/afero"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/pattyshack/relf"
	"github.com/pattyshack/relf/report"
	"github.com/pattyshack/relf/shell"
)

var cfg struct {
	file string

	sections       bool
	segments       bool
	dynamicSymbols bool
	header         bool

	output     string
	color      string
	noDemangle bool

	interactive bool
	configPath  string
	verbose     bool
}

func main() {
	app := kingpin.New(
		filepath.Base(os.Args[0]),
		"Inspect elf section headers, program headers and dynamic symbols. "+
			"Missing or damaged section headers are reconstructed.")
	app.HelpFlag.Short('h')

	app.Arg("file", "elf file to inspect").Required().StringVar(&cfg.file)

	app.Flag("section-headers", "Display the section headers.").Short('S').BoolVar(&cfg.sections)
	app.Flag("program-headers", "Display the program headers.").Short('l').BoolVar(&cfg.segments)
	app.Flag("dyn-syms", "Display the dynamic symbol table.").Short('d').BoolVar(&cfg.dynamicSymbols)
	app.Flag("file-header", "Display the elf file header.").Short('f').BoolVar(&cfg.header)

	app.Flag("output", "Output format.").Short('o').EnumVar(&cfg.output, "table", "yaml")
	app.Flag("color", "Colorize table output.").EnumVar(&cfg.color, relf.ColorAuto, relf.ColorAlways, relf.ColorNever)
	app.Flag("no-demangle", "Do not demangle c++ / rust symbol names.").BoolVar(&cfg.noDemangle)

	app.Flag("interactive", "Start an interactive shell.").Short('i').BoolVar(&cfg.interactive)
	app.Flag("config", "Path to a yaml config file.").StringVar(&cfg.configPath)
	app.Flag("verbose", "Enable verbose logging.").Short('v').BoolVar(&cfg.verbose)

	kingpin.MustParse(app.Parse(os.Args[1:]))

	os.Exit(checkError(run()))
}

func checkError(err error) int {
	if err == nil {
		return 0
	}

	os.Stderr.Write([]byte(color.RedString("Error: ") + err.Error() + "\n"))
	return 1
}

func loadConfig(fs afero.Fs) (relf.Config, error) {
	config := relf.DefaultConfig()
	if cfg.configPath != "" {
		var err error
		config, err = relf.LoadConfig(fs, cfg.configPath)
		if err != nil {
			return relf.Config{}, err
		}
	}

	if cfg.output != "" {
		config.Output = cfg.output
	}
	if cfg.color != "" {
		config.Color = cfg.color
	}
	if cfg.noDemangle {
		config.Demangle = false
	}

	return config, config.Validate()
}

func run() error {
	fs := afero.NewOsFs()
	logger := relf.NewLogger(os.Stderr, cfg.verbose)

	config, err := loadConfig(fs)
	if err != nil {
		return err
	}

	useColor := config.UseColor(os.Stdout.Fd())
	if config.Format() == report.FormatYAML {
		useColor = false
	}
	color.NoColor = !useColor

	session, err := relf.Open(fs, cfg.file, config, logger)
	if err != nil {
		return err
	}
	defer session.Close()

	printer := report.NewPrinter(os.Stdout, config.Format(), useColor)

	if cfg.interactive {
		return shell.New(session, printer, os.Stdout).Run()
	}

	sel := report.Selection{
		Header:         cfg.header,
		Sections:       cfg.sections,
		Segments:       cfg.segments,
		DynamicSymbols: cfg.dynamicSymbols,
	}
	if sel.Empty() {
		sel.Sections = true
	}

	err = printer.Report(session.File, sel)
	if err != nil {
		return err
	}

	if session.Anomalies() != nil {
		level.Debug(logger).Log(
			"msg", "file has anomalies",
			"path", cfg.file,
			"anomalies", session.Anomalies())
	}

	return nil
}
