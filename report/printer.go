// Package report renders a structural model as readelf style tables or as
// a yaml document.
package report

import (
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/hashicorp/go-multierror"
	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"

	"github.com/pattyshack/relf/elf"
)

type Format string

const (
	FormatTable = Format("table")
	FormatYAML  = Format("yaml")
)

func ParseFormat(value string) (Format, error) {
	switch Format(value) {
	case FormatTable, FormatYAML:
		return Format(value), nil
	default:
		return "", fmt.Errorf("unsupported output format: %q", value)
	}
}

// Selection picks which parts of the model Report renders.
type Selection struct {
	Header         bool
	Sections       bool
	Segments       bool
	DynamicSymbols bool
}

func (sel Selection) Empty() bool {
	return !sel.Header && !sel.Sections && !sel.Segments && !sel.DynamicSymbols
}

type Printer struct {
	out    io.Writer
	format Format

	banner  *color.Color
	warning *color.Color
	label   *color.Color
}

// NewPrinter returns a printer writing to out.  useColor forces color
// escapes on or off regardless of whether out is a terminal.
func NewPrinter(out io.Writer, format Format, useColor bool) *Printer {
	p := &Printer{
		out:     out,
		format:  format,
		banner:  color.New(color.FgGreen, color.Bold),
		warning: color.New(color.FgYellow, color.Bold),
		label:   color.New(color.Bold),
	}

	for _, c := range []*color.Color{p.banner, p.warning, p.label} {
		if useColor {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}

	return p
}

func (p *Printer) Format() Format {
	return p.format
}

func (p *Printer) newTable(header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(p.out)
	table.SetHeader(header)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetBorder(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	return table
}

// Report renders the selected parts of file.  Table output prints one table
// per part; yaml output emits a single document.
func (p *Printer) Report(file *elf.File, sel Selection) error {
	if p.format == FormatYAML {
		doc := document{}
		if sel.Header {
			doc.Header = newHeaderRecord(file)
		}
		if sel.Sections {
			doc.Sections = newSectionTable(file)
		}
		if sel.Segments {
			doc.Segments = newSegmentTable(file)
		}
		if sel.DynamicSymbols {
			doc.DynamicSymbols = newSymbolTable(file)
		}
		return p.encode(doc)
	}

	steps := []struct {
		enabled bool
		print   func(*elf.File) error
	}{
		{sel.Header, p.Header},
		{sel.Sections, p.Sections},
		{sel.Segments, p.Segments},
		{sel.DynamicSymbols, p.DynamicSymbols},
	}

	first := true
	for _, step := range steps {
		if !step.enabled {
			continue
		}

		if !first {
			fmt.Fprintln(p.out)
		}
		first = false

		err := step.print(file)
		if err != nil {
			return err
		}
	}

	return nil
}

func (p *Printer) encode(value any) error {
	encoder := yaml.NewEncoder(p.out)
	encoder.SetIndent(2)

	err := encoder.Encode(value)
	if err != nil {
		return fmt.Errorf("failed to encode yaml: %w", err)
	}

	return encoder.Close()
}

// Status prints each table's provenance followed by every anomaly recorded
// while the model was built.
func (p *Printer) Status(file *elf.File) error {
	if p.format == FormatYAML {
		return p.encode(newStatusRecord(file))
	}

	table := p.newTable([]string{"Table", "Status", "Records"})
	table.Append([]string{
		"sections",
		file.SectionTableStatus().String(),
		fmt.Sprintf("%d", file.SectionCount()),
	})
	table.Append([]string{
		"segments",
		file.SegmentTableStatus().String(),
		fmt.Sprintf("%d", file.SegmentCount()),
	})
	table.Append([]string{
		"dynamic symbols",
		file.DynamicSymbolTableStatus().String(),
		fmt.Sprintf("%d", file.DynamicSymbolCount()),
	})
	table.Render()

	reason := file.SectionAbsentReason()
	if reason != nil {
		p.warning.Fprintf(p.out, "section header table unusable: %s\n", reason)
	}

	anomalies := anomalyList(file)
	if len(anomalies) == 0 {
		return nil
	}

	p.warning.Fprintf(p.out, "[!] %d anomalies:\n", len(anomalies))
	for _, anomaly := range anomalies {
		fmt.Fprintf(p.out, "  - %s\n", anomaly)
	}
	return nil
}

func anomalyList(file *elf.File) []string {
	err := file.Anomalies()
	if err == nil {
		return nil
	}

	var merr *multierror.Error
	if !errors.As(err, &merr) {
		return []string{err.Error()}
	}

	result := make([]string, 0, len(merr.Errors))
	for _, anomaly := range merr.Errors {
		result = append(result, anomaly.Error())
	}
	return result
}
