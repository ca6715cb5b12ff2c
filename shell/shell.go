// Package shell is an interactive prompt for browsing an opened file.
package shell

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/go-kit/log/level"

	"github.com/pattyshack/relf"
	"github.com/pattyshack/relf/elf"
	"github.com/pattyshack/relf/report"
)

const Prompt = "relf > "

var errQuit = errors.New("quit")

type command struct {
	name  string
	usage string
	run   func(*Shell, []string) error
}

// NOTE: prefixes resolve to the first match in this order, so more common
// commands come first.
var commands []command

func init() {
	commands = []command{
		{
			name:  "sections",
			usage: "sections            list section headers",
			run:   (*Shell).sections,
		},
		{
			name:  "section",
			usage: "section <index>     show one section header",
			run:   (*Shell).section,
		},
		{
			name:  "segments",
			usage: "segments            list program headers",
			run:   (*Shell).segments,
		},
		{
			name:  "dynsyms",
			usage: "dynsyms             list dynamic symbols",
			run:   (*Shell).dynamicSymbols,
		},
		{
			name:  "status",
			usage: "status              show table provenance and anomalies",
			run:   (*Shell).status,
		},
		{
			name:  "header",
			usage: "header              show the elf header",
			run:   (*Shell).header,
		},
		{
			name:  "help",
			usage: "help                show this message",
			run:   (*Shell).help,
		},
		{
			name:  "quit",
			usage: "quit                leave the shell",
			run:   (*Shell).quit,
		},
	}
}

func lookup(name string) (command, bool) {
	for _, cmd := range commands {
		if cmd.name == name {
			return cmd, true
		}
	}

	for _, cmd := range commands {
		if strings.HasPrefix(cmd.name, name) {
			return cmd, true
		}
	}

	return command{}, false
}

type Shell struct {
	session *relf.Session
	printer *report.Printer
	out     io.Writer

	lastLine string
}

func New(session *relf.Session, printer *report.Printer, out io.Writer) *Shell {
	return &Shell{
		session: session,
		printer: printer,
		out:     out,
	}
}

// Execute runs one input line.  An empty line repeats the previous command.
// done is true once the user asked to leave.
func (shell *Shell) Execute(line string) (bool, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		line = shell.lastLine
	}
	shell.lastLine = line

	if line == "" {
		return false, nil
	}

	args := strings.Fields(line)
	cmd, ok := lookup(args[0])
	if !ok {
		fmt.Fprintln(shell.out, "invalid command:", args[0])
		return false, nil
	}

	err := cmd.run(shell, args[1:])
	if errors.Is(err, errQuit) {
		return true, nil
	}
	return false, err
}

// Run reads commands until quit, EOF or interrupt.
func (shell *Shell) Run() error {
	items := make([]readline.PrefixCompleterInterface, 0, len(commands))
	for _, cmd := range commands {
		items = append(items, readline.PcItem(cmd.name))
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:       Prompt,
		AutoComplete: readline.NewPrefixCompleter(items...),
		Stdout:       shell.out,
	})
	if err != nil {
		return fmt.Errorf("failed to start shell: %w", err)
	}
	defer rl.Close()

	fmt.Fprintf(
		shell.out,
		"inspecting %s (sections: %s)\n",
		shell.session.Path,
		shell.session.SectionTableStatus())

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == io.EOF || err == readline.ErrInterrupt {
				return nil
			}
			return err
		}

		done, err := shell.Execute(line)
		if err != nil {
			level.Debug(shell.session.Logger()).Log(
				"msg", "command failed",
				"line", line,
				"err", err)
			fmt.Fprintln(shell.out, "error:", err)
		}

		if done {
			return nil
		}
	}
}

func (shell *Shell) sections(args []string) error {
	return shell.printer.Sections(shell.session.File)
}

func (shell *Shell) section(args []string) error {
	if len(args) != 1 {
		fmt.Fprintln(shell.out, "usage: section <index>")
		return nil
	}

	idx, err := strconv.ParseUint(args[0], 0, 64)
	if err != nil {
		fmt.Fprintln(shell.out, "invalid section index:", args[0])
		return nil
	}

	err = shell.printer.Section(shell.session.File, idx)
	if errors.Is(err, elf.ErrIndexOutOfRange) {
		fmt.Fprintln(shell.out, err)
		return nil
	}
	return err
}

func (shell *Shell) segments(args []string) error {
	return shell.printer.Segments(shell.session.File)
}

func (shell *Shell) dynamicSymbols(args []string) error {
	return shell.printer.DynamicSymbols(shell.session.File)
}

func (shell *Shell) status(args []string) error {
	return shell.printer.Status(shell.session.File)
}

func (shell *Shell) header(args []string) error {
	return shell.printer.Header(shell.session.File)
}

func (shell *Shell) help(args []string) error {
	fmt.Fprintln(shell.out, "Commands (prefixes are accepted):")
	for _, cmd := range commands {
		fmt.Fprintln(shell.out, "  "+cmd.usage)
	}
	fmt.Fprintln(shell.out, "An empty line repeats the previous command.")
	return nil
}

func (shell *Shell) quit(args []string) error {
	return errQuit
}
