package main

import (
	"fmt"
	"os"

	"github.com/go-kit/log"

	"github.com/pattyshack/relf/elf"
)

// print-elf dumps every decoded record, including provenance and anomalies,
// without any table formatting.  Handy when debugging reconstruction.
func main() {
	if len(os.Args) != 2 {
		fmt.Println("USAGE: print-elf <file>")
		os.Exit(1)
	}

	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	file, err := elf.Open(os.Args[1], elf.WithLogger(logger))
	if err != nil {
		panic(err)
	}
	defer file.Close()

	fmt.Printf("Header: %v\n", file.ElfHeader)
	fmt.Printf("Digest: %016x\n", file.Digest())

	fmt.Printf(
		"Sections (%s): %d\n",
		file.SectionTableStatus(),
		file.SectionCount())
	if reason := file.SectionAbsentReason(); reason != nil {
		fmt.Println("  Absent reason:", reason)
	}
	for idx, section := range file.Sections().All() {
		fmt.Printf("  [%d] %v\n", idx, section)
	}

	fmt.Printf(
		"Program headers (%s): %d\n",
		file.SegmentTableStatus(),
		file.SegmentCount())
	for idx, segment := range file.Segments().All() {
		fmt.Printf("  [%d] %v\n", idx, segment)
	}

	fmt.Printf(
		"Dynamic symbols (%s): %d\n",
		file.DynamicSymbolTableStatus(),
		file.DynamicSymbolCount())
	for idx, symbol := range file.DynamicSymbols().All() {
		fmt.Printf("  %d: %v\n", idx, symbol)
	}

	if anomalies := file.Anomalies(); anomalies != nil {
		fmt.Println("Anomalies:", anomalies)
	}
}
