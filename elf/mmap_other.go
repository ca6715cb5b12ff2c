//go:build !unix

package elf

import (
	"io"
	"os"
)

func mapFile(file *os.File) ([]byte, func() error, error) {
	content, err := io.ReadAll(file)
	return content, nil, err
}
