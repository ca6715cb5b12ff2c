//go:build unix

package elf

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// mapFile maps the file read-only.  Empty and non-regular files (pipes,
// devices) are read into memory instead.
func mapFile(file *os.File) ([]byte, func() error, error) {
	info, err := file.Stat()
	if err != nil {
		return nil, nil, err
	}

	size := info.Size()
	if !info.Mode().IsRegular() || size == 0 {
		content, err := io.ReadAll(file)
		return content, nil, err
	}

	if int64(int(size)) != size {
		return nil, nil, fmt.Errorf("file too large to map (%d bytes)", size)
	}

	content, err := unix.Mmap(
		int(file.Fd()),
		0,
		int(size),
		unix.PROT_READ,
		unix.MAP_PRIVATE)
	if err != nil {
		// Some filesystems do not support mmap.
		content, err := io.ReadAll(file)
		return content, nil, err
	}

	release := func() error {
		return unix.Munmap(content)
	}
	return content, release, nil
}
