package elf

import (
	"encoding/binary"
)

// decoder reads fixed layout records out of a slice that has already been
// bounds checked by Image.ReadAt.  Callers size the slice for the full
// record, so individual reads never run off the end.
type decoder struct {
	binary.ByteOrder
	Class

	content []byte
	pos     int
}

func (dec *decoder) skip(n int) {
	dec.pos += n
}

func (dec *decoder) u8() byte {
	val := dec.content[dec.pos]
	dec.pos += 1
	return val
}

func (dec *decoder) u16() uint16 {
	val := dec.Uint16(dec.content[dec.pos:])
	dec.pos += 2
	return val
}

func (dec *decoder) u32() uint32 {
	val := dec.Uint32(dec.content[dec.pos:])
	dec.pos += 4
	return val
}

func (dec *decoder) u64() uint64 {
	val := dec.Uint64(dec.content[dec.pos:])
	dec.pos += 8
	return val
}

// word reads an Elf32_Addr/Elf32_Off/Elf32_Word or the Elf64 equivalent.
func (dec *decoder) word() uint64 {
	if dec.Class == Class32 {
		return uint64(dec.u32())
	}
	return dec.u64()
}

// sword reads an Elf32_Sword or Elf64_Sxword.
func (dec *decoder) sword() int64 {
	if dec.Class == Class32 {
		return int64(int32(dec.u32()))
	}
	return int64(dec.u64())
}
