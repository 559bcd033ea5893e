package emu

import (
	"encoding/binary"
	"fmt"
)

// RAM is the guest memory image. The backing buffer never moves for the
// lifetime of the RAM, so compiled blocks may hold its address.
type RAM struct {
	data   []byte
	mapped bool
}

// NewRAM allocates a zeroed guest memory image of size bytes.
func NewRAM(size uint32) (*RAM, error) {
	if size == 0 || size%4 != 0 {
		return nil, fmt.Errorf("ram size %d must be a non-zero multiple of 4", size)
	}
	if size > MaxRAMSize {
		return nil, fmt.Errorf("ram size %d exceeds the %d byte limit", size, MaxRAMSize)
	}

	data, mapped, err := allocRAM(int(size))
	if err != nil {
		return nil, fmt.Errorf("allocating %d bytes of guest RAM: %w", size, err)
	}

	return &RAM{data: data, mapped: mapped}, nil
}

// Bytes returns the backing buffer.
func (r *RAM) Bytes() []byte {
	return r.data
}

// Size returns the image size in bytes.
func (r *RAM) Size() uint32 {
	return uint32(len(r.data))
}

// Read32 reads a little-endian word at a RAM offset.
func (r *RAM) Read32(offset uint32) uint32 {
	return binary.LittleEndian.Uint32(r.data[offset:])
}

// Write32 writes a little-endian word at a RAM offset.
func (r *RAM) Write32(offset, value uint32) {
	binary.LittleEndian.PutUint32(r.data[offset:], value)
}

// LoadImage copies data into RAM starting at offset.
func (r *RAM) LoadImage(offset uint32, data []byte) error {
	if uint64(offset)+uint64(len(data)) > uint64(len(r.data)) {
		return fmt.Errorf("image of %d bytes at offset 0x%X does not fit in %d bytes of RAM",
			len(data), offset, len(r.data))
	}
	copy(r.data[offset:], data)
	return nil
}

// Close releases the image. The RAM must not be used afterwards.
func (r *RAM) Close() error {
	if r.data == nil {
		return nil
	}
	var err error
	if r.mapped {
		err = freeRAM(r.data)
	}
	r.data = nil
	return err
}
